package filter

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/rzbill/rawdata/internal/segment"
)

// Filter is a compiled CEL predicate over messages. The zero Filter and a
// Filter built from an empty expression match everything.
type Filter struct {
	prog    cel.Program
	enabled bool
	now     func() time.Time
}

// Compile parses and type-checks expr. Variables available to expressions:
//
//	position        string
//	ordering_group  string
//	sequence        int
//	ts_ms           int, from the message ID
//	size            int, approximate encoded size
//	attributes      map(string, string), attribute bytes as text
//	json            dyn, the "payload" attribute parsed as JSON, or null
//	now_ms          int
func Compile(expr string) (Filter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return Filter{}, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("position", cel.StringType),
		cel.Variable("ordering_group", cel.StringType),
		cel.Variable("sequence", cel.IntType),
		cel.Variable("ts_ms", cel.IntType),
		cel.Variable("size", cel.IntType),
		cel.Variable("attributes", cel.MapType(cel.StringType, cel.StringType)),
		cel.Variable("json", cel.DynType),
		cel.Variable("now_ms", cel.IntType),
	)
	if err != nil {
		return Filter{}, err
	}
	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return Filter{}, iss.Err()
	}
	if t := ast.OutputType(); !t.IsExactType(cel.BoolType) && !t.IsExactType(cel.DynType) {
		return Filter{}, &TypeError{Expr: expr, Got: t.String()}
	}
	prog, err := env.Program(ast)
	if err != nil {
		return Filter{}, err
	}
	return Filter{prog: prog, enabled: true, now: time.Now}, nil
}

// TypeError is returned for expressions that do not evaluate to a bool.
type TypeError struct {
	Expr string
	Got  string
}

func (e *TypeError) Error() string {
	return "filter: expression " + e.Expr + " has type " + e.Got + ", want bool"
}

// Enabled reports whether the filter has an expression.
func (f Filter) Enabled() bool { return f.enabled }

// Match evaluates the filter. Evaluation errors count as no match.
func (f Filter) Match(m segment.Message) bool {
	if !f.enabled {
		return true
	}
	attrs := make(map[string]string, len(m.Attributes))
	for k, v := range m.Attributes {
		attrs[k] = string(v)
	}
	var doc any
	if raw, ok := m.Attributes["payload"]; ok {
		_ = json.Unmarshal(raw, &doc)
	}
	out, _, err := f.prog.Eval(map[string]any{
		"position":       m.Position,
		"ordering_group": m.OrderingGroup,
		"sequence":       int64(m.SequenceNumber),
		"ts_ms":          m.Timestamp(),
		"size":           int64(m.Size()),
		"attributes":     attrs,
		"json":           doc,
		"now_ms":         f.now().UnixMilli(),
	})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}
