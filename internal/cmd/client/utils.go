package client

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	transports "github.com/rzbill/rawdata/internal/cmd/client/transports"
	"github.com/spf13/cobra"
)

// decodedMessage renders a message for terminal output. Each attribute is
// shown as JSON when it parses, as text when it is valid UTF-8, and as
// base64 otherwise.
func decodedMessage(m transports.Message) map[string]any {
	out := map[string]any{
		"id":       m.ID,
		"position": m.Position,
		"ts_ms":    m.TimestampMs,
	}
	if m.OrderingGroup != "" {
		out["ordering_group"] = m.OrderingGroup
		out["sequence"] = m.Sequence
	}
	if len(m.Attributes) > 0 {
		attrs := make(map[string]any, len(m.Attributes))
		for k, v := range m.Attributes {
			attrs[k] = decodedValue(v)
		}
		out["attributes"] = attrs
	}
	return out
}

func decodedValue(v []byte) map[string]any {
	// Try JSON first if it looks like JSON
	if len(v) > 0 && (v[0] == '{' || v[0] == '[') {
		var j any
		if json.Unmarshal(v, &j) == nil {
			return map[string]any{"json": j}
		}
	}
	if utf8.Valid(v) {
		return map[string]any{"text": string(v)}
	}
	return map[string]any{"b64": base64.StdEncoding.EncodeToString(v)}
}

// parseAttrs merges repeated key=value flags and an optional JSON object of
// string values.
func parseAttrs(raw []string, asJSON string) (map[string][]byte, error) {
	attrs := map[string][]byte{}
	for _, kv := range raw {
		if kv == "" {
			continue
		}
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid --attr, expected key=value: %s", kv)
		}
		attrs[strings.TrimSpace(parts[0])] = []byte(parts[1])
	}
	if asJSON != "" {
		var m map[string]string
		if err := json.Unmarshal([]byte(asJSON), &m); err != nil {
			return nil, fmt.Errorf("invalid --attr-json: %w", err)
		}
		for k, v := range m {
			attrs[k] = []byte(v)
		}
	}
	return attrs, nil
}

// parseAt accepts unix milliseconds or RFC3339.
func parseAt(at string) (int64, error) {
	if at == "" {
		return 0, nil
	}
	if ms, err := strconv.ParseInt(at, 10, 64); err == nil {
		return ms, nil
	}
	if t, err := time.Parse(time.RFC3339, at); err == nil {
		return t.UnixMilli(), nil
	}
	return 0, fmt.Errorf("invalid --at; expected ms or RFC3339")
}

func encodeJSON(cmd *cobra.Command, v any, indent bool) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	if indent {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
