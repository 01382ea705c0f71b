// Package filter compiles CEL expressions used to select messages while
// tailing, e.g. `ordering_group == "eu" && ts_ms > now_ms - 60000`.
package filter
