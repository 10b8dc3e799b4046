package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jacentio/strata/store"
)

// decodeArg converts a command-line string to a value of the field's type.
// The literal "null" clears the field.
func decodeArg(m *store.Model, name, raw string) (any, error) {
	f, ok := m.Field(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", store.ErrFieldDoesNotExist, m.Kind(), name)
	}
	if raw == "null" {
		return nil, nil
	}
	v, err := f.Type().Decode(raw)
	if err != nil {
		return nil, &store.ValueError{Field: name, Reason: err.Error()}
	}
	return v, nil
}

// parseAssignments parses field=value arguments.
func parseAssignments(m *store.Model, args []string) (store.Values, error) {
	values := make(store.Values, len(args))
	for _, arg := range args {
		name, raw, ok := strings.Cut(arg, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("%w: expected field=value, got %q", store.ErrBadValue, arg)
		}
		v, err := decodeArg(m, name, raw)
		if err != nil {
			return nil, err
		}
		values[name] = v
	}
	return values, nil
}

// parseFilter parses an expression such as "age>=30". The comparator is
// the first run of '<', '>' and '=' in expr.
func parseFilter(m *store.Model, expr string) (string, store.Op, any, error) {
	i := strings.IndexAny(expr, "<>=")
	if i <= 0 {
		return "", "", nil, fmt.Errorf("%w: cannot parse filter %q", store.ErrBadValue, expr)
	}
	j := i + 1
	if expr[i] != '=' && j < len(expr) && expr[j] == '=' {
		j++
	}
	name, op, raw := expr[:i], store.Op(expr[i:j]), expr[j:]
	if !op.Valid() {
		return "", "", nil, fmt.Errorf("%w: unsupported comparator %q", store.ErrBadValue, op)
	}
	v, err := decodeArg(m, name, raw)
	if err != nil {
		return "", "", nil, err
	}
	return name, op, v, nil
}

// entityJSON renders an entity as a flat JSON object.
func entityJSON(e *store.Entity) map[string]any {
	out := map[string]any{"_kind": e.Kind(), "_id": e.ID()}
	for name, v := range e.Values() {
		switch val := v.(type) {
		case store.Key:
			out[name] = val.Ref()
		case time.Time:
			out[name] = val.Format(time.RFC3339Nano)
		default:
			out[name] = val
		}
	}
	return out
}

func writeEntity(w io.Writer, e *store.Entity) error {
	return json.NewEncoder(w).Encode(entityJSON(e))
}
