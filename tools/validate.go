package tools

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
)

// ValidateArgs checks args against the schema's required list and property
// types. Validation is lenient: values that can be coerced losslessly
// ("3" for a number, 3 for a string, "true" for a boolean, a scalar for an
// array) are converted instead of rejected. Unknown keys pass through.
func ValidateArgs(schema mcptypes.ToolInputSchema, args map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = v
	}

	var missing []string
	for _, name := range schema.Required {
		if v, ok := out[name]; !ok || v == nil {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("missing required field(s) %s", strings.Join(missing, ", "))
	}

	for name, prop := range schema.Properties {
		v, ok := out[name]
		if !ok || v == nil {
			continue
		}
		types := propertyTypes(prop)
		if len(types) == 0 {
			continue
		}
		coerced, err := coerceAny(v, types)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", name, err)
		}
		out[name] = coerced
	}
	return out, nil
}

func propertyTypes(prop any) []string {
	m, ok := prop.(map[string]any)
	if !ok {
		return nil
	}
	switch t := m["type"].(type) {
	case string:
		return []string{t}
	case []string:
		return t
	case []any:
		var types []string
		for _, v := range t {
			if s, ok := v.(string); ok {
				types = append(types, s)
			}
		}
		return types
	}
	return nil
}

func coerceAny(v any, types []string) (any, error) {
	var firstErr error
	for _, t := range types {
		c, err := coerce(v, t)
		if err == nil {
			return c, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, firstErr
}

func coerce(v any, typ string) (any, error) {
	switch typ {
	case "string":
		switch x := v.(type) {
		case string:
			return x, nil
		case float64:
			return strconv.FormatFloat(x, 'f', -1, 64), nil
		case bool:
			return strconv.FormatBool(x), nil
		}
	case "number":
		switch x := v.(type) {
		case float64:
			return x, nil
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(x), 64); err == nil {
				return f, nil
			}
		}
	case "integer":
		switch x := v.(type) {
		case float64:
			if x == float64(int64(x)) {
				return x, nil
			}
		case string:
			if i, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64); err == nil {
				return float64(i), nil
			}
		}
	case "boolean":
		switch x := v.(type) {
		case bool:
			return x, nil
		case string:
			if b, err := strconv.ParseBool(strings.TrimSpace(x)); err == nil {
				return b, nil
			}
		}
	case "array":
		if arr, ok := v.([]any); ok {
			return arr, nil
		}
		return []any{v}, nil
	case "object":
		if obj, ok := v.(map[string]any); ok {
			return obj, nil
		}
	case "null":
		if v == nil {
			return nil, nil
		}
	default:
		return v, nil
	}
	return nil, fmt.Errorf("expected %s, got %T", typ, v)
}
