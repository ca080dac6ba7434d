package tools

import (
	"context"
	"fmt"
	"time"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
)

// EchoSpec returns its text argument unchanged. Handy for checking that a
// model's tool calling works end to end.
var EchoSpec = mcptypes.Tool{
	Name:        "echo",
	Description: "Return the given text unchanged.",
	InputSchema: mcptypes.ToolInputSchema{
		Type: "object",
		Properties: map[string]any{
			"text": map[string]any{
				"type":        "string",
				"description": "Text to echo back",
			},
		},
		Required: []string{"text"},
	},
}

var CurrentTimeSpec = mcptypes.Tool{
	Name:        "current_time",
	Description: "Get the current date and time, optionally in a given IANA time zone.",
	InputSchema: mcptypes.ToolInputSchema{
		Type: "object",
		Properties: map[string]any{
			"timezone": map[string]any{
				"type":        "string",
				"description": "IANA time zone such as Europe/Berlin (default: local)",
			},
		},
	},
}

func Echo(_ context.Context, args map[string]any) (string, error) {
	text, _ := args["text"].(string)
	return text, nil
}

// CurrentTime reads the clock through now so tests can pin it.
func CurrentTime(now func() time.Time) Func {
	return func(_ context.Context, args map[string]any) (string, error) {
		t := now()
		if tz, _ := args["timezone"].(string); tz != "" {
			loc, err := time.LoadLocation(tz)
			if err != nil {
				return "", fmt.Errorf("unknown time zone %q", tz)
			}
			t = t.In(loc)
		}
		return t.Format(time.RFC1123Z), nil
	}
}

// RegisterBuiltins adds the built-in tools to r.
func RegisterBuiltins(r *Registry) error {
	if err := r.Register(EchoSpec, Echo); err != nil {
		return err
	}
	return r.Register(CurrentTimeSpec, CurrentTime(time.Now))
}
