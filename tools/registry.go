// Package tools holds the tool implementations models may call. Tools are
// looked up by a normalized name so "Web-Search", "web_search" and
// "websearch" all resolve to the same entry.
package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"

	mcptypes "github.com/mark3labs/mcp-go/mcp"

	"otchat/config"
	"otchat/parser"
)

// NoOutput replaces an empty tool result so the model can tell the call ran.
const NoOutput = "(no output)"

// Func executes a tool with already validated arguments.
type Func func(ctx context.Context, args map[string]any) (string, error)

// Tool pairs a schema with its implementation.
type Tool struct {
	Spec mcptypes.Tool
	Func Func
}

// Registry maps normalized tool names to implementations. It is safe for
// concurrent use.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// NormalizeName lowercases name and drops everything but letters and digits.
func NormalizeName(name string) string {
	var sb strings.Builder
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(unicode.ToLower(r))
		}
	}
	return sb.String()
}

// Register adds a tool. Names that collide after normalization are rejected.
func (r *Registry) Register(spec mcptypes.Tool, fn Func) error {
	key := NormalizeName(spec.Name)
	if key == "" {
		return fmt.Errorf("tool name %q is empty after normalization", spec.Name)
	}
	if fn == nil {
		return fmt.Errorf("tool %s has no implementation", spec.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.tools[key]; ok {
		return fmt.Errorf("tool %s conflicts with registered tool %s", spec.Name, existing.Spec.Name)
	}
	r.tools[key] = Tool{Spec: spec, Func: fn}
	r.order = append(r.order, key)
	return nil
}

// Unregister removes a tool; unknown names are ignored.
func (r *Registry) Unregister(name string) {
	key := NormalizeName(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tools[key]; !ok {
		return
	}
	delete(r.tools, key)
	for i, k := range r.order {
		if k == key {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

func (r *Registry) Lookup(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[NormalizeName(name)]
	return t, ok
}

// Specs returns the schemas of all tools in registration order.
func (r *Registry) Specs() []mcptypes.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	specs := make([]mcptypes.Tool, 0, len(r.order))
	for _, key := range r.order {
		specs = append(specs, r.tools[key].Spec)
	}
	return specs
}

// Names returns the registered display names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for _, t := range r.tools {
		names = append(names, t.Spec.Name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Call runs a tool from its raw argument payload. Failures never escape as
// errors: unknown tools, unparsable or invalid arguments and tool errors are
// all returned as an inline "Error: ..." result the model can react to.
func (r *Registry) Call(ctx context.Context, name, rawArgs string) string {
	tool, ok := r.Lookup(name)
	if !ok {
		return fmt.Sprintf("Error: unknown tool %q. Available tools: %s", name, strings.Join(r.Names(), ", "))
	}

	args, err := parser.ParseLenientArgs(rawArgs)
	if err != nil {
		return fmt.Sprintf("Error: invalid arguments for %s: %v", tool.Spec.Name, err)
	}

	args, err = ValidateArgs(tool.Spec.InputSchema, args)
	if err != nil {
		return fmt.Sprintf("Error: invalid arguments for %s: %v", tool.Spec.Name, err)
	}

	if config.DebugLog != nil {
		config.DebugLog.Printf("[Tools] Calling %s with %v", tool.Spec.Name, args)
	}

	out, err := tool.Func(ctx, args)
	if err != nil {
		if config.DebugLog != nil {
			config.DebugLog.Printf("[Tools] %s failed: %v", tool.Spec.Name, err)
		}
		return fmt.Sprintf("Error: %s failed: %v", tool.Spec.Name, err)
	}
	if strings.TrimSpace(out) == "" {
		return NoOutput
	}
	return out
}
