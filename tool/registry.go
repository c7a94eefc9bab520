package tool

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/hupe1980/channelmesh/model"
)

// ErrToolExists is returned when adding a tool whose name is already registered.
var ErrToolExists = errors.New("tool already registered")

// ErrToolNotFound is returned when removing or calling an unknown tool.
var ErrToolNotFound = errors.New("tool not found")

// Registry is a goroutine-safe tool server. A registry may have a parent:
// lookups fall back to it, while Add and Remove only touch the registry's own
// tools. Channels use this to layer per-turn tools over a shared base set.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]Tool
	parent *Registry
}

// NewRegistry creates an empty registry with an optional parent.
func NewRegistry(parent *Registry) *Registry {
	return &Registry{tools: make(map[string]Tool), parent: parent}
}

// Add registers tools. It fails without registering anything if any name is
// already present in this registry.
func (r *Registry) Add(tools ...Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]struct{}, len(tools))
	for _, t := range tools {
		if _, exists := r.tools[t.Name()]; exists {
			return fmt.Errorf("%w: %s", ErrToolExists, t.Name())
		}
		if _, dup := seen[t.Name()]; dup {
			return fmt.Errorf("%w: %s", ErrToolExists, t.Name())
		}
		seen[t.Name()] = struct{}{}
	}
	for _, t := range tools {
		r.tools[t.Name()] = t
	}
	return nil
}

// Remove unregisters tools by name. All present names are removed; the
// returned error lists the names that were missing.
func (r *Registry) Remove(names ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var missing []string
	for _, name := range names {
		if _, exists := r.tools[name]; !exists {
			missing = append(missing, name)
			continue
		}
		delete(r.tools, name)
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %v", ErrToolNotFound, missing)
	}
	return nil
}

// Get looks up a tool, consulting the parent when absent locally.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	t, ok := r.tools[name]
	r.mu.RUnlock()
	if ok {
		return t, true
	}
	if r.parent != nil {
		return r.parent.Get(name)
	}
	return nil, false
}

// Has reports whether name resolves in this registry or its parents.
func (r *Registry) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Names returns all resolvable tool names sorted alphabetically. Local tools
// shadow parent tools with the same name.
func (r *Registry) Names() []string {
	all := r.collect(map[string]Tool{})
	names := make([]string, 0, len(all))
	for name := range all {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) collect(into map[string]Tool) map[string]Tool {
	if r.parent != nil {
		r.parent.collect(into)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for name, t := range r.tools {
		into[name] = t
	}
	return into
}

// Definitions returns model tool definitions for every resolvable tool,
// ordered by name so requests are deterministic.
func (r *Registry) Definitions() []model.ToolDefinition {
	all := r.collect(map[string]Tool{})
	names := make([]string, 0, len(all))
	for name := range all {
		names = append(names, name)
	}
	sort.Strings(names)

	defs := make([]model.ToolDefinition, 0, len(names))
	for _, name := range names {
		t := all[name]
		defs = append(defs, model.ToolDefinition{
			Type: "function",
			Function: model.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
	}
	return defs
}

// Call decodes JSON arguments and invokes the named tool.
func (r *Registry) Call(callCtx *CallContext, name, arguments string) (any, error) {
	t, ok := r.Get(name)
	if !ok {
		return nil, &ToolError{Tool: name, Message: "tool not found", Code: CodeNotFound}
	}

	args := map[string]any{}
	if arguments != "" {
		if err := json.Unmarshal([]byte(arguments), &args); err != nil {
			return nil, &ToolError{Tool: name, Message: fmt.Sprintf("failed to unmarshal args: %v", err), Code: CodeBadArgs}
		}
	}

	return t.Call(callCtx, args)
}
