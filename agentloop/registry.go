package agentloop

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/prodsnap/prodsnap/modelclient"
)

// ToolHandler executes one tool invocation with already-validated arguments
// and returns the result content to hand back to the model.
type ToolHandler func(ctx context.Context, arguments json.RawMessage) (string, error)

// RegisteredTool pairs a tool definition with its handler. The parameter
// schema is compiled at registration so dispatch can validate arguments
// without recompiling per call.
type RegisteredTool struct {
	Definition modelclient.ToolDefinition
	Handler    ToolHandler

	schema *jsonschema.Schema
}

// ValidateArguments checks raw arguments against the tool's parameter schema.
// Tools registered without a schema accept anything.
func (t *RegisteredTool) ValidateArguments(raw json.RawMessage) error {
	if t.schema == nil {
		return nil
	}
	var instance any
	if err := json.Unmarshal(raw, &instance); err != nil {
		return fmt.Errorf("arguments are not valid JSON: %w", err)
	}
	if err := t.schema.Validate(instance); err != nil {
		return fmt.Errorf("arguments do not match schema: %w", err)
	}
	return nil
}

// ToolRegistry manages tool registration and lookup. Register with the same
// name overwrites, latest wins.
type ToolRegistry struct {
	tools map[string]*RegisteredTool
	mu    sync.RWMutex
}

// NewToolRegistry creates an empty ToolRegistry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]*RegisteredTool)}
}

// Register adds or replaces a tool. Registration fails only if the tool's
// parameter schema does not compile.
func (r *ToolRegistry) Register(def modelclient.ToolDefinition, handler ToolHandler) error {
	tool := &RegisteredTool{Definition: def, Handler: handler}

	if def.Parameters != nil {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("tool.json", def.Parameters); err != nil {
			return fmt.Errorf("register tool %s: %w", def.Name, err)
		}
		schema, err := compiler.Compile("tool.json")
		if err != nil {
			return fmt.Errorf("register tool %s: compile parameter schema: %w", def.Name, err)
		}
		tool.schema = schema
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[def.Name] = tool
	return nil
}

// MustRegister registers a tool and panics on schema compile failure. Meant
// for static tool catalogs built at startup.
func (r *ToolRegistry) MustRegister(def modelclient.ToolDefinition, handler ToolHandler) {
	if err := r.Register(def, handler); err != nil {
		panic(err)
	}
}

// Unregister removes a tool from the registry.
func (r *ToolRegistry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// Resolve returns the registered tool by name.
func (r *ToolRegistry) Resolve(name string) (*RegisteredTool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// Definitions returns all tool definitions in name order, for sending to the
// model.
func (r *ToolRegistry) Definitions() []modelclient.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]modelclient.ToolDefinition, 0, len(r.tools))
	for _, tool := range r.tools {
		defs = append(defs, tool.Definition)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Names returns the names of all registered tools in name order.
func (r *ToolRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered tools.
func (r *ToolRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}
