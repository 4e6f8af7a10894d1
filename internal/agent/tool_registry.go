package agent

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/haasonsaas/axon/pkg/models"
)

// ToolRegistry manages available tools with thread-safe registration and
// lookup. Tools are admitted to a conversation based on the session type
// of the requesting session; arguments are validated against each tool's
// JSON Schema before execution.
type ToolRegistry struct {
	mu         sync.RWMutex
	tools      map[string]Tool
	validators map[string]*jsonschema.Schema
	logger     *slog.Logger
}

// NewToolRegistry creates an empty registry.
func NewToolRegistry(logger *slog.Logger) *ToolRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &ToolRegistry{
		tools:      make(map[string]Tool),
		validators: make(map[string]*jsonschema.Schema),
		logger:     logger,
	}
}

// Register adds a tool to the registry by its name, replacing any
// existing tool with the same name. The tool's schema is compiled for
// argument validation; a schema that fails to compile disables
// validation for that tool but does not reject registration.
func (r *ToolRegistry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := tool.Name()
	if _, exists := r.tools[name]; exists {
		r.logger.Warn("replacing registered tool", "tool", name)
	}
	r.tools[name] = tool

	delete(r.validators, name)
	if schema := tool.Schema(); len(schema) > 0 {
		compiled, err := jsonschema.CompileString(name+".json", string(schema))
		if err != nil {
			r.logger.Warn("tool schema failed to compile, argument validation disabled",
				"tool", name, "error", err)
		} else {
			r.validators[name] = compiled
		}
	}
}

// Unregister removes a tool from the registry by name.
func (r *ToolRegistry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
	delete(r.validators, name)
}

// Get returns a tool by name and whether it was found.
func (r *ToolRegistry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// List returns the registered tool names, sorted.
func (r *ToolRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// PolicyFor returns the effective policy for a tool, applying the
// default when the tool declares none.
func PolicyFor(tool Tool) *ToolPolicy {
	if p := tool.Policy(); p != nil {
		return p
	}
	return DefaultToolPolicy()
}

// CheckPolicy reports whether the named tool may run in the given
// session type.
func (r *ToolRegistry) CheckPolicy(name string, st models.SessionType) bool {
	tool, ok := r.Get(name)
	if !ok {
		return false
	}
	return PolicyFor(tool).Allows(st)
}

// SchemasFor projects the tool definitions admissible for a session
// type, sorted by name for a stable prompt.
func (r *ToolRegistry) SchemasFor(st models.SessionType) []ToolSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var schemas []ToolSchema
	for _, tool := range r.tools {
		if !PolicyFor(tool).Allows(st) {
			continue
		}
		schemas = append(schemas, ToolSchema{
			Name:        tool.Name(),
			Description: tool.Description(),
			Parameters:  tool.Schema(),
		})
	}
	sort.Slice(schemas, func(i, j int) bool { return schemas[i].Name < schemas[j].Name })
	return schemas
}

// ValidateInput checks tool arguments against the tool's compiled
// schema. Tools without a usable validator accept any JSON object.
func (r *ToolRegistry) ValidateInput(name string, params json.RawMessage) error {
	r.mu.RLock()
	validator := r.validators[name]
	r.mu.RUnlock()

	if validator == nil {
		return nil
	}

	if len(bytes.TrimSpace(params)) == 0 {
		params = json.RawMessage("{}")
	}
	var value any
	if err := json.Unmarshal(params, &value); err != nil {
		return fmt.Errorf("arguments are not valid JSON: %w", err)
	}
	if err := validator.Validate(value); err != nil {
		return err
	}
	return nil
}
