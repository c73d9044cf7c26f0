package agent

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/invopop/jsonschema"
	jsonschemaval "github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/openvia/openvia/pkg/models"
)

// Tool parameter limits to prevent resource exhaustion.
const (
	// MaxToolNameLength is the maximum length of a tool name.
	MaxToolNameLength = 256

	// MaxToolParamsSize is the maximum size of tool parameters JSON (10 MiB).
	MaxToolParamsSize = 10 << 20
)

type registeredTool struct {
	def       models.ToolDefinition
	schema    models.ToolSchema
	validator *jsonschemaval.Schema
}

// ToolRegistry holds tool definitions and renders their JSON-Schema
// descriptors for the LLM. It is effectively immutable after startup:
// concurrent readers never block each other, and writes (Register) are rare
// (startup, or an explicit re-registration).
type ToolRegistry struct {
	mu    sync.RWMutex
	tools map[string]*registeredTool
}

// NewToolRegistry creates a new empty tool registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]*registeredTool)}
}

// Register adds a tool definition to the registry. Re-registration under an
// existing name replaces the definition and is logged.
func (r *ToolRegistry) Register(def models.ToolDefinition) error {
	if def.Name == "" {
		return fmt.Errorf("tool name is required")
	}
	if len(def.Name) > MaxToolNameLength {
		return fmt.Errorf("tool name %q exceeds maximum length of %d characters", def.Name, MaxToolNameLength)
	}
	if def.Executor == nil {
		return fmt.Errorf("tool %q has no executor", def.Name)
	}

	projected, err := projectSchema(def.InputSchema)
	if err != nil {
		return fmt.Errorf("project schema for %q: %w", def.Name, err)
	}
	validator, err := compileValidator(def.Name, projected)
	if err != nil {
		return fmt.Errorf("compile schema for %q: %w", def.Name, err)
	}

	entry := &registeredTool{
		def: def,
		schema: models.ToolSchema{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: projected,
		},
		validator: validator,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[def.Name]; exists {
		slog.Info("tool re-registered, replacing previous definition", "tool", def.Name)
	}
	r.tools[def.Name] = entry
	return nil
}

// RegisterAll registers every definition in order; it stops at the first
// error. Invariant 1 (registry uniqueness) follows directly from Register's
// last-write-wins map assignment.
func (r *ToolRegistry) RegisterAll(defs []models.ToolDefinition) error {
	for _, def := range defs {
		if err := r.Register(def); err != nil {
			return err
		}
	}
	return nil
}

// Get returns a tool definition by name.
func (r *ToolRegistry) Get(name string) (models.ToolDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	if !ok {
		return models.ToolDefinition{}, false
	}
	return t.def, true
}

// GetSchemas returns the JSON-Schema projection of every registered tool, in
// a deterministic (name-sorted) order.
func (r *ToolRegistry) GetSchemas() []models.ToolSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	schemas := make([]models.ToolSchema, 0, len(names))
	for _, name := range names {
		schemas = append(schemas, r.tools[name].schema)
	}
	return schemas
}

// ValidateArgs validates args against the named tool's compiled schema.
func (r *ToolRegistry) ValidateArgs(name string, args json.RawMessage) error {
	r.mu.RLock()
	t, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("tool not found: %s", name)
	}
	if t.validator == nil {
		return nil
	}
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}
	var decoded any
	if err := json.Unmarshal(args, &decoded); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	if err := t.validator.Validate(decoded); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

// projectSchema reflects a Go struct value into a JSON-Schema document.
// Fields wrapped as optional/pointer/default MUST NOT appear in "required";
// invopop/jsonschema derives that directly from the struct's own
// `jsonschema:"required"` tags and pointer-ness, so no additional unwrapping
// pass is needed here.
func projectSchema(inputSchema any) (json.RawMessage, error) {
	if inputSchema == nil {
		return json.RawMessage(`{"type":"object","properties":{}}`), nil
	}
	reflector := &jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	schema := reflector.Reflect(inputSchema)
	return json.Marshal(schema)
}

// compileValidator compiles a projected schema into a reusable validator.
func compileValidator(name string, schema json.RawMessage) (*jsonschemaval.Schema, error) {
	compiler := jsonschemaval.NewCompiler()
	url := "mem://tool-schema/" + name
	if err := compiler.AddResource(url, bytes.NewReader(schema)); err != nil {
		return nil, err
	}
	return compiler.Compile(url)
}
