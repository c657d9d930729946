package toolkit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/invopop/jsonschema"
)

// Tool is a named capability with a typed parameter variant and a handler
// returning a structured result (spec §4.2).
//
// Schema generation is deterministic: given the same Go type returned by
// NewParams, Registry.Declarations produces byte-identical JSON Schema
// across calls, which keeps vendor prompt caches stable.
type Tool interface {
	// Name is unique across the registry, kebab/snake per vendor convention.
	Name() string
	Description() string

	// Cost is the credit cost of a successful invocation; validated
	// non-negative at Register time (spec §9 open question #3).
	Cost() int

	// NewParams returns a fresh zero-value pointer to this tool's parameter
	// variant, used both for schema generation and argument unmarshaling.
	NewParams() Params

	// Handler executes the tool. params has already been unmarshaled and
	// had caller-scoped fields overwritten by the dispatcher.
	Handler(ctx context.Context, params Params) (*HandlerResult, error)
}

// Partition distinguishes compiled-in tools from ones injected at
// configuration time (spec §4.2).
type Partition string

const (
	PartitionInternal Partition = "internal"
	PartitionExternal Partition = "external"
)

type registeredTool struct {
	tool      Tool
	partition Partition
}

// Registry enumerates available tools, exposes their JSON Schema, and
// resolves name -> handler. It is read-only after startup (spec §5): all
// Register calls are expected to happen before the registry is handed to
// the dispatcher and loop.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]registeredTool
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]registeredTool)}
}

// ErrDuplicateTool is returned by Register when a name collides with one
// already registered, regardless of partition (spec §4.2, invariant 7).
type ErrDuplicateTool struct {
	Name string
}

func (e *ErrDuplicateTool) Error() string {
	return fmt.Sprintf("duplicate tool registration: %q", e.Name)
}

// ErrInvalidToolCost is returned by Register when a tool declares a
// negative credit cost.
type ErrInvalidToolCost struct {
	Name string
	Cost int
}

func (e *ErrInvalidToolCost) Error() string {
	return fmt.Sprintf("tool %q declares invalid cost %d", e.Name, e.Cost)
}

// Register adds a tool to the registry under the given partition. It
// fails closed: a name collision or an invalid cost leaves the registry
// unchanged and returns an error, rather than silently overwriting.
func (r *Registry) Register(partition Partition, tool Tool) error {
	if tool.Cost() < 0 {
		return &ErrInvalidToolCost{Name: tool.Name(), Cost: tool.Cost()}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[tool.Name()]; exists {
		return &ErrDuplicateTool{Name: tool.Name()}
	}
	r.tools[tool.Name()] = registeredTool{tool: tool, partition: partition}
	return nil
}

// MustRegister panics on error; intended for startup wiring of internal
// tools where a collision is a programming error, not a runtime condition.
func (r *Registry) MustRegister(partition Partition, tool Tool) {
	if err := r.Register(partition, tool); err != nil {
		panic(err)
	}
}

// Get resolves a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rt, ok := r.tools[name]
	if !ok {
		return nil, false
	}
	return rt.tool, true
}

// Declaration is the wire shape handed to the LLM vendor (spec §6).
type Declaration struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

var schemaReflector = &jsonschema.Reflector{
	ExpandedStruct:            true,
	DoNotReference:            true,
	RequiredFromJSONSchemaTags: false,
}

// Declarations returns the stable tool declarations for every registered
// tool, sorted by name so repeated calls on an unchanged registry are
// byte-identical (spec §4.2).
func (r *Registry) Declarations() []Declaration {
	r.mu.RLock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	tools := make(map[string]Tool, len(r.tools))
	for name, rt := range r.tools {
		tools[name] = rt.tool
	}
	r.mu.RUnlock()

	sortStrings(names)

	decls := make([]Declaration, 0, len(names))
	for _, name := range names {
		tool := tools[name]
		schema := schemaReflector.Reflect(tool.NewParams())
		raw, err := json.Marshal(schema)
		if err != nil {
			raw = json.RawMessage(`{"type":"object"}`)
		}
		decls = append(decls, Declaration{
			Name:        tool.Name(),
			Description: tool.Description(),
			Parameters:  raw,
		})
	}
	return decls
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

// Names returns all registered tool names, partitioned.
func (r *Registry) Names() (internal, external []string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for name, rt := range r.tools {
		if rt.partition == PartitionInternal {
			internal = append(internal, name)
		} else {
			external = append(external, name)
		}
	}
	return internal, external
}
