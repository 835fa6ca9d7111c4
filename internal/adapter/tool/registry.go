package tool

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"wingman/internal/domain"
	"wingman/internal/usecase/eventbus"
)

// DefaultTimeout bounds one tool execution when none is configured.
const DefaultTimeout = 30 * time.Second

type entry struct {
	def    domain.ToolDefinition
	exec   domain.ToolExecutor
	schema *jsonschema.Schema // nil when the definition has no usable schema
}

// Registry maps tool names to executors and resolves function calls.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]*entry
	order   []string
	logger  *slog.Logger
	timeout time.Duration

	bus   domain.EventBus
	owner string
}

// NewRegistry creates an empty registry. timeout bounds each execution.
func NewRegistry(logger *slog.Logger, timeout time.Duration) *Registry {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Registry{
		tools:   make(map[string]*entry),
		logger:  logger,
		timeout: timeout,
	}
}

// Timeout is the bound on each execution.
func (r *Registry) Timeout() time.Duration { return r.timeout }

// PublishTo makes the registry announce tool.call.started and
// tool.call.completed events for owner on bus.
func (r *Registry) PublishTo(bus domain.EventBus, owner string) {
	r.mu.Lock()
	r.bus, r.owner = bus, owner
	r.mu.Unlock()
}

func (r *Registry) publish(t domain.EventType, payload map[string]any) {
	r.mu.RLock()
	bus, owner := r.bus, r.owner
	r.mu.RUnlock()
	if bus == nil {
		return
	}
	bus.Publish(context.Background(), eventbus.NewEvent(t, owner, "", payload))
}

// Register adds a tool definition with its executor. Names are unique and
// the parameters schema must compile.
func (r *Registry) Register(def domain.ToolDefinition, exec domain.ToolExecutor) error {
	if def.Name == "" || exec == nil {
		return domain.NewSubSystemError("tool", "Registry.Register", domain.ErrInvalidInput, "name and executor are required")
	}
	if def.Type == "" {
		def.Type = "function"
	}
	if len(def.Parameters) == 0 {
		def.Parameters = json.RawMessage(`{"type":"object","properties":{}}`)
	}

	schema, err := compileSchema(def.Name, def.Parameters)
	if err != nil {
		return domain.NewSubSystemError("tool", "Registry.Register", domain.ErrInvalidInput, err.Error())
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[def.Name]; exists {
		return domain.NewSubSystemError("tool", "Registry.Register", domain.ErrDuplicate, def.Name)
	}
	r.tools[def.Name] = &entry{def: def, exec: exec, schema: schema}
	r.order = append(r.order, def.Name)
	return nil
}

// Definitions returns all tool definitions in registration order.
func (r *Registry) Definitions() []domain.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]domain.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.tools[name].def)
	}
	return defs
}

// Select returns the definitions of the named tools that are registered,
// in the order given. Unknown names are skipped.
func (r *Registry) Select(names []string) []domain.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]domain.ToolDefinition, 0, len(names))
	for _, name := range names {
		if e, ok := r.tools[name]; ok {
			defs = append(defs, e.def)
		}
	}
	return defs
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

func (r *Registry) lookup(name string) (*entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.tools[name]
	return e, ok
}
