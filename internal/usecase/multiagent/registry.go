package multiagent

import (
	"log/slog"
	"sort"
	"sync"

	"wingman/internal/domain"
)

// Registry holds the named agent sets a connection can start with.
type Registry struct {
	mu         sync.RWMutex
	sets       map[string]domain.AgentSet
	defaultKey string
	logger     *slog.Logger
}

// NewRegistry creates a Registry whose unknown keys fall back to defaultKey.
func NewRegistry(defaultKey string, logger *slog.Logger) *Registry {
	return &Registry{
		sets:       make(map[string]domain.AgentSet),
		defaultKey: defaultKey,
		logger:     logger,
	}
}

// NewDefaultRegistry returns a registry with the built-in scenarios.
func NewDefaultRegistry(logger *slog.Logger) *Registry {
	r := NewRegistry(ChatSupervisorKey, logger)
	_ = r.Register(ChatSupervisor())
	return r
}

// Register adds an agent set. Returns ErrDuplicate if the key is taken and
// ErrInvalidInput for a set without agents.
func (r *Registry) Register(set domain.AgentSet) error {
	if set.Key == "" || len(set.Agents) == 0 {
		return domain.NewDomainError("Registry.Register", domain.ErrInvalidInput, "agent set needs a key and agents")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sets[set.Key]; exists {
		return domain.NewDomainError("Registry.Register", domain.ErrDuplicate, set.Key)
	}
	r.sets[set.Key] = set
	r.logger.Info("agent set registered", "key", set.Key, "agents", set.Names())
	return nil
}

// Get returns the agent set for key, or ErrAgentSetNotFound.
func (r *Registry) Get(key string) (domain.AgentSet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set, ok := r.sets[key]
	if !ok {
		return domain.AgentSet{}, domain.NewDomainError("Registry.Get", domain.ErrAgentSetNotFound, key)
	}
	return set, nil
}

// Resolve picks the set for key, falling back to the default set, and
// reorders it so agentName is the root. An unknown agent keeps the set's
// own root.
func (r *Registry) Resolve(key, agentName string) (domain.AgentSet, domain.AgentDescriptor, error) {
	set, err := r.Get(key)
	if err != nil {
		r.logger.Warn("unknown agent set, using default", "key", key, "default", r.defaultKey)
		if set, err = r.Get(r.defaultKey); err != nil {
			return domain.AgentSet{}, domain.AgentDescriptor{}, err
		}
	}
	if agentName != "" {
		set = set.WithRoot(agentName)
	}
	root, ok := set.Root()
	if !ok {
		return domain.AgentSet{}, domain.AgentDescriptor{}, domain.NewDomainError("Registry.Resolve", domain.ErrAgentSetNotFound, set.Key)
	}
	return set, root, nil
}

// DefaultKey returns the fallback agent set key.
func (r *Registry) DefaultKey() string { return r.defaultKey }

// Keys returns the registered keys, sorted.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.sets))
	for k := range r.sets {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
