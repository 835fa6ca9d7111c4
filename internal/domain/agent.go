package domain

// AgentDescriptor configures one realtime agent.
type AgentDescriptor struct {
	Name         string   `json:"name"`
	Description  string   `json:"description,omitempty"`
	Instructions string   `json:"instructions"`
	Tools        []string `json:"tools"`
	Voice        string   `json:"voice"`
	Handoffs     []string `json:"handoffs,omitempty"`
}

// AgentSet is an ordered list of agents; the first is the root agent the
// connection starts with.
type AgentSet struct {
	Key         string            `json:"key"`
	CompanyName string            `json:"companyName"`
	Agents      []AgentDescriptor `json:"agents"`
}

// Find returns the agent named name.
func (s AgentSet) Find(name string) (AgentDescriptor, bool) {
	for _, a := range s.Agents {
		if a.Name == name {
			return a, true
		}
	}
	return AgentDescriptor{}, false
}

// Root returns the first agent of the set.
func (s AgentSet) Root() (AgentDescriptor, bool) {
	if len(s.Agents) == 0 {
		return AgentDescriptor{}, false
	}
	return s.Agents[0], true
}

// WithRoot returns a copy of the set reordered so name comes first. Unknown
// names leave the order unchanged.
func (s AgentSet) WithRoot(name string) AgentSet {
	out := s
	out.Agents = make([]AgentDescriptor, 0, len(s.Agents))
	idx := -1
	for i, a := range s.Agents {
		if a.Name == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		out.Agents = append(out.Agents, s.Agents...)
		return out
	}
	out.Agents = append(out.Agents, s.Agents[idx])
	out.Agents = append(out.Agents, s.Agents[:idx]...)
	out.Agents = append(out.Agents, s.Agents[idx+1:]...)
	return out
}

// Names returns the agent names in order.
func (s AgentSet) Names() []string {
	names := make([]string, len(s.Agents))
	for i, a := range s.Agents {
		names[i] = a.Name
	}
	return names
}
