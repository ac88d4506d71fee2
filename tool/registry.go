package tool

import "fmt"

type Registration struct {
	Schema  Tool
	Handler Handler
}

// Registry is the catalog of callable tools, keyed by tool name. It is
// populated once before serving and read-only afterwards, so lookups need
// no locking.
type Registry struct {
	regs  map[string]Registration
	order []string
}

func NewRegistry() *Registry {
	return &Registry{regs: make(map[string]Registration)}
}

func (r *Registry) Register(schema Tool, h Handler) error {
	if schema.Name == "" {
		return fmt.Errorf("tool schema has no name")
	}
	if h == nil {
		return fmt.Errorf("tool %q has no handler", schema.Name)
	}
	if _, ok := r.regs[schema.Name]; ok {
		return fmt.Errorf("tool %q already registered", schema.Name)
	}
	if schema.Type == "" {
		schema.Type = "function"
	}
	r.regs[schema.Name] = Registration{Schema: schema, Handler: h}
	r.order = append(r.order, schema.Name)
	return nil
}

func (r *Registry) Get(name string) (Registration, bool) {
	reg, ok := r.regs[name]
	return reg, ok
}

func (r *Registry) Len() int {
	return len(r.regs)
}

// Schemas returns the tool schemas in registration order, as sent to the
// upstream endpoint in a session update.
func (r *Registry) Schemas() []Tool {
	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.regs[name].Schema)
	}
	return out
}
