package providers

import "slices"

// Pricing is the USD price per million tokens.
type Pricing struct {
	Input       float64
	Output      float64
	CachedInput float64
	Thinking    float64
}

// Model describes a model in the static catalog.
type Model struct {
	Name            string
	ContextWindow   int
	MaxOutputTokens int
	Capabilities    []Capability
	Pricing         Pricing
}

// Supports reports whether the model has every capability in caps.
func (m Model) Supports(caps ...Capability) bool {
	for _, c := range caps {
		if !slices.Contains(m.Capabilities, c) {
			return false
		}
	}
	return true
}

// Catalog is the immutable model catalog built at startup.
type Catalog struct {
	models map[string]Model
	order  []string
}

// NewCatalog builds a catalog. Later duplicates replace earlier entries.
func NewCatalog(models []Model) *Catalog {
	c := &Catalog{models: make(map[string]Model, len(models))}
	for _, m := range models {
		if _, ok := c.models[m.Name]; !ok {
			c.order = append(c.order, m.Name)
		}
		c.models[m.Name] = m
	}
	return c
}

// Lookup returns the model with the given name.
func (c *Catalog) Lookup(name string) (Model, bool) {
	m, ok := c.models[name]
	return m, ok
}

// Models returns the catalog in declaration order.
func (c *Catalog) Models() []Model {
	out := make([]Model, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.models[name])
	}
	return out
}
