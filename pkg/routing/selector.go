package routing

import (
	"log/slog"
	"slices"

	"kageforge-hq/forge/pkg/breaker"
	"kageforge-hq/forge/pkg/providers"
)

// ProviderSelector filters the configured providers down to the candidates
// for one request. Providers are kept in declaration order.
type ProviderSelector struct {
	providers []Provider
	catalog   *providers.Catalog
	logger    *slog.Logger
}

// NewProviderSelector creates a new provider selector.
func NewProviderSelector(provs []Provider, catalog *providers.Catalog, logger *slog.Logger) *ProviderSelector {
	if catalog == nil {
		catalog = providers.NewCatalog(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ProviderSelector{
		providers: provs,
		catalog:   catalog,
		logger:    logger,
	}
}

// Candidates returns the providers that serve the requested model (or their
// default model when none is named) with every required capability. The
// provider hint narrows the list to one provider.
func (s *ProviderSelector) Candidates(req *providers.Request) ([]Candidate, error) {
	required := req.RequiredCapabilities()

	var out []Candidate
	for i, p := range s.providers {
		if req.ProviderHint != "" && p.Name() != req.ProviderHint {
			continue
		}

		modelName := req.Model
		if modelName == "" {
			modelName = p.DefaultModel
		}
		if modelName == "" || !slices.Contains(p.Models, modelName) {
			s.logger.Debug("provider excluded due to model",
				"provider", p.Name(),
				"model", modelName,
			)
			continue
		}

		model, known := s.catalog.Lookup(modelName)
		if !known {
			model = providers.Model{Name: modelName}
		}
		if len(required) > 0 && (!known || !model.Supports(required...)) {
			s.logger.Debug("provider excluded due to capabilities",
				"provider", p.Name(),
				"model", modelName,
				"required", required,
			)
			continue
		}

		out = append(out, Candidate{Provider: p, Model: model, Known: known, Order: i})
	}

	if len(out) == 0 {
		return nil, &NoCandidatesError{
			Model:        req.Model,
			Provider:     req.ProviderHint,
			Capabilities: required,
		}
	}
	return out, nil
}

// FilterByBreaker drops candidates whose breaker is open and not yet due for
// a probe. When none survive it returns a *CircuitOpenError describing every
// candidate's breaker.
func (s *ProviderSelector) FilterByBreaker(candidates []Candidate, breakers *breaker.Registry) ([]Candidate, error) {
	ready := make([]Candidate, 0, len(candidates))
	snapshots := make([]breaker.Snapshot, 0, len(candidates))

	for _, c := range candidates {
		b, ok := breakers.Get(c.Name())
		if !ok || b.Ready() {
			ready = append(ready, c)
			continue
		}
		snapshots = append(snapshots, b.Snapshot())
		s.logger.Debug("provider excluded due to open breaker", "provider", c.Name())
	}

	if len(ready) == 0 {
		return nil, &CircuitOpenError{Breakers: snapshots}
	}
	return ready, nil
}

// Providers returns every configured provider in declaration order.
func (s *ProviderSelector) Providers() []Provider {
	return s.providers
}

// Catalog returns the model catalog.
func (s *ProviderSelector) Catalog() *providers.Catalog {
	return s.catalog
}

// candidateNames extracts provider names from a candidate list.
func candidateNames(candidates []Candidate) []string {
	names := make([]string, 0, len(candidates))
	for _, c := range candidates {
		names = append(names, c.Name())
	}
	return names
}
