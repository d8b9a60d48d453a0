package ai

import (
	"fmt"

	"github.com/xxxsen/docchat/internal/config"
)

// BuildFromConfig creates every configured provider once. Generators fall
// back in order only when generator_fallback is set.
func BuildFromConfig(cfg config.AIConfig) (IGenerator, IEmbedder, error) {
	providers := make(map[string]IProvider, len(cfg.Providers))
	for _, pc := range cfg.Providers {
		name := pc.Name
		if name == "" {
			name = pc.Type
		}
		if _, ok := providers[name]; ok {
			return nil, nil, fmt.Errorf("duplicate ai provider: %s", name)
		}
		p, err := NewProvider(pc.Type, pc.Data)
		if err != nil {
			return nil, nil, fmt.Errorf("init ai provider %s: %w", name, err)
		}
		providers[name] = p
	}
	if len(cfg.Embedders) != 1 {
		return nil, nil, fmt.Errorf("exactly one ai embedder is required, got %d", len(cfg.Embedders))
	}
	if len(cfg.Generators) == 0 {
		return nil, nil, fmt.Errorf("ai generators are required")
	}
	if len(cfg.Generators) > 1 && !cfg.GeneratorFallback {
		return nil, nil, fmt.Errorf("multiple ai generators need generator_fallback enabled")
	}
	gens := make([]GeneratorEntry, 0, len(cfg.Generators))
	for _, ref := range cfg.Generators {
		p, ok := providers[ref.Provider]
		if !ok {
			return nil, nil, fmt.Errorf("generator references unknown provider: %s", ref.Provider)
		}
		gens = append(gens, GeneratorEntry{Name: ref.Provider + "/" + ref.Model, Generator: NewGenerator(p, ref.Model)})
	}
	// query and chunk vectors must come from the same model, so there is
	// no embedder fallback
	ref := cfg.Embedders[0]
	p, ok := providers[ref.Provider]
	if !ok {
		return nil, nil, fmt.Errorf("embedder references unknown provider: %s", ref.Provider)
	}
	return NewGroupGenerator(gens), NewEmbedder(p, ref.Model), nil
}
