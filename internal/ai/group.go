package ai

import (
	"context"
	"errors"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

var errNotConfigured = errors.New("ai model not configured")

type GeneratorEntry struct {
	Name      string
	Generator IGenerator
}

type groupGenerator struct {
	names []string
	items []IGenerator
}

// NewGroupGenerator tries each generator in order until one succeeds. A
// single entry means no fallback at all.
func NewGroupGenerator(entries []GeneratorEntry) IGenerator {
	g := &groupGenerator{}
	for _, e := range entries {
		if e.Generator == nil {
			continue
		}
		g.names = append(g.names, e.Name)
		g.items = append(g.items, e.Generator)
	}
	if len(g.items) == 0 {
		return nil
	}
	return g
}

func (g *groupGenerator) Complete(ctx context.Context, system string, prompt string) (string, error) {
	lastErr := errNotConfigured
	for i, item := range g.items {
		res, err := item.Complete(ctx, system, prompt)
		if err == nil {
			return res, nil
		}
		lastErr = err
		logutil.GetLogger(ctx).Warn("generator failed", zap.Int("index", i), zap.String("name", g.names[i]), zap.Error(err))
		// later generators would fail the same way
		if ctx.Err() != nil {
			break
		}
	}
	return "", lastErr
}
