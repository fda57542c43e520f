package llm

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Selector picks a model for each request. It holds no per-request state.
type Selector struct {
	provider  Provider
	preferred []string
	logger    *zap.Logger
}

// NewSelector creates a selector. An empty preference list falls back to
// DefaultPreferredModels.
func NewSelector(provider Provider, preferred []string, logger *zap.Logger) *Selector {
	if len(preferred) == 0 {
		preferred = DefaultPreferredModels
	}
	ids := make([]string, 0, len(preferred))
	for _, id := range preferred {
		if id = NormalizeModelID(id); id != "" {
			ids = append(ids, id)
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Selector{provider: provider, preferred: ids, logger: logger}
}

// Preferred returns the normalized preference order.
func (s *Selector) Preferred() []string {
	return append([]string(nil), s.preferred...)
}

// Select enumerates the provider's models and binds the best match. If
// enumeration or that bind fails, each preferred id is bound directly in order.
func (s *Selector) Select(ctx context.Context) (*SelectedModel, error) {
	var lastErr error

	candidates, err := s.provider.ListModels(ctx)
	switch {
	case err != nil:
		lastErr = fmt.Errorf("list models: %w", err)
		s.logger.Warn("model enumeration failed, binding preferred models directly", zap.Error(err))
	default:
		id, ok := Choose(candidates, s.preferred)
		if !ok {
			lastErr = errNoCandidates
			s.logger.Warn("no listed model supports generation", zap.Int("listed", len(candidates)))
			break
		}
		model, err := s.provider.BindModel(id)
		if err == nil {
			s.logger.Debug("model selected", zap.String("model", model.Name()), zap.String("tier", string(TierEnumerated)))
			return &SelectedModel{Model: model, Tier: TierEnumerated}, nil
		}
		lastErr = fmt.Errorf("bind %s: %w", id, err)
		s.logger.Warn("binding listed model failed", zap.String("model", id), zap.Error(err))
	}

	for _, id := range s.preferred {
		model, err := s.provider.BindModel(id)
		if err != nil {
			lastErr = fmt.Errorf("bind %s: %w", id, err)
			continue
		}
		s.logger.Debug("model selected", zap.String("model", model.Name()), zap.String("tier", string(TierDirect)))
		return &SelectedModel{Model: model, Tier: TierDirect}, nil
	}

	return nil, &ModelUnavailableError{Tried: s.Preferred(), Err: lastErr}
}

// Choose returns the first preferred id among the generation-capable
// candidates, else the first such candidate.
func Choose(candidates []ModelCandidate, preferred []string) (string, bool) {
	available := make(map[string]bool, len(candidates))
	var first string
	for _, c := range candidates {
		if !c.SupportsGeneration {
			continue
		}
		id := NormalizeModelID(c.ID)
		if id == "" {
			continue
		}
		if first == "" {
			first = id
		}
		available[id] = true
	}
	if first == "" {
		return "", false
	}
	for _, id := range preferred {
		if available[NormalizeModelID(id)] {
			return NormalizeModelID(id), true
		}
	}
	return first, true
}
