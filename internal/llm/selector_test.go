package llm

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"go.uber.org/zap"
)

type stubModel struct{ name string }

func (m *stubModel) Name() string { return m.name }

func (m *stubModel) GenerateContent(ctx context.Context, prompt string) (string, error) {
	return "", nil
}

type stubProvider struct {
	candidates []ModelCandidate
	listErr    error
	bindable   map[string]bool
	bound      []string
}

func (p *stubProvider) ListModels(ctx context.Context) ([]ModelCandidate, error) {
	return p.candidates, p.listErr
}

func (p *stubProvider) BindModel(id string) (Model, error) {
	p.bound = append(p.bound, id)
	if p.bindable != nil && !p.bindable[id] {
		return nil, errors.New("404 model " + id + " is not found")
	}
	return &stubModel{name: id}, nil
}

func TestSelectPrefersListedPreferredModel(t *testing.T) {
	provider := &stubProvider{candidates: []ModelCandidate{
		{ID: "models/gemini-2.0-flash", SupportsGeneration: true},
		{ID: "models/embedding-001", SupportsGeneration: false},
		{ID: "models/gemini-1.5-pro", SupportsGeneration: true},
	}}
	selector := NewSelector(provider, nil, zap.NewNop())

	selected, err := selector.Select(context.Background())
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if selected.Name() != "gemini-1.5-pro" {
		t.Errorf("expected gemini-1.5-pro, got %s", selected.Name())
	}
	if selected.Tier != TierEnumerated {
		t.Errorf("expected enumerated tier, got %s", selected.Tier)
	}
}

func TestSelectFallsBackToFirstCandidate(t *testing.T) {
	provider := &stubProvider{candidates: []ModelCandidate{
		{ID: "models/embedding-001"},
		{ID: "models/gemini-2.5-flash", SupportsGeneration: true},
	}}
	selected, err := NewSelector(provider, nil, zap.NewNop()).Select(context.Background())
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if selected.Name() != "gemini-2.5-flash" {
		t.Errorf("expected first generation-capable candidate, got %s", selected.Name())
	}
}

func TestSelectBindsDirectlyWhenEnumerationFails(t *testing.T) {
	provider := &stubProvider{
		listErr:  errors.New("connection reset"),
		bindable: map[string]bool{"gemini-1.5-pro": true},
	}
	selected, err := NewSelector(provider, nil, zap.NewNop()).Select(context.Background())
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if selected.Name() != "gemini-1.5-pro" || selected.Tier != TierDirect {
		t.Errorf("unexpected selection %s (%s)", selected.Name(), selected.Tier)
	}
	if want := []string{"gemini-1.5-flash", "gemini-1.5-pro"}; !reflect.DeepEqual(provider.bound, want) {
		t.Errorf("expected bind order %v, got %v", want, provider.bound)
	}
}

func TestSelectBindsDirectlyWhenNoCandidates(t *testing.T) {
	provider := &stubProvider{}
	selected, err := NewSelector(provider, []string{"models/gemini-pro"}, zap.NewNop()).Select(context.Background())
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if selected.Name() != "gemini-pro" || selected.Tier != TierDirect {
		t.Errorf("unexpected selection %s (%s)", selected.Name(), selected.Tier)
	}
}

func TestSelectExhausted(t *testing.T) {
	provider := &stubProvider{
		listErr:  errors.New("unreachable"),
		bindable: map[string]bool{},
	}
	_, err := NewSelector(provider, []string{"a", "b"}, zap.NewNop()).Select(context.Background())
	if !errors.Is(err, ErrModelUnavailable) {
		t.Fatalf("expected ErrModelUnavailable, got %v", err)
	}
	var unavailable *ModelUnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected *ModelUnavailableError, got %T", err)
	}
	if unavailable.Err == nil || unavailable.Err.Error() != "bind b: 404 model b is not found" {
		t.Errorf("expected last bind error, got %v", unavailable.Err)
	}
}

func TestChoose(t *testing.T) {
	if _, ok := Choose(nil, DefaultPreferredModels); ok {
		t.Error("expected no choice from an empty candidate list")
	}
	id, ok := Choose([]ModelCandidate{{ID: "gemini-pro", SupportsGeneration: true}}, []string{"models/gemini-pro"})
	if !ok || id != "gemini-pro" {
		t.Errorf("expected gemini-pro, got %q", id)
	}
}
