// Package llm selects and binds a generative model for a request.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// DefaultPreferredModels is the preference order used when none is configured.
var DefaultPreferredModels = []string{"gemini-1.5-flash", "gemini-1.5-pro", "gemini-pro"}

// ModelCandidate is a model reported by the provider.
type ModelCandidate struct {
	ID                 string
	SupportsGeneration bool
}

// Model generates text for a single prompt.
type Model interface {
	Name() string
	GenerateContent(ctx context.Context, prompt string) (string, error)
}

// Provider enumerates and binds models.
type Provider interface {
	ListModels(ctx context.Context) ([]ModelCandidate, error)
	BindModel(id string) (Model, error)
}

// Tier records how a model was chosen.
type Tier string

const (
	TierEnumerated Tier = "enumerated"
	TierDirect     Tier = "direct"
)

// SelectedModel is a model bound for the lifetime of one request.
type SelectedModel struct {
	Model
	Tier Tier
}

// ErrModelUnavailable matches any *ModelUnavailableError.
var ErrModelUnavailable = errors.New("model not found")

var errNoCandidates = errors.New("no listed model supports generateContent")

// ModelUnavailableError is returned when neither enumeration nor direct
// binding produced a model. Err is the last underlying failure.
type ModelUnavailableError struct {
	Tried []string
	Err   error
}

func (e *ModelUnavailableError) Error() string {
	return fmt.Sprintf("llm: model not found, tried %s: %v", strings.Join(e.Tried, ", "), e.Err)
}

func (e *ModelUnavailableError) Unwrap() error { return e.Err }

func (e *ModelUnavailableError) Is(target error) bool {
	return target == ErrModelUnavailable
}

// NormalizeModelID strips the provider's "models/" resource prefix.
func NormalizeModelID(id string) string {
	return strings.TrimPrefix(strings.TrimSpace(id), "models/")
}
