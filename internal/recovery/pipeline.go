// Package recovery turns free-form model output into a JSON object by trying
// an ordered ladder of increasingly aggressive cleanup strategies.
package recovery

import (
	"bytes"
	"encoding/json"

	"github.com/tidwall/gjson"
)

// PreviewLength is the number of characters of raw output kept for diagnostics.
const PreviewLength = 200

// Schema reports whether a parsed object has the shape a caller expects.
type Schema func(doc gjson.Result) bool

// Attempt is one candidate text produced by a strategy.
type Attempt struct {
	Strategy string
	Text     string
}

// Result is a recovered JSON object. Data is the compacted object exactly as
// the model produced it.
type Result struct {
	Data     json.RawMessage
	Strategy string
	Degraded bool
	Attempts []Attempt
}

// Pipeline runs the recovery ladder against a schema.
type Pipeline struct {
	schema          Schema
	escapeFields    []string
	summaryFallback bool
	strategies      []Strategy
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithEscapedFields names the string fields whose values the re-escape
// strategy repairs.
func WithEscapedFields(fields ...string) Option {
	return func(p *Pipeline) {
		p.escapeFields = append(p.escapeFields, fields...)
	}
}

// WithSummaryFallback enables the final salvage strategy that synthesizes a
// {"summary": ...} object. Results produced by it are marked Degraded.
func WithSummaryFallback() Option {
	return func(p *Pipeline) {
		p.summaryFallback = true
	}
}

// NewPipeline builds a pipeline for the given schema. A nil schema accepts any object.
func NewPipeline(schema Schema, opts ...Option) *Pipeline {
	p := &Pipeline{schema: schema}
	for _, opt := range opts {
		opt(p)
	}
	p.strategies = p.ladder()
	return p
}

// NewBreakdownPipeline recovers task breakdown output.
func NewBreakdownPipeline(enforceRange bool) *Pipeline {
	return NewPipeline(BreakdownSchema(enforceRange), WithEscapedFields("title", "description"))
}

// NewDiagnosisPipeline recovers procrastination diagnosis output, falling back
// to a bare summary when nothing else parses.
func NewDiagnosisPipeline() *Pipeline {
	return NewPipeline(DiagnosisSchema, WithEscapedFields("summary", "cause"), WithSummaryFallback())
}

// Strategies returns the strategy names in the order they are tried.
func (p *Pipeline) Strategies() []string {
	names := make([]string, 0, len(p.strategies))
	for _, s := range p.strategies {
		names = append(names, s.Name)
	}
	return names
}

// Recover extracts the JSON object from raw. It stops at the first strategy
// whose output parses as an object and passes the schema check. When every
// strategy fails it returns an *UnrecoverableOutputError.
func (p *Pipeline) Recover(raw string) (*Result, error) {
	extracted := Extract(raw)

	var (
		attempts []Attempt
		previous = extracted
		lastErr  error
	)
	for _, s := range p.strategies {
		input := previous
		if s.FromExtracted {
			input = extracted
		}
		text, ok := s.Apply(input)
		if !ok {
			continue
		}
		previous = text
		attempts = append(attempts, Attempt{Strategy: s.Name, Text: text})

		data, err := p.accept(text)
		if err != nil {
			lastErr = err
			continue
		}
		return &Result{
			Data:     data,
			Strategy: s.Name,
			Degraded: s.Degraded,
			Attempts: attempts,
		}, nil
	}

	return nil, &UnrecoverableOutputError{
		Preview:  Preview(raw, PreviewLength),
		Attempts: len(attempts),
		Err:      lastErr,
	}
}

func (p *Pipeline) accept(text string) (json.RawMessage, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(text)); err != nil {
		return nil, err
	}
	doc := gjson.ParseBytes(buf.Bytes())
	if !doc.IsObject() {
		return nil, ErrNotObject
	}
	if p.schema != nil && !p.schema(doc) {
		return nil, ErrSchemaMismatch
	}
	return json.RawMessage(buf.Bytes()), nil
}

// Preview returns at most n characters of s.
func Preview(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
