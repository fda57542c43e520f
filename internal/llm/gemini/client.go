// Package gemini is a small client for the Generative Language REST API.
package gemini

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/nellyGuo1225/NoWasteLifeV2/internal/llm"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

const (
	DefaultBaseURL   = "https://generativelanguage.googleapis.com"
	DefaultTimeout   = 60 * time.Second
	apiVersion       = "v1beta"
	generateMethod   = "generateContent"
	maxResponseBytes = 4 << 20
)

var (
	tracer       = otel.Tracer("github.com/nellyGuo1225/NoWasteLifeV2/internal/llm/gemini")
	validModelID = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)
)

// Client talks to the Generative Language API with a single API key.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API endpoint.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// WithHTTPClient supplies a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithLogger sets the client's logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates a client for apiKey.
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:     apiKey,
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListModels returns every model visible to the key.
func (c *Client) ListModels(ctx context.Context) ([]llm.ModelCandidate, error) {
	ctx, span := tracer.Start(ctx, "gemini.ListModels")
	defer span.End()

	body, err := c.do(ctx, http.MethodGet, "/"+apiVersion+"/models?pageSize=1000", nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list models failed")
		return nil, err
	}

	var candidates []llm.ModelCandidate
	gjson.GetBytes(body, "models").ForEach(func(_, model gjson.Result) bool {
		id := llm.NormalizeModelID(model.Get("name").String())
		if id == "" {
			return true
		}
		supports := false
		model.Get("supportedGenerationMethods").ForEach(func(_, method gjson.Result) bool {
			if method.String() == generateMethod {
				supports = true
				return false
			}
			return true
		})
		candidates = append(candidates, llm.ModelCandidate{ID: id, SupportsGeneration: supports})
		return true
	})
	span.SetAttributes(attribute.Int("gemini.models", len(candidates)))
	return candidates, nil
}

// BindModel validates id and returns a handle; it makes no network call.
func (c *Client) BindModel(id string) (llm.Model, error) {
	name := llm.NormalizeModelID(id)
	if !validModelID.MatchString(name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidModelName, id)
	}
	return &Model{client: c, name: name}, nil
}

// Model is a bound Gemini model.
type Model struct {
	client *Client
	name   string
}

// Name returns the model id without the resource prefix.
func (m *Model) Name() string { return m.name }

// GenerateContent sends a single-turn prompt and returns the concatenated text parts.
func (m *Model) GenerateContent(ctx context.Context, prompt string) (string, error) {
	ctx, span := tracer.Start(ctx, "gemini.GenerateContent")
	defer span.End()
	span.SetAttributes(attribute.String("gemini.model", m.name))

	payload, err := sjson.SetBytes([]byte(`{"contents":[{"role":"user","parts":[{}]}]}`), "contents.0.parts.0.text", prompt)
	if err != nil {
		return "", fmt.Errorf("gemini: build payload: %w", err)
	}

	path := "/" + apiVersion + "/models/" + url.PathEscape(m.name) + ":" + generateMethod
	body, err := m.client.do(ctx, http.MethodPost, path, payload)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "generate failed")
		return "", err
	}

	if reason := gjson.GetBytes(body, "promptFeedback.blockReason").String(); reason != "" {
		return "", fmt.Errorf("%w: %s", ErrBlocked, reason)
	}

	var text strings.Builder
	gjson.GetBytes(body, "candidates.0.content.parts").ForEach(func(_, part gjson.Result) bool {
		text.WriteString(part.Get("text").String())
		return true
	})
	if text.Len() == 0 {
		finish := gjson.GetBytes(body, "candidates.0.finishReason").String()
		return "", fmt.Errorf("%w (finish reason %q)", ErrEmptyResponse, finish)
	}

	span.SetAttributes(attribute.Int("gemini.response_chars", text.Len()))
	return text.String(), nil
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("gemini: create request: %w", err)
	}
	req.Header.Set("x-goog-api-key", c.apiKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gemini: request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("gemini: read response: %w", err)
	}

	c.logger.Debug("gemini call",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newAPIError(resp.StatusCode, body)
	}
	return body, nil
}
