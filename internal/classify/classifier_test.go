package classify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

type providerError struct{ msg string }

func (e *providerError) Error() string { return e.msg }

func TestClassifyQuota(t *testing.T) {
	tests := []struct {
		name      string
		msg       string
		wantRetry int
		hasRetry  bool
	}{
		{"retry in seconds", "429 Resource has been exhausted. Please retry in 12.5s.", 12, true},
		{"retry_delay block", "gemini: HTTP 429 RESOURCE_EXHAUSTED: quota metric free_tier_requests retry_delay {\n  seconds: 41\n}", 41, true},
		{"chinese seconds", "Quota exceeded，請 30 秒後再試", 30, true},
		{"no hint", "You exceeded your current quota", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Classify(errors.New(tt.msg))
			if c.Category != QuotaExceeded {
				t.Fatalf("expected quota category, got %s", c.Category)
			}
			if c.StatusCode() != http.StatusTooManyRequests {
				t.Errorf("expected 429, got %d", c.StatusCode())
			}
			if !tt.hasRetry {
				if c.RetryAfterSeconds != nil {
					t.Errorf("expected no retry hint, got %d", *c.RetryAfterSeconds)
				}
				if !strings.HasSuffix(c.Message, quotaTryLaterSuffix) {
					t.Errorf("expected try-later message, got %q", c.Message)
				}
				return
			}
			if c.RetryAfterSeconds == nil || *c.RetryAfterSeconds != tt.wantRetry {
				t.Fatalf("expected retry %d, got %v", tt.wantRetry, c.RetryAfterSeconds)
			}
			if !strings.Contains(c.Message, fmt.Sprintf("%d 秒後重試", tt.wantRetry)) {
				t.Errorf("message does not carry the retry hint: %q", c.Message)
			}
		})
	}
}

func TestClassifyPriority(t *testing.T) {
	// Quota wins over the other markers.
	c := Classify(errors.New("404 not found: api key quota"))
	if c.Category != QuotaExceeded {
		t.Errorf("expected quota to take priority, got %s", c.Category)
	}

	c = Classify(errors.New("models/gemini-9 is not found for API version v1beta, check your API key"))
	if c.Category != ModelUnavailable {
		t.Errorf("expected model unavailable, got %s", c.Category)
	}
	if c.Suggestion == "" {
		t.Error("model unavailable should carry a suggestion")
	}
	if c.StatusCode() != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", c.StatusCode())
	}
}

func TestClassifyAuth(t *testing.T) {
	c := Classify(errors.New("API key not valid. Please pass a valid API key."))
	if c.Category != AuthFailure {
		t.Fatalf("expected auth failure, got %s", c.Category)
	}
	if c.Message != authMessage {
		t.Errorf("unexpected message %q", c.Message)
	}
}

func TestClassifyGeneric(t *testing.T) {
	err := fmt.Errorf("generate: %w", &providerError{msg: "socket closed"})
	c := Classify(err)
	if c.Category != Generic {
		t.Fatalf("expected generic, got %s", c.Category)
	}
	if c.Message != err.Error() {
		t.Errorf("generic message must be verbatim, got %q", c.Message)
	}
	if c.ErrorType != "classify.providerError" {
		t.Errorf("expected underlying type name, got %q", c.ErrorType)
	}
	if !errors.Is(c, err) {
		t.Error("classified error should unwrap to the original")
	}
}

func TestTypeName(t *testing.T) {
	if got := TypeName(errors.New("plain")); got != "errors.errorString" {
		t.Errorf("unexpected name %q", got)
	}
	if got := TypeName(fmt.Errorf("wrapped: %w", context.DeadlineExceeded)); got != "context.deadlineExceededError" {
		t.Errorf("unexpected name %q", got)
	}
}

func TestRetryAfterTruncates(t *testing.T) {
	seconds, ok := RetryAfter("Please retry in 59.99s")
	if !ok || seconds != 59 {
		t.Errorf("expected 59, got %d (%v)", seconds, ok)
	}
	if _, ok := RetryAfter("no hint here"); ok {
		t.Error("expected no retry hint")
	}
}
