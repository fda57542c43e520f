package gemini

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tidwall/gjson"
)

var (
	// ErrBlocked is returned when the prompt was rejected by safety filters.
	ErrBlocked = errors.New("gemini: prompt blocked")
	// ErrEmptyResponse is returned when no candidate carried any text.
	ErrEmptyResponse = errors.New("gemini: empty response")
	// ErrInvalidModelName is returned by BindModel for malformed identifiers.
	ErrInvalidModelName = errors.New("gemini: invalid model name")
)

const retryInfoType = "type.googleapis.com/google.rpc.RetryInfo"

var messageRegex = regexp.MustCompile(`"message"\s*:\s*"([^"]+)"`)

// maxErrorText bounds an unstructured error body, in characters.
const maxErrorText = 300

// APIError is a non-2xx response from the Generative Language API.
type APIError struct {
	StatusCode int
	// Status is the google.rpc status name, e.g. RESOURCE_EXHAUSTED.
	Status     string
	Message    string
	RetryDelay time.Duration
}

func (e *APIError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "gemini: HTTP %d", e.StatusCode)
	if e.Status != "" {
		b.WriteString(" " + e.Status)
	}
	if e.Message != "" {
		b.WriteString(": " + e.Message)
	}
	if e.RetryDelay > 0 {
		fmt.Fprintf(&b, " retry_delay { seconds: %d }", int(e.RetryDelay.Seconds()))
	}
	return b.String()
}

func newAPIError(statusCode int, body []byte) *APIError {
	apiErr := &APIError{
		StatusCode: statusCode,
		Status:     gjson.GetBytes(body, "error.status").String(),
		Message:    ParseErrorMessage(body),
	}
	gjson.GetBytes(body, "error.details").ForEach(func(_, detail gjson.Result) bool {
		if !isRetryInfo(detail) {
			return true
		}
		if d, err := time.ParseDuration(detail.Get("retryDelay").String()); err == nil {
			apiErr.RetryDelay = d
		}
		return false
	})
	return apiErr
}

// isRetryInfo checks the "@type" key by iteration; gjson treats a leading '@'
// in a path as a modifier.
func isRetryInfo(detail gjson.Result) bool {
	found := false
	detail.ForEach(func(key, value gjson.Result) bool {
		if key.String() == "@type" {
			found = value.String() == retryInfoType
			return false
		}
		return true
	})
	return found
}

// ParseErrorMessage extracts the error message from an API response body.
func ParseErrorMessage(body []byte) string {
	if msg := gjson.GetBytes(body, "error.message"); msg.Type == gjson.String && msg.String() != "" {
		return msg.String()
	}
	if matches := messageRegex.FindSubmatch(body); len(matches) > 1 {
		return string(matches[1])
	}
	text := strings.TrimSpace(string(body))
	if utf8.RuneCountInString(text) > maxErrorText {
		text = string([]rune(text)[:maxErrorText])
	}
	return text
}
