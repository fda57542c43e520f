// Package classify maps provider failures onto user-facing error categories.
package classify

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"regexp"
	"strconv"
	"strings"
)

// Category is the kind of failure reported to the caller.
type Category string

const (
	QuotaExceeded    Category = "quota_exceeded"
	ModelUnavailable Category = "model_unavailable"
	AuthFailure      Category = "auth_failure"
	Generic          Category = "generic"
)

const (
	quotaMessage          = "API 配額已用完。免費層每天限制 20 次請求。"
	quotaRetryInSuffix    = " 請在 %d 秒後重試。"
	quotaTryLaterSuffix   = " 請稍後再試，或明天再使用此功能。"
	modelMessage          = "Gemini 模型不可用，請檢查 API 版本和模型名稱"
	modelSuggestion       = "嘗試使用 gemini-1.5-flash 或 gemini-1.5-pro"
	authMessage           = "Gemini API Key 無效或已過期，請檢查 .env 文件"
	unknownFailureMessage = "unknown error"
)

// ClassifiedError is a failure ready to be rendered to the caller.
type ClassifiedError struct {
	Category          Category
	Message           string
	RetryAfterSeconds *int
	Suggestion        string
	// ErrorType is the Go type name of the underlying error.
	ErrorType string
	Err       error
}

func (e *ClassifiedError) Error() string { return e.Message }

func (e *ClassifiedError) Unwrap() error { return e.Err }

// StatusCode is the HTTP status the failure is reported with.
func (e *ClassifiedError) StatusCode() int {
	if e.Category == QuotaExceeded {
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}

type rule struct {
	category Category
	markers  []string
}

// Rules are checked in order against the lower-cased message; the first hit wins.
var rules = []rule{
	{QuotaExceeded, []string{"429", "quota", "quota exceeded", "exceeded your current quota", "free_tier_requests"}},
	{ModelUnavailable, []string{"not found", "404"}},
	{AuthFailure, []string{"api key", "authentication"}},
}

var retryPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)retry in ([\d.]+)s`),
	regexp.MustCompile(`(?is)retry_delay.*?seconds[:\s]+(\d+)`),
	regexp.MustCompile(`(\d+\.?\d*)\s*秒`),
}

// Classify inspects the error message and returns the matching category.
func Classify(err error) *ClassifiedError {
	if err == nil {
		return &ClassifiedError{Category: Generic, Message: unknownFailureMessage}
	}
	msg := err.Error()
	lower := strings.ToLower(msg)

	category := Generic
	for _, r := range rules {
		if containsAny(lower, r.markers) {
			category = r.category
			break
		}
	}

	classified := &ClassifiedError{Category: category, ErrorType: TypeName(err), Err: err}
	switch category {
	case QuotaExceeded:
		if seconds, ok := RetryAfter(msg); ok {
			classified.RetryAfterSeconds = &seconds
		}
		classified.Message = QuotaMessage(classified.RetryAfterSeconds)
	case ModelUnavailable:
		classified.Message = modelMessage
		classified.Suggestion = modelSuggestion
	case AuthFailure:
		classified.Message = authMessage
	default:
		classified.Message = msg
	}
	return classified
}

// QuotaMessage builds the quota exhaustion message, with a retry hint when known.
func QuotaMessage(retryAfterSeconds *int) string {
	if retryAfterSeconds != nil {
		return quotaMessage + fmt.Sprintf(quotaRetryInSuffix, *retryAfterSeconds)
	}
	return quotaMessage + quotaTryLaterSuffix
}

// RetryAfter extracts a retry delay in whole seconds from a provider message.
// Fractional values are truncated.
func RetryAfter(msg string) (int, bool) {
	for _, re := range retryPatterns {
		m := re.FindStringSubmatch(msg)
		if m == nil {
			continue
		}
		seconds, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		return int(seconds), true
	}
	return 0, false
}

// TypeName names the first error in the chain that is not a plain wrapper,
// qualified by its package name.
func TypeName(err error) string {
	outer := typeString(err)
	for e := err; e != nil; e = errors.Unwrap(e) {
		name := typeString(e)
		if !strings.HasPrefix(name, "fmt.") && !strings.HasPrefix(name, "errors.") {
			return name
		}
	}
	return outer
}

func typeString(err error) string {
	t := reflect.TypeOf(err)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.String()
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
