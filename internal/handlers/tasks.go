package handlers

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nellyGuo1225/NoWasteLifeV2/internal/classify"
	"github.com/nellyGuo1225/NoWasteLifeV2/internal/eventbus"
	"github.com/nellyGuo1225/NoWasteLifeV2/internal/llm"
	"github.com/nellyGuo1225/NoWasteLifeV2/internal/middleware"
	"github.com/nellyGuo1225/NoWasteLifeV2/internal/models"
	"github.com/nellyGuo1225/NoWasteLifeV2/internal/prompts"
	"github.com/nellyGuo1225/NoWasteLifeV2/internal/recovery"
	"github.com/nellyGuo1225/NoWasteLifeV2/internal/telemetry"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("github.com/nellyGuo1225/NoWasteLifeV2/internal/handlers")

const (
	endpointBreakdown = "breakdown"
	endpointDiagnosis = "diagnosis"
)

const (
	msgInvalidJSON        = "請提供有效的 JSON 數據"
	msgTaskRequired       = "請提供任務名稱"
	msgBreakdownNoKey     = "服務器未配置 Gemini API Key"
	msgBreakdownParseFail = "解析 AI 回應失敗: "
	msgNoCompletedTasks   = "沒有已完成的任務數據"
	msgDiagnosisNoKey     = "Gemini API key 未配置"
	msgDiagnosisParseFail = "AI 分析失敗: "
)

// QuotaGuard is consulted before each provider call and told about its
// outcome so repeated quota failures can short-circuit later requests.
type QuotaGuard interface {
	Allow() bool
	RetryAfter() time.Duration
	RecordSuccess()
	RecordFailure()
	RecordQuotaFailure(retryAfter time.Duration)
}

// TaskHandler serves task breakdown and procrastination diagnosis.
type TaskHandler struct {
	selector         *llm.Selector
	geminiConfigured bool
	breakdown        *recovery.Pipeline
	diagnosis        *recovery.Pipeline
	events           eventbus.Publisher
	guard            QuotaGuard
	logger           *zap.Logger
}

// NewTaskHandler creates a task handler. events and guard may be nil.
func NewTaskHandler(selector *llm.Selector, geminiConfigured, enforceSubtaskRange bool, events eventbus.Publisher, guard QuotaGuard, logger *zap.Logger) *TaskHandler {
	if events == nil {
		events = eventbus.NopPublisher{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TaskHandler{
		selector:         selector,
		geminiConfigured: geminiConfigured,
		breakdown:        recovery.NewBreakdownPipeline(enforceSubtaskRange),
		diagnosis:        recovery.NewDiagnosisPipeline(),
		events:           events,
		guard:            guard,
		logger:           logger,
	}
}

// BreakdownTask splits a task into subtasks
func (h *TaskHandler) BreakdownTask(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "BreakdownTask")
	defer span.End()

	var req models.BreakdownRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.BadRequest(c, msgInvalidJSON)
		return
	}
	task := strings.TrimSpace(req.Task)
	if task == "" {
		middleware.BadRequest(c, msgTaskRequired)
		return
	}
	if !h.geminiConfigured {
		h.logger.Error("breakdown requested but GEMINI_API_KEY is not set")
		middleware.MissingConfiguration(c, msgBreakdownNoKey)
		return
	}

	out, ok := h.generate(ctx, c, endpointBreakdown, prompts.BuildBreakdownPrompt(task), h.breakdown, msgBreakdownParseFail)
	if !ok {
		return
	}

	items := int(gjson.GetBytes(out.result.Data, "subtasks.#").Int())
	span.SetAttributes(attribute.Int("breakdown.subtasks", items))
	h.publishCompletion(c, eventbus.SubjectBreakdownCompleted, endpointBreakdown, out, items)

	c.Data(http.StatusOK, "application/json; charset=utf-8", out.result.Data)
}

// DiagnoseProcrastination analyses completed tasks for procrastination patterns
func (h *TaskHandler) DiagnoseProcrastination(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "DiagnoseProcrastination")
	defer span.End()

	var req models.DiagnosisRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.CompletedTasks) == 0 {
		middleware.BadRequest(c, msgNoCompletedTasks)
		return
	}
	if !h.geminiConfigured {
		h.logger.Error("diagnosis requested but GEMINI_API_KEY is not set")
		middleware.MissingConfiguration(c, msgDiagnosisNoKey)
		return
	}
	span.SetAttributes(attribute.Int("diagnosis.tasks", len(req.CompletedTasks)))

	out, ok := h.generate(ctx, c, endpointDiagnosis, prompts.BuildDiagnosisPrompt(req.CompletedTasks), h.diagnosis, msgDiagnosisParseFail)
	if !ok {
		return
	}

	items := int(gjson.GetBytes(out.result.Data, "solutions.#").Int())
	h.publishCompletion(c, eventbus.SubjectDiagnosisCompleted, endpointDiagnosis, out, items)

	if out.result.Degraded {
		c.Header(middleware.DegradedHeader, "true")
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", out.result.Data)
}

type generation struct {
	model   *llm.SelectedModel
	result  *recovery.Result
	latency time.Duration
}

// generate selects a model, calls it and recovers its output. On failure it
// has already written the response.
func (h *TaskHandler) generate(ctx context.Context, c *gin.Context, endpoint, prompt string, pipeline *recovery.Pipeline, parseFailPrefix string) (*generation, bool) {
	span := trace.SpanFromContext(ctx)

	if h.guard != nil && !h.guard.Allow() {
		seconds := int(math.Ceil(h.guard.RetryAfter().Seconds()))
		if seconds < 1 {
			seconds = 1
		}
		telemetry.RateLimited.WithLabelValues("quota_breaker").Inc()
		span.SetStatus(codes.Error, string(classify.QuotaExceeded))
		h.logger.Warn("quota breaker rejected request",
			zap.String("endpoint", endpoint),
			zap.Int("retry_after", seconds),
			zap.String("request_id", middleware.GetRequestID(c)),
		)
		middleware.RespondQuota(c, classify.QuotaMessage(&seconds), &seconds)
		return nil, false
	}

	selected, err := h.selector.Select(ctx)
	if err != nil {
		h.fail(ctx, c, endpoint, err)
		return nil, false
	}
	span.SetAttributes(
		attribute.String("llm.model", selected.Name()),
		attribute.String("llm.tier", string(selected.Tier)),
	)
	telemetry.ModelSelections.WithLabelValues(selected.Name(), string(selected.Tier)).Inc()

	start := time.Now()
	raw, err := selected.GenerateContent(ctx, prompt)
	latency := time.Since(start)
	telemetry.GenerationDuration.WithLabelValues(endpoint).Observe(latency.Seconds())
	if err != nil {
		h.fail(ctx, c, endpoint, err)
		return nil, false
	}
	if h.guard != nil {
		h.guard.RecordSuccess()
	}

	result, err := pipeline.Recover(raw)
	if err != nil {
		telemetry.RecoveryOutcomes.WithLabelValues(endpoint, "failed").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "unrecoverable model output")

		detail := err.Error()
		preview := recovery.Preview(raw, recovery.PreviewLength)
		var unrecoverable *recovery.UnrecoverableOutputError
		if errors.As(err, &unrecoverable) {
			preview = unrecoverable.Preview
			if unrecoverable.Err != nil {
				detail = unrecoverable.Err.Error()
			}
		}
		h.logger.Error("model output could not be recovered",
			zap.String("endpoint", endpoint),
			zap.String("model", selected.Name()),
			zap.Int("raw_length", len(raw)),
			zap.String("request_id", middleware.GetRequestID(c)),
			zap.Error(err),
			zap.Stack("stack"),
		)
		middleware.RespondUnrecoverable(c, parseFailPrefix+detail, preview)
		return nil, false
	}

	telemetry.RecoveryOutcomes.WithLabelValues(endpoint, result.Strategy).Inc()
	span.SetAttributes(attribute.String("recovery.strategy", result.Strategy))
	if result.Strategy != recovery.StrategyDirect {
		h.logger.Warn("model output needed recovery",
			zap.String("endpoint", endpoint),
			zap.String("strategy", result.Strategy),
			zap.Int("attempts", len(result.Attempts)),
			zap.Bool("degraded", result.Degraded),
		)
	}

	return &generation{model: selected, result: result, latency: latency}, true
}

func (h *TaskHandler) fail(ctx context.Context, c *gin.Context, endpoint string, err error) {
	classified := classify.Classify(err)

	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, string(classified.Category))
	telemetry.ClassifiedErrors.WithLabelValues(endpoint, string(classified.Category)).Inc()

	h.logger.Error("model call failed",
		zap.String("endpoint", endpoint),
		zap.String("category", string(classified.Category)),
		zap.String("error_type", classified.ErrorType),
		zap.String("request_id", middleware.GetRequestID(c)),
		zap.Error(err),
		zap.Stack("stack"),
	)

	if h.guard != nil {
		if classified.Category == classify.QuotaExceeded {
			var retryAfter time.Duration
			if classified.RetryAfterSeconds != nil {
				retryAfter = time.Duration(*classified.RetryAfterSeconds) * time.Second
			}
			h.guard.RecordQuotaFailure(retryAfter)
		} else {
			h.guard.RecordFailure()
		}
	}

	h.publish(eventbus.SubjectLLMFailed, eventbus.FailureEvent{
		RequestID: middleware.GetRequestID(c),
		Endpoint:  endpoint,
		Category:  string(classified.Category),
		ErrorType: classified.ErrorType,
		At:        time.Now().UTC(),
	})

	middleware.RespondClassified(c, classified)
}

func (h *TaskHandler) publishCompletion(c *gin.Context, subject, endpoint string, out *generation, items int) {
	h.publish(subject, eventbus.CompletionEvent{
		RequestID: middleware.GetRequestID(c),
		Endpoint:  endpoint,
		Model:     out.model.Name(),
		Tier:      string(out.model.Tier),
		Strategy:  out.result.Strategy,
		Degraded:  out.result.Degraded,
		Items:     items,
		LatencyMS: out.latency.Milliseconds(),
		At:        time.Now().UTC(),
	})
}

func (h *TaskHandler) publish(subject string, event any) {
	if err := h.events.Publish(subject, event); err != nil {
		h.logger.Warn("failed to publish event", zap.String("subject", subject), zap.Error(err))
	}
}
