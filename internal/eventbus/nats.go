// Package eventbus publishes request outcome events to NATS.
package eventbus

import (
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Subjects
const (
	SubjectBreakdownCompleted = "nowastelife.breakdown.completed"
	SubjectDiagnosisCompleted = "nowastelife.diagnosis.completed"
	SubjectLLMFailed          = "nowastelife.llm.failed"
)

// Publisher sends events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(subject string, event any) error
}

// CompletionEvent describes a successful request. It never carries task text.
type CompletionEvent struct {
	RequestID string    `json:"request_id,omitempty"`
	Endpoint  string    `json:"endpoint"`
	Model     string    `json:"model"`
	Tier      string    `json:"tier"`
	Strategy  string    `json:"strategy"`
	Degraded  bool      `json:"degraded"`
	Items     int       `json:"items"`
	LatencyMS int64     `json:"latency_ms"`
	At        time.Time `json:"at"`
}

// FailureEvent describes a request that failed at the model.
type FailureEvent struct {
	RequestID string    `json:"request_id,omitempty"`
	Endpoint  string    `json:"endpoint"`
	Category  string    `json:"category"`
	ErrorType string    `json:"error_type"`
	At        time.Time `json:"at"`
}

// NATSPublisher publishes JSON events over a NATS connection.
type NATSPublisher struct {
	conn   *nats.Conn
	logger *zap.Logger
}

// Connect dials NATS at url.
func Connect(url string, logger *zap.Logger) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("nowastelife-api"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(3),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, err
	}
	return &NATSPublisher{conn: nc, logger: logger}, nil
}

// Publish marshals event as JSON and publishes it on subject.
func (p *NATSPublisher) Publish(subject string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.conn.Publish(subject, data)
}

// Subscribe delivers raw event payloads for subject to handler.
func (p *NATSPublisher) Subscribe(subject string, handler func(subject string, data []byte)) (*nats.Subscription, error) {
	return p.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Subject, msg.Data)
	})
}

// Healthy returns an error unless the connection is up.
func (p *NATSPublisher) Healthy() error {
	if !p.conn.IsConnected() {
		return nats.ErrConnectionClosed
	}
	return nil
}

// Close flushes pending messages and closes the connection.
func (p *NATSPublisher) Close() {
	if err := p.conn.Drain(); err != nil {
		p.logger.Warn("nats drain failed", zap.Error(err))
		p.conn.Close()
	}
}

// NopPublisher drops every event. It is used when NATS is not configured.
type NopPublisher struct{}

func (NopPublisher) Publish(string, any) error { return nil }
