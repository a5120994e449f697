package audit

import (
	"context"
	"log/slog"
	"time"

	"docsign/internal/platform/metrics"
	"docsign/internal/platform/middleware"
)

// Publisher hands events to the worker through a bounded channel. Emit
// never blocks the calling request: when the channel is full the event is
// dropped and counted, because audit is fail-open.
type Publisher struct {
	inbox   chan Event
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewPublisher(buffer int, m *metrics.Metrics, logger *slog.Logger) *Publisher {
	if buffer <= 0 {
		buffer = 256
	}
	return &Publisher{
		inbox:   make(chan Event, buffer),
		metrics: m,
		logger:  logger,
	}
}

// Inbox is the channel the worker consumes.
func (p *Publisher) Inbox() <-chan Event { return p.inbox }

// Emit enqueues an event, stamping timestamp, category and request id.
func (p *Publisher) Emit(ctx context.Context, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.Category == "" {
		event.Category = event.Action.Category()
	}
	if event.RequestID == "" {
		event.RequestID = middleware.GetRequestID(ctx)
	}

	select {
	case p.inbox <- event:
	default:
		p.metrics.IncAuditDropped()
		p.logger.Warn("audit inbox full, event dropped", "action", event.Action)
	}
}
