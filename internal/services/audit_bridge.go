package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/fastygo/rolegate/domain"
	"github.com/fastygo/rolegate/usecase/gate"
)

// AuditBridge adapts the processor to the gate's audit sink.
type AuditBridge struct {
	processor *AuditProcessor
}

func NewAuditBridge(processor *AuditProcessor) *AuditBridge {
	return &AuditBridge{processor: processor}
}

func (b *AuditBridge) Record(ctx context.Context, event domain.AuditEvent) error {
	if b.processor == nil || event.UserID == "" || event.Route == "" {
		return domain.ErrInvalidPayload
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	return b.processor.Deliver(ctx, event)
}

var _ gate.AuditSink = (*AuditBridge)(nil)
