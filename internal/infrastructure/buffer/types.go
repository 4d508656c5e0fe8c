package buffer

import (
	"time"

	"github.com/google/uuid"

	"github.com/fastygo/rolegate/domain"
)

// Entry is an audit event waiting for postgres to come back.
type Entry struct {
	ID         string            `json:"id"`
	Event      domain.AuditEvent `json:"event"`
	Retries    int               `json:"retries"`
	EnqueuedAt time.Time         `json:"enqueued_at"`

	bucketKey []byte
}

func (e *Entry) normalize() {
	if e.ID == "" {
		e.ID = e.Event.ID
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Event.ID == "" {
		e.Event.ID = e.ID
	}
	if e.EnqueuedAt.IsZero() {
		e.EnqueuedAt = time.Now().UTC()
	}
}
