package services

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/fastygo/rolegate/domain"
	"github.com/fastygo/rolegate/internal/infrastructure/buffer"
	"github.com/fastygo/rolegate/repository"
)

// ConnectionHealth abstracts the connection monitor functionality.
type ConnectionHealth interface {
	IsOnline() bool
}

// Outbox is the durable queue behind the processor.
type Outbox interface {
	Enqueue(event domain.AuditEvent) error
	Batch(limit int) ([]buffer.Entry, error)
	Remove(entry buffer.Entry) error
	Requeue(entry buffer.Entry) error
	Size() (int, error)
}

// ProcessorConfig controls how frequently the outbox is drained.
type ProcessorConfig struct {
	Interval   time.Duration
	BatchSize  int
	MaxRetries int
}

// AuditProcessor delivers security audit events to postgres, parking them
// in the outbox while the database is unreachable.
type AuditProcessor struct {
	outbox  Outbox
	monitor ConnectionHealth
	audits  repository.AuditRepository
	logger  *zap.Logger
	cron    *cron.Cron
	cfg     ProcessorConfig
}

func NewAuditProcessor(
	outbox Outbox,
	monitor ConnectionHealth,
	audits repository.AuditRepository,
	logger *zap.Logger,
	cfg ProcessorConfig,
) *AuditProcessor {
	if cfg.Interval < time.Second {
		cfg.Interval = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ap := &AuditProcessor{
		outbox:  outbox,
		monitor: monitor,
		audits:  audits,
		logger:  logger,
		cfg:     cfg,
		cron:    cron.New(cron.WithSeconds()),
	}

	schedule := fmt.Sprintf("@every %ds", int(cfg.Interval.Seconds()))
	_, _ = ap.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Interval)
		defer cancel()
		if err := ap.Drain(ctx); err != nil {
			ap.logger.Error("audit outbox drain failed", zap.Error(err))
		}
	})

	return ap
}

// Run starts the scheduler and stops it once ctx is done.
func (ap *AuditProcessor) Run(ctx context.Context) error {
	ap.cron.Start()
	ap.logger.Info("audit processor started", zap.Duration("interval", ap.cfg.Interval))

	<-ctx.Done()

	stopCtx := ap.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(ap.cfg.Interval):
	}
	ap.logger.Info("audit processor stopped")
	return nil
}

// Drain delivers one batch from the outbox.
func (ap *AuditProcessor) Drain(ctx context.Context) error {
	if ap.outbox == nil {
		return nil
	}
	if ap.monitor != nil && !ap.monitor.IsOnline() {
		ap.logger.Debug("skipping audit drain (offline)")
		return nil
	}

	entries, err := ap.outbox.Batch(ap.cfg.BatchSize)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if err := ap.audits.Insert(ctx, entry.Event); err != nil {
			ap.logger.Error("failed to deliver audit event",
				zap.String("event_id", entry.Event.ID),
				zap.Int("retries", entry.Retries),
				zap.Error(err))

			if entry.Retries+1 >= ap.cfg.MaxRetries {
				ap.logger.Warn("dropping audit event (max retries reached)",
					zap.String("event_id", entry.Event.ID),
					zap.String("user_id", entry.Event.UserID),
					zap.String("route", entry.Event.Route))
				_ = ap.outbox.Remove(entry)
				continue
			}
			if err := ap.outbox.Requeue(entry); err != nil {
				ap.logger.Error("failed to requeue audit event", zap.Error(err))
			}
			continue
		}

		if err := ap.outbox.Remove(entry); err != nil {
			ap.logger.Warn("failed to purge delivered audit event", zap.Error(err))
		}
	}
	return nil
}

// Deliver writes the event immediately when online and falls back to the outbox.
func (ap *AuditProcessor) Deliver(ctx context.Context, event domain.AuditEvent) error {
	if ap.monitor == nil || ap.monitor.IsOnline() {
		err := ap.audits.Insert(ctx, event)
		if err == nil {
			return nil
		}
		ap.logger.Warn("immediate audit insert failed, buffering", zap.Error(err))
	}
	if ap.outbox == nil {
		return fmt.Errorf("audit outbox not configured")
	}
	return ap.outbox.Enqueue(event)
}

// Size returns the number of queued audit events.
func (ap *AuditProcessor) Size() int {
	if ap.outbox == nil {
		return 0
	}
	size, err := ap.outbox.Size()
	if err != nil {
		return 0
	}
	return size
}
