package monitor

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Check pings one dependency; nil means reachable.
type Check func(ctx context.Context) error

// SizeCheck reports the audit outbox backlog.
type SizeCheck func() (int, error)

// Checks groups the dependency checks. A nil check reads as unreachable.
type Checks struct {
	Postgres Check
	Redis    Check
	Outbox   SizeCheck
}

// Monitor polls dependencies so request paths can pick between direct
// audit writes and the outbox without pinging on every call.
type Monitor struct {
	checks   Checks
	interval time.Duration
	logger   *zap.Logger

	mu     sync.RWMutex
	status Status
}

func New(checks Checks, interval time.Duration, logger *zap.Logger) *Monitor {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		checks:   checks,
		interval: interval,
		logger:   logger,
	}
}

// Run refreshes the status until ctx is done.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.Refresh(ctx)
	for {
		select {
		case <-ticker.C:
			m.Refresh(ctx)
		case <-ctx.Done():
			return nil
		}
	}
}

// IsOnline reports whether postgres was reachable on the last check.
func (m *Monitor) IsOnline() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status.PostgreSQL
}

func (m *Monitor) GetStatus() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// Refresh runs every check once.
func (m *Monitor) Refresh(ctx context.Context) {
	outboxOK, outboxSize := m.checkOutbox()
	status := Status{
		PostgreSQL: m.check(ctx, "postgres", m.checks.Postgres, 3*time.Second),
		Redis:      m.check(ctx, "redis", m.checks.Redis, 2*time.Second),
		Outbox:     outboxOK,
		OutboxSize: outboxSize,
		LastCheck:  time.Now(),
	}

	m.mu.Lock()
	previous := m.status
	m.status = status
	m.mu.Unlock()

	if !previous.LastCheck.IsZero() && previous.PostgreSQL != status.PostgreSQL {
		m.logger.Info("postgres availability changed", zap.Bool("online", status.PostgreSQL))
	}
}

func (m *Monitor) check(ctx context.Context, name string, fn Check, timeout time.Duration) bool {
	if fn == nil {
		return false
	}
	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := fn(checkCtx); err != nil {
		m.logger.Debug("dependency check failed", zap.String("dependency", name), zap.Error(err))
		return false
	}
	return true
}

func (m *Monitor) checkOutbox() (bool, int) {
	if m.checks.Outbox == nil {
		return false, 0
	}
	size, err := m.checks.Outbox()
	if err != nil {
		m.logger.Warn("audit outbox size check failed", zap.Error(err))
		return false, size
	}
	return true, size
}
