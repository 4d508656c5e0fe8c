package bridge

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/fastygo/rolegate/domain"
)

// Accounts is the backend session system the bridge signs in to.
type Accounts interface {
	SignIn(ctx context.Context, identifier, secret string, ext domain.ExternalIdentity) (*domain.Session, error)
	SignUp(ctx context.Context, identifier, secret string, ext domain.ExternalIdentity) error
}

// Observer receives bridge outcomes for metrics.
type Observer interface {
	ObserveBridge(outcome string)
}

// Bridge makes externally verified identities usable as backend sessions,
// creating the backend account on first use.
type Bridge struct {
	accounts Accounts
	deriver  Deriver
	timeout  time.Duration
	observer Observer
	logger   *zap.Logger
}

func New(accounts Accounts, deriver Deriver, timeout time.Duration, observer Observer, logger *zap.Logger) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 12 * time.Second
	}
	return &Bridge{
		accounts: accounts,
		deriver:  deriver,
		timeout:  timeout,
		observer: observer,
		logger:   logger,
	}
}

// Bridge signs in with the credential derived from ext. On invalid
// credentials it creates the account and signs in again. An account that
// already exists counts as created. Provider and network failures are
// returned as *domain.IdentityBridgeError without retrying.
func (b *Bridge) Bridge(ctx context.Context, ext domain.ExternalIdentity) (*domain.Session, error) {
	ext = Normalize(ext)
	cred, err := b.deriver.Derive(ext)
	if err != nil {
		return nil, b.fail("derive", err)
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	session, err := b.accounts.SignIn(ctx, cred.Identifier, cred.Secret, ext)
	if err == nil {
		b.observe("signed_in")
		return session, nil
	}
	if !errors.Is(err, domain.ErrInvalidCredentials) {
		return nil, b.fail("sign_in", timeoutAware(ctx, err))
	}

	if err := b.accounts.SignUp(ctx, cred.Identifier, cred.Secret, ext); err != nil && !errors.Is(err, domain.ErrAccountExists) {
		return nil, b.fail("sign_up", timeoutAware(ctx, err))
	}

	session, err = b.accounts.SignIn(ctx, cred.Identifier, cred.Secret, ext)
	if err != nil {
		return nil, b.fail("sign_in_after_sign_up", timeoutAware(ctx, err))
	}

	b.logger.Info("external identity bridged",
		zap.String("identifier", cred.Identifier),
		zap.String("user_id", session.UserID))
	b.observe("created")
	return session, nil
}

func (b *Bridge) fail(stage string, err error) error {
	b.logger.Error("identity bridge failed", zap.String("stage", stage), zap.Error(err))
	b.observe("failed")
	return &domain.IdentityBridgeError{Stage: stage, Err: err}
}

func (b *Bridge) observe(outcome string) {
	if b.observer != nil {
		b.observer.ObserveBridge(outcome)
	}
}

func timeoutAware(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return domain.WrapError(domain.ErrCodeTimeout, "identity bridge timed out", err)
	}
	return err
}
