package resolve

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/fastygo/rolegate/domain"
	"github.com/fastygo/rolegate/repository"
)

const (
	tierSelf       = "self"
	tierIdentifier = "identifier"
	tierDirect     = "direct"
)

// Config tunes the engine.
type Config struct {
	// Timeout bounds a whole Resolve call.
	Timeout time.Duration
	// RetryAttempts and RetryDelay control identifier-scoped lookups, which
	// absorb replication lag right after an account is created.
	RetryAttempts int
	RetryDelay    time.Duration
	// UpgradeOnFallback runs the identifier upgrade check when the direct
	// read resolves to customer.
	UpgradeOnFallback bool
}

// SignOut ends the caller's backend session and external provider session.
type SignOut interface {
	ForceSignOut(ctx context.Context) error
}

// Observer receives per-tier outcomes for metrics.
type Observer interface {
	ObserveResolution(tier, outcome string)
	ObserveIdentifierAttempt()
}

// Engine produces one RoleResolution per call from three tiers: the
// caller-scoped procedure, the identifier-scoped procedures, and a direct
// read of the user and rider tables.
type Engine struct {
	roles    repository.RoleService
	users    repository.UserRepository
	riders   repository.RiderRepository
	signOut  SignOut
	cfg      Config
	observer Observer
	logger   *zap.Logger
}

func New(
	roles repository.RoleService,
	users repository.UserRepository,
	riders repository.RiderRepository,
	signOut SignOut,
	cfg Config,
	observer Observer,
	logger *zap.Logger,
) *Engine {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 12 * time.Second
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		roles:    roles,
		users:    users,
		riders:   riders,
		signOut:  signOut,
		cfg:      cfg,
		observer: observer,
		logger:   logger,
	}
}

// Resolve returns the role resolution for userID. hint is the caller's
// phone or email and enables identifier-scoped lookups. The only errors
// returned are identity conflicts (after forcing sign-out), timeouts,
// cancellation, and total failure of every tier.
func (e *Engine) Resolve(ctx context.Context, userID, hint string) (domain.RoleResolution, error) {
	if userID == "" {
		return domain.RoleResolution{}, domain.ErrUnauthorized
	}
	if caller, ok := domain.CallerFromContext(ctx); !ok || caller.UserID != userID {
		ctx = domain.ContextWithCaller(ctx, domain.Caller{UserID: userID})
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	res, err := e.resolve(ctx, userID, hint)
	if err != nil {
		if errors.Is(err, domain.ErrIdentityConflict) {
			return domain.RoleResolution{}, err
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return domain.RoleResolution{}, domain.WrapError(domain.ErrCodeTimeout, domain.ErrResolutionTimeout.Message, err)
		}
		return domain.RoleResolution{}, err
	}
	return res, nil
}

func (e *Engine) resolve(ctx context.Context, userID, hint string) (domain.RoleResolution, error) {
	record, err := e.roles.ResolveMyRole(ctx)
	switch {
	case err == nil && record != nil:
		res, selfErr := e.fromSelf(ctx, userID, hint, *record)
		if selfErr == nil {
			e.observe(tierSelf, "ok")
			return res, nil
		}
		if errors.Is(selfErr, domain.ErrIdentityConflict) || ctx.Err() != nil {
			return domain.RoleResolution{}, selfErr
		}
		e.logger.Warn("self-scoped resolution incomplete", zap.String("user_id", userID), zap.Error(selfErr))
		e.observe(tierSelf, "error")
	case err != nil:
		if ctx.Err() != nil {
			return domain.RoleResolution{}, err
		}
		e.logger.Warn("self-scoped resolution failed", zap.String("user_id", userID), zap.Error(err))
		e.observe(tierSelf, "error")
	default:
		e.logger.Debug("self-scoped resolution returned no rows", zap.String("user_id", userID))
		e.observe(tierSelf, "empty")
	}

	res, err := e.fromDirectRead(ctx, userID, hint)
	if err == nil {
		return res, nil
	}
	if errors.Is(err, domain.ErrIdentityConflict) || ctx.Err() != nil || hint == "" {
		return domain.RoleResolution{}, err
	}
	e.logger.Warn("direct read failed, falling back to identifier lookup", zap.String("user_id", userID), zap.Error(err))
	return e.byIdentifier(ctx, userID, hint)
}

// fromSelf normalizes a row from the caller-scoped procedure.
func (e *Engine) fromSelf(ctx context.Context, userID, hint string, record repository.RoleRecord) (domain.RoleResolution, error) {
	role := domain.ParseRole(record.Role)

	if role == domain.RoleRider {
		if record.NeedsRegistration {
			return domain.RiderNeedsRegistration(), nil
		}
		if record.IsBlocked {
			return domain.BlockedRider(), nil
		}
		profile, err := e.riders.GetByUserID(ctx, userID)
		if errors.Is(err, domain.ErrRiderProfileNotFound) {
			e.logger.Warn("rider profile missing for registered rider", zap.String("user_id", userID))
			return domain.RiderResolution(domain.RiderStatusPending, false), nil
		}
		if err != nil {
			return domain.RoleResolution{}, err
		}
		return domain.RiderResolution(domain.ParseRiderStatus(profile.VerificationStatus), !profile.IsActive), nil
	}

	// A blocked account stays blocked; the upgrade check may never lift it.
	if role == domain.RoleCustomer && hint != "" && !record.IsBlocked {
		if upgraded, ok, err := e.upgrade(ctx, userID, hint); err != nil {
			return domain.RoleResolution{}, err
		} else if ok {
			return upgraded, nil
		}
	}

	// needs_registration is a rider-only state and is ignored for other roles.
	return domain.NewResolution(role, record.IsBlocked), nil
}

// upgrade checks whether hint is registered under a higher-privilege role,
// e.g. an account provisioned by an admin before the first login.
func (e *Engine) upgrade(ctx context.Context, userID, hint string) (domain.RoleResolution, bool, error) {
	res, err := e.byIdentifier(ctx, userID, hint)
	if err != nil {
		if errors.Is(err, domain.ErrIdentityConflict) || ctx.Err() != nil {
			return domain.RoleResolution{}, false, err
		}
		e.logger.Warn("upgrade check failed", zap.String("user_id", userID), zap.Error(err))
		return domain.RoleResolution{}, false, nil
	}
	if res.Role == domain.RoleCustomer {
		return domain.RoleResolution{}, false, nil
	}
	e.logger.Info("role upgraded by identifier",
		zap.String("user_id", userID),
		zap.String("role", res.Role.String()))
	return res, true, nil
}

// byIdentifier resolves through the phone or email procedure, retrying on
// errors and empty results. A claimed identifier is never retried.
func (e *Engine) byIdentifier(ctx context.Context, userID, hint string) (domain.RoleResolution, error) {
	lookup := e.roles.ResolveByPhone
	identifier := domain.NormalizePhone(hint)
	if domain.IsEmailIdentifier(hint) {
		lookup = e.roles.ResolveByEmail
		identifier = domain.NormalizeEmail(hint)
	}

	for attempt := 1; attempt <= e.cfg.RetryAttempts; attempt++ {
		e.observeAttempt()
		record, err := lookup(ctx, identifier)
		switch {
		case errors.Is(err, domain.ErrIdentifierClaimed):
			return domain.RoleResolution{}, e.conflict(ctx, userID, err)
		case err == nil && record != nil:
			e.observe(tierIdentifier, "ok")
			return e.fromIdentifier(ctx, userID, *record)
		case err != nil:
			e.logger.Warn("identifier resolution failed",
				zap.String("user_id", userID),
				zap.Int("attempt", attempt),
				zap.Error(err))
		default:
			e.logger.Debug("identifier resolution returned no rows",
				zap.String("user_id", userID),
				zap.Int("attempt", attempt))
		}

		if attempt < e.cfg.RetryAttempts {
			if err := sleep(ctx, e.cfg.RetryDelay); err != nil {
				return domain.RoleResolution{}, err
			}
		}
	}

	e.observe(tierIdentifier, "default")
	return domain.DefaultResolution(), nil
}

func (e *Engine) fromIdentifier(ctx context.Context, userID string, record repository.RoleRecord) (domain.RoleResolution, error) {
	role := domain.ParseRole(record.Role)
	if role != domain.RoleRider {
		return domain.NewResolution(role, record.IsBlocked), nil
	}
	if record.IsBlocked {
		return domain.BlockedRider(), nil
	}
	return e.riderFromProfile(ctx, userID, false)
}

// fromDirectRead reads the user and rider tables without the procedures.
func (e *Engine) fromDirectRead(ctx context.Context, userID, hint string) (domain.RoleResolution, error) {
	user, err := e.users.GetByID(ctx, userID)
	if errors.Is(err, domain.ErrUserNotFound) {
		e.observe(tierDirect, "default")
		return e.maybeUpgradeFallback(ctx, userID, hint, domain.DefaultResolution())
	}
	if err != nil {
		e.observe(tierDirect, "error")
		return domain.RoleResolution{}, err
	}

	role := domain.ParseRole(user.Role)
	if role != domain.RoleRider {
		e.observe(tierDirect, "ok")
		return e.maybeUpgradeFallback(ctx, userID, hint, domain.NewResolution(role, user.IsBlocked))
	}

	res, err := e.riderFromProfile(ctx, userID, user.IsBlocked)
	if err != nil {
		e.observe(tierDirect, "error")
		return domain.RoleResolution{}, err
	}
	e.observe(tierDirect, "ok")
	return res, nil
}

// riderFromProfile combines a rider detail record with the user's blocked
// flag. A missing record means registration is incomplete, which takes
// precedence over blocking.
func (e *Engine) riderFromProfile(ctx context.Context, userID string, blocked bool) (domain.RoleResolution, error) {
	profile, err := e.riders.GetByUserID(ctx, userID)
	if errors.Is(err, domain.ErrRiderProfileNotFound) {
		if blocked {
			e.logger.Info("blocked flag ignored for rider without profile", zap.String("user_id", userID))
		}
		return domain.RiderNeedsRegistration(), nil
	}
	if err != nil {
		return domain.RoleResolution{}, err
	}
	return domain.RiderResolution(domain.ParseRiderStatus(profile.VerificationStatus), blocked || !profile.IsActive), nil
}

func (e *Engine) maybeUpgradeFallback(ctx context.Context, userID, hint string, res domain.RoleResolution) (domain.RoleResolution, error) {
	if !e.cfg.UpgradeOnFallback || hint == "" || res.Role != domain.RoleCustomer || res.IsBlocked {
		return res, nil
	}
	upgraded, ok, err := e.upgrade(ctx, userID, hint)
	if err != nil {
		return domain.RoleResolution{}, err
	}
	if ok {
		return upgraded, nil
	}
	return res, nil
}

// conflict forces sign-out of both identity systems and returns the
// user-facing identity conflict error.
func (e *Engine) conflict(ctx context.Context, userID string, cause error) error {
	e.observe(tierIdentifier, "conflict")
	e.logger.Error("identifier claimed by a different account", zap.String("user_id", userID))

	if e.signOut != nil {
		signOutCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := e.signOut.ForceSignOut(signOutCtx); err != nil {
			e.logger.Error("forced sign-out failed", zap.String("user_id", userID), zap.Error(err))
			cause = errors.Join(cause, err)
		}
	}
	return domain.WrapError(domain.ErrCodeIdentityConflict, domain.MsgIdentityConflict, cause)
}

func (e *Engine) observe(tier, outcome string) {
	if e.observer != nil {
		e.observer.ObserveResolution(tier, outcome)
	}
}

func (e *Engine) observeAttempt() {
	if e.observer != nil {
		e.observer.ObserveIdentifierAttempt()
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
