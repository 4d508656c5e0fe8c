package auth

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/fastygo/rolegate/domain"
	"github.com/fastygo/rolegate/repository"
)

// Options groups the dependencies of the backend session service.
type Options struct {
	Accounts    repository.AccountRepository
	Sessions    repository.SessionRepository
	Events      repository.SessionEvents
	Revocations repository.TokenRevocations
	TTL         time.Duration
	BcryptCost  int
	Logger      *zap.Logger
}

// UseCase is the backend's own session system. It only understands
// synthetic credentials; external identities are bridged onto it.
type UseCase struct {
	accounts    repository.AccountRepository
	sessions    repository.SessionRepository
	events      repository.SessionEvents
	revocations repository.TokenRevocations
	ttl         time.Duration
	bcryptCost  int
	logger      *zap.Logger
	now         func() time.Time
}

func New(opts Options) *UseCase {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.TTL <= 0 {
		opts.TTL = 24 * time.Hour
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	return &UseCase{
		accounts:    opts.Accounts,
		sessions:    opts.Sessions,
		events:      opts.Events,
		revocations: opts.Revocations,
		ttl:         opts.TTL,
		bcryptCost:  opts.BcryptCost,
		logger:      opts.Logger,
		now:         time.Now,
	}
}

// SignIn verifies a synthetic credential and issues a session. Unknown
// identifiers and wrong secrets both return domain.ErrInvalidCredentials.
func (uc *UseCase) SignIn(ctx context.Context, identifier, secret string, ext domain.ExternalIdentity) (*domain.Session, error) {
	account, err := uc.accounts.GetByIdentifier(ctx, identifier)
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.SecretHash), []byte(secret)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}

	now := uc.now()
	session := &domain.Session{
		ID:        uuid.NewString(),
		UserID:    account.UserID,
		Phone:     ext.Phone,
		Email:     ext.Email,
		TokenID:   ext.TokenID,
		CreatedAt: now,
		ExpiresAt: now.Add(uc.ttl),
	}
	if ext.Provider != "" {
		session.Metadata = map[string]string{"provider": ext.Provider}
	}

	if err := uc.sessions.Save(ctx, session); err != nil {
		return nil, err
	}
	uc.publish(ctx, domain.SessionSignedIn, session)
	return session, nil
}

// SignUp creates the account for a synthetic credential. An existing
// identifier returns domain.ErrAccountExists.
func (uc *UseCase) SignUp(ctx context.Context, identifier, secret string, ext domain.ExternalIdentity) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), uc.bcryptCost)
	if err != nil {
		return err
	}
	account := &domain.Account{
		Identifier: identifier,
		SecretHash: string(hash),
	}
	if err := uc.accounts.Create(ctx, account, ext.Phone, ext.Email); err != nil {
		return err
	}
	uc.logger.Info("backend account created",
		zap.String("user_id", account.UserID),
		zap.String("identifier", identifier))
	return nil
}

func (uc *UseCase) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	session, err := uc.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.IsExpired(uc.now()) {
		if err := uc.sessions.Delete(ctx, sessionID); err != nil {
			uc.logger.Debug("expired session cleanup failed", zap.String("session_id", sessionID), zap.Error(err))
		}
		return nil, domain.ErrSessionNotFound
	}
	return session, nil
}

func (uc *UseCase) RefreshSession(ctx context.Context, sessionID string, ttl time.Duration) (*domain.Session, error) {
	if ttl <= 0 {
		ttl = uc.ttl
	}
	session, err := uc.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := uc.sessions.Extend(ctx, sessionID, int(ttl.Seconds())); err != nil {
		return nil, err
	}
	session.ExpiresAt = uc.now().Add(ttl)
	uc.publish(ctx, domain.SessionRefreshed, session)
	return session, nil
}

func (uc *UseCase) RevokeSession(ctx context.Context, sessionID string) error {
	session, err := uc.sessions.Get(ctx, sessionID)
	if err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
		return err
	}
	if err := uc.sessions.Delete(ctx, sessionID); err != nil {
		return err
	}
	if session != nil {
		uc.publish(ctx, domain.SessionSignedOut, session)
	}
	return nil
}

// ForceSignOut ends every backend session of the caller bound in ctx and
// revokes the external provider token the caller signed in with.
func (uc *UseCase) ForceSignOut(ctx context.Context) error {
	caller, ok := domain.CallerFromContext(ctx)
	if !ok {
		return domain.ErrUnauthorized
	}

	var result error
	ids, err := uc.sessions.ListByUser(ctx, caller.UserID)
	if err != nil {
		result = errors.Join(result, err)
	}
	if caller.SessionID != "" && !slices.Contains(ids, caller.SessionID) {
		ids = append(ids, caller.SessionID)
	}
	for _, id := range ids {
		if err := uc.sessions.Delete(ctx, id); err != nil {
			result = errors.Join(result, err)
			continue
		}
		uc.publish(ctx, domain.SessionSignedOut, &domain.Session{ID: id, UserID: caller.UserID})
	}

	if uc.revocations != nil && caller.ExternalTokenID != "" {
		if err := uc.revocations.Revoke(ctx, caller.ExternalTokenID); err != nil {
			result = errors.Join(result, err)
		}
	}

	uc.logger.Warn("forced sign-out",
		zap.String("user_id", caller.UserID),
		zap.Int("sessions", len(ids)),
		zap.Error(result))
	return result
}

func (uc *UseCase) publish(ctx context.Context, kind domain.SessionEventKind, session *domain.Session) {
	if uc.events == nil || session == nil {
		return
	}
	event := domain.SessionEvent{
		Kind:      kind,
		SessionID: session.ID,
		UserID:    session.UserID,
		At:        uc.now(),
	}
	if err := uc.events.Publish(ctx, event); err != nil {
		uc.logger.Warn("session event publish failed",
			zap.String("kind", string(kind)),
			zap.String("session_id", session.ID),
			zap.Error(err))
	}
}
