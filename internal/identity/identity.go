// Package identity verifies tokens issued by the external identity
// providers: the phone OTP provider and the email OIDC provider.
package identity

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/fastygo/rolegate/domain"
	"github.com/fastygo/rolegate/repository"
)

// Verifier turns a raw provider token into a verified external identity.
type Verifier interface {
	Verify(ctx context.Context, rawToken string) (domain.ExternalIdentity, error)
}

// Chain tries each verifier in order and rejects tokens that were revoked
// by a forced sign-out.
type Chain struct {
	verifiers   []Verifier
	revocations repository.TokenRevocations
	logger      *zap.Logger
}

func NewChain(revocations repository.TokenRevocations, logger *zap.Logger, verifiers ...Verifier) *Chain {
	if logger == nil {
		logger = zap.NewNop()
	}
	var active []Verifier
	for _, v := range verifiers {
		if v != nil {
			active = append(active, v)
		}
	}
	return &Chain{verifiers: active, revocations: revocations, logger: logger}
}

func (c *Chain) Verify(ctx context.Context, rawToken string) (domain.ExternalIdentity, error) {
	if rawToken == "" {
		return domain.ExternalIdentity{}, domain.ErrUnauthorized
	}

	var errs error
	for _, v := range c.verifiers {
		ext, err := v.Verify(ctx, rawToken)
		if err != nil {
			errs = errors.Join(errs, err)
			continue
		}
		if err := c.checkRevoked(ctx, ext); err != nil {
			return domain.ExternalIdentity{}, err
		}
		return ext, nil
	}
	c.logger.Debug("external token rejected", zap.Error(errs))
	return domain.ExternalIdentity{}, domain.WrapError(domain.ErrCodeUnauthorized, "external token rejected", errs)
}

func (c *Chain) checkRevoked(ctx context.Context, ext domain.ExternalIdentity) error {
	if c.revocations == nil || ext.TokenID == "" {
		return nil
	}
	revoked, err := c.revocations.IsRevoked(ctx, ext.TokenID)
	if err != nil {
		return err
	}
	if revoked {
		return domain.ErrTokenRevoked
	}
	return nil
}
