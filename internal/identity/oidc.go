package identity

import (
	"context"
	"crypto"

	"github.com/coreos/go-oidc/v3/oidc"

	"github.com/fastygo/rolegate/domain"
)

const ProviderEmailOIDC = "email_oidc"

// OIDCVerifier accepts ID tokens from the email identity provider. Only
// tokens with a verified email are accepted.
type OIDCVerifier struct {
	verifier *oidc.IDTokenVerifier
}

// NewOIDCVerifier discovers the provider's signing keys.
func NewOIDCVerifier(ctx context.Context, issuer, clientID string) (*OIDCVerifier, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, err
	}
	return &OIDCVerifier{verifier: provider.Verifier(&oidc.Config{ClientID: clientID})}, nil
}

// NewStaticOIDCVerifier verifies against fixed public keys.
func NewStaticOIDCVerifier(issuer, clientID string, keys ...crypto.PublicKey) *OIDCVerifier {
	keySet := &oidc.StaticKeySet{PublicKeys: keys}
	return &OIDCVerifier{verifier: oidc.NewVerifier(issuer, keySet, &oidc.Config{ClientID: clientID})}
}

func (v *OIDCVerifier) Verify(ctx context.Context, rawToken string) (domain.ExternalIdentity, error) {
	token, err := v.verifier.Verify(ctx, rawToken)
	if err != nil {
		return domain.ExternalIdentity{}, domain.WrapError(domain.ErrCodeUnauthorized, "invalid id token", err)
	}

	var claims struct {
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
		TokenID       string `json:"jti"`
	}
	if err := token.Claims(&claims); err != nil {
		return domain.ExternalIdentity{}, domain.WrapError(domain.ErrCodeUnauthorized, "malformed id token claims", err)
	}
	if claims.Email == "" || !claims.EmailVerified {
		return domain.ExternalIdentity{}, domain.NewError(domain.ErrCodeUnauthorized, "email not verified")
	}

	return domain.ExternalIdentity{
		Provider: ProviderEmailOIDC,
		Subject:  token.Subject,
		TokenID:  claims.TokenID,
		Email:    claims.Email,
	}, nil
}
