package bridge

import (
	"crypto/sha256"
	"encoding/base64"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/fastygo/rolegate/domain"
)

const (
	phonePrefix = "phone:"
	emailPrefix = "email:"
	secretInfo  = "rolegate synthetic credential v1"
	secretBytes = 32
)

// Credential is the synthetic (identifier, secret) pair used to sign in to
// the backend on behalf of an external identity.
type Credential struct {
	Identifier string
	Secret     string
}

// Normalize returns ext with its phone and email in canonical form.
func Normalize(ext domain.ExternalIdentity) domain.ExternalIdentity {
	ext.Phone = domain.NormalizePhone(ext.Phone)
	ext.Email = domain.NormalizeEmail(ext.Email)
	return ext
}

// Deriver turns identities into credentials. The pepper is mixed into
// every secret so identifiers alone are not enough to sign in.
type Deriver struct {
	pepper []byte
}

func NewDeriver(pepper string) Deriver {
	return Deriver{pepper: []byte(pepper)}
}

// Derive is deterministic: the same identity always yields the same
// credential. Phone takes precedence over email; the namespace prefixes keep
// phone- and email-derived accounts apart.
func (d Deriver) Derive(ext domain.ExternalIdentity) (Credential, error) {
	ext = Normalize(ext)

	var identifier string
	switch {
	case ext.Phone != "":
		identifier = phonePrefix + ext.Phone
	case domain.IsEmailIdentifier(ext.Email):
		identifier = emailPrefix + ext.Email
	default:
		return Credential{}, domain.WrapError(domain.ErrCodeInvalid, "identity has no phone or email", domain.ErrInvalidPayload)
	}

	secret, err := d.secret(identifier)
	if err != nil {
		return Credential{}, err
	}
	return Credential{Identifier: identifier, Secret: secret}, nil
}

func (d Deriver) secret(identifier string) (string, error) {
	reader := hkdf.New(sha256.New, []byte(identifier), d.pepper, []byte(secretInfo))
	key := make([]byte, secretBytes)
	if _, err := io.ReadFull(reader, key); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(key), nil
}
