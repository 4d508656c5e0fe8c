package identity

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v4"

	"github.com/fastygo/rolegate/domain"
)

const ProviderPhoneOTP = "phone_otp"

// OTPVerifier accepts HS256 tokens minted by the phone OTP provider after a
// successful code check.
type OTPVerifier struct {
	secret []byte
	issuer string
}

func NewOTPVerifier(secret, issuer string) *OTPVerifier {
	return &OTPVerifier{secret: []byte(secret), issuer: issuer}
}

func (v *OTPVerifier) Verify(_ context.Context, rawToken string) (domain.ExternalIdentity, error) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(rawToken, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return domain.ExternalIdentity{}, domain.WrapError(domain.ErrCodeUnauthorized, "invalid otp token", err)
	}
	if v.issuer != "" && !claims.VerifyIssuer(v.issuer, true) {
		return domain.ExternalIdentity{}, domain.NewError(domain.ErrCodeUnauthorized, "unexpected otp token issuer")
	}

	ext := domain.ExternalIdentity{
		Provider: ProviderPhoneOTP,
		Subject:  stringClaim(claims, "sub"),
		TokenID:  stringClaim(claims, "jti"),
		Phone:    stringClaim(claims, "phone_number"),
		Email:    stringClaim(claims, "email"),
	}
	if ext.Phone == "" {
		ext.Phone = stringClaim(claims, "phone")
	}
	if ext.IsZero() {
		return domain.ExternalIdentity{}, domain.NewError(domain.ErrCodeUnauthorized, "otp token carries no phone or email")
	}
	return ext, nil
}

func stringClaim(claims jwt.MapClaims, key string) string {
	if v, ok := claims[key].(string); ok {
		return v
	}
	return ""
}
