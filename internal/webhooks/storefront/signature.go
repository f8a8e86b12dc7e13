package storefrontwebhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strings"

	"github.com/angelmondragon/marginledger-backend/pkg/config"
)

var (
	// ErrSignatureMissing is returned when a signed delivery is required but absent.
	ErrSignatureMissing = errors.New("webhook signature missing")
	// ErrSignatureMismatch is returned when the HMAC does not match the body.
	ErrSignatureMismatch = errors.New("webhook signature mismatch")
)

// Verifier checks the base64 HMAC-SHA256 signature of a raw webhook body.
type Verifier struct {
	secret        string
	allowUnsigned bool
}

// NewVerifier builds a verifier. Unsigned deliveries are accepted only in the
// dev environment, with no secret configured and the allow flag set.
func NewVerifier(cfg config.WebhookConfig, app config.AppConfig) *Verifier {
	return &Verifier{
		secret:        strings.TrimSpace(cfg.Secret),
		allowUnsigned: cfg.AcceptsUnsigned(app),
	}
}

// AllowsUnsigned reports whether the local carve-out is active.
func (v *Verifier) AllowsUnsigned() bool {
	return v.allowUnsigned
}

func (v *Verifier) Verify(body []byte, header string) error {
	header = strings.TrimSpace(header)
	if v.secret == "" {
		if v.allowUnsigned {
			return nil
		}
		return ErrSignatureMismatch
	}
	if header == "" {
		return ErrSignatureMissing
	}
	if !hmac.Equal([]byte(Sign(body, v.secret)), []byte(header)) {
		return ErrSignatureMismatch
	}
	return nil
}

// Sign returns the signature header value for body.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
