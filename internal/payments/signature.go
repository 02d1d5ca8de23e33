package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"
)

var (
	// ErrSignatureMismatch is returned when the supplied signature does not match.
	ErrSignatureMismatch = errors.New("payments: signature mismatch")
	// ErrVerifierNotConfigured is returned when no secret exists and unsafe mode is off.
	ErrVerifierNotConfigured = errors.New("payments: verification secret not configured")
)

// SignatureVerifier checks HMAC-SHA256 signatures over "<provider_order_id>|<provider_payment_id>".
type SignatureVerifier struct {
	secret []byte
	unsafe bool
}

// NewSignatureVerifier builds a verifier. With unsafeDev set every signature is accepted.
func NewSignatureVerifier(secret string, unsafeDev bool) *SignatureVerifier {
	return &SignatureVerifier{secret: []byte(secret), unsafe: unsafeDev}
}

// Unsafe reports whether signature checks are skipped.
func (v *SignatureVerifier) Unsafe() bool { return v.unsafe }

// Verify compares the supplied hex or base64 signature in constant time.
func (v *SignatureVerifier) Verify(providerOrderID, providerPaymentID, signature string) error {
	if v.unsafe {
		return nil
	}
	if len(v.secret) == 0 {
		return ErrVerifierNotConfigured
	}
	supplied, ok := decodeSignature(strings.TrimSpace(signature))
	if !ok {
		return ErrSignatureMismatch
	}
	if !hmac.Equal(mac(v.secret, providerOrderID, providerPaymentID), supplied) {
		return ErrSignatureMismatch
	}
	return nil
}

// Sign returns the hex signature a provider would attach to the pair.
func Sign(secret, providerOrderID, providerPaymentID string) string {
	return hex.EncodeToString(mac([]byte(secret), providerOrderID, providerPaymentID))
}

func mac(secret []byte, providerOrderID, providerPaymentID string) []byte {
	h := hmac.New(sha256.New, secret)
	h.Write([]byte(providerOrderID + "|" + providerPaymentID))
	return h.Sum(nil)
}

func decodeSignature(value string) ([]byte, bool) {
	if value == "" {
		return nil, false
	}
	if decoded, err := hex.DecodeString(value); err == nil {
		return decoded, true
	}
	if decoded, err := base64.StdEncoding.DecodeString(value); err == nil {
		return decoded, true
	}
	if decoded, err := base64.RawURLEncoding.DecodeString(value); err == nil {
		return decoded, true
	}
	return nil, false
}
