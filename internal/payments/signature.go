// Package payments integrates the Wompi payment gateway: outbound charge and
// subscription management, plus inbound webhook signature verification.
package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"

	"whatsbot/internal/common/errors"
)

// VerifySignature checks the webhook HMAC over the raw request body. The
// gateway signs the exact bytes it sends, SHA-256 keyed with the shared
// secret, base64 encoded in the signature header. Comparison is constant
// time.
func VerifySignature(body []byte, signature, secret string) error {
	if signature == "" {
		return errors.NewSignatureInvalidError("missing signature header")
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return errors.NewSignatureInvalidError("signature mismatch")
	}
	return nil
}
