package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const signaturePrefix = "sha256="

// ComputeSignature returns the hex HMAC-SHA256 of payload under secret.
// The same primitive signs outbound payloads for replay tooling and
// verifies inbound webhooks.
func ComputeSignature(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks an inbound webhook signature. The received value
// may carry the `sha256=` algorithm prefix. Comparison is constant time.
// Missing secret or signature fails closed here; the webhook handler owns
// the policy of what to do when no secret is configured.
func VerifySignature(secret string, payload []byte, received string) bool {
	received = strings.TrimSpace(received)
	if secret == "" || received == "" {
		return false
	}
	if len(received) >= len(signaturePrefix) && strings.EqualFold(received[:len(signaturePrefix)], signaturePrefix) {
		received = received[len(signaturePrefix):]
	}
	expected := ComputeSignature(secret, payload)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(received)))
}
