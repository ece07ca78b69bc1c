package secret

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Outbound webhook headers. Receivers recompute the HMAC over
// "<timestamp>.<payload>" and compare against X-Webhook-Signature.
const (
	HeaderSignature  = "X-Webhook-Signature"
	HeaderTimestamp  = "X-Webhook-Timestamp"
	HeaderEvent      = "X-Webhook-Event"
	HeaderDeliveryID = "X-Delivery-ID"
)

const secretByteLength = 32

// GenerateSecret returns a new high-entropy signing secret.
func GenerateSecret() (string, error) {
	raw := make([]byte, secretByteLength)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate secret: %w", err)
	}
	return "whsec_" + hex.EncodeToString(raw), nil
}

// Sign computes the hex HMAC-SHA256 signature over the timestamp-bound
// payload. Binding the timestamp into the signed bytes prevents replay.
func Sign(secret string, timestamp int64, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", timestamp)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyAny checks the supplied signature against every candidate secret using
// constant-time comparison; the first match wins.
func VerifyAny(secrets []string, timestamp int64, payload []byte, signature string) bool {
	supplied := []byte(signature)
	for _, candidate := range secrets {
		expected := []byte(Sign(candidate, timestamp, payload))
		if hmac.Equal(expected, supplied) {
			return true
		}
	}
	return false
}
