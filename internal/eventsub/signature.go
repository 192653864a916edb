package eventsub

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

const signaturePrefix = "sha256="

// Signature verification errors. Malformed maps to 400, mismatch to 403.
var (
	ErrSignatureMalformed = errors.New("missing or malformed signature header")
	ErrSignatureMismatch  = errors.New("signature mismatch")
)

// ComputeSignature returns "sha256=" + hex(HMAC-SHA256(secret,
// messageID + timestamp + body)).
func ComputeSignature(secret, messageID, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(messageID))
	mac.Write([]byte(timestamp))
	mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks the inbound signature header against the expected
// HMAC using a constant-time comparison.
func VerifySignature(secret, messageID, timestamp string, body []byte, signature string) error {
	if messageID == "" || timestamp == "" || !strings.HasPrefix(signature, signaturePrefix) {
		return ErrSignatureMalformed
	}
	expected := ComputeSignature(secret, messageID, timestamp, body)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrSignatureMismatch
	}
	return nil
}
