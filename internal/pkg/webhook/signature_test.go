package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
)

func sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignatureAcceptsValid(t *testing.T) {
	payload := []byte(`{"event":"message.received"}`)
	secret := "topsecret"

	assert.True(t, VerifySignature(payload, sign(payload, secret), secret))
}

func TestVerifySignatureToleratesWhitespaceAndCase(t *testing.T) {
	payload := []byte(`{"event":"tip.received"}`)
	secret := "topsecret"
	sig := sign(payload, secret)

	assert.True(t, VerifySignature(payload, "  "+sig+"\n", secret))
	assert.True(t, VerifySignature(payload, sig, " "+secret+" "))
}

func TestVerifySignatureRejectsTampering(t *testing.T) {
	payload := []byte(`{"event":"tip.received","data":{"amount":10}}`)
	secret := "topsecret"
	sig := sign(payload, secret)

	tampered := []byte(`{"event":"tip.received","data":{"amount":99}}`)
	assert.False(t, VerifySignature(tampered, sig, secret))
	assert.False(t, VerifySignature(payload, sig, "othersecret"))

	// Flip one hex digit.
	flipped := []byte(sig)
	if flipped[0] == 'a' {
		flipped[0] = 'b'
	} else {
		flipped[0] = 'a'
	}
	assert.False(t, VerifySignature(payload, string(flipped), secret))
}

func TestVerifySignatureFailsClosed(t *testing.T) {
	payload := []byte(`{}`)

	assert.False(t, VerifySignature(payload, "", "topsecret"))
	assert.False(t, VerifySignature(payload, "   ", "topsecret"))
	assert.False(t, VerifySignature(payload, sign(payload, "topsecret"), ""))
	assert.False(t, VerifySignature(payload, "not-hex-at-all", "topsecret"))
}
