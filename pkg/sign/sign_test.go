package sign

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignAndVerify(t *testing.T) {
	secret := "webhook-secret-001"
	body := []byte(`{"tx_hash":"0xabc","amount":"100.5"}`)

	sig := Sign(secret, body)
	assert.Len(t, sig, 64, "sha256 hex 长度固定")
	assert.True(t, Verify(secret, body, sig))
}

func TestVerifyRejectsTamperedBody(t *testing.T) {
	secret := "webhook-secret-001"
	body := []byte(`{"amount":"100.5"}`)

	sig := Sign(secret, body)
	assert.False(t, Verify(secret, []byte(`{"amount":"999.5"}`), sig))
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	body := []byte(`{"amount":"100.5"}`)

	sig := Sign("secret-a", body)
	assert.False(t, Verify("secret-b", body, sig))
}

func TestVerifyRejectsMalformedSignature(t *testing.T) {
	assert.False(t, Verify("secret", []byte("body"), "not-hex-at-all"))
	assert.False(t, Verify("secret", []byte("body"), ""))
}

func TestSignDeterministic(t *testing.T) {
	body := []byte("payload")
	assert.Equal(t, Sign("s", body), Sign("s", body))
}
