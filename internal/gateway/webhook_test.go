package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"fullsound/internal/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signatureHeader(secret string, payload []byte, timestamp int64) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(fmt.Sprintf("%d.%s", timestamp, payload)))
	return fmt.Sprintf("t=%d,v1=%s", timestamp, hex.EncodeToString(mac.Sum(nil)))
}

func TestParseWebhook(t *testing.T) {
	secret := "whsec_test"
	verifier := NewWebhookVerifier(secret)
	payload := []byte(`{"id":"evt_1","object":"event","type":"payment_intent.succeeded","data":{"object":{"id":"pi_123","object":"payment_intent","status":"succeeded"}}}`)

	event, ok, err := verifier.Parse(payload, signatureHeader(secret, payload, time.Now().Unix()))
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, "evt_1", event.ID)
	assert.Equal(t, "payment_intent.succeeded", event.Type)
	assert.Equal(t, "pi_123", event.IntentID)
}

func TestParseWebhookBadSignature(t *testing.T) {
	verifier := NewWebhookVerifier("whsec_test")
	payload := []byte(`{"id":"evt_1","object":"event","type":"payment_intent.succeeded","data":{"object":{"id":"pi_123"}}}`)

	_, _, err := verifier.Parse(payload, signatureHeader("wrong", payload, time.Now().Unix()))
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, _, err = verifier.Parse(payload, "")
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestParseWebhookIgnoredType(t *testing.T) {
	secret := "whsec_test"
	verifier := NewWebhookVerifier(secret)
	payload := []byte(`{"id":"evt_2","object":"event","type":"customer.created","data":{"object":{"id":"cus_1"}}}`)

	event, ok, err := verifier.Parse(payload, signatureHeader(secret, payload, time.Now().Unix()))
	require.NoError(t, err)

	assert.False(t, ok)
	assert.Equal(t, "evt_2", event.ID)
}
