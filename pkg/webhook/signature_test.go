package webhook_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingkit/pkg/webhook"
)

func TestSignAndVerify(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC)
	payload := []byte(`{"kind":"plan_changed"}`)

	sig, err := webhook.Sign("secret", payload, now)
	require.NoError(t, err)
	assert.Equal(t, now.Unix(), sig.Timestamp)
	assert.NotEmpty(t, sig.ID)

	h := http.Header{}
	sig.Apply(h)

	t.Run("valid", func(t *testing.T) {
		t.Parallel()
		require.NoError(t, webhook.Verify("secret", payload, h, 5*time.Minute, now.Add(time.Minute)))
	})

	t.Run("wrong secret", func(t *testing.T) {
		t.Parallel()
		require.ErrorIs(t, webhook.Verify("other", payload, h, 0, now), webhook.ErrInvalidSignature)
	})

	t.Run("tampered payload", func(t *testing.T) {
		t.Parallel()
		require.ErrorIs(t, webhook.Verify("secret", []byte(`{}`), h, 0, now), webhook.ErrInvalidSignature)
	})

	t.Run("stale", func(t *testing.T) {
		t.Parallel()
		require.ErrorIs(t, webhook.Verify("secret", payload, h, time.Minute, now.Add(time.Hour)), webhook.ErrSignatureExpired)
	})

	t.Run("missing headers", func(t *testing.T) {
		t.Parallel()
		require.ErrorIs(t, webhook.Verify("secret", payload, http.Header{}, 0, now), webhook.ErrMissingSignatures)
	})

	t.Run("sign requires secret and payload", func(t *testing.T) {
		t.Parallel()
		_, err := webhook.Sign("", payload, now)
		require.ErrorIs(t, err, webhook.ErrMissingSecret)
		_, err = webhook.Sign("s", nil, now)
		require.ErrorIs(t, err, webhook.ErrInvalidPayload)
	})
}
