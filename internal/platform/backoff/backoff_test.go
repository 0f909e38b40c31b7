package backoff_test

import (
	"testing"
	"time"

	"github.com/docuflow/docuflow-api/internal/platform/backoff"
	"github.com/stretchr/testify/assert"
)

func TestPolicyDelay_JitterBounds(t *testing.T) {
	policy := backoff.Policy{Base: time.Second, Cap: time.Minute}

	cases := []struct {
		attempt int
		nominal time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
	}

	for _, tc := range cases {
		lo := time.Duration(float64(tc.nominal) * 0.8)
		hi := time.Duration(float64(tc.nominal) * 1.2)
		for i := 0; i < 100; i++ {
			d := policy.Delay(tc.attempt)
			assert.GreaterOrEqual(t, d, lo, "attempt %d", tc.attempt)
			assert.LessOrEqual(t, d, hi, "attempt %d", tc.attempt)
		}
	}
}

func TestPolicyDelay_Cap(t *testing.T) {
	policy := backoff.Policy{Base: time.Second, Cap: 10 * time.Second}

	// Far past the cap the nominal delay is exactly Cap, jitter included.
	for i := 0; i < 100; i++ {
		d := policy.Delay(20)
		assert.LessOrEqual(t, d, 12*time.Second)
		assert.GreaterOrEqual(t, d, 8*time.Second)
	}
}

func TestPolicyDelay_NegativeAttempt(t *testing.T) {
	policy := backoff.Policy{Base: time.Second, Cap: time.Minute}
	d := policy.Delay(-3)
	assert.GreaterOrEqual(t, d, time.Duration(float64(time.Second)*0.8))
	assert.LessOrEqual(t, d, time.Duration(float64(time.Second)*1.2))
}

func TestPolicyNextRetryAt_Monotonic(t *testing.T) {
	policy := backoff.Policy{Base: time.Second, Cap: time.Minute}
	now := time.Now().UTC()

	// Retry times always land strictly after the failure they follow.
	for attempt := 0; attempt < 8; attempt++ {
		at := policy.NextRetryAt(now, attempt)
		assert.True(t, at.After(now), "attempt %d", attempt)
	}
}
