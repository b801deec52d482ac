package dispatch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSignAndVerifyPayloadRoundTrip(t *testing.T) {
	primary := []byte("primary-key")
	secondary := []byte("secondary-key")
	now := time.Now()

	sig := SignPayload(primary, "req-1", "device-1", "ping", now)
	assert.NotEmpty(t, sig)
	assert.True(t, VerifyPayload(primary, secondary, "req-1", "device-1", "ping", now, sig, now))
}

func TestVerifyPayloadAcceptsSecondaryKeyDuringRotation(t *testing.T) {
	primary := []byte("primary-key")
	secondary := []byte("secondary-key")
	now := time.Now()

	sig := SignPayload(secondary, "req-1", "device-1", "ping", now)
	assert.True(t, VerifyPayload(primary, secondary, "req-1", "device-1", "ping", now, sig, now))
}

func TestVerifyPayloadRejectsTamperedFields(t *testing.T) {
	primary := []byte("primary-key")
	now := time.Now()

	sig := SignPayload(primary, "req-1", "device-1", "ping", now)
	assert.False(t, VerifyPayload(primary, nil, "req-1", "device-2", "ping", now, sig, now))
	assert.False(t, VerifyPayload(primary, nil, "req-1", "device-1", "ring", now, sig, now))
}

func TestVerifyPayloadRejectsOutsideTimeWindow(t *testing.T) {
	primary := []byte("primary-key")
	ts := time.Now()
	sig := SignPayload(primary, "req-1", "device-1", "ping", ts)

	tooLate := ts.Add(6 * time.Minute)
	assert.False(t, VerifyPayload(primary, nil, "req-1", "device-1", "ping", ts, sig, tooLate))

	tooEarly := ts.Add(-6 * time.Minute)
	assert.False(t, VerifyPayload(primary, nil, "req-1", "device-1", "ping", ts, sig, tooEarly))
}

func TestVerifyPayloadRejectsUnknownKey(t *testing.T) {
	now := time.Now()
	sig := SignPayload([]byte("some-other-key"), "req-1", "device-1", "ping", now)
	assert.False(t, VerifyPayload([]byte("primary-key"), []byte("secondary-key"), "req-1", "device-1", "ping", now, sig, now))
}
