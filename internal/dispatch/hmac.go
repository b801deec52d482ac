package dispatch

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"time"
)

// SignPayload computes base64url(HMAC-SHA256(key,
// "{request_id}|{device_id}|{action}|{ts}")), where ts is ISO-8601 seconds
// UTC. The server signs with the primary key only; devices verify against
// either key to permit rotation.
func SignPayload(key []byte, requestID, deviceID, action string, ts time.Time) string {
	msg := signingString(requestID, deviceID, action, ts)
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(msg))
	return base64.URLEncoding.EncodeToString(mac.Sum(nil))
}

// VerifyPayload checks a signature against both active keys (primary,
// secondary), constant-time, and rejects timestamps outside the 5-minute
// window. This mirrors the device's verification contract so that unit
// tests can exercise HMAC round-trips server-side; the device itself is out
// of scope.
func VerifyPayload(primaryKey, secondaryKey []byte, requestID, deviceID, action string, ts time.Time, sig string, now time.Time) bool {
	if now.Sub(ts) > 5*time.Minute || ts.Sub(now) > 5*time.Minute {
		return false
	}
	want := []byte(sig)
	if subtle.ConstantTimeCompare(want, []byte(SignPayload(primaryKey, requestID, deviceID, action, ts))) == 1 {
		return true
	}
	if len(secondaryKey) > 0 && subtle.ConstantTimeCompare(want, []byte(SignPayload(secondaryKey, requestID, deviceID, action, ts))) == 1 {
		return true
	}
	return false
}

func signingString(requestID, deviceID, action string, ts time.Time) string {
	return fmt.Sprintf("%s|%s|%s|%s", requestID, deviceID, action, ts.UTC().Format(time.RFC3339))
}
