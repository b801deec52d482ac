package ingest

import (
	"context"
	"strings"

	"golang.org/x/crypto/bcrypt"

	apierrors "github.com/fleetops/devicecontrol/internal/pkg/errors"
	"github.com/fleetops/devicecontrol/internal/repository"
)

// tokenIDLength is the length of the indexed lookup prefix split from the
// bearer token's secret remainder.
const tokenIDLength = 8

// AuthResult is a successfully authenticated device, for use by every
// device-auth HTTP handler (heartbeat, action-result, OTA manifest).
type AuthResult struct {
	DeviceID string
}

// Authenticator validates a device bearer token: O(1) lookup on the
// token-id prefix, constant-time bcrypt compare on the remainder, and a
// revoked-token check.
type Authenticator struct {
	devices repository.DeviceRepository
}

// NewAuthenticator constructs an Authenticator.
func NewAuthenticator(devices repository.DeviceRepository) *Authenticator {
	return &Authenticator{devices: devices}
}

// Authenticate parses "<token-id>.<secret>" and validates it against the
// stored bcrypt hash. Returns apierrors.ErrUnauthorized for an unknown
// token-id or a failed compare, apierrors.ErrTokenRevoked for a revoked
// token.
func (a *Authenticator) Authenticate(ctx context.Context, bearerToken string) (*AuthResult, error) {
	tokenID, secret, ok := splitBearer(bearerToken)
	if !ok {
		return nil, apierrors.ErrUnauthorized
	}

	device, err := a.devices.GetByTokenID(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	if device == nil {
		return nil, apierrors.ErrUnauthorized
	}

	if err := bcrypt.CompareHashAndPassword([]byte(device.TokenHash), []byte(secret)); err != nil {
		return nil, apierrors.ErrUnauthorized
	}

	if device.IsTokenRevoked() {
		return nil, apierrors.ErrTokenRevoked
	}

	return &AuthResult{DeviceID: device.ID}, nil
}

// Validate adapts Authenticate to middleware.DeviceTokenValidator's
// signature, so an *Authenticator can be passed directly to
// middleware.DeviceAuth.
func (a *Authenticator) Validate(ctx context.Context, token string) (string, error) {
	result, err := a.Authenticate(ctx, token)
	if err != nil {
		return "", err
	}
	return result.DeviceID, nil
}

func splitBearer(token string) (tokenID, secret string, ok bool) {
	if len(token) <= tokenIDLength+1 {
		return "", "", false
	}
	idx := strings.Index(token, ".")
	if idx != tokenIDLength {
		return "", "", false
	}
	return token[:idx], token[idx+1:], true
}
