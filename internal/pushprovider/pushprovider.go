// Package pushprovider wraps firebase.google.com/go/v4/messaging behind a
// small Sender interface so the dispatch service depends on an interface,
// not the SDK, and tests can fake it.
package pushprovider

import (
	"context"
	"encoding/json"
	"time"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// Result is the push provider's response to a single send call: the
// message-id and effective HTTP status, or an error classified by the
// caller into the fcm_status taxonomy.
type Result struct {
	MessageID  string
	HTTPStatus int
}

// Sender is the interface the dispatch service depends on. A per-call
// timeout is the caller's responsibility.
type Sender interface {
	Send(ctx context.Context, pushToken string, payload map[string]any) (Result, error)
}

// FirebaseSender is the production Sender backed by FCM.
type FirebaseSender struct {
	client *messaging.Client
}

// NewFirebaseSender initializes a Firebase app from the opaque
// PUSH_PROVIDER_CREDENTIALS value (a service-account JSON document, per the
// SDK's normal use) and returns a ready-to-use Sender.
func NewFirebaseSender(ctx context.Context, credentialsJSON string) (*FirebaseSender, error) {
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsJSON([]byte(credentialsJSON)))
	if err != nil {
		return nil, err
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, err
	}
	return &FirebaseSender{client: client}, nil
}

// Send pushes a data-only message (no notification payload — the device
// agent wakes on receipt and pulls the signed command from the payload
// fields, it does not render anything). The caller is expected to bound ctx
// with a per-call deadline.
func (s *FirebaseSender) Send(ctx context.Context, pushToken string, payload map[string]any) (Result, error) {
	data := make(map[string]string, len(payload))
	for k, v := range payload {
		switch vv := v.(type) {
		case string:
			data[k] = vv
		default:
			b, err := json.Marshal(vv)
			if err != nil {
				return Result{}, err
			}
			data[k] = string(b)
		}
	}

	msg := &messaging.Message{
		Token: pushToken,
		Data:  data,
		Android: &messaging.AndroidConfig{
			Priority: "high",
			TTL:      durationPtr(5 * time.Minute),
		},
	}

	id, err := s.client.Send(ctx, msg)
	if err != nil {
		return Result{HTTPStatus: classifyError(err)}, err
	}
	return Result{MessageID: id, HTTPStatus: 200}, nil
}

func durationPtr(d time.Duration) *time.Duration { return &d }

// classifyError maps an FCM SDK error to an indicative HTTP status for the
// dispatch row's push_http_status field; FCM doesn't hand back a raw status
// code, only a typed error, so this is a best-effort mapping used purely
// for observability, not for control flow.
func classifyError(err error) int {
	if messaging.IsUnregistered(err) {
		return 404
	}
	if messaging.IsInvalidArgument(err) {
		return 400
	}
	if messaging.IsInternal(err) || messaging.IsUnavailable(err) {
		return 503
	}
	if messaging.IsQuotaExceeded(err) {
		return 429
	}
	return 502
}
