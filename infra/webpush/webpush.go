// Package webpush delivers push payloads through the Web Push protocol using
// VAPID authentication.
package webpush

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/domtech/lifeline/core/model"
	"github.com/domtech/lifeline/core/push"
)

// Config carries the VAPID key pair identifying this server to push services.
type Config struct {
	Subscriber      string `json:"subscriber"`
	VAPIDPublicKey  string `json:"vapid_public_key"`
	VAPIDPrivateKey string `json:"vapid_private_key"`
	TTLSeconds      int    `json:"ttl_seconds"`
}

// Sender sends payloads to browser push endpoints.
type Sender struct {
	cfg Config
}

// NewSender creates a Sender. Both VAPID keys are required.
func NewSender(cfg Config) (*Sender, error) {
	if cfg.VAPIDPublicKey == "" || cfg.VAPIDPrivateKey == "" {
		return nil, errors.New("webpush: missing VAPID key pair")
	}
	if cfg.TTLSeconds <= 0 {
		cfg.TTLSeconds = 30
	}
	return &Sender{cfg: cfg}, nil
}

// Send delivers one payload. Status codes saying the endpoint no longer
// exists are classified as gone so the caller drops the subscription.
func (s *Sender) Send(ctx context.Context, sub model.PushSubscription, payload []byte) error {
	resp, err := webpush.SendNotificationWithContext(ctx, payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dh,
			Auth:   sub.Auth,
		},
	}, &webpush.Options{
		Subscriber:      s.cfg.Subscriber,
		VAPIDPublicKey:  s.cfg.VAPIDPublicKey,
		VAPIDPrivateKey: s.cfg.VAPIDPrivateKey,
		TTL:             s.cfg.TTLSeconds,
	})
	if err != nil {
		return &push.Error{Kind: push.KindTransient, Err: err}
	}
	defer resp.Body.Close()
	return classifyStatus(resp.StatusCode)
}

// classifyStatus maps a push service response code to the delivery error
// taxonomy.
func classifyStatus(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusNotFound || code == http.StatusGone:
		return &push.Error{Kind: push.KindGone, Err: fmt.Errorf("endpoint responded %d", code)}
	default:
		return &push.Error{Kind: push.KindTransient, Err: fmt.Errorf("endpoint responded %d", code)}
	}
}

var _ push.Sender = (*Sender)(nil)
