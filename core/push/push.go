// Package push defines the asynchronous delivery contract for disconnected
// principals. Transport-specific status codes never leave the provider
// adapter; failures surface as a closed error-kind enumeration.
package push

import (
	"context"
	"errors"
	"fmt"

	"github.com/domtech/lifeline/core/model"
)

// Kind classifies a delivery failure.
type Kind int

const (
	// KindTransient failures are logged and the subscription is kept.
	KindTransient Kind = iota
	// KindGone means the endpoint is permanently invalid and the
	// subscription must be deleted.
	KindGone
)

// Error is a classified push delivery failure.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Kind == KindGone {
		return fmt.Sprintf("push: endpoint gone: %v", e.Err)
	}
	return fmt.Sprintf("push: delivery failed: %v", e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsGone reports whether err marks the subscription endpoint as permanently
// invalid.
func IsGone(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Kind == KindGone
}

// Sender delivers a payload to a registered subscription. Delivery is
// best-effort; the caller decides what to do with classified failures.
type Sender interface {
	Send(ctx context.Context, sub model.PushSubscription, payload []byte) error
}
