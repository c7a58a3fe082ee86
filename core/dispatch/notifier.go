package dispatch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/domtech/lifeline/core/events"
	"github.com/domtech/lifeline/core/geo"
	"github.com/domtech/lifeline/core/logger"
	"github.com/domtech/lifeline/core/model"
	"github.com/domtech/lifeline/core/protocol"
	"github.com/domtech/lifeline/core/push"
	"github.com/domtech/lifeline/core/store"
	"github.com/domtech/lifeline/internal/eventbus"
)

// routeNotifyRadiusMeters bounds how far from a selected route a traffic
// controller may be and still get notified.
const routeNotifyRadiusMeters = 100

// Notifier fans an alert out to principals near its location. Candidates come
// from the store so both online and offline principals are reached: live
// sessions get a duplex message, and every registered push subscription is
// tried as a redundant channel regardless.
type Notifier struct {
	registry *Registry
	store    store.Store
	push     push.Sender
	bus      eventbus.EventBus
	log      logger.Logger
}

// NewNotifier creates a Notifier. Bus may be nil.
func NewNotifier(registry *Registry, st store.Store, sender push.Sender, bus eventbus.EventBus, log logger.Logger) (*Notifier, error) {
	if registry == nil || st == nil || sender == nil || log == nil {
		return nil, fmt.Errorf("dispatch: nil parameter provided to NewNotifier")
	}
	return &Notifier{registry: registry, store: st, push: sender, bus: bus, log: log}, nil
}

// NotifyNearby delivers a validation request to every principal within
// radiusMeters of the alert, boundary inclusive. The alert creator is always
// skipped; when roles is non-empty only matching roles are notified. No
// candidate in range is a no-op, not an error. Callers must not invoke this
// twice for the same alert.
func (n *Notifier) NotifyNearby(ctx context.Context, alert model.Alert, radiusMeters float64, roles ...model.Role) error {
	users, err := n.store.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}
	wantRole := make(map[model.Role]bool, len(roles))
	for _, r := range roles {
		wantRole[r] = true
	}
	for _, p := range users {
		if p.ID == alert.CreatorID {
			continue
		}
		if len(roles) > 0 && !wantRole[p.Role] {
			continue
		}
		if !p.HasLocation() {
			continue
		}
		dist := geo.Distance(alert.Latitude, alert.Longitude, p.Location.Latitude, p.Location.Longitude)
		if dist > radiusMeters {
			continue
		}

		if sess, ok := n.registry.Lookup(p.ID); ok {
			msg := protocol.ValidateAlert{
				Type:          protocol.TypeValidateAlert,
				AlertID:       alert.ID,
				Message:       alert.Message,
				Latitude:      alert.Latitude,
				Longitude:     alert.Longitude,
				EmergencyType: string(alert.EmergencyType),
				Distance:      dist,
			}
			if err := sess.Send(msg); err != nil {
				n.log.Errorf("validate request to %s failed: %v", p.ID, err)
			}
		}

		// Push is attempted even for connected principals as a redundant
		// channel.
		payload, err := json.Marshal(map[string]any{
			"alertId":       alert.ID,
			"message":       alert.Message,
			"emergencyType": alert.EmergencyType,
			"distance":      dist,
		})
		if err != nil {
			return fmt.Errorf("validation payload: %w", err)
		}
		subs, err := n.store.SubscriptionsForUser(ctx, p.ID)
		if err != nil {
			n.log.Errorf("subscriptions for %s: %v", p.ID, err)
			continue
		}
		for _, sub := range subs {
			deliverPush(ctx, n.push, n.store, n.log, n.bus, sub, payload)
		}
	}
	return nil
}

// NotifyRoute push-notifies traffic controllers within 100 m of any point on
// the selected route. Each controller is notified at most once.
func (n *Notifier) NotifyRoute(ctx context.Context, alert model.Alert, path []model.Coordinate) error {
	traffic, err := n.store.ListUsersByRole(ctx, []model.Role{model.RoleTraffic})
	if err != nil {
		return fmt.Errorf("list traffic controllers: %w", err)
	}
	payload, err := json.Marshal(map[string]any{
		"title":   "This route will be used by emergency responders",
		"body":    "Tap to view route.",
		"alertId": alert.ID,
	})
	if err != nil {
		return fmt.Errorf("route payload: %w", err)
	}
	notified := make(map[string]bool)
	for _, coord := range path {
		for _, p := range traffic {
			if notified[p.ID] || !p.HasLocation() {
				continue
			}
			dist := geo.Distance(p.Location.Latitude, p.Location.Longitude, coord.Latitude, coord.Longitude)
			if dist > routeNotifyRadiusMeters {
				continue
			}
			subs, err := n.store.SubscriptionsForUser(ctx, p.ID)
			if err != nil {
				n.log.Errorf("subscriptions for %s: %v", p.ID, err)
				continue
			}
			if len(subs) == 0 {
				continue
			}
			notified[p.ID] = true
			for _, sub := range subs {
				deliverPush(ctx, n.push, n.store, n.log, n.bus, sub, payload)
			}
		}
	}
	return nil
}

// deliverPush attempts one push delivery. A gone endpoint is removed from the
// store; transient failures are logged and otherwise ignored.
func deliverPush(ctx context.Context, sender push.Sender, st store.Store, log logger.Logger, bus eventbus.EventBus, sub model.PushSubscription, payload []byte) {
	err := sender.Send(ctx, sub, payload)
	gone := push.IsGone(err)
	switch {
	case err == nil:
		pushDeliveries.WithLabelValues("ok").Inc()
	case gone:
		pushDeliveries.WithLabelValues("gone").Inc()
		if derr := st.DeleteSubscription(ctx, sub.Endpoint); derr != nil {
			log.Errorf("delete gone subscription %s: %v", sub.Endpoint, derr)
		}
	default:
		pushDeliveries.WithLabelValues("error").Inc()
		log.Errorf("push to %s failed: %v", sub.UserID, err)
	}
	if bus != nil {
		bus.Publish(events.PushResult{UserID: sub.UserID, Endpoint: sub.Endpoint, Err: err, Gone: gone})
	}
}
