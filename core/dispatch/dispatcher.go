package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/domtech/lifeline/core/events"
	"github.com/domtech/lifeline/core/geo"
	"github.com/domtech/lifeline/core/logger"
	"github.com/domtech/lifeline/core/metrics"
	"github.com/domtech/lifeline/core/model"
	"github.com/domtech/lifeline/core/protocol"
	"github.com/domtech/lifeline/core/push"
	"github.com/domtech/lifeline/core/store"
	"github.com/domtech/lifeline/internal/eventbus"
)

// Dispatcher matches an ACTIVE alert to the nearest eligible responder and
// guarantees at most one assignment per alert. On rejection it retries with a
// strictly growing exclusion set until a responder accepts or no candidates
// remain.
type Dispatcher struct {
	registry *Registry
	locks    *LockTable
	store    store.Store
	push     push.Sender
	roles    RoleMap
	bus      eventbus.EventBus
	log      logger.Logger
	sink     metrics.Sink

	mu       sync.Mutex
	rejected map[string]map[string]struct{}
}

// NewDispatcher creates a Dispatcher. Bus and sink may be nil.
func NewDispatcher(registry *Registry, locks *LockTable, st store.Store, sender push.Sender, roles RoleMap, bus eventbus.EventBus, log logger.Logger, sink metrics.Sink) (*Dispatcher, error) {
	if registry == nil || locks == nil || st == nil || sender == nil || log == nil {
		return nil, fmt.Errorf("dispatch: nil parameter provided to NewDispatcher")
	}
	return &Dispatcher{
		registry: registry,
		locks:    locks,
		store:    st,
		push:     sender,
		roles:    roles,
		bus:      bus,
		log:      log,
		sink:     sink,
		rejected: make(map[string]map[string]struct{}),
	}, nil
}

type candidate struct {
	principal model.Principal
	session   Session // nil when the candidate came from the store
	distance  float64
}

// Dispatch selects one responder for the alert and delivers the assignment.
// Online candidates are preferred; the store is the fallback when nobody
// eligible is connected. Extra ids are excluded on top of the responders that
// already rejected this alert. Losing the lock race to a concurrent dispatch
// is silent and not an error.
func (d *Dispatcher) Dispatch(ctx context.Context, alert model.Alert, exclude ...string) error {
	roles := d.roles.RolesFor(alert.EmergencyType)
	if len(roles) == 0 {
		d.log.Warnf("no responder roles for emergency type %q, alert %s stays unassigned", alert.EmergencyType, alert.ID)
		return nil
	}
	excluded := d.excludedFor(alert.ID, exclude)

	if cand, ok := d.nearestOnline(alert, roles, excluded); ok {
		return d.offerOnline(alert, cand)
	}
	cand, ok, err := d.nearestOffline(ctx, alert, roles, excluded)
	if err != nil {
		return fmt.Errorf("offline candidate lookup: %w", err)
	}
	if !ok {
		d.log.Infof("no eligible responder for alert %s, awaiting next trigger", alert.ID)
		return nil
	}
	return d.offerOffline(ctx, alert, cand)
}

// nearestOnline scans the connection registry for the closest eligible
// responder. Ties are broken by smallest principal id.
func (d *Dispatcher) nearestOnline(alert model.Alert, roles []model.Role, excluded map[string]struct{}) (candidate, bool) {
	eligible := make(map[model.Role]bool, len(roles))
	for _, r := range roles {
		eligible[r] = true
	}
	var best candidate
	found := false
	for id, sess := range d.registry.Snapshot() {
		if _, skip := excluded[id]; skip {
			continue
		}
		p := sess.Principal()
		if !eligible[p.Role] || !p.HasLocation() {
			continue
		}
		dist := geo.Distance(alert.Latitude, alert.Longitude, p.Location.Latitude, p.Location.Longitude)
		if !found || dist < best.distance || (dist == best.distance && p.ID < best.principal.ID) {
			best = candidate{principal: p, session: sess, distance: dist}
			found = true
		}
	}
	return best, found
}

// nearestOffline queries the store for eligible responders with a known
// location.
func (d *Dispatcher) nearestOffline(ctx context.Context, alert model.Alert, roles []model.Role, excluded map[string]struct{}) (candidate, bool, error) {
	users, err := d.store.ListUsersByRole(ctx, roles)
	if err != nil {
		return candidate{}, false, err
	}
	var best candidate
	found := false
	for _, p := range users {
		if _, skip := excluded[p.ID]; skip {
			continue
		}
		if !p.HasLocation() {
			continue
		}
		dist := geo.Distance(alert.Latitude, alert.Longitude, p.Location.Latitude, p.Location.Longitude)
		if !found || dist < best.distance || (dist == best.distance && p.ID < best.principal.ID) {
			best = candidate{principal: p, distance: dist}
			found = true
		}
	}
	return best, found, nil
}

func (d *Dispatcher) offerOnline(alert model.Alert, cand candidate) error {
	if !d.locks.Acquire(alert.ID, cand.principal.ID) {
		// A concurrent dispatch for the same alert won the race.
		return nil
	}
	msg := assignmentMessage(alert, cand.principal)
	if err := cand.session.Send(msg); err != nil {
		d.log.Errorf("assignment delivery to %s failed: %v", cand.principal.ID, err)
	}
	d.recordOffer(alert, cand, true)
	return nil
}

func (d *Dispatcher) offerOffline(ctx context.Context, alert model.Alert, cand candidate) error {
	if !d.locks.Acquire(alert.ID, cand.principal.ID) {
		return nil
	}
	payload, err := json.Marshal(map[string]any{
		"title":         "Emergency Alert",
		"body":          fmt.Sprintf("New %s alert nearby: %s", alert.EmergencyType, alert.Message),
		"alertId":       alert.ID,
		"emergencyType": alert.EmergencyType,
		"latitude":      alert.Latitude,
		"longitude":     alert.Longitude,
	})
	if err != nil {
		return fmt.Errorf("assignment payload: %w", err)
	}
	subs, err := d.store.SubscriptionsForUser(ctx, cand.principal.ID)
	if err != nil {
		return fmt.Errorf("subscriptions for %s: %w", cand.principal.ID, err)
	}
	for _, sub := range subs {
		deliverPush(ctx, d.push, d.store, d.log, d.bus, sub, payload)
	}
	d.recordOffer(alert, cand, false)
	return nil
}

func (d *Dispatcher) recordOffer(alert model.Alert, cand candidate, online bool) {
	channel := "push"
	if online {
		channel = "session"
	}
	assignmentsOffered.WithLabelValues(string(alert.EmergencyType), channel).Inc()
	if d.bus != nil {
		d.bus.Publish(events.AssignmentOffered{
			AlertID:        alert.ID,
			ResponderID:    cand.principal.ID,
			Online:         online,
			DistanceMeters: cand.distance,
		})
	}
	if d.sink != nil {
		if err := d.sink.RecordAssignment([]metrics.AssignmentResult{{
			AlertID:        alert.ID,
			ResponderID:    cand.principal.ID,
			EmergencyType:  string(alert.EmergencyType),
			DistanceMeters: cand.distance,
			Online:         online,
			Time:           time.Now(),
		}}); err != nil {
			d.log.Errorf("metrics error: %v", err)
		}
	}
	d.log.Infof("alert %s offered to responder %s (%.0f m, channel=%s)", alert.ID, cand.principal.ID, cand.distance, channel)
}

// HandleResponse applies a responder's accept or reject decision. Responses
// from anyone but the current lock holder are stale and ignored.
func (d *Dispatcher) HandleResponse(ctx context.Context, responderID, alertID string, accepted bool) error {
	alert, err := d.store.GetAlertByID(ctx, alertID)
	if err != nil {
		if err == store.ErrNotFound {
			d.log.Warnf("response for unknown alert %s from %s", alertID, responderID)
			return nil
		}
		return fmt.Errorf("load alert %s: %w", alertID, err)
	}
	holder, held := d.locks.Holder(alertID)
	if !held || holder != responderID {
		d.log.Warnf("stale response for alert %s from %s (holder=%q)", alertID, responderID, holder)
		return nil
	}

	if accepted {
		if err := d.store.UpdateAlertStatus(ctx, alertID, model.StatusInProgress, responderID); err != nil {
			return fmt.Errorf("mark alert %s in progress: %w", alertID, err)
		}
		d.locks.MarkAccepted(alertID)
		d.clearRejected(alertID)
		if d.bus != nil {
			d.bus.Publish(events.AssignmentAccepted{AlertID: alertID, ResponderID: responderID})
		}
		d.notifyCreatorAccepted(ctx, alert, responderID)
		return nil
	}

	d.locks.Release(alertID)
	d.markRejected(alertID, responderID)
	if d.bus != nil {
		d.bus.Publish(events.AssignmentRejected{AlertID: alertID, ResponderID: responderID})
	}
	return d.Dispatch(ctx, alert)
}

// Resolve terminalizes the alert and releases its lock. Only the creator or
// the assigned responder may resolve.
func (d *Dispatcher) Resolve(ctx context.Context, alertID, by string) error {
	alert, err := d.store.GetAlertByID(ctx, alertID)
	if err != nil {
		return fmt.Errorf("load alert %s: %w", alertID, err)
	}
	if alert.Status.Terminal() {
		return nil
	}
	if by != alert.CreatorID && by != alert.AssignedResponderID {
		return fmt.Errorf("principal %s may not resolve alert %s", by, alertID)
	}
	if err := d.store.UpdateAlertStatus(ctx, alertID, model.StatusResolved, ""); err != nil {
		return fmt.Errorf("resolve alert %s: %w", alertID, err)
	}
	d.locks.Release(alertID)
	d.clearRejected(alertID)
	if d.bus != nil {
		d.bus.Publish(events.AlertResolved{AlertID: alertID, ResolvedBy: by})
	}
	if sess, ok := d.registry.Lookup(alert.CreatorID); ok {
		if err := sess.Send(protocol.AlertResolved{Type: protocol.TypeAlertResolved, AlertID: alertID}); err != nil {
			d.log.Errorf("resolve notification to %s failed: %v", alert.CreatorID, err)
		}
	}
	return nil
}

// RedeliverInProgress re-sends the assignment for every alert the responder
// already accepted. Called on reconnection so an app restart does not lose an
// active mission.
func (d *Dispatcher) RedeliverInProgress(ctx context.Context, sess Session) error {
	p := sess.Principal()
	alerts, err := d.store.AlertsAssignedTo(ctx, p.ID, model.StatusInProgress)
	if err != nil {
		return fmt.Errorf("alerts assigned to %s: %w", p.ID, err)
	}
	for _, a := range alerts {
		if err := sess.Send(assignmentMessage(a, p)); err != nil {
			d.log.Errorf("redelivery of alert %s to %s failed: %v", a.ID, p.ID, err)
		}
	}
	return nil
}

func (d *Dispatcher) notifyCreatorAccepted(ctx context.Context, alert model.Alert, responderID string) {
	sess, ok := d.registry.Lookup(alert.CreatorID)
	if !ok {
		return
	}
	info := d.responderInfo(ctx, responderID)
	msg := protocol.ResponderAccepted{Type: protocol.TypeResponderAccepted, AlertID: alert.ID, Responder: info}
	if err := sess.Send(msg); err != nil {
		d.log.Errorf("accept notification to %s failed: %v", alert.CreatorID, err)
	}
}

// responderInfo prefers the live session snapshot over the store mirror.
func (d *Dispatcher) responderInfo(ctx context.Context, responderID string) protocol.UserInfo {
	var p model.Principal
	if sess, ok := d.registry.Lookup(responderID); ok {
		p = sess.Principal()
	} else if stored, err := d.store.GetUser(ctx, responderID); err == nil {
		p = stored
	} else {
		return protocol.UserInfo{ID: responderID}
	}
	info := protocol.UserInfo{ID: p.ID, Name: p.DisplayName, Phone: p.Phone, Role: string(p.Role)}
	if p.HasLocation() {
		info.Lat = p.Location.Latitude
		info.Lng = p.Location.Longitude
	}
	return info
}

func assignmentMessage(alert model.Alert, responder model.Principal) protocol.EmergencyAssignment {
	msg := protocol.EmergencyAssignment{
		Type:          protocol.TypeEmergencyAssignment,
		AlertID:       alert.ID,
		Name:          alert.CreatorName,
		Phone:         alert.CreatorPhone,
		Message:       alert.Message,
		Latitude:      alert.Latitude,
		Longitude:     alert.Longitude,
		EmergencyType: string(alert.EmergencyType),
		Responder:     protocol.UserInfo{ID: responder.ID},
	}
	if responder.HasLocation() {
		msg.Responder.Lat = responder.Location.Latitude
		msg.Responder.Lng = responder.Location.Longitude
	}
	return msg
}

func (d *Dispatcher) excludedFor(alertID string, extra []string) map[string]struct{} {
	out := make(map[string]struct{}, len(extra))
	d.mu.Lock()
	for id := range d.rejected[alertID] {
		out[id] = struct{}{}
	}
	d.mu.Unlock()
	for _, id := range extra {
		out[id] = struct{}{}
	}
	return out
}

func (d *Dispatcher) markRejected(alertID, responderID string) {
	d.mu.Lock()
	set, ok := d.rejected[alertID]
	if !ok {
		set = make(map[string]struct{})
		d.rejected[alertID] = set
	}
	set[responderID] = struct{}{}
	d.mu.Unlock()
}

func (d *Dispatcher) clearRejected(alertID string) {
	d.mu.Lock()
	delete(d.rejected, alertID)
	d.mu.Unlock()
}
