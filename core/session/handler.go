package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/domtech/lifeline/core/auth"
	"github.com/domtech/lifeline/core/dispatch"
	"github.com/domtech/lifeline/core/events"
	"github.com/domtech/lifeline/core/logger"
	"github.com/domtech/lifeline/core/model"
	"github.com/domtech/lifeline/core/protocol"
	"github.com/domtech/lifeline/core/store"
	"github.com/domtech/lifeline/internal/eventbus"
)

// Handler drives one connection through authentication and message routing.
// A single Handler is shared by all connections; per-connection state lives in
// the session.
type Handler struct {
	registry   *dispatch.Registry
	dispatcher *dispatch.Dispatcher
	notifier   *dispatch.Notifier
	quorum     *dispatch.Quorum
	store      store.Store
	verifier   auth.TokenVerifier
	cfg        dispatch.Config
	bus        eventbus.EventBus
	log        logger.Logger
}

// NewHandler creates a Handler. Bus may be nil.
func NewHandler(registry *dispatch.Registry, dispatcher *dispatch.Dispatcher, notifier *dispatch.Notifier, quorum *dispatch.Quorum, st store.Store, verifier auth.TokenVerifier, cfg dispatch.Config, bus eventbus.EventBus, log logger.Logger) (*Handler, error) {
	if registry == nil || dispatcher == nil || notifier == nil || quorum == nil || st == nil || verifier == nil || log == nil {
		return nil, fmt.Errorf("session: nil parameter provided to NewHandler")
	}
	cfg.SetDefaults()
	return &Handler{
		registry:   registry,
		dispatcher: dispatcher,
		notifier:   notifier,
		quorum:     quorum,
		store:      st,
		verifier:   verifier,
		cfg:        cfg,
		bus:        bus,
		log:        log,
	}, nil
}

// Handle runs the connection until the transport fails or the context is
// canceled. The first message must be AUTH; anything else closes the
// connection after an AUTH_ERROR.
func (h *Handler) Handle(ctx context.Context, conn Conn) {
	sess, ok := h.authenticate(ctx, conn)
	if !ok {
		conn.Close()
		return
	}
	p := sess.Principal()
	h.registry.Register(p.ID, sess)
	h.log.Infof("session opened for %s (%s)", p.ID, p.Role)
	defer func() {
		h.registry.Unregister(p.ID, sess)
		conn.Close()
		h.log.Infof("session closed for %s", p.ID)
	}()

	if p.Role.Responder() {
		if err := h.dispatcher.RedeliverInProgress(ctx, sess); err != nil {
			h.log.Errorf("assignment recovery for %s: %v", p.ID, err)
		}
	}

	for {
		raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var env protocol.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			h.log.Debugf("malformed message from %s dropped: %v", p.ID, err)
			continue
		}
		h.route(ctx, sess, env)
	}
}

// authenticate reads the first message and verifies its credential. On any
// failure an AUTH_ERROR is written and the connection is rejected.
func (h *Handler) authenticate(ctx context.Context, conn Conn) (*session, bool) {
	raw, err := conn.ReadMessage()
	if err != nil {
		return nil, false
	}
	var env protocol.Envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Type != protocol.TypeAuth || env.Token == "" {
		h.rejectAuth(conn, "authentication required")
		return nil, false
	}
	claims, err := h.verifier.Verify(env.Token)
	if err != nil {
		h.log.Warnf("credential rejected: %v", err)
		h.rejectAuth(conn, "invalid token")
		return nil, false
	}
	principal := model.Principal{
		ID:          claims.UserID,
		Role:        claims.Role,
		DisplayName: claims.Name,
		Phone:       claims.Phone,
	}
	// Seed the last known location from the store so a reconnecting
	// responder is immediately matchable.
	if stored, err := h.store.GetUser(ctx, claims.UserID); err == nil && stored.HasLocation() {
		loc := *stored.Location
		principal.Location = &loc
	}
	sess := newSession(conn, principal)
	msg := protocol.AuthSuccess{
		Type: protocol.TypeAuthSuccess,
		User: protocol.UserInfo{ID: principal.ID, Name: principal.DisplayName, Phone: principal.Phone, Role: string(principal.Role)},
	}
	if err := sess.Send(msg); err != nil {
		return nil, false
	}
	return sess, true
}

func (h *Handler) rejectAuth(conn Conn, reason string) {
	_ = conn.WriteJSON(protocol.AuthError{Type: protocol.TypeAuthError, Message: reason})
}

func (h *Handler) route(ctx context.Context, sess *session, env protocol.Envelope) {
	p := sess.Principal()
	switch env.Type {
	case protocol.TypeEmergency:
		h.handleEmergency(ctx, sess, env)
	case protocol.TypeValidateResponse:
		if env.Vote == nil || env.AlertID == "" {
			h.log.Debugf("incomplete vote from %s dropped", p.ID)
			return
		}
		if err := h.quorum.RecordVote(ctx, env.AlertID, p.ID, *env.Vote); err != nil {
			h.log.Errorf("vote from %s for alert %s: %v", p.ID, env.AlertID, err)
		}
	case protocol.TypeResponderResponse:
		if env.Accept == nil || env.AlertID == "" {
			h.log.Debugf("incomplete responder response from %s dropped", p.ID)
			return
		}
		if err := h.dispatcher.HandleResponse(ctx, p.ID, env.AlertID, *env.Accept); err != nil {
			h.log.Errorf("responder response from %s for alert %s: %v", p.ID, env.AlertID, err)
		}
	case protocol.TypeLocationUpdate:
		h.handleLocationUpdate(ctx, sess, env)
	case protocol.TypeWaitingTime:
		h.handleWaitingTime(ctx, sess, env)
	case protocol.TypeSelectedRoute:
		h.handleSelectedRoute(ctx, sess, env)
	case protocol.TypeResolve:
		if env.AlertID == "" {
			return
		}
		if err := h.dispatcher.Resolve(ctx, env.AlertID, p.ID); err != nil {
			h.log.Warnf("resolve of alert %s by %s refused: %v", env.AlertID, p.ID, err)
		}
	default:
		h.log.Debugf("unknown message type %q from %s dropped", env.Type, p.ID)
	}
}

// handleEmergency creates a PENDING alert and asks nearby bystanders to
// validate it. Only plain users report emergencies.
func (h *Handler) handleEmergency(ctx context.Context, sess *session, env protocol.Envelope) {
	p := sess.Principal()
	if p.Role != model.RoleUser {
		h.log.Warnf("emergency report from non-user %s (%s) dropped", p.ID, p.Role)
		return
	}
	if env.Latitude == nil || env.Longitude == nil || !validCoords(*env.Latitude, *env.Longitude) {
		h.log.Warnf("emergency report from %s without valid coordinates dropped", p.ID)
		return
	}
	alert := model.Alert{
		ID:            uuid.NewString(),
		CreatorID:     p.ID,
		CreatorName:   p.DisplayName,
		CreatorPhone:  p.Phone,
		Message:       env.Message,
		Latitude:      *env.Latitude,
		Longitude:     *env.Longitude,
		EmergencyType: model.EmergencyType(env.EmergencyType),
		Status:        model.StatusPending,
		CreatedAt:     time.Now().UTC(),
	}
	if err := h.store.CreateAlert(ctx, alert); err != nil {
		h.log.Errorf("create alert for %s: %v", p.ID, err)
		return
	}
	// Reporting an emergency is also a location fix for the reporter.
	sess.setLocation(alert.Latitude, alert.Longitude)
	if err := h.store.UpdateUserLocation(ctx, p.ID, model.Coordinate{Latitude: alert.Latitude, Longitude: alert.Longitude}); err != nil && err != store.ErrNotFound {
		h.log.Errorf("location update for %s: %v", p.ID, err)
	}
	if h.bus != nil {
		h.bus.Publish(events.AlertCreated{Alert: alert})
	}
	h.log.Infof("alert %s created by %s (%s)", alert.ID, p.ID, alert.EmergencyType)
	if err := h.notifier.NotifyNearby(ctx, alert, h.cfg.RadiusMeters, model.RoleUser); err != nil {
		h.log.Errorf("bystander notification for alert %s: %v", alert.ID, err)
	}
}

// handleLocationUpdate stores the new position and, for a responder on an
// accepted mission, forwards it live to the alert creator.
func (h *Handler) handleLocationUpdate(ctx context.Context, sess *session, env protocol.Envelope) {
	p := sess.Principal()
	if env.Latitude == nil || env.Longitude == nil || !validCoords(*env.Latitude, *env.Longitude) {
		h.log.Debugf("location update from %s without valid coordinates dropped", p.ID)
		return
	}
	sess.setLocation(*env.Latitude, *env.Longitude)
	if err := h.store.UpdateUserLocation(ctx, p.ID, model.Coordinate{Latitude: *env.Latitude, Longitude: *env.Longitude}); err != nil && err != store.ErrNotFound {
		h.log.Errorf("location update for %s: %v", p.ID, err)
	}
	if !p.Role.Responder() {
		return
	}
	alerts, err := h.store.AlertsAssignedTo(ctx, p.ID, model.StatusInProgress)
	if err != nil {
		h.log.Errorf("assigned alerts for %s: %v", p.ID, err)
		return
	}
	for _, a := range alerts {
		msg := protocol.ResponderLocationUpdate{
			Type:        protocol.TypeResponderLocationUpdate,
			AlertID:     a.ID,
			ResponderID: p.ID,
			Latitude:    *env.Latitude,
			Longitude:   *env.Longitude,
		}
		targets := []string{a.CreatorID}
		if a.TrafficID != "" {
			targets = append(targets, a.TrafficID)
		}
		for _, id := range targets {
			target, ok := h.registry.Lookup(id)
			if !ok {
				continue
			}
			if err := target.Send(msg); err != nil {
				h.log.Errorf("location forward to %s failed: %v", id, err)
			}
		}
	}
}

// handleWaitingTime forwards the creator's reported waiting time to the
// assigned responder.
func (h *Handler) handleWaitingTime(ctx context.Context, sess *session, env protocol.Envelope) {
	p := sess.Principal()
	if env.AlertID == "" {
		return
	}
	alert, err := h.store.GetAlertByID(ctx, env.AlertID)
	if err != nil {
		h.log.Warnf("waiting time for unknown alert %s from %s", env.AlertID, p.ID)
		return
	}
	if alert.CreatorID != p.ID || alert.AssignedResponderID == "" {
		return
	}
	responder, ok := h.registry.Lookup(alert.AssignedResponderID)
	if !ok {
		return
	}
	msg := protocol.WaitingTime{Type: protocol.TypeWaitingTime, AlertID: alert.ID, Time: env.Time}
	if err := responder.Send(msg); err != nil {
		h.log.Errorf("waiting time forward to %s failed: %v", alert.AssignedResponderID, err)
	}
}

// handleSelectedRoute persists the responder's chosen route and notifies
// traffic controllers along it.
func (h *Handler) handleSelectedRoute(ctx context.Context, sess *session, env protocol.Envelope) {
	p := sess.Principal()
	if env.AlertID == "" || len(env.Coords) == 0 {
		return
	}
	alert, err := h.store.GetAlertByID(ctx, env.AlertID)
	if err != nil {
		h.log.Warnf("route for unknown alert %s from %s", env.AlertID, p.ID)
		return
	}
	if alert.AssignedResponderID != p.ID {
		h.log.Warnf("route for alert %s from non-assigned %s dropped", env.AlertID, p.ID)
		return
	}
	path := make([]model.Coordinate, 0, len(env.Coords))
	for _, pair := range env.Coords {
		if len(pair) < 2 || !validCoords(pair[0], pair[1]) {
			continue
		}
		path = append(path, model.Coordinate{Latitude: pair[0], Longitude: pair[1]})
	}
	if len(path) == 0 {
		return
	}
	if err := h.store.SetRoutePath(ctx, alert.ID, path); err != nil {
		h.log.Errorf("store route for alert %s: %v", alert.ID, err)
		return
	}
	if creator, ok := h.registry.Lookup(alert.CreatorID); ok {
		coords := make([][]float64, len(path))
		for i, c := range path {
			coords[i] = []float64{c.Latitude, c.Longitude}
		}
		msg := protocol.SelectedRoute{Type: protocol.TypeSelectedRoute, AlertID: alert.ID, Coords: coords}
		if err := creator.Send(msg); err != nil {
			h.log.Errorf("route forward to %s failed: %v", alert.CreatorID, err)
		}
	}
	if err := h.notifier.NotifyRoute(ctx, alert, path); err != nil {
		h.log.Errorf("route notification for alert %s: %v", alert.ID, err)
	}
}

func validCoords(lat, lng float64) bool {
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}
