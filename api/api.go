// Package api exposes the REST surface: push subscription management,
// out-of-band alert validation and route retrieval for traffic dashboards.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/domtech/lifeline/core/auth"
	"github.com/domtech/lifeline/core/dispatch"
	"github.com/domtech/lifeline/core/logger"
	"github.com/domtech/lifeline/core/model"
	"github.com/domtech/lifeline/core/store"
)

// Handler serves the REST endpoints.
type Handler struct {
	store    store.Store
	quorum   *dispatch.Quorum
	verifier auth.TokenVerifier
	log      logger.Logger
}

// NewHandler creates the REST handler.
func NewHandler(st store.Store, quorum *dispatch.Quorum, verifier auth.TokenVerifier, log logger.Logger) (*Handler, error) {
	if st == nil || quorum == nil || verifier == nil || log == nil {
		return nil, fmt.Errorf("api: nil parameter provided to NewHandler")
	}
	return &Handler{store: st, quorum: quorum, verifier: verifier, log: log}, nil
}

// Register mounts the endpoints on the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/subscribe", h.subscribe)
	mux.HandleFunc("POST /api/validate-alert", h.validateAlert)
	mux.HandleFunc("GET /api/subscriptions", h.listSubscriptions)
	mux.HandleFunc("GET /api/route_path/{id}/{traffic}", h.routePath)
}

// principal authenticates the request via its bearer token.
func (h *Handler) principal(r *http.Request) (auth.Claims, bool) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return auth.Claims{}, false
	}
	claims, err := h.verifier.Verify(token)
	if err != nil {
		h.log.Warnf("rest credential rejected: %v", err)
		return auth.Claims{}, false
	}
	return claims, true
}

type subscribeRequest struct {
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
}

func (h *Handler) subscribe(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.principal(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var req subscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Endpoint == "" || req.Keys.P256dh == "" || req.Keys.Auth == "" {
		http.Error(w, "invalid subscription", http.StatusBadRequest)
		return
	}
	sub := model.PushSubscription{
		UserID:   claims.UserID,
		Endpoint: req.Endpoint,
		P256dh:   req.Keys.P256dh,
		Auth:     req.Keys.Auth,
	}
	if err := h.store.SaveSubscription(r.Context(), sub); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusCreated)
	writeJSON(w, map[string]string{"status": "subscribed"})
}

type validateRequest struct {
	AlertID string `json:"alertId"`
	Vote    *bool  `json:"vote"`
}

func (h *Handler) validateAlert(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.principal(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var req validateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AlertID == "" || req.Vote == nil {
		http.Error(w, "alertId and vote are required", http.StatusBadRequest)
		return
	}
	if err := h.quorum.RecordVote(r.Context(), req.AlertID, claims.UserID, *req.Vote); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]string{"status": "recorded"})
}

func (h *Handler) listSubscriptions(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.principal(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if claims.Role != model.RoleAdmin {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	subs, err := h.store.ListSubscriptions(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if subs == nil {
		subs = []model.PushSubscription{}
	}
	writeJSON(w, subs)
}

type routePathResponse struct {
	AlertID   string             `json:"alertId"`
	Latitude  float64            `json:"latitude"`
	Longitude float64            `json:"longitude"`
	RoutePath []model.Coordinate `json:"routePath"`
}

// routePath returns the selected route for an alert and records which traffic
// controller opened it.
func (h *Handler) routePath(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.principal(r); !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	alertID := r.PathValue("id")
	trafficID := r.PathValue("traffic")
	alert, err := h.store.GetAlertByID(r.Context(), alertID)
	if err != nil {
		if err == store.ErrNotFound {
			http.Error(w, "alert not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if err := h.store.SetTrafficController(r.Context(), alertID, trafficID); err != nil {
		h.log.Errorf("record traffic controller for alert %s: %v", alertID, err)
	}
	writeJSON(w, routePathResponse{
		AlertID:   alert.ID,
		Latitude:  alert.Latitude,
		Longitude: alert.Longitude,
		RoutePath: alert.RoutePath,
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
