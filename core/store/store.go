// Package store defines the persistence contract consumed by the dispatch
// engine. Durable storage of accounts, alerts, votes and push subscriptions
// lives behind this interface; implementations must be safe for concurrent
// use.
package store

import (
	"context"
	"errors"

	"github.com/domtech/lifeline/core/model"
)

// ErrNotFound is returned when the requested record does not exist.
var ErrNotFound = errors.New("store: not found")

// Store is the query interface the engine needs from durable storage.
type Store interface {
	// CreateAlert persists a new alert. ID, status and creation time must be
	// set by the caller.
	CreateAlert(ctx context.Context, a model.Alert) error
	GetAlertByID(ctx context.Context, id string) (model.Alert, error)
	// UpdateAlertStatus unconditionally sets status and assigned responder.
	UpdateAlertStatus(ctx context.Context, id string, status model.AlertStatus, assignedResponderID string) error
	// PromoteAlert transitions the alert from one status to another only if it
	// is still in the expected state. It reports whether this caller performed
	// the transition, so concurrent promoters see exactly one winner.
	PromoteAlert(ctx context.Context, id string, from, to model.AlertStatus) (bool, error)
	// AlertsAssignedTo lists alerts assigned to the responder in the given
	// status, used for reconnection recovery.
	AlertsAssignedTo(ctx context.Context, responderID string, status model.AlertStatus) ([]model.Alert, error)
	SetRoutePath(ctx context.Context, id string, path []model.Coordinate) error
	SetTrafficController(ctx context.Context, alertID, trafficID string) error

	// SaveValidation upserts a vote; a voter's second vote overwrites the
	// first (last vote wins).
	SaveValidation(ctx context.Context, alertID, voterID string, vote bool) error
	CountTrueVotes(ctx context.Context, alertID string) (int, error)

	GetUser(ctx context.Context, id string) (model.Principal, error)
	ListUsers(ctx context.Context) ([]model.Principal, error)
	// ListUsersByRole returns users whose role is in roles.
	ListUsersByRole(ctx context.Context, roles []model.Role) ([]model.Principal, error)
	UpdateUserLocation(ctx context.Context, id string, loc model.Coordinate) error

	SaveSubscription(ctx context.Context, sub model.PushSubscription) error
	SubscriptionsForUser(ctx context.Context, userID string) ([]model.PushSubscription, error)
	ListSubscriptions(ctx context.Context) ([]model.PushSubscription, error)
	DeleteSubscription(ctx context.Context, endpoint string) error
}
