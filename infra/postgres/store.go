// Package postgres implements the engine's persistence contract on
// PostgreSQL using pgx.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/domtech/lifeline/core/model"
	"github.com/domtech/lifeline/core/store"
)

// Config carries the database connection settings.
type Config struct {
	DSN string `json:"dsn"`
}

// Store is the PostgreSQL-backed store.Store implementation.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to the database and verifies the connection.
func New(ctx context.Context, cfg Config) (*Store, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return &Store{pool: pool}, nil
}

// NewWithPool wraps an existing pool, used by tests.
func NewWithPool(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) CreateAlert(ctx context.Context, a model.Alert) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO alerts (id, creator_id, creator_name, creator_phone, message,
			latitude, longitude, emergency_type, status, assigned_responder_id,
			traffic_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		a.ID, a.CreatorID, a.CreatorName, a.CreatorPhone, a.Message,
		a.Latitude, a.Longitude, string(a.EmergencyType), string(a.Status),
		a.AssignedResponderID, a.TrafficID, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("create alert: %w", err)
	}
	return nil
}

const alertColumns = `id, creator_id, creator_name, creator_phone, message,
	latitude, longitude, emergency_type, status, assigned_responder_id,
	traffic_id, route_path, created_at`

func (s *Store) GetAlertByID(ctx context.Context, id string) (model.Alert, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+alertColumns+` FROM alerts WHERE id = $1`, id)
	return scanAlert(row)
}

func (s *Store) UpdateAlertStatus(ctx context.Context, id string, status model.AlertStatus, assignedResponderID string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE alerts SET status = $2,
			assigned_responder_id = CASE WHEN $3 = '' THEN assigned_responder_id ELSE $3 END
		WHERE id = $1`,
		id, string(status), assignedResponderID)
	if err != nil {
		return fmt.Errorf("update alert status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) PromoteAlert(ctx context.Context, id string, from, to model.AlertStatus) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE alerts SET status = $3 WHERE id = $1 AND status = $2`,
		id, string(from), string(to))
	if err != nil {
		return false, fmt.Errorf("promote alert: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) AlertsAssignedTo(ctx context.Context, responderID string, status model.AlertStatus) ([]model.Alert, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+alertColumns+` FROM alerts
		 WHERE assigned_responder_id = $1 AND status = $2 ORDER BY id`,
		responderID, string(status))
	if err != nil {
		return nil, fmt.Errorf("alerts assigned to %s: %w", responderID, err)
	}
	defer rows.Close()
	var out []model.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) SetRoutePath(ctx context.Context, id string, path []model.Coordinate) error {
	raw, err := json.Marshal(path)
	if err != nil {
		return fmt.Errorf("encode route path: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `UPDATE alerts SET route_path = $2 WHERE id = $1`, id, raw)
	if err != nil {
		return fmt.Errorf("set route path: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) SetTrafficController(ctx context.Context, alertID, trafficID string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE alerts SET traffic_id = $2 WHERE id = $1`, alertID, trafficID)
	if err != nil {
		return fmt.Errorf("set traffic controller: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) SaveValidation(ctx context.Context, alertID, voterID string, vote bool) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO emergency_validation (alert_id, voter_id, vote)
		VALUES ($1, $2, $3)
		ON CONFLICT (alert_id, voter_id) DO UPDATE SET vote = EXCLUDED.vote`,
		alertID, voterID, vote)
	if err != nil {
		return fmt.Errorf("save validation: %w", err)
	}
	return nil
}

func (s *Store) CountTrueVotes(ctx context.Context, alertID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM emergency_validation WHERE alert_id = $1 AND vote`,
		alertID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count votes: %w", err)
	}
	return n, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (model.Principal, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, role, display_name, phone, latitude, longitude FROM users WHERE id = $1`, id)
	return scanUser(row)
}

func (s *Store) ListUsers(ctx context.Context) ([]model.Principal, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, role, display_name, phone, latitude, longitude FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return collectUsers(rows)
}

func (s *Store) ListUsersByRole(ctx context.Context, roles []model.Role) ([]model.Principal, error) {
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, role, display_name, phone, latitude, longitude
		 FROM users WHERE role = ANY($1) ORDER BY id`, names)
	if err != nil {
		return nil, fmt.Errorf("list users by role: %w", err)
	}
	return collectUsers(rows)
}

func (s *Store) UpdateUserLocation(ctx context.Context, id string, loc model.Coordinate) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET latitude = $2, longitude = $3 WHERE id = $1`,
		id, loc.Latitude, loc.Longitude)
	if err != nil {
		return fmt.Errorf("update user location: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// PutUser upserts an account mirror row. Account management is external; this
// is the ingestion side used by seeding and tests.
func (s *Store) PutUser(ctx context.Context, p model.Principal) error {
	var lat, lng *float64
	if p.Location != nil {
		lat, lng = &p.Location.Latitude, &p.Location.Longitude
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, role, display_name, phone, latitude, longitude)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			role = EXCLUDED.role,
			display_name = EXCLUDED.display_name,
			phone = EXCLUDED.phone,
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude`,
		p.ID, string(p.Role), p.DisplayName, p.Phone, lat, lng)
	if err != nil {
		return fmt.Errorf("put user: %w", err)
	}
	return nil
}

func (s *Store) SaveSubscription(ctx context.Context, sub model.PushSubscription) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO subscriptions (endpoint, user_id, p256dh, auth)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (endpoint) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			p256dh = EXCLUDED.p256dh,
			auth = EXCLUDED.auth`,
		sub.Endpoint, sub.UserID, sub.P256dh, sub.Auth)
	if err != nil {
		return fmt.Errorf("save subscription: %w", err)
	}
	return nil
}

func (s *Store) SubscriptionsForUser(ctx context.Context, userID string) ([]model.PushSubscription, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT endpoint, user_id, p256dh, auth FROM subscriptions WHERE user_id = $1 ORDER BY endpoint`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("subscriptions for %s: %w", userID, err)
	}
	return collectSubscriptions(rows)
}

func (s *Store) ListSubscriptions(ctx context.Context) ([]model.PushSubscription, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT endpoint, user_id, p256dh, auth FROM subscriptions ORDER BY endpoint`)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	return collectSubscriptions(rows)
}

func (s *Store) DeleteSubscription(ctx context.Context, endpoint string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM subscriptions WHERE endpoint = $1`, endpoint)
	if err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	return nil
}

func scanAlert(row pgx.Row) (model.Alert, error) {
	var a model.Alert
	var emergencyType, status string
	var routePath []byte
	err := row.Scan(&a.ID, &a.CreatorID, &a.CreatorName, &a.CreatorPhone, &a.Message,
		&a.Latitude, &a.Longitude, &emergencyType, &status, &a.AssignedResponderID,
		&a.TrafficID, &routePath, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Alert{}, store.ErrNotFound
		}
		return model.Alert{}, fmt.Errorf("scan alert: %w", err)
	}
	a.EmergencyType = model.EmergencyType(emergencyType)
	a.Status = model.AlertStatus(status)
	if len(routePath) > 0 {
		if err := json.Unmarshal(routePath, &a.RoutePath); err != nil {
			return model.Alert{}, fmt.Errorf("decode route path: %w", err)
		}
	}
	return a, nil
}

func scanUser(row pgx.Row) (model.Principal, error) {
	var p model.Principal
	var role string
	var lat, lng *float64
	if err := row.Scan(&p.ID, &role, &p.DisplayName, &p.Phone, &lat, &lng); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Principal{}, store.ErrNotFound
		}
		return model.Principal{}, fmt.Errorf("scan user: %w", err)
	}
	p.Role = model.Role(role)
	if lat != nil && lng != nil {
		p.Location = &model.Coordinate{Latitude: *lat, Longitude: *lng}
	}
	return p, nil
}

func collectUsers(rows pgx.Rows) ([]model.Principal, error) {
	defer rows.Close()
	var out []model.Principal
	for rows.Next() {
		p, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func collectSubscriptions(rows pgx.Rows) ([]model.PushSubscription, error) {
	defer rows.Close()
	var out []model.PushSubscription
	for rows.Next() {
		var sub model.PushSubscription
		if err := rows.Scan(&sub.Endpoint, &sub.UserID, &sub.P256dh, &sub.Auth); err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

var _ store.Store = (*Store)(nil)
