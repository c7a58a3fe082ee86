package postgres

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/domtech/lifeline/core/model"
	"github.com/domtech/lifeline/core/store"
)

// startPostgres boots a disposable database and returns a migrated store.
func startPostgres(t *testing.T) *Store {
	t.Helper()
	if os.Getenv("DOCKER_AVAILABLE") != "true" && os.Getenv("DOCKER_AVAILABLE") != "1" {
		t.Skip("docker not available")
	}
	ctx := context.Background()
	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("lifeline"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		tc.WithWaitStrategy(wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	s, err := New(ctx, Config{DSN: dsn})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	require.NoError(t, s.Migrate(ctx))
	return s
}

func TestIntegrationAlertLifecycle(t *testing.T) {
	s := startPostgres(t)
	ctx := context.Background()

	alert := model.Alert{
		ID:            "a1",
		CreatorID:     "u1",
		CreatorName:   "Ada",
		Message:       "fire",
		Latitude:      48.85,
		Longitude:     2.35,
		EmergencyType: model.EmergencyFire,
		Status:        model.StatusPending,
		CreatedAt:     time.Now().UTC(),
	}
	require.NoError(t, s.CreateAlert(ctx, alert))

	got, err := s.GetAlertByID(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, got.Status)
	assert.Equal(t, "Ada", got.CreatorName)

	_, err = s.GetAlertByID(ctx, "ghost")
	assert.ErrorIs(t, err, store.ErrNotFound)

	// Concurrent promoters see exactly one winner.
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			won, err := s.PromoteAlert(ctx, "a1", model.StatusPending, model.StatusActive)
			assert.NoError(t, err)
			if won {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())

	require.NoError(t, s.UpdateAlertStatus(ctx, "a1", model.StatusInProgress, "f1"))
	got, err = s.GetAlertByID(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "f1", got.AssignedResponderID)

	// An empty responder id keeps the existing assignment.
	require.NoError(t, s.UpdateAlertStatus(ctx, "a1", model.StatusResolved, ""))
	got, err = s.GetAlertByID(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "f1", got.AssignedResponderID)
	assert.Equal(t, model.StatusResolved, got.Status)
}

func TestIntegrationVotesUpsert(t *testing.T) {
	s := startPostgres(t)
	ctx := context.Background()
	require.NoError(t, s.CreateAlert(ctx, model.Alert{ID: "a1", CreatorID: "u1", Status: model.StatusPending, CreatedAt: time.Now()}))

	require.NoError(t, s.SaveValidation(ctx, "a1", "w1", true))
	require.NoError(t, s.SaveValidation(ctx, "a1", "w2", true))
	n, err := s.CountTrueVotes(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// Last vote wins.
	require.NoError(t, s.SaveValidation(ctx, "a1", "w1", false))
	n, err = s.CountTrueVotes(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestIntegrationUsersAndSubscriptions(t *testing.T) {
	s := startPostgres(t)
	ctx := context.Background()

	require.NoError(t, s.PutUser(ctx, model.Principal{ID: "h1", Role: model.RoleHospital, DisplayName: "CHU",
		Location: &model.Coordinate{Latitude: 48.0, Longitude: 2.0}}))
	require.NoError(t, s.PutUser(ctx, model.Principal{ID: "u1", Role: model.RoleUser}))

	byRole, err := s.ListUsersByRole(ctx, []model.Role{model.RoleHospital, model.RolePolice})
	require.NoError(t, err)
	require.Len(t, byRole, 1)
	assert.Equal(t, "h1", byRole[0].ID)
	require.True(t, byRole[0].HasLocation())

	require.NoError(t, s.UpdateUserLocation(ctx, "u1", model.Coordinate{Latitude: 1, Longitude: 2}))
	u, err := s.GetUser(ctx, "u1")
	require.NoError(t, err)
	require.True(t, u.HasLocation())
	assert.Equal(t, 1.0, u.Location.Latitude)
	assert.ErrorIs(t, s.UpdateUserLocation(ctx, "ghost", model.Coordinate{}), store.ErrNotFound)

	require.NoError(t, s.SaveSubscription(ctx, model.PushSubscription{UserID: "u1", Endpoint: "https://push/1", P256dh: "k", Auth: "a"}))
	require.NoError(t, s.SaveSubscription(ctx, model.PushSubscription{UserID: "u1", Endpoint: "https://push/2", P256dh: "k", Auth: "a"}))
	subs, err := s.SubscriptionsForUser(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, subs, 2)

	require.NoError(t, s.DeleteSubscription(ctx, "https://push/1"))
	subs, err = s.SubscriptionsForUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "https://push/2", subs[0].Endpoint)
}

func TestIntegrationRoutePathRoundTrip(t *testing.T) {
	s := startPostgres(t)
	ctx := context.Background()
	require.NoError(t, s.CreateAlert(ctx, model.Alert{ID: "a1", CreatorID: "u1", Status: model.StatusInProgress,
		AssignedResponderID: "f1", CreatedAt: time.Now()}))

	path := []model.Coordinate{{Latitude: 1, Longitude: 2}, {Latitude: 3, Longitude: 4}}
	require.NoError(t, s.SetRoutePath(ctx, "a1", path))
	require.NoError(t, s.SetTrafficController(ctx, "a1", "t1"))

	got, err := s.GetAlertByID(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, path, got.RoutePath)
	assert.Equal(t, "t1", got.TrafficID)

	assigned, err := s.AlertsAssignedTo(ctx, "f1", model.StatusInProgress)
	require.NoError(t, err)
	require.Len(t, assigned, 1)
	assert.Equal(t, "a1", assigned[0].ID)
}
