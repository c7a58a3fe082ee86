package store

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/domtech/lifeline/core/model"
)

func TestMemoryStoreAlertLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	a := model.Alert{ID: "a1", CreatorID: "u1", Status: model.StatusPending, EmergencyType: model.EmergencyFire}
	require.NoError(t, s.CreateAlert(ctx, a))

	got, err := s.GetAlertByID(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, got.Status)

	_, err = s.GetAlertByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.UpdateAlertStatus(ctx, "a1", model.StatusInProgress, "r1"))
	got, err = s.GetAlertByID(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusInProgress, got.Status)
	assert.Equal(t, "r1", got.AssignedResponderID)
}

func TestMemoryStorePromoteAlertCompareAndSet(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.CreateAlert(ctx, model.Alert{ID: "a1", Status: model.StatusPending}))

	var wins int
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.PromoteAlert(ctx, "a1", model.StatusPending, model.StatusActive)
			if err != nil {
				t.Errorf("promote: %v", err)
				return
			}
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins, "exactly one promoter must win")
}

func TestMemoryStoreRevoteOverwrites(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.SaveValidation(ctx, "a1", "v1", true))
	require.NoError(t, s.SaveValidation(ctx, "a1", "v2", true))
	n, err := s.CountTrueVotes(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// v1 changes their mind: last vote wins, count drops.
	require.NoError(t, s.SaveValidation(ctx, "a1", "v1", false))
	n, err = s.CountTrueVotes(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMemoryStoreUsersAndSubscriptions(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	s.PutUser(model.Principal{ID: "u1", Role: model.RoleUser})
	s.PutUser(model.Principal{ID: "h1", Role: model.RoleHospital})
	s.PutUser(model.Principal{ID: "p1", Role: model.RolePolice})

	got, err := s.ListUsersByRole(ctx, []model.Role{model.RoleHospital, model.RolePolice})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "h1", got[0].ID)

	require.NoError(t, s.UpdateUserLocation(ctx, "h1", model.Coordinate{Latitude: 1, Longitude: 2}))
	u, err := s.GetUser(ctx, "h1")
	require.NoError(t, err)
	require.True(t, u.HasLocation())
	assert.Equal(t, 1.0, u.Location.Latitude)

	sub := model.PushSubscription{UserID: "u1", Endpoint: "https://push/1", P256dh: "k", Auth: "a"}
	require.NoError(t, s.SaveSubscription(ctx, sub))
	subs, err := s.SubscriptionsForUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, subs, 1)

	require.NoError(t, s.DeleteSubscription(ctx, "https://push/1"))
	subs, err = s.SubscriptionsForUser(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, subs)
}
