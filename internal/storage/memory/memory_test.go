package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskly/trackd/internal/model"
	"github.com/taskly/trackd/internal/storage/memory"
)

func newRepo(t *testing.T) *memory.Repository {
	t.Helper()
	repo, err := memory.NewRepository(memory.RepositoryConfig{})
	require.NoError(t, err)
	return repo
}

func TestSessionVersioning(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	s := model.TrackingSession{
		Slot:      model.SlotTask,
		TaskID:    "task-1",
		StartTime: time.Now().UTC(),
		Version:   1,
	}
	require.NoError(t, repo.SetSession(ctx, s))

	// Reads return copies: mutating them does not touch the store.
	got, err := repo.GetSession(ctx, model.SlotTask)
	require.NoError(t, err)
	got.TaskID = "mutated"
	fresh, err := repo.GetSession(ctx, model.SlotTask)
	require.NoError(t, err)
	assert.Equal(t, "task-1", fresh.TaskID)

	s.AccumulatedSeconds = 10
	require.NoError(t, repo.UpdateSession(ctx, s))

	// The stale version loses.
	err = repo.UpdateSession(ctx, s)
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrConflict))

	got, err = repo.GetSession(ctx, model.SlotTask)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Version)
	assert.Equal(t, int64(10), got.AccumulatedSeconds)
}

func TestDueNotificationsOrdering(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	now := time.Now().UTC()
	for _, n := range []model.ScheduledNotification{
		{ID: "n-later", Title: "b", ScheduledTime: now.Add(-time.Minute), Status: model.NotificationStatusPending, CreatedAt: now},
		{ID: "n-earlier", Title: "a", ScheduledTime: now.Add(-time.Hour), Status: model.NotificationStatusPending, CreatedAt: now},
		{ID: "n-future", Title: "c", ScheduledTime: now.Add(time.Hour), Status: model.NotificationStatusPending, CreatedAt: now},
	} {
		require.NoError(t, repo.CreateNotification(ctx, n))
	}

	due, err := repo.ListDueNotifications(ctx, now)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, "n-earlier", due[0].ID)
	assert.Equal(t, "n-later", due[1].ID)

	require.NoError(t, repo.MarkNotificationDelivered(ctx, "n-earlier", now))
	err = repo.MarkNotificationDelivered(ctx, "n-earlier", now)
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrNotFound))
}

func TestCachePurgeExcept(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	now := time.Now().UTC()
	for _, ns := range []string{"static-v1", "dynamic-v1", "static-v2", "dynamic-v2"} {
		require.NoError(t, repo.PutEntry(ctx, model.CacheEntry{
			Namespace:  ns,
			Key:        "/manifest.json",
			StatusCode: 200,
			StoredAt:   now,
		}))
	}

	require.NoError(t, repo.PurgeExcept(ctx, []string{"static-v2", "dynamic-v2"}))

	for _, ns := range []string{"static-v1", "dynamic-v1"} {
		_, err := repo.GetEntry(ctx, ns, "/manifest.json")
		assert.True(t, errors.Is(err, model.ErrNotFound), ns)
	}
	for _, ns := range []string{"static-v2", "dynamic-v2"} {
		_, err := repo.GetEntry(ctx, ns, "/manifest.json")
		assert.NoError(t, err, ns)
	}
}
