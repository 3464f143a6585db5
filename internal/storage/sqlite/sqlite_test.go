package sqlite_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskly/trackd/internal/log"
	"github.com/taskly/trackd/internal/model"
	"github.com/taskly/trackd/internal/storage/sqlite"
)

func sessionFixture(slot model.Slot, taskID string) model.TrackingSession {
	now := time.Now().UTC().Truncate(time.Second)
	return model.TrackingSession{
		Slot:               slot,
		TaskID:             taskID,
		StartTime:          now,
		AccumulatedSeconds: 0,
		IsPaused:           false,
		Version:            1,
	}
}

func notificationFixture(id, title string, scheduled time.Time) model.ScheduledNotification {
	return model.ScheduledNotification{
		ID:            id,
		Title:         title,
		Body:          "time is up",
		Tag:           "timer-complete",
		Data:          map[string]string{"taskId": "task-1"},
		ScheduledTime: scheduled,
		Status:        model.NotificationStatusPending,
		CreatedAt:     time.Now().UTC().Truncate(time.Second),
	}
}

func newRepo(t *testing.T) *sqlite.Repository {
	t.Helper()
	repo, err := sqlite.NewRepository(context.Background(), sqlite.RepositoryConfig{
		DBPath: filepath.Join(t.TempDir(), "test.db"),
		Logger: log.Noop,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestSessionCRUD(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	s := sessionFixture(model.SlotTask, "task-1")
	require.NoError(t, repo.SetSession(ctx, s))

	got, err := repo.GetSession(ctx, model.SlotTask)
	require.NoError(t, err)
	assert.Equal(t, "task-1", got.TaskID)
	assert.Equal(t, int64(1), got.Version)
	assert.False(t, got.IsPaused)

	_, err = repo.GetSession(ctx, model.SlotSubtask)
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrNotFound))

	all, err := repo.ListSessions(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	// Slot re-use replaces the whole record.
	replaced := sessionFixture(model.SlotTask, "task-2")
	require.NoError(t, repo.SetSession(ctx, replaced))
	got, err = repo.GetSession(ctx, model.SlotTask)
	require.NoError(t, err)
	assert.Equal(t, "task-2", got.TaskID)
	assert.Equal(t, int64(0), got.AccumulatedSeconds)

	require.NoError(t, repo.DeleteSession(ctx, model.SlotTask))
	_, err = repo.GetSession(ctx, model.SlotTask)
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrNotFound))

	err = repo.DeleteSession(ctx, model.SlotTask)
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrNotFound))
}

func TestSessionUpdateVersioning(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	s := sessionFixture(model.SlotTask, "task-1")
	require.NoError(t, repo.SetSession(ctx, s))

	now := time.Now().UTC().Truncate(time.Second)
	s.IsPaused = true
	s.PausedAt = &now
	s.AccumulatedSeconds = 42
	require.NoError(t, repo.UpdateSession(ctx, s))

	got, err := repo.GetSession(ctx, model.SlotTask)
	require.NoError(t, err)
	assert.True(t, got.IsPaused)
	assert.Equal(t, int64(42), got.AccumulatedSeconds)
	assert.Equal(t, int64(2), got.Version)
	require.NotNil(t, got.PausedAt)
	assert.Equal(t, now, *got.PausedAt)

	// A writer holding the old version loses the race.
	err = repo.UpdateSession(ctx, s)
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrConflict))

	// Updating an absent slot is not a conflict.
	missing := sessionFixture(model.SlotSubtask, "task-9")
	missing.SubtaskID = "sub-9"
	err = repo.UpdateSession(ctx, missing)
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrNotFound))
}

func TestNotificationLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	now := time.Now().UTC().Truncate(time.Second)
	due := notificationFixture("n-1", "Timer finished", now.Add(-time.Minute))
	future := notificationFixture("n-2", "Break reminder", now.Add(time.Hour))

	require.NoError(t, repo.CreateNotification(ctx, due))
	require.NoError(t, repo.CreateNotification(ctx, future))

	err := repo.CreateNotification(ctx, due)
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrAlreadyExists))

	got, err := repo.GetNotification(ctx, "n-1")
	require.NoError(t, err)
	assert.Equal(t, "Timer finished", got.Title)
	assert.Equal(t, map[string]string{"taskId": "task-1"}, got.Data)

	all, err := repo.ListNotifications(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	dueList, err := repo.ListDueNotifications(ctx, now)
	require.NoError(t, err)
	require.Len(t, dueList, 1)
	assert.Equal(t, "n-1", dueList[0].ID)

	require.NoError(t, repo.MarkNotificationDelivered(ctx, "n-1", now))

	delivered, err := repo.GetNotification(ctx, "n-1")
	require.NoError(t, err)
	assert.Equal(t, model.NotificationStatusDelivered, delivered.Status)
	require.NotNil(t, delivered.DeliveredAt)

	// Delivery is one-shot: a second mark means someone else won the race.
	err = repo.MarkNotificationDelivered(ctx, "n-1", now)
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrNotFound))

	dueList, err = repo.ListDueNotifications(ctx, now)
	require.NoError(t, err)
	assert.Empty(t, dueList)
}

func TestCacheEntries(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	now := time.Now().UTC().Truncate(time.Second)
	entry := model.CacheEntry{
		Namespace:  "static-v1",
		Key:        "http://localhost/manifest.json",
		StatusCode: 200,
		Headers:    map[string][]string{"Content-Type": {"application/json"}},
		Body:       []byte(`{"name":"taskly"}`),
		StoredAt:   now,
	}
	require.NoError(t, repo.PutEntry(ctx, entry))

	got, err := repo.GetEntry(ctx, "static-v1", "http://localhost/manifest.json")
	require.NoError(t, err)
	assert.Equal(t, 200, got.StatusCode)
	assert.Equal(t, entry.Body, got.Body)
	assert.Equal(t, "application/json", got.Headers["Content-Type"][0])

	// Upsert replaces the previous snapshot.
	entry.StatusCode = 304
	require.NoError(t, repo.PutEntry(ctx, entry))
	got, err = repo.GetEntry(ctx, "static-v1", "http://localhost/manifest.json")
	require.NoError(t, err)
	assert.Equal(t, 304, got.StatusCode)

	_, err = repo.GetEntry(ctx, "static-v1", "http://localhost/missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrNotFound))

	old := entry
	old.Namespace = "static-v0"
	require.NoError(t, repo.PutEntry(ctx, old))

	require.NoError(t, repo.PurgeExcept(ctx, []string{"static-v1", "dynamic-v1"}))

	_, err = repo.GetEntry(ctx, "static-v0", old.Key)
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrNotFound))

	_, err = repo.GetEntry(ctx, "static-v1", entry.Key)
	require.NoError(t, err)
}
