package storagemock

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/taskly/trackd/internal/model"
)

// MockRepository is a mock implementation of the storage repositories.
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) GetSession(ctx context.Context, slot model.Slot) (*model.TrackingSession, error) {
	args := m.Called(ctx, slot)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.TrackingSession), args.Error(1)
}

func (m *MockRepository) SetSession(ctx context.Context, s model.TrackingSession) error {
	args := m.Called(ctx, s)
	return args.Error(0)
}

func (m *MockRepository) UpdateSession(ctx context.Context, s model.TrackingSession) error {
	args := m.Called(ctx, s)
	return args.Error(0)
}

func (m *MockRepository) DeleteSession(ctx context.Context, slot model.Slot) error {
	args := m.Called(ctx, slot)
	return args.Error(0)
}

func (m *MockRepository) ListSessions(ctx context.Context) ([]model.TrackingSession, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.TrackingSession), args.Error(1)
}

func (m *MockRepository) CreateNotification(ctx context.Context, n model.ScheduledNotification) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}

func (m *MockRepository) GetNotification(ctx context.Context, id string) (*model.ScheduledNotification, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ScheduledNotification), args.Error(1)
}

func (m *MockRepository) ListNotifications(ctx context.Context) ([]model.ScheduledNotification, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.ScheduledNotification), args.Error(1)
}

func (m *MockRepository) ListDueNotifications(ctx context.Context, now time.Time) ([]model.ScheduledNotification, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.ScheduledNotification), args.Error(1)
}

func (m *MockRepository) MarkNotificationDelivered(ctx context.Context, id string, deliveredAt time.Time) error {
	args := m.Called(ctx, id, deliveredAt)
	return args.Error(0)
}

func (m *MockRepository) GetEntry(ctx context.Context, namespace, key string) (*model.CacheEntry, error) {
	args := m.Called(ctx, namespace, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.CacheEntry), args.Error(1)
}

func (m *MockRepository) PutEntry(ctx context.Context, e model.CacheEntry) error {
	args := m.Called(ctx, e)
	return args.Error(0)
}

func (m *MockRepository) PurgeExcept(ctx context.Context, keep []string) error {
	args := m.Called(ctx, keep)
	return args.Error(0)
}
