package timeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/kukusoko/kukusoko-backend/pkg/db/models"
	"github.com/kukusoko/kukusoko-backend/pkg/enums"
	"github.com/kukusoko/kukusoko-backend/pkg/logger"
)

type stubTimelineRepo struct {
	events    []models.OrderTimelineEvent
	createErr error
}

func (s *stubTimelineRepo) WithTx(tx *gorm.DB) Repository { return s }

func (s *stubTimelineRepo) CreateEvent(ctx context.Context, event *models.OrderTimelineEvent) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.events = append(s.events, *event)
	return nil
}

func (s *stubTimelineRepo) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.OrderTimelineEvent, error) {
	return s.events, nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "timeline-test"})
}

func TestRecordPersistsEvent(t *testing.T) {
	repo := &stubTimelineRepo{}
	svc, err := NewService(repo, testLogger())
	require.NoError(t, err)

	orderID := uuid.New()
	svc.Record(context.Background(), Entry{
		OrderID:     orderID,
		Action:      enums.TimelineActionOrderCreated,
		ActorRole:   enums.ActorRoleCustomer,
		Description: "Order placed",
	})

	require.Len(t, repo.events, 1)
	assert.Equal(t, orderID, repo.events[0].OrderID)
	assert.Equal(t, enums.TimelineActionOrderCreated, repo.events[0].Action)
}

func TestRecordSwallowsPersistenceErrors(t *testing.T) {
	repo := &stubTimelineRepo{createErr: errors.New("db down")}
	svc, err := NewService(repo, testLogger())
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		svc.Record(context.Background(), Entry{
			OrderID:     uuid.New(),
			Action:      enums.TimelineActionPaymentConfirmed,
			ActorRole:   enums.ActorRoleSystem,
			Description: "Payment confirmed",
		})
	})
	assert.Empty(t, repo.events)
}

func TestRecordSkipsMalformedEntries(t *testing.T) {
	repo := &stubTimelineRepo{}
	svc, err := NewService(repo, testLogger())
	require.NoError(t, err)

	svc.Record(context.Background(), Entry{Action: enums.TimelineActionOrderCreated})
	svc.Record(context.Background(), Entry{OrderID: uuid.New(), Action: "made_up"})
	assert.Empty(t, repo.events)
}

func TestListRequiresOrderID(t *testing.T) {
	svc, err := NewService(&stubTimelineRepo{}, testLogger())
	require.NoError(t, err)

	_, err = svc.List(context.Background(), uuid.Nil)
	require.Error(t, err)
}

func setupTimelineTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	ddl := `
CREATE TABLE IF NOT EXISTS order_timeline_events (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  action TEXT NOT NULL,
  actor_role TEXT NOT NULL,
  actor_id TEXT,
  actor_name TEXT,
  old_status TEXT,
  new_status TEXT,
  description TEXT NOT NULL,
  metadata TEXT,
  created_at DATETIME
);`
	require.NoError(t, db.Exec(ddl).Error)
	t.Cleanup(func() {
		db.Exec("DELETE FROM order_timeline_events")
	})
	return db
}

func TestListReturnsNewestFirst(t *testing.T) {
	db := setupTimelineTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	orderID := uuid.New()
	base := time.Now().Add(-time.Hour)
	for i, action := range []enums.TimelineAction{
		enums.TimelineActionOrderCreated,
		enums.TimelineActionPaymentSubmitted,
		enums.TimelineActionPaymentConfirmed,
	} {
		err := db.Exec(`
			INSERT INTO order_timeline_events (id, order_id, action, actor_role, description, created_at)
			VALUES (?, ?, ?, 'system', 'event', ?)
		`, uuid.New(), orderID, action.String(), base.Add(time.Duration(i)*time.Minute)).Error
		require.NoError(t, err)
	}

	events, err := repo.ListByOrder(ctx, orderID)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, enums.TimelineActionPaymentConfirmed, events[0].Action)
	assert.Equal(t, enums.TimelineActionOrderCreated, events[2].Action)
}
