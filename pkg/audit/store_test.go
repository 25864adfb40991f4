package audit

import (
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	store := NewStore(db)
	require.NoError(t, store.AutoMigrate())
	return store
}

func seedEvent(t *testing.T, store *Store, mutate func(*Event)) *Event {
	t.Helper()
	event := &Event{
		ID:           uuid.New().String(),
		ActorID:      1,
		ActorName:    "dev",
		Action:       "create",
		ResourceType: "app",
		ResourceID:   "1",
		Outcome:      "success",
		StatusCode:   201,
		Method:       "POST",
		Path:         "/api/apps",
		CreatedAt:    time.Now(),
	}
	if mutate != nil {
		mutate(event)
	}
	require.NoError(t, store.Append(event))
	return event
}

func TestAppendAndGet(t *testing.T) {
	store := newTestStore(t)
	event := seedEvent(t, store, nil)

	got, err := store.GetByID(event.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "dev", got.ActorName)
	assert.Equal(t, "create", got.Action)
}

func TestGetUnknownReturnsNil(t *testing.T) {
	store := newTestStore(t)

	got, err := store.GetByID("no-such-id")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestListNewestFirst(t *testing.T) {
	store := newTestStore(t)
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		i := i
		seedEvent(t, store, func(e *Event) {
			e.ResourceID = fmt.Sprintf("%d", i)
			e.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		})
	}

	list, err := store.List(ListFilter{}, 1, 10)
	require.NoError(t, err)
	require.Len(t, list.Items, 3)
	assert.Equal(t, int64(3), list.Total)
	assert.Equal(t, "2", list.Items[0].ResourceID)
	assert.Equal(t, "0", list.Items[2].ResourceID)
}

func TestListFilters(t *testing.T) {
	store := newTestStore(t)
	seedEvent(t, store, nil)
	seedEvent(t, store, func(e *Event) {
		e.ActorName = "admin"
		e.Action = "delete"
		e.ResourceType = "version"
		e.Outcome = "denied"
		e.StatusCode = 403
	})

	byActor, err := store.List(ListFilter{Actor: "admin"}, 1, 10)
	require.NoError(t, err)
	require.Len(t, byActor.Items, 1)
	assert.Equal(t, "delete", byActor.Items[0].Action)

	byOutcome, err := store.List(ListFilter{Outcome: "denied"}, 1, 10)
	require.NoError(t, err)
	assert.Len(t, byOutcome.Items, 1)

	byType, err := store.List(ListFilter{ResourceType: "app"}, 1, 10)
	require.NoError(t, err)
	assert.Len(t, byType.Items, 1)
}

func TestListPagination(t *testing.T) {
	store := newTestStore(t)
	for i := 0; i < 5; i++ {
		seedEvent(t, store, nil)
	}

	page1, err := store.List(ListFilter{}, 1, 2)
	require.NoError(t, err)
	assert.Len(t, page1.Items, 2)
	assert.Equal(t, int64(5), page1.Total)

	page3, err := store.List(ListFilter{}, 3, 2)
	require.NoError(t, err)
	assert.Len(t, page3.Items, 1)
}

func TestDeleteOlderThan(t *testing.T) {
	store := newTestStore(t)
	seedEvent(t, store, func(e *Event) {
		e.CreatedAt = time.Now().Add(-48 * time.Hour)
	})
	fresh := seedEvent(t, store, nil)

	deleted, err := store.DeleteOlderThan(time.Now().Add(-24 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	got, err := store.GetByID(fresh.ID)
	require.NoError(t, err)
	assert.NotNil(t, got)
}
