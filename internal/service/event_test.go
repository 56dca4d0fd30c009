package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ecphub/backend/internal/domain"
	"ecphub/backend/internal/storage/memory"
)

func TestEventService(t *testing.T) {
	ctx := context.Background()

	t.Run("创建后以驼峰视图返回", func(t *testing.T) {
		store := memory.NewStore()
		notifier := &recordingNotifier{}
		svc := NewEventService(store, notifier, nil)

		saved, err := svc.Create(ctx, CreateEventInput{
			LocationID: json.RawMessage(`17`),
			EventName:  "Spring Gala",
			Date:       "2024-03-01",
			StartTime:  "05:00 PM",
			EndTime:    "11:00 PM",
		})
		require.NoError(t, err)
		assert.Equal(t, 1, saved)
		assert.Equal(t, []int{1}, notifier.saved)

		views, err := svc.List(ctx)
		require.NoError(t, err)
		require.Len(t, views, 1)
		v := views[0]
		assert.NotEmpty(t, v.ID)
		assert.Equal(t, "17", v.LocationID)
		assert.Equal(t, "Spring Gala", v.Name)
		assert.Equal(t, "2024-03-01", v.Date)
		assert.Equal(t, "05:00 PM", v.StartTime)
		assert.Equal(t, "11:00 PM", v.EndTime)
		assert.Equal(t, "", v.Notes)

		events, err := store.ListAll(ctx)
		require.NoError(t, err)
		assert.Equal(t, "", events[0].GuestCount)
		assert.Equal(t, "", events[0].ValetsNeeded)
	})

	t.Run("列表按日期再按创建时间排序", func(t *testing.T) {
		store := memory.NewStore()
		svc := NewEventService(store, nil, nil)

		for _, in := range []struct{ date, name string }{
			{"2024-01-02", "third"},
			{"2024-01-01", "first"},
			{"2024-01-01", "second"},
		} {
			_, err := svc.Create(ctx, CreateEventInput{
				LocationID: json.RawMessage(`"A-1"`),
				EventName:  in.name,
				Date:       in.date,
				StartTime:  "09:00 AM",
				EndTime:    "10:00 AM",
			})
			require.NoError(t, err)
		}

		views, err := svc.List(ctx)
		require.NoError(t, err)
		require.Len(t, views, 3)
		assert.Equal(t, "first", views[0].Name)
		assert.Equal(t, "second", views[1].Name)
		assert.Equal(t, "third", views[2].Name)
		assert.Equal(t, "A-1", views[0].LocationID)
	})

	t.Run("非法 locationId 被拒绝", func(t *testing.T) {
		store := memory.NewStore()
		svc := NewEventService(store, nil, nil)

		_, err := svc.Create(ctx, CreateEventInput{
			LocationID: json.RawMessage(`{"id": 1}`),
			EventName:  "x",
			Date:       "2024-01-01",
		})
		assert.ErrorIs(t, err, domain.ErrInvalidEvent)

		views, err := svc.List(ctx)
		require.NoError(t, err)
		assert.Empty(t, views)
	})

	t.Run("空库返回空列表", func(t *testing.T) {
		svc := NewEventService(memory.NewStore(), nil, nil)
		views, err := svc.List(ctx)
		require.NoError(t, err)
		assert.NotNil(t, views)
		assert.Empty(t, views)
	})
}
