package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeEvent(t *testing.T) {
	t.Run("完整字段原样保留", func(t *testing.T) {
		raw := json.RawMessage(`{
			"event_date": "2024-03-01",
			"start_time": "05:00 PM",
			"end_time": "11:00 PM",
			"event_name": "Gala",
			"notes": "black tie",
			"location_id": "loc-7",
			"guest_count": "250",
			"valets_needed": "6"
		}`)

		ev, err := NormalizeEvent(raw)
		require.NoError(t, err)

		assert.Equal(t, Event{
			EventDate:    "2024-03-01",
			StartTime:    "05:00 PM",
			EndTime:      "11:00 PM",
			EventName:    "Gala",
			Notes:        "black tie",
			LocationID:   "loc-7",
			GuestCount:   "250",
			ValetsNeeded: "6",
		}, ev)
	})

	t.Run("缺失字段默认为空字符串", func(t *testing.T) {
		ev, err := NormalizeEvent(json.RawMessage(`{"event_date": "2024-01-01"}`))
		require.NoError(t, err)

		assert.Equal(t, "2024-01-01", ev.EventDate)
		assert.Equal(t, "", ev.StartTime)
		assert.Equal(t, "", ev.EndTime)
		assert.Equal(t, "", ev.EventName)
		assert.Equal(t, "", ev.Notes)
		assert.Equal(t, "", ev.LocationID)
		assert.Equal(t, "", ev.GuestCount)
		assert.Equal(t, "", ev.ValetsNeeded)
		assert.Empty(t, ev.ID)
		assert.True(t, ev.CreatedAt.IsZero())
	})

	t.Run("数字保留字面量", func(t *testing.T) {
		ev, err := NormalizeEvent(json.RawMessage(`{"location_id": 7, "guest_count": 120.5, "valets_needed": null}`))
		require.NoError(t, err)

		assert.Equal(t, "7", ev.LocationID)
		assert.Equal(t, "120.5", ev.GuestCount)
		assert.Equal(t, "", ev.ValetsNeeded)
	})

	t.Run("非对象条目失败", func(t *testing.T) {
		_, err := NormalizeEvent(json.RawMessage(`"just text"`))
		assert.ErrorIs(t, err, ErrInvalidEvent)
	})

	t.Run("非标量字段保存为 JSON 文本", func(t *testing.T) {
		ev, err := NormalizeEvent(json.RawMessage(`{"event_name": {"first": "Gala", "n": 2}, "guest_count": ["40", "50"]}`))
		require.NoError(t, err)
		assert.Equal(t, `{"first":"Gala","n":2}`, ev.EventName)
		assert.Equal(t, `["40","50"]`, ev.GuestCount)
	})

	t.Run("未知字段被忽略", func(t *testing.T) {
		ev, err := NormalizeEvent(json.RawMessage(`{"event_name": "Brunch", "venue": {"room": 3}}`))
		require.NoError(t, err)
		assert.Equal(t, "Brunch", ev.EventName)
	})
}

func TestNormalizeEvents(t *testing.T) {
	t.Run("整批规范化", func(t *testing.T) {
		events, err := NormalizeEvents([]json.RawMessage{
			json.RawMessage(`{"event_date": "2024-01-02"}`),
			json.RawMessage(`{"event_date": "2024-01-01"}`),
		})
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, "2024-01-02", events[0].EventDate)
		assert.Equal(t, "2024-01-01", events[1].EventDate)
	})

	t.Run("任一条目非法则整批失败", func(t *testing.T) {
		events, err := NormalizeEvents([]json.RawMessage{
			json.RawMessage(`{"event_date": "2024-01-02"}`),
			json.RawMessage(`[1, 2]`),
		})
		assert.ErrorIs(t, err, ErrInvalidEvent)
		assert.Contains(t, err.Error(), "item 1")
		assert.Nil(t, events)
	})

	t.Run("个别字段取值异常不影响整批", func(t *testing.T) {
		events, err := NormalizeEvents([]json.RawMessage{
			json.RawMessage(`{"event_date": "2024-03-01", "event_name": "Gala"}`),
			json.RawMessage(`{"event_date": "2024-03-02", "event_name": "Brunch", "guest_count": ["40", "50"]}`),
		})
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, "Brunch", events[1].EventName)
		assert.Equal(t, `["40","50"]`, events[1].GuestCount)
	})

	t.Run("空输入返回空切片", func(t *testing.T) {
		events, err := NormalizeEvents(nil)
		require.NoError(t, err)
		assert.Empty(t, events)
	})
}

func TestEventOrdering(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	a := Event{EventDate: "2024-01-01", CreatedAt: base}
	b := Event{EventDate: "2024-01-01", CreatedAt: base.Add(time.Microsecond)}
	c := Event{EventDate: "2024-01-02", CreatedAt: base.Add(-time.Hour)}

	assert.True(t, a.Less(b))
	assert.False(t, b.Less(a))
	assert.True(t, b.Less(c))
	assert.False(t, c.Less(a))
}

func TestEventView(t *testing.T) {
	ev := Event{
		ID:         "id-1",
		EventDate:  "2024-05-05",
		StartTime:  "10:00 AM",
		EndTime:    "02:00 PM",
		EventName:  "Wedding",
		Notes:      "",
		LocationID: "3",
	}

	assert.Equal(t, EventView{
		ID:         "id-1",
		LocationID: "3",
		Name:       "Wedding",
		Date:       "2024-05-05",
		StartTime:  "10:00 AM",
		EndTime:    "02:00 PM",
	}, ev.View())
}

func TestMessageDetailHeader(t *testing.T) {
	detail := &MessageDetail{
		ID: "m1",
		Payload: &Part{Headers: []Header{
			{Name: "Subject", Value: "Weekend schedule"},
			{Name: "subject", Value: "lowercase ignored"},
			{Name: "Subject", Value: "second ignored"},
		}},
	}

	subject := detail.Header("Subject")
	require.NotNil(t, subject)
	assert.Equal(t, "Weekend schedule", *subject)
	assert.Nil(t, detail.Header("From"))

	var empty *MessageDetail
	assert.Nil(t, empty.Header("Subject"))
}
