package service

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"ecphub/backend/internal/domain"
	"ecphub/backend/internal/mailbox"
)

func strPtr(s string) *string { return &s }

func TestFormatSummary(t *testing.T) {
	full := domain.MessageSummary{
		Date:            strPtr("Fri, 1 Mar 2024 09:00:00 +0000"),
		From:            strPtr("ops@example.com"),
		Subject:         strPtr("March schedule"),
		AttachmentCount: 2,
	}
	assert.Equal(t, "Fri, 1 Mar 2024 09:00:00 +0000 | ops@example.com | March schedule (attachments: 2)", FormatSummary(full))
	assert.Equal(t, "- | - | - (attachments: 0)", FormatSummary(domain.MessageSummary{}))
}

func TestPoller_Run(t *testing.T) {
	t.Run("达到最大轮数后停止", func(t *testing.T) {
		f := newIntakeFixture(t, IntakeOptions{MaxResults: 5})
		f.scanner.On("FindCandidates", mock.Anything, "Schedule Intake", 5).Return([]domain.MessageSummary{
			{ID: "m1", Subject: strPtr("March schedule"), AttachmentCount: 1},
		}, nil).Times(3)

		core, logs := observer.New(zap.InfoLevel)
		p := NewPoller(f.svc, f.metrics, PollerOptions{Interval: time.Millisecond, MaxCycles: 3}, zap.New(core))

		cycles, err := p.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 3, cycles)
		f.scanner.AssertExpectations(t)
		f.scanner.AssertNotCalled(t, "FetchFirstAttachment", mock.Anything, mock.Anything)
		assert.Equal(t, 3, logs.FilterMessage("- | - | March schedule (attachments: 1)").Len())
		assert.Equal(t, 3.0, testutil.ToFloat64(f.metrics.PollCycles.WithLabelValues("scanned")))
	})

	t.Run("扫描失败不中断轮询", func(t *testing.T) {
		f := newIntakeFixture(t, IntakeOptions{})
		f.scanner.On("FindCandidates", mock.Anything, mock.Anything, mock.Anything).
			Return(nil, mailbox.ErrLabelNotFound).Twice()

		p := NewPoller(f.svc, f.metrics, PollerOptions{Interval: time.Millisecond, MaxCycles: 2}, nil)
		cycles, err := p.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 2, cycles)
		assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.PollCycles.WithLabelValues("scan_error")))
	})

	t.Run("处理模式下发现候选即解析", func(t *testing.T) {
		f := newIntakeFixture(t, IntakeOptions{MarkProcessed: true})
		f.scanner.On("FindCandidates", mock.Anything, mock.Anything, mock.Anything).
			Return([]domain.MessageSummary{{ID: "m1", AttachmentCount: 1}}, nil).Once()
		f.scanner.On("FetchFirstAttachment", mock.Anything, "Schedule Intake").Return(scheduleAttachment(), nil).Once()
		f.scanner.On("MarkProcessed", mock.Anything, "m1").Return(nil).Once()
		f.completer.On("Complete", mock.Anything, mock.Anything, mock.Anything).
			Return(`[{"event_date": "2024-03-01", "event_name": "Gala"}]`, nil)

		p := NewPoller(f.svc, f.metrics, PollerOptions{Interval: time.Millisecond, MaxCycles: 1, Process: true}, nil)
		cycles, err := p.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, cycles)
		f.scanner.AssertExpectations(t)

		events, err := f.store.ListAll(context.Background())
		require.NoError(t, err)
		assert.Len(t, events, 1)
		assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.PollCycles.WithLabelValues("processed")))
	})

	t.Run("上下文取消时退出", func(t *testing.T) {
		f := newIntakeFixture(t, IntakeOptions{})
		scanned := make(chan struct{}, 1)
		f.scanner.On("FindCandidates", mock.Anything, mock.Anything, mock.Anything).
			Run(func(mock.Arguments) {
				select {
				case scanned <- struct{}{}:
				default:
				}
			}).
			Return([]domain.MessageSummary{}, nil)

		ctx, cancel := context.WithCancel(context.Background())
		p := NewPoller(f.svc, nil, PollerOptions{Interval: time.Hour}, nil)

		done := make(chan struct{})
		var cycles int
		var err error
		go func() {
			cycles, err = p.Run(ctx)
			close(done)
		}()

		select {
		case <-scanned:
		case <-time.After(time.Second):
			t.Fatal("poller did not scan")
		}
		cancel()

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("poller did not stop")
		}
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, cycles)
	})
}
