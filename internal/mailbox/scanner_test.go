package mailbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ecphub/backend/internal/domain"
)

// MockClient 模拟邮箱服务
type MockClient struct {
	mock.Mock
}

func (m *MockClient) ListLabels(ctx context.Context) ([]Label, error) {
	args := m.Called(ctx)
	labels, _ := args.Get(0).([]Label)
	return labels, args.Error(1)
}

func (m *MockClient) SearchUnreadWithAttachments(ctx context.Context, labelID string, maxResults int) ([]string, error) {
	args := m.Called(ctx, labelID, maxResults)
	ids, _ := args.Get(0).([]string)
	return ids, args.Error(1)
}

func (m *MockClient) GetMessage(ctx context.Context, messageID string) (*domain.MessageDetail, error) {
	args := m.Called(ctx, messageID)
	detail, _ := args.Get(0).(*domain.MessageDetail)
	return detail, args.Error(1)
}

func (m *MockClient) GetAttachment(ctx context.Context, messageID, attachmentID string) ([]byte, error) {
	args := m.Called(ctx, messageID, attachmentID)
	data, _ := args.Get(0).([]byte)
	return data, args.Error(1)
}

// MockMarkerClient 额外支持标记已处理
type MockMarkerClient struct {
	MockClient
}

func (m *MockMarkerClient) MarkProcessed(ctx context.Context, messageID string) error {
	return m.Called(ctx, messageID).Error(0)
}

var testLabels = []Label{
	{ID: "INBOX", Name: "INBOX"},
	{ID: "Label_7", Name: "schedule intake"},
	{ID: "Label_42", Name: "Schedule Intake"},
}

func scheduleMessage(id string) *domain.MessageDetail {
	return &domain.MessageDetail{
		ID:      id,
		Snippet: "Please see the attached schedule",
		Payload: &domain.Part{
			MimeType: "multipart/mixed",
			Headers: []domain.Header{
				{Name: "From", Value: "events@venue.example"},
				{Name: "Subject", Value: "March schedule"},
				{Name: "Date", Value: "Fri, 1 Mar 2024 09:00:00 -0500"},
			},
			Parts: []*domain.Part{
				{PartID: "0", MimeType: "text/plain", Body: domain.PartBody{Size: 30}},
				{PartID: "1", MimeType: "application/pdf", Filename: "march.pdf", Body: domain.PartBody{AttachmentID: "ATT-1"}},
			},
		},
	}
}

func TestScanner_ResolveLabel(t *testing.T) {
	t.Run("精确匹配区分大小写", func(t *testing.T) {
		client := new(MockClient)
		client.On("ListLabels", mock.Anything).Return(testLabels, nil)

		id, err := NewScanner(client, nil).ResolveLabel(context.Background(), "Schedule Intake")
		require.NoError(t, err)
		assert.Equal(t, "Label_42", id)
	})

	t.Run("标签不存在", func(t *testing.T) {
		client := new(MockClient)
		client.On("ListLabels", mock.Anything).Return(testLabels, nil)

		_, err := NewScanner(client, nil).ResolveLabel(context.Background(), "SCHEDULE INTAKE")
		assert.ErrorIs(t, err, ErrLabelNotFound)
		assert.Contains(t, err.Error(), "SCHEDULE INTAKE")
	})

	t.Run("启用缓存时只查询一次", func(t *testing.T) {
		client := new(MockClient)
		client.On("ListLabels", mock.Anything).Return(testLabels, nil).Once()

		scanner := NewScanner(client, nil, WithLabelCache(time.Minute))
		for i := 0; i < 3; i++ {
			id, err := scanner.ResolveLabel(context.Background(), "Schedule Intake")
			require.NoError(t, err)
			assert.Equal(t, "Label_42", id)
		}
		client.AssertNumberOfCalls(t, "ListLabels", 1)
	})

	t.Run("传输错误被包装", func(t *testing.T) {
		client := new(MockClient)
		client.On("ListLabels", mock.Anything).Return(nil, errors.New("503 backend error"))

		_, err := NewScanner(client, nil).ResolveLabel(context.Background(), "Schedule Intake")
		assert.ErrorContains(t, err, "list labels: 503 backend error")
		assert.NotErrorIs(t, err, ErrLabelNotFound)
	})
}

func TestScanner_FindCandidates(t *testing.T) {
	t.Run("生成摘要", func(t *testing.T) {
		client := new(MockClient)
		client.On("ListLabels", mock.Anything).Return(testLabels, nil)
		client.On("SearchUnreadWithAttachments", mock.Anything, "Label_42", 50).Return([]string{"m1", "m2"}, nil)
		client.On("GetMessage", mock.Anything, "m1").Return(scheduleMessage("m1"), nil)
		client.On("GetMessage", mock.Anything, "m2").Return(&domain.MessageDetail{
			ID:      "m2",
			Payload: &domain.Part{Parts: []*domain.Part{{Filename: "inline.txt"}}},
		}, nil)

		items, err := NewScanner(client, nil).FindCandidates(context.Background(), "Schedule Intake", 50)
		require.NoError(t, err)
		require.Len(t, items, 2)

		first := items[0]
		assert.Equal(t, "m1", first.ID)
		assert.Equal(t, "Please see the attached schedule", first.Snippet)
		require.NotNil(t, first.Subject)
		assert.Equal(t, "March schedule", *first.Subject)
		require.NotNil(t, first.From)
		assert.Equal(t, "events@venue.example", *first.From)
		assert.Equal(t, 1, first.AttachmentCount)

		second := items[1]
		assert.Nil(t, second.Subject)
		assert.Nil(t, second.From)
		assert.Nil(t, second.Date)
		assert.Equal(t, 1, second.AttachmentCount)

		client.AssertExpectations(t)
	})

	t.Run("没有匹配邮件时返回空列表", func(t *testing.T) {
		client := new(MockClient)
		client.On("ListLabels", mock.Anything).Return(testLabels, nil)
		client.On("SearchUnreadWithAttachments", mock.Anything, "Label_42", 10).Return([]string{}, nil)

		items, err := NewScanner(client, nil).FindCandidates(context.Background(), "Schedule Intake", 10)
		require.NoError(t, err)
		assert.Empty(t, items)
		client.AssertNotCalled(t, "GetMessage", mock.Anything, mock.Anything)
	})

	t.Run("结果数量受上限约束", func(t *testing.T) {
		client := new(MockClient)
		client.On("ListLabels", mock.Anything).Return(testLabels, nil)
		client.On("SearchUnreadWithAttachments", mock.Anything, "Label_42", 1).Return([]string{"m1", "m2"}, nil)
		client.On("GetMessage", mock.Anything, "m1").Return(scheduleMessage("m1"), nil)

		items, err := NewScanner(client, nil).FindCandidates(context.Background(), "Schedule Intake", 1)
		require.NoError(t, err)
		assert.Len(t, items, 1)
	})

	t.Run("详情拉取失败", func(t *testing.T) {
		client := new(MockClient)
		client.On("ListLabels", mock.Anything).Return(testLabels, nil)
		client.On("SearchUnreadWithAttachments", mock.Anything, "Label_42", 5).Return([]string{"m1"}, nil)
		client.On("GetMessage", mock.Anything, "m1").Return(nil, errors.New("timeout"))

		_, err := NewScanner(client, nil).FindCandidates(context.Background(), "Schedule Intake", 5)
		assert.ErrorContains(t, err, "get message m1: timeout")
	})

	t.Run("并发拉取保持搜索顺序", func(t *testing.T) {
		client := new(MockClient)
		client.On("ListLabels", mock.Anything).Return(testLabels, nil)
		ids := []string{"m1", "m2", "m3", "m4", "m5", "m6"}
		client.On("SearchUnreadWithAttachments", mock.Anything, "Label_42", 6).Return(ids, nil)
		for _, id := range ids {
			client.On("GetMessage", mock.Anything, id).Return(scheduleMessage(id), nil).Once()
		}

		items, err := NewScanner(client, nil, WithFetchConcurrency(3)).FindCandidates(context.Background(), "Schedule Intake", 6)
		require.NoError(t, err)
		require.Len(t, items, len(ids))
		for i, id := range ids {
			assert.Equal(t, id, items[i].ID)
		}
		client.AssertExpectations(t)
	})
}

func TestScanner_FetchFirstAttachment(t *testing.T) {
	t.Run("取回第一个附件", func(t *testing.T) {
		client := new(MockClient)
		client.On("ListLabels", mock.Anything).Return(testLabels, nil)
		client.On("SearchUnreadWithAttachments", mock.Anything, "Label_42", 1).Return([]string{"m1"}, nil)
		client.On("GetMessage", mock.Anything, "m1").Return(scheduleMessage("m1"), nil).Once()
		client.On("GetAttachment", mock.Anything, "m1", "ATT-1").Return([]byte("%PDF-1.4"), nil).Once()

		content, err := NewScanner(client, nil).FetchFirstAttachment(context.Background(), "Schedule Intake")
		require.NoError(t, err)
		assert.Equal(t, "m1", content.MessageID)
		assert.Equal(t, "march.pdf", content.Filename)
		assert.Equal(t, []byte("%PDF-1.4"), content.Data)
		client.AssertExpectations(t)
	})

	t.Run("没有候选邮件", func(t *testing.T) {
		client := new(MockClient)
		client.On("ListLabels", mock.Anything).Return(testLabels, nil)
		client.On("SearchUnreadWithAttachments", mock.Anything, "Label_42", 1).Return([]string{}, nil)

		_, err := NewScanner(client, nil).FetchFirstAttachment(context.Background(), "Schedule Intake")
		assert.ErrorIs(t, err, ErrNoCandidates)
	})

	t.Run("只有内联附件", func(t *testing.T) {
		client := new(MockClient)
		client.On("ListLabels", mock.Anything).Return(testLabels, nil)
		client.On("SearchUnreadWithAttachments", mock.Anything, "Label_42", 1).Return([]string{"m3"}, nil)
		client.On("GetMessage", mock.Anything, "m3").Return(&domain.MessageDetail{
			ID:      "m3",
			Payload: &domain.Part{Parts: []*domain.Part{{Filename: "inline.txt", Body: domain.PartBody{Size: 3}}}},
		}, nil)

		_, err := NewScanner(client, nil).FetchFirstAttachment(context.Background(), "Schedule Intake")
		assert.ErrorIs(t, err, ErrNoAttachment)
		client.AssertNotCalled(t, "GetAttachment", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("标签不存在", func(t *testing.T) {
		client := new(MockClient)
		client.On("ListLabels", mock.Anything).Return([]Label{}, nil)

		_, err := NewScanner(client, nil).FetchFirstAttachment(context.Background(), "Schedule Intake")
		assert.ErrorIs(t, err, ErrLabelNotFound)
	})

	t.Run("附件拉取失败", func(t *testing.T) {
		client := new(MockClient)
		client.On("ListLabels", mock.Anything).Return(testLabels, nil)
		client.On("SearchUnreadWithAttachments", mock.Anything, "Label_42", 1).Return([]string{"m1"}, nil)
		client.On("GetMessage", mock.Anything, "m1").Return(scheduleMessage("m1"), nil)
		client.On("GetAttachment", mock.Anything, "m1", "ATT-1").Return(nil, errors.New("quota"))

		_, err := NewScanner(client, nil).FetchFirstAttachment(context.Background(), "Schedule Intake")
		assert.ErrorContains(t, err, "get attachment ATT-1 of message m1: quota")
	})
}

func TestScanner_OptionalCapabilities(t *testing.T) {
	t.Run("不支持标记已处理", func(t *testing.T) {
		scanner := NewScanner(new(MockClient), nil)
		assert.ErrorIs(t, scanner.MarkProcessed(context.Background(), "m1"), ErrNotSupported)

		_, err := scanner.Profile(context.Background())
		assert.ErrorIs(t, err, ErrNotSupported)
	})

	t.Run("支持标记已处理", func(t *testing.T) {
		client := new(MockMarkerClient)
		client.On("MarkProcessed", mock.Anything, "m1").Return(nil).Once()

		require.NoError(t, NewScanner(client, nil).MarkProcessed(context.Background(), "m1"))
		client.AssertExpectations(t)
	})
}
