package handler

import (
	"context"

	"github.com/hitoshi/newsroom/internal/model"
	"github.com/hitoshi/newsroom/internal/queue"
)

// MessageServiceAdapter は queue.Queue と確定済み履歴のリポジトリを
// MessageServiceInterface に適合させるアダプタ。
type MessageServiceAdapter struct {
	queue   *queue.Queue
	history queue.HistoryLister
}

// NewMessageServiceAdapter はMessageServiceAdapterを生成する。
func NewMessageServiceAdapter(q *queue.Queue, history queue.HistoryLister) *MessageServiceAdapter {
	return &MessageServiceAdapter{queue: q, history: history}
}

func (a *MessageServiceAdapter) QueueMessage(ctx context.Context, payload model.NewMessage) (string, error) {
	return a.queue.QueueMessage(ctx, payload)
}

func (a *MessageServiceAdapter) History(ctx context.Context, conversationID string, limit int) ([]queue.HistoryEntry, error) {
	return a.queue.History(ctx, a.history, conversationID, limit)
}

func (a *MessageServiceAdapter) FailedMessages(ctx context.Context) ([]model.QueuedMessage, error) {
	return a.queue.FailedMessages(ctx)
}

func (a *MessageServiceAdapter) Retry(ctx context.Context, messageID string) error {
	return a.queue.Retry(ctx, messageID)
}

func (a *MessageServiceAdapter) Discard(ctx context.Context, messageID string) error {
	return a.queue.Discard(ctx, messageID)
}

var _ MessageServiceInterface = (*MessageServiceAdapter)(nil)
