package queue

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/hitoshi/newsroom/internal/model"
)

// HistoryEntry は会話表示用の1件。確定済みメッセージはStatus=sentになる。
type HistoryEntry struct {
	ID             string
	ConversationID string
	SenderID       string
	Content        string
	CreatedAt      time.Time
	Status         model.MessageStatus
	Attempts       int
	LastError      string
}

// MergeHistory はリモートの確定履歴とローカルの未確定メッセージを作成日時順にマージする。
// 同じIDが両方にある場合はリモートを優先する。
func MergeHistory(remote []*model.Message, queued []model.QueuedMessage) []HistoryEntry {
	entries := make([]HistoryEntry, 0, len(remote)+len(queued))
	confirmed := make(map[string]struct{}, len(remote))

	for _, m := range remote {
		confirmed[m.ID] = struct{}{}
		entries = append(entries, HistoryEntry{
			ID:             m.ID,
			ConversationID: m.ConversationID,
			SenderID:       m.SenderID,
			Content:        m.Content,
			CreatedAt:      m.CreatedAt,
			Status:         model.MessageStatusSent,
		})
	}

	for _, q := range queued {
		if _, ok := confirmed[q.ID]; ok {
			continue
		}
		entries = append(entries, HistoryEntry{
			ID:             q.ID,
			ConversationID: q.ConversationID,
			SenderID:       q.SenderID,
			Content:        q.Content,
			CreatedAt:      q.CreatedAt,
			Status:         q.Status,
			Attempts:       q.Attempts,
			LastError:      q.LastError,
		})
	}

	slices.SortStableFunc(entries, func(a, b HistoryEntry) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return entries
}

// HistoryLister はリモートの確定済み会話履歴の取得インターフェース。
type HistoryLister interface {
	ListByConversation(ctx context.Context, conversationID string, before time.Time, limit int) ([]*model.Message, error)
}

// History は会話の確定履歴と未確定メッセージをマージして返す。
// limitはリモート履歴の取得件数で、未確定メッセージは全件含める。
func (q *Queue) History(ctx context.Context, history HistoryLister, conversationID string, limit int) ([]HistoryEntry, error) {
	remote, err := history.ListByConversation(ctx, conversationID, time.Time{}, limit)
	if err != nil {
		return nil, fmt.Errorf("会話履歴の取得に失敗: %w", err)
	}

	var queued []model.QueuedMessage
	for msg, err := range q.QueuedMessages(ctx, conversationID) {
		if err != nil {
			return nil, err
		}
		queued = append(queued, msg)
	}

	return MergeHistory(remote, queued), nil
}
