// Package model はドメインモデルを定義する。
package model

import "time"

// MessageStatus はオフラインキュー上のメッセージの送信状態を表す。
type MessageStatus string

const (
	// MessageStatusPending は送信待ち。
	MessageStatusPending MessageStatus = "pending"
	// MessageStatusSending は送信中。
	MessageStatusSending MessageStatus = "sending"
	// MessageStatusSent はリモートへの保存が確認済み。
	MessageStatusSent MessageStatus = "sent"
	// MessageStatusFailed はリトライ上限に達した終端状態。
	MessageStatusFailed MessageStatus = "failed"
)

// QueuedMessage はローカルに保持された未確定の送信メッセージ。
// 送信時に作成され、配信確認後に削除される。
type QueuedMessage struct {
	ID             string
	ConversationID string
	SenderID       string
	Content        string
	CreatedAt      time.Time
	Status         MessageStatus
	Attempts       int
	LastError      string
	NextAttemptAt  time.Time
}

// IsTerminalFailure はメッセージが恒久的な失敗状態かを返す。
func (m *QueuedMessage) IsTerminalFailure() bool {
	return m.Status == MessageStatusFailed
}

// Message はリモートストアで確定した会話メッセージ。
type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	Content        string
	CreatedAt      time.Time
}

// NewMessage はキュー投入時の入力ペイロード。
type NewMessage struct {
	ConversationID string
	SenderID       string
	Content        string
}
