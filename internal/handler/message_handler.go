package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/newsroom/internal/model"
	"github.com/hitoshi/newsroom/internal/queue"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// MessageServiceInterface はメッセージハンドラーが必要とするサービスインターフェース。
type MessageServiceInterface interface {
	QueueMessage(ctx context.Context, payload model.NewMessage) (string, error)
	// History は確定済みメッセージとキュー上のメッセージを作成順にマージして返す。
	History(ctx context.Context, conversationID string, limit int) ([]queue.HistoryEntry, error)
	FailedMessages(ctx context.Context) ([]model.QueuedMessage, error)
	Retry(ctx context.Context, messageID string) error
	Discard(ctx context.Context, messageID string) error
}

// MessageHandler は会話メッセージ送信キューのHTTPハンドラー。
type MessageHandler struct {
	service MessageServiceInterface
	logger  *slog.Logger
}

// NewMessageHandler はMessageHandlerを生成する。
func NewMessageHandler(service MessageServiceInterface, logger *slog.Logger) *MessageHandler {
	return &MessageHandler{service: service, logger: logger}
}

type sendMessageRequest struct {
	SenderID string `json:"sender_id"`
	Content  string `json:"content"`
}

type queuedResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// messageResponse は会話履歴とキュー状態の共通レスポンス。
type messageResponse struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversation_id"`
	SenderID       string     `json:"sender_id"`
	Content        string     `json:"content"`
	CreatedAt      time.Time  `json:"created_at"`
	Status         string     `json:"status"`
	Attempts       int        `json:"attempts,omitempty"`
	LastError      string     `json:"last_error,omitempty"`
	NextAttemptAt  *time.Time `json:"next_attempt_at,omitempty"`
}

func historyToResponse(e queue.HistoryEntry) messageResponse {
	return messageResponse{
		ID:             e.ID,
		ConversationID: e.ConversationID,
		SenderID:       e.SenderID,
		Content:        e.Content,
		CreatedAt:      e.CreatedAt,
		Status:         string(e.Status),
		Attempts:       e.Attempts,
		LastError:      e.LastError,
	}
}

func queuedToResponse(m model.QueuedMessage) messageResponse {
	resp := messageResponse{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Content:        m.Content,
		CreatedAt:      m.CreatedAt,
		Status:         string(m.Status),
		Attempts:       m.Attempts,
		LastError:      m.LastError,
	}
	if !m.NextAttemptAt.IsZero() {
		next := m.NextAttemptAt
		resp.NextAttemptAt = &next
	}
	return resp
}

// SendMessage はメッセージを送信キューに投入する。配信は非同期に行う。
// POST /api/conversations/{conversationID}/messages
func (h *MessageHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	id, err := h.service.QueueMessage(r.Context(), model.NewMessage{
		ConversationID: chi.URLParam(r, "conversationID"),
		SenderID:       req.SenderID,
		Content:        req.Content,
	})
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusAccepted, queuedResponse{ID: id, Status: string(model.MessageStatusPending)})
}

// ListMessages は会話の履歴を送信待ちのメッセージも含めて返す。
// GET /api/conversations/{conversationID}/messages?limit=50
func (h *MessageHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r.URL.Query().Get("limit"), defaultHistoryLimit, maxHistoryLimit)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	entries, err := h.service.History(r.Context(), chi.URLParam(r, "conversationID"), limit)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	resp := make([]messageResponse, len(entries))
	for i, e := range entries {
		resp[i] = historyToResponse(e)
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": resp})
}

// ListFailed は送信に失敗したメッセージを返す。
// GET /api/messages/failed
func (h *MessageHandler) ListFailed(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.service.FailedMessages(r.Context())
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	resp := make([]messageResponse, len(msgs))
	for i, m := range msgs {
		resp[i] = queuedToResponse(m)
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": resp})
}

// Retry は失敗したメッセージを再送対象に戻す。
// POST /api/messages/{messageID}/retry
func (h *MessageHandler) Retry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "messageID")
	if err := h.service.Retry(r.Context(), id); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusAccepted, queuedResponse{ID: id, Status: string(model.MessageStatusPending)})
}

// Discard はキュー上のメッセージを破棄する。
// DELETE /api/messages/{messageID}
func (h *MessageHandler) Discard(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Discard(r.Context(), chi.URLParam(r, "messageID")); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
