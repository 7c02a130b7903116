// Package queue はオフライン送信キューを提供する。
// 送信メッセージをまずローカルに永続化し、接続が戻ったときに
// リモートストアへ再送することで、一時的な切断を越えて配信を試行し続ける。
package queue

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/newsroom/internal/model"
)

// LocalStore は未確定メッセージのローカル永続化インターフェース。
type LocalStore interface {
	// Put はメッセージを作成または上書きする。
	Put(ctx context.Context, msg *model.QueuedMessage) error
	// Get は指定IDのメッセージを取得する。見つからない場合はnilを返す。
	Get(ctx context.Context, id string) (*model.QueuedMessage, error)
	// ListAll は全メッセージを作成順（created_at、投入順）に返す。
	ListAll(ctx context.Context) ([]*model.QueuedMessage, error)
	// ListByConversation は会話のメッセージを作成順に返す。
	ListByConversation(ctx context.Context, conversationID string) ([]*model.QueuedMessage, error)
	// Delete は指定IDのメッセージを削除する。存在しない場合もエラーにしない。
	Delete(ctx context.Context, id string) error
}

// RemoteStore はメッセージの配信先。同一IDの再保存は冪等である必要がある。
type RemoteStore interface {
	SaveMessage(ctx context.Context, msg *model.Message) error
}

// Recorder はキュー処理のメトリクス記録インターフェース。
type Recorder interface {
	RecordMessageDelivered()
	RecordMessageRetried()
	RecordMessageFailed()
}

// ProcessResult は1回のキュー処理の結果。
type ProcessResult struct {
	Delivered int
	Retried   int
	Deferred  int
	Cleaned   int // 送信済みで、ローカルから削除だけを行った件数
	// Failed はこの処理で試行上限に達し、終端状態になったメッセージ。
	Failed []model.QueuedMessage
	// Skipped は別の処理が実行中だったため何もしなかったことを示す。
	Skipped bool
}

// Queue はオフライン送信キュー。
// ProcessQueueは実行中フラグで直列化され、重複送信を防ぐ。
type Queue struct {
	local      LocalStore
	remote     RemoteStore
	policy     RetryPolicy
	metrics    Recorder
	logger     *slog.Logger
	now        func() time.Time
	processing atomic.Bool
	wake       chan struct{}
}

// New はQueueの新しいインスタンスを生成する。
// policyの未設定項目はデフォルト値で補完する。metricsがnilの場合は記録しない。
func New(local LocalStore, remote RemoteStore, policy RetryPolicy, metrics Recorder, logger *slog.Logger) *Queue {
	if metrics == nil {
		metrics = nopRecorder{}
	}
	return &Queue{
		local:   local,
		remote:  remote,
		policy:  policy.withDefaults(),
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
		wake:    make(chan struct{}, 1),
	}
}

// QueueMessage はメッセージをpending状態でローカルに保存し、IDを返す。
// ネットワークへの送信は行わず、処理ループに起床を通知するだけで即座に戻る。
func (q *Queue) QueueMessage(ctx context.Context, payload model.NewMessage) (string, error) {
	if strings.TrimSpace(payload.ConversationID) == "" {
		return "", model.NewInvalidPayloadError("conversation_id is required")
	}
	if strings.TrimSpace(payload.Content) == "" {
		return "", model.NewInvalidPayloadError("content is required")
	}

	msg := &model.QueuedMessage{
		ID:             uuid.New().String(),
		ConversationID: payload.ConversationID,
		SenderID:       payload.SenderID,
		Content:        payload.Content,
		CreatedAt:      q.now(),
		Status:         model.MessageStatusPending,
	}

	if err := q.local.Put(ctx, msg); err != nil {
		return "", fmt.Errorf("メッセージのキュー投入に失敗: %w", err)
	}

	q.logger.Info("メッセージをキューに投入しました",
		slog.String("message_id", msg.ID),
		slog.String("conversation_id", msg.ConversationID),
	)

	q.notify()
	return msg.ID, nil
}

// ProcessQueue はローカルのメッセージを作成順に走査し、リモートへ配信する。
//
//   - sent: ローカルから削除するだけで再送しない
//   - failed: 終端状態のため処理しない
//   - pending/sending: バックオフ期間が過ぎていれば配信を試行する
//
// 同じ会話で先行メッセージが配信できなかった場合、後続メッセージは次回に持ち越す（会話内FIFO）。
// 他の呼び出しが実行中の場合はSkipped=trueを返す。
func (q *Queue) ProcessQueue(ctx context.Context) (ProcessResult, error) {
	if !q.processing.CompareAndSwap(false, true) {
		return ProcessResult{Skipped: true}, nil
	}
	defer q.processing.Store(false)

	start := time.Now()
	var result ProcessResult

	msgs, err := q.local.ListAll(ctx)
	if err != nil {
		return result, fmt.Errorf("キューの読み込みに失敗: %w", err)
	}
	if len(msgs) == 0 {
		return result, nil
	}

	now := q.now()
	blocked := make(map[string]bool)

	for _, msg := range msgs {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		switch msg.Status {
		case model.MessageStatusSent:
			if err := q.local.Delete(ctx, msg.ID); err != nil {
				q.logger.Error("送信済みメッセージの削除に失敗しました",
					slog.String("message_id", msg.ID),
					slog.String("error", err.Error()),
				)
				continue
			}
			result.Cleaned++
			continue
		case model.MessageStatusFailed:
			continue
		}

		if blocked[msg.ConversationID] || msg.NextAttemptAt.After(now) {
			blocked[msg.ConversationID] = true
			result.Deferred++
			continue
		}

		delivered, failed := q.deliver(ctx, msg, now)
		switch {
		case delivered:
			result.Delivered++
		case failed:
			result.Failed = append(result.Failed, *msg)
		default:
			blocked[msg.ConversationID] = true
			result.Retried++
		}
	}

	q.logger.Info("キュー処理が完了しました",
		slog.Int("queued", len(msgs)),
		slog.Int("delivered", result.Delivered),
		slog.Int("retried", result.Retried),
		slog.Int("deferred", result.Deferred),
		slog.Int("cleaned", result.Cleaned),
		slog.Int("failed", len(result.Failed)),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return result, nil
}

// deliver は1件のメッセージを配信し、結果に応じて状態を更新する。
// 戻り値は（配信成功, 終端失敗）。どちらもfalseの場合は再試行待ち。
func (q *Queue) deliver(ctx context.Context, msg *model.QueuedMessage, now time.Time) (bool, bool) {
	msg.Status = model.MessageStatusSending
	if err := q.local.Put(ctx, msg); err != nil {
		q.logger.Error("送信中状態の保存に失敗しました",
			slog.String("message_id", msg.ID),
			slog.String("error", err.Error()),
		)
		return false, false
	}

	err := q.remote.SaveMessage(ctx, &model.Message{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		Content:        msg.Content,
		CreatedAt:      msg.CreatedAt,
	})
	if err != nil {
		return false, q.handleFailure(ctx, msg, err, now)
	}

	ApplyDeliverySuccess(msg)
	if err := q.local.Put(ctx, msg); err != nil {
		// リモートは冪等なので、次回の再送で整合する
		q.logger.Error("送信済み状態の保存に失敗しました",
			slog.String("message_id", msg.ID),
			slog.String("error", err.Error()),
		)
	} else if err := q.local.Delete(ctx, msg.ID); err != nil {
		q.logger.Error("送信済みメッセージの削除に失敗しました",
			slog.String("message_id", msg.ID),
			slog.String("error", err.Error()),
		)
	}

	q.metrics.RecordMessageDelivered()
	return true, false
}

// handleFailure は配信失敗を記録する。終端状態になった場合はtrueを返す。
// コンテキストのキャンセルによる失敗は試行回数に数えない。
func (q *Queue) handleFailure(ctx context.Context, msg *model.QueuedMessage, deliveryErr error, now time.Time) bool {
	if ctx.Err() != nil && errors.Is(deliveryErr, ctx.Err()) {
		msg.Status = model.MessageStatusPending
		q.saveState(context.WithoutCancel(ctx), msg)
		return false
	}

	terminal := q.policy.ApplyDeliveryFailure(msg, deliveryErr.Error(), now)
	q.saveState(ctx, msg)

	if terminal {
		q.metrics.RecordMessageFailed()
		q.logger.Error("メッセージの配信が試行上限に達しました",
			slog.String("message_id", msg.ID),
			slog.String("conversation_id", msg.ConversationID),
			slog.Int("attempts", msg.Attempts),
			slog.String("error", deliveryErr.Error()),
		)
		return true
	}

	q.metrics.RecordMessageRetried()
	q.logger.Warn("メッセージの配信に失敗しました。バックオフ後に再試行します",
		slog.String("message_id", msg.ID),
		slog.String("conversation_id", msg.ConversationID),
		slog.Int("attempts", msg.Attempts),
		slog.Time("next_attempt_at", msg.NextAttemptAt),
		slog.String("error", deliveryErr.Error()),
	)
	return false
}

func (q *Queue) saveState(ctx context.Context, msg *model.QueuedMessage) {
	if err := q.local.Put(ctx, msg); err != nil {
		q.logger.Error("メッセージ状態の保存に失敗しました",
			slog.String("message_id", msg.ID),
			slog.String("status", string(msg.Status)),
			slog.String("error", err.Error()),
		)
	}
}

// QueuedMessages は会話の未確定メッセージを返す遅延イテレータ。
// rangeのたびにローカルストアを読み直すため、何度でも再走査できる。
func (q *Queue) QueuedMessages(ctx context.Context, conversationID string) iter.Seq2[model.QueuedMessage, error] {
	return func(yield func(model.QueuedMessage, error) bool) {
		msgs, err := q.local.ListByConversation(ctx, conversationID)
		if err != nil {
			yield(model.QueuedMessage{}, fmt.Errorf("キューの読み込みに失敗: %w", err))
			return
		}
		for _, msg := range msgs {
			if msg.Status == model.MessageStatusSent {
				continue
			}
			if !yield(*msg, nil) {
				return
			}
		}
	}
}

// FailedMessages は終端状態になったメッセージを作成順に返す。
func (q *Queue) FailedMessages(ctx context.Context) ([]model.QueuedMessage, error) {
	msgs, err := q.local.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("キューの読み込みに失敗: %w", err)
	}
	var failed []model.QueuedMessage
	for _, msg := range msgs {
		if msg.IsTerminalFailure() {
			failed = append(failed, *msg)
		}
	}
	return failed, nil
}

// Retry は終端状態のメッセージを再試行可能な状態に戻す。
func (q *Queue) Retry(ctx context.Context, messageID string) error {
	msg, err := q.local.Get(ctx, messageID)
	if err != nil {
		return fmt.Errorf("メッセージの取得に失敗: %w", err)
	}
	if msg == nil {
		return model.NewMessageNotFoundError(messageID)
	}
	if !msg.IsTerminalFailure() {
		return model.NewMessageNotFailedError(messageID)
	}

	ApplyManualRetry(msg)
	if err := q.local.Put(ctx, msg); err != nil {
		return fmt.Errorf("メッセージの再試行設定に失敗: %w", err)
	}

	q.logger.Info("メッセージを再試行キューに戻しました",
		slog.String("message_id", msg.ID),
		slog.String("conversation_id", msg.ConversationID),
	)

	q.notify()
	return nil
}

// Discard はキュー上のメッセージを破棄する。
func (q *Queue) Discard(ctx context.Context, messageID string) error {
	msg, err := q.local.Get(ctx, messageID)
	if err != nil {
		return fmt.Errorf("メッセージの取得に失敗: %w", err)
	}
	if msg == nil {
		return model.NewMessageNotFoundError(messageID)
	}
	if err := q.local.Delete(ctx, messageID); err != nil {
		return fmt.Errorf("メッセージの破棄に失敗: %w", err)
	}

	q.logger.Info("メッセージを破棄しました",
		slog.String("message_id", messageID),
		slog.String("status", string(msg.Status)),
	)
	return nil
}

// Start は一定間隔でProcessQueueを実行する。
// QueueMessage/Retryからの通知でも即座に実行する。
// コンテキストがキャンセルされるまで実行を継続する。
func (q *Queue) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	q.logger.Info("キュー処理ループを開始しました",
		slog.Duration("interval", interval),
		slog.Int("max_attempts", q.policy.MaxAttempts),
	)

	// 起動直後に1回実行
	q.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			q.logger.Info("キュー処理ループを停止しました")
			return
		case <-ticker.C:
			q.runOnce(ctx)
		case <-q.wake:
			q.runOnce(ctx)
		}
	}
}

func (q *Queue) runOnce(ctx context.Context) {
	if _, err := q.ProcessQueue(ctx); err != nil && ctx.Err() == nil {
		q.logger.Error("キュー処理の実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}
}

// notify は処理ループを起床させる。既に通知済みの場合は何もしない。
func (q *Queue) notify() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

type nopRecorder struct{}

func (nopRecorder) RecordMessageDelivered() {}
func (nopRecorder) RecordMessageRetried() {}
func (nopRecorder) RecordMessageFailed() {}
