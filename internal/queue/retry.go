package queue

import (
	"time"

	"github.com/hitoshi/newsroom/internal/model"
)

const (
	// defaultMaxAttempts は配信試行回数の上限。到達するとfailedになる。
	defaultMaxAttempts = 5
	// defaultInitialBackoff は指数バックオフの初回遅延。
	defaultInitialBackoff = 2 * time.Second
	// defaultMaxBackoff は指数バックオフの最大遅延。
	defaultMaxBackoff = 5 * time.Minute
)

// RetryPolicy は配信失敗時の再試行ポリシー。
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryPolicy はデフォルトの再試行ポリシーを返す。
// 初回2秒、2倍ずつ増加、最大5分、5回で打ち切り。
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    defaultMaxAttempts,
		InitialBackoff: defaultInitialBackoff,
		MaxBackoff:     defaultMaxBackoff,
	}
}

// withDefaults は未設定（0以下）の項目をデフォルト値で補完する。
func (p RetryPolicy) withDefaults() RetryPolicy {
	d := DefaultRetryPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = d.InitialBackoff
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = d.MaxBackoff
	}
	return p
}

// CalculateBackoff は失敗回数に基づいて指数バックオフ遅延を計算する。
// failuresは直前までの失敗回数（0始まり）。
func (p RetryPolicy) CalculateBackoff(failures int) time.Duration {
	delay := p.InitialBackoff
	for i := 0; i < failures; i++ {
		delay *= 2
		if delay > p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	if delay > p.MaxBackoff {
		return p.MaxBackoff
	}
	return delay
}

// ApplyDeliveryFailure は配信失敗をメッセージに反映する。
// 試行回数をインクリメントし、上限未満ならバックオフ後に再試行するpendingへ、
// 上限に達したら終端状態のfailedへ遷移させる。
// 終端状態になった場合はtrueを返す。
func (p RetryPolicy) ApplyDeliveryFailure(msg *model.QueuedMessage, reason string, now time.Time) bool {
	msg.Attempts++
	msg.LastError = reason

	if msg.Attempts >= p.MaxAttempts {
		msg.Status = model.MessageStatusFailed
		msg.NextAttemptAt = time.Time{}
		return true
	}

	msg.Status = model.MessageStatusPending
	msg.NextAttemptAt = now.Add(p.CalculateBackoff(msg.Attempts - 1))
	return false
}

// ApplyDeliverySuccess は配信成功をメッセージに反映する。
func ApplyDeliverySuccess(msg *model.QueuedMessage) {
	msg.Status = model.MessageStatusSent
	msg.LastError = ""
	msg.NextAttemptAt = time.Time{}
}

// ApplyManualRetry は失敗したメッセージを再試行可能な状態に戻す。
func ApplyManualRetry(msg *model.QueuedMessage) {
	msg.Status = model.MessageStatusPending
	msg.Attempts = 0
	msg.LastError = ""
	msg.NextAttemptAt = time.Time{}
}
