// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: points, queue, feed, validation, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidAmount      = "INVALID_AMOUNT"
	ErrCodeInvalidPayload     = "INVALID_PAYLOAD"
	ErrCodeConversionRejected = "CONVERSION_REJECTED"
	ErrCodeInsufficientPoints = "INSUFFICIENT_POINTS"
	ErrCodeConcurrentUpdate   = "CONCURRENT_UPDATE"
	ErrCodeMessageNotFound    = "MESSAGE_NOT_FOUND"
	ErrCodeMessageNotFailed   = "MESSAGE_NOT_FAILED"
	ErrCodeInvalidCategory    = "INVALID_CATEGORY"
)

// NewInvalidAmountError はポイント数が不正な場合のエラーを生成する。
func NewInvalidAmountError(amount int64) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidAmount,
		Message:  fmt.Sprintf("無効なポイント数です: %d", amount),
		Category: "validation",
		Action:   "1以上のポイント数を指定してください。",
	}
}

// NewInvalidPayloadError はリクエストボディが不正な場合のエラーを生成する。
func NewInvalidPayloadError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidPayload,
		Message:  fmt.Sprintf("リクエストの形式が不正です: %s", reason),
		Category: "validation",
		Action:   "リクエストの内容を確認してください。",
	}
}

// NewConversionRejectedError は換金条件を満たさない場合のエラーを生成する。
// reasonには拒否理由（minimum, insufficient_balance, daily_cap, cooldown）が入る。
func NewConversionRejectedError(reason, detail string) *APIError {
	return &APIError{
		Code:     ErrCodeConversionRejected,
		Message:  fmt.Sprintf("換金できません（%s）: %s", reason, detail),
		Category: "points",
		Action:   "換金条件（最低100,000ポイント、1日500,000ポイントまで、7日に1回）を確認してください。",
	}
}

// NewInsufficientPointsError は残高不足のエラーを生成する。
func NewInsufficientPointsError(balance, requested int64) *APIError {
	return &APIError{
		Code:     ErrCodeInsufficientPoints,
		Message:  fmt.Sprintf("ポイントが不足しています（残高 %d、要求 %d）", balance, requested),
		Category: "points",
		Action:   "残高の範囲内で指定してください。",
	}
}

// NewConcurrentUpdateError は同時更新の競合エラーを生成する。
func NewConcurrentUpdateError() *APIError {
	return &APIError{
		Code:     ErrCodeConcurrentUpdate,
		Message:  "ポイント残高が同時に更新されました。",
		Category: "points",
		Action:   "最新の残高を確認してから再度お試しください。",
	}
}

// NewMessageNotFoundError はキュー上のメッセージが見つからない場合のエラーを生成する。
func NewMessageNotFoundError(messageID string) *APIError {
	return &APIError{
		Code:     ErrCodeMessageNotFound,
		Message:  fmt.Sprintf("指定されたメッセージが見つかりません: %s", messageID),
		Category: "queue",
		Action:   "メッセージIDを確認してください。",
	}
}

// NewMessageNotFailedError は失敗状態でないメッセージを再送しようとした場合のエラーを生成する。
func NewMessageNotFailedError(messageID string) *APIError {
	return &APIError{
		Code:     ErrCodeMessageNotFailed,
		Message:  fmt.Sprintf("メッセージは送信失敗状態ではありません: %s", messageID),
		Category: "queue",
		Action:   "再送は送信に失敗したメッセージに対してのみ実行できます。",
	}
}

// NewInvalidCategoryError は未知のカテゴリが指定された場合のエラーを生成する。
func NewInvalidCategoryError(category string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCategory,
		Message:  fmt.Sprintf("無効なカテゴリです: %s", category),
		Category: "validation",
		Action:   "設定済みのカテゴリ、または all を指定してください。",
	}
}
