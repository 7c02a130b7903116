// Package model はドメインモデルを定義する。
package model

import "time"

// TransactionType はポイント取引の種別。
type TransactionType string

const (
	// TransactionEarn はポイント付与。
	TransactionEarn TransactionType = "earn"
	// TransactionSpend はポイント消費。
	TransactionSpend TransactionType = "spend"
	// TransactionConvert は外部通貨への換金。
	TransactionConvert TransactionType = "convert"
)

// PointsTransaction は追記専用のポイント取引ログ。
type PointsTransaction struct {
	ID        string
	UserID    string
	Type      TransactionType
	Amount    int64
	Reason    string
	Source    string
	CreatedAt time.Time
}

// ConversionState は換金レート制限の判定に使う状態。
type ConversionState struct {
	LastConversionDate   *time.Time
	DailyConvertedPoints int64
}

// PointsAccount はユーザーごとのポイント残高レコード。
// プロフィールのメタデータに埋め込まれていた任意キーの代わりに、
// バージョン付きの構造化レコードとして扱う。
type PointsAccount struct {
	UserID               string
	Version              int64
	Balance              int64
	TotalEarned          int64
	TotalSpent           int64
	TotalConverted       int64
	LastConversionAt     *time.Time
	DailyConvertedPoints int64
	DailyConvertedOn     *time.Time
	UpdatedAt            time.Time
}

// ConversionState はアカウントから換金判定用の状態を取り出す。
func (a *PointsAccount) ConversionState() ConversionState {
	return ConversionState{
		LastConversionDate:   a.LastConversionAt,
		DailyConvertedPoints: a.DailyConvertedPoints,
	}
}
