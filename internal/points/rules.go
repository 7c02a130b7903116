// Package points はポイントの付与と換金のルールを提供する。
// rules.go の関数はI/Oを持たない純粋なルール計算で、
// 永続化はService（service.go）が担当する。
package points

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/newsroom/internal/model"
)

const (
	// MinConversionPoints は1回の換金に必要な最低ポイント数。
	MinConversionPoints int64 = 100_000
	// DailyConversionCap は1暦日あたりの換金上限ポイント数。
	DailyConversionCap int64 = 500_000
	// PointsPerUnit は外部通貨1単位あたりのポイント数。
	PointsPerUnit int64 = 1000
	// ConversionFeeRate は換金手数料率（1%）。
	ConversionFeeRate = 0.01
	// ConversionCooldownDays は換金の最短間隔（暦日）。
	ConversionCooldownDays = 7
)

// RejectReason は換金拒否の理由。
type RejectReason string

const (
	// ReasonMinimum は最低ポイント数を下回っている。
	ReasonMinimum RejectReason = "minimum"
	// ReasonInsufficientBalance は残高を超える換金要求。
	ReasonInsufficientBalance RejectReason = "insufficient_balance"
	// ReasonDailyCap は当日の換金上限を超える。
	ReasonDailyCap RejectReason = "daily_cap"
	// ReasonCooldown は前回の換金から7日経過していない。
	ReasonCooldown RejectReason = "cooldown"
)

// ConversionCheck は換金可否の判定結果。
type ConversionCheck struct {
	Allowed bool
	Reason  RejectReason
	Detail  string
}

// ConversionError は換金のバリデーション失敗を表す。
// 例外ではなく値として呼び出し元に返される。
type ConversionError struct {
	Reason RejectReason
	Detail string
}

// Error はerrorインターフェースを実装する。
func (e *ConversionError) Error() string {
	return fmt.Sprintf("conversion rejected (%s): %s", e.Reason, e.Detail)
}

// ConversionResult は換金の計算結果。金額は外部通貨単位（小数第2位まで）。
type ConversionResult struct {
	GrossAmount    float64
	Fee            float64
	NetAmount      float64
	PointsDeducted int64
}

// AwardPoints は残高にポイントを加算し、追記用の取引レコードを返す。
// 常に成功する。負の値は0として扱い、残高は減少しない。
func AwardPoints(currentBalance, amount int64, reason, source string, now time.Time) (int64, model.PointsTransaction) {
	if amount < 0 {
		amount = 0
	}
	tx := model.PointsTransaction{
		ID:        uuid.New().String(),
		Type:      model.TransactionEarn,
		Amount:    amount,
		Reason:    reason,
		Source:    source,
		CreatedAt: now,
	}
	return currentBalance + amount, tx
}

// CanConvert は換金可否を判定する。
// 判定順序: 最低ポイント → 残高 → 日次上限 → クールダウン。
// dailyConvertedはlastConversionDateと同じ暦日の場合のみ加算対象となる。
func CanConvert(currentBalance, requestedPoints int64, lastConversionDate *time.Time, dailyConverted int64, now time.Time) ConversionCheck {
	if currentBalance < MinConversionPoints || requestedPoints < MinConversionPoints {
		return reject(ReasonMinimum, fmt.Sprintf("最低 %d ポイントが必要です", MinConversionPoints))
	}

	if requestedPoints > currentBalance {
		return reject(ReasonInsufficientBalance,
			fmt.Sprintf("残高 %d に対して %d ポイントが要求されました", currentBalance, requestedPoints))
	}

	convertedToday := int64(0)
	if lastConversionDate != nil && sameDay(*lastConversionDate, now) {
		convertedToday = dailyConverted
	}
	if requestedPoints+convertedToday > DailyConversionCap {
		return reject(ReasonDailyCap,
			fmt.Sprintf("本日の換金可能残りは %d ポイントです", max(DailyConversionCap-convertedToday, 0)))
	}

	if lastConversionDate != nil {
		elapsed := daysBetween(*lastConversionDate, now)
		if elapsed < ConversionCooldownDays {
			return reject(ReasonCooldown,
				fmt.Sprintf("次回の換金まであと %d 日です", ConversionCooldownDays-elapsed))
		}
	}

	return ConversionCheck{Allowed: true}
}

// Convert は換金条件を検証し、手数料控除後の金額を計算する。
// 条件を満たさない場合は*ConversionErrorを返す。
func Convert(currentBalance, requestedPoints int64, state model.ConversionState, now time.Time) (ConversionResult, error) {
	check := CanConvert(currentBalance, requestedPoints, state.LastConversionDate, state.DailyConvertedPoints, now)
	if !check.Allowed {
		return ConversionResult{}, &ConversionError{Reason: check.Reason, Detail: check.Detail}
	}

	gross := roundCents(float64(requestedPoints) / float64(PointsPerUnit))
	fee := roundCents(gross * ConversionFeeRate)

	return ConversionResult{
		GrossAmount:    gross,
		Fee:            fee,
		NetAmount:      roundCents(gross - fee),
		PointsDeducted: requestedPoints,
	}, nil
}

// ApplyConversion は換金結果をアカウントに反映する。
// 日次換金量は暦日が変わるとリセットされる。
func ApplyConversion(account *model.PointsAccount, result ConversionResult, now time.Time) {
	account.Balance -= result.PointsDeducted
	account.TotalConverted += result.PointsDeducted

	if account.DailyConvertedOn != nil && sameDay(*account.DailyConvertedOn, now) {
		account.DailyConvertedPoints += result.PointsDeducted
	} else {
		account.DailyConvertedPoints = result.PointsDeducted
	}
	day := truncateDay(now)
	account.DailyConvertedOn = &day
	converted := now
	account.LastConversionAt = &converted
	account.UpdatedAt = now
}

func reject(reason RejectReason, detail string) ConversionCheck {
	return ConversionCheck{Allowed: false, Reason: reason, Detail: detail}
}

// truncateDay は時刻をそのロケーションの0時に切り捨てる。
func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func sameDay(a, b time.Time) bool {
	a = a.In(b.Location())
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// daysBetween はfromからtoまでの暦日数を返す。経過ミリ秒ではなく日付で数える。
// 夏時間の影響を避けるため日付をUTCの0時に置き直して差を取る。
func daysBetween(from, to time.Time) int {
	from = from.In(to.Location())
	fy, fm, fd := from.Date()
	ty, tm, td := to.Date()
	f := time.Date(fy, fm, fd, 0, 0, 0, 0, time.UTC)
	t := time.Date(ty, tm, td, 0, 0, 0, 0, time.UTC)
	return int(t.Sub(f).Hours() / 24)
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
