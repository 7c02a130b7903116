package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/newsroom/internal/model"
	"github.com/hitoshi/newsroom/internal/points"
)

const (
	defaultTransactionsLimit = 50
	maxTransactionsLimit     = 200
)

// PointsServiceInterface はポイントハンドラーが必要とするサービスインターフェース。
type PointsServiceInterface interface {
	Balance(ctx context.Context, userID string) (*model.PointsAccount, error)
	History(ctx context.Context, userID string, txType model.TransactionType, limit int) ([]*model.PointsTransaction, error)
	Award(ctx context.Context, userID string, amount int64, reason, source string) (*model.PointsAccount, error)
	Spend(ctx context.Context, userID string, amount int64, reason string) (*model.PointsAccount, error)
	CheckConversion(ctx context.Context, userID string, requestedPoints int64) (points.ConversionCheck, error)
	Convert(ctx context.Context, userID string, requestedPoints int64) (points.ConversionResult, error)
}

// PointsHandler はポイント台帳のHTTPハンドラー。
type PointsHandler struct {
	service PointsServiceInterface
	logger  *slog.Logger
}

// NewPointsHandler はPointsHandlerを生成する。
func NewPointsHandler(service PointsServiceInterface, logger *slog.Logger) *PointsHandler {
	return &PointsHandler{service: service, logger: logger}
}

// --- リクエスト/レスポンス型 ---

type balanceResponse struct {
	UserID               string     `json:"user_id"`
	Balance              int64      `json:"balance"`
	TotalEarned          int64      `json:"total_earned"`
	TotalSpent           int64      `json:"total_spent"`
	TotalConverted       int64      `json:"total_converted"`
	LastConversionAt     *time.Time `json:"last_conversion_at,omitempty"`
	DailyConvertedPoints int64      `json:"daily_converted_points"`
}

type transactionResponse struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Amount    int64     `json:"amount"`
	Reason    string    `json:"reason,omitempty"`
	Source    string    `json:"source,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type awardRequest struct {
	Amount int64  `json:"amount"`
	Reason string `json:"reason"`
	Source string `json:"source"`
}

type spendRequest struct {
	Amount int64  `json:"amount"`
	Reason string `json:"reason"`
}

type convertRequest struct {
	Points int64 `json:"points"`
}

type conversionCheckResponse struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
	Detail  string `json:"detail,omitempty"`
}

type conversionResponse struct {
	PointsDeducted int64   `json:"points_deducted"`
	GrossAmount    float64 `json:"gross_amount"`
	Fee            float64 `json:"fee"`
	NetAmount      float64 `json:"net_amount"`
}

func toBalanceResponse(a *model.PointsAccount) balanceResponse {
	return balanceResponse{
		UserID:               a.UserID,
		Balance:              a.Balance,
		TotalEarned:          a.TotalEarned,
		TotalSpent:           a.TotalSpent,
		TotalConverted:       a.TotalConverted,
		LastConversionAt:     a.LastConversionAt,
		DailyConvertedPoints: a.DailyConvertedPoints,
	}
}

// GetBalance は残高を返す。
// GET /api/users/{userID}/points
func (h *PointsHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	account, err := h.service.Balance(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceResponse(account))
}

// ListTransactions は取引ログを新しい順に返す。
// GET /api/users/{userID}/points/transactions?type=earn|spend|convert&limit=50
func (h *PointsHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	txType := model.TransactionType(q.Get("type"))
	switch txType {
	case "", model.TransactionEarn, model.TransactionSpend, model.TransactionConvert:
	default:
		handleServiceError(w, h.logger, model.NewInvalidPayloadError("type must be earn, spend or convert"))
		return
	}

	limit, err := parseLimit(q.Get("limit"), defaultTransactionsLimit, maxTransactionsLimit)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	txs, err := h.service.History(r.Context(), chi.URLParam(r, "userID"), txType, limit)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	resp := make([]transactionResponse, len(txs))
	for i, tx := range txs {
		resp[i] = transactionResponse{
			ID:        tx.ID,
			Type:      string(tx.Type),
			Amount:    tx.Amount,
			Reason:    tx.Reason,
			Source:    tx.Source,
			CreatedAt: tx.CreatedAt,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": resp})
}

// Award はポイントを付与する。
// POST /api/users/{userID}/points/award
func (h *PointsHandler) Award(w http.ResponseWriter, r *http.Request) {
	var req awardRequest
	if err := decodeJSON(r, &req); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	account, err := h.service.Award(r.Context(), chi.URLParam(r, "userID"), req.Amount, req.Reason, req.Source)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceResponse(account))
}

// Spend はポイントを消費する。
// POST /api/users/{userID}/points/spend
func (h *PointsHandler) Spend(w http.ResponseWriter, r *http.Request) {
	var req spendRequest
	if err := decodeJSON(r, &req); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	account, err := h.service.Spend(r.Context(), chi.URLParam(r, "userID"), req.Amount, req.Reason)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceResponse(account))
}

// CheckConversion は換金可否を返す。拒否の場合も200で理由を返す。
// GET /api/users/{userID}/points/conversion?points=100000
func (h *PointsHandler) CheckConversion(w http.ResponseWriter, r *http.Request) {
	requested, err := strconv.ParseInt(r.URL.Query().Get("points"), 10, 64)
	if err != nil {
		handleServiceError(w, h.logger, model.NewInvalidPayloadError("points must be an integer"))
		return
	}

	check, err := h.service.CheckConversion(r.Context(), chi.URLParam(r, "userID"), requested)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, conversionCheckResponse{
		Allowed: check.Allowed,
		Reason:  string(check.Reason),
		Detail:  check.Detail,
	})
}

// Convert はポイントを換金する。
// POST /api/users/{userID}/points/convert
func (h *PointsHandler) Convert(w http.ResponseWriter, r *http.Request) {
	var req convertRequest
	if err := decodeJSON(r, &req); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	result, err := h.service.Convert(r.Context(), chi.URLParam(r, "userID"), req.Points)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, conversionResponse{
		PointsDeducted: result.PointsDeducted,
		GrossAmount:    result.GrossAmount,
		Fee:            result.Fee,
		NetAmount:      result.NetAmount,
	})
}

// parseLimit はlimitクエリを解析する。空の場合はdef、上限を超える場合はmaxに丸める。
func parseLimit(raw string, def, maxLimit int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, model.NewInvalidPayloadError("limit must be a positive integer")
	}
	return min(n, maxLimit), nil
}
