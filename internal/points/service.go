package points

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/newsroom/internal/model"
	"github.com/hitoshi/newsroom/internal/repository"
)

// Recorder はポイント操作のメトリクス記録インターフェース。
type Recorder interface {
	RecordPointsAwarded(amount int64)
	RecordConversion(outcome string)
}

// Service はポイント台帳のユースケースを提供する。
// 同一ユーザーへの更新はプロセス内でロックして直列化し、
// 永続化時はバージョン比較で他プロセスとの競合を検出する。
type Service struct {
	repo    repository.PointsRepository
	metrics Recorder
	logger  *slog.Logger
	now     func() time.Time
	locks   *userLocks
}

// NewService はServiceの新しいインスタンスを生成する。
// metricsがnilの場合は記録しない。
func NewService(repo repository.PointsRepository, metrics Recorder, logger *slog.Logger) *Service {
	if metrics == nil {
		metrics = nopRecorder{}
	}
	return &Service{
		repo:    repo,
		metrics: metrics,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
		locks:   newUserLocks(),
	}
}

// Balance はユーザーのアカウントを返す。未作成の場合は残高0のアカウントを返す。
func (s *Service) Balance(ctx context.Context, userID string) (*model.PointsAccount, error) {
	return s.loadAccount(ctx, userID)
}

// History はユーザーの取引ログを新しい順に返す。
func (s *Service) History(ctx context.Context, userID string, txType model.TransactionType, limit int) ([]*model.PointsTransaction, error) {
	txs, err := s.repo.ListTransactions(ctx, userID, txType, limit)
	if err != nil {
		return nil, fmt.Errorf("取引ログの取得に失敗: %w", err)
	}
	return txs, nil
}

// Award はユーザーにポイントを付与する。
func (s *Service) Award(ctx context.Context, userID string, amount int64, reason, source string) (*model.PointsAccount, error) {
	if amount <= 0 {
		return nil, model.NewInvalidAmountError(amount)
	}

	unlock := s.locks.lock(userID)
	defer unlock()

	account, err := s.loadAccount(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	newBalance, tx := AwardPoints(account.Balance, amount, reason, source, now)
	tx.UserID = userID
	account.Balance = newBalance
	account.TotalEarned += amount
	account.UpdatedAt = now

	if err := s.persist(ctx, account, &tx); err != nil {
		return nil, err
	}

	s.metrics.RecordPointsAwarded(amount)
	s.logger.Info("ポイントを付与しました",
		slog.String("user_id", userID),
		slog.Int64("amount", amount),
		slog.String("reason", reason),
		slog.String("source", source),
		slog.Int64("balance", account.Balance),
	)

	return account, nil
}

// Spend はユーザーのポイントを消費する。残高を下回る消費は拒否する。
func (s *Service) Spend(ctx context.Context, userID string, amount int64, reason string) (*model.PointsAccount, error) {
	if amount <= 0 {
		return nil, model.NewInvalidAmountError(amount)
	}

	unlock := s.locks.lock(userID)
	defer unlock()

	account, err := s.loadAccount(ctx, userID)
	if err != nil {
		return nil, err
	}
	if amount > account.Balance {
		return nil, model.NewInsufficientPointsError(account.Balance, amount)
	}

	now := s.now()
	account.Balance -= amount
	account.TotalSpent += amount
	account.UpdatedAt = now

	tx := model.PointsTransaction{
		ID:        uuid.New().String(),
		UserID:    userID,
		Type:      model.TransactionSpend,
		Amount:    amount,
		Reason:    reason,
		CreatedAt: now,
	}
	if err := s.persist(ctx, account, &tx); err != nil {
		return nil, err
	}

	s.logger.Info("ポイントを消費しました",
		slog.String("user_id", userID),
		slog.Int64("amount", amount),
		slog.String("reason", reason),
		slog.Int64("balance", account.Balance),
	)

	return account, nil
}

// CheckConversion は現在の残高と換金履歴から換金可否を判定する。
func (s *Service) CheckConversion(ctx context.Context, userID string, requestedPoints int64) (ConversionCheck, error) {
	account, err := s.loadAccount(ctx, userID)
	if err != nil {
		return ConversionCheck{}, err
	}
	return CanConvert(account.Balance, requestedPoints,
		account.LastConversionAt, account.DailyConvertedPoints, s.now()), nil
}

// Convert はポイントを外部通貨に換金する。
// 条件を満たさない場合は*ConversionErrorを返し、残高は変更しない。
func (s *Service) Convert(ctx context.Context, userID string, requestedPoints int64) (ConversionResult, error) {
	unlock := s.locks.lock(userID)
	defer unlock()

	account, err := s.loadAccount(ctx, userID)
	if err != nil {
		return ConversionResult{}, err
	}

	now := s.now()
	result, err := Convert(account.Balance, requestedPoints, account.ConversionState(), now)
	if err != nil {
		var convErr *ConversionError
		if errors.As(err, &convErr) {
			s.metrics.RecordConversion(string(convErr.Reason))
			s.logger.Warn("換金を拒否しました",
				slog.String("user_id", userID),
				slog.Int64("requested_points", requestedPoints),
				slog.String("reason", string(convErr.Reason)),
			)
		}
		return ConversionResult{}, err
	}

	ApplyConversion(account, result, now)

	tx := model.PointsTransaction{
		ID:        uuid.New().String(),
		UserID:    userID,
		Type:      model.TransactionConvert,
		Amount:    result.PointsDeducted,
		Reason:    fmt.Sprintf("net=%.2f fee=%.2f", result.NetAmount, result.Fee),
		CreatedAt: now,
	}
	if err := s.persist(ctx, account, &tx); err != nil {
		return ConversionResult{}, err
	}

	s.metrics.RecordConversion("accepted")
	s.logger.Info("ポイントを換金しました",
		slog.String("user_id", userID),
		slog.Int64("points", result.PointsDeducted),
		slog.Float64("net_amount", result.NetAmount),
		slog.Float64("fee", result.Fee),
		slog.Int64("balance", account.Balance),
	)

	return result, nil
}

// loadAccount はアカウントを取得し、未作成なら空のアカウントを返す。
func (s *Service) loadAccount(ctx context.Context, userID string) (*model.PointsAccount, error) {
	account, err := s.repo.GetAccount(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ポイントアカウントの取得に失敗: %w", err)
	}
	if account == nil {
		account = &model.PointsAccount{UserID: userID}
	}
	return account, nil
}

// persist はアカウントと取引ログを一括で保存する。
// 失敗時はどちらも保存されないため、呼び出し元はそのまま再試行できる。
func (s *Service) persist(ctx context.Context, account *model.PointsAccount, tx *model.PointsTransaction) error {
	if err := s.repo.SaveWithTransaction(ctx, account, tx); err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			s.logger.Warn("ポイントアカウントの更新が競合しました",
				slog.String("user_id", account.UserID),
				slog.Int64("version", account.Version),
			)
			return fmt.Errorf("ポイントアカウントの更新に失敗: %w", err)
		}
		s.logger.Error("ポイントの保存に失敗しました",
			slog.String("user_id", account.UserID),
			slog.String("transaction_id", tx.ID),
			slog.String("type", string(tx.Type)),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("ポイントの保存に失敗: %w", err)
	}
	return nil
}

// userLocks はユーザーIDごとのミューテックスを参照カウント付きで管理する。
type userLocks struct {
	mu    sync.Mutex
	locks map[string]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

func newUserLocks() *userLocks {
	return &userLocks{locks: make(map[string]*userLock)}
}

// lock は指定ユーザーのロックを取得し、解放関数を返す。
func (l *userLocks) lock(userID string) func() {
	l.mu.Lock()
	ul, ok := l.locks[userID]
	if !ok {
		ul = &userLock{}
		l.locks[userID] = ul
	}
	ul.refs++
	l.mu.Unlock()

	ul.mu.Lock()

	return func() {
		ul.mu.Unlock()
		l.mu.Lock()
		ul.refs--
		if ul.refs == 0 {
			delete(l.locks, userID)
		}
		l.mu.Unlock()
	}
}

type nopRecorder struct{}

func (nopRecorder) RecordPointsAwarded(int64) {}
func (nopRecorder) RecordConversion(string) {}
