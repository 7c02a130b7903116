// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/newsroom/internal/model"
)

// ErrVersionConflict は楽観的ロックによる更新競合を表す。
var ErrVersionConflict = errors.New("points account version conflict")

// PointsRepository はポイント残高と取引ログの永続化インターフェース。
// 取得と、残高更新・取引追記の一括保存に、履歴参照を加えたもの。
type PointsRepository interface {
	// GetAccount は指定ユーザーのアカウントを取得する。見つからない場合はnilを返す。
	GetAccount(ctx context.Context, userID string) (*model.PointsAccount, error)

	// SaveWithTransaction はアカウントの保存と取引ログの追記を1つのトランザクションで行う。
	// account.Versionが保存済みの値と一致しない場合はErrVersionConflictを返す。
	// どちらかが失敗した場合は何も保存せず、成功時のみaccount.Versionをインクリメントする。
	SaveWithTransaction(ctx context.Context, account *model.PointsAccount, tx *model.PointsTransaction) error

	// ListTransactions はユーザーの取引ログを新しい順に返す。
	// txTypeが空の場合は全種別を返す。limitが0以下の場合は上限なし。
	ListTransactions(ctx context.Context, userID string, txType model.TransactionType, limit int) ([]*model.PointsTransaction, error)
}

// MessageRepository は確定済み会話メッセージ（リモートストア）の永続化インターフェース。
type MessageRepository interface {
	// SaveMessage はメッセージを保存する。同一IDが既に存在する場合は何もしない（冪等）。
	SaveMessage(ctx context.Context, msg *model.Message) error

	// ListByConversation は会話のメッセージを作成日時の昇順で返す。
	// beforeがゼロ値でない場合はそれより前のメッセージに限定する。
	ListByConversation(ctx context.Context, conversationID string, before time.Time, limit int) ([]*model.Message, error)
}
