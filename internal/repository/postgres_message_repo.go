package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/hitoshi/newsroom/internal/model"
)

// PostgresMessageRepo はPostgreSQLを使用した会話メッセージリポジトリ。
// オフラインキューの配信先（リモートストア）として使用される。
type PostgresMessageRepo struct {
	db *sql.DB
}

// NewPostgresMessageRepo はPostgresMessageRepoを生成する。
func NewPostgresMessageRepo(db *sql.DB) *PostgresMessageRepo {
	return &PostgresMessageRepo{db: db}
}

// SaveMessage はメッセージを保存する。
// キューの再送で同じIDが届いても重複しないよう、ON CONFLICT DO NOTHINGで冪等にする。
func (r *PostgresMessageRepo) SaveMessage(ctx context.Context, msg *model.Message) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO messages (id, conversation_id, sender_id, content, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO NOTHING`,
		msg.ID, msg.ConversationID, msg.SenderID, msg.Content, msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("メッセージの保存に失敗しました: %w", err)
	}
	return nil
}

// ListByConversation は会話のメッセージを作成日時の昇順で返す。
func (r *PostgresMessageRepo) ListByConversation(ctx context.Context, conversationID string, before time.Time, limit int) ([]*model.Message, error) {
	query, args, err := buildListMessagesQuery(conversationID, before, limit)
	if err != nil {
		return nil, fmt.Errorf("メッセージ一覧クエリの構築に失敗しました: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("メッセージ一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var msgs []*model.Message
	for rows.Next() {
		msg := &model.Message{}
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("メッセージの読み取りに失敗しました: %w", err)
		}
		msgs = append(msgs, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("メッセージ一覧の走査に失敗しました: %w", err)
	}

	// 新しい順に取得したものを表示用に昇順へ並べ替える
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}

	return msgs, nil
}

// buildListMessagesQuery は会話メッセージ一覧のSELECT文を組み立てる。
// 最新limit件を取るため降順で取得する。
func buildListMessagesQuery(conversationID string, before time.Time, limit int) (string, []interface{}, error) {
	q := psql.
		Select("id", "conversation_id", "sender_id", "content", "created_at").
		From("messages").
		Where(sq.Eq{"conversation_id": conversationID}).
		OrderBy("created_at DESC", "id DESC")

	if !before.IsZero() {
		q = q.Where(sq.Lt{"created_at": before})
	}
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}

	return q.ToSql()
}

// compile-time interface check
var _ MessageRepository = (*PostgresMessageRepo)(nil)
