package queue

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	// pure Goの"sqlite"ドライバを登録する
	_ "modernc.org/sqlite"

	"github.com/hitoshi/newsroom/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore はSQLiteファイルを使用したLocalStoreの実装。
// 端末ローカルの単一プロセスから使用する前提で、書き込みは1接続に制限する。
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore はpathのSQLiteデータベースを開き（なければ作成し）、
// PRAGMAとマイグレーションを適用したストアを返す。
func OpenSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("キューディレクトリの作成に失敗: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("キューデータベースのオープンに失敗: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := applyPragmas(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("PRAGMAの適用に失敗: %w", err)
	}
	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("キューのマイグレーションに失敗: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// runMigrations はmigrations配下のSQLファイルを名前順に1ファイル1トランザクションで実行する。
// 各ファイルはIF NOT EXISTSで書かれており、再実行しても安全。
func runMigrations(ctx context.Context, db *sql.DB) error {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		sqlBytes, err := fs.ReadFile(migrationsFS, "migrations/"+e.Name())
		if err != nil {
			return err
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, string(sqlBytes)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("%s: %w", e.Name(), err)
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}

// Close はデータベース接続を閉じる。
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Put はメッセージを作成または上書きする。既存行の投入順（seq）は維持される。
func (s *SQLiteStore) Put(ctx context.Context, msg *model.QueuedMessage) error {
	if msg == nil {
		return errors.New("nil message")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO queued_messages (
			id, conversation_id, sender_id, content, created_at,
			status, attempts, last_error, next_attempt_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			attempts = excluded.attempts,
			last_error = excluded.last_error,
			next_attempt_at = excluded.next_attempt_at`,
		msg.ID, msg.ConversationID, msg.SenderID, msg.Content, msg.CreatedAt.UnixNano(),
		string(msg.Status), msg.Attempts, msg.LastError, toNullUnixNano(msg.NextAttemptAt),
	)
	if err != nil {
		return fmt.Errorf("キューメッセージの保存に失敗しました: %w", err)
	}
	return nil
}

const selectQueuedColumns = `
	SELECT id, conversation_id, sender_id, content, created_at,
	       status, attempts, last_error, next_attempt_at
	FROM queued_messages`

// Get は指定IDのメッセージを取得する。見つからない場合はnilを返す。
func (s *SQLiteStore) Get(ctx context.Context, id string) (*model.QueuedMessage, error) {
	row := s.db.QueryRowContext(ctx, selectQueuedColumns+` WHERE id = ?`, id)
	msg, err := scanQueuedMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("キューメッセージの取得に失敗しました: %w", err)
	}
	return msg, nil
}

// ListAll は全メッセージを作成順に返す。
func (s *SQLiteStore) ListAll(ctx context.Context) ([]*model.QueuedMessage, error) {
	return s.list(ctx, selectQueuedColumns+` ORDER BY created_at, seq`)
}

// ListByConversation は会話のメッセージを作成順に返す。
func (s *SQLiteStore) ListByConversation(ctx context.Context, conversationID string) ([]*model.QueuedMessage, error) {
	return s.list(ctx, selectQueuedColumns+` WHERE conversation_id = ? ORDER BY created_at, seq`, conversationID)
}

func (s *SQLiteStore) list(ctx context.Context, query string, args ...any) ([]*model.QueuedMessage, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("キューメッセージ一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var msgs []*model.QueuedMessage
	for rows.Next() {
		msg, err := scanQueuedMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("キューメッセージの読み取りに失敗しました: %w", err)
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("キューメッセージ一覧の走査に失敗しました: %w", err)
	}
	return msgs, nil
}

// Delete は指定IDのメッセージを削除する。
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM queued_messages WHERE id = ?`, id); err != nil {
		return fmt.Errorf("キューメッセージの削除に失敗しました: %w", err)
	}
	return nil
}

// DeleteFailedBefore はbeforeより前に作成された失敗済みメッセージを削除し、削除件数を返す。
// 送信待ちのメッセージは古くても削除しない。
func (s *SQLiteStore) DeleteFailedBefore(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM queued_messages WHERE status = ? AND created_at < ?`,
		string(model.MessageStatusFailed), before.UnixNano(),
	)
	if err != nil {
		return 0, fmt.Errorf("失敗メッセージの削除に失敗しました: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("削除件数の取得に失敗しました: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQueuedMessage(sc rowScanner) (*model.QueuedMessage, error) {
	var (
		msg       model.QueuedMessage
		createdAt int64
		status    string
		nextAt    sql.NullInt64
	)
	if err := sc.Scan(
		&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.Content, &createdAt,
		&status, &msg.Attempts, &msg.LastError, &nextAt,
	); err != nil {
		return nil, err
	}
	msg.CreatedAt = time.Unix(0, createdAt).UTC()
	msg.Status = model.MessageStatus(status)
	if nextAt.Valid {
		msg.NextAttemptAt = time.Unix(0, nextAt.Int64).UTC()
	}
	return &msg, nil
}

func toNullUnixNano(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

// compile-time interface check
var _ LocalStore = (*SQLiteStore)(nil)
