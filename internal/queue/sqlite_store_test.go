package queue

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/hitoshi/newsroom/internal/model"
)

func openTestStore(t *testing.T, path string) *SQLiteStore {
	t.Helper()
	store, err := OpenSQLiteStore(context.Background(), path)
	if err != nil {
		t.Fatalf("OpenSQLiteStore() がエラーを返した: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStore_PutGetDelete(t *testing.T) {
	store := openTestStore(t, filepath.Join(t.TempDir(), "queue.db"))
	ctx := context.Background()
	created := time.Date(2026, 6, 1, 12, 0, 0, 123456789, time.UTC)

	msg := &model.QueuedMessage{
		ID:             "msg-1",
		ConversationID: "conv-1",
		SenderID:       "user-1",
		Content:        "こんにちは",
		CreatedAt:      created,
		Status:         model.MessageStatusPending,
	}
	if err := store.Put(ctx, msg); err != nil {
		t.Fatalf("Put() がエラーを返した: %v", err)
	}

	got, err := store.Get(ctx, "msg-1")
	if err != nil {
		t.Fatalf("Get() がエラーを返した: %v", err)
	}
	if diff := cmp.Diff(msg, got); diff != "" {
		t.Errorf("Get() mismatch (-want +got):\n%s", diff)
	}

	msg.Status = model.MessageStatusFailed
	msg.Attempts = 5
	msg.LastError = "offline"
	if err := store.Put(ctx, msg); err != nil {
		t.Fatalf("Put() 上書きがエラーを返した: %v", err)
	}
	got, _ = store.Get(ctx, "msg-1")
	if got.Status != model.MessageStatusFailed || got.Attempts != 5 || got.LastError != "offline" {
		t.Errorf("上書き後 = %+v", got)
	}

	if err := store.Delete(ctx, "msg-1"); err != nil {
		t.Fatalf("Delete() がエラーを返した: %v", err)
	}
	got, err = store.Get(ctx, "msg-1")
	if err != nil || got != nil {
		t.Errorf("削除後の Get() = %v, %v, want nil, nil", got, err)
	}
	if err := store.Delete(ctx, "msg-1"); err != nil {
		t.Errorf("存在しないIDの Delete() はエラーにならないべき: %v", err)
	}
}

func TestSQLiteStore_ListOrderIsCreationOrder(t *testing.T) {
	store := openTestStore(t, filepath.Join(t.TempDir(), "queue.db"))
	ctx := context.Background()
	ts := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	put := func(id, conv string, createdAt time.Time) {
		t.Helper()
		if err := store.Put(ctx, &model.QueuedMessage{
			ID: id, ConversationID: conv, Content: id, CreatedAt: createdAt, Status: model.MessageStatusPending,
		}); err != nil {
			t.Fatalf("Put(%s) がエラーを返した: %v", id, err)
		}
	}
	put("b", "conv-1", ts.Add(time.Second))
	put("a", "conv-2", ts)
	put("c", "conv-1", ts.Add(time.Second))

	// 上書きしても投入順は変わらない
	put("b", "conv-1", ts.Add(time.Second))

	all, err := store.ListAll(ctx)
	if err != nil {
		t.Fatalf("ListAll() がエラーを返した: %v", err)
	}
	var ids []string
	for _, m := range all {
		ids = append(ids, m.ID)
	}
	if diff := cmp.Diff([]string{"a", "b", "c"}, ids); diff != "" {
		t.Errorf("ListAll() の順序 (-want +got):\n%s", diff)
	}

	conv, _ := store.ListByConversation(ctx, "conv-1")
	if len(conv) != 2 || conv[0].ID != "b" || conv[1].ID != "c" {
		t.Errorf("ListByConversation() = %v", conv)
	}
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "queue.db")
	ctx := context.Background()
	next := time.Date(2026, 6, 1, 12, 0, 4, 0, time.UTC)

	first, err := OpenSQLiteStore(ctx, path)
	if err != nil {
		t.Fatalf("OpenSQLiteStore() がエラーを返した: %v", err)
	}
	if err := first.Put(ctx, &model.QueuedMessage{
		ID: "msg-1", ConversationID: "conv-1", Content: "persist me",
		CreatedAt: time.Now(), Status: model.MessageStatusPending, Attempts: 2, NextAttemptAt: next,
	}); err != nil {
		t.Fatalf("Put() がエラーを返した: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close() がエラーを返した: %v", err)
	}

	second := openTestStore(t, path)
	got, err := second.Get(ctx, "msg-1")
	if err != nil || got == nil {
		t.Fatalf("再オープン後にメッセージが残っているべき: %v, %v", got, err)
	}
	if got.Attempts != 2 || !got.NextAttemptAt.Equal(next) {
		t.Errorf("got = %+v", got)
	}
}

func TestSQLiteStore_WithQueue(t *testing.T) {
	store := openTestStore(t, filepath.Join(t.TempDir(), "queue.db"))
	remote := &mockRemote{}
	q := newTestQueue(store, remote, RetryPolicy{}, nil)

	id := queueMessage(t, q, "conv-1", "end to end")
	result, err := q.ProcessQueue(context.Background())
	if err != nil {
		t.Fatalf("ProcessQueue() がエラーを返した: %v", err)
	}
	if result.Delivered != 1 || len(remote.savedIDs()) != 1 || remote.savedIDs()[0] != id {
		t.Errorf("result = %+v, saved = %v", result, remote.savedIDs())
	}
	all, _ := store.ListAll(context.Background())
	if len(all) != 0 {
		t.Errorf("配信後はローカルが空になるべき: %d件", len(all))
	}
}

func TestSQLiteStore_DeleteFailedBefore(t *testing.T) {
	store := openTestStore(t, filepath.Join(t.TempDir(), "queue.db"))
	ctx := context.Background()
	cutoff := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	msgs := []*model.QueuedMessage{
		{ID: "old-failed", ConversationID: "c", Content: "a", CreatedAt: cutoff.Add(-time.Hour), Status: model.MessageStatusFailed},
		{ID: "old-pending", ConversationID: "c", Content: "b", CreatedAt: cutoff.Add(-time.Hour), Status: model.MessageStatusPending},
		{ID: "new-failed", ConversationID: "c", Content: "c", CreatedAt: cutoff.Add(time.Hour), Status: model.MessageStatusFailed},
	}
	for _, m := range msgs {
		if err := store.Put(ctx, m); err != nil {
			t.Fatalf("Put() がエラーを返した: %v", err)
		}
	}

	n, err := store.DeleteFailedBefore(ctx, cutoff)
	if err != nil {
		t.Fatalf("DeleteFailedBefore() がエラーを返した: %v", err)
	}
	if n != 1 {
		t.Errorf("削除件数 = %d, want 1", n)
	}

	all, _ := store.ListAll(ctx)
	var ids []string
	for _, m := range all {
		ids = append(ids, m.ID)
	}
	if diff := cmp.Diff([]string{"old-pending", "new-failed"}, ids); diff != "" {
		t.Errorf("残ったメッセージ mismatch (-want +got):\n%s", diff)
	}
}
