//go:build !integration

package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"ai-answering-machine/internal/domain"
	"ai-answering-machine/internal/domain/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "answers.db"), nil, nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func textTask(id, question string) *model.Task {
	return &model.Task{TaskID: id, Status: model.TaskPending, Type: model.TaskTypeText, TextExplanation: question}
}

func TestStore_SchemaVersion(t *testing.T) {
	s := openTestStore(t)
	v, err := s.Version(context.Background())
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if v != SchemaVersion {
		t.Fatalf("want schema v%d, got v%d", SchemaVersion, v)
	}
}

func TestTaskRepo_CreateThenGet(t *testing.T) {
	ctx := context.Background()
	repo := NewTaskRepo(openTestStore(t))

	task := textTask("t-1", "2+2?")
	id, err := repo.Create(ctx, task)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if id == 0 || task.ID != id {
		t.Fatalf("expected row id to be assigned, got %d / %d", id, task.ID)
	}

	got, err := repo.GetByTaskID(ctx, "t-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.CreatedAt.Equal(got.UpdatedAt) {
		t.Errorf("createdAt %v != updatedAt %v", got.CreatedAt, got.UpdatedAt)
	}
	if got.IsDeleted || got.TextExplanation != "2+2?" || got.Status != model.TaskPending {
		t.Errorf("unexpected task: %+v", got)
	}
}

func TestTaskRepo_UpdateMergesAndBumps(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	repo := NewTaskRepo(s)
	if _, err := repo.Create(ctx, textTask("t-1", "2+2?")); err != nil {
		t.Fatalf("create: %v", err)
	}
	before, _ := repo.GetByTaskID(ctx, "t-1")

	s.now = func() time.Time { return before.CreatedAt.Add(time.Minute) }
	err := repo.Update(ctx, "t-1", model.TaskUpdate{
		Answer: model.StringPtr("4"),
		Status: model.StatusPtr(model.TaskCompleted),
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	after, _ := repo.GetByTaskID(ctx, "t-1")
	if after.Answer != "4" || after.Status != model.TaskCompleted {
		t.Errorf("fields not merged: %+v", after)
	}
	if after.TextExplanation != "2+2?" {
		t.Errorf("untouched field changed: %q", after.TextExplanation)
	}
	if !after.UpdatedAt.After(before.UpdatedAt) || !after.CreatedAt.Equal(before.CreatedAt) {
		t.Errorf("timestamps: created %v -> %v, updated %v -> %v",
			before.CreatedAt, after.CreatedAt, before.UpdatedAt, after.UpdatedAt)
	}

	t.Run("unknown key is a no-op", func(t *testing.T) {
		if err := repo.Update(ctx, "missing", model.TaskUpdate{Answer: model.StringPtr("x")}); err != nil {
			t.Fatalf("expected nil error, got %v", err)
		}
	})
}

func TestTaskRepo_SoftDelete(t *testing.T) {
	ctx := context.Background()
	repo := NewTaskRepo(openTestStore(t))
	if _, err := repo.Create(ctx, textTask("t-1", "q")); err != nil {
		t.Fatalf("create: %v", err)
	}
	before, _ := repo.GetByTaskID(ctx, "t-1")

	if err := repo.SoftDelete(ctx, "t-1"); err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	if _, err := repo.GetByTaskID(ctx, "t-1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	list, _ := repo.ListAll(ctx)
	if len(list) != 0 {
		t.Fatalf("ListAll should skip deleted rows, got %d", len(list))
	}

	raw, err := repo.Scan(ctx)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(raw) != 1 || !raw[0].IsDeleted {
		t.Fatalf("raw scan should still see the deleted row: %+v", raw)
	}
	if !raw[0].UpdatedAt.Equal(before.UpdatedAt) {
		t.Errorf("soft delete must not bump updatedAt")
	}
}

func TestTaskRepo_ListAllNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	repo := NewTaskRepo(s)
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		at := base.Add(time.Duration(i) * time.Hour)
		s.now = func() time.Time { return at }
		if _, err := repo.Create(ctx, textTask(id, id)); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}
	list, err := repo.ListAll(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var ids []string
	for _, task := range list {
		ids = append(ids, task.TaskID)
	}
	if len(ids) != 3 || ids[0] != "c" || ids[2] != "a" {
		t.Fatalf("want [c b a], got %v", ids)
	}
}

func TestConversationRepo_ClearReusesRecord(t *testing.T) {
	ctx := context.Background()
	repo := NewConversationRepo(openTestStore(t))

	history := []model.ChatMessage{
		{Role: model.RoleUser, Content: model.TextContent("why?")},
		{Role: model.RoleAssistant, Content: model.TextContent("because")},
	}
	if err := repo.Upsert(ctx, "t-1", history); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	first, err := repo.GetByTaskID(ctx, "t-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(first.Content) != 2 || first.Content[1].Content.Text() != "because" {
		t.Fatalf("content not stored: %+v", first.Content)
	}

	if err := repo.Clear(ctx, "t-1"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	cleared, err := repo.GetByTaskID(ctx, "t-1")
	if err != nil {
		t.Fatalf("get after clear: %v", err)
	}
	if cleared.ID != first.ID {
		t.Errorf("clear should reuse record %d, got %d", first.ID, cleared.ID)
	}
	if len(cleared.Content) != 0 {
		t.Errorf("expected empty content, got %+v", cleared.Content)
	}
	raw, _ := repo.Scan(ctx)
	if len(raw) != 1 {
		t.Errorf("expected a single conversation row, got %d", len(raw))
	}
}

func TestConversationRepo_PartsRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := NewConversationRepo(openTestStore(t))
	seed := []model.ChatMessage{{Role: model.RoleUser, Content: model.PartsContent(model.ImagePart("https://img/1.png"))}}
	if _, err := repo.Create(ctx, "t-img", seed); err != nil {
		t.Fatalf("create: %v", err)
	}
	got, err := repo.GetByTaskID(ctx, "t-img")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.Content[0].Content.IsParts() || got.Content[0].Content.Parts()[0].Image != "https://img/1.png" {
		t.Fatalf("parts content lost: %+v", got.Content)
	}
}

func TestRepository_MutationsInvalidate(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	tasks := NewTaskRepo(s)
	convs := NewConversationRepo(s)

	sig, release := tasks.Subscribe()
	defer release()
	convSig, convRelease := convs.Subscribe()
	defer convRelease()

	if _, err := tasks.Create(ctx, textTask("t-1", "q")); err != nil {
		t.Fatalf("create: %v", err)
	}
	select {
	case <-sig:
	case <-time.After(time.Second):
		t.Fatal("expected a task invalidation")
	}
	select {
	case <-convSig:
		t.Fatal("task mutation must not invalidate conversations")
	default:
	}
}
