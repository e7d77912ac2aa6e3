//go:build !integration

package kv

import (
	"context"
	"errors"
	"testing"

	"ai-answering-machine/internal/domain"
	"ai-answering-machine/internal/domain/ports/repository"
)

func TestBackends(t *testing.T) {
	fileStore, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("file store: %v", err)
	}
	backends := map[string]repository.KeyValue{
		"file":   fileStore,
		"memory": NewMemoryStore(),
	}
	for name, kv := range backends {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if _, err := kv.Get(ctx, "current-task"); !errors.Is(err, domain.ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
			if err := kv.Set(ctx, "current-task", "v1"); err != nil {
				t.Fatalf("set: %v", err)
			}
			if err := kv.Set(ctx, "current-task", "v2"); err != nil {
				t.Fatalf("overwrite: %v", err)
			}
			if got, err := kv.Get(ctx, "current-task"); err != nil || got != "v2" {
				t.Fatalf("get: %q %v", got, err)
			}
			if err := kv.Del(ctx, "current-task"); err != nil {
				t.Fatalf("del: %v", err)
			}
			if err := kv.Del(ctx, "current-task"); err != nil {
				t.Fatalf("second del should be a no-op: %v", err)
			}
			if _, err := kv.Get(ctx, "current-task"); !errors.Is(err, domain.ErrNotFound) {
				t.Fatalf("expected ErrNotFound after del, got %v", err)
			}
		})
	}
}

func TestFileStore_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	a, _ := NewFileStore(dir)
	if err := a.Set(ctx, "current-task", `{"taskId":"x"}`); err != nil {
		t.Fatalf("set: %v", err)
	}
	b, _ := NewFileStore(dir)
	if got, err := b.Get(ctx, "current-task"); err != nil || got != `{"taskId":"x"}` {
		t.Fatalf("value lost across reopen: %q %v", got, err)
	}
}
