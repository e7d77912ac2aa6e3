//go:build !integration

package redis

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"ai-answering-machine/internal/config"
	"ai-answering-machine/internal/domain"
)

func TestKVStore_RoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	cli, err := NewClient(ctx, &config.RedisConfig{URL: mr.Addr()})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer cli.Close()
	kv := NewKVStore(cli, "test:")

	t.Run("missing key", func(t *testing.T) {
		if _, err := kv.Get(ctx, "current-task"); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("set get del", func(t *testing.T) {
		if err := kv.Set(ctx, "current-task", `{"taskId":"x"}`); err != nil {
			t.Fatalf("set: %v", err)
		}
		if got, _ := mr.Get("test:current-task"); got != `{"taskId":"x"}` {
			t.Fatalf("stored under unexpected key/value: %q", got)
		}
		if ttl := mr.TTL("test:current-task"); ttl != 0 {
			t.Errorf("draft slot must not expire, ttl=%v", ttl)
		}
		got, err := kv.Get(ctx, "current-task")
		if err != nil || got != `{"taskId":"x"}` {
			t.Fatalf("get: %q %v", got, err)
		}
		if err := kv.Del(ctx, "current-task"); err != nil {
			t.Fatalf("del: %v", err)
		}
		if _, err := kv.Get(ctx, "current-task"); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound after del, got %v", err)
		}
	})
}

func TestNewClient_URLForms(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	for _, url := range []string{mr.Addr(), "redis://" + mr.Addr() + "/0"} {
		t.Run(url, func(t *testing.T) {
			cli, err := NewClient(ctx, &config.RedisConfig{URL: url})
			if err != nil {
				t.Fatalf("connect: %v", err)
			}
			defer cli.Close()
			if err := cli.Ping(ctx); err != nil {
				t.Fatalf("ping: %v", err)
			}
		})
	}

	t.Run("unreachable", func(t *testing.T) {
		if _, err := NewClient(ctx, &config.RedisConfig{URL: "127.0.0.1:1"}); err == nil {
			t.Fatal("expected dial error")
		}
	})
}
