package redis

import (
	"context"
	"errors"

	"github.com/go-redis/redis/v8"

	"ai-answering-machine/internal/domain"
	"ai-answering-machine/internal/domain/ports/repository"
)

var _ repository.KeyValue = (*KVStore)(nil)

// KVStore keeps small slots (the current draft) in Redis without expiry.
type KVStore struct {
	client RedisClient
	prefix string
}

func NewKVStore(client RedisClient, prefix string) *KVStore {
	if prefix == "" {
		prefix = "answering:"
	}
	return &KVStore{client: client, prefix: prefix}
}

func (s *KVStore) key(k string) string { return s.prefix + k }

func (s *KVStore) Get(ctx context.Context, key string) (string, error) {
	v, err := s.client.Get(ctx, s.key(key))
	if errors.Is(err, redis.Nil) {
		return "", domain.ErrNotFound
	}
	return v, err
}

func (s *KVStore) Set(ctx context.Context, key, value string) error {
	return s.client.Put(ctx, s.key(key), value)
}

func (s *KVStore) Del(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.key(key))
}
