package repository

import "context"

// KeyValue is a small durable slot store. Get returns domain.ErrNotFound
// for a missing key.
type KeyValue interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Del(ctx context.Context, key string) error
}
