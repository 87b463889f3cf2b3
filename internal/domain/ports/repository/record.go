package repository

import "context"

// RecordStore is durable key -> blob storage. Keys are slash-separated and already file-safe.
// Get returns domain.ErrNotFound when the key has never been written.
type RecordStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
}
