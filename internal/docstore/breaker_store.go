package docstore

import (
	"context"

	"github.com/mbd888/cryptosleuth/internal/circuitbreaker"
)

// Breaker keys, one per store operation.
const (
	opInsert      = "docstore_insert"
	opFind        = "docstore_find"
	opCollections = "docstore_collections"
)

// BreakerStore wraps a Store so that repeated failures stop reaching the
// backend until it recovers. Calls rejected by an open circuit return
// circuitbreaker.ErrOpen. Ping always reaches the backend so health checks
// report the real state.
type BreakerStore struct {
	inner   Store
	breaker *circuitbreaker.Breaker
}

// NewBreakerStore guards inner with b.
func NewBreakerStore(inner Store, b *circuitbreaker.Breaker) *BreakerStore {
	return &BreakerStore{inner: inner, breaker: b}
}

func (s *BreakerStore) Insert(ctx context.Context, collection string, doc Document) error {
	return s.breaker.Do(opInsert, func() error {
		return s.inner.Insert(ctx, collection, doc)
	})
}

func (s *BreakerStore) Find(ctx context.Context, collection string, filter Filter, limit int) ([]Document, error) {
	var docs []Document
	err := s.breaker.Do(opFind, func() error {
		var err error
		docs, err = s.inner.Find(ctx, collection, filter, limit)
		return err
	})
	return docs, err
}

func (s *BreakerStore) Collections(ctx context.Context) ([]string, error) {
	var names []string
	err := s.breaker.Do(opCollections, func() error {
		var err error
		names, err = s.inner.Collections(ctx)
		return err
	})
	return names, err
}

func (s *BreakerStore) Ping(ctx context.Context) error {
	return s.inner.Ping(ctx)
}
