package docstore

import (
	"context"
	"reflect"
	"sort"
	"sync"
)

// DefaultMemoryCapacity bounds each collection of a MemoryStore.
const DefaultMemoryCapacity = 10000

// MemoryStore is an in-memory implementation of Store for demo/test use.
// Each collection keeps at most capacity documents; the oldest are evicted.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string][]Document // collection → documents in insert order
	capacity    int
}

// NewMemoryStore creates an in-memory document store with
// DefaultMemoryCapacity documents per collection.
func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithCapacity(DefaultMemoryCapacity)
}

// NewMemoryStoreWithCapacity creates an in-memory document store holding at
// most capacity documents per collection. capacity <= 0 means unbounded.
func NewMemoryStoreWithCapacity(capacity int) *MemoryStore {
	return &MemoryStore{
		collections: make(map[string][]Document),
		capacity:    capacity,
	}
}

func (s *MemoryStore) Insert(ctx context.Context, collection string, doc Document) error {
	if err := checkInsert(collection, doc); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	docs := append(s.collections[collection], cloneDocument(doc))
	if s.capacity > 0 && len(docs) > s.capacity {
		n := copy(docs, docs[len(docs)-s.capacity:])
		for i := n; i < len(docs); i++ {
			docs[i] = nil
		}
		docs = docs[:n]
	}
	s.collections[collection] = docs
	return nil
}

func (s *MemoryStore) Find(ctx context.Context, collection string, filter Filter, limit int) ([]Document, error) {
	if !ValidCollection(collection) {
		return nil, ErrInvalidCollection
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.collections[collection]
	var result []Document
	for i := len(all) - 1; i >= 0; i-- {
		if !matches(all[i], filter) {
			continue
		}
		result = append(result, cloneDocument(all[i]))
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}

func (s *MemoryStore) Collections(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.collections))
	for name, docs := range s.collections {
		if len(docs) > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

func matches(doc Document, filter Filter) bool {
	for k, want := range filter {
		got, ok := doc[k]
		if !ok || !reflect.DeepEqual(got, want) {
			return false
		}
	}
	return true
}

// cloneDocument deep-copies nested maps and slices so callers cannot mutate
// stored state.
func cloneDocument(doc Document) Document {
	out := make(Document, len(doc))
	for k, v := range doc {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case Document:
		return cloneDocument(t)
	case map[string]interface{}:
		return map[string]interface{}(cloneDocument(t))
	case []interface{}:
		out := make([]interface{}, len(t))
		for i := range t {
			out[i] = cloneValue(t[i])
		}
		return out
	case []string:
		out := make([]string, len(t))
		copy(out, t)
		return out
	default:
		return v
	}
}
