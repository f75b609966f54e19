// Package docstore is a small document store used to persist wallet scores
// and reports. Documents are flat JSON objects grouped into named
// collections; lookups match on field equality and return newest first.
package docstore

import (
	"context"
	"errors"
	"regexp"
)

// Collection names used by the service.
const (
	CollectionWallet = "wallet"
	CollectionReport = "report"
)

var (
	ErrInvalidCollection = errors.New("invalid collection name")
	ErrInvalidDocument   = errors.New("document must not be nil")
)

var collectionRegex = regexp.MustCompile(`^[a-z][a-z0-9_]{0,63}$`)

// Document is a JSON object stored in a collection.
type Document map[string]interface{}

// Filter selects documents whose fields equal the given values.
type Filter map[string]interface{}

// Store persists documents.
type Store interface {
	// Insert appends doc to collection. Existing documents are never modified.
	Insert(ctx context.Context, collection string, doc Document) error
	// Find returns up to limit documents matching filter, most recent first.
	// A limit <= 0 returns all matches.
	Find(ctx context.Context, collection string, filter Filter, limit int) ([]Document, error)
	// Collections lists the names of non-empty collections.
	Collections(ctx context.Context) ([]string, error)
	// Ping checks that the backing store is reachable.
	Ping(ctx context.Context) error
}

// ValidCollection reports whether name can be used as a collection.
func ValidCollection(name string) bool {
	return collectionRegex.MatchString(name)
}

func checkInsert(collection string, doc Document) error {
	if !ValidCollection(collection) {
		return ErrInvalidCollection
	}
	if doc == nil {
		return ErrInvalidDocument
	}
	return nil
}
