//go:build integration

package docstore

import (
	"context"
	"testing"
	"time"

	"github.com/mbd888/cryptosleuth/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresStore_InsertAndFind(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, store.Insert(ctx, CollectionWallet, Document{
		"address": "0xa", "chain": "ethereum", "risk_score": 40, "last_scored_at": now,
	}))
	require.NoError(t, store.Insert(ctx, CollectionWallet, Document{
		"address": "0xa", "chain": "ethereum", "risk_score": 70, "last_scored_at": now,
	}))
	require.NoError(t, store.Insert(ctx, CollectionWallet, Document{
		"address": "0xb", "chain": "bitcoin", "risk_score": 0, "last_scored_at": now,
	}))

	docs, err := store.Find(ctx, CollectionWallet, Filter{"address": "0xa"}, 1)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	// JSONB numbers decode as float64
	assert.Equal(t, float64(70), docs[0]["risk_score"])

	docs, err = store.Find(ctx, CollectionWallet, nil, 0)
	require.NoError(t, err)
	assert.Len(t, docs, 3)

	names, err := store.Collections(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{CollectionWallet}, names)
}

func TestPostgresStore_NestedDocument(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, CollectionReport, Document{
		"address": "0xa",
		"details": map[string]interface{}{"recommendation": "Manual review needed"},
	}))

	docs, err := store.Find(ctx, CollectionReport, Filter{"address": "0xa"}, 0)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	details, ok := docs[0]["details"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "Manual review needed", details["recommendation"])
}

func TestPostgresStore_MigrateIsIdempotent(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	require.NoError(t, store.Migrate(context.Background()))
	assert.NoError(t, store.Ping(context.Background()))
}
