package cache

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantmill/marketcache/logger"
	"github.com/quantmill/marketcache/signature"
)

func testDurable(t *testing.T, opts ...DurableOption) *Durable {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "cache.db")
	opts = append([]DurableOption{WithLogger(logger.NewTestLogger())}, opts...)
	return NewDurable(dbPath, CategoryTables, opts...)
}

func TestDurableGetMissOnEmpty(t *testing.T) {
	d := testDurable(t)
	_, ok := d.Get(context.Background(), NewKey("/p.csv"), signature.Signature{ModTimeNanos: 1, Size: 2})
	assert.False(t, ok)
}

func TestDurablePutGetRoundtrip(t *testing.T) {
	d := testDurable(t)
	ctx := context.Background()
	key := NewKey("/p.csv", "ticker")
	sig := signature.Signature{ModTimeNanos: 100, Size: 42}

	d.Put(ctx, key, sig, []byte(`{"columns":["ticker"]}`))

	payload, ok := d.Get(ctx, key, sig)
	require.True(t, ok)
	assert.Equal(t, `{"columns":["ticker"]}`, string(payload))
}

func TestDurableSignatureMismatchIsMiss(t *testing.T) {
	d := testDurable(t)
	ctx := context.Background()
	key := NewKey("/p.csv")

	d.Put(ctx, key, signature.Signature{ModTimeNanos: 1, Size: 1}, []byte("old"))

	_, ok := d.Get(ctx, key, signature.Signature{ModTimeNanos: 2, Size: 1})
	assert.False(t, ok)

	// The stale row is overwritten by the next put, not deleted by the get.
	d.Put(ctx, key, signature.Signature{ModTimeNanos: 2, Size: 1}, []byte("new"))
	payload, ok := d.Get(ctx, key, signature.Signature{ModTimeNanos: 2, Size: 1})
	require.True(t, ok)
	assert.Equal(t, "new", string(payload))

	n, err := d.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestDurablePruneKeepsRowCap(t *testing.T) {
	d := testDurable(t, WithRowCap(3))
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		key := NewKey(fmt.Sprintf("/f%d.csv", i))
		d.Put(ctx, key, signature.Signature{ModTimeNanos: int64(i), Size: 1}, []byte("x"))

		n, err := d.Count(ctx)
		require.NoError(t, err)
		assert.LessOrEqual(t, n, 3, "row cap must hold after every put")
	}

	// The most recently updated rows survive.
	_, ok := d.Get(ctx, NewKey("/f9.csv"), signature.Signature{ModTimeNanos: 9, Size: 1})
	assert.True(t, ok)
	_, ok = d.Get(ctx, NewKey("/f0.csv"), signature.Signature{ModTimeNanos: 0, Size: 1})
	assert.False(t, ok)
}

func TestDurableSelfHealsDroppedTable(t *testing.T) {
	d := testDurable(t)
	ctx := context.Background()
	key := NewKey("/p.csv")
	sig := signature.Signature{ModTimeNanos: 7, Size: 7}

	d.Put(ctx, key, sig, []byte("v1"))

	// Simulate external schema corruption.
	db, err := sql.Open("sqlite", d.dsn)
	require.NoError(t, err)
	_, err = db.Exec("DROP TABLE " + d.Table())
	require.NoError(t, err)
	require.NoError(t, db.Close())

	// Get degrades to a clean miss and reinitializes the schema.
	_, ok := d.Get(ctx, key, sig)
	assert.False(t, ok)

	// A subsequent put succeeds against the recreated table.
	d.Put(ctx, key, sig, []byte("v2"))
	payload, ok := d.Get(ctx, key, sig)
	require.True(t, ok)
	assert.Equal(t, "v2", string(payload))
}

func TestDurableDeletePath(t *testing.T) {
	d := testDurable(t)
	ctx := context.Background()
	sig := signature.Signature{ModTimeNanos: 1, Size: 1}

	d.Put(ctx, NewKey("/p.csv"), sig, []byte("full"))
	d.Put(ctx, NewKey("/p.csv", "ticker"), sig, []byte("proj"))
	d.Put(ctx, NewKey("/q.csv"), sig, []byte("other"))

	d.DeletePath(ctx, "/p.csv")

	_, ok := d.Get(ctx, NewKey("/p.csv"), sig)
	assert.False(t, ok)
	_, ok = d.Get(ctx, NewKey("/p.csv", "ticker"), sig)
	assert.False(t, ok)
	_, ok = d.Get(ctx, NewKey("/q.csv"), sig)
	assert.True(t, ok)
}

func TestDurableZeroSignatureSnapshots(t *testing.T) {
	// Snapshot categories (job status) store zero signatures; equality of
	// zeros makes every get a hit on the newest row.
	dbPath := filepath.Join(t.TempDir(), "cache.db")
	d := NewDurable(dbPath, CategoryJobStatus, WithLogger(logger.NewTestLogger()))
	ctx := context.Background()
	key := NewKey("job:screener")

	d.Put(ctx, key, signature.Signature{}, []byte(`{"outcome":"ok"}`))
	payload, ok := d.Get(ctx, key, signature.Signature{})
	require.True(t, ok)
	assert.Equal(t, `{"outcome":"ok"}`, string(payload))
}

func TestDurableSurvivesRestart(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "cache.db")
	ctx := context.Background()
	key := NewKey("/p.csv")
	sig := signature.Signature{ModTimeNanos: 5, Size: 5}

	first := NewDurable(dbPath, CategoryTables, WithLogger(logger.NewTestLogger()))
	first.Put(ctx, key, sig, []byte("persisted"))

	// A fresh instance over the same file sees the row.
	second := NewDurable(dbPath, CategoryTables, WithLogger(logger.NewTestLogger()))
	payload, ok := second.Get(ctx, key, sig)
	require.True(t, ok)
	assert.Equal(t, "persisted", string(payload))
}

func TestDurableCategoriesAreIsolated(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "cache.db")
	ctx := context.Background()
	key := NewKey("/p.csv")
	sig := signature.Signature{ModTimeNanos: 1, Size: 1}

	tables := NewDurable(dbPath, CategoryTables, WithLogger(logger.NewTestLogger()))
	docs := NewDurable(dbPath, CategoryDocuments, WithLogger(logger.NewTestLogger()))

	tables.Put(ctx, key, sig, []byte("table"))
	_, ok := docs.Get(ctx, key, sig)
	assert.False(t, ok, "categories must not share rows")
}
