package cache

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/quantmill/marketcache/logger"
	"github.com/quantmill/marketcache/resilience"
	"github.com/quantmill/marketcache/signature"
)

// Category names one durable payload table. Each category gets its own
// table in the shared SQLite file and its own row cap.
type Category string

const (
	CategoryDocuments   Category = "documents"
	CategoryTables      Category = "tables"
	CategoryProjections Category = "projections"
	CategoryListings    Category = "listings"
	CategoryJobStatus   Category = "jobstatus"
)

// DefaultRowCap is the per-table row cap used when none is configured.
const DefaultRowCap = 256

// DefaultBusyTimeout bounds how long a single SQLite operation waits on a
// lock held by another process or connection.
const DefaultBusyTimeout = 5 * time.Second

// updatedAtFormat is fixed-width (no trailing-zero trimming) so that lexical
// ordering of updated_at matches chronological ordering in the prune query.
const updatedAtFormat = "2006-01-02T15:04:05.000000000Z"

// Durable is the SQLite-backed snapshot tier for one payload category.
// Every operation opens a fresh short-lived connection, so no connection
// state is shared across threads. All failures short of a projection
// contract violation are logged and degraded to a miss or no-op.
type Durable struct {
	dsn         string
	dbPath      string
	table       string
	rowCap      int
	busyTimeout time.Duration
	retry       resilience.RetryConfig
	breaker     *resilience.Breaker
	log         logger.Logger

	selectSQL string
	upsertSQL string
	pruneSQL  string
	deleteSQL string
	countSQL  string
}

// DurableOption configures a Durable instance.
type DurableOption func(*Durable)

// WithRowCap sets the table's row cap (DefaultRowCap if unset).
func WithRowCap(n int) DurableOption {
	return func(d *Durable) { d.rowCap = n }
}

// WithBusyTimeout sets the SQLite busy timeout (DefaultBusyTimeout if unset).
func WithBusyTimeout(timeout time.Duration) DurableOption {
	return func(d *Durable) { d.busyTimeout = timeout }
}

// WithRetry sets the retry policy for transient lock errors.
func WithRetry(cfg resilience.RetryConfig) DurableOption {
	return func(d *Durable) { d.retry = cfg }
}

// WithBreaker sets the circuit breaker guarding the tier.
func WithBreaker(cfg resilience.BreakerConfig) DurableOption {
	return func(d *Durable) { d.breaker = resilience.NewBreaker(cfg) }
}

// WithLogger sets the logger used for degraded operations.
func WithLogger(log logger.Logger) DurableOption {
	return func(d *Durable) { d.log = log }
}

// NewDurable creates the durable tier for one category backed by the SQLite
// file at dbPath. The table is created lazily on first use and self-heals
// if it disappears later.
func NewDurable(dbPath string, category Category, opts ...DurableOption) *Durable {
	d := &Durable{
		dbPath:      dbPath,
		table:       "cache_" + string(category),
		rowCap:      DefaultRowCap,
		busyTimeout: DefaultBusyTimeout,
		retry:       resilience.DefaultRetryConfig(),
		breaker:     resilience.NewBreaker(resilience.DefaultBreakerConfig()),
		log:         logger.New(logger.GetLevelFromEnv()),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.log = d.log.WithPrefix("durable:" + string(category))
	d.retry.RetryableErrors = IsBusy

	d.dsn = fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(%d)",
		dbPath, d.busyTimeout.Milliseconds(),
	)
	d.selectSQL = fmt.Sprintf(`SELECT payload, mod_time_ns, size FROM %s WHERE key = ?`, d.table)
	d.upsertSQL = fmt.Sprintf(`INSERT INTO %s (key, path, mod_time_ns, size, payload, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			path = excluded.path,
			mod_time_ns = excluded.mod_time_ns,
			size = excluded.size,
			payload = excluded.payload,
			updated_at = excluded.updated_at`, d.table)
	d.pruneSQL = fmt.Sprintf(`DELETE FROM %s WHERE key NOT IN (
		SELECT key FROM %s ORDER BY updated_at DESC, key LIMIT ?)`, d.table, d.table)
	d.deleteSQL = fmt.Sprintf(`DELETE FROM %s WHERE path = ?`, d.table)
	d.countSQL = fmt.Sprintf(`SELECT COUNT(*) FROM %s`, d.table)
	return d
}

// Table returns the category's table name.
func (d *Durable) Table() string { return d.table }

func (d *Durable) open() (*sql.DB, error) {
	return sql.Open("sqlite", d.dsn)
}

func (d *Durable) ensureSchema(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			key TEXT PRIMARY KEY,
			path TEXT NOT NULL,
			mod_time_ns INTEGER NOT NULL,
			size INTEGER NOT NULL,
			payload TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`, d.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_updated_at ON %s(updated_at)`, d.table, d.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_path ON %s(path)`, d.table, d.table),
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// run executes op on a fresh connection under the breaker and retry
// policies, reinitializing the schema and retrying exactly once when op
// fails with schema drift.
func (d *Durable) run(ctx context.Context, op func(ctx context.Context, db *sql.DB) error) error {
	return d.breaker.Execute(func() error {
		return resilience.Retry(ctx, d.retry, func() error {
			db, err := d.open()
			if err != nil {
				return err
			}
			defer db.Close()

			err = op(ctx, db)
			if IsSchemaDrift(err) {
				d.log.Warn("schema drift detected, reinitializing %s: %v", d.table, err)
				if healErr := d.ensureSchema(ctx, db); healErr != nil {
					return healErr
				}
				err = op(ctx, db)
			}
			return err
		})
	})
}

// Get returns the payload stored under key if the stored signature equals
// sig. A mismatched row is left in place for the next Put to overwrite.
// Every failure degrades to a miss.
func (d *Durable) Get(ctx context.Context, key Key, sig signature.Signature) ([]byte, bool) {
	var payload string
	var hit bool
	err := d.run(ctx, func(ctx context.Context, db *sql.DB) error {
		var modTimeNanos, size int64
		err := db.QueryRowContext(ctx, d.selectSQL, key.Hash()).Scan(&payload, &modTimeNanos, &size)
		if err == sql.ErrNoRows {
			hit = false
			return nil
		}
		if err != nil {
			return err
		}
		hit = sig.Equal(signature.Signature{ModTimeNanos: modTimeNanos, Size: size})
		return nil
	})
	if err != nil {
		d.log.Warn("get %s degraded to miss: %v", key, err)
		return nil, false
	}
	if !hit {
		return nil, false
	}
	return []byte(payload), true
}

// Put upserts the payload under key and prunes the table to its row cap in
// one transaction. Failures are logged and dropped; the memory tier and the
// raw source remain authoritative.
func (d *Durable) Put(ctx context.Context, key Key, sig signature.Signature, payload []byte) {
	now := time.Now().UTC().Format(updatedAtFormat)
	err := d.run(ctx, func(ctx context.Context, db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		if _, err := tx.ExecContext(ctx, d.upsertSQL,
			key.Hash(), key.Path, sig.ModTimeNanos, sig.Size, string(payload), now); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, d.pruneSQL, d.rowCap); err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		d.log.Warn("put %s dropped: %v", key, err)
	}
}

// DeletePath removes every row for path, across all projections.
func (d *Durable) DeletePath(ctx context.Context, path string) {
	err := d.run(ctx, func(ctx context.Context, db *sql.DB) error {
		_, err := db.ExecContext(ctx, d.deleteSQL, path)
		return err
	})
	if err != nil {
		d.log.Warn("delete %s dropped: %v", path, err)
	}
}

// Count returns the table's current row count. Used for stats reporting,
// so unlike the hot-path operations it returns its error.
func (d *Durable) Count(ctx context.Context) (int, error) {
	var n int
	err := d.run(ctx, func(ctx context.Context, db *sql.DB) error {
		return db.QueryRowContext(ctx, d.countSQL).Scan(&n)
	})
	return n, err
}
