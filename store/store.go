package store

import (
	"context"
	"encoding/json"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/sync/singleflight"

	"github.com/quantmill/marketcache/atomicfile"
	"github.com/quantmill/marketcache/cache"
	"github.com/quantmill/marketcache/config"
	"github.com/quantmill/marketcache/logger"
	"github.com/quantmill/marketcache/resilience"
	"github.com/quantmill/marketcache/signature"
	"github.com/quantmill/marketcache/tabular"
)

// Document is a JSON analysis payload of arbitrary shape. The cache never
// interprets it; schema handling belongs to the caller.
type Document map[string]any

// Store is the two-tier file cache. Construct one per process with New and
// share it by reference; all methods are safe for concurrent use.
type Store struct {
	log    logger.Logger
	writer *atomicfile.Writer

	docs        *cache.Memory[Document]
	tables      *cache.Memory[*tabular.Table]
	projections *cache.Memory[*tabular.Table]
	latest      *cache.Memory[map[string]tabular.Row]
	listings    *cache.Memory[[]Document]
	counts      *cache.Memory[int]

	durableDocs        *cache.Durable
	durableTables      *cache.Durable
	durableProjections *cache.Durable
	durableListings    *cache.Durable
	durableStatus      *cache.Durable

	flight singleflight.Group
}

// New builds a Store from cfg. The returned Store is the single cache
// instance for the process; pass it to every consumer rather than
// constructing more.
func New(cfg config.Config, log logger.Logger) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log = log.WithPrefix("store")

	durable := func(category cache.Category) *cache.Durable {
		return cache.NewDurable(cfg.DurablePath, category,
			cache.WithRowCap(cfg.Durable.RowCap),
			cache.WithBusyTimeout(cfg.Durable.BusyTimeout.Std()),
			cache.WithRetry(resilience.RetryConfig{
				MaxRetries: cfg.Durable.RetryAttempts,
				Backoff:    cfg.Durable.RetryDelay.Std(),
			}),
			cache.WithBreaker(resilience.BreakerConfig{
				MaxFailures:      cfg.Durable.BreakerMaxFailures,
				Cooldown:         cfg.Durable.BreakerCooldown.Std(),
				SuccessThreshold: 2,
			}),
			cache.WithLogger(log),
		)
	}

	cloneTable := func(t *tabular.Table) *tabular.Table { return t.Clone() }

	s := &Store{
		log:         log,
		docs:        cache.NewMemory[Document](cfg.Memory.Documents, cache.WithClone(cloneDocument)),
		tables:      cache.NewMemory[*tabular.Table](cfg.Memory.Tables, cache.WithClone(cloneTable)),
		projections: cache.NewMemory[*tabular.Table](cfg.Memory.Projections, cache.WithClone(cloneTable)),
		latest:      cache.NewMemory[map[string]tabular.Row](cfg.Memory.Derived, cache.WithClone(cloneLatest)),
		listings:    cache.NewMemory[[]Document](cfg.Memory.Derived, cache.WithClone(cloneListing)),
		counts:      cache.NewMemory[int](cfg.Memory.Derived),

		durableDocs:        durable(cache.CategoryDocuments),
		durableTables:      durable(cache.CategoryTables),
		durableProjections: durable(cache.CategoryProjections),
		durableListings:    durable(cache.CategoryListings),
		durableStatus:      durable(cache.CategoryJobStatus),
	}
	s.writer = atomicfile.NewWriter(s.Invalidate)
	return s, nil
}

// LoadDocument returns the JSON document at path. The result is a deep copy
// the caller may mutate freely.
func (s *Store) LoadDocument(ctx context.Context, path string) (Document, error) {
	doc, err := s.loadDocument(ctx, path)
	if err != nil {
		return nil, err
	}
	return cloneDocument(doc), nil
}

// LoadDocumentShared returns the document without the defensive copy. The
// caller must treat the result as read-only.
func (s *Store) LoadDocumentShared(ctx context.Context, path string) (Document, error) {
	return s.loadDocument(ctx, path)
}

// loadDocument returns the cached (shared) document instance.
func (s *Store) loadDocument(ctx context.Context, path string) (Document, error) {
	key := cache.NewKey(path)
	if sig, ok := signature.Of(path); ok {
		live := signature.Single(path, sig)
		if doc, hit := s.docs.LookupShared(key, live); hit {
			return doc, nil
		}
		if payload, hit := s.durableDocs.Get(ctx, key, sig); hit {
			var doc Document
			err := json.Unmarshal(payload, &doc)
			if err == nil {
				s.docs.Store(key, live, doc)
				return doc, nil
			}
			s.log.Warn("durable document %s undecodable, falling through: %v", path, err)
		}
	}

	v, err, _ := s.flight.Do("doc:"+key.String(), func() (interface{}, error) {
		before, okBefore := signature.Of(path)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "store: read document %s", path)
		}
		var doc Document
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, errors.Wrapf(err, "store: parse document %s", path)
		}

		// Cache only if the file did not change underneath the read.
		after, okAfter := signature.Of(path)
		if okBefore && okAfter && before.Equal(after) {
			s.docs.Store(key, signature.Single(path, after), doc)
			if compact, merr := json.Marshal(doc); merr == nil {
				s.durableDocs.Put(ctx, key, after, compact)
			} else {
				s.log.Warn("document %s not persisted: %v", path, merr)
			}
		}
		return doc, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Document), nil
}

// LoadTable returns the tabular payload at path, optionally projected to
// the given columns. Distinct projections are cached independently. The
// result is a deep copy.
func (s *Store) LoadTable(ctx context.Context, path string, columns ...string) (*tabular.Table, error) {
	key := cache.NewKey(path, columns...)
	if key.IsFull() {
		tbl, _, _, err := s.fullTable(ctx, path)
		if err != nil {
			return nil, err
		}
		return tbl.Clone(), nil
	}

	if sig, ok := signature.Of(path); ok {
		live := signature.Single(path, sig)
		if tbl, hit := s.projections.Lookup(key, live); hit {
			return tbl, nil
		}
		if payload, hit := s.durableProjections.Get(ctx, key, sig); hit {
			var tbl tabular.Table
			err := json.Unmarshal(payload, &tbl)
			if err == nil && columnsMatch(tbl.Columns, key.Columns()) {
				s.projections.Store(key, live, &tbl)
				return tbl.Clone(), nil
			}
			// Stored columns do not match the requested set: fall back to
			// the full entry and sub-select in memory.
			s.log.Warn("durable projection %s unusable, falling back to full load: %v", key, err)
		}
	}

	full, sig, cacheable, err := s.fullTable(ctx, path)
	if err != nil {
		return nil, err
	}
	proj, err := full.Select(key.Columns())
	if err != nil {
		return nil, errors.Wrapf(err, "%s", path)
	}
	if cacheable {
		s.projections.Store(key, signature.Single(path, sig), proj)
		if payload, merr := json.Marshal(proj); merr == nil {
			s.durableProjections.Put(ctx, key, sig, payload)
		} else {
			s.log.Warn("projection %s not persisted: %v", key, merr)
		}
	}
	return proj.Clone(), nil
}

// fullTable returns the shared cached full-load of path plus the signature
// it was cached under. cacheable is false when the file changed mid-read
// and the result bypassed both tiers.
func (s *Store) fullTable(ctx context.Context, path string) (*tabular.Table, signature.Signature, bool, error) {
	key := cache.NewKey(path)
	if sig, ok := signature.Of(path); ok {
		live := signature.Single(path, sig)
		if tbl, hit := s.tables.LookupShared(key, live); hit {
			return tbl, sig, true, nil
		}
		if payload, hit := s.durableTables.Get(ctx, key, sig); hit {
			var tbl tabular.Table
			err := json.Unmarshal(payload, &tbl)
			if err == nil {
				s.tables.Store(key, live, &tbl)
				return &tbl, sig, true, nil
			}
			s.log.Warn("durable table %s undecodable, falling through: %v", path, err)
		}
	}

	type loaded struct {
		tbl       *tabular.Table
		sig       signature.Signature
		cacheable bool
	}
	v, err, _ := s.flight.Do("table:"+path, func() (interface{}, error) {
		before, okBefore := signature.Of(path)
		tbl, err := tabular.Load(path)
		if err != nil {
			return nil, err
		}
		after, okAfter := signature.Of(path)
		cacheable := okBefore && okAfter && before.Equal(after)
		if cacheable {
			s.tables.Store(key, signature.Single(path, after), tbl)
			if payload, merr := json.Marshal(tbl); merr == nil {
				s.durableTables.Put(ctx, key, after, payload)
			} else {
				s.log.Warn("table %s not persisted: %v", path, merr)
			}
		}
		return &loaded{tbl: tbl, sig: after, cacheable: cacheable}, nil
	})
	if err != nil {
		return nil, signature.Signature{}, false, err
	}
	l := v.(*loaded)
	return l.tbl, l.sig, l.cacheable, nil
}

// WriteText atomically replaces path with content and invalidates both
// tiers before returning, so a subsequent read on this thread observes the
// new content.
func (s *Store) WriteText(path, content string) error {
	return s.writer.WriteText(path, content)
}

// Write is WriteText for raw bytes.
func (s *Store) Write(path string, data []byte) error {
	return s.writer.Write(path, data)
}

// Invalidate removes every entry for path from both tiers, across all
// projections, plus every derived entry whose composite depends on path.
// Use it when an external process modified a file the cache does not own
// exclusively; writes through the Store invalidate automatically.
func (s *Store) Invalidate(path string) {
	s.docs.InvalidatePath(path)
	s.tables.InvalidatePath(path)
	s.projections.InvalidatePath(path)
	s.latest.InvalidatePath(path)
	s.listings.InvalidatePath(path)
	s.counts.InvalidatePath(path)

	ctx := context.Background()
	s.durableDocs.DeletePath(ctx, path)
	s.durableTables.DeletePath(ctx, path)
	s.durableProjections.DeletePath(ctx, path)
	// Durable listing rows are keyed by pattern, not member path; their
	// collapsed composite stops matching on the next lookup, which is the
	// only validity mechanism they have.
}

// Stats reports per-tier entry counts, keyed by category.
func (s *Store) Stats(ctx context.Context) (map[string]int, error) {
	stats := map[string]int{
		"memory.documents":   s.docs.Len(),
		"memory.tables":      s.tables.Len(),
		"memory.projections": s.projections.Len(),
		"memory.latest":      s.latest.Len(),
		"memory.listings":    s.listings.Len(),
		"memory.counts":      s.counts.Len(),
	}
	for _, d := range []*cache.Durable{
		s.durableDocs, s.durableTables, s.durableProjections, s.durableListings, s.durableStatus,
	} {
		n, err := d.Count(ctx)
		if err != nil {
			return nil, err
		}
		stats["durable."+d.Table()] = n
	}
	return stats, nil
}

func columnsMatch(stored, requested []string) bool {
	if len(stored) != len(requested) {
		return false
	}
	for i := range stored {
		if stored[i] != requested[i] {
			return false
		}
	}
	return true
}

// cloneDocument deep-copies a document via a msgpack round trip; on the
// (unreachable for JSON-decoded values) encode failure it degrades to a
// top-level copy.
func cloneDocument(d Document) Document {
	if d == nil {
		return nil
	}
	if data, err := msgpack.Marshal(map[string]any(d)); err == nil {
		var out map[string]any
		if err := msgpack.Unmarshal(data, &out); err == nil {
			return Document(out)
		}
	}
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

func cloneLatest(m map[string]tabular.Row) map[string]tabular.Row {
	out := make(map[string]tabular.Row, len(m))
	for k, row := range m {
		out[k] = append(tabular.Row(nil), row...)
	}
	return out
}

func cloneListing(docs []Document) []Document {
	out := make([]Document, len(docs))
	for i, d := range docs {
		out[i] = cloneDocument(d)
	}
	return out
}
