package store

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"

	"github.com/quantmill/marketcache/cache"
	"github.com/quantmill/marketcache/signature"
	"github.com/quantmill/marketcache/tabular"
)

// LatestPerKey scans the append-style table at path and returns, for each
// distinct value of keyCol, the last row in file order. The result is
// validated against the file's signature and cached; it is a deep copy the
// caller may mutate.
func (s *Store) LatestPerKey(ctx context.Context, path, keyCol string) (map[string]tabular.Row, error) {
	key := cache.Key{Path: path, Projection: "latest:" + keyCol}

	if sig, ok := signature.Of(path); ok {
		live := signature.Single(path, sig)
		if latest, hit := s.latest.Lookup(key, live); hit {
			return latest, nil
		}
		// A full table already cached at this exact signature is a superset
		// of the answer: fold it instead of re-reading the source.
		if tbl, hit := s.tables.LookupShared(cache.NewKey(path), live); hit {
			return s.foldLatest(key, live, tbl, keyCol)
		}
	}

	tbl, sig, cacheable, err := s.fullTable(ctx, path)
	if err != nil {
		return nil, err
	}
	if !cacheable {
		latest, err := tbl.LatestPerKey(keyCol)
		if err != nil {
			return nil, err
		}
		return latest, nil
	}
	return s.foldLatest(key, signature.Single(path, sig), tbl, keyCol)
}

func (s *Store) foldLatest(key cache.Key, live signature.Composite, tbl *tabular.Table, keyCol string) (map[string]tabular.Row, error) {
	latest, err := tbl.LatestPerKey(keyCol)
	if err != nil {
		return nil, err
	}
	s.latest.Store(key, live, latest)
	return cloneLatest(latest), nil
}

// Listing returns the documents of the limit most recently modified files
// matching pattern, newest first. The cached value is keyed by a composite
// signature over every match, so any addition, removal, or rewrite among
// them forces a rebuild on the next call.
func (s *Store) Listing(ctx context.Context, pattern string, limit int) ([]Document, error) {
	composite, err := signature.ForGlob(pattern)
	if err != nil {
		return nil, err
	}
	key := cache.Key{Path: "glob:" + pattern, Projection: "limit:" + strconv.Itoa(limit)}

	if docs, hit := s.listings.Lookup(key, composite); hit {
		return docs, nil
	}
	if payload, hit := s.durableListings.Get(ctx, key, composite.Collapse()); hit {
		var docs []Document
		uerr := json.Unmarshal(payload, &docs)
		if uerr == nil {
			s.listings.Store(key, composite, docs)
			return cloneListing(docs), nil
		}
		s.log.Warn("durable listing %s undecodable, rebuilding: %v", pattern, uerr)
	}

	// Newest members first.
	members := append(signature.Composite(nil), composite...)
	sort.SliceStable(members, func(i, j int) bool {
		return members[i].Sig.ModTimeNanos > members[j].Sig.ModTimeNanos
	})
	if limit > 0 && len(members) > limit {
		members = members[:limit]
	}

	docs := make([]Document, 0, len(members))
	for _, m := range members {
		doc, err := s.loadDocument(ctx, m.Path)
		if err != nil {
			// A member that vanished or is mid-rewrite is dropped from this
			// build; the composite already reflects the state we scanned.
			s.log.Warn("listing member %s skipped: %v", m.Path, err)
			continue
		}
		docs = append(docs, doc)
	}

	s.listings.Store(key, composite, docs)
	if payload, merr := json.Marshal(docs); merr == nil {
		s.durableListings.Put(ctx, key, composite.Collapse(), payload)
	} else {
		s.log.Warn("listing %s not persisted: %v", pattern, merr)
	}
	return cloneListing(docs), nil
}

// RowCount returns the number of data rows in the table at path, streaming
// the file rather than materializing it. A full table already cached at the
// same signature short-circuits the scan.
func (s *Store) RowCount(ctx context.Context, path string) (int, error) {
	key := cache.Key{Path: path, Projection: "rowcount"}

	sig, ok := signature.Of(path)
	live := signature.Single(path, sig)
	if ok {
		if n, hit := s.counts.Lookup(key, live); hit {
			return n, nil
		}
		if tbl, hit := s.tables.LookupShared(cache.NewKey(path), live); hit {
			n := len(tbl.Rows)
			s.counts.Store(key, live, n)
			return n, nil
		}
	}

	n, err := tabular.CountRows(path)
	if err != nil {
		return 0, err
	}
	if after, okAfter := signature.Of(path); ok && okAfter && sig.Equal(after) {
		s.counts.Store(key, live, n)
	}
	return n, nil
}
