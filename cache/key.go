package cache

import (
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Key identifies one cache entry: a source path plus an optional projection
// descriptor. Distinct projections of the same path are independent entries.
type Key struct {
	// Path is the absolute path of the source file.
	Path string

	// Projection is the normalized column list ("" for a full load).
	Projection string
}

// NewKey builds a Key for path. Columns are normalized by trimming
// whitespace and dropping empties and duplicates; request order is
// preserved, so ("a","b") and ("b","a") are distinct descriptors. Both
// validate against the same source signature, so the distinction costs
// duplicate storage, never staleness.
func NewKey(path string, columns ...string) Key {
	if len(columns) == 0 {
		return Key{Path: path}
	}
	seen := make(map[string]struct{}, len(columns))
	normalized := make([]string, 0, len(columns))
	for _, c := range columns {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		normalized = append(normalized, c)
	}
	return Key{Path: path, Projection: strings.Join(normalized, ",")}
}

// IsFull reports whether the key addresses the full payload.
func (k Key) IsFull() bool { return k.Projection == "" }

// Columns returns the projection's column names, nil for a full load.
func (k Key) Columns() []string {
	if k.Projection == "" {
		return nil
	}
	return strings.Split(k.Projection, ",")
}

func (k Key) String() string {
	if k.Projection == "" {
		return k.Path
	}
	return k.Path + "?" + k.Projection
}

// Hash returns the durable tier's primary key for this entry.
func (k Key) Hash() string {
	return strconv.FormatUint(xxhash.Sum64String(k.String()), 16)
}
