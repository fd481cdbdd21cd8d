package signature

import (
	"path/filepath"
	"sort"

	"github.com/cespare/xxhash/v2"
)

// Entry is one (path, signature) pair inside a Composite.
type Entry struct {
	Path string
	Sig  Signature
}

// Composite is an ordered list of (path, signature) pairs identifying the
// combined version of every source a derived value depends on. Any addition,
// removal, or modification among the members produces a different composite.
type Composite []Entry

// Single returns a composite over one file.
func Single(path string, sig Signature) Composite {
	return Composite{{Path: path, Sig: sig}}
}

// ForGlob enumerates files matching pattern and builds a composite from
// their current signatures, ordered lexically by path so the result is
// independent of directory iteration order. Matches that disappear between
// the glob and the stat are skipped.
func ForGlob(pattern string) (Composite, error) {
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	c := make(Composite, 0, len(matches))
	for _, m := range matches {
		sig, ok := Of(m)
		if !ok {
			continue
		}
		c = append(c, Entry{Path: m, Sig: sig})
	}
	return c, nil
}

// Equal reports whether two composites have identical members in identical
// order with identical signatures.
func (c Composite) Equal(o Composite) bool {
	if len(c) != len(o) {
		return false
	}
	for i := range c {
		if c[i].Path != o[i].Path || !c[i].Sig.Equal(o[i].Sig) {
			return false
		}
	}
	return true
}

// Contains reports whether path is one of the composite's members.
func (c Composite) Contains(path string) bool {
	for _, e := range c {
		if e.Path == path {
			return true
		}
	}
	return false
}

// Digest returns an xxhash over the canonical encoding of the composite.
func (c Composite) Digest() uint64 {
	h := xxhash.New()
	var buf [8]byte
	for _, e := range c {
		_, _ = h.WriteString(e.Path)
		_, _ = h.Write([]byte{0})
		putInt64(&buf, e.Sig.ModTimeNanos)
		_, _ = h.Write(buf[:])
		putInt64(&buf, e.Sig.Size)
		_, _ = h.Write(buf[:])
	}
	return h.Sum64()
}

// Collapse folds the composite into a single Signature suitable for storage
// in the durable tier's two signature columns: the digest stands in for the
// modification time and the member count for the size. Digest equality is
// the validity criterion for composite-keyed durable rows.
func (c Composite) Collapse() Signature {
	return Signature{
		ModTimeNanos: int64(c.Digest()),
		Size:         int64(len(c)),
	}
}

func putInt64(buf *[8]byte, v int64) {
	u := uint64(v)
	for i := 0; i < 8; i++ {
		buf[i] = byte(u >> (8 * i))
	}
}
