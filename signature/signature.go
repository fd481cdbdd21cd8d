// Package signature computes cheap file-identity tokens used to validate
// cache entries. A file's signature is its (modification time, size) pair;
// content is never hashed. Validity is always decided by recomputing the
// signature at lookup time and comparing it to the one stored alongside the
// cached value.
package signature

import (
	"fmt"
	"os"
)

// Signature identifies a file's content version without reading it.
// The zero value never matches a real file (no file has a zero mtime).
type Signature struct {
	ModTimeNanos int64
	Size         int64
}

// Of stats path and returns its signature. An absent or unstattable file
// yields (zero, false) — absence is a cache miss, never an error.
func Of(path string) (Signature, bool) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return Signature{}, false
	}
	return Signature{
		ModTimeNanos: info.ModTime().UnixNano(),
		Size:         info.Size(),
	}, true
}

// Equal reports whether two signatures identify the same content version.
func (s Signature) Equal(o Signature) bool {
	return s.ModTimeNanos == o.ModTimeNanos && s.Size == o.Size
}

// IsZero reports whether the signature is the zero value (no file).
func (s Signature) IsZero() bool {
	return s.ModTimeNanos == 0 && s.Size == 0
}

func (s Signature) String() string {
	return fmt.Sprintf("%d:%d", s.ModTimeNanos, s.Size)
}
