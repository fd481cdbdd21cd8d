package cache

import (
	"strings"

	"github.com/cockroachdb/errors"
	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// ErrProjectionUnavailable reports that requested columns are absent from a
// source even after falling back to the full payload. This is a
// caller/schema contract violation, not a transient condition, so unlike
// every other durable-tier failure it is surfaced rather than degraded to a
// miss.
var ErrProjectionUnavailable = errors.New("cache: projection columns unavailable")

// NewProjectionUnavailable builds an ErrProjectionUnavailable naming the
// offending path and columns.
func NewProjectionUnavailable(path string, columns []string) error {
	return errors.Wrapf(ErrProjectionUnavailable, "%s: columns %s", path, strings.Join(columns, ","))
}

// IsProjectionUnavailable reports whether err is an ErrProjectionUnavailable.
func IsProjectionUnavailable(err error) bool {
	return errors.Is(err, ErrProjectionUnavailable)
}

// IsBusy reports whether err is a transient SQLite lock/contention error
// worth retrying.
func IsBusy(err error) bool {
	var serr *sqlite.Error
	if !errors.As(err, &serr) {
		return false
	}
	switch serr.Code() & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return true
	}
	return false
}

// IsSchemaDrift reports whether err indicates the durable schema is missing
// or structurally broken (e.g. the table was dropped externally), which the
// durable tier repairs by reinitializing the schema and retrying once.
//
// SQLite reports a dropped table as a generic SQLITE_ERROR, so the message
// has to be inspected; that inspection is confined to this classifier.
func IsSchemaDrift(err error) bool {
	var serr *sqlite.Error
	if !errors.As(err, &serr) {
		return false
	}
	if serr.Code()&0xff != sqlite3.SQLITE_ERROR {
		return false
	}
	msg := serr.Error()
	return strings.Contains(msg, "no such table") ||
		strings.Contains(msg, "no such column") ||
		strings.Contains(msg, "malformed")
}
