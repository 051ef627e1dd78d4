package db

import (
	"database/sql"
	"time"

	"github.com/teranos/kwpulse/errors"
)

// TimeFormat is fixed-width UTC so stored timestamps sort lexically.
const TimeFormat = "2006-01-02T15:04:05.000000000Z"

// FormatTime renders t for a TEXT timestamp column.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

// FormatNullTime renders t, or NULL for nil.
func FormatNullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: FormatTime(*t), Valid: true}
}

// ParseTime reads a TEXT timestamp written by FormatTime. RFC3339 values
// written by hand or by other tools are accepted too.
func ParseTime(s string) (time.Time, error) {
	if t, err := time.Parse(TimeFormat, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "invalid timestamp %q", s)
	}
	return t.UTC(), nil
}

// ParseNullTime reads a nullable TEXT timestamp.
func ParseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := ParseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
