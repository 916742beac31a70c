package repository

import "time"

// fmtTime renders a timestamp the way every repository stores it:
// RFC3339 in UTC, so string comparison in SQL matches time order.
func fmtTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// nullString converts an empty string to nil for nullable columns.
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// nullTime converts an optional timestamp to a nullable RFC3339 string.
func nullTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := fmtTime(*t)
	return &s
}
