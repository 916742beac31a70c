package models

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// NewOrderID builds an order identifier from a product's short code, a
// creation time and the customer email. The email is base64-encoded so
// an operator can correlate an order out of band before any user
// account exists. The millisecond timestamp keeps IDs collision-free.
//
// Example: gs-1700000000000-dGVzdEBleGFtcGxlLmNvbQ==
func NewOrderID(orderCode string, at time.Time, email string) string {
	return fmt.Sprintf("%s-%d-%s",
		orderCode,
		at.UnixMilli(),
		base64.StdEncoding.EncodeToString([]byte(email)),
	)
}

// ParseOrderID decodes an order identifier back into its parts.
func ParseOrderID(id string) (orderCode string, at time.Time, email string, err error) {
	parts := strings.SplitN(id, "-", 3)
	if len(parts) != 3 || parts[0] == "" {
		return "", time.Time{}, "", fmt.Errorf("malformed order id %q", id)
	}
	ms, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return "", time.Time{}, "", fmt.Errorf("malformed order id timestamp: %w", err)
	}
	raw, err := base64.StdEncoding.DecodeString(parts[2])
	if err != nil {
		return "", time.Time{}, "", fmt.Errorf("malformed order id email: %w", err)
	}
	return parts[0], time.UnixMilli(ms), string(raw), nil
}
