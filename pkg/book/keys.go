package book

import (
	"fmt"
	"strconv"
	"strings"
)

// Pebble key schema. Order ids are zero-padded so a prefix scan walks the
// ledger in allocation order.
const (
	prefixOrder = "ord:" // order records
	keySequence = "seq"  // last allocated order id
)

// orderKey returns the key for an order record.
// Format: "ord:{id}" with the id zero-padded to 20 digits.
// Example: "ord:00000000000000000042"
func orderKey(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefixOrder, id))
}

// orderIDFromKey extracts the id from an order key. Inverse of orderKey,
// used when parsing iterator keys.
func orderIDFromKey(key []byte) (uint64, error) {
	s := string(key)
	if !strings.HasPrefix(s, prefixOrder) {
		return 0, fmt.Errorf("not an order key: %q", s)
	}
	return strconv.ParseUint(strings.TrimPrefix(s, prefixOrder), 10, 64)
}

// keyUpperBound returns the exclusive upper bound for a prefix scan.
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
