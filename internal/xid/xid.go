// Package xid mints prefixed identifiers for rows created by this process,
// such as "inv-1726401815123456789-9f2ca01d27b4e6a3". The nanosecond
// timestamp keeps ids roughly insertion-ordered; the random suffix keeps
// concurrent writers from colliding.
package xid

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

const suffixBytes = 8

// New returns a fresh id carrying the given entity prefix. If the random
// source is unavailable the id degrades to prefix plus timestamp alone.
func New(prefix string) string {
	now := time.Now().UnixNano()
	suffix := make([]byte, suffixBytes)
	if _, err := rand.Read(suffix); err != nil {
		return fmt.Sprintf("%s-%d", prefix, now)
	}
	return fmt.Sprintf("%s-%d-%s", prefix, now, hex.EncodeToString(suffix))
}
