package daily

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"time"
)

// DateKey returns YYYY-MM-DD in UTC.
func DateKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// Seed returns a deterministic deal seed for a date using
// HMAC(salt, YYYY-MM-DD), masked to 63 bits so it is always a valid
// non-negative rand source seed. Same date + salt ⇒ same deck layout
// for every player.
func Seed(date time.Time, salt string) int64 {
	dk := DateKey(date)
	h := hmac.New(sha256.New, []byte(salt))
	h.Write([]byte(dk))
	sum := h.Sum(nil)
	// take first 8 bytes to uint64, drop the sign bit
	n := binary.BigEndian.Uint64(sum[:8])
	return int64(n & (1<<63 - 1))
}
