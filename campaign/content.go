package campaign

import (
	"fmt"
	"math/rand"
	"strings"
	"time"
)

const fillerCharset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// generateContent builds message text of exactly size bytes: a timestamped
// prefix padded with random filler, truncated when the prefix alone exceeds
// the target. The tracking id is added separately and does not count toward
// the size.
func generateContent(size int, now time.Time) string {
	prefix := fmt.Sprintf("probe %s ", now.Format(time.RFC3339Nano))
	if size <= 0 {
		return prefix
	}
	if len(prefix) >= size {
		return prefix[:size]
	}

	var b strings.Builder
	b.Grow(size)
	b.WriteString(prefix)
	for b.Len() < size {
		b.WriteByte(fillerCharset[rand.Intn(len(fillerCharset))])
	}
	return b.String()
}
