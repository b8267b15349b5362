package forwarder

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// DefaultOrderingKey groups payloads that name neither a creator nor a user
const DefaultOrderingKey = "default"

// OrderingKey is the creator id, else the user id, else fallback
func OrderingKey(p Payload, fallback string) string {
	if id := strings.TrimSpace(p.CreatorID); id != "" {
		return id
	}
	if id := strings.TrimSpace(p.UserID); id != "" {
		return id
	}
	if fallback == "" {
		return DefaultOrderingKey
	}
	return fallback
}

// CoarseTimestamp truncates t to window, in unix seconds
func CoarseTimestamp(t time.Time, window time.Duration) int64 {
	if window <= 0 {
		return t.Unix()
	}
	return t.Truncate(window).Unix()
}

// DedupKey hashes what identifies an action: its kind, its entity and the
// coarse time it happened. Content and extra data never take part, so retries
// of the same action collapse to one key.
func DedupKey(action, entityID string, coarseTimestamp int64) string {
	h := sha256.New()
	h.Write([]byte(action))
	h.Write([]byte{0})
	h.Write([]byte(entityID))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatInt(coarseTimestamp, 10)))
	return hex.EncodeToString(h.Sum(nil))
}
