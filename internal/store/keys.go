package store

import "sync"

// Key prefixes. A session is stored as its full record plus a small
// summary entry so listings never decode baselines.
const (
	sessionPrefix        = "mapsession:"
	sessionSummaryPrefix = "mapsession:summary:"
)

// keyPool provides reusable byte slices for building database keys.
var keyPool = sync.Pool{
	New: func() any {
		// Prefix (up to 20 bytes) plus a prefixed NanoID fits comfortably.
		return make([]byte, 0, 128)
	},
}

// buildKey constructs a database key from prefix and suffix using a pooled buffer.
// Callers must call releaseKey when done with the key.
func buildKey(prefix, suffix string) []byte {
	buf, _ := keyPool.Get().([]byte)
	buf = buf[:0]
	buf = append(buf, prefix...)
	buf = append(buf, suffix...)
	return buf
}

// releaseKey returns a key buffer to the pool for reuse.
func releaseKey(key []byte) {
	if cap(key) <= 512 {
		keyPool.Put(key[:0]) //nolint:staticcheck // slices are fine to pool here
	}
}

func sessionKey(id string) []byte {
	return buildKey(sessionPrefix, id)
}

func sessionSummaryKey(id string) []byte {
	return buildKey(sessionSummaryPrefix, id)
}
