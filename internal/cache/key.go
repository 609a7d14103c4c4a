package cache

import (
	"encoding/base64"
	"fmt"
)

// Keys use a fixed scheme prefix plus a reversible encoding of the URL
// bytes, so two requests for the same URL always derive the same key
// and keys never collide across distinct URLs.
const keyPrefix = "streamedge:v1:"

// Key derives the cache key for a whole resource.
func Key(url string) string {
	return keyPrefix + base64.RawURLEncoding.EncodeToString([]byte(url))
}

// WindowKey derives the cache key for one byte window of a resource.
// The window is part of the key because different clients partition the
// same file with different chunk sizes.
func WindowKey(url string, start, end int64) string {
	return fmt.Sprintf("%s:r%d-%d", Key(url), start, end)
}
