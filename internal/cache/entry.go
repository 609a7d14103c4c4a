// Package cache implements the two segment cache tiers: a bounded
// in-process hot tier and a redis-backed, compressed warm tier.
package cache

import "time"

// Entry is a cached upstream response. Entries are immutable once
// stored; re-caching replaces the whole entry.
type Entry struct {
	Payload   []byte
	Headers   map[string]string
	Timestamp time.Time

	// RangeKey identifies the byte window this entry represents. Only
	// set for range-partitioned entries (MP4 chunks).
	RangeKey string
}

// Clone returns a deep copy, so callers never alias cache-owned memory.
func (e Entry) Clone() Entry {
	payload := make([]byte, len(e.Payload))
	copy(payload, e.Payload)

	headers := make(map[string]string, len(e.Headers))
	for k, v := range e.Headers {
		headers[k] = v
	}

	return Entry{
		Payload:   payload,
		Headers:   headers,
		Timestamp: e.Timestamp,
		RangeKey:  e.RangeKey,
	}
}
