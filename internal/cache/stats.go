package cache

import "sync/atomic"

// Stats holds process-lifetime cache counters. They only ever increase
// and are observed passively by the stats endpoint.
type Stats struct {
	hits              atomic.Int64
	misses            atomic.Int64
	uncompressedBytes atomic.Int64
	compressedBytes   atomic.Int64
}

type StatsSnapshot struct {
	Hits              int64   `json:"hits"`
	Misses            int64   `json:"misses"`
	UncompressedBytes int64   `json:"totalUncompressedBytes"`
	CompressedBytes   int64   `json:"totalCompressedBytes"`
	CompressionRatio  float64 `json:"compressionRatio"`
}

func (s *Stats) Hit() {
	if s != nil {
		s.hits.Add(1)
	}
}

func (s *Stats) Miss() {
	if s != nil {
		s.misses.Add(1)
	}
}

func (s *Stats) Stored(uncompressed, compressed int64) {
	if s != nil {
		s.uncompressedBytes.Add(uncompressed)
		s.compressedBytes.Add(compressed)
	}
}

func (s *Stats) Snapshot() StatsSnapshot {
	snap := StatsSnapshot{
		Hits:              s.hits.Load(),
		Misses:            s.misses.Load(),
		UncompressedBytes: s.uncompressedBytes.Load(),
		CompressedBytes:   s.compressedBytes.Load(),
	}

	if snap.UncompressedBytes > 0 {
		snap.CompressionRatio = float64(snap.CompressedBytes) / float64(snap.UncompressedBytes)
	}

	return snap
}
