package mp4

import (
	"streamedge/pkg/httprange"
)

// Chunk describes one fixed-size byte window of an upstream file.
type Chunk struct {
	Index     int    `json:"index"`
	Start     int64  `json:"start"`
	End       int64  `json:"end"`
	Size      int64  `json:"size"`
	SourceURL string `json:"sourceUrl"`
	URL       string `json:"url,omitempty"`
}

// Manifest is the chunk listing for a whole file, derived purely from
// (totalSize, chunkSize).
type Manifest struct {
	TotalSize   int64   `json:"totalSize"`
	ChunkSize   int64   `json:"chunkSize"`
	TotalChunks int     `json:"totalChunks"`
	Chunks      []Chunk `json:"chunks"`
}

// Partition derives the chunk listing. The last chunk is clamped to
// totalSize-1 even when smaller than chunkSize.
func Partition(sourceURL string, totalSize, chunkSize int64) Manifest {
	totalChunks := int((totalSize + chunkSize - 1) / chunkSize)

	chunks := make([]Chunk, 0, totalChunks)
	for i := 0; i < totalChunks; i++ {
		chunk, _ := ChunkAt(i, totalSize, chunkSize)
		chunk.SourceURL = sourceURL
		chunks = append(chunks, chunk)
	}

	return Manifest{
		TotalSize:   totalSize,
		ChunkSize:   chunkSize,
		TotalChunks: totalChunks,
		Chunks:      chunks,
	}
}

// ChunkAt computes the byte window of one chunk index, reporting false
// when the index is past the end of the file.
func ChunkAt(index int, totalSize, chunkSize int64) (Chunk, bool) {
	if index < 0 || totalSize <= 0 || chunkSize <= 0 {
		return Chunk{}, false
	}

	start := int64(index) * chunkSize
	if start >= totalSize {
		return Chunk{}, false
	}

	end := start + chunkSize - 1
	if end > totalSize-1 {
		end = totalSize - 1
	}

	return Chunk{
		Index: index,
		Start: start,
		End:   end,
		Size:  end - start + 1,
	}, true
}

// Range returns the chunk's byte window as a range.
func (c Chunk) Range() httprange.ByteRange {
	return httprange.ByteRange{Start: c.Start, End: c.End}
}
