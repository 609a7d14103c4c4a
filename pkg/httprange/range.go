// Package httprange parses HTTP Range headers into validated byte windows.
package httprange

import (
	"fmt"
	"strconv"
	"strings"
)

// ByteRange is an inclusive byte window within a resource.
type ByteRange struct {
	Start int64
	End   int64
}

// Size returns the number of bytes covered by the window.
func (r ByteRange) Size() int64 {
	return r.End - r.Start + 1
}

// ContentRange formats the window as a Content-Range header value.
func (r ByteRange) ContentRange(size int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", r.Start, r.End, size)
}

// Header formats the window as a Range request header value.
func (r ByteRange) Header() string {
	return fmt.Sprintf("bytes=%d-%d", r.Start, r.End)
}

// Parse validates a Range header against a known content length.
//
// Only the single form "bytes=<start>-<end>" is accepted, with either
// side optionally empty. Multi-range requests are treated as invalid;
// the caller decides between full delivery and a 416. Returns false for
// any unsatisfiable or malformed header.
func Parse(header string, size int64) (ByteRange, bool) {
	if size <= 0 {
		return ByteRange{}, false
	}

	spec, ok := strings.CutPrefix(header, "bytes=")
	if !ok || strings.Contains(spec, ",") {
		return ByteRange{}, false
	}

	first, last, ok := strings.Cut(spec, "-")
	if !ok {
		return ByteRange{}, false
	}

	// suffix form: bytes=-N
	if first == "" {
		n, err := strconv.ParseInt(last, 10, 64)
		if err != nil || n <= 0 {
			return ByteRange{}, false
		}
		return ByteRange{Start: max(0, size-n), End: size - 1}, true
	}

	start, err := strconv.ParseInt(first, 10, 64)
	if err != nil || start < 0 {
		return ByteRange{}, false
	}

	end := size - 1
	if last != "" {
		end, err = strconv.ParseInt(last, 10, 64)
		if err != nil {
			return ByteRange{}, false
		}
	}

	if start >= size || end >= size || start > end {
		return ByteRange{}, false
	}

	return ByteRange{Start: start, End: end}, true
}
