package httprange

import (
	"fmt"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		header string
		size   int64
		want   ByteRange
		wantOk bool
	}{
		{"bytes=0-99", 1000, ByteRange{0, 99}, true},
		{"bytes=500-999", 1000, ByteRange{500, 999}, true},
		{"bytes=0-0", 1000, ByteRange{0, 0}, true},
		{"bytes=999-999", 1000, ByteRange{999, 999}, true},

		// open end
		{"bytes=200-", 1000, ByteRange{200, 999}, true},
		{"bytes=0-", 1, ByteRange{0, 0}, true},

		// suffix form
		{"bytes=-100", 1000, ByteRange{900, 999}, true},
		{"bytes=-5000", 1000, ByteRange{0, 999}, true},
		{"bytes=-0", 1000, ByteRange{}, false},

		// unsatisfiable
		{"bytes=1000-1000", 1000, ByteRange{}, false},
		{"bytes=0-1000", 1000, ByteRange{}, false},
		{"bytes=500-100", 1000, ByteRange{}, false},

		// malformed
		{"", 1000, ByteRange{}, false},
		{"bytes=", 1000, ByteRange{}, false},
		{"bytes=abc-def", 1000, ByteRange{}, false},
		{"bytes=0-99,200-299", 1000, ByteRange{}, false},
		{"items=0-99", 1000, ByteRange{}, false},
		{"bytes=0-99", 0, ByteRange{}, false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%d", tt.header, tt.size), func(t *testing.T) {
			got, ok := Parse(tt.header, tt.size)
			if ok != tt.wantOk {
				t.Fatalf("Parse(%q, %d) ok = %v, want %v", tt.header, tt.size, ok, tt.wantOk)
			}
			if ok && got != tt.want {
				t.Errorf("Parse(%q, %d) = %+v, want %+v", tt.header, tt.size, got, tt.want)
			}
		})
	}
}

func TestParseAllValidWindows(t *testing.T) {
	const size = 32

	for start := int64(0); start < size; start++ {
		for end := start; end < size; end++ {
			header := fmt.Sprintf("bytes=%d-%d", start, end)
			got, ok := Parse(header, size)
			if !ok {
				t.Fatalf("Parse(%q, %d) unexpectedly invalid", header, size)
			}
			if got.Start != start || got.End != end {
				t.Fatalf("Parse(%q, %d) = %+v", header, size, got)
			}
		}
	}
}

func TestFormatting(t *testing.T) {
	r := ByteRange{Start: 0, End: 99}

	if got := r.Size(); got != 100 {
		t.Errorf("Size() = %d, want 100", got)
	}
	if got := r.ContentRange(1000); got != "bytes 0-99/1000" {
		t.Errorf("ContentRange(1000) = %q", got)
	}
	if got := r.Header(); got != "bytes=0-99" {
		t.Errorf("Header() = %q", got)
	}
}
