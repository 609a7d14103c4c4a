package mp4

import "strings"

// Profile is a static capability descriptor governing the delivery
// strategy for one client family. Profiles are fixed at compile time
// and read-only thereafter.
type Profile struct {
	Name string

	// ChunkSize is the byte window used for fixed-chunk and progressive
	// delivery to this client.
	ChunkSize int64

	SupportsChunkedDelivery     bool
	SupportsProgressiveBatching bool
	SupportsRangeRequests       bool

	// PreferFullFileDelivery forces full-file delivery regardless of
	// request flags; some players choke on anything else.
	PreferFullFileDelivery bool

	// NeedsExplicitContentLength means ranged responses have to be
	// buffered so Content-Length can be set, instead of relaying the
	// upstream body as-is.
	NeedsExplicitContentLength bool
}

// Client classification is a case-insensitive substring match over the
// User-Agent, first match wins.
var clientProfiles = []struct {
	match   string
	profile Profile
}{
	{"applecoremedia", Profile{
		Name:                       "apple",
		ChunkSize:                  2 << 20,
		SupportsChunkedDelivery:    true,
		SupportsRangeRequests:      true,
		NeedsExplicitContentLength: true,
	}},
	{"exoplayer", Profile{
		Name:                        "exoplayer",
		ChunkSize:                   4 << 20,
		SupportsChunkedDelivery:     true,
		SupportsProgressiveBatching: true,
		SupportsRangeRequests:       true,
	}},
	{"stagefright", Profile{
		Name:                       "stagefright",
		ChunkSize:                  4 << 20,
		PreferFullFileDelivery:     true,
		NeedsExplicitContentLength: true,
	}},
	{"dalvik", Profile{
		Name:                   "dalvik",
		ChunkSize:              4 << 20,
		PreferFullFileDelivery: true,
	}},
	{"vlc", Profile{
		Name:                  "vlc",
		ChunkSize:             8 << 20,
		SupportsRangeRequests: true,
	}},
	{"lavf", Profile{
		Name:                  "lavf",
		ChunkSize:             8 << 20,
		SupportsRangeRequests: true,
	}},
	{"smarttv", Profile{
		Name:                        "smarttv",
		ChunkSize:                   2 << 20,
		SupportsChunkedDelivery:     true,
		SupportsProgressiveBatching: true,
		SupportsRangeRequests:       true,
		NeedsExplicitContentLength:  true,
	}},
}

// defaultProfile is the conservative fallback for unmatched clients.
var defaultProfile = Profile{
	Name:                        "default",
	ChunkSize:                   4 << 20,
	SupportsChunkedDelivery:     true,
	SupportsProgressiveBatching: true,
	SupportsRangeRequests:       true,
}

func ProfileFor(userAgent string) Profile {
	ua := strings.ToLower(userAgent)

	for _, c := range clientProfiles {
		if strings.Contains(ua, c.match) {
			return c.profile
		}
	}

	return defaultProfile
}
