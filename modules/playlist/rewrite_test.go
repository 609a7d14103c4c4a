package playlist

import (
	"encoding/base64"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testOpts = rewriteOptions{SegmentPath: "/segment"}

// decodeProxyURL extracts the upstream URL embedded in a rewritten line.
func decodeProxyURL(t *testing.T, line string) string {
	t.Helper()

	u, err := url.Parse(line)
	require.NoError(t, err)

	decoded, err := base64.StdEncoding.DecodeString(u.Query().Get("u"))
	require.NoError(t, err)

	return string(decoded)
}

func TestRewriteMediaPlaylist(t *testing.T) {
	manifest := "#EXTM3U\n#EXTINF:10,\nseg1.ts\n#EXTINF:10,\nseg2.ts\n"

	out := rewrite(manifest, "http://host/a/index.m3u8", testOpts)
	lines := strings.Split(out, "\n")

	require.Len(t, lines, 6)
	assert.Equal(t, "#EXTM3U", lines[0])
	assert.Equal(t, "#EXTINF:10,", lines[1])
	assert.Equal(t, "#EXTINF:10,", lines[3])
	assert.Equal(t, "", lines[5])

	assert.Equal(t, "http://host/a/seg1.ts", decodeProxyURL(t, lines[2]))
	assert.Equal(t, "http://host/a/seg2.ts", decodeProxyURL(t, lines[4]))
	assert.NotEqual(t, lines[2], lines[4])
}

func TestRewriteKeyLine(t *testing.T) {
	manifest := `#EXT-X-KEY:METHOD=AES-128,URI="http://host/key"`

	out := rewrite(manifest, "http://host/index.m3u8", testOpts)

	assert.True(t, strings.HasPrefix(out, `#EXT-X-KEY:METHOD=AES-128,URI="`))
	assert.True(t, strings.HasSuffix(out, `"`))

	inner := strings.TrimSuffix(strings.TrimPrefix(out, `#EXT-X-KEY:METHOD=AES-128,URI="`), `"`)
	assert.Equal(t, "http://host/key", decodeProxyURL(t, inner))
}

func TestRewriteKeyLineWithoutURL(t *testing.T) {
	manifest := "#EXT-X-KEY:METHOD=NONE"

	out := rewrite(manifest, "http://host/index.m3u8", testOpts)
	assert.Equal(t, manifest, out)
}

func TestRewriteMasterPlaylistMediaTag(t *testing.T) {
	manifest := strings.Join([]string{
		"#EXTM3U",
		`#EXT-X-MEDIA:TYPE=AUDIO,GROUP-ID="aud",URI="http://host/audio.m3u8"`,
		`#EXT-X-STREAM-INF:BANDWIDTH=1000000,RESOLUTION=1280x720`,
		"720p.m3u8",
	}, "\n")

	out := rewrite(manifest, "http://host/index.m3u8", testOpts)
	lines := strings.Split(out, "\n")

	assert.Contains(t, lines[1], "/segment?u=")
	assert.Equal(t, `#EXT-X-STREAM-INF:BANDWIDTH=1000000,RESOLUTION=1280x720`, lines[2])
	assert.Equal(t, "http://host/720p.m3u8", decodeProxyURL(t, lines[3]))
}

func TestRewriteMediaTagIgnoredInMediaPlaylist(t *testing.T) {
	// no RESOLUTION= token, so #EXT-X-MEDIA gets no special treatment
	manifest := `#EXT-X-MEDIA:TYPE=AUDIO,URI="http://host/audio.m3u8"`

	out := rewrite(manifest, "http://host/index.m3u8", testOpts)
	assert.Equal(t, manifest, out)
}

func TestRewritePreservesStructure(t *testing.T) {
	manifest := strings.Join([]string{
		"#EXTM3U",
		"",
		"#EXT-X-TARGETDURATION:10",
		"#EXTINF:10,",
		"seg1.ts",
		"#EXTINF:10,",
		"seg2.ts",
		"#EXTINF:10,",
		"seg3.ts",
		`#EXT-X-KEY:METHOD=AES-128,URI="http://host/key"`,
		"",
		"#EXT-X-ENDLIST",
	}, "\n")

	out := rewrite(manifest, "http://host/a/index.m3u8", testOpts)
	lines := strings.Split(out, "\n")

	require.Len(t, lines, 12, "line count must be stable")
	assert.Equal(t, "", lines[1])
	assert.Equal(t, "", lines[10])
	assert.Equal(t, "#EXT-X-ENDLIST", lines[11])

	rewritten := 0
	for _, line := range lines {
		if strings.Contains(line, "/segment?u=") {
			rewritten++
		}
	}
	assert.Equal(t, 4, rewritten, "3 segments plus 1 key line")
}

func TestRewriteFailOpen(t *testing.T) {
	// a URI line that cannot be resolved passes through unchanged
	manifest := "bad\x7furl.ts"

	out := rewrite(manifest, "http://host\x7f/", testOpts)
	assert.Equal(t, manifest, out)
}

func TestRewriteDeterministic(t *testing.T) {
	manifest := "#EXTM3U\n#EXTINF:10,\nseg1.ts\n"
	opts := rewriteOptions{
		SegmentPath: "/segment",
		Headers:     map[string]string{"Referer": "http://origin/", "User-Agent": "test"},
		LoadBalance: "edge-2",
	}

	first := rewrite(manifest, "http://host/a/index.m3u8", opts)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, rewrite(manifest, "http://host/a/index.m3u8", opts))
	}

	assert.Contains(t, first, "&lb=edge-2")
}

func TestRewriteEmbedsHeaders(t *testing.T) {
	manifest := "seg1.ts"
	opts := rewriteOptions{
		SegmentPath: "/segment",
		Headers:     map[string]string{"Referer": "http://origin/"},
	}

	out := rewrite(manifest, "http://host/a/index.m3u8", opts)

	u, err := url.Parse(out)
	require.NoError(t, err)
	assert.JSONEq(t, `{"Referer":"http://origin/"}`, u.Query().Get("headers"))
}
