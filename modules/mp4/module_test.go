package mp4

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streamedge/internal/cache"
	"streamedge/internal/upstream"
)

func newTestModule(config Config) *ModuleCtx {
	hot := cache.NewMemory(cache.MemoryConfig{MaxEntries: 20, Expiry: time.Hour}, nil)
	warm := cache.NewRedis(cache.RedisConfig{Disabled: true}, nil)
	return New(&config, upstream.New(), hot, warm)
}

func newUpstreamFile(t *testing.T, size int) (*httptest.Server, []byte) {
	t.Helper()

	content := make([]byte, size)
	for i := range content {
		content[i] = byte(i % 251)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, "f.mp4", time.Time{}, bytes.NewReader(content))
	}))
	t.Cleanup(srv.Close)

	return srv, content
}

func doRequest(m *ModuleCtx, method, target, userAgent, rangeHeader string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(method, target, nil)
	if userAgent != "" {
		r.Header.Set("User-Agent", userAgent)
	}
	if rangeHeader != "" {
		r.Header.Set("Range", rangeHeader)
	}

	w := httptest.NewRecorder()
	m.ServeHTTP(w, r)
	return w
}

func TestHeadDescribesResource(t *testing.T) {
	srv, _ := newUpstreamFile(t, 1000)
	m := newTestModule(Config{})

	w := doRequest(m, http.MethodHead, "/mp4?url="+url.QueryEscape(srv.URL), "", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1000", w.Header().Get("Content-Length"))
	assert.Equal(t, "bytes", w.Header().Get("Accept-Ranges"))
}

func TestManifestListing(t *testing.T) {
	srv, _ := newUpstreamFile(t, 1000)
	m := newTestModule(Config{ManifestChunkSize: 400})

	w := doRequest(m, http.MethodGet, "/mp4?url="+url.QueryEscape(srv.URL)+"&playlist=true", "", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var manifest Manifest
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &manifest))

	assert.Equal(t, int64(1000), manifest.TotalSize)
	assert.Equal(t, 3, manifest.TotalChunks)
	assert.Equal(t, int64(999), manifest.Chunks[2].End)
	assert.Contains(t, manifest.Chunks[1].URL, "segment=1")
}

func TestFixedSegmentChunk(t *testing.T) {
	srv, content := newUpstreamFile(t, 1000)
	m := newTestModule(Config{ManifestChunkSize: 400})

	w := doRequest(m, http.MethodGet, "/mp4?url="+url.QueryEscape(srv.URL)+"&segment=1", "", "")

	require.Equal(t, http.StatusPartialContent, w.Code)
	assert.Equal(t, "bytes 400-799/1000", w.Header().Get("Content-Range"))
	assert.Equal(t, "400", w.Header().Get("Content-Length"))
	assert.Equal(t, content[400:800], w.Body.Bytes())
}

func TestChunkIndexOutOfRange(t *testing.T) {
	srv, _ := newUpstreamFile(t, 1000)
	m := newTestModule(Config{ManifestChunkSize: 400})

	w := doRequest(m, http.MethodGet, "/mp4?url="+url.QueryEscape(srv.URL)+"&segment=9", "", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProgressiveBatch(t *testing.T) {
	srv, content := newUpstreamFile(t, 1000)
	m := newTestModule(Config{})

	// the whole file fits into the first client chunk
	w := doRequest(m, http.MethodGet, "/mp4?url="+url.QueryEscape(srv.URL)+"&progressive=true", "ExoPlayerLib/2.18.1", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1", w.Header().Get("X-Chunks-Served"))
	assert.Equal(t, content, w.Body.Bytes())
}

func TestProgressiveStartPastEOF(t *testing.T) {
	srv, _ := newUpstreamFile(t, 1000)
	m := newTestModule(Config{})

	// a 1000-byte file has exactly one client chunk, index 5 is beyond it
	w := doRequest(m, http.MethodGet, "/mp4?url="+url.QueryEscape(srv.URL)+"&progressive=true&start=5", "ExoPlayerLib/2.18.1", "")

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRangePassthrough(t *testing.T) {
	srv, content := newUpstreamFile(t, 1000)
	m := newTestModule(Config{})

	w := doRequest(m, http.MethodGet, "/mp4?url="+url.QueryEscape(srv.URL), "VLC/3.0.18", "bytes=0-99")

	require.Equal(t, http.StatusPartialContent, w.Code)
	assert.Equal(t, "bytes 0-99/1000", w.Header().Get("Content-Range"))
	assert.Equal(t, content[:100], w.Body.Bytes())
}

func TestNegotiatedRangeForExplicitLengthClients(t *testing.T) {
	srv, content := newUpstreamFile(t, 1000)
	m := newTestModule(Config{})

	w := doRequest(m, http.MethodGet, "/mp4?url="+url.QueryEscape(srv.URL), "AppleCoreMedia/1.0.0", "bytes=100-299")

	require.Equal(t, http.StatusPartialContent, w.Code)
	assert.Equal(t, "bytes 100-299/1000", w.Header().Get("Content-Range"))
	assert.Equal(t, "200", w.Header().Get("Content-Length"))
	assert.Equal(t, content[100:300], w.Body.Bytes())
}

func TestUnsatisfiableRangeFallsBackToFullFile(t *testing.T) {
	srv, content := newUpstreamFile(t, 1000)
	m := newTestModule(Config{})

	w := doRequest(m, http.MethodGet, "/mp4?url="+url.QueryEscape(srv.URL), "AppleCoreMedia/1.0.0", "bytes=5000-6000")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, content, w.Body.Bytes())
}

func TestPreferFullFileOverridesFlags(t *testing.T) {
	srv, content := newUpstreamFile(t, 1000)
	m := newTestModule(Config{ManifestChunkSize: 400})

	w := doRequest(m, http.MethodGet, "/mp4?url="+url.QueryEscape(srv.URL)+"&segment=1", "stagefright/1.2", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, content, w.Body.Bytes())
}

func TestChunkServedFromCacheOnRepeat(t *testing.T) {
	rangedFetches := 0

	content := make([]byte, 1000)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Range") != "" && r.Method == http.MethodGet {
			rangedFetches++
		}
		http.ServeContent(w, r, "f.mp4", time.Time{}, bytes.NewReader(content))
	}))
	defer srv.Close()

	m := newTestModule(Config{ManifestChunkSize: 400})

	for i := 0; i < 3; i++ {
		w := doRequest(m, http.MethodGet, "/mp4?url="+url.QueryEscape(srv.URL)+"&segment=0", "", "")
		require.Equal(t, http.StatusPartialContent, w.Code)
	}

	assert.Equal(t, 1, rangedFetches, "repeat chunk requests must hit the hot tier")
}

func TestValidation(t *testing.T) {
	m := newTestModule(Config{})

	w := doRequest(m, http.MethodGet, "/mp4", "", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(m, http.MethodGet, "/mp4?url=http://host/f.mp4&headers=broken", "", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(m, http.MethodGet, "/mp4?url=http://host/f.mp4&chunk=abc", "", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDisabled(t *testing.T) {
	m := newTestModule(Config{Disabled: true})

	w := doRequest(m, http.MethodGet, "/mp4?url=http://host/f.mp4", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
