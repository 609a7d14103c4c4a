// Package playlist proxies HLS manifests and media segments, rewriting
// manifest URLs to point back at this proxy and caching segment bytes.
package playlist

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"streamedge/internal/cache"
	"streamedge/internal/upstream"
)

const manifestContentType = "application/vnd.apple.mpegurl"

type Config struct {
	// SegmentPath is the public path of the segment endpoint, embedded
	// into rewritten manifest URLs.
	SegmentPath string

	PlaylistDisabled bool
	SegmentDisabled  bool
}

func (c Config) withDefaultValues() Config {
	if c.SegmentPath == "" {
		c.SegmentPath = "/segment"
	}
	return c
}

type ModuleCtx struct {
	logger   zerolog.Logger
	config   Config
	upstream *upstream.Client
	hot      *cache.Memory
	warm     *cache.Redis
}

func New(config *Config, up *upstream.Client, hot *cache.Memory, warm *cache.Redis) *ModuleCtx {
	return &ModuleCtx{
		logger:   log.With().Str("module", "playlist").Logger(),
		config:   config.withDefaultValues(),
		upstream: up,
		hot:      hot,
		warm:     warm,
	}
}

func (m *ModuleCtx) Shutdown() {}

func (m *ModuleCtx) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case strings.HasSuffix(r.URL.Path, "/playlist"):
		m.ServePlaylist(w, r)
	case strings.HasSuffix(r.URL.Path, "/segment"):
		m.ServeSegment(w, r)
	default:
		http.NotFound(w, r)
	}
}

// ServePlaylist fetches an upstream manifest and re-serves it with all
// embedded URLs substituted by proxy URLs. Manifests are never cached,
// they must always reflect current upstream state.
func (m *ModuleCtx) ServePlaylist(w http.ResponseWriter, r *http.Request) {
	if m.config.PlaylistDisabled {
		http.Error(w, "404 playlist proxy is disabled", http.StatusNotFound)
		return
	}

	query := r.URL.Query()

	target := query.Get("url")
	if target == "" {
		http.Error(w, "400 missing url parameter", http.StatusBadRequest)
		return
	}

	headers, ok := parseHeadersParam(query.Get("headers"))
	if !ok {
		http.Error(w, "400 invalid headers parameter", http.StatusBadRequest)
		return
	}

	body, _, err := m.upstream.Fetch(r.Context(), target, headers)
	if err != nil {
		m.serveUpstreamError(w, target, err)
		return
	}

	text := rewrite(string(body), target, rewriteOptions{
		SegmentPath: m.config.SegmentPath,
		Headers:     headers,
		LoadBalance: query.Get("lb"),
	})

	w.Header().Set("Content-Type", manifestContentType)
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(text))
}

// ServeSegment serves media segment bytes through the two cache tiers.
// The u parameter is either a base64 URL or raw base64 media bytes (key
// material inlined by some upstreams), which are returned directly.
func (m *ModuleCtx) ServeSegment(w http.ResponseWriter, r *http.Request) {
	if m.config.SegmentDisabled {
		http.Error(w, "404 segment proxy is disabled", http.StatusNotFound)
		return
	}

	query := r.URL.Query()

	encoded := query.Get("u")
	if encoded == "" {
		http.Error(w, "400 missing u parameter", http.StatusBadRequest)
		return
	}

	decoded, err := decodeBase64Param(encoded)
	if err != nil {
		http.Error(w, "400 invalid u parameter", http.StatusBadRequest)
		return
	}

	target := string(decoded)
	if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
		// inline payload, not a URL
		w.Header().Set("Content-Type", "application/octet-stream")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(decoded)
		return
	}

	headers, ok := parseHeadersParam(query.Get("headers"))
	if !ok {
		http.Error(w, "400 invalid headers parameter", http.StatusBadRequest)
		return
	}

	key := cache.Key(target)

	if entry, ok := m.hot.Get(key); ok {
		m.serveEntry(w, entry)
		return
	}

	if entry, ok := m.warm.Get(r.Context(), key); ok {
		m.hot.Set(key, entry)
		m.serveEntry(w, entry)
		return
	}

	body, respHeader, err := m.upstream.Fetch(r.Context(), target, headers)
	if err != nil {
		m.serveUpstreamError(w, target, err)
		return
	}

	entry := cache.Entry{
		Payload:   body,
		Headers:   entryHeaders(respHeader),
		Timestamp: time.Now(),
	}

	m.serveEntry(w, entry)
	m.storeAsync(key, entry)
}

// storeAsync caches an entry off the response-serving path, re-checking
// warm tier presence so racing requests do not duplicate the write.
func (m *ModuleCtx) storeAsync(key string, entry cache.Entry) {
	m.hot.Set(key, entry)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		m.warm.SetIfAbsent(ctx, key, entry)
	}()
}

func (m *ModuleCtx) serveEntry(w http.ResponseWriter, entry cache.Entry) {
	contentType := entry.Headers["content-type"]
	if contentType == "" {
		contentType = "video/MP2T"
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(entry.Payload)
}

func (m *ModuleCtx) serveUpstreamError(w http.ResponseWriter, target string, err error) {
	if errors.Is(err, upstream.ErrNotFound) {
		m.logger.Debug().Str("url", target).Msg("upstream not found")
		http.Error(w, "404 upstream resource not found", http.StatusNotFound)
		return
	}

	m.logger.Err(err).Str("url", target).Msg("upstream fetch failed")
	http.Error(w, "500 upstream fetch failed: "+err.Error(), http.StatusInternalServerError)
}

func parseHeadersParam(raw string) (map[string]string, bool) {
	if raw == "" {
		return map[string]string{}, true
	}

	headers := map[string]string{}
	if err := json.Unmarshal([]byte(raw), &headers); err != nil {
		return nil, false
	}
	return headers, true
}

func decodeBase64Param(raw string) ([]byte, error) {
	if decoded, err := base64.StdEncoding.DecodeString(raw); err == nil {
		return decoded, nil
	}
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(raw, "="))
}

func entryHeaders(header http.Header) map[string]string {
	headers := map[string]string{}
	if v := header.Get("Content-Type"); v != "" {
		headers["content-type"] = v
	}
	if v := header.Get("Content-Encoding"); v != "" {
		headers["content-encoding"] = v
	}
	return headers
}
