package mp4

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"streamedge/internal/cache"
	"streamedge/internal/upstream"
	"streamedge/pkg/httprange"
)

const mp4ContentType = "video/mp4"

// serveHead answers a header-only probe describing size and range
// support without fetching any payload.
func (m *ModuleCtx) serveHead(w http.ResponseWriter, r *http.Request, req request) {
	total, err := m.upstream.ContentLength(r.Context(), req.target, req.headers)
	if err != nil {
		m.serveUpstreamError(w, req.target, err)
		return
	}

	w.Header().Set("Content-Type", mp4ContentType)
	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Length", strconv.FormatInt(total, 10))
	w.WriteHeader(http.StatusOK)
}

// serveManifest returns the chunk listing, each descriptor carrying a
// proxy URL for on-demand fetch of that chunk.
func (m *ModuleCtx) serveManifest(w http.ResponseWriter, r *http.Request, req request) {
	total, err := m.upstream.ContentLength(r.Context(), req.target, req.headers)
	if err != nil {
		m.serveUpstreamError(w, req.target, err)
		return
	}

	manifest := Partition(req.target, total, m.config.ManifestChunkSize)
	for i := range manifest.Chunks {
		manifest.Chunks[i].URL = m.chunkProxyURL(req, manifest.Chunks[i].Index)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(manifest); err != nil {
		m.logger.Err(err).Msg("manifest encode failed")
	}
}

// serveChunk fetches exactly one byte window and returns it as a
// partial-content response.
func (m *ModuleCtx) serveChunk(w http.ResponseWriter, r *http.Request, req request, index int, chunkSize int64) {
	total, err := m.upstream.ContentLength(r.Context(), req.target, req.headers)
	if err != nil {
		m.serveUpstreamError(w, req.target, err)
		return
	}

	chunk, ok := ChunkAt(index, total, chunkSize)
	if !ok {
		http.Error(w, "400 chunk index out of range", http.StatusBadRequest)
		return
	}

	payload, ok := m.fetchWindow(r.Context(), req, chunk.Range())
	if !ok {
		http.Error(w, "500 chunk fetch failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", mp4ContentType)
	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Range", chunk.Range().ContentRange(total))
	w.Header().Set("Content-Length", strconv.FormatInt(chunk.Size, 10))
	w.WriteHeader(http.StatusPartialContent)
	_, _ = w.Write(payload)
}

// serveProgressive concatenates up to MaxBatchChunks consecutive chunks
// into one response, stopping early on the first failed fetch and
// annotating how many chunks were actually served.
func (m *ModuleCtx) serveProgressive(w http.ResponseWriter, r *http.Request, req request, startIndex int) {
	total, err := m.upstream.ContentLength(r.Context(), req.target, req.headers)
	if err != nil {
		m.serveUpstreamError(w, req.target, err)
		return
	}

	first, ok := ChunkAt(startIndex, total, req.profile.ChunkSize)
	if !ok {
		http.Error(w, "400 chunk index out of range", http.StatusBadRequest)
		return
	}

	var buf bytes.Buffer
	served := 0

	for i := 0; i < m.config.MaxBatchChunks; i++ {
		chunk, ok := ChunkAt(startIndex+i, total, req.profile.ChunkSize)
		if !ok {
			break
		}

		payload, ok := m.fetchWindow(r.Context(), req, chunk.Range())
		if !ok {
			m.logger.Warn().Int("chunk", chunk.Index).Str("url", req.target).Msg("batch stopped early")
			break
		}

		buf.Write(payload)
		served++
	}

	if served == 0 {
		http.Error(w, "500 progressive fetch failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", mp4ContentType)
	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Header().Set("X-Chunks-Served", strconv.Itoa(served))

	if startIndex > 0 {
		window := httprange.ByteRange{Start: first.Start, End: first.Start + int64(buf.Len()) - 1}
		w.Header().Set("Content-Range", window.ContentRange(total))
		w.WriteHeader(http.StatusPartialContent)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	_, _ = io.Copy(w, &buf)
}

// serveRangePassthrough relays the client's Range header upstream. For
// profiles needing an explicit Content-Length the window is negotiated
// and buffered locally; an unsatisfiable Range falls back to full-file
// delivery instead of a 416.
func (m *ModuleCtx) serveRangePassthrough(w http.ResponseWriter, r *http.Request, req request, rangeHeader string) {
	if req.profile.NeedsExplicitContentLength {
		total, err := m.upstream.ContentLength(r.Context(), req.target, req.headers)
		if err != nil {
			m.serveUpstreamError(w, req.target, err)
			return
		}

		window, ok := httprange.Parse(rangeHeader, total)
		if !ok {
			m.serveFullFile(w, r, req)
			return
		}

		payload, ok := m.fetchWindow(r.Context(), req, window)
		if !ok {
			http.Error(w, "500 range fetch failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", mp4ContentType)
		w.Header().Set("Accept-Ranges", "bytes")
		w.Header().Set("Content-Range", window.ContentRange(total))
		w.Header().Set("Content-Length", strconv.FormatInt(window.Size(), 10))
		w.WriteHeader(http.StatusPartialContent)
		_, _ = w.Write(payload)
		return
	}

	resp, err := m.upstream.Do(r.Context(), http.MethodGet, req.target, req.headers, rangeHeader)
	if err != nil {
		m.serveUpstreamError(w, req.target, err)
		return
	}
	defer resp.Body.Close()

	for _, header := range []string{"Content-Type", "Content-Length", "Content-Range", "Accept-Ranges"} {
		if v := resp.Header.Get(header); v != "" {
			w.Header().Set(header, v)
		}
	}
	w.WriteHeader(resp.StatusCode)

	if _, err := io.Copy(w, resp.Body); err != nil {
		m.logger.Debug().Err(err).Str("url", req.target).Msg("range relay interrupted")
	}
}

// serveFullFile streams the whole resource and then kicks off the
// detached warm-tier prefetch of the first bytes.
func (m *ModuleCtx) serveFullFile(w http.ResponseWriter, r *http.Request, req request) {
	resp, err := m.upstream.Do(r.Context(), http.MethodGet, req.target, req.headers, "")
	if err != nil {
		m.serveUpstreamError(w, req.target, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		http.Error(w, "404 upstream resource not found", http.StatusNotFound)
		return
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		http.Error(w, "500 upstream status "+resp.Status, http.StatusInternalServerError)
		return
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = mp4ContentType
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Accept-Ranges", "bytes")

	if req.profile.NeedsExplicitContentLength && resp.ContentLength > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(resp.ContentLength, 10))
	}
	w.WriteHeader(http.StatusOK)

	if m.config.PrefetchBytes > 0 {
		go m.prefetch(req, resp.ContentLength)
	}

	if _, err := io.Copy(w, resp.Body); err != nil {
		m.logger.Debug().Err(err).Str("url", req.target).Msg("full-file stream interrupted")
	}
}

// fetchWindow serves one byte window through the cache tiers, storing
// upstream fetches asynchronously with a presence re-check.
func (m *ModuleCtx) fetchWindow(ctx context.Context, req request, window httprange.ByteRange) ([]byte, bool) {
	key := cache.WindowKey(req.target, window.Start, window.End)

	if entry, ok := m.hot.Get(key); ok {
		return entry.Payload, true
	}

	if entry, ok := m.warm.Get(ctx, key); ok {
		m.hot.Set(key, entry)
		return entry.Payload, true
	}

	payload, header, err := m.upstream.FetchRange(ctx, req.target, req.headers, window)
	if err != nil {
		m.logger.Warn().Err(err).Str("url", req.target).Str("window", window.Header()).Msg("window fetch failed")
		return nil, false
	}

	entry := cache.Entry{
		Payload:   payload,
		Headers:   map[string]string{"content-type": mp4ContentType},
		Timestamp: time.Now(),
		RangeKey:  window.Header(),
	}
	if v := header.Get("Content-Type"); v != "" {
		entry.Headers["content-type"] = v
	}

	m.hot.Set(key, entry)
	go func() {
		storeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		m.warm.SetIfAbsent(storeCtx, key, entry)
	}()

	return payload, true
}

// prefetch warms upcoming byte windows after a full-file delivery. It
// is detached: failures only log and never affect any response.
func (m *ModuleCtx) prefetch(req request, total int64) {
	limit := m.config.PrefetchBytes
	if total > 0 && total < limit {
		limit = total
	}

	for offset := int64(0); offset < limit; offset += m.config.PrefetchWindow {
		end := offset + m.config.PrefetchWindow - 1
		if total > 0 && end > total-1 {
			end = total - 1
		}

		window := httprange.ByteRange{Start: offset, End: end}
		key := cache.WindowKey(req.target, window.Start, window.End)

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)

		if m.warm.Has(ctx, key) || m.hot.Has(key) {
			cancel()
			continue
		}

		payload, header, err := m.upstream.FetchRange(ctx, req.target, req.headers, window)
		if err != nil {
			m.logger.Debug().Err(err).Str("url", req.target).Str("window", window.Header()).Msg("prefetch stopped")
			cancel()
			return
		}

		entry := cache.Entry{
			Payload:   payload,
			Headers:   map[string]string{"content-type": mp4ContentType},
			Timestamp: time.Now(),
			RangeKey:  window.Header(),
		}
		if v := header.Get("Content-Type"); v != "" {
			entry.Headers["content-type"] = v
		}

		m.warm.Set(ctx, key, entry)
		cancel()
	}
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

// chunkProxyURL builds the on-demand fetch URL of one manifest chunk.
func (m *ModuleCtx) chunkProxyURL(req request, index int) string {
	headersJSON, _ := json.Marshal(req.headers)

	return fmt.Sprintf("%s?url=%s&headers=%s&segment=%d",
		m.config.ProxyPath,
		url.QueryEscape(req.target),
		url.QueryEscape(string(headersJSON)),
		index,
	)
}
