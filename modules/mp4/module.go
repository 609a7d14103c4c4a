// Package mp4 serves MP4 files with client-adaptive delivery: full
// file, single byte range, fixed-size chunks or progressive
// multi-chunk batches, with background prefetch into the warm cache.
package mp4

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"streamedge/internal/cache"
	"streamedge/internal/upstream"
)

type Config struct {
	Disabled bool

	// ProxyPath is the public path of this endpoint, embedded into
	// chunk manifest URLs.
	ProxyPath string

	// ManifestChunkSize partitions files for the chunk listing,
	// independent of any per-client chunk size.
	ManifestChunkSize int64

	// MaxBatchChunks bounds one progressive response.
	MaxBatchChunks int

	// PrefetchBytes is how far ahead the detached prefetch reads after
	// a full-file delivery; PrefetchWindow is its fetch window size.
	PrefetchBytes  int64
	PrefetchWindow int64
}

func (c Config) withDefaultValues() Config {
	if c.ProxyPath == "" {
		c.ProxyPath = "/mp4"
	}
	if c.ManifestChunkSize == 0 {
		c.ManifestChunkSize = 4 << 20
	}
	if c.MaxBatchChunks == 0 {
		c.MaxBatchChunks = 3
	}
	if c.PrefetchWindow == 0 {
		c.PrefetchWindow = 4 << 20
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
		logger:   log.With().Str("module", "mp4").Logger(),
		config:   config.withDefaultValues(),
		upstream: up,
		hot:      hot,
		warm:     warm,
	}
}

func (m *ModuleCtx) Shutdown() {}

// request carries one classified MP4 request through the engine.
type request struct {
	target  string
	headers map[string]string
	profile Profile
}

func (m *ModuleCtx) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if m.config.Disabled {
		http.Error(w, "404 mp4 proxy is disabled", http.StatusNotFound)
		return
	}

	query := r.URL.Query()

	target := query.Get("url")
	if target == "" {
		http.Error(w, "400 missing url parameter", http.StatusBadRequest)
		return
	}

	headers := map[string]string{}
	if raw := query.Get("headers"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &headers); err != nil {
			http.Error(w, "400 invalid headers parameter", http.StatusBadRequest)
			return
		}
	}

	req := request{
		target:  target,
		headers: headers,
		profile: ProfileFor(r.UserAgent()),
	}

	if r.Method == http.MethodHead {
		m.serveHead(w, r, req)
		return
	}

	// a profile preferring full files overrides every request flag
	if req.profile.PreferFullFileDelivery {
		m.serveFullFile(w, r, req)
		return
	}

	// explicit flags, in priority order
	if raw := query.Get("chunk"); raw != "" {
		index, err := strconv.Atoi(raw)
		if err != nil || index < 0 {
			http.Error(w, "400 invalid chunk index", http.StatusBadRequest)
			return
		}
		m.serveChunk(w, r, req, index, req.profile.ChunkSize)
		return
	}

	if query.Get("playlist") == "true" {
		m.serveManifest(w, r, req)
		return
	}

	if raw := query.Get("segment"); raw != "" {
		index, err := strconv.Atoi(raw)
		if err != nil || index < 0 {
			http.Error(w, "400 invalid segment index", http.StatusBadRequest)
			return
		}
		m.serveChunk(w, r, req, index, m.config.ManifestChunkSize)
		return
	}

	if query.Get("progressive") == "true" {
		start, _ := strconv.Atoi(query.Get("start"))
		if start < 0 {
			start = 0
		}
		m.serveProgressive(w, r, req, start)
		return
	}

	// no flags: pick by client capability
	rangeHeader := r.Header.Get("Range")

	if rangeHeader != "" && req.profile.SupportsRangeRequests {
		m.serveRangePassthrough(w, r, req, rangeHeader)
		return
	}

	if req.profile.SupportsProgressiveBatching && rangeHeader == "" {
		m.serveProgressive(w, r, req, 0)
		return
	}

	m.serveFullFile(w, r, req)
}
