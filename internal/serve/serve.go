package serve

import (
	"context"
	"net/http"
	"os"
	"os/signal"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"streamedge/internal/cache"
	"streamedge/internal/server"
	"streamedge/internal/upstream"
	"streamedge/modules"
	"streamedge/modules/mp4"
	"streamedge/modules/playlist"
	"streamedge/modules/stats"
)

func NewCommand() *Main {
	return &Main{
		Config:       &Config{},
		ServerConfig: &server.Config{},
	}
}

type Main struct {
	Config       *Config
	ServerConfig *server.Config

	logger   zerolog.Logger
	server   *server.ServerManagerCtx
	upstream *upstream.Client

	segments *cache.Memory
	chunks   *cache.Memory
	warm     *cache.Redis

	modules map[string]modules.Module
}

func (main *Main) register(name, pattern string, module modules.Module) {
	main.modules[name] = module
	main.server.Handle(pattern, module)
	main.logger.Info().Str("module", name).Str("pattern", pattern).Msg("module registered")
}

func (main *Main) Preflight() {
	main.logger = log.With().Str("service", "main").Logger()
}

func (main *Main) start() {
	config := main.Config

	main.server = server.New(main.ServerConfig)

	main.upstream = upstream.New()

	segmentStats := &cache.Stats{}
	main.segments = cache.NewMemory(cache.MemoryConfig{
		Name:       "segments",
		MaxEntries: config.SegmentMaxEntries,
		Expiry:     config.SegmentExpiry,
		SweepEvery: config.SweepPeriod,
		Disabled:   config.CacheDisabled,
	}, segmentStats)
	main.segments.Start()

	chunkStats := &cache.Stats{}
	main.chunks = cache.NewMemory(cache.MemoryConfig{
		Name:       "chunks",
		MaxEntries: config.ChunkMaxEntries,
		Expiry:     config.ChunkExpiry,
		SweepEvery: config.SweepPeriod,
		Disabled:   config.CacheDisabled,
	}, chunkStats)
	main.chunks.Start()

	warmStats := &cache.Stats{}
	main.warm = cache.NewRedis(cache.RedisConfig{
		Host:     config.RedisHost,
		Port:     config.RedisPort,
		Password: config.RedisPassword,
		Database: config.RedisDatabase,
		Expiry:   config.WarmExpiry,
		Disabled: config.CacheDisabled || config.RedisHost == "",
	}, warmStats)
	main.warm.Open(context.Background())

	main.modules = map[string]modules.Module{}

	hls := playlist.New(&playlist.Config{
		SegmentPath:      "/segment",
		PlaylistDisabled: config.PlaylistDisabled,
		SegmentDisabled:  config.SegmentDisabled,
	}, main.upstream, main.segments, main.warm)
	main.register("playlist", "/playlist", hls)
	main.server.Handle("/segment", hls)

	main.register("mp4", "/mp4", mp4.New(&mp4.Config{
		Disabled:          config.MP4Disabled,
		ProxyPath:         "/mp4",
		ManifestChunkSize: config.ManifestChunkSize,
		MaxBatchChunks:    config.MaxBatchChunks,
		PrefetchBytes:     config.PrefetchMB << 20,
	}, main.upstream, main.chunks, main.warm))

	main.register("stats", "/cache", stats.New(map[string]stats.Tier{
		"segments": {Stats: segmentStats, Size: main.segments.Len},
		"chunks":   {Stats: chunkStats, Size: main.chunks.Len},
		"warm":     {Stats: warmStats},
	}))

	main.server.Mount(func(r *chi.Mux) {
		r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
			//nolint
			_, _ = w.Write([]byte("pong"))
		})
	})

	main.server.Start()
	main.logger.Info().Str("bind", main.ServerConfig.Bind).Msg("edge proxy is up")
}

func (main *Main) shutdown() {
	err := main.server.Shutdown()
	main.logger.Err(err).Msg("http manager shutdown")

	for name, module := range main.modules {
		module.Shutdown()
		main.logger.Info().Str("module", name).Msg("module shutdown")
	}

	if main.segments != nil {
		main.segments.Stop()
	}
	if main.chunks != nil {
		main.chunks.Stop()
	}
	if main.warm != nil {
		main.warm.Close()
	}
	main.logger.Info().Msg("cache tiers shutdown")
}

func (main *Main) Run(cmd *cobra.Command, args []string) {
	main.logger.Info().Msg("starting main server")
	main.start()
	main.logger.Info().Msg("main ready")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	sig := <-quit

	main.logger.Warn().Msgf("received %s, attempting graceful shutdown", sig)
	main.shutdown()
	main.logger.Info().Msg("shutdown complete")
}
