package serve

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type Config struct {
	// feature disable flags
	CacheDisabled    bool
	PlaylistDisabled bool
	SegmentDisabled  bool
	MP4Disabled      bool

	// warm tier connection
	RedisHost     string
	RedisPort     int
	RedisPassword string
	RedisDatabase int
	WarmExpiry    time.Duration

	// hot tier bounds, per media type
	SegmentExpiry     time.Duration
	SegmentMaxEntries int
	ChunkExpiry       time.Duration
	ChunkMaxEntries   int
	SweepPeriod       time.Duration

	// mp4 delivery
	ManifestChunkSize int64
	MaxBatchChunks    int
	PrefetchMB        int64
}

func (Config) Init(cmd *cobra.Command) error {
	cmd.PersistentFlags().Bool("cache.disabled", false, "disable all caching, every request goes upstream")
	if err := viper.BindPFlag("cache.disabled", cmd.PersistentFlags().Lookup("cache.disabled")); err != nil {
		return err
	}

	cmd.PersistentFlags().Bool("disable.playlist", false, "disable the playlist proxy endpoint")
	if err := viper.BindPFlag("disable.playlist", cmd.PersistentFlags().Lookup("disable.playlist")); err != nil {
		return err
	}

	cmd.PersistentFlags().Bool("disable.segment", false, "disable the segment proxy endpoint")
	if err := viper.BindPFlag("disable.segment", cmd.PersistentFlags().Lookup("disable.segment")); err != nil {
		return err
	}

	cmd.PersistentFlags().Bool("disable.mp4", false, "disable the mp4 proxy endpoint")
	if err := viper.BindPFlag("disable.mp4", cmd.PersistentFlags().Lookup("disable.mp4")); err != nil {
		return err
	}

	cmd.PersistentFlags().String("redis.host", "", "redis host for the warm cache tier, empty disables the tier")
	if err := viper.BindPFlag("redis.host", cmd.PersistentFlags().Lookup("redis.host")); err != nil {
		return err
	}

	cmd.PersistentFlags().Int("redis.port", 6379, "redis port")
	if err := viper.BindPFlag("redis.port", cmd.PersistentFlags().Lookup("redis.port")); err != nil {
		return err
	}

	cmd.PersistentFlags().String("redis.password", "", "redis password")
	if err := viper.BindPFlag("redis.password", cmd.PersistentFlags().Lookup("redis.password")); err != nil {
		return err
	}

	cmd.PersistentFlags().Int("redis.db", 0, "redis logical database")
	if err := viper.BindPFlag("redis.db", cmd.PersistentFlags().Lookup("redis.db")); err != nil {
		return err
	}

	cmd.PersistentFlags().Duration("cache.warm.expiry", 12*time.Hour, "server-side TTL for warm tier writes")
	if err := viper.BindPFlag("cache.warm.expiry", cmd.PersistentFlags().Lookup("cache.warm.expiry")); err != nil {
		return err
	}

	cmd.PersistentFlags().Duration("cache.segment.expiry", 4*time.Hour, "hot tier TTL for media segments")
	if err := viper.BindPFlag("cache.segment.expiry", cmd.PersistentFlags().Lookup("cache.segment.expiry")); err != nil {
		return err
	}

	cmd.PersistentFlags().Int("cache.segment.max", 500, "hot tier capacity for media segments")
	if err := viper.BindPFlag("cache.segment.max", cmd.PersistentFlags().Lookup("cache.segment.max")); err != nil {
		return err
	}

	cmd.PersistentFlags().Duration("cache.chunk.expiry", 6*time.Hour, "hot tier TTL for mp4 chunks")
	if err := viper.BindPFlag("cache.chunk.expiry", cmd.PersistentFlags().Lookup("cache.chunk.expiry")); err != nil {
		return err
	}

	cmd.PersistentFlags().Int("cache.chunk.max", 300, "hot tier capacity for mp4 chunks")
	if err := viper.BindPFlag("cache.chunk.max", cmd.PersistentFlags().Lookup("cache.chunk.max")); err != nil {
		return err
	}

	cmd.PersistentFlags().Duration("cache.sweep", 5*time.Minute, "hot tier sweep period")
	if err := viper.BindPFlag("cache.sweep", cmd.PersistentFlags().Lookup("cache.sweep")); err != nil {
		return err
	}

	cmd.PersistentFlags().Int64("mp4.chunk-size", 4<<20, "manifest chunk size in bytes")
	if err := viper.BindPFlag("mp4.chunk-size", cmd.PersistentFlags().Lookup("mp4.chunk-size")); err != nil {
		return err
	}

	cmd.PersistentFlags().Int("mp4.batch-chunks", 3, "maximum chunks per progressive batch")
	if err := viper.BindPFlag("mp4.batch-chunks", cmd.PersistentFlags().Lookup("mp4.batch-chunks")); err != nil {
		return err
	}

	cmd.PersistentFlags().Int64("mp4.prefetch-mb", 16, "megabytes to prefetch into the warm tier after full-file delivery, 0 disables")
	if err := viper.BindPFlag("mp4.prefetch-mb", cmd.PersistentFlags().Lookup("mp4.prefetch-mb")); err != nil {
		return err
	}

	return nil
}

func (c *Config) Set() {
	c.CacheDisabled = viper.GetBool("cache.disabled")
	c.PlaylistDisabled = viper.GetBool("disable.playlist")
	c.SegmentDisabled = viper.GetBool("disable.segment")
	c.MP4Disabled = viper.GetBool("disable.mp4")

	c.RedisHost = viper.GetString("redis.host")
	c.RedisPort = viper.GetInt("redis.port")
	c.RedisPassword = viper.GetString("redis.password")
	c.RedisDatabase = viper.GetInt("redis.db")
	c.WarmExpiry = viper.GetDuration("cache.warm.expiry")

	c.SegmentExpiry = viper.GetDuration("cache.segment.expiry")
	c.SegmentMaxEntries = viper.GetInt("cache.segment.max")
	c.ChunkExpiry = viper.GetDuration("cache.chunk.expiry")
	c.ChunkMaxEntries = viper.GetInt("cache.chunk.max")
	c.SweepPeriod = viper.GetDuration("cache.sweep")

	c.ManifestChunkSize = viper.GetInt64("mp4.chunk-size")
	c.MaxBatchChunks = viper.GetInt("mp4.batch-chunks")
	c.PrefetchMB = viper.GetInt64("mp4.prefetch-mb")
}
