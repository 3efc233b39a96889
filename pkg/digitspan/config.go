package digitspan

import (
	"github.com/himanishpuri/AuditoryMemoryTest/pkg/digitspan/audio"
	"github.com/himanishpuri/AuditoryMemoryTest/pkg/digitspan/cache"
	"github.com/himanishpuri/AuditoryMemoryTest/pkg/digitspan/storage"
)

type Config struct {
	AssetsDir  string
	DBPath     string // empty disables the clip manifest
	OutputDir  string
	SampleRate int
	Seed       uint64
	Seeded     bool
	Logger     Logger
	ClipCache  ClipCache
	ClipIndex  ClipIndex
	Provider   Synthesizer
	Encoder    Encoder
}

type Option func(*Config)

func WithAssetsDir(dir string) Option {
	return func(c *Config) {
		c.AssetsDir = dir
	}
}

func WithDBPath(path string) Option {
	return func(c *Config) {
		c.DBPath = path
	}
}

func WithOutputDir(dir string) Option {
	return func(c *Config) {
		c.OutputDir = dir
	}
}

func WithSampleRate(rate int) Option {
	return func(c *Config) {
		c.SampleRate = rate
	}
}

// WithSeed makes noise and trial generation reproducible.
func WithSeed(seed uint64) Option {
	return func(c *Config) {
		c.Seed = seed
		c.Seeded = true
	}
}

func WithLogger(log Logger) Option {
	return func(c *Config) {
		c.Logger = log
	}
}

// WithClipCache replaces the on-disk clip cache, e.g. with canned clips.
func WithClipCache(cc ClipCache) Option {
	return func(c *Config) {
		c.ClipCache = cc
	}
}

func WithClipIndex(idx ClipIndex) Option {
	return func(c *Config) {
		c.ClipIndex = idx
	}
}

// WithSynthesizer sets the speech provider used on cache misses.
func WithSynthesizer(p Synthesizer) Option {
	return func(c *Config) {
		c.Provider = p
	}
}

func WithEncoder(enc Encoder) Option {
	return func(c *Config) {
		c.Encoder = enc
	}
}

func defaultConfig() *Config {
	return &Config{
		AssetsDir:  cache.DefaultDir,
		DBPath:     storage.DefaultDBFile,
		OutputDir:  "data",
		SampleRate: audio.DefaultSampleRate,
		Logger:     nil,
	}
}
