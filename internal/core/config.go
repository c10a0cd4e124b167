package core

import (
	"time"
)

type Config struct {
	Spotify SpotifyConfig
	Tag     TagConfig
	Store   StoreConfig
	Server  ServerConfig
	Log     LogConfig
}

type SpotifyConfig struct {
	ClientID     string
	ClientSecret string
	// Market is an optional ISO 3166-1 alpha-2 country code applied to every
	// lookup that supports it. Empty means no restriction.
	Market string
}

type TagConfig struct {
	// Separator joins multi-valued tag inputs before storage.
	Separator string
	// ID3v24 selects ID3v2.4 instead of the default v2.3 for MP3 files.
	ID3v24 bool
}

type StoreConfig struct {
	Path                   string
	MaxTracks              int
	BloomFalsePositiveRate float64
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// RateLimitPerMinute caps API requests per client per minute. Zero
	// disables limiting.
	RateLimitPerMinute int
}

type LogConfig struct {
	Level  string
	Format string
}

func DefaultConfig() *Config {
	return &Config{
		Spotify: SpotifyConfig{},
		Tag: TagConfig{
			Separator: ", ",
		},
		Store: StoreConfig{
			Path:                   "./spotgrab.db",
			MaxTracks:              10000,
			BloomFalsePositiveRate: 0.001,
		},
		Server: ServerConfig{
			Host:               "0.0.0.0",
			Port:               8080,
			ReadTimeout:        10 * time.Second,
			WriteTimeout:       10 * time.Second,
			RateLimitPerMinute: 120,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
