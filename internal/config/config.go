package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	// Discord
	DiscordToken  string `env:"DISCORD_TOKEN"`
	CommandPrefix string `env:"COMMAND_PREFIX" envDefault:"!"`

	// Jingles
	IntroClip string `env:"INTRO_CLIP" envDefault:"Start.mp3"`
	OutroClip string `env:"OUTRO_CLIP" envDefault:"End.mp3"`

	// Audio
	DefaultVolume float64 `env:"DEFAULT_VOLUME" envDefault:"0.5"`
	FFmpegPath    string  `env:"FFMPEG_PATH" envDefault:"ffmpeg"`

	// Media resolution
	ResolveRate  float64 `env:"RESOLVE_RATE" envDefault:"1"`
	ResolveBurst int     `env:"RESOLVE_BURST" envDefault:"2"`

	// Sessions
	DataDir     string `env:"DATA_DIR" envDefault:"./data"`
	EventBuffer int    `env:"EVENT_BUFFER" envDefault:"32"`

	// Logging
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

func Load() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("No .env file found, using environment variables only")
	}
	return FromEnv()
}

// FromEnv reads the configuration from the process environment only.
func FromEnv() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	if c.DiscordToken == "" {
		return fmt.Errorf("DISCORD_TOKEN is required")
	}

	if strings.TrimSpace(c.CommandPrefix) == "" {
		return fmt.Errorf("COMMAND_PREFIX must not be empty")
	}

	if c.IntroClip == "" || c.OutroClip == "" {
		return fmt.Errorf("INTRO_CLIP and OUTRO_CLIP are required")
	}

	if c.DefaultVolume <= 0 || c.DefaultVolume > 2 {
		return fmt.Errorf("DEFAULT_VOLUME must be in (0, 2], got %v", c.DefaultVolume)
	}

	if c.ResolveBurst < 1 {
		return fmt.Errorf("RESOLVE_BURST must be at least 1")
	}

	if c.EventBuffer < 1 {
		return fmt.Errorf("EVENT_BUFFER must be at least 1")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error")
	}

	return nil
}
