package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

// ErrConfiguration marks fatal operator errors: a missing credential or invalid settings.
var ErrConfiguration = errors.New("configuration error")

const (
	GameModeSequential = "sequential"
	GameModeConcurrent = "concurrent"

	EngineModeUCI    = "uci"
	EngineModeRemote = "remote"
	EngineModeNull   = "null"
)

type AppConfig struct {
	LichessBaseURL string `env:"LICHESS_BASE_URL" envDefault:"https://lichess.org"`
	TokenPath      string `env:"LICHESS_TOKEN_PATH"`
	BotName        string `env:"BOT_NAME" envDefault:"bubik0pf"`

	GameMode           string `env:"GAME_MODE" envDefault:"sequential"`
	MaxConcurrentGames int    `env:"MAX_CONCURRENT_GAMES" envDefault:"1"`
	DeclineReason      string `env:"DECLINE_REASON" envDefault:"later"`

	EngineMode           string `env:"ENGINE_MODE" envDefault:"uci"`
	EnginePath           string `env:"ENGINE_PATH"`
	EngineWSURL          string `env:"ENGINE_WS_URL"`
	EngineDepth          int    `env:"ENGINE_DEPTH" envDefault:"4"`
	EngineMoveTimeMillis int    `env:"ENGINE_MOVETIME_MS" envDefault:"0"`
	EngineNodes          int    `env:"ENGINE_NODES" envDefault:"0"`
	EngineThreads        int    `env:"ENGINE_THREADS" envDefault:"1"`
	EngineHashMB         int    `env:"ENGINE_HASH_MB" envDefault:"64"`
	EngineSkillLevel     int    `env:"ENGINE_SKILL_LEVEL" envDefault:"-1"`
	EngineElo            int    `env:"ENGINE_ELO" envDefault:"0"`
	EngineWSTimeoutMS    int    `env:"ENGINE_WS_TIMEOUT_MS" envDefault:"30000"`

	OpeningBookPath string `env:"OPENING_BOOK_PATH"`
	OpeningMaxPly   int    `env:"OPENING_MAX_PLY" envDefault:"12"`

	RedisURL    string `env:"REDIS_URL"`
	DatabaseURL string `env:"DATABASE_URL"`

	MessagesDir string `env:"MESSAGES_DIR"`
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("%w: parse env: %v", ErrConfiguration, err)
	}

	cfg.LichessBaseURL = strings.TrimRight(strings.TrimSpace(cfg.LichessBaseURL), "/")
	cfg.BotName = strings.TrimSpace(cfg.BotName)
	cfg.GameMode = strings.ToLower(strings.TrimSpace(cfg.GameMode))
	cfg.EngineMode = strings.ToLower(strings.TrimSpace(cfg.EngineMode))
	cfg.EnginePath = strings.TrimSpace(cfg.EnginePath)
	cfg.EngineWSURL = strings.TrimSpace(cfg.EngineWSURL)
	cfg.RedisURL = strings.TrimSpace(cfg.RedisURL)
	cfg.DatabaseURL = strings.TrimSpace(cfg.DatabaseURL)

	if strings.TrimSpace(cfg.TokenPath) == "" {
		p, err := DefaultTokenPath()
		if err != nil {
			return nil, err
		}
		cfg.TokenPath = p
	}
	if cfg.MaxConcurrentGames <= 0 {
		cfg.MaxConcurrentGames = 1
	}
	if cfg.OpeningMaxPly <= 0 {
		cfg.OpeningMaxPly = 12
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AppConfig) validate() error {
	if c.LichessBaseURL == "" {
		return fmt.Errorf("%w: LICHESS_BASE_URL is required", ErrConfiguration)
	}
	if c.BotName == "" {
		return fmt.Errorf("%w: BOT_NAME is required", ErrConfiguration)
	}
	switch c.GameMode {
	case GameModeSequential, GameModeConcurrent:
	default:
		return fmt.Errorf("%w: GAME_MODE must be sequential or concurrent, got %q", ErrConfiguration, c.GameMode)
	}
	switch c.EngineMode {
	case EngineModeUCI:
		if c.EnginePath == "" {
			return fmt.Errorf("%w: ENGINE_PATH is required for ENGINE_MODE=uci", ErrConfiguration)
		}
		if c.EngineDepth <= 0 && c.EngineMoveTimeMillis <= 0 && c.EngineNodes <= 0 {
			return fmt.Errorf("%w: one of ENGINE_DEPTH, ENGINE_MOVETIME_MS or ENGINE_NODES must be positive", ErrConfiguration)
		}
	case EngineModeRemote:
		if c.EngineWSURL == "" {
			return fmt.Errorf("%w: ENGINE_WS_URL is required for ENGINE_MODE=remote", ErrConfiguration)
		}
		if c.EngineWSTimeoutMS <= 0 {
			return fmt.Errorf("%w: ENGINE_WS_TIMEOUT_MS must be positive", ErrConfiguration)
		}
	case EngineModeNull:
	default:
		return fmt.Errorf("%w: unknown ENGINE_MODE %q", ErrConfiguration, c.EngineMode)
	}
	return nil
}
