package bridgebuilder

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/park285/lichess-bridge/internal/config"
)

func baseConfig() *config.AppConfig {
	return &config.AppConfig{
		LichessBaseURL:     "http://lichess.test",
		BotName:            "bubik0pf",
		GameMode:           config.GameModeSequential,
		MaxConcurrentGames: 1,
		DeclineReason:      "later",
		EngineMode:         config.EngineModeNull,
		OpeningMaxPly:      12,
	}
}

func TestNewWithNullEngineAndJournal(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()

	cfg := baseConfig()
	cfg.RedisURL = fmt.Sprintf("redis://%s/0", mr.Addr())
	cfg.DatabaseURL = "sqlite://" + filepath.Join(t.TempDir(), "bridge.db")

	deps, err := New(context.Background(), cfg, "token")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if deps.Client == nil || deps.Dispatcher == nil || deps.Messages == nil {
		t.Fatalf("incomplete deps: %+v", deps)
	}
	if len(deps.closers) != 1 {
		t.Fatalf("expected the journal closer, got %d", len(deps.closers))
	}
	if err := deps.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestNewFailsOnUnreachableRemoteEngine(t *testing.T) {
	cfg := baseConfig()
	cfg.EngineMode = config.EngineModeRemote
	cfg.EngineWSURL = "ws://127.0.0.1:1/engine"

	if _, err := New(context.Background(), cfg, "token"); err == nil {
		t.Fatalf("expected connect error")
	}
}

func TestNewRejectsUnknownEngineMode(t *testing.T) {
	cfg := baseConfig()
	cfg.EngineMode = "magic"
	_, err := New(context.Background(), cfg, "token")
	if !errors.Is(err, config.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestNewFailsOnBadDatabaseURL(t *testing.T) {
	cfg := baseConfig()
	cfg.DatabaseURL = "mysql://nope"
	if _, err := New(context.Background(), cfg, "token"); err == nil {
		t.Fatalf("expected archive error")
	}
}

func TestUserAgentNamesBot(t *testing.T) {
	if got := UserAgent("bubik0pf"); got != "lichess-bridge/bubik0pf" {
		t.Fatalf("UserAgent=%q", got)
	}
	if got := UserAgent(""); got != "lichess-bridge" {
		t.Fatalf("UserAgent without bot=%q", got)
	}
}
