package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/park285/lichess-bridge/internal/bridgebuilder"
	appcfg "github.com/park285/lichess-bridge/internal/config"
	"github.com/park285/lichess-bridge/internal/obslog"
	"go.uber.org/zap"
)

func main() {
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	logger := obslog.L()
	defer func() { _ = logger.Sync() }()

	cfg, err := appcfg.Load()
	if err != nil {
		logger.Fatal("config_error", zap.Error(err))
	}
	token, err := appcfg.LoadToken(cfg.TokenPath)
	if err != nil {
		logger.Fatal("token_error", zap.String("path", cfg.TokenPath), zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := bridgebuilder.New(ctx, cfg, token)
	if err != nil {
		logger.Fatal("init_error", zap.Error(err))
	}

	checkAccount(ctx, deps, cfg.BotName)

	logger.Info("bridge_start",
		zap.String("base_url", cfg.LichessBaseURL),
		zap.String("bot", cfg.BotName),
		zap.String("game_mode", cfg.GameMode),
		zap.String("engine_mode", cfg.EngineMode))

	runErr := deps.Dispatcher.Run(ctx)
	if cerr := deps.Close(); cerr != nil {
		logger.Warn("close_error", zap.Error(cerr))
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		// Fatal exits with status 1.
		logger.Fatal("bridge_stopped", zap.Error(runErr))
	}
	logger.Info(deps.Messages.Line("bridge.shutdown", nil), zap.String("event", "bridge_shutdown"))
}

// checkAccount compares the token's account with BOT_NAME, which decides our color in every game.
func checkAccount(ctx context.Context, deps *bridgebuilder.Deps, botName string) {
	actx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	acc, err := deps.Client.Account(actx)
	if err != nil {
		obslog.L().Warn("account_check_failed", zap.Error(err))
		return
	}
	if !strings.EqualFold(acc.Username, botName) {
		obslog.L().Warn("bot_name_mismatch", zap.String("account", acc.Username), zap.String("bot_name", botName))
		return
	}
	obslog.L().Info("account_ok", zap.String("account", acc.Username), zap.String("title", acc.Title))
}
