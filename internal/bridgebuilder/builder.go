package bridgebuilder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/park285/lichess-bridge/internal/chess"
	"github.com/park285/lichess-bridge/internal/chess/openingbook"
	"github.com/park285/lichess-bridge/internal/chess/uci"
	"github.com/park285/lichess-bridge/internal/config"
	"github.com/park285/lichess-bridge/internal/dispatch"
	"github.com/park285/lichess-bridge/internal/gamestore"
	"github.com/park285/lichess-bridge/internal/lichess"
	"github.com/park285/lichess-bridge/internal/msgcat"
	"github.com/park285/lichess-bridge/internal/obslog"
	"github.com/park285/lichess-bridge/internal/remoteengine"
	"go.uber.org/zap"
)

const connectTimeout = 10 * time.Second

// UserAgent names the bot account, as Lichess asks of bot clients.
func UserAgent(botName string) string {
	if botName == "" {
		return "lichess-bridge"
	}
	return "lichess-bridge/" + botName
}

// Deps is everything main needs to run the bridge.
type Deps struct {
	Client     *lichess.Client
	Dispatcher *dispatch.Dispatcher
	Messages   *msgcat.Catalog

	closers []func() error
}

// New wires the Lichess client, the move provider, the journal and the dispatcher from cfg.
// Anything opened before a failure is closed again.
func New(ctx context.Context, cfg *config.AppConfig, token string, opts ...lichess.Option) (_ *Deps, err error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: nil config", config.ErrConfiguration)
	}
	deps := &Deps{}
	defer func() {
		if err != nil {
			_ = deps.Close()
		}
	}()

	deps.Messages, err = msgcat.New(cfg.MessagesDir)
	if err != nil {
		return nil, fmt.Errorf("%w: load messages: %v", config.ErrConfiguration, err)
	}

	opts = append([]lichess.Option{lichess.WithUserAgent(UserAgent(cfg.BotName))}, opts...)
	deps.Client = lichess.NewClient(cfg.LichessBaseURL, token, opts...)

	provider, err := deps.buildProvider(ctx, cfg)
	if err != nil {
		return nil, err
	}

	journal, err := deps.buildJournal(ctx, cfg)
	if err != nil {
		return nil, err
	}

	deps.Dispatcher = dispatch.New(deps.Client, provider, dispatch.Options{
		BotName:       cfg.BotName,
		Mode:          dispatch.Mode(cfg.GameMode),
		MaxGames:      cfg.MaxConcurrentGames,
		DeclineReason: cfg.DeclineReason,
		Journal:       journal,
		Messages:      deps.Messages,
	})
	return deps, nil
}

func (d *Deps) buildProvider(ctx context.Context, cfg *config.AppConfig) (dispatch.Provider, error) {
	switch cfg.EngineMode {
	case config.EngineModeUCI:
		book, err := openingbook.Open(cfg.OpeningBookPath, cfg.OpeningMaxPly)
		if err != nil {
			return nil, fmt.Errorf("%w: opening book: %v", config.ErrConfiguration, err)
		}
		capacity := 1
		if cfg.GameMode == config.GameModeConcurrent {
			capacity = cfg.MaxConcurrentGames
		}
		engine, err := chess.NewEngine(chess.EngineConfig{
			BinaryPath: cfg.EnginePath,
			Options: uci.Options{
				Threads:    cfg.EngineThreads,
				HashMB:     cfg.EngineHashMB,
				SkillLevel: cfg.EngineSkillLevel,
				Elo:        cfg.EngineElo,
			},
			Limits: uci.Limits{
				Depth:          cfg.EngineDepth,
				MoveTimeMillis: cfg.EngineMoveTimeMillis,
				Nodes:          cfg.EngineNodes,
			},
			Capacity: capacity,
		}, book)
		if err != nil {
			return nil, fmt.Errorf("init engine: %w", err)
		}
		d.closers = append(d.closers, engine.Close)
		obslog.L().Info("engine_ready",
			zap.String("mode", cfg.EngineMode),
			zap.String("path", cfg.EnginePath),
			zap.Bool("book", book != nil),
			zap.Int("capacity", capacity))
		return dispatch.ProviderFunc(func(gameID string) dispatch.Mover { return engine.ForGame(gameID) }), nil

	case config.EngineModeRemote:
		client := remoteengine.New(cfg.EngineWSURL,
			remoteengine.WithCallTimeout(time.Duration(cfg.EngineWSTimeoutMS)*time.Millisecond))
		d.closers = append(d.closers, client.Close)
		cctx, cancel := context.WithTimeout(ctx, connectTimeout)
		defer cancel()
		if err := client.Connect(cctx); err != nil {
			return nil, fmt.Errorf("connect remote engine: %w", err)
		}
		obslog.L().Info("engine_ready", zap.String("mode", cfg.EngineMode), zap.String("url", cfg.EngineWSURL))
		return dispatch.ProviderFunc(func(gameID string) dispatch.Mover { return client.ForGame(gameID) }), nil

	case config.EngineModeNull:
		obslog.L().Warn("engine_null", zap.String("mode", cfg.EngineMode))
		return dispatch.ProviderFunc(func(string) dispatch.Mover { return chess.NullEngine{} }), nil
	}
	return nil, fmt.Errorf("%w: unknown ENGINE_MODE %q", config.ErrConfiguration, cfg.EngineMode)
}

func (d *Deps) buildJournal(ctx context.Context, cfg *config.AppConfig) (gamestore.Journal, error) {
	if cfg.RedisURL == "" && cfg.DatabaseURL == "" {
		return gamestore.Nop{}, nil
	}
	rec := &gamestore.Recorder{}
	d.closers = append(d.closers, rec.Close)

	cctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if cfg.RedisURL != "" {
		store, err := gamestore.DialStore(cctx, cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("init game registry: %w", err)
		}
		rec.Live = store
	}
	if cfg.DatabaseURL != "" {
		repo, err := gamestore.OpenRepository(cctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init game archive: %w", err)
		}
		rec.Archive = repo
	}
	obslog.L().Info("journal_ready", zap.Bool("redis", rec.Live != nil), zap.Bool("database", rec.Archive != nil))
	return rec, nil
}

// Close releases engines and storage in reverse order of creation.
func (d *Deps) Close() error {
	if d == nil {
		return nil
	}
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil
	return errors.Join(errs...)
}
