package chess

import (
	"context"
	"fmt"
	"time"

	"github.com/park285/lichess-bridge/internal/chess/openingbook"
	"github.com/park285/lichess-bridge/internal/chess/uci"
	"github.com/park285/lichess-bridge/internal/obslog"
	"go.uber.org/zap"
)

const defaultDepth = 4

type EngineConfig struct {
	BinaryPath string
	Options    uci.Options
	Limits     uci.Limits
	// Capacity is the number of engine processes kept around.
	Capacity int
}

// Engine drives an external UCI binary. Each game gets its own Player on top of it.
type Engine struct {
	pool   *uci.Pool
	limits uci.Limits
	book   *openingbook.Book
}

type SearchResult struct {
	Move     string
	EvalCP   int
	Duration time.Duration
}

func NewEngine(cfg EngineConfig, book *openingbook.Book) (*Engine, error) {
	pool, err := uci.NewPool(uci.PoolConfig{
		BinaryPath: cfg.BinaryPath,
		Options:    cfg.Options,
		Capacity:   cfg.Capacity,
	})
	if err != nil {
		return nil, err
	}
	limits := cfg.Limits
	if limits.Depth <= 0 && limits.MoveTimeMillis <= 0 && limits.Nodes <= 0 {
		limits.Depth = defaultDepth
	}
	return &Engine{pool: pool, limits: limits, book: book}, nil
}

// ForGame returns a fresh per-game player.
func (e *Engine) ForGame(gameID string) *Player {
	return NewPlayer(gameID, e, e.book)
}

// BestMove searches the position reached by moves from the start position.
func (e *Engine) BestMove(ctx context.Context, moves []string) (SearchResult, error) {
	session, err := e.pool.Acquire(ctx)
	if err != nil {
		return SearchResult{}, fmt.Errorf("acquire engine: %w", err)
	}
	var releaseErr error
	defer func() {
		e.pool.Release(session, releaseErr)
	}()

	if err := session.NewGame(ctx); err != nil {
		releaseErr = err
		return SearchResult{}, err
	}

	start := time.Now()
	found, err := session.Search(ctx, moves, e.limits)
	if err != nil {
		releaseErr = err
		return SearchResult{}, err
	}
	if found.BestMove == "" || found.BestMove == "(none)" {
		return SearchResult{}, fmt.Errorf("engine returned no move")
	}

	res := SearchResult{Move: found.BestMove, EvalCP: found.ScoreCP, Duration: time.Since(start)}
	obslog.L().Debug("uci_search",
		zap.Int("plies", len(moves)),
		zap.String("bestmove", res.Move),
		zap.Int("eval_cp", res.EvalCP),
		zap.Int("depth", found.Depth),
		zap.Duration("took", res.Duration),
	)
	return res, nil
}

func (e *Engine) Close() error {
	if e == nil || e.pool == nil {
		return nil
	}
	return e.pool.Close()
}
