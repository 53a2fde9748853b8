package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/park285/lichess-bridge/internal/chess"
	"github.com/park285/lichess-bridge/internal/gamestore"
	"github.com/park285/lichess-bridge/internal/lichess"
	"github.com/park285/lichess-bridge/internal/msgcat"
	"github.com/park285/lichess-bridge/internal/obslog"
	"go.uber.org/zap"
)

const (
	DefaultBotName       = "bubik0pf"
	DefaultDeclineReason = "later"

	journalTimeout = 5 * time.Second
)

// Server is the part of the Lichess client the dispatcher drives.
type Server interface {
	StreamEvents(ctx context.Context) (lichess.Stream, error)
	StreamGame(ctx context.Context, gameID string) (lichess.Stream, error)
	AcceptChallenge(ctx context.Context, challengeID string) error
	DeclineChallenge(ctx context.Context, challengeID, reason string) error
	SubmitMove(ctx context.Context, gameID, move string) error
}

// Mover picks moves for one game. Whatever it returns is submitted verbatim;
// chess.NullMove means "nothing to play".
type Mover interface {
	StartGame(ctx context.Context, isWhite bool) (string, error)
	RespondTo(ctx context.Context, moves []string) (string, error)
}

// Resumer is implemented by movers that can join a game already in progress,
// as after a restart while a game was running.
type Resumer interface {
	Resume(ctx context.Context, isWhite bool, moves []string) (string, error)
}

type Provider interface {
	ForGame(gameID string) Mover
}

type ProviderFunc func(gameID string) Mover

func (f ProviderFunc) ForGame(gameID string) Mover { return f(gameID) }

type Mode string

const (
	ModeSequential Mode = "sequential"
	ModeConcurrent Mode = "concurrent"
)

type State int

const (
	StateWaitingForChallenge State = iota
	StateInGame
)

func (s State) String() string {
	switch s {
	case StateWaitingForChallenge:
		return "waiting_for_challenge"
	case StateInGame:
		return "in_game"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

type Options struct {
	BotName       string
	Mode          Mode
	MaxGames      int
	DeclineReason string
	Journal       gamestore.Journal
	Messages      *msgcat.Catalog
}

type Snapshot struct {
	State       State
	ActiveGames []string
}

// Dispatcher routes account events to challenge handling and game sessions.
type Dispatcher struct {
	server   Server
	provider Provider
	opts     Options

	mu     sync.Mutex
	games  map[string]struct{}
	admit  *admission
	fatal  error
	cancel context.CancelFunc

	wg sync.WaitGroup
}

func New(server Server, provider Provider, opts Options) *Dispatcher {
	if opts.BotName == "" {
		opts.BotName = DefaultBotName
	}
	if opts.Mode == "" {
		opts.Mode = ModeSequential
	}
	if opts.MaxGames <= 0 {
		opts.MaxGames = 1
	}
	if opts.DeclineReason == "" {
		opts.DeclineReason = DefaultDeclineReason
	}
	if opts.Journal == nil {
		opts.Journal = gamestore.Nop{}
	}
	return &Dispatcher{
		server:   server,
		provider: provider,
		opts:     opts,
		games:    make(map[string]struct{}),
		admit:    newAdmission(opts.MaxGames),
	}
}

func (d *Dispatcher) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	ids := make([]string, 0, len(d.games))
	for id := range d.games {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	st := StateWaitingForChallenge
	if len(ids) > 0 {
		st = StateInGame
	}
	return Snapshot{State: st, ActiveGames: ids}
}

// Run consumes the account stream until it fails or ctx is cancelled.
// Connection failures are returned; there is no reconnect.
func (d *Dispatcher) Run(ctx context.Context) error {
	stream, err := d.server.StreamEvents(ctx)
	if err != nil {
		return fmt.Errorf("open event stream: %w", err)
	}
	defer stream.Close()

	runCtx, cancel := context.WithCancel(ctx)
	d.mu.Lock()
	d.cancel = cancel
	d.mu.Unlock()
	defer d.wg.Wait()
	defer cancel()

	d.say("bridge_waiting", "bridge.waiting", nil)

	for {
		ev, err := stream.Next(runCtx)
		if err != nil {
			if fatal := d.fatalErr(); fatal != nil {
				return fatal
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("%w: event stream ended", lichess.ErrConnection)
			}
			return fmt.Errorf("read event stream: %w", err)
		}
		if err := d.handleEvent(runCtx, ev); err != nil {
			if fatal := d.fatalErr(); fatal != nil {
				return fatal
			}
			return err
		}
	}
}

func (d *Dispatcher) handleEvent(ctx context.Context, ev lichess.Event) error {
	switch ev.Type {
	case lichess.EventChallenge:
		return d.onChallenge(ctx, ev)
	case lichess.EventChallengeCanceled:
		if ev.Challenge != nil && ev.Challenge.ID != "" {
			d.mu.Lock()
			d.admit.release(ev.Challenge.ID)
			d.mu.Unlock()
			obslog.L().Info("challenge_canceled", zap.String("challenge_id", ev.Challenge.ID))
		}
		return nil
	case lichess.EventGameStart:
		gameID := ev.GameStartID()
		if gameID == "" {
			obslog.L().Warn("game_start_without_id")
			return nil
		}
		if !d.register(gameID) {
			obslog.L().Warn("game_already_running", zap.String("game_id", gameID))
			return nil
		}
		if d.opts.Mode == ModeConcurrent {
			d.wg.Add(1)
			go func() {
				defer d.wg.Done()
				if err := d.playGame(ctx, gameID); err != nil && ctx.Err() == nil {
					d.fail(err)
				}
			}()
			return nil
		}
		return d.playGame(ctx, gameID)
	default:
		obslog.L().Debug("event_ignored", zap.String("type", ev.Type))
		return nil
	}
}

func (d *Dispatcher) onChallenge(ctx context.Context, ev lichess.Event) error {
	if ev.Challenge == nil || ev.Challenge.ID == "" {
		obslog.L().Warn("challenge_without_id")
		return nil
	}
	id := ev.Challenge.ID
	challenger := ev.Challenge.Challenger.DisplayName()

	if d.opts.Mode == ModeConcurrent {
		d.mu.Lock()
		ok := d.admit.admit(len(d.games), id)
		d.mu.Unlock()
		if !ok {
			if err := d.server.DeclineChallenge(ctx, id, d.opts.DeclineReason); err != nil {
				return d.requestFailed("challenge_decline", err, zap.String("challenge_id", id))
			}
			d.say("challenge_decline", "challenge.declined",
				map[string]any{"Challenger": challenger, "Reason": d.opts.DeclineReason},
				zap.String("challenge_id", id))
			return nil
		}
	}

	if err := d.server.AcceptChallenge(ctx, id); err != nil {
		d.mu.Lock()
		d.admit.release(id)
		d.mu.Unlock()
		return d.requestFailed("challenge_accept", err, zap.String("challenge_id", id))
	}
	d.say("challenge_accept", "challenge.accepted",
		map[string]any{"Challenger": challenger},
		zap.String("challenge_id", id),
		zap.String("variant", ev.Challenge.Variant.Key),
		zap.Bool("rated", ev.Challenge.Rated))
	return nil
}

// playGame consumes one game stream until the server closes it. The game must be registered.
func (d *Dispatcher) playGame(ctx context.Context, gameID string) error {
	defer d.unregister(gameID)

	d.say("game_start", "game.start", map[string]any{"GameID": gameID}, zap.String("game_id", gameID))
	rec := gamestore.NewRecord(gameID)
	d.journal("begin", gameID, func(jctx context.Context) error { return d.opts.Journal.Begin(jctx, rec) })
	defer func() {
		rec.EndedAt = time.Now().UTC()
		d.journal("finish", gameID, func(jctx context.Context) error { return d.opts.Journal.Finish(jctx, rec) })
	}()

	stream, err := d.server.StreamGame(ctx, gameID)
	if err != nil {
		return fmt.Errorf("open game stream %s: %w", gameID, err)
	}
	defer stream.Close()

	mover := d.provider.ForGame(gameID)
	for {
		ev, err := stream.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("read game stream %s: %w", gameID, err)
		}
		if err := d.handleGameEvent(ctx, gameID, mover, rec, ev); err != nil {
			return err
		}
	}

	d.say("game_end", "game.over", map[string]any{"GameID": gameID},
		zap.String("game_id", gameID),
		zap.String("status", rec.Status),
		zap.Int("moves_submitted", rec.MovesSubmitted))
	return nil
}

func (d *Dispatcher) handleGameEvent(ctx context.Context, gameID string, mover Mover, rec *gamestore.Record, ev lichess.Event) error {
	switch ev.Type {
	case lichess.EventGameFull:
		isWhite := ev.White != nil && ev.White.Name == d.opts.BotName
		rec.White, rec.Black = ev.White.DisplayName(), ev.Black.DisplayName()
		rec.Color = gamestore.ColorBlack
		if isWhite {
			rec.Color = gamestore.ColorWhite
		}
		if ev.State != nil {
			rec.Moves = chess.SplitMoves(ev.State.Moves)
			rec.Status = ev.State.Status
		}
		d.say("game_color", "game.color", map[string]any{"GameID": gameID, "Color": rec.Color}, zap.String("game_id", gameID))

		var (
			move string
			err  error
		)
		if r, ok := mover.(Resumer); ok && len(rec.Moves) > 0 {
			obslog.L().Info("game_resume", zap.String("game_id", gameID), zap.Int("plies", len(rec.Moves)))
			move, err = r.Resume(ctx, isWhite, rec.Moves)
		} else {
			move, err = mover.StartGame(ctx, isWhite)
		}
		if err != nil {
			obslog.L().Error("engine_start_failed", zap.String("game_id", gameID), zap.Bool("white", isWhite), zap.Error(err))
			return nil
		}
		return d.submit(ctx, gameID, move, rec)

	case lichess.EventGameState:
		moves := chess.SplitMoves(ev.Moves)
		rec.Moves = moves
		rec.Status, rec.Winner = ev.Status, ev.Winner
		d.journal("update", gameID, func(jctx context.Context) error { return d.opts.Journal.Update(jctx, rec) })

		move, err := mover.RespondTo(ctx, moves)
		if err != nil {
			obslog.L().Error("engine_respond_failed", zap.String("game_id", gameID), zap.Int("plies", len(moves)), zap.Error(err))
			return nil
		}
		return d.submit(ctx, gameID, move, rec)

	default:
		obslog.L().Debug("game_event_ignored", zap.String("game_id", gameID), zap.String("type", ev.Type))
		return nil
	}
}

func (d *Dispatcher) submit(ctx context.Context, gameID, move string, rec *gamestore.Record) error {
	if err := d.server.SubmitMove(ctx, gameID, move); err != nil {
		return d.requestFailed("move_submit", err, zap.String("game_id", gameID), zap.String("move", move))
	}
	if !chess.IsNull(move) {
		rec.MovesSubmitted++
		obslog.L().Info("move_submit", zap.String("game_id", gameID), zap.String("move", move))
	}
	return nil
}

// requestFailed decides whether a one-shot request failure ends the daemon.
func (d *Dispatcher) requestFailed(op string, err error, fields ...zap.Field) error {
	if lichess.ClientError(err) {
		obslog.L().Warn(op+"_rejected", append(fields, zap.Error(err))...)
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (d *Dispatcher) register(gameID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.games[gameID]; ok {
		return false
	}
	d.admit.release(gameID)
	d.games[gameID] = struct{}{}
	return true
}

func (d *Dispatcher) unregister(gameID string) {
	d.mu.Lock()
	delete(d.games, gameID)
	idle := len(d.games) == 0
	d.mu.Unlock()
	if idle {
		d.say("bridge_waiting", "bridge.waiting", nil)
	}
}

func (d *Dispatcher) fail(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fatal == nil {
		d.fatal = err
	}
	if d.cancel != nil {
		d.cancel()
	}
}

func (d *Dispatcher) fatalErr() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fatal
}

func (d *Dispatcher) journal(op, gameID string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), journalTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		obslog.L().Warn("journal_failed", zap.String("op", op), zap.String("game_id", gameID), zap.Error(err))
	}
}

func (d *Dispatcher) say(event, key string, data map[string]any, fields ...zap.Field) {
	line := d.opts.Messages.Line(key, data)
	obslog.L().Info(line, append([]zap.Field{zap.String("event", event)}, fields...)...)
}
