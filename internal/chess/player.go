package chess

import (
	"context"
	"sync"

	"github.com/park285/lichess-bridge/internal/chess/openingbook"
	"github.com/park285/lichess-bridge/internal/obslog"
	"go.uber.org/zap"
)

type searcher interface {
	BestMove(ctx context.Context, moves []string) (SearchResult, error)
}

// Player keeps the state of one game: our side and the history as we last saw it,
// including our own replies.
type Player struct {
	gameID string
	engine searcher
	book   *openingbook.Book

	mu    sync.Mutex
	white bool
	last  []string
}

func NewPlayer(gameID string, engine searcher, book *openingbook.Book) *Player {
	return &Player{gameID: gameID, engine: engine, book: book, last: []string{}}
}

// StartGame resets the game. White moves at once; black waits for the opponent.
func (p *Player) StartGame(ctx context.Context, isWhite bool) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.white = isWhite
	p.last = []string{}
	if !isWhite {
		return NullMove, nil
	}
	return p.play(ctx)
}

// Resume joins a game that is already under way with moves as its history. It answers
// like RespondTo would if the history had been seen ply by ply.
func (p *Player) Resume(ctx context.Context, isWhite bool, moves []string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	game, err := Replay(moves)
	if err != nil {
		return "", err
	}
	p.white = isWhite
	p.last = append([]string(nil), moves...)

	if Finished(game) || WhiteToMove(moves) != isWhite {
		return NullMove, nil
	}
	return p.play(ctx)
}

// RespondTo answers a cumulative history. A repeated history, a finished game, or a
// position where the opponent is to move all yield NullMove.
func (p *Player) RespondTo(ctx context.Context, moves []string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := CheckPlausibility(moves, p.last); err != nil {
		return "", err
	}
	if len(moves) == len(p.last) {
		return NullMove, nil
	}

	game, err := Replay(moves)
	if err != nil {
		return "", err
	}
	p.last = append([]string(nil), moves...)

	if Finished(game) {
		obslog.L().Debug("player_game_finished", zap.String("game_id", p.gameID), zap.String("outcome", string(game.Outcome())))
		return NullMove, nil
	}
	if WhiteToMove(moves) != p.white {
		return NullMove, nil
	}
	return p.play(ctx)
}

func (p *Player) play(ctx context.Context) (string, error) {
	if res, ok, err := p.book.Lookup(p.last); err != nil {
		obslog.L().Warn("opening_book_lookup_failed", zap.String("game_id", p.gameID), zap.Error(err))
	} else if ok {
		obslog.L().Debug("opening_book_move", zap.String("game_id", p.gameID), zap.String("move", res.Move), zap.Uint16("weight", res.Weight))
		p.last = append(p.last, res.Move)
		return res.Move, nil
	}

	res, err := p.engine.BestMove(ctx, p.last)
	if err != nil {
		return "", err
	}
	p.last = append(p.last, res.Move)
	return res.Move, nil
}
