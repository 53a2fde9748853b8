package openingbook

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	chesslib "github.com/corentings/chess/v2"
	"github.com/corentings/chess/v2/opening"
)

const DefaultMaxPly = 12

type Result struct {
	Move   string
	Weight uint16
}

// Book answers positions reached from the standard start position with Polyglot moves.
type Book struct {
	book   *chesslib.PolyglotBook
	maxPly int
	hasher *chesslib.ZobristHasher
}

// Open loads a Polyglot book from disk. An empty path yields a nil book, which never answers.
func Open(path string, maxPly int) (*Book, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open polyglot book %q: %w", path, err)
	}
	defer file.Close()

	b, err := Load(file, maxPly)
	if err != nil {
		return nil, fmt.Errorf("load polyglot book %q: %w", path, err)
	}
	return b, nil
}

func Load(r io.Reader, maxPly int) (*Book, error) {
	pb, err := chesslib.LoadFromReader(r)
	if err != nil {
		return nil, err
	}
	if maxPly <= 0 {
		maxPly = DefaultMaxPly
	}
	return &Book{book: pb, maxPly: maxPly, hasher: chesslib.NewZobristHasher()}, nil
}

// Lookup returns the heaviest legal book move for the side to move after moves.
func (b *Book) Lookup(moves []string) (Result, bool, error) {
	if b == nil || b.book == nil {
		return Result{}, false, nil
	}
	if len(moves) >= b.maxPly {
		return Result{}, false, nil
	}

	game, err := replay(moves)
	if err != nil {
		return Result{}, false, err
	}

	hashStr, err := b.hasher.HashPosition(game.FEN())
	if err != nil {
		return Result{}, false, fmt.Errorf("compute polyglot hash: %w", err)
	}
	entries := b.book.FindMoves(chesslib.ZobristHashToUint64(hashStr))
	if len(entries) == 0 {
		return Result{}, false, nil
	}

	candidates := make([]Result, 0, len(entries))
	for _, entry := range entries {
		move := chesslib.DecodeMove(entry.Move).ToMove()
		candidates = append(candidates, Result{Move: move.String(), Weight: entry.Weight})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Weight == candidates[j].Weight {
			return candidates[i].Move < candidates[j].Move
		}
		return candidates[i].Weight > candidates[j].Weight
	})

	for _, cand := range candidates {
		trial := game.Clone()
		if err := trial.PushNotationMove(cand.Move, chesslib.UCINotation{}, nil); err != nil {
			continue
		}
		return cand, true, nil
	}
	return Result{}, false, nil
}

var (
	ecoOnce sync.Once
	ecoBook *opening.BookECO
)

// Name classifies a UCI history by ECO code and title. Unknown lines return empty strings.
func Name(moves []string) (code, title string) {
	if len(moves) == 0 {
		return "", ""
	}
	game, err := replay(moves)
	if err != nil {
		return "", ""
	}
	ecoOnce.Do(func() { ecoBook = opening.NewBookECO() })
	if eco := ecoBook.Find(game.Moves()); eco != nil {
		return eco.Code(), eco.Title()
	}
	return "", ""
}

func replay(moves []string) (*chesslib.Game, error) {
	game := chesslib.NewGame()
	for _, mv := range moves {
		if err := game.PushNotationMove(mv, chesslib.UCINotation{}, nil); err != nil {
			return nil, fmt.Errorf("apply move %q: %w", mv, err)
		}
	}
	return game, nil
}
