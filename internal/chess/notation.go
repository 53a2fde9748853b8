package chess

import (
	"errors"
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"
)

// NullMove is the UCI "no move" token. It is never sent to the server.
const NullMove = "0000"

var (
	ErrImplausibleHistory = errors.New("implausible move history")
	ErrImplausibleMove    = errors.New("implausible move")
)

// IsNull reports whether move is the null-move sentinel.
func IsNull(move string) bool { return move == NullMove }

// SplitMoves splits a space-delimited UCI move list. Repeated separators collapse and
// an empty string yields an empty list.
func SplitMoves(moves string) []string {
	fields := strings.Fields(moves)
	if len(fields) == 0 {
		return []string{}
	}
	return fields
}

// CheckPlausibility validates a new cumulative history against the last one seen.
// The new list may repeat the old one or extend it by exactly one ply.
func CheckPlausibility(next, last []string) error {
	if len(next) < len(last) || len(next) > len(last)+1 {
		return fmt.Errorf("%w: have %d plies, got %d", ErrImplausibleHistory, len(last), len(next))
	}
	for i := range last {
		if last[i] != next[i] {
			return fmt.Errorf("%w: ply %d changed from %s to %s", ErrImplausibleHistory, i+1, last[i], next[i])
		}
	}
	if len(next) == len(last)+1 {
		return CheckMove(next[len(next)-1])
	}
	return nil
}

// CheckMove accepts regular (4 chars) and promotion (5 chars) UCI moves.
func CheckMove(move string) error {
	if n := len(move); n != 4 && n != 5 {
		return fmt.Errorf("%w: %q", ErrImplausibleMove, move)
	}
	return nil
}

// Replay applies UCI moves from the standard start position.
func Replay(moves []string) (*nchess.Game, error) {
	game := nchess.NewGame()
	for i, mv := range moves {
		if err := game.PushNotationMove(mv, nchess.UCINotation{}, nil); err != nil {
			return nil, fmt.Errorf("apply ply %d %q: %w", i+1, mv, err)
		}
	}
	return game, nil
}

// WhiteToMove reports whose turn it is after len(moves) plies from the start position.
func WhiteToMove(moves []string) bool { return len(moves)%2 == 0 }

// SANMoves converts a UCI history to SAN. Conversion stops at the first move that does not apply.
func SANMoves(moves []string) []string {
	game := nchess.NewGame()
	out := make([]string, 0, len(moves))
	for _, uci := range moves {
		pos := game.Position()
		mv, err := nchess.UCINotation{}.Decode(pos, uci)
		if err != nil {
			break
		}
		san := nchess.AlgebraicNotation{}.Encode(pos, mv)
		if err := game.Move(mv, nil); err != nil {
			break
		}
		out = append(out, san)
	}
	return out
}

// Finished reports whether the replayed game has an outcome.
func Finished(game *nchess.Game) bool {
	return game != nil && game.Outcome() != nchess.NoOutcome
}
