package chess

import "context"

// NullEngine answers every request with NullMove. It lets the bridge follow games without playing.
type NullEngine struct{}

func (NullEngine) StartGame(context.Context, bool) (string, error) { return NullMove, nil }
func (NullEngine) RespondTo(context.Context, []string) (string, error) { return NullMove, nil }
