package gamestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	ColorWhite = "white"
	ColorBlack = "black"
)

// Record is what the bridge remembers about one game session.
type Record struct {
	SessionID      string    `json:"session_id"`
	GameID         string    `json:"game_id"`
	White          string    `json:"white"`
	Black          string    `json:"black"`
	Color          string    `json:"color"`
	Moves          []string  `json:"moves"`
	Status         string    `json:"status"`
	Winner         string    `json:"winner,omitempty"`
	MovesSubmitted int       `json:"moves_submitted"`
	StartedAt      time.Time `json:"started_at"`
	EndedAt        time.Time `json:"ended_at,omitzero"`
}

func NewRecord(gameID string) *Record {
	return &Record{
		SessionID: uuid.NewString(),
		GameID:    gameID,
		Moves:     []string{},
		Status:    "started",
		StartedAt: time.Now().UTC(),
	}
}

// Result maps the final status to a PGN result token.
func (r *Record) Result() string {
	switch strings.ToLower(r.Winner) {
	case ColorWhite:
		return "1-0"
	case ColorBlack:
		return "0-1"
	}
	switch r.Status {
	case "draw", "stalemate", "outoftime", "timeout":
		return "1/2-1/2"
	}
	return "*"
}

func (r *Record) Duration() time.Duration {
	if r.EndedAt.IsZero() || r.EndedAt.Before(r.StartedAt) {
		return 0
	}
	return r.EndedAt.Sub(r.StartedAt)
}

// Journal receives the lifecycle of every game session.
type Journal interface {
	Begin(ctx context.Context, rec *Record) error
	Update(ctx context.Context, rec *Record) error
	Finish(ctx context.Context, rec *Record) error
}

type Nop struct{}

func (Nop) Begin(context.Context, *Record) error  { return nil }
func (Nop) Update(context.Context, *Record) error { return nil }
func (Nop) Finish(context.Context, *Record) error { return nil }

// Recorder fans a session out to the live registry and the archive. Either may be nil.
type Recorder struct {
	Live    *Store
	Archive *Repository
}

func (r *Recorder) Begin(ctx context.Context, rec *Record) error {
	if r.Live == nil {
		return nil
	}
	return r.Live.Begin(ctx, rec)
}

func (r *Recorder) Update(ctx context.Context, rec *Record) error {
	if r.Live == nil {
		return nil
	}
	return r.Live.Update(ctx, rec)
}

func (r *Recorder) Finish(ctx context.Context, rec *Record) error {
	var errs []error
	if r.Live != nil {
		if err := r.Live.Finish(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	if r.Archive != nil {
		if err := r.Archive.SaveResult(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Recorder) Close() error {
	var errs []error
	if r.Live != nil {
		errs = append(errs, r.Live.Close())
	}
	if r.Archive != nil {
		errs = append(errs, r.Archive.Close())
	}
	return errors.Join(errs...)
}
