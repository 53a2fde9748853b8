package gamestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/park285/lichess-bridge/internal/chess"
	"github.com/park285/lichess-bridge/internal/chess/openingbook"
)

const schema = `CREATE TABLE IF NOT EXISTS bridge_games (
    game_id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL,
    bot_color TEXT NOT NULL,
    white_name TEXT NOT NULL,
    black_name TEXT NOT NULL,
    status TEXT NOT NULL,
    winner TEXT NOT NULL,
    result TEXT NOT NULL,
    eco TEXT NOT NULL,
    opening TEXT NOT NULL,
    moves_uci TEXT NOT NULL,
    moves_san TEXT NOT NULL,
    pgn TEXT NOT NULL,
    moves_submitted INTEGER NOT NULL,
    started_at TIMESTAMP NOT NULL,
    ended_at TIMESTAMP NOT NULL,
    duration_ms BIGINT NOT NULL
)`

// Repository archives finished games in PostgreSQL or SQLite.
type Repository struct {
	db     *sql.DB
	driver string
}

// OpenRepository picks the driver from the URL scheme: postgres:// or postgresql://
// for PostgreSQL, sqlite://<path> for SQLite.
func OpenRepository(ctx context.Context, databaseURL string) (*Repository, error) {
	databaseURL = strings.TrimSpace(databaseURL)
	if databaseURL == "" {
		return nil, fmt.Errorf("database url required")
	}

	var (
		driver string
		dsn    string
	)
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		driver, dsn = "postgres", databaseURL
	case strings.HasPrefix(databaseURL, "sqlite://"):
		path := filepath.Clean(strings.TrimPrefix(databaseURL, "sqlite://"))
		driver, dsn = "sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	default:
		return nil, fmt.Errorf("unsupported database url scheme: %s", databaseURL)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s db: %w", driver, err)
	}
	if driver == "postgres" {
		db.SetMaxOpenConns(4)
		db.SetMaxIdleConns(2)
		db.SetConnMaxLifetime(30 * time.Minute)
	} else {
		db.SetMaxOpenConns(1)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s db: %w", driver, err)
	}

	r := &Repository{db: db, driver: driver}
	if err := r.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Repository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate bridge_games: %w", err)
	}
	return nil
}

func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// SaveResult upserts a finished game.
func (r *Repository) SaveResult(ctx context.Context, rec *Record) error {
	if r == nil || r.db == nil || rec == nil {
		return nil
	}

	san := chess.SANMoves(rec.Moves)
	eco, title := openingbook.Name(rec.Moves)
	pgn := BuildPGN(rec)

	movesUCIRaw, _ := json.Marshal(rec.Moves)
	movesSANRaw, _ := json.Marshal(san)

	ended := rec.EndedAt
	if ended.IsZero() {
		ended = time.Now().UTC()
	}

	q := `INSERT INTO bridge_games (
        game_id, session_id, bot_color, white_name, black_name,
        status, winner, result, eco, opening,
        moves_uci, moves_san, pgn, moves_submitted,
        started_at, ended_at, duration_ms
      ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17
      ) ON CONFLICT (game_id) DO UPDATE SET
        session_id=EXCLUDED.session_id,
        bot_color=EXCLUDED.bot_color,
        white_name=EXCLUDED.white_name,
        black_name=EXCLUDED.black_name,
        status=EXCLUDED.status,
        winner=EXCLUDED.winner,
        result=EXCLUDED.result,
        eco=EXCLUDED.eco,
        opening=EXCLUDED.opening,
        moves_uci=EXCLUDED.moves_uci,
        moves_san=EXCLUDED.moves_san,
        pgn=EXCLUDED.pgn,
        moves_submitted=EXCLUDED.moves_submitted,
        started_at=EXCLUDED.started_at,
        ended_at=EXCLUDED.ended_at,
        duration_ms=EXCLUDED.duration_ms`

	_, err := r.db.ExecContext(ctx, r.rebind(q),
		rec.GameID, rec.SessionID, rec.Color,
		rec.White, rec.Black,
		rec.Status, rec.Winner, rec.Result(), eco, title,
		string(movesUCIRaw), string(movesSANRaw), pgn, rec.MovesSubmitted,
		rec.StartedAt.UTC(), ended.UTC(), rec.Duration().Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("save game %s: %w", rec.GameID, err)
	}
	return nil
}

// rebind turns $N placeholders into SQLite's ?N form.
func (r *Repository) rebind(q string) string {
	if r.driver == "sqlite" {
		return strings.ReplaceAll(q, "$", "?")
	}
	return q
}
