package gamestore

import (
	"fmt"
	"strings"
	"time"

	"github.com/park285/lichess-bridge/internal/chess"
	"github.com/park285/lichess-bridge/internal/chess/openingbook"
)

// BuildPGN renders the record as PGN. Moves that do not replay are cut off.
func BuildPGN(rec *Record) string {
	if rec == nil {
		return ""
	}
	date := rec.StartedAt
	if date.IsZero() {
		date = time.Now()
	}
	result := rec.Result()

	var b strings.Builder
	b.WriteString("[Event \"Lichess bot game\"]\n")
	b.WriteString(fmt.Sprintf("[Site \"https://lichess.org/%s\"]\n", sanitizePGN(rec.GameID)))
	b.WriteString(fmt.Sprintf("[Date \"%04d.%02d.%02d\"]\n", date.Year(), int(date.Month()), date.Day()))
	b.WriteString(fmt.Sprintf("[White \"%s\"]\n", sanitizePGN(rec.White)))
	b.WriteString(fmt.Sprintf("[Black \"%s\"]\n", sanitizePGN(rec.Black)))
	b.WriteString(fmt.Sprintf("[Result \"%s\"]\n", result))
	if eco, title := openingbook.Name(rec.Moves); eco != "" {
		b.WriteString(fmt.Sprintf("[ECO \"%s\"]\n", eco))
		b.WriteString(fmt.Sprintf("[Opening \"%s\"]\n", sanitizePGN(title)))
	}
	if status := strings.TrimSpace(rec.Status); status != "" {
		b.WriteString(fmt.Sprintf("[Termination \"%s\"]\n", sanitizePGN(status)))
	}
	b.WriteString("\n")

	san := chess.SANMoves(rec.Moves)
	for i := 0; i < len(san); i += 2 {
		b.WriteString(fmt.Sprintf("%d. %s", i/2+1, san[i]))
		if i+1 < len(san) {
			b.WriteString(" ")
			b.WriteString(san[i+1])
		}
		b.WriteString(" ")
	}
	b.WriteString(result)
	return b.String()
}

func sanitizePGN(s string) string {
	s = strings.ReplaceAll(s, "\\", " ")
	s = strings.ReplaceAll(s, "\"", "'")
	return strings.TrimSpace(s)
}
