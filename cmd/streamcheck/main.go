package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/park285/lichess-bridge/internal/config"
	"github.com/park285/lichess-bridge/internal/lichess"
)

func main() {
	baseURL := strings.TrimSpace(os.Getenv("LICHESS_BASE_URL"))
	if baseURL == "" {
		baseURL = lichess.DefaultBaseURL
	}
	tokenPath := strings.TrimSpace(os.Getenv("LICHESS_TOKEN_PATH"))
	if tokenPath == "" {
		p, err := config.DefaultTokenPath()
		if err != nil {
			log.Fatal(err)
		}
		tokenPath = p
	}
	token, err := config.LoadToken(tokenPath)
	if err != nil {
		log.Fatal(err)
	}

	client := lichess.NewClient(baseURL, token, lichess.WithTimeout(8*time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	acc, err := client.Account(ctx)
	cancel()
	if err != nil {
		log.Printf("/api/account error: %v", err)
	} else {
		log.Printf("/api/account ok: id=%s username=%s title=%s", acc.ID, acc.Username, acc.Title)
	}

	// Observe for a short window
	wctx, wcancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer wcancel()
	stream, err := client.StreamEvents(wctx)
	if err != nil {
		log.Printf("event stream error: %v", err)
		return
	}
	defer stream.Close()

	for {
		ev, err := stream.Next(wctx)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, context.DeadlineExceeded) {
				return
			}
			log.Printf("event stream read: %v", err)
			return
		}
		switch ev.Type {
		case lichess.EventChallenge:
			if ev.Challenge != nil {
				fmt.Printf("challenge id=%s from=%s variant=%s rated=%t\n",
					ev.Challenge.ID, ev.Challenge.Challenger.DisplayName(), ev.Challenge.Variant.Key, ev.Challenge.Rated)
			}
		case lichess.EventGameStart, lichess.EventGameFinish:
			fmt.Printf("%s game=%s\n", ev.Type, ev.GameStartID())
		default:
			fmt.Printf("event type=%s\n", ev.Type)
		}
	}
}
