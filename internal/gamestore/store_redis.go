package gamestore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	ttlGame   = 24 * time.Hour
	keyActive = "bridge:active"
)

// Store keeps running games in Redis so operators can see what the bridge is playing.
type Store struct{ rdb *redis.Client }

// DialStore connects to REDIS_URL and checks the connection.
func DialStore(ctx context.Context, redisURL string) (*Store, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("redis url required")
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Store{rdb: rdb}, nil
}

func (s *Store) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}

func (s *Store) keyGame(gameID string) string { return "bridge:game:" + strings.TrimSpace(gameID) }

func (s *Store) Save(ctx context.Context, rec *Record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, s.keyGame(rec.GameID), raw, ttlGame).Err()
}

func (s *Store) Load(ctx context.Context, gameID string) (*Record, error) {
	raw, err := s.rdb.Get(ctx, s.keyGame(gameID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Active lists the ids of games that began and have not finished.
func (s *Store) Active(ctx context.Context) ([]string, error) {
	ids, err := s.rdb.SMembers(ctx, keyActive).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) Begin(ctx context.Context, rec *Record) error {
	if err := s.Save(ctx, rec); err != nil {
		return err
	}
	if err := s.rdb.SAdd(ctx, keyActive, rec.GameID).Err(); err != nil {
		return err
	}
	// refresh TTL of the index
	_ = s.rdb.Expire(ctx, keyActive, ttlGame).Err()
	return nil
}

func (s *Store) Update(ctx context.Context, rec *Record) error {
	return s.Save(ctx, rec)
}

func (s *Store) Finish(ctx context.Context, rec *Record) error {
	if err := s.Save(ctx, rec); err != nil {
		return err
	}
	return s.rdb.SRem(ctx, keyActive, rec.GameID).Err()
}
