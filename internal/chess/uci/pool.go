package uci

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"

	"github.com/park285/lichess-bridge/internal/obslog"
	"go.uber.org/zap"
)

var ErrPoolClosed = errors.New("engine pool closed")

type PoolConfig struct {
	BinaryPath string
	Options    Options
	// Capacity bounds the number of engine processes. One per concurrent game is enough.
	Capacity int
}

// Pool hands out engine processes that share one option set.
type Pool struct {
	start    func(ctx context.Context) (*Session, error)
	capacity int

	mu       sync.Mutex
	closed   bool
	owned    map[*Session]struct{}
	starting int
	idle     chan *Session
}

func NewPool(cfg PoolConfig) (*Pool, error) {
	if cfg.BinaryPath == "" {
		return nil, errors.New("engine binary path required")
	}
	resolved, err := exec.LookPath(cfg.BinaryPath)
	if err != nil {
		return nil, fmt.Errorf("engine binary check: %w", err)
	}
	if err := validateOptions(cfg.Options); err != nil {
		return nil, err
	}
	opt := cfg.Options
	return newPool(cfg.Capacity, func(ctx context.Context) (*Session, error) {
		return NewSession(ctx, resolved, opt)
	}), nil
}

func newPool(capacity int, start func(ctx context.Context) (*Session, error)) *Pool {
	if capacity <= 0 {
		capacity = 1
	}
	return &Pool{
		start:    start,
		capacity: capacity,
		owned:    make(map[*Session]struct{}),
		idle:     make(chan *Session, capacity),
	}
}

// Acquire returns an idle process, starts a new one below capacity, or waits for a Release.
func (p *Pool) Acquire(ctx context.Context) (*Session, error) {
	for {
		select {
		case s := <-p.idle:
			if p.revive(ctx, s) {
				return s, nil
			}
			continue
		default:
		}

		s, full, err := p.grow(ctx)
		if err != nil {
			return nil, err
		}
		if !full {
			return s, nil
		}

		select {
		case s := <-p.idle:
			if p.revive(ctx, s) {
				return s, nil
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Release hands a session back. A non-nil err marks the process as unusable.
func (p *Pool) Release(s *Session, err error) {
	if s == nil {
		return
	}
	p.mu.Lock()
	_, owned := p.owned[s]
	closed := p.closed
	p.mu.Unlock()

	if !owned || closed || err != nil {
		p.discard(s)
		return
	}
	select {
	case p.idle <- s:
	default:
		p.discard(s)
	}
}

// Close stops idle processes. Sessions still out are stopped when released.
func (p *Pool) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	var errs []error
	for {
		select {
		case s := <-p.idle:
			p.forget(s)
			if err := s.Close(); err != nil {
				errs = append(errs, err)
			}
		default:
			return errors.Join(errs...)
		}
	}
}

func (p *Pool) revive(ctx context.Context, s *Session) bool {
	if err := s.Ready(ctx); err != nil {
		obslog.L().Warn("uci_session_stale", zap.Error(err))
		p.discard(s)
		return false
	}
	return true
}

// grow starts a process when below capacity. full reports that the caller must wait instead.
func (p *Pool) grow(ctx context.Context) (s *Session, full bool, err error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, false, ErrPoolClosed
	}
	if len(p.owned)+p.starting >= p.capacity {
		p.mu.Unlock()
		return nil, true, nil
	}
	p.starting++
	p.mu.Unlock()

	// The process outlives the request that spawned it.
	s, err = p.start(context.WithoutCancel(ctx))

	p.mu.Lock()
	p.starting--
	if err == nil {
		p.owned[s] = struct{}{}
	}
	p.mu.Unlock()
	if err != nil {
		return nil, false, err
	}
	obslog.L().Debug("uci_session_started", zap.Int("capacity", p.capacity))
	return s, false, nil
}

func (p *Pool) discard(s *Session) {
	p.forget(s)
	_ = s.Close()
}

func (p *Pool) forget(s *Session) {
	p.mu.Lock()
	delete(p.owned, s)
	p.mu.Unlock()
}
