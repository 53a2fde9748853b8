package remoteengine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/park285/lichess-bridge/internal/obslog"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const (
	opStart   = "start"
	opRespond = "respond"
)

var ErrRemote = errors.New("remote engine error")

type request struct {
	ID     uint64   `json:"id"`
	Op     string   `json:"op"`
	GameID string   `json:"game_id"`
	White  *bool    `json:"white,omitempty"`
	Moves  []string `json:"moves,omitempty"`
}

type response struct {
	ID    uint64 `json:"id"`
	Move  string `json:"move"`
	Error string `json:"error,omitempty"`
}

// Client forwards engine calls to a websocket server, one call at a time on a single connection.
type Client struct {
	url         string
	dialTimeout time.Duration
	callTimeout time.Duration

	mu     sync.Mutex
	conn   *websocket.Conn
	nextID uint64
}

type Option func(*Client)

// WithCallTimeout bounds one request/reply round trip. Non-positive values keep the default.
func WithCallTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.callTimeout = d
		}
	}
}

func New(url string, opts ...Option) *Client {
	c := &Client{
		url:         strings.TrimSpace(url),
		dialTimeout: 10 * time.Second,
		callTimeout: 60 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect dials eagerly so configuration mistakes surface at startup.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ensureConn(ctx)
}

func (c *Client) ForGame(gameID string) *Game {
	return &Game{client: c, gameID: gameID}
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeConn(websocket.StatusNormalClosure, "close")
}

// Game binds the client to one game id.
type Game struct {
	client *Client
	gameID string
}

func (g *Game) StartGame(ctx context.Context, isWhite bool) (string, error) {
	white := isWhite
	return g.client.call(ctx, request{Op: opStart, GameID: g.gameID, White: &white})
}

func (g *Game) RespondTo(ctx context.Context, moves []string) (string, error) {
	return g.client.call(ctx, request{Op: opRespond, GameID: g.gameID, Moves: append([]string{}, moves...)})
}

func (c *Client) call(ctx context.Context, req request) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureConn(ctx); err != nil {
		return "", err
	}

	c.nextID++
	req.ID = c.nextID

	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	if err := wsjson.Write(callCtx, c.conn, &req); err != nil {
		_ = c.closeConn(websocket.StatusGoingAway, "write failure")
		return "", fmt.Errorf("%w: write %s: %w", ErrRemote, req.Op, err)
	}
	var resp response
	if err := wsjson.Read(callCtx, c.conn, &resp); err != nil {
		_ = c.closeConn(websocket.StatusGoingAway, "read failure")
		return "", fmt.Errorf("%w: read %s: %w", ErrRemote, req.Op, err)
	}
	if resp.ID != req.ID {
		_ = c.closeConn(websocket.StatusProtocolError, "id mismatch")
		return "", fmt.Errorf("%w: response id %d for request %d", ErrRemote, resp.ID, req.ID)
	}
	if resp.Error != "" {
		return "", fmt.Errorf("%w: %s", ErrRemote, resp.Error)
	}
	if resp.Move == "" {
		return "", fmt.Errorf("%w: empty move for %s", ErrRemote, req.Op)
	}
	return resp.Move, nil
}

func (c *Client) ensureConn(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}
	if c.url == "" {
		return fmt.Errorf("%w: no url configured", ErrRemote)
	}
	dialCtx, cancel := context.WithTimeout(ctx, c.dialTimeout)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, c.url, &websocket.DialOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		return fmt.Errorf("%w: dial %s: %w", ErrRemote, c.url, err)
	}
	c.conn = conn
	obslog.L().Info("remote_engine_connected", zap.String("url", c.url))
	return nil
}

func (c *Client) closeConn(code websocket.StatusCode, reason string) error {
	if c.conn == nil {
		return nil
	}
	defer func() { c.conn = nil }()
	return c.conn.Close(code, reason)
}
