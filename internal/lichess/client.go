package lichess

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/park285/lichess-bridge/internal/obslog"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

const DefaultBaseURL = "https://lichess.org"

// NullMove is never sent to the server.
const NullMove = "0000"

// DialFunc opens the transport connection for a host:port address.
type DialFunc func(addr string) (net.Conn, error)

// Client talks to the Lichess bot API. Requests are one-shot and never retried.
type Client struct {
	baseURL string
	token   string
	http    *fasthttp.Client
	dial    DialFunc

	defaultTimeout time.Duration
	userAgent      string
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.defaultTimeout = d }
}

// WithDial replaces the network dialer for requests and streams alike.
func WithDial(dial DialFunc) Option {
	return func(c *Client) {
		c.dial = dial
		c.http.Dial = fasthttp.DialFunc(dial)
	}
}

func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

func NewClient(baseURL, token string, opts ...Option) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		token:          token,
		http:           &fasthttp.Client{ReadTimeout: 15 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 16},
		defaultTimeout: 15 * time.Second,
		userAgent:      "lichess-bridge",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StreamEvents opens the account event stream. It never ends on its own.
func (c *Client) StreamEvents(ctx context.Context) (Stream, error) {
	return c.openStream(ctx, "/api/stream/event")
}

// StreamGame opens the per-game state stream. Next returns io.EOF once the server closes it.
func (c *Client) StreamGame(ctx context.Context, gameID string) (Stream, error) {
	return c.openStream(ctx, "/api/bot/game/stream/"+url.PathEscape(gameID))
}

func (c *Client) AcceptChallenge(ctx context.Context, challengeID string) error {
	return c.do(ctx, fasthttp.MethodPost, "/api/challenge/"+url.PathEscape(challengeID)+"/accept", nil, nil)
}

func (c *Client) DeclineChallenge(ctx context.Context, challengeID, reason string) error {
	var form *fasthttp.Args
	if reason != "" {
		form = fasthttp.AcquireArgs()
		defer fasthttp.ReleaseArgs(form)
		form.Set("reason", reason)
	}
	return c.do(ctx, fasthttp.MethodPost, "/api/challenge/"+url.PathEscape(challengeID)+"/decline", form, nil)
}

// SubmitMove plays a UCI move. The null move is swallowed without any request.
func (c *Client) SubmitMove(ctx context.Context, gameID, move string) error {
	if move == NullMove {
		obslog.L().Debug("move_suppressed", zap.String("game_id", gameID))
		return nil
	}
	return c.do(ctx, fasthttp.MethodPost, "/api/bot/game/"+url.PathEscape(gameID)+"/move/"+url.PathEscape(move), nil, nil)
}

func (c *Client) Account(ctx context.Context) (Account, error) {
	var acc Account
	if err := c.do(ctx, fasthttp.MethodGet, "/api/account", nil, &acc); err != nil {
		return Account{}, err
	}
	return acc, nil
}

func (c *Client) prepare(req *fasthttp.Request, method, path string) {
	req.Header.SetMethod(method)
	req.SetRequestURI(c.baseURL + path)
	req.Header.Set(fasthttp.HeaderAuthorization, "Bearer "+c.token)
	req.Header.SetUserAgent(c.userAgent)
}

func (c *Client) do(ctx context.Context, method, path string, form *fasthttp.Args, out any) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	c.prepare(req, method, path)
	if form != nil {
		req.Header.SetContentType("application/x-www-form-urlencoded")
		req.SetBody(form.QueryString())
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.http.DoDeadline(req, resp, c.computeDeadline(ctx)); err != nil {
		return fmt.Errorf("%w: %s %s: %w", ErrConnection, method, path, err)
	}

	status := resp.StatusCode()
	if status < 200 || status >= 300 {
		return newStatusError(method, path, status, resp.Body())
	}
	if out != nil {
		if err := json.Unmarshal(resp.Body(), out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func (c *Client) computeDeadline(ctx context.Context) time.Time {
	if dl, ok := ctx.Deadline(); ok {
		clientDL := time.Now().Add(c.defaultTimeout)
		if dl.Before(clientDL) {
			return dl
		}
		return clientDL
	}
	return time.Now().Add(c.defaultTimeout)
}
