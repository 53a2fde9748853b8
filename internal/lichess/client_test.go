package lichess

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
)

type seenRequest struct {
	Method      string
	Path        string
	Auth        string
	ContentType string
	UserAgent   string
	Body        string
}

type fakeLichess struct {
	mu       sync.Mutex
	requests []seenRequest
	routes   map[string]fasthttp.RequestHandler
}

func (f *fakeLichess) handle(ctx *fasthttp.RequestCtx) {
	f.mu.Lock()
	f.requests = append(f.requests, seenRequest{
		Method:      string(ctx.Method()),
		Path:        string(ctx.Path()),
		Auth:        string(ctx.Request.Header.Peek(fasthttp.HeaderAuthorization)),
		ContentType: string(ctx.Request.Header.ContentType()),
		UserAgent:   string(ctx.Request.Header.UserAgent()),
		Body:        string(ctx.Request.Body()),
	})
	h := f.routes[string(ctx.Path())]
	f.mu.Unlock()
	if h == nil {
		ctx.SetStatusCode(fasthttp.StatusOK)
		ctx.SetBodyString(`{"ok":true}`)
		return
	}
	h(ctx)
}

func (f *fakeLichess) seen() []seenRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]seenRequest(nil), f.requests...)
}

func newTestClient(t *testing.T, routes map[string]fasthttp.RequestHandler, opts ...Option) (*Client, *fakeLichess) {
	t.Helper()
	ln := fasthttputil.NewInmemoryListener()
	fake := &fakeLichess{routes: routes}
	srv := &fasthttp.Server{Handler: fake.handle}
	go srv.Serve(ln)
	t.Cleanup(func() { ln.Close() })

	opts = append([]Option{WithDial(func(string) (net.Conn, error) {
		return ln.Dial()
	})}, opts...)
	c := NewClient("http://lichess.test", "lip_token", opts...)
	return c, fake
}

func ndjson(lines ...string) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		ctx.SetContentType("application/x-ndjson")
		ctx.SetBodyStreamWriter(func(w *bufio.Writer) {
			for _, l := range lines {
				w.WriteString(l + "\n")
				w.Flush()
			}
		})
	}
}

func TestSubmitMoveSuppressesNullMove(t *testing.T) {
	c, fake := newTestClient(t, nil)
	ctx := context.Background()

	if err := c.SubmitMove(ctx, "g1", NullMove); err != nil {
		t.Fatalf("SubmitMove null: %v", err)
	}
	if n := len(fake.seen()); n != 0 {
		t.Fatalf("null move reached the wire: %d requests", n)
	}

	if err := c.SubmitMove(ctx, "g1", "e2e4"); err != nil {
		t.Fatalf("SubmitMove: %v", err)
	}
	got := fake.seen()
	if len(got) != 1 {
		t.Fatalf("expected one request, got %d", len(got))
	}
	if got[0].Method != "POST" || got[0].Path != "/api/bot/game/g1/move/e2e4" {
		t.Fatalf("unexpected request %+v", got[0])
	}
	if got[0].Auth != "Bearer lip_token" {
		t.Fatalf("missing bearer token: %q", got[0].Auth)
	}
}

func TestChallengeRequests(t *testing.T) {
	c, fake := newTestClient(t, nil)
	ctx := context.Background()

	if err := c.AcceptChallenge(ctx, "c1"); err != nil {
		t.Fatalf("AcceptChallenge: %v", err)
	}
	if err := c.DeclineChallenge(ctx, "c2", "later"); err != nil {
		t.Fatalf("DeclineChallenge: %v", err)
	}
	got := fake.seen()
	if len(got) != 2 {
		t.Fatalf("expected two requests, got %d", len(got))
	}
	if got[0].Path != "/api/challenge/c1/accept" {
		t.Fatalf("accept path %q", got[0].Path)
	}
	if got[1].Path != "/api/challenge/c2/decline" || got[1].Body != "reason=later" {
		t.Fatalf("decline request %+v", got[1])
	}
	if got[1].ContentType != "application/x-www-form-urlencoded" {
		t.Fatalf("decline content type %q", got[1].ContentType)
	}
}

func TestErrorClassification(t *testing.T) {
	c, _ := newTestClient(t, map[string]fasthttp.RequestHandler{
		"/api/challenge/gone/accept": func(ctx *fasthttp.RequestCtx) {
			ctx.SetStatusCode(fasthttp.StatusNotFound)
			ctx.SetBodyString(`{"error":"Not found"}`)
		},
		"/api/challenge/boom/accept": func(ctx *fasthttp.RequestCtx) {
			ctx.SetStatusCode(fasthttp.StatusBadGateway)
		},
	})
	ctx := context.Background()

	err := c.AcceptChallenge(ctx, "gone")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != 404 {
		t.Fatalf("expected 404 APIError, got %v", err)
	}
	if !ClientError(err) || errors.Is(err, ErrConnection) {
		t.Fatalf("404 must be a client error only: %v", err)
	}

	err = c.AcceptChallenge(ctx, "boom")
	if !errors.Is(err, ErrConnection) || ClientError(err) {
		t.Fatalf("502 must be a connection error: %v", err)
	}
}

func TestTransportFailureIsConnectionError(t *testing.T) {
	c := NewClient("http://lichess.test", "tok", WithDial(func(string) (net.Conn, error) {
		return nil, errors.New("refused")
	}))
	if err := c.AcceptChallenge(context.Background(), "c1"); !errors.Is(err, ErrConnection) {
		t.Fatalf("expected ErrConnection, got %v", err)
	}
	if _, err := c.StreamEvents(context.Background()); !errors.Is(err, ErrConnection) {
		t.Fatalf("expected ErrConnection from stream, got %v", err)
	}
}

func TestStreamEventsSkipsNoise(t *testing.T) {
	c, fake := newTestClient(t, map[string]fasthttp.RequestHandler{
		"/api/stream/event": ndjson(
			`{"type":"challenge","challenge":{"id":"c1","challenger":{"id":"bob","name":"bob"}}}`,
			``,
			`not json`,
			`{"type":"gameStart","game":{"id":"g1","gameId":"g1"}}`,
		),
	})
	ctx := context.Background()

	s, err := c.StreamEvents(ctx)
	if err != nil {
		t.Fatalf("StreamEvents: %v", err)
	}
	defer s.Close()

	ev, err := s.Next(ctx)
	if err != nil || ev.Type != EventChallenge || ev.Challenge.ID != "c1" || ev.Challenge.Challenger.Name != "bob" {
		t.Fatalf("first event %+v err=%v", ev, err)
	}
	ev, err = s.Next(ctx)
	if err != nil || ev.Type != EventGameStart || ev.GameStartID() != "g1" {
		t.Fatalf("second event %+v err=%v", ev, err)
	}
	if _, err := s.Next(ctx); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF, got %v", err)
	}
	if got := fake.seen(); got[0].Auth != "Bearer lip_token" {
		t.Fatalf("stream request without token: %+v", got[0])
	}
}

func TestStreamGameDecodesStates(t *testing.T) {
	c, _ := newTestClient(t, map[string]fasthttp.RequestHandler{
		"/api/bot/game/stream/g1": ndjson(
			`{"type":"gameFull","id":"g1","white":{"id":"bubik0pf","name":"bubik0pf"},"black":{"aiLevel":3},"state":{"type":"gameState","moves":"","status":"started"}}`,
			`{"type":"gameState","moves":"e2e4 e7e5","status":"started"}`,
		),
	})
	ctx := context.Background()

	s, err := c.StreamGame(ctx, "g1")
	if err != nil {
		t.Fatalf("StreamGame: %v", err)
	}
	defer s.Close()

	full, err := s.Next(ctx)
	if err != nil || full.Type != EventGameFull || full.White.Name != "bubik0pf" {
		t.Fatalf("gameFull %+v err=%v", full, err)
	}
	if full.Black.DisplayName() != "Stockfish" {
		t.Fatalf("ai opponent name %q", full.Black.DisplayName())
	}
	state, err := s.Next(ctx)
	if err != nil || state.Type != EventGameState || state.Moves != "e2e4 e7e5" {
		t.Fatalf("gameState %+v err=%v", state, err)
	}
	if _, err := s.Next(ctx); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func TestStreamOpenRejected(t *testing.T) {
	c, _ := newTestClient(t, map[string]fasthttp.RequestHandler{
		"/api/stream/event": func(ctx *fasthttp.RequestCtx) {
			ctx.SetStatusCode(fasthttp.StatusUnauthorized)
			ctx.SetBodyString(`{"error":"No such token"}`)
		},
	})
	_, err := c.StreamEvents(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != 401 {
		t.Fatalf("expected 401 APIError, got %v", err)
	}
}

func TestStreamCloseUnblocksReader(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	c, _ := newTestClient(t, map[string]fasthttp.RequestHandler{
		"/api/stream/event": func(ctx *fasthttp.RequestCtx) {
			ctx.SetBodyStreamWriter(func(w *bufio.Writer) {
				w.WriteString(`{"type":"gameStart","game":{"id":"g9"}}` + "\n")
				w.Flush()
				<-release
			})
		},
	})
	ctx := context.Background()

	s, err := c.StreamEvents(ctx)
	if err != nil {
		t.Fatalf("StreamEvents: %v", err)
	}
	ev, err := s.Next(ctx)
	if err != nil || ev.GameStartID() != "g9" {
		t.Fatalf("first event %+v err=%v", ev, err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if _, err := s.Next(waitCtx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline while the stream is idle, got %v", err)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := s.Next(ctx); !errors.Is(err, ErrStreamClosed) {
		t.Fatalf("expected ErrStreamClosed, got %v", err)
	}
}

func TestAccount(t *testing.T) {
	c, _ := newTestClient(t, map[string]fasthttp.RequestHandler{
		"/api/account": func(ctx *fasthttp.RequestCtx) {
			ctx.SetContentType("application/json")
			ctx.SetBodyString(`{"id":"bubik0pf","username":"bubik0pf","title":"BOT"}`)
		},
	})
	acc, err := c.Account(context.Background())
	if err != nil || acc.Username != "bubik0pf" || acc.Title != "BOT" {
		t.Fatalf("Account=%+v err=%v", acc, err)
	}
}

func TestUserAgent(t *testing.T) {
	c, fake := newTestClient(t, nil)
	if _, err := c.Account(context.Background()); err != nil {
		t.Fatalf("Account: %v", err)
	}
	c2, fake2 := newTestClient(t, nil, WithUserAgent("lichess-bridge/bubik0pf"))
	if _, err := c2.Account(context.Background()); err != nil {
		t.Fatalf("Account: %v", err)
	}
	if got := fake.seen()[0].UserAgent; got != "lichess-bridge" {
		t.Fatalf("default user agent %q", got)
	}
	if got := fake2.seen()[0].UserAgent; got != "lichess-bridge/bubik0pf" {
		t.Fatalf("user agent %q", got)
	}
}
