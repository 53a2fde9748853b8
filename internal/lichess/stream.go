package lichess

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/park285/lichess-bridge/internal/obslog"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

const (
	maxLineSize       = 1 << 20
	streamCloseWait   = 2 * time.Second
	streamLineBacklog = 16
)

// Stream yields events of one NDJSON stream in arrival order.
type Stream interface {
	Next(ctx context.Context) (Event, error)
	Close() error
}

type ndjsonStream struct {
	path   string
	client *fasthttp.Client
	resp   *fasthttp.Response
	conn   *connTracker

	lines    chan []byte
	done     chan struct{}
	finished chan struct{}
	err      error

	closeOnce sync.Once
}

// connTracker remembers the connection a stream client dialed, so Close can cut a blocked read.
type connTracker struct {
	dial DialFunc

	mu     sync.Mutex
	conn   net.Conn
	closed bool
}

func (t *connTracker) Dial(addr string) (net.Conn, error) {
	dial := t.dial
	if dial == nil {
		dial = fasthttp.Dial
	}
	conn, err := dial(addr)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		conn.Close()
		return nil, ErrStreamClosed
	}
	t.conn = conn
	return conn, nil
}

func (t *connTracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	if t.conn != nil {
		t.conn.Close()
	}
}

func (c *Client) openStream(ctx context.Context, path string) (Stream, error) {
	tracker := &connTracker{dial: c.dial}
	client := &fasthttp.Client{
		StreamResponseBody: true,
		MaxConnsPerHost:    1,
		WriteTimeout:       10 * time.Second,
		Dial:               tracker.Dial,
	}

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	c.prepare(req, fasthttp.MethodGet, path)
	req.Header.Set(fasthttp.HeaderAccept, "application/x-ndjson")

	resp := fasthttp.AcquireResponse()
	opened := make(chan error, 1)
	go func() { opened <- client.Do(req, resp) }()

	var err error
	select {
	case err = <-opened:
	case <-ctx.Done():
		tracker.Close()
		<-opened
		fasthttp.ReleaseResponse(resp)
		return nil, ctx.Err()
	}
	if err != nil {
		fasthttp.ReleaseResponse(resp)
		return nil, fmt.Errorf("%w: open %s: %w", ErrConnection, path, err)
	}

	if status := resp.StatusCode(); status < 200 || status >= 300 {
		body := resp.Body()
		streamErr := newStatusError(fasthttp.MethodGet, path, status, body)
		_ = resp.CloseBodyStream()
		fasthttp.ReleaseResponse(resp)
		tracker.Close()
		return nil, streamErr
	}

	s := &ndjsonStream{
		path:     path,
		client:   client,
		resp:     resp,
		conn:     tracker,
		lines:    make(chan []byte, streamLineBacklog),
		done:     make(chan struct{}),
		finished: make(chan struct{}),
	}
	body := resp.BodyStream()
	if body == nil {
		// small bodies may already be buffered in full
		body = bytes.NewReader(resp.Body())
	}
	go s.read(body)
	obslog.L().Debug("stream_open", zap.String("path", path))
	return s, nil
}

func (s *ndjsonStream) read(body io.Reader) {
	defer close(s.finished)
	defer close(s.lines)

	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for sc.Scan() {
		line := append([]byte(nil), sc.Bytes()...)
		select {
		case s.lines <- line:
		case <-s.done:
			s.err = ErrStreamClosed
			return
		}
	}

	select {
	case <-s.done:
		s.err = ErrStreamClosed
		return
	default:
	}
	if err := sc.Err(); err != nil {
		s.err = fmt.Errorf("%w: read %s: %w", ErrConnection, s.path, err)
		return
	}
	s.err = io.EOF
}

func (s *ndjsonStream) Next(ctx context.Context) (Event, error) {
	for {
		select {
		case <-ctx.Done():
			return Event{}, ctx.Err()
		case line, ok := <-s.lines:
			if !ok {
				return Event{}, s.err
			}
			line = bytes.TrimSpace(line)
			if len(line) == 0 {
				continue
			}
			var ev Event
			if err := json.Unmarshal(line, &ev); err != nil {
				obslog.L().Warn("stream_malformed_line",
					zap.String("path", s.path),
					zap.ByteString("line", line),
					zap.Error(err),
				)
				continue
			}
			return ev, nil
		}
	}
}

func (s *ndjsonStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		s.conn.Close()

		select {
		case <-s.finished:
		case <-time.After(streamCloseWait):
			err = errors.New("stream reader did not stop")
			return
		}
		_ = s.resp.CloseBodyStream()
		fasthttp.ReleaseResponse(s.resp)
		s.client.CloseIdleConnections()
		obslog.L().Debug("stream_closed", zap.String("path", s.path))
	})
	return err
}
