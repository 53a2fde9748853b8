package uci

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/park285/lichess-bridge/internal/obslog"
	"go.uber.org/zap"
)

const (
	handshakeTimeout = 4 * time.Second
	readyTimeout     = 4 * time.Second
	quitGrace        = time.Second
	lineBacklog      = 256
	mateScore        = 30000
)

// ErrEngineExited is returned once the engine's output has ended.
var ErrEngineExited = errors.New("uci engine exited")

// Options are sent with setoption after the handshake. Zero leaves the engine default;
// SkillLevel uses a negative value for that.
type Options struct {
	Threads    int
	HashMB     int
	SkillLevel int
	Elo        int
}

// Limits end a search. At least one must be positive.
type Limits struct {
	Depth          int
	MoveTimeMillis int
	Nodes          int
}

// Result is the outcome of one search. ScoreCP is from the side to move; mates are
// reported as plus or minus 30000.
type Result struct {
	BestMove string
	ScoreCP  int
	Depth    int
}

// Session is one engine process. Searches are serialised.
type Session struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser

	lines      chan string
	readErr    error
	done       chan struct{}
	readerDone chan struct{}

	writeMu   sync.Mutex
	searchMu  sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// NewSession starts binaryPath and completes the uci handshake.
func NewSession(ctx context.Context, binaryPath string, opt Options) (*Session, error) {
	if err := validateOptions(opt); err != nil {
		return nil, err
	}
	cmd := exec.Command(binaryPath)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("engine stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		_ = stdin.Close()
		return nil, fmt.Errorf("engine stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		return nil, fmt.Errorf("start engine %s: %w", binaryPath, err)
	}
	return newSession(ctx, cmd, stdin, stdout, opt)
}

// newSession drives an engine over the given pipes. cmd may be nil.
func newSession(ctx context.Context, cmd *exec.Cmd, stdin io.WriteCloser, stdout io.Reader, opt Options) (*Session, error) {
	s := &Session{
		cmd:        cmd,
		stdin:      stdin,
		lines:      make(chan string, lineBacklog),
		done:       make(chan struct{}),
		readerDone: make(chan struct{}),
	}
	go s.readLoop(stdout)

	if err := s.handshake(ctx, opt); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Session) readLoop(stdout io.Reader) {
	defer close(s.readerDone)
	defer close(s.lines)

	sc := bufio.NewScanner(stdout)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		select {
		case s.lines <- line:
		case <-s.done:
			s.readErr = ErrEngineExited
			return
		}
	}
	if err := sc.Err(); err != nil {
		s.readErr = fmt.Errorf("%w: %w", ErrEngineExited, err)
		return
	}
	s.readErr = ErrEngineExited
}

func (s *Session) handshake(ctx context.Context, opt Options) error {
	hctx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()

	if err := s.send("uci"); err != nil {
		return err
	}
	if err := s.waitFor(hctx, "uciok"); err != nil {
		return fmt.Errorf("uci handshake: %w", err)
	}
	for _, cmd := range optionCommands(opt) {
		if err := s.send(cmd); err != nil {
			return err
		}
	}
	return s.Ready(ctx)
}

// Ready round-trips isready. The pool uses it to check idle processes.
func (s *Session) Ready(ctx context.Context) error {
	rctx, cancel := context.WithTimeout(ctx, readyTimeout)
	defer cancel()
	if err := s.send("isready"); err != nil {
		return err
	}
	if err := s.waitFor(rctx, "readyok"); err != nil {
		return fmt.Errorf("isready: %w", err)
	}
	return nil
}

// NewGame clears engine state between unrelated positions.
func (s *Session) NewGame(ctx context.Context) error {
	if err := s.send("ucinewgame"); err != nil {
		return err
	}
	return s.Ready(ctx)
}

// Search plays out moves from the start position and searches the result.
func (s *Session) Search(ctx context.Context, moves []string, limits Limits) (Result, error) {
	goCmd, err := goCommand(limits)
	if err != nil {
		return Result{}, err
	}

	s.searchMu.Lock()
	defer s.searchMu.Unlock()

	if err := s.send(positionCommand(moves)); err != nil {
		return Result{}, err
	}
	if err := s.send(goCmd); err != nil {
		return Result{}, err
	}

	sctx, cancel := context.WithTimeout(ctx, searchBudget(limits))
	defer cancel()

	var res Result
	for {
		line, err := s.next(sctx)
		if err != nil {
			obslog.L().Warn("uci_search_aborted", zap.Int("plies", len(moves)), zap.String("go", goCmd), zap.Error(err))
			return Result{}, fmt.Errorf("search: %w", err)
		}
		switch {
		case strings.HasPrefix(line, "info "):
			readInfo(line, &res)
		case strings.HasPrefix(line, "bestmove"):
			if f := strings.Fields(line); len(f) >= 2 {
				res.BestMove = f[1]
			}
			return res, nil
		}
	}
}

// Close asks the engine to quit and kills it if it does not.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.send("quit")
		_ = s.stdin.Close()

		select {
		case <-s.readerDone:
		case <-time.After(quitGrace):
			if s.cmd != nil && s.cmd.Process != nil {
				_ = s.cmd.Process.Kill()
			}
			<-s.readerDone
		}
		if s.cmd != nil {
			if err := s.cmd.Wait(); err != nil {
				var exitErr *exec.ExitError
				if !errors.As(err, &exitErr) {
					s.closeErr = err
				}
			}
		}
	})
	return s.closeErr
}

func (s *Session) send(line string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := io.WriteString(s.stdin, line+"\n"); err != nil {
		return fmt.Errorf("write %q: %w", line, err)
	}
	return nil
}

func (s *Session) next(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-s.lines:
		if !ok {
			return "", s.readErr
		}
		return line, nil
	}
}

func (s *Session) waitFor(ctx context.Context, token string) error {
	for {
		line, err := s.next(ctx)
		if err != nil {
			return err
		}
		if line == token {
			return nil
		}
	}
}

func validateOptions(opt Options) error {
	switch {
	case opt.Threads < 0:
		return fmt.Errorf("threads must be >= 0: %d", opt.Threads)
	case opt.HashMB < 0:
		return fmt.Errorf("hash size must be >= 0: %d", opt.HashMB)
	case opt.SkillLevel > 20:
		return fmt.Errorf("skill level %d out of range 0-20", opt.SkillLevel)
	case opt.Elo < 0:
		return fmt.Errorf("elo must be >= 0: %d", opt.Elo)
	}
	return nil
}

func optionCommands(opt Options) []string {
	var cmds []string
	if opt.Threads > 0 {
		cmds = append(cmds, "setoption name Threads value "+strconv.Itoa(opt.Threads))
	}
	if opt.HashMB > 0 {
		cmds = append(cmds, "setoption name Hash value "+strconv.Itoa(opt.HashMB))
	}
	if opt.SkillLevel >= 0 {
		cmds = append(cmds, "setoption name Skill Level value "+strconv.Itoa(opt.SkillLevel))
	}
	if opt.Elo > 0 {
		cmds = append(cmds,
			"setoption name UCI_LimitStrength value true",
			"setoption name UCI_Elo value "+strconv.Itoa(opt.Elo))
	}
	return cmds
}

func positionCommand(moves []string) string {
	if len(moves) == 0 {
		return "position startpos"
	}
	return "position startpos moves " + strings.Join(moves, " ")
}

func goCommand(l Limits) (string, error) {
	parts := []string{"go"}
	if l.Depth > 0 {
		parts = append(parts, "depth", strconv.Itoa(l.Depth))
	}
	if l.MoveTimeMillis > 0 {
		parts = append(parts, "movetime", strconv.Itoa(l.MoveTimeMillis))
	}
	if l.Nodes > 0 {
		parts = append(parts, "nodes", strconv.Itoa(l.Nodes))
	}
	if len(parts) == 1 {
		return "", errors.New("no search limit set")
	}
	return strings.Join(parts, " "), nil
}

// searchBudget bounds how long we wait for bestmove.
func searchBudget(l Limits) time.Duration {
	budget := 10 * time.Second
	if l.MoveTimeMillis > 0 {
		budget = 2*time.Duration(l.MoveTimeMillis)*time.Millisecond + 5*time.Second
	}
	if l.Depth > 20 {
		budget += time.Duration(l.Depth-20) * 2 * time.Second
	}
	return budget
}

// readInfo keeps the score of the deepest line seen so far.
func readInfo(line string, res *Result) {
	f := strings.Fields(line)
	depth, score, scored := 0, 0, false
	for i := 1; i < len(f)-1; i++ {
		switch f[i] {
		case "depth":
			depth, _ = strconv.Atoi(f[i+1])
		case "score":
			if i+2 >= len(f) {
				return
			}
			v, err := strconv.Atoi(f[i+2])
			if err != nil {
				return
			}
			switch f[i+1] {
			case "cp":
				score, scored = v, true
			case "mate":
				score, scored = mateScore, true
				if v < 0 {
					score = -mateScore
				}
			}
		case "pv":
			i = len(f)
		}
	}
	if scored && depth >= res.Depth {
		res.Depth, res.ScoreCP = depth, score
	}
}
