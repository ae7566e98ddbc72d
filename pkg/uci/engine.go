package uci

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/kallevik/revline/pkg/config"
	"github.com/kallevik/revline/pkg/position"
	"github.com/seekerror/logw"
	"github.com/seekerror/stdlib/pkg/util/iox"
)

// Engine owns one spawned UCI engine child process: piped stdin/stdout,
// a drained stderr, and an exit observer. Sequence on construction is
// spawn, install stderr drain, install exit observer, run the UCI
// handshake, then apply configuration — matching the lifecycle state
// machine an engine wrapper must honor.
type Engine struct {
	name string
	cmd  *exec.Cmd
	mu   sync.Mutex // serializes the commands NewGame and Go send; Go releases it once the search has started

	stdin io.WriteCloser
	lines <-chan string

	quit iox.AsyncCloser
	done iox.AsyncCloser // closed once the process has exited
}

// NewEngine spawns cfg.Command, performs the UCI handshake, and applies
// cfg's debug flag and options. Option failures are logged as warnings,
// not returned as errors, per the engine wrapper's tolerance for engines
// that reject individual settings.
func NewEngine(ctx context.Context, cfg config.Engine) (*Engine, error) {
	cmd := exec.Command(cfg.Command, cfg.Args...)
	if cfg.Dir != "" {
		cmd.Dir = cfg.Dir
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("engine %v: stdin pipe: %w", cfg.Name, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("engine %v: stdout pipe: %w", cfg.Name, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("engine %v: stderr pipe: %w", cfg.Name, err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("engine %v: start: %w", cfg.Name, err)
	}

	e := &Engine{
		name:  cfg.Name,
		cmd:   cmd,
		stdin: stdin,
		lines: readLines(ctx, cfg.Name, stdout),
		quit:  iox.NewAsyncCloser(),
		done:  iox.NewAsyncCloser(),
	}

	go e.drainStderr(ctx, stderr)
	go e.observeExit(ctx)

	if err := e.handshake(ctx); err != nil {
		_ = e.kill()
		return nil, fmt.Errorf("engine %v: handshake: %w", cfg.Name, err)
	}
	e.configure(ctx, cfg)

	return e, nil
}

// Name returns the engine's configured name.
func (e *Engine) Name() string {
	return e.name
}

func readLines(ctx context.Context, name string, r io.Reader) <-chan string {
	out := make(chan string, 16)
	go func() {
		defer close(out)

		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for scanner.Scan() {
			line := scanner.Text()
			logw.Debugf(ctx, "%v << %v", name, line)
			out <- line
		}
	}()
	return out
}

func (e *Engine) drainStderr(ctx context.Context, r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		logw.Warningf(ctx, "%v stderr: %v", e.name, scanner.Text())
	}
}

func (e *Engine) observeExit(ctx context.Context) {
	defer e.done.Close()

	if err := e.cmd.Wait(); err != nil && !e.quit.IsClosed() {
		logw.Warningf(ctx, "%v exited unexpectedly: %v", e.name, err)
	}
}

func (e *Engine) send(ctx context.Context, cmd Command) error {
	logw.Debugf(ctx, "%v >> %v", e.name, cmd)
	_, err := fmt.Fprintln(e.stdin, string(cmd))
	return err
}

// handshake runs "uci" to "uciok" followed by an "isready"/"readyok"
// barrier, so the engine is fully settled before any configuration or
// search command is issued.
func (e *Engine) handshake(ctx context.Context) error {
	if err := e.send(ctx, CmdUCI()); err != nil {
		return err
	}
	if err := e.waitFor(ctx, func(m Msg) bool { _, ok := m.(UCIOkMsg); return ok }); err != nil {
		return fmt.Errorf("waiting for uciok: %w", err)
	}
	return e.sync(ctx)
}

// sync sends isready and blocks until readyok, the barrier used both
// after the handshake and after applying configuration.
func (e *Engine) sync(ctx context.Context) error {
	if err := e.send(ctx, CmdIsReady()); err != nil {
		return err
	}
	return e.waitFor(ctx, func(m Msg) bool { _, ok := m.(ReadyOkMsg); return ok })
}

func (e *Engine) configure(ctx context.Context, cfg config.Engine) {
	if cfg.Debug {
		if err := e.send(ctx, CmdDebug(true)); err != nil {
			logw.Warningf(ctx, "%v: debug on failed: %v", e.name, err)
		}
	}
	for name, value := range cfg.Options {
		if err := e.send(ctx, CmdSetOption(name, value)); err != nil {
			logw.Warningf(ctx, "%v: setoption %v failed: %v", e.name, name, err)
		}
	}
	if err := e.sync(ctx); err != nil {
		logw.Warningf(ctx, "%v: not ready after configuration: %v", e.name, err)
	}
}

func (e *Engine) waitFor(ctx context.Context, match func(Msg) bool) error {
	for {
		select {
		case line, ok := <-e.lines:
			if !ok {
				return ErrProtocolClosed
			}
			msg, ok := ParseLine(line)
			if ok && match(msg) {
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// NewGame tells the engine the next analysis is from a different game.
func (e *Engine) NewGame(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.send(ctx, CmdUCINewGame()); err != nil {
		return err
	}
	return e.sync(ctx)
}

// Go sets the position and starts a search under opt, returning a stream
// of Info records terminated by a bestmove.
func (e *Engine) Go(ctx context.Context, fen string, moves []position.Move, opt GoOptions) (*InfoStream, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.send(ctx, CmdPosition(fen, moves)); err != nil {
		return nil, err
	}
	if err := e.send(ctx, CmdGo(opt)); err != nil {
		return nil, err
	}

	s := &InfoStream{
		infos: make(chan Info, 64),
		best:  make(chan BestMoveMsg, 1),
	}
	go s.run(ctx, e)
	return s, nil
}

// Stop halts the active search; the engine still owes exactly one bestmove.
func (e *Engine) Stop(ctx context.Context) error {
	return e.send(ctx, CmdStop())
}

// Quit sends quit and waits for the process to exit, falling back to a
// kill if it does not exit within the grace period.
func (e *Engine) Quit(ctx context.Context) error {
	if e.quit.IsClosed() {
		<-e.done.Closed()
		return nil
	}
	e.quit.Close()

	if err := e.send(ctx, CmdQuit()); err != nil {
		_ = e.kill()
		return err
	}

	select {
	case <-e.done.Closed():
		return nil
	case <-time.After(5 * time.Second):
		logw.Warningf(ctx, "%v did not exit after quit, killing", e.name)
		return e.kill()
	case <-ctx.Done():
		return e.kill()
	}
}

func (e *Engine) kill() error {
	if e.cmd.Process == nil {
		return nil
	}
	return e.cmd.Process.Kill()
}

// InfoStream streams an in-progress search's "info" records and carries
// its terminal "bestmove".
type InfoStream struct {
	infos chan Info
	best  chan BestMoveMsg
}

func (s *InfoStream) run(ctx context.Context, e *Engine) {
	defer close(s.infos)

	for {
		select {
		case line, ok := <-e.lines:
			if !ok {
				return
			}
			msg, ok := ParseLine(line)
			if !ok {
				continue
			}
			switch m := msg.(type) {
			case InfoMsg:
				select {
				case s.infos <- m.Info:
				case <-ctx.Done():
					return
				}
			case BestMoveMsg:
				s.best <- m
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// Info returns the next analysis step, or ok=false once the stream has
// moved past the last info line into its terminal bestmove.
func (s *InfoStream) Info(ctx context.Context) (Info, bool, error) {
	select {
	case info, ok := <-s.infos:
		return info, ok, nil
	case <-ctx.Done():
		return Info{}, false, ctx.Err()
	}
}

// Best drains any remaining info records and returns the search's bestmove.
func (s *InfoStream) Best(ctx context.Context) (BestMoveMsg, error) {
	for {
		select {
		case _, ok := <-s.infos:
			if ok {
				continue
			}
		case b := <-s.best:
			return b, nil
		case <-ctx.Done():
			return BestMoveMsg{}, ctx.Err()
		}
	}
}

// Stop asks the search this stream is following to halt.
func (s *InfoStream) Stop(ctx context.Context, e *Engine) error {
	return e.Stop(ctx)
}
