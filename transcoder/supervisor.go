// Package transcoder supervises the external ffmpeg process feeding a stream.
package transcoder

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/duncanleo/hc-gopro/log"
)

// ErrRespawnLimited is passed to OnExit when the respawn limiter refused a
// restart.
var ErrRespawnLimited = errors.New("transcoder respawn limit reached")

// Options configures one supervised process.
type Options struct {
	// Passthrough receives the process stdout and stderr. Defaults to os.Stdout.
	Passthrough io.Writer

	// OnStdout is invoked for every stdout chunk with the caller-owned Buffer.
	OnStdout func(chunk []byte, buf *bytes.Buffer)
	Buffer   *bytes.Buffer

	// OnReady is invoked after every successful start, including respawns.
	OnReady func(p *Process)

	// OnExit is invoked once, when the process exits for good.
	OnExit func(err error)

	// Respawn restarts the identical command line whenever the process exits
	// on its own. Only Stop ends a respawning process.
	Respawn bool

	// Limiter bounds respawns. Nil means unbounded.
	Limiter *rate.Limiter
}

// Supervisor launches transcoder processes.
type Supervisor struct {
	// Bin is the executable, "ffmpeg" when empty.
	Bin string

	logger zerolog.Logger
}

// New returns a Supervisor for bin.
func New(bin string) *Supervisor {
	if bin == "" {
		bin = "ffmpeg"
	}
	return &Supervisor{
		Bin:    bin,
		logger: log.WithComponent("transcoder"),
	}
}

// Spawn starts bin with args. The first start failure is returned; later
// exits are handled according to opts.
func (s *Supervisor) Spawn(args []string, opts Options) (*Process, error) {
	if opts.Passthrough == nil {
		opts.Passthrough = os.Stdout
	}
	opts.Passthrough = &lockedWriter{w: opts.Passthrough}

	p := &Process{
		bin:    s.Bin,
		args:   append([]string(nil), args...),
		opts:   opts,
		done:   make(chan struct{}),
		logger: s.logger,
	}

	p.mu.Lock()
	err := p.startLocked("initial")
	p.mu.Unlock()
	if err != nil {
		return nil, err
	}
	p.ready()

	go p.supervise()
	return p, nil
}

// Process is one supervised transcoder. At most one OS process is alive per
// Process at any instant.
type Process struct {
	bin    string
	args   []string
	opts   Options
	logger zerolog.Logger

	mu      sync.Mutex
	cmd     *exec.Cmd
	stopped bool
	spawns  int

	done chan struct{}
}

// Args returns the argument vector used for every start.
func (p *Process) Args() []string {
	return append([]string(nil), p.args...)
}

// Pid returns the pid of the current OS process.
func (p *Process) Pid() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd == nil || p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Spawns returns how many OS processes have been started so far.
func (p *Process) Spawns() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.spawns
}

// Done is closed once the process has exited for good.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Signal delivers sig to the current OS process.
func (p *Process) Signal(sig os.Signal) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped || p.cmd == nil || p.cmd.Process == nil {
		return nil
	}
	return p.cmd.Process.Signal(sig)
}

// Suspend pauses the current OS process.
func (p *Process) Suspend() error { return p.Signal(syscall.SIGSTOP) }

// Resume continues a suspended OS process.
func (p *Process) Resume() error { return p.Signal(syscall.SIGCONT) }

// Stop kills the current OS process with SIGKILL, suppresses any further
// respawn and waits until supervision has ended. Safe to call repeatedly.
func (p *Process) Stop() {
	p.mu.Lock()
	alreadyStopped := p.stopped
	p.stopped = true
	cmd := p.cmd
	p.mu.Unlock()

	if !alreadyStopped && cmd != nil && cmd.Process != nil {
		p.logger.Info().Int("pid", cmd.Process.Pid).Msg("terminating")
		if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			p.logger.Debug().Err(err).Msg("kill")
		}
	}
	<-p.done
}

// startLocked launches a new OS process. Callers hold p.mu.
func (p *Process) startLocked(kind string) error {
	cmd := exec.Command(p.bin, p.args...)
	cmd.Stdout = &chunkWriter{passthrough: p.opts.Passthrough, onChunk: p.opts.OnStdout, buf: p.opts.Buffer}
	cmd.Stderr = p.opts.Passthrough

	if err := cmd.Start(); err != nil {
		spawnTotal.WithLabelValues(kind, "error").Inc()
		return fmt.Errorf("start %s: %w", p.bin, err)
	}
	spawnTotal.WithLabelValues(kind, "ok").Inc()

	p.cmd = cmd
	p.spawns++
	p.logger.Info().Str("kind", kind).Int("pid", cmd.Process.Pid).Msg("spawn")
	return nil
}

func (p *Process) ready() {
	if p.opts.OnReady != nil {
		p.opts.OnReady(p)
	}
}

// supervise waits for the current OS process and respawns it while allowed.
// The stopped check and the respawn happen under one lock, so Stop either
// kills the replacement or prevents it.
func (p *Process) supervise() {
	defer close(p.done)

	for {
		p.mu.Lock()
		cmd := p.cmd
		p.mu.Unlock()

		var err error
		if cmd != nil {
			err = cmd.Wait()
		}

		p.mu.Lock()
		if p.stopped {
			p.mu.Unlock()
			exitTotal.WithLabelValues("killed").Inc()
			p.exit(nil)
			return
		}
		if !p.opts.Respawn {
			p.stopped = true
			p.mu.Unlock()
			exitTotal.WithLabelValues("exited").Inc()
			p.exit(err)
			return
		}
		exitTotal.WithLabelValues("respawn").Inc()
		p.logger.Warn().Err(err).Msg("process exited, respawning")

		if p.opts.Limiter != nil && !p.opts.Limiter.Allow() {
			p.stopped = true
			p.mu.Unlock()
			p.logger.Error().Msg("respawn limit reached, giving up")
			p.exit(ErrRespawnLimited)
			return
		}

		startErr := p.startLocked("respawn")
		if startErr != nil {
			// Treated like another exit: loop and try again.
			p.logger.Error().Err(startErr).Msg("respawn failed")
			p.cmd = nil
		}
		p.mu.Unlock()

		if startErr == nil {
			p.ready()
		}
	}
}

func (p *Process) exit(err error) {
	if p.opts.OnExit != nil {
		p.opts.OnExit(err)
	}
}

// chunkWriter fans one process output stream out to the passthrough writer and
// the chunk callback.
type chunkWriter struct {
	passthrough io.Writer
	onChunk     func(chunk []byte, buf *bytes.Buffer)
	buf         *bytes.Buffer
}

func (w *chunkWriter) Write(b []byte) (int, error) {
	if w.onChunk != nil {
		w.onChunk(b, w.buf)
	}
	if _, err := w.passthrough.Write(b); err != nil {
		return 0, err
	}
	return len(b), nil
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(b []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(b)
}
