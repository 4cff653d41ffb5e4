// Package manager starts and supervises external processes.
package manager

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sasha-s/go-deadlock"
)

// How long output is still tailed after the process itself has exited.
// Children that inherited the pipes can keep them open forever.
const TAIL_GRACE = time.Second

type Spec struct {
	Name string
	Path string
	Args []string
	// Appended to the current environment
	Env []string

	// Open a pipe to the process's standard input
	Stdin bool
	// Hand standard output to the caller instead of the log
	StdoutPipe bool
}

// Handle is a running process as the orchestrator sees it.
type Handle interface {
	Name() string
	Stdin() io.WriteCloser
	Stdout() io.ReadCloser
	Done() <-chan struct{}
	ExitCode() int
	CloseInput() error
	Terminate(grace time.Duration) error
}

type Launcher interface {
	Launch(ctx context.Context, spec Spec) (Handle, error)
}

type ExecLauncher struct{}

func (ExecLauncher) Launch(ctx context.Context, spec Spec) (Handle, error) {
	process, err := Start(ctx, spec)
	if err != nil {
		return nil, err
	}
	return process, nil
}

type Process struct {
	spec    Spec
	command *exec.Cmd
	stdin   io.WriteCloser
	stdout  *os.File
	// Read ends of the pipes tailed into the log
	tails  []*os.File
	logger zerolog.Logger

	mutex    deadlock.Mutex
	exitCode int
	err      error

	done chan struct{}
}

func closeAll(files ...*os.File) {
	for _, file := range files {
		file.Close()
	}
}

// Start launches the process and begins supervising it. Cancelling ctx kills
// the process.
func Start(ctx context.Context, spec Spec) (*Process, error) {
	command := exec.CommandContext(ctx, spec.Path, spec.Args...)
	command.Env = append(os.Environ(), spec.Env...)

	process := &Process{
		spec:     spec,
		command:  command,
		logger:   log.With().Str("process", spec.Name).Logger(),
		exitCode: -1,
		done:     make(chan struct{}),
	}

	var err error
	if spec.Stdin {
		process.stdin, err = command.StdinPipe()
		if err != nil {
			return nil, err
		}
	}

	// exec's own output pipes are closed by Wait, which would cut off
	// whoever is still reading the data pipe
	stdout, stdoutWriter, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	stderr, stderrWriter, err := os.Pipe()
	if err != nil {
		closeAll(stdout, stdoutWriter)
		return nil, err
	}
	command.Stdout = stdoutWriter
	command.Stderr = stderrWriter

	err = command.Start()
	closeAll(stdoutWriter, stderrWriter)
	if err != nil {
		closeAll(stdout, stderr)
		if process.stdin != nil {
			process.stdin.Close()
		}
		return nil, fmt.Errorf("failed to start %s: %w", spec.Name, err)
	}

	process.logger.Info().Int("pid", command.Process.Pid).Msg("started")

	process.tails = []*os.File{stderr}
	if spec.StdoutPipe {
		process.stdout = stdout
	} else {
		process.tails = append(process.tails, stdout)
	}

	go process.wait()

	return process, nil
}

func (p *Process) tail(pipe io.Reader, done chan<- struct{}) {
	scanner := bufio.NewScanner(pipe)
	for scanner.Scan() {
		p.logger.Info().Msg(scanner.Text())
	}
	done <- struct{}{}
}

func (p *Process) wait() {
	tailed := make(chan struct{}, len(p.tails))
	for _, pipe := range p.tails {
		go p.tail(pipe, tailed)
	}

	// Non-zero exits come back as *exec.ExitError; ProcessState is only
	// missing when the process could not be waited on at all
	err := p.command.Wait()
	state := p.command.ProcessState

	grace := time.After(TAIL_GRACE)
	for range p.tails {
		select {
		case <-tailed:
		case <-grace:
		}
	}
	closeAll(p.tails...)

	defer close(p.done)

	p.mutex.Lock()
	defer p.mutex.Unlock()

	if state == nil {
		p.err = err
		p.logger.Error().Err(err).Msg("could not wait for process")
		return
	}

	p.exitCode = state.ExitCode()
	if p.exitCode == 0 {
		p.logger.Info().Msg("exited")
		return
	}

	p.err = err
	unixStatus, ok := state.Sys().(syscall.WaitStatus)
	event := p.logger.Error()
	if ok {
		event = event.
			Int("exitStatus", unixStatus.ExitStatus()).
			Bool("signaled", unixStatus.Signaled()).
			Str("signal", unixStatus.Signal().String()).
			Bool("coreDump", unixStatus.CoreDump())
	}
	event.Msgf("[%s] exited with code %d", p.spec.Name, p.exitCode)
}

func (p *Process) Name() string {
	return p.spec.Name
}

// Stdin is nil unless the process was started with Spec.Stdin.
func (p *Process) Stdin() io.WriteCloser {
	return p.stdin
}

// Stdout is nil unless the process was started with Spec.StdoutPipe. It
// belongs to the caller, who closes it after reading to the end.
func (p *Process) Stdout() io.ReadCloser {
	if p.stdout == nil {
		return nil
	}
	return p.stdout
}

func (p *Process) Done() <-chan struct{} {
	return p.done
}

// ExitCode is -1 until the process exits, and when it was killed by a
// signal.
func (p *Process) ExitCode() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.exitCode
}

func (p *Process) Err() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.err
}

func (p *Process) exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// CloseInput closes standard input, which most encoders treat as the end of
// the stream.
func (p *Process) CloseInput() error {
	if p.stdin == nil {
		return nil
	}

	err := p.stdin.Close()
	if errors.Is(err, os.ErrClosed) {
		return nil
	}
	return err
}

// Terminate asks the process to stop and kills it if it is still running
// after grace.
func (p *Process) Terminate(grace time.Duration) error {
	if p.exited() {
		return nil
	}

	err := p.command.Process.Signal(syscall.SIGTERM)
	if err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}

	select {
	case <-p.done:
		return nil
	case <-time.After(grace):
	}

	p.logger.Warn().Dur("grace", grace).Msg("did not stop in time, killing")
	return p.Kill()
}

func (p *Process) Kill() error {
	if p.exited() {
		return nil
	}

	err := p.command.Process.Kill()
	if err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}

	<-p.done
	return nil
}
