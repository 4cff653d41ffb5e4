// Package orchestrator runs the streaming pipeline: a headless render
// session whose capture is relayed into an encoder process.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/quipslop/quipcast/pkg/capture"
	"github.com/quipslop/quipcast/pkg/config"
	"github.com/quipslop/quipcast/pkg/manager"
	"github.com/quipslop/quipcast/pkg/relay"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrMissingStreamKey  = errors.New("live mode needs a stream key (set STREAM_KEY)")
	ErrTargetUnreachable = errors.New("render target is unreachable")
	ErrCaptureTimeout    = errors.New("no capture received in time")
	ErrRenderExited      = errors.New("render session exited")
	ErrEncoderFailed     = errors.New("encoder failed")
	ErrPreviewExited     = errors.New("preview closed")
)

type Options struct {
	Mode   Mode
	Target string
	Stream config.Stream

	// Binary that provides the render subcommand, usually os.Executable()
	Executable string
	// Passed along to the render subcommand
	ConfigPaths []string

	Launcher manager.Launcher
	Client   *http.Client
}

type Orchestrator struct {
	options Options
	logger  zerolog.Logger

	relay   *relay.Relay
	encoder manager.Handle
	preview manager.Handle
	render  manager.Handle

	shutdown *Shutdown
}

func New(options Options) *Orchestrator {
	if options.Launcher == nil {
		options.Launcher = manager.ExecLauncher{}
	}
	if options.Client == nil {
		options.Client = &http.Client{Timeout: options.Stream.PreflightTimeout}
	}

	orchestrator := &Orchestrator{
		options: options,
		logger:  log.With().Str("mode", string(options.Mode)).Logger(),
	}
	orchestrator.shutdown = orchestrator.teardown()
	return orchestrator
}

func (o *Orchestrator) validate() error {
	switch o.options.Mode {
	case ModeLive:
		if o.options.Stream.Key == "" {
			return ErrMissingStreamKey
		}
	case ModeDryrun:
	default:
		return fmt.Errorf("unknown mode %q", o.options.Mode)
	}

	_, err := config.ParseBitrate(o.options.Stream.VideoBitrate)
	return err
}

// Preflight checks that the render target answers before anything is
// started.
func (o *Orchestrator) Preflight(ctx context.Context) error {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, o.options.Target, nil)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrTargetUnreachable, err)
	}

	response, err := o.options.Client.Do(request)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrTargetUnreachable, err)
	}
	io.Copy(io.Discard, response.Body)
	response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode > 299 {
		return fmt.Errorf("%w: %s returned %s", ErrTargetUnreachable, o.options.Target, response.Status)
	}
	return nil
}

// teardown stops everything in a fixed order. Each step tolerates the part
// it stops never having been started.
func (o *Orchestrator) teardown() *Shutdown {
	grace := o.options.Stream.KillGrace
	shutdown := NewShutdown(o.logger)

	shutdown.Add("stop relay", func() error {
		if o.relay == nil {
			return nil
		}
		return o.relay.Close()
	})
	shutdown.Add("close render session", func() error {
		if o.render == nil {
			return nil
		}
		return o.render.Terminate(grace)
	})
	shutdown.Add("close encoder input", func() error {
		if o.encoder == nil {
			return nil
		}
		return o.encoder.CloseInput()
	})
	shutdown.Add("stop encoder", func() error {
		if o.encoder == nil {
			return nil
		}

		// Closing the input is usually enough for the encoder to finish
		select {
		case <-o.encoder.Done():
			return nil
		case <-time.After(grace):
		}
		return o.encoder.Terminate(grace)
	})
	shutdown.Add("close preview", func() error {
		if o.preview == nil {
			return nil
		}
		o.preview.CloseInput()
		return o.preview.Terminate(grace)
	})

	return shutdown
}

// Shutdown tears the pipeline down. Calling it more than once is harmless.
func (o *Orchestrator) Shutdown() {
	if o.shutdown.Run() {
		o.logger.Info().Msg("pipeline stopped")
	}
}

func (o *Orchestrator) launchEncoder(ctx context.Context) error {
	stream := o.options.Stream
	args := EncoderArgs(o.options.Mode, stream)
	o.logger.Info().Str("args", redact(args, stream.Key)).Msg("starting encoder")

	encoder, err := o.options.Launcher.Launch(ctx, manager.Spec{
		Name:       "encoder",
		Path:       stream.Encoder,
		Args:       args,
		Stdin:      true,
		StdoutPipe: o.options.Mode == ModeDryrun,
	})
	if err != nil {
		return err
	}
	o.encoder = encoder
	return nil
}

func (o *Orchestrator) launchPreview(ctx context.Context) error {
	preview, err := o.options.Launcher.Launch(ctx, manager.Spec{
		Name:  "preview",
		Path:  o.options.Stream.Preview,
		Args:  PreviewArgs(),
		Stdin: true,
	})
	if err != nil {
		return err
	}
	o.preview = preview

	// The preview's input has exactly one writer
	go func() {
		output := o.encoder.Stdout()
		defer output.Close()

		_, err := io.Copy(preview.Stdin(), output)
		if err != nil {
			o.logger.Debug().Err(err).Msg("preview forwarding stopped")
		}
	}()
	return nil
}

func (o *Orchestrator) startRelay(session string) error {
	stream := o.options.Stream
	o.relay = relay.New(session, o.encoder.Stdin())
	return o.relay.Listen(net.JoinHostPort(stream.Relay.Host, strconv.Itoa(stream.Relay.Port)))
}

func (o *Orchestrator) launchRender(ctx context.Context, session string) error {
	stream := o.options.Stream
	bitrate, err := config.ParseBitrate(stream.VideoBitrate)
	if err != nil {
		return err
	}

	params := capture.Params{
		Session: session,
		FPS:     stream.FPS,
		Bitrate: bitrate,
		Width:   stream.Width,
		Height:  stream.Height,
	}
	relayURL, err := params.URL(o.relay.URL())
	if err != nil {
		return err
	}

	args := []string{"render", "--target", o.options.Target, "--relay", relayURL}
	args = append(args, o.options.ConfigPaths...)

	render, err := o.options.Launcher.Launch(ctx, manager.Spec{
		Name: "render",
		Path: o.options.Executable,
		Args: args,
	})
	if err != nil {
		return err
	}
	o.render = render
	return nil
}

func (o *Orchestrator) start(processes context.Context) error {
	err := o.launchEncoder(processes)
	if err != nil {
		return fmt.Errorf("could not start encoder: %w", err)
	}

	if o.options.Mode == ModeDryrun {
		err = o.launchPreview(processes)
		if err != nil {
			return fmt.Errorf("could not start preview: %w", err)
		}
	}

	session := uuid.New().String()
	err = o.startRelay(session)
	if err != nil {
		return err
	}

	err = o.launchRender(processes, session)
	if err != nil {
		return fmt.Errorf("could not start render session: %w", err)
	}

	return nil
}

func (o *Orchestrator) previewDone() <-chan struct{} {
	if o.preview == nil {
		return nil
	}
	return o.preview.Done()
}

// awaitCapture is the readiness gate: the first chunk has to reach the
// encoder within the ready timeout.
func (o *Orchestrator) awaitCapture(ctx context.Context) error {
	timeout := time.NewTimer(o.options.Stream.ReadyTimeout)
	defer timeout.Stop()

	select {
	case <-o.relay.FirstChunk():
		o.logger.Info().Msg("capture is flowing, stream is up")
		return nil
	case <-timeout.C:
		return fmt.Errorf("%w (waited %s)", ErrCaptureTimeout, o.options.Stream.ReadyTimeout)
	case <-o.render.Done():
		return fmt.Errorf("%w with code %d before capture started", ErrRenderExited, o.render.ExitCode())
	case <-o.encoder.Done():
		return fmt.Errorf("%w: exited with code %d before capture started", ErrEncoderFailed, o.encoder.ExitCode())
	case <-o.previewDone():
		return ErrPreviewExited
	case err := <-o.relay.Errors():
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// supervise waits for the first thing that ends the pipeline. A nil result
// means an orderly stop.
func (o *Orchestrator) supervise(ctx context.Context) error {
	select {
	case <-ctx.Done():
		o.logger.Info().Msg("stopping")
		return nil
	case <-o.encoder.Done():
		return nil
	case <-o.render.Done():
		return fmt.Errorf("%w with code %d", ErrRenderExited, o.render.ExitCode())
	case <-o.previewDone():
		o.logger.Info().Msg("preview closed")
		return nil
	case err := <-o.relay.Errors():
		return err
	}
}

// exitCode mirrors the encoder. Other failures exit with 1 when the encoder
// itself did not report one.
func (o *Orchestrator) exitCode(err error) (int, error) {
	code := 0
	if o.encoder != nil {
		select {
		case <-o.encoder.Done():
			code = o.encoder.ExitCode()
		default:
			code = -1
		}
	}

	// Killed by a signal
	if code == -1 {
		code = 1
	}

	if code != 0 && err == nil {
		err = fmt.Errorf("%w: exited with code %d", ErrEncoderFailed, code)
	}

	if err != nil && code == 0 {
		code = 1
	}

	return code, err
}

// Run executes the pipeline until ctx is cancelled or a part of it fails,
// and returns the process exit code.
func (o *Orchestrator) Run(ctx context.Context) (int, error) {
	err := o.validate()
	if err != nil {
		return 1, err
	}

	err = o.Preflight(ctx)
	if err != nil {
		return 1, err
	}

	// Processes outlive ctx so that shutdown can stop them in order
	processes, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer o.Shutdown()

	err = o.start(processes)
	if err != nil {
		o.Shutdown()
		return o.exitCode(err)
	}

	err = o.awaitCapture(ctx)
	if errors.Is(err, context.Canceled) {
		o.Shutdown()
		return o.exitCode(nil)
	}
	if err != nil {
		o.logger.Error().Err(err).Msg("pipeline failed to start")
		o.Shutdown()
		return o.exitCode(err)
	}

	err = o.supervise(ctx)
	o.Shutdown()
	return o.exitCode(err)
}
