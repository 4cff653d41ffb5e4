package broadcast

import (
	"context"
	"errors"

	"github.com/quipslop/quipcast/pkg/assets"
	"github.com/quipslop/quipcast/pkg/capture"
	"github.com/quipslop/quipcast/pkg/render"
	"github.com/quipslop/quipcast/pkg/statesync"
	"github.com/quipslop/quipcast/pkg/utils"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

type Options struct {
	// Websocket URL of the state hub
	StateURL string
	Width    int
	Height   int
	FPS      int
	LogoBase string
	Store    assets.Store

	// Capture is skipped when Transport is nil
	Transport capture.Transport
	Capture   capture.Params

	// Defaults to a render.Renderer of Width x Height
	NewDrawer DrawerFactory
}

// Session owns everything one headless viewer needs. It is created when the
// viewer starts and torn down as a whole.
type Session struct {
	utils.Session

	client  *statesync.Client
	images  *assets.ImageCache
	surface *Surface
	loop    *Loop
	sink    *capture.Sink
	logger  zerolog.Logger
}

func NewSession(ctx context.Context, options Options) (*Session, error) {
	session := &Session{
		Session: utils.NewSession(ctx),
		client:  statesync.NewClient(options.StateURL),
		surface: NewSurface(),
	}
	session.logger = log.With().Str("session", session.ID()).Logger()

	store := options.Store
	if store == nil {
		store = assets.NoStore{}
	}
	session.images = assets.NewImageCache(session.Ctx(), store)

	newDrawer := options.NewDrawer
	if newDrawer == nil {
		newDrawer = func() (Drawer, error) {
			return render.NewRenderer(options.Width, options.Height, session.images, options.LogoBase)
		}
	}

	loop, err := NewLoop(session.client, session.surface, options.FPS, newDrawer)
	if err != nil {
		session.Cancel()
		return nil, err
	}
	session.loop = loop

	if options.Transport != nil {
		session.sink = capture.NewSink(session.surface, options.Transport, options.Capture)
	}

	return session, nil
}

func (s *Session) Surface() *Surface {
	return s.surface
}

func (s *Session) Client() *statesync.Client {
	return s.client
}

func (s *Session) CaptureStatus() string {
	if s.sink == nil {
		return "capture disabled"
	}
	return s.sink.Status()
}

func (s *Session) watchEvents(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-s.client.Events():
			switch event.Kind {
			case statesync.EventConnected:
				s.logger.Info().Msg("connected to state hub")
			case statesync.EventDisconnected:
				s.logger.Warn().Err(event.Err).Msg("lost state hub")
			case statesync.EventReset:
				s.logger.Warn().Msg("state hub restarted with a new protocol version, starting over")
				s.loop.Reset()
			}
		}
	}
}

// Run blocks until the session is cancelled or a part of it fails. Losing
// the capture transport ends the session.
func (s *Session) Run() error {
	defer s.Cancel()

	group, ctx := errgroup.WithContext(s.Ctx())
	group.Go(func() error {
		return s.client.Run(ctx)
	})
	group.Go(func() error {
		return s.watchEvents(ctx)
	})
	group.Go(func() error {
		return s.loop.Run(ctx)
	})
	if s.sink != nil {
		group.Go(func() error {
			return s.sink.Run(ctx)
		})
	}

	err := group.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
