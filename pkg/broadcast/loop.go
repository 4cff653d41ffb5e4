// Package broadcast runs a headless viewing surface: it keeps game state in
// sync, redraws it continuously and feeds the frames to capture.
package broadcast

import (
	"context"
	"image"
	"time"

	"github.com/quipslop/quipcast/pkg/metrics"
	"github.com/quipslop/quipcast/pkg/render"
	"github.com/quipslop/quipcast/pkg/statesync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const DEFAULT_FPS = 30

type StateSource interface {
	Latest() *statesync.Snapshot
	ViewerCount() int
	IsConnected() bool
	SinceLastUpdate(now time.Time) time.Duration
}

type Drawer interface {
	Render(view render.View, now time.Time) *image.RGBA
	Close()
}

type DrawerFactory func() (Drawer, error)

// Loop redraws the surface once per tick whether or not the state changed,
// so clock driven text stays current.
type Loop struct {
	source  StateSource
	surface *Surface
	fps     int
	logger  zerolog.Logger

	newDrawer DrawerFactory
	drawer    Drawer
	resets    chan struct{}

	now func() time.Time
}

func NewLoop(source StateSource, surface *Surface, fps int, newDrawer DrawerFactory) (*Loop, error) {
	drawer, err := newDrawer()
	if err != nil {
		return nil, err
	}

	if fps <= 0 {
		fps = DEFAULT_FPS
	}

	return &Loop{
		source:    source,
		surface:   surface,
		fps:       fps,
		logger:    log.With().Str("component", "render").Logger(),
		newDrawer: newDrawer,
		drawer:    drawer,
		resets:    make(chan struct{}, 1),
		now:       time.Now,
	}, nil
}

// View reads the state as it is right now. Nothing is cached between
// ticks.
func (l *Loop) View(now time.Time) render.View {
	view := render.View{
		ViewerCount: l.source.ViewerCount(),
		Connected:   l.source.IsConnected(),
		SinceUpdate: l.source.SinceLastUpdate(now),
	}

	if snapshot := l.source.Latest(); snapshot != nil {
		view.State = snapshot.State
		view.TotalRounds = snapshot.TotalRounds
	}

	return view
}

func (l *Loop) Tick() {
	now := l.now()
	l.surface.Publish(l.drawer.Render(l.View(now), now), now)
	metrics.FramesRendered.Inc()
}

// Reset asks the loop to throw away its drawer, and any logos it scaled,
// before the next frame.
func (l *Loop) Reset() {
	select {
	case l.resets <- struct{}{}:
	default:
	}
}

func (l *Loop) rebuild() {
	drawer, err := l.newDrawer()
	if err != nil {
		l.logger.Error().Err(err).Msg("could not rebuild renderer, keeping the old one")
		return
	}

	l.drawer.Close()
	l.drawer = drawer
	l.logger.Info().Msg("renderer rebuilt")
}

func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Second / time.Duration(l.fps))
	defer ticker.Stop()
	defer l.drawer.Close()

	l.Tick()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.resets:
			l.rebuild()
		case <-ticker.C:
			l.Tick()
		}
	}
}
