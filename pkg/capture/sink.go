// Package capture turns rendered frames into an MJPEG stream and ships it to
// the orchestrator in short chunks.
package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"sync/atomic"
	"time"

	"github.com/quipslop/quipcast/pkg/metrics"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	CODEC          = "mjpeg"
	CHUNK_DURATION = 250 * time.Millisecond
	// Chunks are dropped rather than queued once the transport is holding
	// this much.
	MAX_BUFFERED = 16 * 1024 * 1024

	MIN_QUALITY     = 20
	MAX_QUALITY     = 90
	DEFAULT_QUALITY = 75
	QUALITY_STEP    = 5
)

var ErrTransportClosed = errors.New("capture transport closed")

// Source provides the most recently rendered frame, or nil before the first
// one.
type Source interface {
	Snapshot() image.Image
}

type Transport interface {
	// Send must not block on a congested link.
	Send(ctx context.Context, chunk []byte) error
	// Buffered is the number of bytes accepted but not yet written.
	Buffered() int
	Done() <-chan struct{}
	Close() error
}

type Sink struct {
	source    Source
	transport Transport
	params    Params
	logger    zerolog.Logger

	// Only touched by the capture goroutine
	chunk   bytes.Buffer
	encoded bytes.Buffer
	quality int
	frames  int

	sent          atomic.Int64
	dropped       atomic.Int64
	statusQuality atomic.Int32

	dropLog *rate.Limiter
}

func NewSink(source Source, transport Transport, params Params) *Sink {
	if params.FPS <= 0 {
		params.FPS = DEFAULT_FPS
	}
	if params.Bitrate <= 0 {
		params.Bitrate = DEFAULT_BITRATE
	}

	sink := &Sink{
		source:    source,
		transport: transport,
		params:    params,
		quality:   DEFAULT_QUALITY,
		logger:    log.With().Str("capture", params.Session).Logger(),
		dropLog:   rate.NewLimiter(rate.Every(5*time.Second), 1),
	}
	sink.statusQuality.Store(DEFAULT_QUALITY)
	return sink
}

func (s *Sink) Sent() int64 {
	return s.sent.Load()
}

func (s *Sink) Dropped() int64 {
	return s.dropped.Load()
}

func (s *Sink) Status() string {
	return fmt.Sprintf(
		"%s q=%d %dx%d@%dfps %dkbps sent=%d dropped=%d",
		CODEC,
		s.statusQuality.Load(),
		s.params.Width,
		s.params.Height,
		s.params.FPS,
		s.params.Bitrate/1000,
		s.Sent(),
		s.Dropped(),
	)
}

// adapt nudges the JPEG quality toward the per-frame byte budget.
func (s *Sink) adapt(size int) {
	budget := s.params.FrameBudget()
	switch {
	case size > budget+budget/10 && s.quality > MIN_QUALITY:
		s.quality -= QUALITY_STEP
	case size < budget*7/10 && s.quality < MAX_QUALITY:
		s.quality += QUALITY_STEP
	}
	s.statusQuality.Store(int32(s.quality))
}

// Sample encodes the current frame onto the pending chunk.
func (s *Sink) Sample() error {
	frame := s.source.Snapshot()
	if frame == nil {
		return nil
	}

	s.encoded.Reset()
	err := jpeg.Encode(&s.encoded, frame, &jpeg.Options{Quality: s.quality})
	if err != nil {
		return err
	}

	s.adapt(s.encoded.Len())
	s.chunk.Write(s.encoded.Bytes())
	s.frames++
	return nil
}

// Flush hands the pending chunk to the transport. Empty chunks are skipped
// and a congested transport causes the chunk to be dropped.
func (s *Sink) Flush(ctx context.Context) error {
	if s.chunk.Len() == 0 {
		return nil
	}

	defer func() {
		s.chunk.Reset()
		s.frames = 0
	}()

	if buffered := s.transport.Buffered(); buffered > MAX_BUFFERED {
		s.drop(buffered)
		return nil
	}

	chunk := make([]byte, s.chunk.Len())
	copy(chunk, s.chunk.Bytes())

	err := s.transport.Send(ctx, chunk)
	if errors.Is(err, ErrQueueFull) {
		s.drop(s.transport.Buffered())
		return nil
	}
	if err != nil {
		return err
	}

	s.sent.Add(1)
	metrics.ChunksSent.Inc()
	return nil
}

func (s *Sink) drop(buffered int) {
	s.dropped.Add(1)
	metrics.ChunksDropped.Inc()

	if s.dropLog.Allow() {
		s.logger.Warn().
			Int("buffered", buffered).
			Int64("dropped", s.Dropped()).
			Msg("transport congested, dropping chunk")
	}
}

// Run samples frames and flushes chunks until ctx is cancelled or the
// transport closes.
func (s *Sink) Run(ctx context.Context) error {
	frameTicker := time.NewTicker(time.Second / time.Duration(s.params.FPS))
	defer frameTicker.Stop()
	chunkTicker := time.NewTicker(CHUNK_DURATION)
	defer chunkTicker.Stop()

	s.logger.Info().Str("status", s.Status()).Msg("capture started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.transport.Done():
			s.logger.Info().Str("status", s.Status()).Msg("transport closed, capture stopped")
			return ErrTransportClosed
		case <-frameTicker.C:
			err := s.Sample()
			if err != nil {
				s.logger.Error().Err(err).Msg("failed to encode frame")
			}
		case <-chunkTicker.C:
			err := s.Flush(ctx)
			if errors.Is(err, ErrTransportClosed) {
				return err
			}
			if err != nil {
				return fmt.Errorf("failed to send chunk: %w", err)
			}
		}
	}
}
