package broadcast

import (
	"image"
	"sync/atomic"
	"time"
)

type Frame struct {
	Image      *image.RGBA
	Seq        uint64
	RenderedAt time.Time
}

// Surface holds the most recent frame. Published frames are never written
// to again, so readers can use them without copying.
type Surface struct {
	latest atomic.Pointer[Frame]
	seq    atomic.Uint64
}

func NewSurface() *Surface {
	return &Surface{}
}

func (s *Surface) Publish(img *image.RGBA, at time.Time) {
	s.latest.Store(&Frame{
		Image:      img,
		Seq:        s.seq.Add(1),
		RenderedAt: at,
	})
}

// Latest is nil until the first frame is published.
func (s *Surface) Latest() *Frame {
	return s.latest.Load()
}

func (s *Surface) Snapshot() image.Image {
	frame := s.Latest()
	if frame == nil {
		return nil
	}
	return frame.Image
}
