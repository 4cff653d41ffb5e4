package utils

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Session is a cancellable unit of work with an identity. Everything it
// starts should stop when Ctx() is done.
type Session struct {
	id        string
	context   context.Context
	cancel    context.CancelFunc
	startTime time.Time
}

func NewSession(ctx context.Context) Session {
	ctx, cancel := context.WithCancel(ctx)
	return Session{
		id:        uuid.New().String(),
		context:   ctx,
		cancel:    cancel,
		startTime: time.Now(),
	}
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) Uptime() time.Duration {
	return time.Since(s.startTime)
}

func (s *Session) Ctx() context.Context {
	return s.context
}

func (s *Session) Cancel() {
	s.cancel()
}
