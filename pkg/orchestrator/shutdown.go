package orchestrator

import (
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog"
)

type step struct {
	name string
	run  func() error
}

// Shutdown runs a fixed list of teardown steps exactly once. A step that
// fails or panics is logged and the remaining steps still run.
type Shutdown struct {
	logger zerolog.Logger
	steps  []step
	done   atomic.Bool
}

func NewShutdown(logger zerolog.Logger) *Shutdown {
	return &Shutdown{logger: logger}
}

// Add appends a step. Steps run in the order they were added.
func (s *Shutdown) Add(name string, run func() error) {
	s.steps = append(s.steps, step{name: name, run: run})
}

func (s *Shutdown) runStep(current step) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("panic: %v", recovered)
		}
	}()
	return current.run()
}

// Run returns false if shutdown already happened.
func (s *Shutdown) Run() bool {
	if !s.done.CompareAndSwap(false, true) {
		return false
	}

	for _, current := range s.steps {
		err := s.runStep(current)
		if err != nil {
			s.logger.Warn().Err(err).Str("step", current.name).Msg("shutdown step failed")
			continue
		}
		s.logger.Debug().Str("step", current.name).Msg("shutdown step done")
	}
	return true
}

func (s *Shutdown) Done() bool {
	return s.done.Load()
}
