package queue

import (
	"log/slog"
	"sync"

	"barberbot/app/config"
	"barberbot/app/domain"

	"github.com/samber/do"
)

var _ do.Shutdownable = (*Service)(nil)

// Service carries flushed units from the buffer timers to the engine.
type Service struct {
	queue     chan domain.BufferedUnit
	done      chan struct{}
	closeOnce sync.Once
}

func New(di *do.Injector) (*Service, error) {
	cfg := do.MustInvoke[*config.Config](di)
	return NewQueue(cfg.Debounce.QueueSize), nil
}

func NewQueue(size int) *Service {
	return &Service{
		queue: make(chan domain.BufferedUnit, size),
		done:  make(chan struct{}),
	}
}

// Push enqueues unit, blocking while the queue is full. Units pushed after
// Shutdown are dropped.
func (s *Service) Push(unit domain.BufferedUnit) {
	select {
	case s.queue <- unit:
		return
	case <-s.done:
		slog.Warn("Dropping flushed unit, queue is shut down", "conversation", unit.Key)
		return
	default:
	}

	slog.Warn("Flush queue is full, waiting", "conversation", unit.Key, "capacity", cap(s.queue))

	select {
	case s.queue <- unit:
	case <-s.done:
		slog.Warn("Dropping flushed unit, queue is shut down", "conversation", unit.Key)
	}
}

func (s *Service) Channel() <-chan domain.BufferedUnit {
	return s.queue
}

func (s *Service) Done() <-chan struct{} {
	return s.done
}

func (s *Service) Shutdown() error {
	s.closeOnce.Do(func() {
		close(s.done)
	})

	return nil
}
