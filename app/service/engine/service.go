package engine

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"barberbot/app/config"
	"barberbot/app/domain"
	"barberbot/app/service/agent"
	"barberbot/app/service/dispatch"
	"barberbot/app/service/history"
	"barberbot/app/service/queue"

	"github.com/google/uuid"
	"github.com/samber/do"
	"github.com/samber/oops"
	"golang.org/x/sync/semaphore"
)

const apologyTimeout = 15 * time.Second

type HistoryLoader interface {
	Load(ctx context.Context, event *domain.InboundEvent, excluding []string) []domain.ConversationTurn
}

type Orchestrator interface {
	Run(ctx context.Context, key domain.ConversationKey, history []domain.ConversationTurn, text string) (agent.Result, error)
}

type Dispatcher interface {
	Send(ctx context.Context, key domain.ConversationKey, event *domain.InboundEvent, text string) error
}

type Messages struct {
	Fallback string
	Apology  string
}

// Service consumes flushed units and runs each through history, the
// orchestrator and dispatch in its own goroutine.
type Service struct {
	units        <-chan domain.BufferedUnit
	history      HistoryLoader
	orchestrator Orchestrator
	dispatcher   Dispatcher
	messages     Messages

	sem *semaphore.Weighted
	wg  sync.WaitGroup
}

func New(di *do.Injector) (*Service, error) {
	cfg := do.MustInvoke[*config.Config](di)

	return NewService(
		do.MustInvoke[*queue.Service](di).Channel(),
		do.MustInvoke[*history.Service](di),
		do.MustInvoke[*agent.Service](di),
		do.MustInvoke[*dispatch.Service](di),
		Messages{
			Fallback: cfg.Agent.FallbackMessage,
			Apology:  cfg.Agent.ApologyMessage,
		},
		cfg.Debounce.MaxConcurrent,
	), nil
}

func NewService(
	units <-chan domain.BufferedUnit,
	historyLoader HistoryLoader,
	orchestrator Orchestrator,
	dispatcher Dispatcher,
	messages Messages,
	maxConcurrent int,
) *Service {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}

	return &Service{
		units:        units,
		history:      historyLoader,
		orchestrator: orchestrator,
		dispatcher:   dispatcher,
		messages:     messages,
		sem:          semaphore.NewWeighted(int64(maxConcurrent)),
	}
}

// Run processes units until ctx is done, then waits for in-flight units.
func (s *Service) Run(ctx context.Context) error {
	defer s.wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return nil
		case unit, ok := <-s.units:
			if !ok {
				return nil
			}

			if err := s.sem.Acquire(ctx, 1); err != nil {
				slog.Warn("Dropping flushed unit on shutdown", "conversation", unit.Key)
				return nil
			}

			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				defer s.sem.Release(1)

				s.Process(ctx, unit)
			}()
		}
	}
}

// Process handles one unit. Failures, panics included, end in a best-effort
// apology to the customer and never escape.
func (s *Service) Process(ctx context.Context, unit domain.BufferedUnit) {
	if unit.Empty() {
		slog.Debug("Skipping empty unit", "conversation", unit.Key)
		return
	}

	logger := slog.With(
		"run_id", uuid.NewString(),
		"conversation", unit.Key,
	)
	start := time.Now()

	var processErr error
	err := oops.
		In("engine").
		With("conversation", unit.Key).
		Recoverf(func() {
			processErr = s.process(ctx, logger, unit)
		}, "flush pipeline panicked")
	if err == nil {
		err = processErr
	}

	if err != nil && errors.Is(ctx.Err(), context.Canceled) {
		// shutting down, the customer is not told about an interrupted run
		logger.Warn("Conversation interrupted by shutdown",
			"duration", time.Since(start),
			"error", err,
		)
		return
	}

	if err != nil {
		logger.Error("Failed to process conversation",
			"duration", time.Since(start),
			"error", err,
		)
		s.apologize(ctx, logger, unit)
		return
	}

	logger.Info("Processed conversation",
		"text", unit.Text,
		"duration", time.Since(start),
	)
}

func (s *Service) process(ctx context.Context, logger *slog.Logger, unit domain.BufferedUnit) error {
	excluding := unit.Parts
	if len(excluding) == 0 {
		excluding = []string{unit.Text}
	}

	turns := s.history.Load(ctx, unit.Event, excluding)

	result, err := s.orchestrator.Run(ctx, unit.Key, turns, unit.Text)
	reply := result.Text

	switch {
	case errors.Is(err, agent.ErrRoundLimitExceeded):
		logger.Warn("Sending fallback message", "rounds", result.Rounds, "error", err)
		reply = s.messages.Fallback
	case err != nil:
		return err
	case strings.TrimSpace(reply) == "":
		logger.Warn("Model returned an empty answer, sending fallback message", "rounds", result.Rounds)
		reply = s.messages.Fallback
	}

	logger.Debug("Orchestrator finished",
		"rounds", result.Rounds,
		"tool_calls", result.ToolCalls,
		"history", len(turns),
	)

	if err = s.dispatcher.Send(ctx, unit.Key, unit.Event, reply); err != nil {
		logger.Error("Failed to dispatch reply", "error", err)
	}

	return nil
}

func (s *Service) apologize(ctx context.Context, logger *slog.Logger, unit domain.BufferedUnit) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), apologyTimeout)
	defer cancel()

	var sendErr error
	err := oops.Recoverf(func() {
		sendErr = s.dispatcher.Send(ctx, unit.Key, unit.Event, s.messages.Apology)
	}, "apology send panicked")
	if err == nil {
		err = sendErr
	}

	if err != nil {
		logger.Error("Failed to send apology", "error", err)
	}
}
