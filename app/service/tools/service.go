package tools

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"barberbot/app/config"
	"barberbot/app/domain"
	"barberbot/app/service/memory"
	"barberbot/app/util/clock"

	"github.com/elliotchance/pie/v2"
	"github.com/samber/do"
	"github.com/samber/oops"
)

var _ do.Shutdownable = (*Service)(nil)

// Service is the tool registry exposed to the assistant.
type Service struct {
	timeout time.Duration

	byName     map[string]Tool
	order      []Tool
	mcpClients []*mcpClientWrapper
}

func New(di *do.Injector) (*Service, error) {
	cfg := do.MustInvoke[*config.Config](di)
	appCtx := do.MustInvoke[context.Context](di)

	loc, err := time.LoadLocation(cfg.Tools.Timezone)
	if err != nil {
		return nil, oops.In("tools").Wrapf(err, "load timezone")
	}

	s := NewService(cfg.Agent.ToolTimeout)
	s.Register(createDateTimeTool(clock.Real(), loc))
	for _, t := range createNotesTools(do.MustInvoke[*memory.Service](di)) {
		s.Register(t)
	}

	s.initializeMCPClients(appCtx, cfg.Tools.MCP)

	return s, nil
}

func NewService(timeout time.Duration) *Service {
	return &Service{
		timeout: timeout,
		byName:  make(map[string]Tool),
	}
}

// Register adds t unless a tool with the same name is already known.
func (s *Service) Register(t Tool) {
	if _, exists := s.byName[t.Name()]; exists {
		slog.Warn("Duplicate tool name, ignoring", "tool", t.Name())
		return
	}

	s.byName[t.Name()] = t
	s.order = append(s.order, t)
}

// Schemas lists the tools in registration order.
func (s *Service) Schemas() []domain.ToolSchema {
	return pie.Map(s.order, schemaOf)
}

// Execute runs one invocation. It never fails: errors, timeouts and panics
// become an unsuccessful result that is handed back to the model.
func (s *Service) Execute(ctx context.Context, inv domain.ToolInvocation) (result domain.ToolResult) {
	result = domain.ToolResult{
		CallID: inv.CallID,
		Name:   inv.Name,
	}

	start := time.Now()
	payload, err := s.call(ctx, inv)
	if err != nil {
		err = oops.
			In("tools").
			Code("tool_execution_failure").
			With("tool", inv.Name).
			With("call_id", inv.CallID).
			Wrap(err)
		slog.Warn("Tool execution failed",
			"tool", inv.Name,
			"duration", time.Since(start),
			"error", err,
		)

		result.Payload = failureText(err)
		return result
	}

	slog.Debug("Tool executed",
		"tool", inv.Name,
		"duration", time.Since(start),
	)

	result.Success = true
	result.Payload = payload
	return result
}

func (s *Service) call(ctx context.Context, inv domain.ToolInvocation) (payload string, err error) {
	t, ok := s.byName[inv.Name]
	if !ok {
		return "", oops.Errorf("unknown tool %q", inv.Name)
	}

	if inv.Arguments == nil && inv.RawArguments != "" {
		return "", oops.Errorf("arguments are not a valid JSON object: %s", inv.RawArguments)
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	var callErr error
	err = oops.Recoverf(func() {
		payload, callErr = t.Call(ctx, inv.ArgumentsJSON())
	}, "tool %s panicked", inv.Name)
	if err != nil {
		return "", err
	}

	return payload, callErr
}

func failureText(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "tool timed out"
	}
	return err.Error()
}

func (s *Service) Shutdown() error {
	var errs []error
	for _, c := range s.mcpClients {
		if err := c.client.Close(); err != nil {
			errs = append(errs, oops.With("server", c.name).Wrap(err))
		}
	}
	s.mcpClients = nil

	return errors.Join(errs...)
}
