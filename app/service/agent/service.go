package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"barberbot/app/client/llm"
	"barberbot/app/config"
	"barberbot/app/domain"
	"barberbot/app/service/tools"

	_ "embed"

	"github.com/samber/do"
	"github.com/samber/oops"
)

//go:embed system_prompt.txt
var systemPromptTemplate string

// ErrRoundLimitExceeded is returned when the model still asks for tools on the
// last allowed round.
var ErrRoundLimitExceeded = errors.New("tool round limit exceeded")

type Backend interface {
	Complete(ctx context.Context, turns []domain.ConversationTurn, tools []domain.ToolSchema) (*llm.Completion, error)
}

type Registry interface {
	Schemas() []domain.ToolSchema
	Execute(ctx context.Context, inv domain.ToolInvocation) domain.ToolResult
}

type Options struct {
	SystemPrompt string
	// MaxRounds is the number of AI calls allowed per run.
	MaxRounds      int
	RunTimeout     time.Duration
	LLMCallTimeout time.Duration
}

type Result struct {
	Text      string
	Rounds    int
	ToolCalls int
}

// Service drives the model through tool-calling rounds until it answers in
// plain text.
type Service struct {
	backend  Backend
	registry Registry
	opts     Options
}

func New(di *do.Injector) (*Service, error) {
	cfg := do.MustInvoke[*config.Config](di)

	return NewService(
		do.MustInvoke[*llm.Client](di),
		do.MustInvoke[*tools.Service](di),
		Options{
			SystemPrompt:   cfg.Agent.SystemPrompt,
			MaxRounds:      cfg.Agent.MaxRounds,
			RunTimeout:     cfg.Agent.RunTimeout,
			LLMCallTimeout: cfg.Agent.LLMCallTimeout,
		},
	), nil
}

func NewService(backend Backend, registry Registry, opts Options) *Service {
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = systemPromptTemplate
	}
	if opts.MaxRounds <= 0 {
		opts.MaxRounds = 5
	}

	return &Service{
		backend:  backend,
		registry: registry,
		opts:     opts,
	}
}

func (s *Service) systemPrompt(key domain.ConversationKey) string {
	templateValues := map[string]any{
		"customer": key.Number(),
	}

	prompt := s.opts.SystemPrompt
	for k, v := range templateValues {
		prompt = strings.ReplaceAll(prompt, "{"+k+"}", fmt.Sprint(v))
	}

	return prompt
}

// Run answers text given the prior history of the conversation.
func (s *Service) Run(ctx context.Context, key domain.ConversationKey, history []domain.ConversationTurn, text string) (Result, error) {
	var result Result

	if s.opts.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.RunTimeout)
		defer cancel()
	}
	ctx = tools.WithConversation(ctx, key)

	turns := make([]domain.ConversationTurn, 0, len(history)+2)
	turns = append(turns, domain.ConversationTurn{Role: domain.RoleSystem, Content: s.systemPrompt(key)})
	turns = append(turns, history...)
	turns = append(turns, domain.ConversationTurn{Role: domain.RoleUser, Content: text})

	schemas := s.registry.Schemas()

	for round := 1; ; round++ {
		completion, err := s.complete(ctx, turns, schemas)
		if err != nil {
			return result, oops.
				In("agent").
				Code("ai_backend_failure").
				With("conversation", key).
				With("round", round).
				Wrap(err)
		}
		result.Rounds = round

		if len(completion.ToolCalls) == 0 {
			result.Text = completion.Text
			return result, nil
		}

		if round >= s.opts.MaxRounds {
			slog.Warn("Tool round limit exceeded",
				"conversation", key,
				"rounds", round,
				"tool_calls", result.ToolCalls,
			)
			return result, oops.
				In("agent").
				Code("tool_round_limit_exceeded").
				With("conversation", key).
				Wrap(ErrRoundLimitExceeded)
		}

		turns = append(turns, domain.ConversationTurn{
			Role:      domain.RoleAssistant,
			Content:   completion.Text,
			ToolCalls: completion.ToolCalls,
		})

		for _, inv := range completion.ToolCalls {
			if err = ctx.Err(); err != nil {
				return result, oops.
					In("agent").
					Code("ai_backend_failure").
					With("conversation", key).
					With("round", round).
					Wrapf(err, "run deadline reached")
			}

			toolResult := s.registry.Execute(ctx, inv)
			result.ToolCalls++

			slog.Debug("Tool result",
				"conversation", key,
				"round", round,
				"tool", inv.Name,
				"success", toolResult.Success,
			)

			turns = append(turns, domain.ConversationTurn{
				Role:       domain.RoleTool,
				Content:    toolResult.TurnContent(),
				ToolCallID: inv.CallID,
				ToolName:   inv.Name,
			})
		}
	}
}

func (s *Service) complete(ctx context.Context, turns []domain.ConversationTurn, schemas []domain.ToolSchema) (*llm.Completion, error) {
	if s.opts.LLMCallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.LLMCallTimeout)
		defer cancel()
	}

	return s.backend.Complete(ctx, turns, schemas)
}
