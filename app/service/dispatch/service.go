package dispatch

import (
	"context"
	"log/slog"
	"strings"
	"unicode/utf8"

	"barberbot/app/client/evolution"
	"barberbot/app/config"
	"barberbot/app/domain"

	"github.com/samber/do"
	"github.com/samber/oops"
)

type Gateway interface {
	SendText(ctx context.Context, instanceID, number, credentials, text string) error
}

// Service delivers exactly one reply per processed unit. It does not retry.
type Service struct {
	gateway   Gateway
	dryRun    bool
	maxLength int
}

func New(di *do.Injector) (*Service, error) {
	cfg := do.MustInvoke[*config.Config](di)

	return NewService(
		do.MustInvoke[*evolution.Client](di),
		cfg.Dispatch.DryRun,
		cfg.Dispatch.MaxMessageLength,
	), nil
}

func NewService(gateway Gateway, dryRun bool, maxLength int) *Service {
	return &Service{
		gateway:   gateway,
		dryRun:    dryRun,
		maxLength: maxLength,
	}
}

func (s *Service) Send(ctx context.Context, key domain.ConversationKey, event *domain.InboundEvent, text string) error {
	text = truncate(strings.TrimSpace(text), s.maxLength)
	if text == "" {
		return nil
	}

	if event == nil {
		return oops.
			In("dispatch").
			Code("dispatch_failure").
			With("conversation", key).
			Errorf("no inbound event to address the reply")
	}

	number := key.Number()

	if s.dryRun {
		slog.Info("Replied to message (dry run)",
			"conversation", key,
			"number", number,
			"text", text,
		)
		return nil
	}

	if err := s.gateway.SendText(ctx, event.InstanceID, number, event.Credentials, text); err != nil {
		return oops.
			In("dispatch").
			Code("dispatch_failure").
			With("conversation", key).
			With("instance", event.InstanceID).
			Wrapf(err, "send reply")
	}

	slog.Info("Replied to message",
		"conversation", key,
		"length", len(text),
	)

	return nil
}

func truncate(text string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return text
	}

	runes := []rune(text)
	if limit <= 1 {
		return string(runes[:limit])
	}
	return string(runes[:limit-1]) + "…"
}
