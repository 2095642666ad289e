package history

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"barberbot/app/client/evolution"
	"barberbot/app/config"
	"barberbot/app/domain"

	"github.com/elliotchance/pie/v2"
	"github.com/samber/do"
	"github.com/samber/oops"
)

// Gateway is the part of the messaging gateway the fetcher needs.
type Gateway interface {
	FetchHistory(ctx context.Context, instanceID string, key domain.ConversationKey, credentials string, limit int) ([]domain.HistoryRecord, error)
}

// Service loads a bounded, de-duplicated window of prior turns for a
// conversation. History is an optimization: failures degrade to no history.
type Service struct {
	gateway    Gateway
	fetchLimit int
	keep       int
}

func New(di *do.Injector) (*Service, error) {
	cfg := do.MustInvoke[*config.Config](di)

	return NewService(
		do.MustInvoke[*evolution.Client](di),
		cfg.History.FetchLimit,
		cfg.History.Keep,
	), nil
}

func NewService(gateway Gateway, fetchLimit, keep int) *Service {
	return &Service{
		gateway:    gateway,
		fetchLimit: fetchLimit,
		keep:       keep,
	}
}

// Load returns prior turns oldest-first. Records whose text case-insensitively
// equals one of excluding are dropped, since the gateway may already have
// stored the messages that are being processed right now.
func (s *Service) Load(ctx context.Context, event *domain.InboundEvent, excluding []string) []domain.ConversationTurn {
	if event == nil {
		return nil
	}

	records, err := s.gateway.FetchHistory(ctx, event.InstanceID, event.Key, event.Credentials, s.fetchLimit)
	if err != nil {
		err = oops.
			In("history").
			Code("context_fetch_failure").
			With("conversation", event.Key).
			Wrapf(err, "fetch history")
		slog.Warn("Proceeding without conversation history",
			"conversation", event.Key,
			"error", err,
		)
		return nil
	}

	excluded := make(map[string]struct{}, len(excluding))
	for _, text := range excluding {
		excluded[normalize(text)] = struct{}{}
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp.Before(records[j].Timestamp)
	})
	records = lastN(records, s.fetchLimit)

	records = pie.Filter(records, func(r domain.HistoryRecord) bool {
		if strings.TrimSpace(r.Text) == "" {
			return false
		}
		if event.MessageID != "" && r.ID == event.MessageID {
			return false
		}
		_, skip := excluded[normalize(r.Text)]
		return !skip
	})

	turns := pie.Map(records, toTurn)
	turns = lastN(turns, s.keep)

	slog.Debug("Loaded conversation history",
		"conversation", event.Key,
		"records", len(records),
		"turns", len(turns),
	)

	return turns
}

func toTurn(r domain.HistoryRecord) domain.ConversationTurn {
	role := domain.RoleUser
	if r.FromMe {
		role = domain.RoleAssistant
	}

	return domain.ConversationTurn{
		Role:    role,
		Content: strings.TrimSpace(r.Text),
	}
}

func normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

func lastN[T any](items []T, n int) []T {
	if n <= 0 || len(items) <= n {
		return items
	}
	return items[len(items)-n:]
}
