package ingress

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"barberbot/app/client/evolution"
	"barberbot/app/config"
	"barberbot/app/domain"
	"barberbot/app/service/buffer"
	"barberbot/app/service/transcribe"
	"barberbot/app/util/clock"
	"barberbot/app/util/dedupe"

	"github.com/samber/do"
	"github.com/samber/oops"
)

const (
	dedupeMaxSize        = 10000
	transcribeTimeout    = time.Minute
	voiceNotePlaceholder = "[o cliente enviou uma mensagem de voz que não pôde ser transcrita]"
)

// Ignore reasons reported back to the webhook caller.
const (
	ReasonBuffered  = "buffered"
	ReasonEvent     = "ignored_event"
	ReasonNoKey     = "no_remote_jid"
	ReasonFromMe    = "from_me"
	ReasonGroup     = "group"
	ReasonDuplicate = "duplicate"
	ReasonNoText    = "no_text"
)

type Ingester interface {
	Ingest(key domain.ConversationKey, text string, event *domain.InboundEvent)
}

type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mimetype string) (string, error)
}

type MediaSource interface {
	MediaBase64(ctx context.Context, instanceID, credentials, messageID string) ([]byte, string, error)
}

// Service normalizes gateway webhooks into buffered conversation input.
type Service struct {
	clock       clock.Clock
	ingester    Ingester
	media       MediaSource
	transcriber Transcriber
	seen        *dedupe.Cache
}

func New(di *do.Injector) (*Service, error) {
	cfg := do.MustInvoke[*config.Config](di)

	var transcriber Transcriber
	if cfg.SpeechKit.Enabled {
		transcriber = do.MustInvoke[*transcribe.Service](di)
	}

	return NewService(
		clock.Real(),
		do.MustInvoke[*buffer.Store](di),
		do.MustInvoke[*evolution.Client](di),
		transcriber,
		cfg.Server.DedupeTTL,
	), nil
}

// NewService builds the ingress. transcriber may be nil, voice notes are then
// buffered as a placeholder so the assistant can ask for text instead.
func NewService(clk clock.Clock, ingester Ingester, media MediaSource, transcriber Transcriber, dedupeTTL time.Duration) *Service {
	return &Service{
		clock:       clk,
		ingester:    ingester,
		media:       media,
		transcriber: transcriber,
		seen:        dedupe.New(clk, dedupeTTL, dedupeMaxSize),
	}
}

// Handle processes one webhook body. instance is the instance name taken from
// the url, used when the body does not carry one. Only malformed bodies are
// reported as errors; everything else is acknowledged with a reason per message.
func (s *Service) Handle(ctx context.Context, body []byte, instance string) ([]string, error) {
	var event evolution.WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, oops.
			In("ingress").
			Code("invalid_payload").
			Wrapf(err, "decode webhook")
	}

	if event.Instance == "" {
		event.Instance = instance
	}

	if event.NormalizedEvent() != evolution.EventMessagesUpsert {
		slog.Debug("Ignoring webhook event", "event", event.Event, "instance", event.Instance)
		return []string{ReasonEvent}, nil
	}

	records, err := decodeData(event.Data)
	if err != nil {
		return nil, oops.
			In("ingress").
			Code("invalid_payload").
			With("instance", event.Instance).
			Wrapf(err, "decode message data")
	}

	reasons := make([]string, 0, len(records))
	for _, raw := range records {
		reasons = append(reasons, s.handleRecord(ctx, event, raw))
	}

	return reasons, nil
}

func decodeData(data json.RawMessage) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	if trimmed[0] == '[' {
		var records []json.RawMessage
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, err
		}
		return records, nil
	}

	return []json.RawMessage{trimmed}, nil
}

func (s *Service) handleRecord(ctx context.Context, event evolution.WebhookEvent, raw json.RawMessage) string {
	var record evolution.MessageRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		slog.Warn("Skipping malformed message", "instance", event.Instance, "error", err)
		return ReasonNoText
	}

	key := domain.ConversationKey(record.Key.RemoteJID)
	switch {
	case key == "":
		return ReasonNoKey
	case record.Key.FromMe:
		return ReasonFromMe
	case key.IsGroup():
		return ReasonGroup
	}

	if record.Key.ID != "" && s.seen.CheckAndMark(event.Instance+"/"+record.Key.ID) {
		slog.Debug("Ignoring duplicate message", "conversation", key, "message_id", record.Key.ID)
		return ReasonDuplicate
	}

	// taken before transcription so a slow voice note keeps its place
	receivedAt := s.clock.Now()
	sentAt := record.MessageTimestamp.Time
	if sentAt.IsZero() {
		sentAt = receivedAt
	}

	text := strings.TrimSpace(record.Message.Text())
	if text == "" && record.Message.IsAudio() {
		text = s.voiceNoteText(ctx, event, record)
	}
	if text == "" {
		slog.Debug("Ignoring message without text",
			"conversation", key,
			"message_type", record.MessageType,
		)
		return ReasonNoText
	}

	s.ingester.Ingest(key, text, &domain.InboundEvent{
		Key:         key,
		Text:        text,
		InstanceID:  event.Instance,
		Credentials: event.APIKey,
		MessageID:   record.Key.ID,
		PushName:    record.PushName,
		SentAt:      sentAt,
		ReceivedAt:  receivedAt,
		Raw:         raw,
	})

	return ReasonBuffered
}

func (s *Service) voiceNoteText(ctx context.Context, event evolution.WebhookEvent, record evolution.MessageRecord) string {
	key := domain.ConversationKey(record.Key.RemoteJID)
	if s.transcriber == nil {
		return voiceNotePlaceholder
	}

	ctx, cancel := context.WithTimeout(ctx, transcribeTimeout)
	defer cancel()

	text, err := s.transcribeRecord(ctx, event, record)
	if err != nil {
		slog.Warn("Failed to transcribe voice note",
			"conversation", key,
			"message_id", record.Key.ID,
			"error", err,
		)
		return voiceNotePlaceholder
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return voiceNotePlaceholder
	}

	slog.Info("Transcribed voice note", "conversation", key, "length", len(text))

	return text
}

func (s *Service) transcribeRecord(ctx context.Context, event evolution.WebhookEvent, record evolution.MessageRecord) (string, error) {
	mimetype := record.Message.AudioMimetype()

	var audio []byte
	if record.Message.Base64 != "" {
		decoded, err := base64.StdEncoding.DecodeString(record.Message.Base64)
		if err != nil {
			return "", oops.In("ingress").Wrapf(err, "decode inline audio")
		}
		audio = decoded
	} else {
		fetched, fetchedMime, err := s.media.MediaBase64(ctx, event.Instance, event.APIKey, record.Key.ID)
		if err != nil {
			return "", err
		}
		audio = fetched
		if fetchedMime != "" {
			mimetype = fetchedMime
		}
	}

	return s.transcriber.Transcribe(ctx, audio, mimetype)
}
