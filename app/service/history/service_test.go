package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"barberbot/app/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockGateway struct {
	records []domain.HistoryRecord
	err     error

	calls     int
	lastLimit int
	lastCreds string
}

func (m *mockGateway) FetchHistory(_ context.Context, _ string, _ domain.ConversationKey, credentials string, limit int) ([]domain.HistoryRecord, error) {
	m.calls++
	m.lastLimit = limit
	m.lastCreds = credentials
	if m.err != nil {
		return nil, m.err
	}
	return append([]domain.HistoryRecord(nil), m.records...), nil
}

var base = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func record(id string, fromMe bool, text string, minute int) domain.HistoryRecord {
	return domain.HistoryRecord{ID: id, FromMe: fromMe, Text: text, Timestamp: base.Add(time.Duration(minute) * time.Minute)}
}

func testEvent() *domain.InboundEvent {
	return &domain.InboundEvent{Key: "5511@s.whatsapp.net", InstanceID: "shop", Credentials: "key", MessageID: "current"}
}

func TestService_Load_OrdersAndMapsRoles(t *testing.T) {
	gw := &mockGateway{records: []domain.HistoryRecord{
		record("3", true, "Claro! Qual horário?", 3),
		record("2", false, "Quero marcar um corte", 2),
		record("1", false, "Oi", 1),
	}}
	svc := NewService(gw, 10, 5)

	turns := svc.Load(context.Background(), testEvent(), nil)

	require.Len(t, turns, 3)
	assert.Equal(t, domain.ConversationTurn{Role: domain.RoleUser, Content: "Oi"}, turns[0])
	assert.Equal(t, domain.ConversationTurn{Role: domain.RoleUser, Content: "Quero marcar um corte"}, turns[1])
	assert.Equal(t, domain.ConversationTurn{Role: domain.RoleAssistant, Content: "Claro! Qual horário?"}, turns[2])
	assert.Equal(t, 10, gw.lastLimit)
	assert.Equal(t, "key", gw.lastCreds)
}

func TestService_Load_ExcludesBufferedText(t *testing.T) {
	gw := &mockGateway{records: []domain.HistoryRecord{
		record("1", false, "Oi", 1),
		record("2", true, "Olá, como posso ajudar?", 2),
		record("3", false, "  Tem horário AMANHÃ?  ", 3),
	}}
	svc := NewService(gw, 10, 5)

	turns := svc.Load(context.Background(), testEvent(), []string{"tem horário amanhã?"})

	require.Len(t, turns, 2)
	for _, turn := range turns {
		assert.NotContains(t, turn.Content, "AMANHÃ")
	}
}

func TestService_Load_ExcludesCurrentMessageID(t *testing.T) {
	gw := &mockGateway{records: []domain.HistoryRecord{
		record("1", false, "Oi", 1),
		record("current", false, "texto transcrito diferente", 2),
	}}
	svc := NewService(gw, 10, 5)

	turns := svc.Load(context.Background(), testEvent(), nil)

	require.Len(t, turns, 1)
	assert.Equal(t, "Oi", turns[0].Content)
}

func TestService_Load_DropsEmptyAndBounds(t *testing.T) {
	var records []domain.HistoryRecord
	for i := 0; i < 12; i++ {
		records = append(records, record("id", i%2 == 1, string(rune('a'+i)), i))
	}
	records = append(records, record("img", false, "   ", 20))

	gw := &mockGateway{records: records}
	svc := NewService(gw, 10, 5)

	turns := svc.Load(context.Background(), testEvent(), nil)

	require.Len(t, turns, 5)
	assert.Equal(t, "h", turns[0].Content)
	assert.Equal(t, "l", turns[4].Content)
}

func TestService_Load_GatewayFailureDegrades(t *testing.T) {
	gw := &mockGateway{err: errors.New("connection refused")}
	svc := NewService(gw, 10, 5)

	turns := svc.Load(context.Background(), testEvent(), []string{"oi"})

	assert.Empty(t, turns)
	assert.Equal(t, 1, gw.calls)
}

func TestService_Load_NilEvent(t *testing.T) {
	gw := &mockGateway{}
	svc := NewService(gw, 10, 5)

	assert.Empty(t, svc.Load(context.Background(), nil, nil))
	assert.Equal(t, 0, gw.calls)
}
