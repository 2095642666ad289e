package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConversationKey_Number(t *testing.T) {
	cases := map[ConversationKey]string{
		"5511999999999@s.whatsapp.net":    "5511999999999",
		"5511999999999:12@s.whatsapp.net": "5511999999999",
		"5511999999999@c.us":              "5511999999999",
		"5511999999999":                   "5511999999999",
	}

	for key, want := range cases {
		assert.Equal(t, want, key.Number(), string(key))
	}
}

func TestConversationKey_IsGroup(t *testing.T) {
	assert.True(t, ConversationKey("1203630@g.us").IsGroup())
	assert.True(t, ConversationKey("status@broadcast").IsGroup())
	assert.False(t, ConversationKey("5511999999999@s.whatsapp.net").IsGroup())
}

func TestToolInvocation_ArgumentsJSON(t *testing.T) {
	assert.Equal(t, `{"a":1}`, ToolInvocation{RawArguments: `{"a":1}`}.ArgumentsJSON())
	assert.Equal(t, `{"b":"x"}`, ToolInvocation{Arguments: map[string]any{"b": "x"}}.ArgumentsJSON())
	assert.Equal(t, "{}", ToolInvocation{}.ArgumentsJSON())
}

func TestToolResult_TurnContent(t *testing.T) {
	assert.Equal(t, "ok", ToolResult{Success: true, Payload: "ok"}.TurnContent())
	assert.Equal(t, "ERROR: boom", ToolResult{Payload: "boom"}.TurnContent())
}

func TestBufferedUnit_Empty(t *testing.T) {
	assert.True(t, BufferedUnit{Text: "  \n\t"}.Empty())
	assert.False(t, BufferedUnit{Text: "hi"}.Empty())
}

func TestInboundEvent_Precedes(t *testing.T) {
	base := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	at := func(sent, received time.Duration) *InboundEvent {
		return &InboundEvent{SentAt: base.Add(sent), ReceivedAt: base.Add(received)}
	}

	assert.True(t, at(0, 5*time.Second).Precedes(at(time.Second, 0)), "sent time wins over arrival")
	assert.False(t, at(time.Second, 0).Precedes(at(0, 5*time.Second)))
	assert.True(t, at(0, 0).Precedes(at(0, time.Millisecond)), "same second falls back to arrival")
	assert.False(t, at(0, 0).Precedes(at(0, 0)))

	var none *InboundEvent
	assert.False(t, none.Precedes(at(0, 0)))
	assert.False(t, at(0, 0).Precedes(nil))
}
