package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// ConversationKey identifies a conversation by the remote participant JID,
// e.g. 5511999999999@s.whatsapp.net.
type ConversationKey string

func (k ConversationKey) String() string {
	return string(k)
}

// Number returns the key in the gateway's addressing format: the JID user part
// without server suffix or device id.
func (k ConversationKey) Number() string {
	user, _, _ := strings.Cut(string(k), "@")
	user, _, _ = strings.Cut(user, ":")
	return user
}

// IsGroup reports whether the key addresses a group chat or a broadcast list.
func (k ConversationKey) IsGroup() bool {
	s := string(k)
	return strings.HasSuffix(s, "@g.us") || strings.HasSuffix(s, "@broadcast")
}

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ConversationTurn is the unit exchanged with the AI backend.
type ConversationTurn struct {
	Role    Role
	Content string

	// ToolCallID and ToolName are set on RoleTool turns.
	ToolCallID string
	ToolName   string

	// ToolCalls is set on RoleAssistant turns that requested tools.
	ToolCalls []ToolInvocation
}

type ToolInvocation struct {
	CallID    string
	Name      string
	Arguments map[string]any
	// RawArguments is the arguments string as emitted by the model.
	RawArguments string
}

// ArgumentsJSON returns the invocation arguments as a JSON object string.
func (i ToolInvocation) ArgumentsJSON() string {
	if i.RawArguments != "" {
		return i.RawArguments
	}
	if i.Arguments == nil {
		return "{}"
	}
	data, err := json.Marshal(i.Arguments)
	if err != nil {
		return "{}"
	}
	return string(data)
}

type ToolResult struct {
	CallID  string
	Name    string
	Success bool
	Payload string
}

// TurnContent renders the result the way it is handed back to the model.
func (r ToolResult) TurnContent() string {
	if r.Success {
		return r.Payload
	}
	return "ERROR: " + r.Payload
}

// ToolSchema advertises a tool to the AI backend. Parameters is a JSON Schema object.
type ToolSchema struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// InboundEvent is a normalized messages.upsert webhook event.
type InboundEvent struct {
	Key         ConversationKey
	Text        string
	InstanceID  string
	Credentials string
	MessageID   string
	PushName    string

	// SentAt is the gateway message timestamp, ReceivedAt when the webhook arrived.
	SentAt     time.Time
	ReceivedAt time.Time
	Raw        json.RawMessage
}

// Precedes reports whether e was sent before other. Gateway timestamps have
// second resolution, ties are broken by webhook arrival. Nil events never
// precede anything.
func (e *InboundEvent) Precedes(other *InboundEvent) bool {
	if e == nil || other == nil {
		return false
	}
	if !e.SentAt.Equal(other.SentAt) {
		return e.SentAt.Before(other.SentAt)
	}
	return e.ReceivedAt.Before(other.ReceivedAt)
}

// BufferedUnit is the coalesced unit of work produced by a buffer flush.
type BufferedUnit struct {
	Key        ConversationKey
	Text       string
	Parts      []string
	Event      *InboundEvent
	Generation uint64
	FlushedAt  time.Time
}

// Empty reports whether the unit carries no processable text.
func (u BufferedUnit) Empty() bool {
	return strings.TrimSpace(u.Text) == ""
}

// HistoryRecord is one stored message returned by the messaging gateway.
type HistoryRecord struct {
	ID        string
	FromMe    bool
	Text      string
	Timestamp time.Time
}
