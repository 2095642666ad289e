package tools

import (
	"context"

	"barberbot/app/domain"

	"github.com/tmc/langchaingo/tools"
)

// Tool is a langchaingo tool that also describes its arguments. Call receives
// the arguments as a JSON object string.
type Tool interface {
	tools.Tool
	Parameters() map[string]any
}

type agentTool struct {
	name        string
	description string
	parameters  map[string]any
	call        func(ctx context.Context, input string) (string, error)
}

func (m *agentTool) Name() string {
	return m.name
}

func (m *agentTool) Description() string {
	return m.description
}

func (m *agentTool) Parameters() map[string]any {
	return m.parameters
}

func (m *agentTool) Call(ctx context.Context, input string) (string, error) {
	return m.call(ctx, input)
}

func schemaOf(t Tool) domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters:  t.Parameters(),
	}
}

type conversationKey struct{}

// WithConversation tags ctx with the conversation a tool call is made for.
func WithConversation(ctx context.Context, key domain.ConversationKey) context.Context {
	return context.WithValue(ctx, conversationKey{}, key)
}

func conversationFrom(ctx context.Context) (domain.ConversationKey, bool) {
	key, ok := ctx.Value(conversationKey{}).(domain.ConversationKey)
	return key, ok && key != ""
}

func objectSchema(properties map[string]any, required ...string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}
