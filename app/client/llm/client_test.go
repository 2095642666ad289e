package llm

import (
	"context"
	"errors"
	"testing"

	"barberbot/app/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

type fakeModel struct {
	resp *llms.ContentResponse
	err  error

	messages []llms.MessageContent
	opts     llms.CallOptions
}

func (f *fakeModel) GenerateContent(_ context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	f.messages = messages
	for _, o := range options {
		o(&f.opts)
	}
	return f.resp, f.err
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

func TestClient_Complete_Text(t *testing.T) {
	model := &fakeModel{resp: &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: "  Temos horário às 15h.  "}}}}
	client := NewClient(model, 0.4, 512)

	got, err := client.Complete(context.Background(), []domain.ConversationTurn{
		{Role: domain.RoleSystem, Content: "Você é a recepcionista."},
		{Role: domain.RoleUser, Content: "Tem horário hoje?"},
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, "Temos horário às 15h.", got.Text)
	assert.Empty(t, got.ToolCalls)

	require.Len(t, model.messages, 2)
	assert.Equal(t, llms.ChatMessageTypeSystem, model.messages[0].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, model.messages[1].Role)
	assert.Equal(t, 0.4, model.opts.Temperature)
	assert.Equal(t, 512, model.opts.MaxTokens)
	assert.Empty(t, model.opts.Tools)
	assert.Nil(t, model.opts.ToolChoice)
}

func TestClient_Complete_ToolCalls(t *testing.T) {
	model := &fakeModel{resp: &llms.ContentResponse{Choices: []*llms.ContentChoice{{
		ToolCalls: []llms.ToolCall{
			{ID: "c1", Type: "function", FunctionCall: &llms.FunctionCall{Name: "list_slots", Arguments: `{"date":"2026-03-02"}`}},
			{ID: "c2", Type: "function", FunctionCall: &llms.FunctionCall{Name: "current_datetime", Arguments: ""}},
			{ID: "c3", Type: "function", FunctionCall: &llms.FunctionCall{Name: "book", Arguments: `{broken`}},
			{ID: "c4", Type: "function"},
		},
	}}}}
	client := NewClient(model, 0.4, 0)

	schemas := []domain.ToolSchema{
		{Name: "list_slots", Description: "List free slots", Parameters: map[string]any{"type": "object"}},
		{Name: "current_datetime", Description: "Now"},
	}

	got, err := client.Complete(context.Background(), []domain.ConversationTurn{{Role: domain.RoleUser, Content: "oi"}}, schemas)
	require.NoError(t, err)

	require.Len(t, got.ToolCalls, 3)
	assert.Equal(t, domain.ToolInvocation{
		CallID:       "c1",
		Name:         "list_slots",
		Arguments:    map[string]any{"date": "2026-03-02"},
		RawArguments: `{"date":"2026-03-02"}`,
	}, got.ToolCalls[0])
	assert.Equal(t, map[string]any{}, got.ToolCalls[1].Arguments)
	assert.Equal(t, "{}", got.ToolCalls[1].RawArguments)
	assert.Nil(t, got.ToolCalls[2].Arguments)

	require.Len(t, model.opts.Tools, 2)
	assert.Equal(t, "list_slots", model.opts.Tools[0].Function.Name)
	assert.NotNil(t, model.opts.Tools[1].Function.Parameters)
	assert.Equal(t, "auto", model.opts.ToolChoice)
	assert.Zero(t, model.opts.MaxTokens)
}

func TestClient_Complete_ReplaysToolTurns(t *testing.T) {
	model := &fakeModel{resp: &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: "ok"}}}}
	client := NewClient(model, 0, 0)

	_, err := client.Complete(context.Background(), []domain.ConversationTurn{
		{Role: domain.RoleUser, Content: "marca pra mim"},
		{Role: domain.RoleAssistant, ToolCalls: []domain.ToolInvocation{
			{CallID: "c1", Name: "book", Arguments: map[string]any{"slot": "15:00"}},
		}},
		{Role: domain.RoleTool, ToolCallID: "c1", ToolName: "book", Content: "ERROR: slot taken"},
	}, nil)
	require.NoError(t, err)

	require.Len(t, model.messages, 3)

	assistant := model.messages[1]
	assert.Equal(t, llms.ChatMessageTypeAI, assistant.Role)
	require.Len(t, assistant.Parts, 1)
	call, ok := assistant.Parts[0].(llms.ToolCall)
	require.True(t, ok)
	assert.Equal(t, "c1", call.ID)
	assert.JSONEq(t, `{"slot":"15:00"}`, call.FunctionCall.Arguments)

	tool := model.messages[2]
	assert.Equal(t, llms.ChatMessageTypeTool, tool.Role)
	require.Len(t, tool.Parts, 1)
	assert.Equal(t, llms.ToolCallResponse{ToolCallID: "c1", Name: "book", Content: "ERROR: slot taken"}, tool.Parts[0])
}

func TestClient_Complete_Errors(t *testing.T) {
	client := NewClient(&fakeModel{err: errors.New("503 upstream")}, 0, 0)
	_, err := client.Complete(context.Background(), nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503 upstream")

	client = NewClient(&fakeModel{resp: &llms.ContentResponse{}}, 0, 0)
	_, err = client.Complete(context.Background(), nil, nil)
	require.Error(t, err)
}
