package llm

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"barberbot/app/config"
	"barberbot/app/domain"

	"github.com/samber/do"
	"github.com/samber/oops"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// Completion is one model response: either final text or a batch of tool calls.
type Completion struct {
	Text      string
	ToolCalls []domain.ToolInvocation
}

// Client is the AI backend. Any llms.Model speaking the chat protocol works.
type Client struct {
	model       llms.Model
	temperature float64
	maxTokens   int
}

func New(di *do.Injector) (*Client, error) {
	cfg := do.MustInvoke[*config.Config](di)

	model, err := createModel(cfg.OpenAI, &http.Client{
		Timeout: cfg.Agent.LLMCallTimeout,
	})
	if err != nil {
		return nil, err
	}

	return NewClient(model, cfg.OpenAI.Temperature, cfg.OpenAI.MaxTokens), nil
}

func NewClient(model llms.Model, temperature float64, maxTokens int) *Client {
	return &Client{
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
	}
}

func createModel(cfg config.ModelConfig, httpClient *http.Client) (llms.Model, error) {
	model, err := openai.New(
		openai.WithToken(cfg.Token),
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithModel(cfg.Model),
		openai.WithHTTPClient(httpClient),
		openai.WithCallback(LogCallbackHandler{}),
	)
	if err != nil {
		return nil, oops.In("llm").Wrapf(err, "create openai model")
	}

	return model, nil
}

// Complete sends the conversation to the model, advertising tools with
// automatic tool choice.
func (c *Client) Complete(ctx context.Context, turns []domain.ConversationTurn, tools []domain.ToolSchema) (*Completion, error) {
	options := []llms.CallOption{
		llms.WithTemperature(c.temperature),
	}
	if c.maxTokens > 0 {
		options = append(options, llms.WithMaxTokens(c.maxTokens))
	}
	if len(tools) > 0 {
		options = append(options,
			llms.WithTools(toLLMTools(tools)),
			llms.WithToolChoice("auto"),
		)
	}

	resp, err := c.model.GenerateContent(ctx, toMessages(turns), options...)
	if err != nil {
		return nil, oops.
			In("llm").
			Code("ai_backend_failure").
			With("turns", len(turns)).
			Wrapf(err, "generate content")
	}

	if len(resp.Choices) == 0 {
		return nil, oops.
			In("llm").
			Code("ai_backend_failure").
			Errorf("no choices in model response")
	}

	choice := resp.Choices[0]
	result := &Completion{
		Text: strings.TrimSpace(choice.Content),
	}

	for _, call := range choice.ToolCalls {
		if call.FunctionCall == nil {
			continue
		}
		result.ToolCalls = append(result.ToolCalls, toInvocation(call))
	}

	return result, nil
}

func toInvocation(call llms.ToolCall) domain.ToolInvocation {
	inv := domain.ToolInvocation{
		CallID:       call.ID,
		Name:         call.FunctionCall.Name,
		RawArguments: call.FunctionCall.Arguments,
	}

	if strings.TrimSpace(inv.RawArguments) == "" {
		inv.RawArguments = "{}"
		inv.Arguments = map[string]any{}
		return inv
	}

	if err := json.Unmarshal([]byte(inv.RawArguments), &inv.Arguments); err != nil {
		// left nil, the registry reports the bad arguments back to the model
		slog.Warn("Model emitted malformed tool arguments",
			"tool", inv.Name,
			"arguments", inv.RawArguments,
			"error", err,
		)
	}

	return inv
}

func toLLMTools(schemas []domain.ToolSchema) []llms.Tool {
	result := make([]llms.Tool, 0, len(schemas))
	for _, s := range schemas {
		params := s.Parameters
		if params == nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		result = append(result, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        s.Name,
				Description: s.Description,
				Parameters:  params,
			},
		})
	}
	return result
}

func toMessages(turns []domain.ConversationTurn) []llms.MessageContent {
	result := make([]llms.MessageContent, 0, len(turns))

	for _, turn := range turns {
		switch turn.Role {
		case domain.RoleSystem:
			result = append(result, llms.TextParts(llms.ChatMessageTypeSystem, turn.Content))
		case domain.RoleUser:
			result = append(result, llms.TextParts(llms.ChatMessageTypeHuman, turn.Content))
		case domain.RoleAssistant:
			msg := llms.MessageContent{Role: llms.ChatMessageTypeAI}
			if turn.Content != "" {
				msg.Parts = append(msg.Parts, llms.TextContent{Text: turn.Content})
			}
			for _, call := range turn.ToolCalls {
				msg.Parts = append(msg.Parts, llms.ToolCall{
					ID:   call.CallID,
					Type: "function",
					FunctionCall: &llms.FunctionCall{
						Name:      call.Name,
						Arguments: call.ArgumentsJSON(),
					},
				})
			}
			result = append(result, msg)
		case domain.RoleTool:
			result = append(result, llms.MessageContent{
				Role: llms.ChatMessageTypeTool,
				Parts: []llms.ContentPart{
					llms.ToolCallResponse{
						ToolCallID: turn.ToolCallID,
						Name:       turn.ToolName,
						Content:    turn.Content,
					},
				},
			})
		}
	}

	return result
}
