package tools

import (
	"context"
	"errors"
	"testing"
	"time"

	"barberbot/app/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoTool(name string) Tool {
	return &agentTool{
		name:        name,
		description: "echoes its input",
		parameters:  objectSchema(map[string]any{"text": map[string]any{"type": "string"}}, "text"),
		call: func(ctx context.Context, input string) (string, error) {
			return input, nil
		},
	}
}

func TestService_SchemasInRegistrationOrder(t *testing.T) {
	svc := NewService(time.Second)
	svc.Register(echoTool("b"))
	svc.Register(echoTool("a"))
	svc.Register(echoTool("b"))

	schemas := svc.Schemas()
	require.Len(t, schemas, 2)
	assert.Equal(t, "b", schemas[0].Name)
	assert.Equal(t, "a", schemas[1].Name)
	assert.Equal(t, "object", schemas[0].Parameters["type"])
}

func TestService_Execute_Success(t *testing.T) {
	svc := NewService(time.Second)
	svc.Register(echoTool("echo"))

	result := svc.Execute(context.Background(), domain.ToolInvocation{
		CallID:    "c1",
		Name:      "echo",
		Arguments: map[string]any{"text": "oi"},
	})

	assert.Equal(t, domain.ToolResult{CallID: "c1", Name: "echo", Success: true, Payload: `{"text":"oi"}`}, result)
}

func TestService_Execute_Failures(t *testing.T) {
	svc := NewService(50 * time.Millisecond)
	svc.Register(&agentTool{name: "fails", call: func(ctx context.Context, input string) (string, error) {
		return "", errors.New("slot already booked")
	}})
	svc.Register(&agentTool{name: "panics", call: func(ctx context.Context, input string) (string, error) {
		panic("boom")
	}})
	svc.Register(&agentTool{name: "slow", call: func(ctx context.Context, input string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}})
	svc.Register(echoTool("echo"))

	tests := []struct {
		name     string
		inv      domain.ToolInvocation
		contains string
	}{
		{"error", domain.ToolInvocation{CallID: "1", Name: "fails"}, "slot already booked"},
		{"panic", domain.ToolInvocation{CallID: "2", Name: "panics"}, "panicked"},
		{"timeout", domain.ToolInvocation{CallID: "3", Name: "slow"}, "timed out"},
		{"unknown", domain.ToolInvocation{CallID: "4", Name: "missing"}, `unknown tool "missing"`},
		{"bad arguments", domain.ToolInvocation{CallID: "5", Name: "echo", RawArguments: "{oops"}, "not a valid JSON object"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := svc.Execute(context.Background(), tt.inv)

			assert.False(t, result.Success)
			assert.Equal(t, tt.inv.CallID, result.CallID)
			assert.Equal(t, tt.inv.Name, result.Name)
			assert.Contains(t, result.Payload, tt.contains)
		})
	}
}
