package tools

import (
	"context"
	"encoding/json"
	"time"

	"barberbot/app/service/memory"
	"barberbot/app/util/clock"

	"github.com/samber/oops"
)

type notesInput struct {
	Name  string   `json:"name"`
	Notes []string `json:"notes"`
}

func createDateTimeTool(clk clock.Clock, loc *time.Location) Tool {
	return &agentTool{
		name:        "current_datetime",
		description: "Returns the current date, time and weekday in the shop's timezone. Use it before reasoning about 'today', 'tomorrow' or opening hours.",
		parameters:  objectSchema(map[string]any{}),
		call: func(ctx context.Context, input string) (string, error) {
			now := clk.Now().In(loc)

			result, _ := json.Marshal(map[string]string{
				"datetime": now.Format(time.RFC3339),
				"date":     now.Format(time.DateOnly),
				"time":     now.Format("15:04"),
				"weekday":  now.Weekday().String(),
				"timezone": loc.String(),
			})
			return string(result), nil
		},
	}
}

func createNotesTools(memorySvc *memory.Service) []Tool {
	notesProperty := map[string]any{
		"type":        "array",
		"items":       map[string]any{"type": "string"},
		"description": "Short standalone facts, one per item",
	}

	return []Tool{
		&agentTool{
			name:        "customer_notes_add",
			description: "Remember facts about the current customer (preferences, name, allergies, usual barber). Facts that are already known are ignored.",
			parameters: objectSchema(map[string]any{
				"name":  map[string]any{"type": "string", "description": "Customer name, if they told it"},
				"notes": notesProperty,
			}, "notes"),
			call: func(ctx context.Context, input string) (string, error) {
				customer, err := currentCustomer(ctx)
				if err != nil {
					return "", err
				}

				var req notesInput
				if err = json.Unmarshal([]byte(input), &req); err != nil {
					return "", oops.Errorf("invalid notes JSON: %w", err)
				}

				if err = memorySvc.AddNotes([]memory.AddNotesRequest{{
					CustomerID: customer,
					Name:       req.Name,
					Notes:      req.Notes,
				}}); err != nil {
					return "", err
				}

				return "ok", nil
			},
		},
		&agentTool{
			name:        "customer_notes_delete",
			description: "Forget facts about the current customer that are outdated or wrong. Notes must match exactly.",
			parameters: objectSchema(map[string]any{
				"notes": notesProperty,
			}, "notes"),
			call: func(ctx context.Context, input string) (string, error) {
				customer, err := currentCustomer(ctx)
				if err != nil {
					return "", err
				}

				var req notesInput
				if err = json.Unmarshal([]byte(input), &req); err != nil {
					return "", oops.Errorf("invalid notes JSON: %w", err)
				}

				deleted, err := memorySvc.DeleteNotes([]memory.DeleteNotesRequest{{
					CustomerID: customer,
					Notes:      req.Notes,
				}})
				if err != nil {
					return "", err
				}

				result, _ := json.Marshal(map[string]int{"deleted": deleted})
				return string(result), nil
			},
		},
		&agentTool{
			name:        "customer_notes_search",
			description: "Returns everything remembered about the current customer.",
			parameters:  objectSchema(map[string]any{}),
			call: func(ctx context.Context, input string) (string, error) {
				customer, err := currentCustomer(ctx)
				if err != nil {
					return "", err
				}

				found, err := memorySvc.Search([]string{customer})
				if err != nil {
					return "", err
				}
				if len(found) == 0 {
					return `{"notes":[]}`, nil
				}

				result, _ := json.Marshal(found[0])
				return string(result), nil
			},
		},
	}
}

func currentCustomer(ctx context.Context) (string, error) {
	key, ok := conversationFrom(ctx)
	if !ok {
		return "", oops.Errorf("no customer in context")
	}
	return key.Number(), nil
}
