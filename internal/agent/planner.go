package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Hemesh11/autotasker/internal/observability"
	"github.com/Hemesh11/autotasker/internal/tools"
	"github.com/tmc/langchaingo/llms"
)

// Planner compiles a natural-language request into a TaskPlan.
type Planner interface {
	CompilePlan(ctx context.Context, request string) (*TaskPlan, error)
}

// PlannerFunc adapts a function to the Planner interface.
type PlannerFunc func(ctx context.Context, request string) (*TaskPlan, error)

func (f PlannerFunc) CompilePlan(ctx context.Context, request string) (*TaskPlan, error) {
	return f(ctx, request)
}

// LLMPlanner asks a language model for a plan through a propose_plan tool call.
type LLMPlanner struct {
	Model   llms.Model
	Prompts *PromptManager
	Logger  *observability.Logger
}

func NewLLMPlanner(model llms.Model, prompts *PromptManager, logger *observability.Logger) *LLMPlanner {
	return &LLMPlanner{
		Model:   model,
		Prompts: prompts,
		Logger:  logger,
	}
}

type proposedTask struct {
	ID           string         `json:"id"`
	Kind         string         `json:"kind"`
	Description  string         `json:"description"`
	Parameters   map[string]any `json:"parameters"`
	Dependencies []string       `json:"dependencies"`
	Priority     int            `json:"priority"`
}

type proposedPlan struct {
	Intent   string         `json:"intent"`
	Schedule string         `json:"schedule"`
	Tasks    []proposedTask `json:"tasks"`
}

var proposePlanTool = llms.Tool{
	Type: "function",
	Function: &llms.FunctionDefinition{
		Name:        "propose_plan",
		Description: "Submit the structured task plan for the user's request.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"intent": map[string]any{
					"type":        "string",
					"description": "One-line summary of what the user wants",
				},
				"schedule": map[string]any{
					"type": "string",
					"enum": []string{"once", "daily", "weekly", "custom"},
				},
				"tasks": map[string]any{
					"type": "array",
					"items": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"id": map[string]any{"type": "string"},
							"kind": map[string]any{
								"type": "string",
								"enum": []string{"mail", "source_control", "question_gen", "calendar", "notify"},
							},
							"description":  map[string]any{"type": "string"},
							"parameters":   map[string]any{"type": "object"},
							"dependencies": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
							"priority":     map[string]any{"type": "integer"},
						},
						"required": []string{"id", "kind", "description"},
					},
				},
			},
			"required": []string{"intent", "tasks"},
		},
	},
}

func (p *LLMPlanner) CompilePlan(ctx context.Context, request string) (*TaskPlan, error) {
	systemPrompt, err := p.Prompts.GetPlannerPrompt()
	if err != nil {
		return nil, fmt.Errorf("failed to load planner prompt: %w", err)
	}

	messages := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(systemPrompt)},
		},
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextPart(request)},
		},
	}

	resp, err := p.Model.GenerateContent(ctx, messages, llms.WithTools([]llms.Tool{proposePlanTool}))
	if err != nil {
		return nil, fmt.Errorf("planner model call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("planner returned no choices")
	}
	choice := resp.Choices[0]
	p.Logger.LogLLM("", request, choice.Content, choice.ToolCalls)

	for _, tc := range choice.ToolCalls {
		if tc.FunctionCall == nil || tc.FunctionCall.Name != "propose_plan" {
			continue
		}
		return parseProposedPlan(tc.FunctionCall.Arguments)
	}

	// Some models answer with the JSON in the message body instead.
	if choice.Content != "" {
		if plan, err := parseProposedPlan(choice.Content); err == nil {
			return plan, nil
		}
	}
	return nil, fmt.Errorf("planner failed to provide a plan")
}

func parseProposedPlan(raw string) (*TaskPlan, error) {
	var pp proposedPlan
	if err := json.Unmarshal([]byte(raw), &pp); err != nil {
		return nil, fmt.Errorf("failed to parse propose_plan arguments: %w", err)
	}
	if len(pp.Tasks) == 0 {
		return nil, fmt.Errorf("planner proposed an empty plan")
	}

	plan := &TaskPlan{
		Intent:    pp.Intent,
		Schedule:  parseScheduleKind(pp.Schedule),
		CreatedAt: time.Now(),
	}
	for _, t := range pp.Tasks {
		plan.Tasks = append(plan.Tasks, tools.TaskDescriptor{
			ID:           t.ID,
			Kind:         tools.ParseKind(t.Kind),
			Description:  t.Description,
			Parameters:   t.Parameters,
			Dependencies: t.Dependencies,
			Priority:     t.Priority,
		})
	}
	return plan, nil
}
