package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/Hemesh11/autotasker/internal/tools"
)

type fakeModel struct {
	resp     *llms.ContentResponse
	err      error
	messages []llms.MessageContent
}

func (m *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.messages = messages
	return m.resp, m.err
}

func (m *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func toolCallResponse(args string) *llms.ContentResponse {
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{
			ToolCalls: []llms.ToolCall{{
				ID:   "call_1",
				Type: "function",
				FunctionCall: &llms.FunctionCall{
					Name:      "propose_plan",
					Arguments: args,
				},
			}},
		}},
	}
}

func TestLLMPlanner_ToolCall(t *testing.T) {
	model := &fakeModel{resp: toolCallResponse(`{
		"intent": "daily coding practice",
		"schedule": "daily",
		"tasks": [
			{"id": "t1", "kind": "question_gen", "description": "Two medium questions", "parameters": {"count": 2}},
			{"id": "t2", "kind": "notify", "description": "Send", "dependencies": ["t1"]}
		]
	}`)}

	p := NewLLMPlanner(model, NewPromptManager(""), nil)
	plan, err := p.CompilePlan(context.Background(), "Send me 2 coding questions daily")
	require.NoError(t, err)

	assert.Equal(t, "daily coding practice", plan.Intent)
	assert.Equal(t, ScheduleDaily, plan.Schedule)
	require.Len(t, plan.Tasks, 2)
	assert.Equal(t, tools.KindQuestionGen, plan.Tasks[0].Kind)
	assert.Equal(t, 2, plan.Tasks[0].IntParam("count", 0))
	assert.Equal(t, []string{"t1"}, plan.Tasks[1].Dependencies)

	require.Len(t, model.messages, 2)
	assert.Equal(t, llms.ChatMessageTypeSystem, model.messages[0].Role)
}

func TestLLMPlanner_ContentFallback(t *testing.T) {
	model := &fakeModel{resp: &llms.ContentResponse{Choices: []*llms.ContentChoice{{
		Content: `{"intent":"inbox","tasks":[{"id":"m","kind":"email","description":"fetch"}]}`,
	}}}}

	plan, err := NewLLMPlanner(model, nil, nil).CompilePlan(context.Background(), "check inbox")
	require.NoError(t, err)
	require.Len(t, plan.Tasks, 1)
	assert.Equal(t, tools.KindMail, plan.Tasks[0].Kind)
	assert.Equal(t, ScheduleOnce, plan.Schedule)
}

func TestLLMPlanner_Errors(t *testing.T) {
	t.Run("model error", func(t *testing.T) {
		_, err := NewLLMPlanner(&fakeModel{err: errors.New("rate limited")}, nil, nil).
			CompilePlan(context.Background(), "x")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "rate limited")
	})

	t.Run("no tool call", func(t *testing.T) {
		model := &fakeModel{resp: &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: "Sure, I can help!"}}}}
		_, err := NewLLMPlanner(model, nil, nil).CompilePlan(context.Background(), "x")
		assert.Error(t, err)
	})

	t.Run("empty plan", func(t *testing.T) {
		model := &fakeModel{resp: toolCallResponse(`{"intent":"x","tasks":[]}`)}
		_, err := NewLLMPlanner(model, nil, nil).CompilePlan(context.Background(), "x")
		assert.Error(t, err)
	})
}

func TestPreparePlan(t *testing.T) {
	raw := &TaskPlan{
		Schedule: "WEEKLY",
		Tasks: []tools.TaskDescriptor{
			{ID: "n1", Kind: "notification"},
			{ID: "a", Kind: "GitHub"},
			{ID: "a", Kind: "questions", Dependencies: []string{"a", "ghost"}},
			{ID: "", Kind: "send_report"},
			{Kind: "weather"},
		},
	}

	plan := PreparePlan(raw, "weekly digest")

	assert.Equal(t, "weekly digest", plan.Intent)
	assert.Equal(t, ScheduleWeekly, plan.Schedule)
	require.Len(t, plan.Tasks, 4)

	assert.Equal(t, tools.KindSourceControl, plan.Tasks[0].Kind)
	assert.Equal(t, tools.KindQuestionGen, plan.Tasks[1].Kind)
	assert.Equal(t, tools.KindOther, plan.Tasks[2].Kind)
	assert.Equal(t, tools.KindNotify, plan.Tasks[3].Kind)
	assert.Equal(t, "n1", plan.Tasks[3].ID)

	ids := map[string]bool{}
	for _, task := range plan.Tasks {
		assert.False(t, ids[task.ID], "duplicate id %s", task.ID)
		ids[task.ID] = true
	}
	assert.Equal(t, []string{"a"}, plan.Tasks[1].Dependencies)
}

func TestPreparePlan_SynthesizesNotify(t *testing.T) {
	plan := PreparePlan(&TaskPlan{Tasks: []tools.TaskDescriptor{{ID: "notify", Kind: "mail"}}}, "mail")
	require.Len(t, plan.Tasks, 2)
	last := plan.Tasks[1]
	assert.Equal(t, tools.KindNotify, last.Kind)
	assert.Equal(t, "notify_2", last.ID)
}

func TestPreparePlan_DropsSummarizeTasks(t *testing.T) {
	plan := PreparePlan(&TaskPlan{Tasks: []tools.TaskDescriptor{
		{ID: "m", Kind: "mail"},
		{ID: "s", Kind: "summarize", Dependencies: []string{"m"}},
		{ID: "q", Kind: "question_gen", Dependencies: []string{"s"}},
	}}, "mail then questions")

	var kinds []tools.Kind
	for _, task := range plan.Tasks {
		kinds = append(kinds, task.Kind)
	}
	assert.Equal(t, []tools.Kind{tools.KindMail, tools.KindQuestionGen, tools.KindNotify}, kinds)
	assert.Empty(t, plan.Tasks[1].Dependencies)
}

func TestFallbackPlan(t *testing.T) {
	plan := FallbackPlan("Check my GitHub commits every day")
	require.Len(t, plan.Tasks, 1)
	assert.Equal(t, tools.KindNotify, plan.Tasks[0].Kind)
	assert.Equal(t, ScheduleDaily, plan.Schedule)
	assert.Equal(t, "source control", plan.Intent)
}
