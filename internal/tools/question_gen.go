package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
)

// PromptSource supplies per-kind executor prompts.
type PromptSource interface {
	GetExecutorPrompt(kind, def string) string
}

const defaultQuestionPrompt = `You are a coding interview coach.
Write {{count}} {{difficulty}} practice problem(s) about {{topic}} in the style of {{source}}.
For each problem give a title, a short statement, one example with input and output,
and a one-line hint. Number the problems. Do not include solutions.`

// QuestionGenExecutor produces practice questions with a language model.
type QuestionGenExecutor struct {
	Model   llms.Model
	Prompts PromptSource
}

func NewQuestionGenExecutor(model llms.Model, prompts PromptSource) *QuestionGenExecutor {
	return &QuestionGenExecutor{Model: model, Prompts: prompts}
}

func (q *QuestionGenExecutor) Execute(ctx context.Context, task TaskDescriptor) (ExecutionResult, error) {
	if q.Model == nil {
		return Failure(errors.New("question generation requires an llm provider: missing api key")), nil
	}

	count := task.IntParam("count", 2)
	if count < 1 {
		count = 1
	}
	if count > 10 {
		count = 10
	}
	vars := map[string]string{
		"count":      fmt.Sprint(count),
		"topic":      task.StringParam("topic", "data structures and algorithms"),
		"difficulty": task.StringParam("difficulty", "medium"),
		"source":     task.StringParam("source", "LeetCode"),
	}

	tmpl := defaultQuestionPrompt
	if q.Prompts != nil {
		tmpl = q.Prompts.GetExecutorPrompt(string(KindQuestionGen), defaultQuestionPrompt)
	}
	prompt := render(tmpl, vars)
	if task.Description != "" {
		prompt += "\n\nUser request: " + task.Description
	}

	out, err := llms.GenerateFromSinglePrompt(ctx, q.Model, prompt, llms.WithTemperature(0.7))
	if err != nil {
		return Failure(fmt.Errorf("question generation: %w", err)), nil
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return Failure(errors.New("question generation: model returned an empty response")), nil
	}

	return ExecutionResult{
		Success: true,
		Content: out,
		StructuredData: map[string]any{
			"count":      count,
			"topic":      vars["topic"],
			"difficulty": vars["difficulty"],
		},
	}, nil
}

func render(tmpl string, vars map[string]string) string {
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{{"+k+"}}", v)
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}
