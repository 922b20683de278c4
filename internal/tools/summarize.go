package tools

import (
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"
	"github.com/microcosm-cc/bluemonday"
	"github.com/tmc/langchaingo/llms"
)

const defaultSummaryPrompt = `Summarize the following content for a busy reader.
Use at most {{bullets}} short bullet points. Call out deadlines, requests and action items.

-- CONTENT --
{{content}}`

const maxSummaryInput = 50000

// SummarizeExecutor condenses text, an HTML document or a web page.
// Parameters: "content", "html" or "url". Without a model it falls back to
// an extractive summary.
type SummarizeExecutor struct {
	Model     llms.Model
	Prompts   PromptSource
	Client    *http.Client
	UserAgent string
}

func NewSummarizeExecutor(model llms.Model, prompts PromptSource) *SummarizeExecutor {
	return &SummarizeExecutor{
		Model:     model,
		Prompts:   prompts,
		Client:    &http.Client{Timeout: 30 * time.Second},
		UserAgent: "Mozilla/5.0 (compatible; AutoTasker/1.0)",
	}
}

func (s *SummarizeExecutor) Execute(ctx context.Context, task TaskDescriptor) (ExecutionResult, error) {
	text, title, err := s.input(ctx, task)
	if err != nil {
		return Failure(err), nil
	}
	if strings.TrimSpace(text) == "" {
		return Failure(errors.New("summarize: nothing to summarize, content is missing")), nil
	}
	if len(text) > maxSummaryInput {
		text = text[:maxSummaryInput] + "\n... (content truncated) ..."
	}

	bullets := task.IntParam("bullets", 5)
	if s.Model == nil {
		return ExecutionResult{
			Success:        true,
			Content:        extractive(text, bullets),
			StructuredData: map[string]any{"title": title, "mode": "extractive"},
		}, nil
	}

	tmpl := defaultSummaryPrompt
	if s.Prompts != nil {
		tmpl = s.Prompts.GetExecutorPrompt(string(KindSummarize), defaultSummaryPrompt)
	}
	prompt := render(tmpl, map[string]string{
		"bullets": fmt.Sprint(bullets),
		"content": text,
	})
	out, err := llms.GenerateFromSinglePrompt(ctx, s.Model, prompt, llms.WithTemperature(0.2))
	if err != nil {
		return Failure(fmt.Errorf("summarize: %w", err)), nil
	}
	return ExecutionResult{
		Success:        true,
		Content:        strings.TrimSpace(out),
		StructuredData: map[string]any{"title": title, "mode": "llm"},
	}, nil
}

// input resolves the text to summarize, preferring an explicit html body,
// then a url, then plain content.
func (s *SummarizeExecutor) input(ctx context.Context, task TaskDescriptor) (string, string, error) {
	if doc := task.StringParam("html", ""); doc != "" {
		base, _ := url.Parse("https://mail.invalid/")
		text, title, err := extractArticle(strings.NewReader(doc), base)
		if err == nil && strings.TrimSpace(text) != "" {
			return text, title, nil
		}
	}
	if raw := task.StringParam("url", ""); raw != "" {
		return s.fetch(ctx, raw)
	}
	return sanitize(task.StringParam("content", "")), "", nil
}

// sanitize strips any markup and leaves plain text.
func sanitize(s string) string {
	return html.UnescapeString(bluemonday.StrictPolicy().Sanitize(s))
}

func (s *SummarizeExecutor) fetch(ctx context.Context, raw string) (string, string, error) {
	pageURL, err := url.Parse(raw)
	if err != nil || pageURL.Scheme == "" {
		return "", "", fmt.Errorf("summarize: invalid url %q", raw)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, raw, nil)
	if err != nil {
		return "", "", fmt.Errorf("failed to create request: %w", err)
	}
	if s.UserAgent != "" {
		req.Header.Set("User-Agent", s.UserAgent)
	}

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("failed to fetch url: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("failed to fetch url: status %d %s", resp.StatusCode, strings.ToLower(http.StatusText(resp.StatusCode)))
	}
	return extractArticle(resp.Body, pageURL)
}

func extractArticle(r io.Reader, base *url.URL) (string, string, error) {
	article, err := readability.FromReader(r, base)
	if err != nil {
		return "", "", fmt.Errorf("failed to parse article: %w", err)
	}
	return strings.TrimSpace(sanitize(article.TextContent)), article.Title, nil
}

// extractive keeps the first n non-empty lines.
func extractive(text string, n int) string {
	if n <= 0 {
		n = 5
	}
	var lines []string
	for _, l := range strings.Split(text, "\n") {
		l = strings.Join(strings.Fields(l), " ")
		if l == "" {
			continue
		}
		if len(l) > 200 {
			l = l[:197] + "..."
		}
		lines = append(lines, "- "+l)
		if len(lines) == n {
			break
		}
	}
	return strings.Join(lines, "\n")
}
