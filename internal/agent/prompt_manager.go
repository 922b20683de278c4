package agent

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const defaultPlannerPrompt = `You are the planning component of a personal automation assistant.
Turn the user's request into a task plan by calling the propose_plan tool exactly once.

Rules:
- Use only these kinds: mail, source_control, question_gen, calendar, notify.
  Fetched mail is summarized automatically, so never plan a separate summary task.
- Give every task a short unique id (t1, t2, ...). Dependencies may only name ids in the plan.
- Put task-specific inputs in parameters, e.g. {"action":"fetch","query":"is:unread","max_results":10}
  for mail, {"repo":"owner/name","since":"yesterday","resource":"commits"} for source_control,
  {"count":2,"topic":"arrays","difficulty":"medium"} for question_gen,
  {"action":"create","title":"...","start":"RFC3339","duration_minutes":30} for calendar.
- End the plan with a single notify task that sends the consolidated report.
- Set schedule to daily, weekly or custom when the request is recurring, otherwise once.`

// PromptManager loads prompt files from a directory. Missing files fall back
// to built-in defaults.
type PromptManager struct {
	Directory string
}

func NewPromptManager(dir string) *PromptManager {
	return &PromptManager{Directory: dir}
}

// GetPlannerPrompt returns planner.md followed by any context files
// (identity.md, user.md, then the rest alphabetically).
func (pm *PromptManager) GetPlannerPrompt() (string, error) {
	base, err := pm.read("planner.md")
	if err != nil {
		return "", err
	}
	if base == "" {
		base = defaultPlannerPrompt
	}

	extra, err := pm.contextFiles()
	if err != nil {
		return "", err
	}
	if len(extra) == 0 {
		return base, nil
	}
	return base + "\n\n---\n\n" + strings.Join(extra, "\n\n---\n\n"), nil
}

// GetExecutorPrompt returns <kind>.md, or def when the file does not exist.
func (pm *PromptManager) GetExecutorPrompt(kind, def string) string {
	content, err := pm.read(kind + ".md")
	if err != nil {
		log.Printf("Warning: Failed to read %s prompt: %v", kind, err)
	}
	if content == "" {
		return def
	}
	return content
}

func (pm *PromptManager) read(name string) (string, error) {
	if pm == nil || pm.Directory == "" {
		return "", nil
	}
	data, err := os.ReadFile(filepath.Join(pm.Directory, name))
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read prompt %s: %w", name, err)
	}
	return strings.TrimSpace(string(data)), nil
}

var contextOrder = map[string]int{
	"identity.md": 1,
	"user.md":     2,
}

func (pm *PromptManager) contextFiles() ([]string, error) {
	if pm == nil || pm.Directory == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(pm.Directory)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read prompts directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".md") || name == "planner.md" {
			continue
		}
		// executor prompts are not planner context
		if _, isKind := executorPromptNames[strings.TrimSuffix(name, ".md")]; isKind {
			continue
		}
		names = append(names, name)
	}

	sort.Slice(names, func(i, j int) bool {
		oi, okI := contextOrder[names[i]]
		oj, okJ := contextOrder[names[j]]
		if okI && okJ {
			return oi < oj
		}
		if okI != okJ {
			return okI
		}
		return names[i] < names[j]
	})

	var contents []string
	for _, name := range names {
		content, err := pm.read(name)
		if err != nil {
			log.Printf("Warning: %v", err)
			continue
		}
		if content != "" {
			contents = append(contents, content)
		}
	}
	return contents, nil
}

var executorPromptNames = map[string]struct{}{
	"mail":           {},
	"source_control": {},
	"question_gen":   {},
	"calendar":       {},
	"summarize":      {},
	"notify":         {},
}
