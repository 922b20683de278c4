package agent

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPromptManager_GetPlannerPrompt(t *testing.T) {
	tempDir := t.TempDir()

	files := map[string]string{
		"planner.md":      "Planner Content",
		"identity.md":     "Identity Content",
		"user.md":         "User Content",
		"extra.md":        "Extra Content",
		"question_gen.md": "Question Prompt",
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(tempDir, name), []byte(content), 0644))
	}

	pm := NewPromptManager(tempDir)
	prompt, err := pm.GetPlannerPrompt()
	require.NoError(t, err)

	for _, part := range []string{"Planner Content", "Identity Content", "User Content", "Extra Content"} {
		assert.Contains(t, prompt, part)
	}
	assert.NotContains(t, prompt, "Question Prompt")

	// Verify order
	assert.Less(t, strings.Index(prompt, "Planner Content"), strings.Index(prompt, "Identity Content"))
	assert.Less(t, strings.Index(prompt, "Identity Content"), strings.Index(prompt, "User Content"))
	assert.Less(t, strings.Index(prompt, "User Content"), strings.Index(prompt, "Extra Content"))
}

func TestPromptManager_Defaults(t *testing.T) {
	pm := NewPromptManager(filepath.Join(t.TempDir(), "missing"))
	prompt, err := pm.GetPlannerPrompt()
	require.NoError(t, err)
	assert.Contains(t, prompt, "propose_plan")

	assert.Equal(t, "fallback", pm.GetExecutorPrompt("question_gen", "fallback"))
}

func TestPromptManager_ExecutorPrompt(t *testing.T) {
	tempDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tempDir, "summarize.md"), []byte("  Be brief.\n"), 0644))

	pm := NewPromptManager(tempDir)
	assert.Equal(t, "Be brief.", pm.GetExecutorPrompt("summarize", "fallback"))
}
