package attribution

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectAll_ClaudeCoAuthorWithModel(t *testing.T) {
	msg := "feat: add sync engine\n\nCo-Authored-By: Claude Opus 4.5 <noreply@anthropic.com>"

	got := DetectAll(msg, "Dev", "dev@example.com")

	require.Len(t, got, 1)
	assert.Equal(t, Attribution{
		Tool:       ToolClaudeCode,
		Model:      "opus-4.5",
		Source:     SourceCoAuthor,
		Confidence: ConfidenceHigh,
	}, got[0])
}

func TestDetectAll_NoMarkers(t *testing.T) {
	got := DetectAll("fix: handle nil pointer in parser", "Dev", "dev@example.com")
	assert.Empty(t, got)
	assert.NotNil(t, got)
}

func TestDetectAll_TwoToolsEachOnce(t *testing.T) {
	msg := strings.Join([]string{
		"refactor: split provider adapters",
		"",
		"Co-Authored-By: Claude <noreply@anthropic.com>",
		"Co-authored-by: Copilot <175728472+Copilot@users.noreply.github.com>",
		"Co-Authored-By: Claude Sonnet 4.5 <noreply@anthropic.com>",
		"Generated with GitHub Copilot",
	}, "\n")

	got := DetectAll(msg, "", "")

	require.Len(t, got, 2)
	assert.Equal(t, ToolClaudeCode, got[0].Tool)
	assert.Equal(t, "", got[0].Model, "first matching trailer decides the model")
	assert.Equal(t, ToolGitHubCopilot, got[1].Tool)
	assert.Equal(t, SourceCoAuthor, got[1].Source)
}

func TestDetectAll_CoAuthorBeatsSignature(t *testing.T) {
	msg := "chore: bump deps\n\n🤖 Generated with [Claude Code](https://claude.com/claude-code)\n\nCo-Authored-By: Claude <noreply@anthropic.com>"

	got := DetectAll(msg, "", "")

	require.Len(t, got, 1)
	assert.Equal(t, SourceCoAuthor, got[0].Source)
}

func TestMessageRules(t *testing.T) {
	tests := []struct {
		name   string
		msg    string
		tool   string
		model  string
		source Source
	}{
		{"claude sonnet trailer", "x\n\nCo-Authored-By: Claude Sonnet 4 <noreply@anthropic.com>", ToolClaudeCode, "sonnet-4", SourceCoAuthor},
		{"claude code trailer has no model", "x\n\nCo-Authored-By: Claude Code <noreply@anthropic.com>", ToolClaudeCode, "", SourceCoAuthor},
		{"claude trailer with context suffix", "x\n\nCo-Authored-By: Claude Sonnet 4.5 (1M context) <noreply@anthropic.com>", ToolClaudeCode, "sonnet-4.5", SourceCoAuthor},
		{"claude opus trailer", "x\n\nCo-Authored-By: Claude Opus 4.1 <noreply@anthropic.com>", ToolClaudeCode, "opus-4.1", SourceCoAuthor},
		{"claude code signature", "x\n\nGenerated with [Claude Code](https://claude.ai/code)", ToolClaudeCode, "", SourceMessagePattern},
		{"cursor agent trailer", "x\n\nCo-authored-by: Cursor Agent <cursoragent@cursor.com>", ToolCursor, "", SourceCoAuthor},
		{"codex trailer", "x\n\nCo-authored-by: Codex <codex@openai.com>", ToolCodex, "", SourceCoAuthor},
		{"aider trailer with model", "x\n\nCo-authored-by: aider (openai/gpt-4o) <noreply@aider.chat>", ToolAider, "gpt-4o", SourceCoAuthor},
		{"aider prefix", "aider: fix flaky test", ToolAider, "", SourceMessagePattern},
		{"gemini signature", "docs: update\n\nGenerated with Gemini CLI", ToolGemini, "", SourceMessagePattern},
		{"windsurf trailer", "x\n\nCo-authored-by: Windsurf <windsurf@codeium.com>", ToolWindsurf, "", SourceCoAuthor},
		{"devin trailer", "x\n\nCo-authored-by: devin-ai-integration[bot] <158243242+devin-ai-integration[bot]@users.noreply.github.com>", ToolDevin, "", SourceCoAuthor},
		{"jules trailer", "x\n\nCo-authored-by: google-labs-jules[bot] <161369871+google-labs-jules[bot]@users.noreply.github.com>", ToolJules, "", SourceCoAuthor},
		{"amazon q trailer", "x\n\nCo-authored-by: Amazon Q <q@amazon.com>", ToolAmazonQ, "", SourceCoAuthor},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DetectAll(tt.msg, "", "")
			require.NotEmpty(t, got)
			assert.Equal(t, tt.tool, got[0].Tool)
			assert.Equal(t, tt.model, got[0].Model)
			assert.Equal(t, tt.source, got[0].Source)
		})
	}
}

func TestAuthorRules(t *testing.T) {
	tests := []struct {
		name  string
		aName string
		email string
		tool  string
	}{
		{"copilot swe agent", "Copilot", "198982749+Copilot@users.noreply.github.com", ToolGitHubCopilot},
		{"copilot bot name", "copilot-swe-agent[bot]", "", ToolGitHubCopilot},
		{"claude app", "claude[bot]", "209825114+claude[bot]@users.noreply.github.com", ToolClaudeCode},
		{"cursor agent", "Cursor Agent", "cursoragent@cursor.com", ToolCursor},
		{"devin", "devin-ai-integration[bot]", "158243242+devin-ai-integration[bot]@users.noreply.github.com", ToolDevin},
		{"jules", "google-labs-jules[bot]", "", ToolJules},
		{"codex", "chatgpt-codex-connector[bot]", "", ToolCodex},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DetectAll("plain message", tt.aName, tt.email)
			require.Len(t, got, 1)
			assert.Equal(t, tt.tool, got[0].Tool)
			assert.Equal(t, SourceAuthorField, got[0].Source)
		})
	}
}

func TestAuthorRuleDoesNotDuplicateMessageMatch(t *testing.T) {
	got := DetectAll("x\n\nCo-authored-by: Cursor Agent <cursoragent@cursor.com>", "Cursor Agent", "cursoragent@cursor.com")
	require.Len(t, got, 1)
	assert.Equal(t, SourceCoAuthor, got[0].Source)
}

func TestPrimary(t *testing.T) {
	_, ok := Primary(nil)
	assert.False(t, ok)

	p, ok := Primary([]Attribution{{Tool: ToolCursor}, {Tool: ToolClaudeCode}})
	assert.True(t, ok)
	assert.Equal(t, ToolCursor, p.Tool)
}

func TestDetectAll_AdversarialInputIsFast(t *testing.T) {
	msg := "Co-authored-by:" + strings.Repeat(" \t", 50000) + strings.Repeat("a", 100000) + "\n" +
		strings.Repeat("co-authored-by: claude ", 20000)

	start := time.Now()
	_ = DetectAll(msg, strings.Repeat("copilot", 10000), strings.Repeat("x", 10000))
	assert.Less(t, time.Since(start), 2*time.Second)
}
