// Package attribution detects AI coding tools from commit metadata.
//
// Commit messages and author strings are written by arbitrary contributors,
// so every pattern here is RE2 (linear time) and uses bounded repetition,
// with no two unbounded quantifiers in sequence.
package attribution

import (
	"regexp"
	"strings"
)

// Source records which kind of evidence produced an attribution.
type Source string

const (
	SourceCoAuthor       Source = "co_author"
	SourceMessagePattern Source = "message_pattern"
	SourceAuthorField    Source = "author_field"
)

// Confidence grades an attribution.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
)

// Tool identifiers.
const (
	ToolClaudeCode    = "claude_code"
	ToolGitHubCopilot = "github_copilot"
	ToolCursor        = "cursor"
	ToolCodex         = "codex"
	ToolAider         = "aider"
	ToolGemini        = "gemini"
	ToolWindsurf      = "windsurf"
	ToolDevin         = "devin"
	ToolJules         = "jules"
	ToolAmazonQ       = "amazon_q"
)

// Attribution ties a commit to one AI tool.
type Attribution struct {
	Tool       string
	Model      string
	Source     Source
	Confidence Confidence
}

// ModelExtractor derives a model name from a rule's submatches.
type ModelExtractor func(submatches []string) string

// Rule is one row of the detection table.
type Rule struct {
	Name       string
	Pattern    *regexp.Regexp
	Tool       string
	Source     Source
	Confidence Confidence
	Model      ModelExtractor
}

func coAuthor(name, tool, pattern string, model ModelExtractor) Rule {
	return Rule{Name: name, Pattern: regexp.MustCompile(pattern), Tool: tool, Source: SourceCoAuthor, Confidence: ConfidenceHigh, Model: model}
}

func signature(name, tool, pattern string) Rule {
	return Rule{Name: name, Pattern: regexp.MustCompile(pattern), Tool: tool, Source: SourceMessagePattern, Confidence: ConfidenceMedium}
}

func author(name, tool, pattern string) Rule {
	return Rule{Name: name, Pattern: regexp.MustCompile(pattern), Tool: tool, Source: SourceAuthorField, Confidence: ConfidenceHigh}
}

// MessageRules are evaluated in order against the commit message. Co-author
// trailers come first so they win over looser message signatures.
var MessageRules = []Rule{
	coAuthor("claude-co-author", ToolClaudeCode,
		`(?i)co-authored-by:[ \t]{0,4}claude(?:[ \t]{1,4}code)?(?:[ \t]{1,4}((?:opus|sonnet|haiku)(?:[ \t]{1,4}[0-9][0-9.]{0,5})?))?(?:[ \t]{1,4}\([^)\n]{0,40}\))?[ \t]{0,4}<noreply@anthropic\.com>`,
		firstGroupSlug),
	coAuthor("copilot-co-author", ToolGitHubCopilot,
		`(?i)co-authored-by:[^\n<]{0,80}copilot`, nil),
	coAuthor("cursor-co-author", ToolCursor,
		`(?i)co-authored-by:[^\n]{0,160}(?:\bcursor agent\b|@cursor\.com>)`, nil),
	coAuthor("codex-co-author", ToolCodex,
		`(?i)co-authored-by:[^\n]{0,160}(?:\bcodex\b|@openai\.com>)`, nil),
	coAuthor("aider-co-author", ToolAider,
		`(?i)co-authored-by:[ \t]{0,4}aider(?:[ \t]{1,4}\(([^)\n]{1,80})\))?`,
		lastPathSegment),
	coAuthor("gemini-co-author", ToolGemini,
		`(?i)co-authored-by:[^\n<]{0,80}\bgemini\b`, nil),
	coAuthor("windsurf-co-author", ToolWindsurf,
		`(?i)co-authored-by:[^\n<]{0,80}\b(?:windsurf|codeium)\b`, nil),
	coAuthor("amazon-q-co-author", ToolAmazonQ,
		`(?i)co-authored-by:[^\n<]{0,80}\bamazon q\b`, nil),
	coAuthor("devin-co-author", ToolDevin,
		`(?i)co-authored-by:[^\n]{0,160}devin-ai-integration`, nil),
	coAuthor("jules-co-author", ToolJules,
		`(?i)co-authored-by:[^\n]{0,160}google-labs-jules`, nil),

	signature("claude-code-signature", ToolClaudeCode,
		`(?i)generated with \[?claude code\]?`),
	signature("copilot-signature", ToolGitHubCopilot,
		`(?i)\bgenerated (?:by|with) (?:github )?copilot\b`),
	signature("cursor-signature", ToolCursor,
		`(?i)\bgenerated (?:by|with) cursor\b`),
	signature("codex-signature", ToolCodex,
		`(?i)\bgenerated (?:by|with) (?:openai )?codex\b`),
	signature("aider-prefix", ToolAider,
		`(?im)^aider: `),
	signature("gemini-signature", ToolGemini,
		`(?i)\bgenerated (?:by|with) gemini(?: cli)?\b`),
	signature("windsurf-signature", ToolWindsurf,
		`(?i)\bgenerated (?:by|with) windsurf\b`),
}

// AuthorRules are evaluated against "name <email>" for bot accounts that
// are identifiable by committer identity alone.
var AuthorRules = []Rule{
	author("copilot-author", ToolGitHubCopilot,
		`(?i)(?:^(?:github[ -])?copilot(?:-swe-agent)?(?:\[bot\])? <|[+]copilot@users\.noreply\.github\.com>$)`),
	author("claude-author", ToolClaudeCode,
		`(?i)(?:^claude(?:\[bot\])? <|<noreply@anthropic\.com>$)`),
	author("cursor-author", ToolCursor,
		`(?i)(?:^cursor(?: agent|agent)? <|<cursoragent@cursor\.com>$)`),
	author("devin-author", ToolDevin,
		`(?i)devin-ai-integration\[bot\]`),
	author("jules-author", ToolJules,
		`(?i)google-labs-jules\[bot\]`),
	author("codex-author", ToolCodex,
		`(?i)chatgpt-codex-connector\[bot\]`),
}

// DetectAll returns one attribution per distinct tool found in the commit
// message or author fields, in rule order. The first rule matching a tool
// decides its source and model. It returns an empty slice when nothing
// matches.
func DetectAll(message, authorName, authorEmail string) []Attribution {
	found := make([]Attribution, 0, 2)
	seen := make(map[string]struct{}, 2)

	apply := func(rules []Rule, input string) {
		if input == "" {
			return
		}
		for _, rule := range rules {
			if _, dup := seen[rule.Tool]; dup {
				continue
			}
			m := rule.Pattern.FindStringSubmatch(input)
			if m == nil {
				continue
			}
			a := Attribution{Tool: rule.Tool, Source: rule.Source, Confidence: rule.Confidence}
			if rule.Model != nil {
				a.Model = rule.Model(m)
			}
			seen[rule.Tool] = struct{}{}
			found = append(found, a)
		}
	}

	apply(MessageRules, message)
	apply(AuthorRules, authorString(authorName, authorEmail))
	return found
}

// Primary returns the first attribution, kept on the commit row for simple
// single-tool queries.
func Primary(attributions []Attribution) (Attribution, bool) {
	if len(attributions) == 0 {
		return Attribution{}, false
	}
	return attributions[0], true
}

func authorString(name, email string) string {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	switch {
	case name == "" && email == "":
		return ""
	case email == "":
		return name + " <>"
	default:
		return name + " <" + email + ">"
	}
}

// firstGroupSlug turns "Opus 4.5" into "opus-4.5".
func firstGroupSlug(m []string) string {
	if len(m) < 2 {
		return ""
	}
	return strings.Join(strings.Fields(strings.ToLower(m[1])), "-")
}

// lastPathSegment turns "openai/gpt-4o" into "gpt-4o".
func lastPathSegment(m []string) string {
	if len(m) < 2 || m[1] == "" {
		return ""
	}
	v := strings.ToLower(strings.TrimSpace(m[1]))
	if i := strings.LastIndex(v, "/"); i >= 0 {
		v = v[i+1:]
	}
	return v
}
