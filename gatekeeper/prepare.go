package gatekeeper

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hrygo/skyroute/llm"
)

const preparePrompt = `You are a local assistant handing a task to a more capable remote model.
Summarize the conversation and describe the outstanding task.
Respond with a single JSON object, nothing else:
{"context_summary": "what has happened so far", "task_description": "what the remote model should do", "suggested_question": "one follow-up question to ask the user"}`

const fallbackSummaryMaxLen = 200

// PrepareDelegation builds the hand-off package for a remote model. It runs
// entirely on the local endpoint and therefore works offline; when even the
// local model fails, a heuristic draft built from the conversation text is
// returned so the request is never dropped.
func (c *Classifier) PrepareDelegation(ctx context.Context, conversation []llm.Message, strategy string) *DelegationDraft {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	messages := append([]llm.Message{llm.SystemPrompt(preparePrompt)}, conversation...)
	content, _, err := c.local.Chat(ctx, messages)
	if err != nil {
		slog.Warn("gatekeeper: delegation preparation call failed, using heuristic draft", "error", err)
		return heuristicDraft(conversation, strategy)
	}

	var draft DelegationDraft
	if err := json.Unmarshal([]byte(extractJSON(content)), &draft); err != nil || draft.TaskDescription == "" {
		slog.Warn("gatekeeper: delegation draft unparseable, using heuristic draft", "error", err)
		return heuristicDraft(conversation, strategy)
	}
	draft.Strategy = strategy
	return &draft
}

// heuristicDraft degrades through first paragraph, first sentence, then a
// rune-safe truncation of the last user message.
func heuristicDraft(conversation []llm.Message, strategy string) *DelegationDraft {
	lastUser := ""
	for i := len(conversation) - 1; i >= 0; i-- {
		if conversation[i].Role == "user" {
			lastUser = conversation[i].Content
			break
		}
	}

	summary := firstParagraph(lastUser)
	if summary == "" {
		summary = lastUser
	}
	if utf8.RuneCountInString(summary) > fallbackSummaryMaxLen {
		summary = truncateRunes(summary, fallbackSummaryMaxLen)
	}

	return &DelegationDraft{
		ContextSummary:    summary,
		TaskDescription:   "Continue the user's request: " + summary,
		SuggestedQuestion: "Could you confirm this is what you want me to work on?",
		Strategy:          strategy,
	}
}

func firstParagraph(content string) string {
	for _, line := range strings.Split(content, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "…"
}
