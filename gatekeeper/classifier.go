package gatekeeper

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/skyroute/llm"
)

const classifyPrompt = `You are a routing gatekeeper for an AI assistant. Classify the user's message.
Respond with a single JSON object, nothing else:
{"category": "simple|medium|complex|specialized", "tool_needed": true|false, "target_llm": "local|cloud", "confidence": 0.0-1.0, "reason": "one short sentence"}

Guidelines:
- "simple": greetings, smalltalk, single-fact questions a small on-device model answers well.
- "medium": multi-step questions, short documents, everyday reasoning.
- "complex": long documents, deep analysis, multi-turn synthesis.
- "specialized": code, law, medicine, or other domains needing expert knowledge.`

// ErrSensitiveRequiresLocal is returned when sensitive content cannot be
// processed because no local model is available. Sending it to a remote
// provider requires an explicit user override.
var ErrSensitiveRequiresLocal = errors.New("this message contains sensitive content and the local model is unavailable: it was not sent anywhere; retry with an explicit override to allow cloud processing")

// conservativeDefault is the decision used whenever the classifier cannot
// produce a parseable verdict. Biased toward not under-serving the user:
// medium/cloud costs more but never gives a degraded answer.
func conservativeDefault(reason string) RoutingDecision {
	return RoutingDecision{
		Category:   CategoryMedium,
		TargetLLM:  TargetCloud,
		Confidence: 0.3,
		Reason:     reason,
	}
}

// Classifier runs the local gatekeeper model plus the privacy check.
type Classifier struct {
	local    llm.Service
	detector *SensitiveDetector
}

// NewClassifier creates a gatekeeper classifier over the local model
// endpoint.
func NewClassifier(local llm.Service) *Classifier {
	return &Classifier{local: local, detector: NewSensitiveDetector()}
}

// Classify produces a routing decision for one message. Classifier failures
// are never surfaced: any unparseable or failed local call degrades to the
// conservative default. The privacy check runs concurrently and forces
// target_llm=local whenever content is flagged sensitive.
func (c *Classifier) Classify(ctx context.Context, message string) RoutingDecision {
	type sensitiveResult struct {
		flagged bool
		reasons []string
	}
	sensitiveCh := make(chan sensitiveResult, 1)
	go func() {
		flagged, reasons := c.detector.Detect(message)
		sensitiveCh <- sensitiveResult{flagged: flagged, reasons: reasons}
	}()

	decision := c.classifyLLM(ctx, message)

	sens := <-sensitiveCh
	if sens.flagged {
		decision.Sensitive = true
		decision.TargetLLM = TargetLocal
		slog.Info("gatekeeper: sensitive content detected, forcing local target",
			"reasons", strings.Join(sens.reasons, ","))
	}

	slog.Debug("gatekeeper: message classified",
		"category", string(decision.Category),
		"target", string(decision.TargetLLM),
		"confidence", decision.Confidence,
		"sensitive", decision.Sensitive)
	return decision
}

func (c *Classifier) classifyLLM(ctx context.Context, message string) RoutingDecision {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	content, _, err := c.local.Chat(ctx, []llm.Message{
		llm.SystemPrompt(classifyPrompt),
		llm.UserMessage(message),
	})
	if err != nil {
		slog.Warn("gatekeeper: classifier call failed, using conservative default", "error", err)
		return conservativeDefault("classifier unavailable")
	}

	var decision RoutingDecision
	if err := json.Unmarshal([]byte(extractJSON(content)), &decision); err != nil {
		slog.Warn("gatekeeper: classifier output unparseable, using conservative default", "error", err)
		return conservativeDefault("classifier output unparseable")
	}
	if !decision.Category.Valid() {
		slog.Warn("gatekeeper: classifier returned unknown category, using conservative default", "category", string(decision.Category))
		return conservativeDefault("unknown category")
	}
	if decision.TargetLLM != TargetLocal && decision.TargetLLM != TargetCloud {
		decision.TargetLLM = TargetCloud
	}
	return decision
}

// EnforcePrivacy applies the hard stop for sensitive content: when the
// decision is flagged sensitive and no local model is available, the
// request must not proceed unless the user explicitly overrides.
func EnforcePrivacy(decision RoutingDecision, localAvailable, userOverride bool) error {
	if !decision.Sensitive {
		return nil
	}
	if localAvailable || userOverride {
		return nil
	}
	return ErrSensitiveRequiresLocal
}

// AnswerLocally serves a simple-category request directly on the local
// model. This is the only path that bypasses the credit gate entirely.
func (c *Classifier) AnswerLocally(ctx context.Context, history []llm.Message, message string) (string, error) {
	messages := append([]llm.Message{
		llm.SystemPrompt("You are a helpful on-device assistant. Answer briefly and directly."),
	}, history...)
	messages = append(messages, llm.UserMessage(message))

	content, _, err := c.local.Chat(ctx, messages)
	if err != nil {
		return "", errors.Wrap(err, "local answer failed")
	}
	return content, nil
}

// extractJSON pulls the outermost JSON object out of a model response that
// may wrap it in prose or a code fence.
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return s
	}
	return s[start : end+1]
}
