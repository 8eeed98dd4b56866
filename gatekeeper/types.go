// Package gatekeeper triages every inbound message with a lightweight local
// classifier before any costly remote call is considered.
package gatekeeper

// Category is the complexity class of an inbound message.
type Category string

const (
	CategorySimple      Category = "simple"
	CategoryMedium      Category = "medium"
	CategoryComplex     Category = "complex"
	CategorySpecialized Category = "specialized"
)

// Valid reports whether c is one of the four known categories.
func (c Category) Valid() bool {
	switch c {
	case CategorySimple, CategoryMedium, CategoryComplex, CategorySpecialized:
		return true
	}
	return false
}

// Target is where the request should be served.
type Target string

const (
	TargetLocal Target = "local"
	TargetCloud Target = "cloud"
)

// RoutingDecision is the classifier's structured verdict for one request.
// Used once per request, never persisted beyond logging.
type RoutingDecision struct {
	Category   Category `json:"category"`
	ToolNeeded bool     `json:"tool_needed"`
	TargetLLM  Target   `json:"target_llm"`
	Confidence float32  `json:"confidence"`
	Reason     string   `json:"reason"`
	// Sensitive is set by the privacy check, which runs alongside the
	// complexity classification and overrides TargetLLM to local.
	Sensitive bool `json:"-"`
}

// DelegationDraft holds the fields the classifier prepares for a remote
// hand-off: a context summary, the task, and a suggested follow-up question.
type DelegationDraft struct {
	ContextSummary    string `json:"context_summary"`
	TaskDescription   string `json:"task_description"`
	SuggestedQuestion string `json:"suggested_question"`
	Strategy          string `json:"strategy"`
}
