package dispatch

import (
	"fmt"
	"strings"

	"github.com/hrygo/skyroute/store"
)

// BuildCloudInstruction frames the remote model's role so the call is
// stateless and context-complete in one shot: the remote side never sees
// the original conversation, only the summarized hand-off.
func BuildCloudInstruction(d *store.Delegation) string {
	var b strings.Builder
	b.WriteString("You are continuing a task summarized by a local on-device assistant. ")
	b.WriteString("Review the context and the task, do the work, and finish by asking the user how to proceed.\n\n")
	fmt.Fprintf(&b, "Context so far:\n%s\n\n", d.ContextSummary)
	fmt.Fprintf(&b, "Task:\n%s\n", d.TaskDescription)
	if d.SuggestedQuestion != "" {
		fmt.Fprintf(&b, "\nSuggested follow-up question for the user:\n%s\n", d.SuggestedQuestion)
	}
	return b.String()
}
