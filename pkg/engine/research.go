package engine

import (
	"strings"

	"github.com/kadirpekel/repochat/pkg/llms"
)

// ResearchMarker activates deep research mode when it appears anywhere in
// the request transcript. It is stripped from every message before any
// text reaches a prompt or the conversation memory.
const ResearchMarker = "[DEEP RESEARCH]"

// researchPlan is the outcome of reading the transcript: which mode to
// prompt in, the query to retrieve and answer, and the text to remember.
type researchPlan struct {
	Active    bool
	Iteration int
	Mode      Mode

	// Query drives retrieval and the assembled user turn. On a
	// continuation ("continue", "go on") it is replaced with the first
	// non-continuation user message so research stays on topic.
	Query string

	// UserText is what the memory records for this turn: the last user
	// message as typed, marker stripped, before any replacement.
	UserText string

	// Messages is the marker-stripped transcript, continuation
	// replacement applied to the last user message.
	Messages []llms.Message
}

// planResearch derives the generation mode from the transcript. The
// iteration counter is one more than the number of assistant messages, so
// each answered round advances the research by exactly one step.
func planResearch(messages []llms.Message, finalIteration int) researchPlan {
	plan := researchPlan{Iteration: 1, Mode: ModeSimple}

	assistants := 0
	plan.Messages = make([]llms.Message, len(messages))
	for i, m := range messages {
		if strings.Contains(m.Content, ResearchMarker) {
			plan.Active = true
		}
		plan.Messages[i] = llms.Message{Role: m.Role, Content: stripMarker(m.Content)}
		if m.Role == llms.RoleAssistant {
			assistants++
		}
	}

	last := lastUserIndex(plan.Messages)
	if last >= 0 {
		plan.UserText = plan.Messages[last].Content
	}
	plan.Query = plan.UserText

	if !plan.Active {
		return plan
	}

	plan.Iteration = assistants + 1
	switch {
	case plan.Iteration >= finalIteration:
		plan.Mode = ModeResearchFinal
	case plan.Iteration == 1:
		plan.Mode = ModeResearchFirst
	default:
		plan.Mode = ModeResearchIntermediate
	}

	if last >= 0 && isContinuation(plan.UserText) {
		if topic, ok := firstNonContinuationUser(plan.Messages); ok {
			plan.Query = topic
			plan.Messages[last].Content = topic
		}
	}
	return plan
}

func stripMarker(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, ResearchMarker, ""))
}

// isContinuation recognizes "keep going" prompts that carry no new topic.
func isContinuation(s string) bool {
	t := strings.ToLower(strings.TrimSpace(s))
	t = strings.TrimRight(t, ".!")
	t = strings.TrimPrefix(t, "please ")
	switch t {
	case "continue", "go on", "next", "keep going":
		return true
	}
	return strings.HasPrefix(t, "continue") && strings.Contains(t, "research")
}

// firstNonContinuationUser returns the original topic: the earliest user
// message that is not itself a continuation prompt.
func firstNonContinuationUser(messages []llms.Message) (string, bool) {
	for _, m := range messages {
		if m.Role != llms.RoleUser {
			continue
		}
		if m.Content == "" || isContinuation(m.Content) {
			continue
		}
		return m.Content, true
	}
	return "", false
}

func lastUserIndex(messages []llms.Message) int {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == llms.RoleUser {
			return i
		}
	}
	return -1
}
