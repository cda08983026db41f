package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/repochat/pkg/llms"
)

func user(text string) llms.Message      { return llms.Message{Role: llms.RoleUser, Content: text} }
func assistant(text string) llms.Message { return llms.Message{Role: llms.RoleAssistant, Content: text} }

func TestPlanResearchInactiveWithoutMarker(t *testing.T) {
	plan := planResearch([]llms.Message{
		user("what does main do?"),
		assistant("it starts the server"),
		user("which port?"),
	}, 5)

	assert.False(t, plan.Active)
	assert.Equal(t, ModeSimple, plan.Mode)
	assert.Equal(t, 1, plan.Iteration)
	assert.Equal(t, "which port?", plan.Query)
	assert.Equal(t, "which port?", plan.UserText)
}

func TestPlanResearchIterationCounting(t *testing.T) {
	topic := ResearchMarker + " how does authentication work?"

	tests := []struct {
		name          string
		messages      []llms.Message
		final         int
		wantIteration int
		wantMode      Mode
	}{
		{
			name:          "first iteration",
			messages:      []llms.Message{user(topic)},
			final:         5,
			wantIteration: 1,
			wantMode:      ModeResearchFirst,
		},
		{
			name: "second iteration is intermediate",
			messages: []llms.Message{
				user(topic),
				assistant("plan: inspect the auth package"),
				user("continue"),
			},
			final:         5,
			wantIteration: 2,
			wantMode:      ModeResearchIntermediate,
		},
		{
			name: "configured final iteration concludes",
			messages: []llms.Message{
				user(topic),
				assistant("plan"),
				user("continue"),
				assistant("finding one"),
				user("continue"),
			},
			final:         3,
			wantIteration: 3,
			wantMode:      ModeResearchFinal,
		},
		{
			name: "past the final iteration stays final",
			messages: []llms.Message{
				user(topic),
				assistant("a"), user("continue"),
				assistant("b"), user("continue"),
				assistant("c"), user("continue"),
				assistant("d"), user("continue"),
				assistant("e"), user("continue"),
			},
			final:         5,
			wantIteration: 6,
			wantMode:      ModeResearchFinal,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := planResearch(tt.messages, tt.final)
			require.True(t, plan.Active)
			assert.Equal(t, tt.wantIteration, plan.Iteration)
			assert.Equal(t, tt.wantMode, plan.Mode)
		})
	}
}

func TestPlanResearchMarkerAnywhereActivates(t *testing.T) {
	plan := planResearch([]llms.Message{
		user(ResearchMarker + " trace the request path"),
		assistant("plan"),
		user("what about middleware?"),
	}, 5)

	assert.True(t, plan.Active)
	assert.Equal(t, 2, plan.Iteration)
	// A fresh topic is not replaced.
	assert.Equal(t, "what about middleware?", plan.Query)
}

func TestPlanResearchStripsMarkerFromEveryMessage(t *testing.T) {
	plan := planResearch([]llms.Message{
		user(ResearchMarker + " trace the request path"),
		assistant("noted " + ResearchMarker),
		user(ResearchMarker + " continue"),
	}, 5)

	for _, m := range plan.Messages {
		assert.NotContains(t, m.Content, ResearchMarker)
	}
	assert.NotContains(t, plan.Query, ResearchMarker)
	assert.NotContains(t, plan.UserText, ResearchMarker)
}

func TestPlanResearchContinuationRestoresTopic(t *testing.T) {
	plan := planResearch([]llms.Message{
		user(ResearchMarker + " how does caching work?"),
		assistant("plan: look at the cache package"),
		user("please continue"),
	}, 5)

	// Retrieval and prompting reuse the original topic; memory keeps
	// what the user actually typed.
	assert.Equal(t, "how does caching work?", plan.Query)
	assert.Equal(t, "please continue", plan.UserText)
	assert.Equal(t, "how does caching work?", plan.Messages[len(plan.Messages)-1].Content)
}

func TestPlanResearchEmptyMessages(t *testing.T) {
	plan := planResearch(nil, 5)
	assert.False(t, plan.Active)
	assert.Empty(t, plan.Query)
	assert.Empty(t, plan.UserText)
}

func TestIsContinuation(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"continue", true},
		{"Continue", true},
		{"  go on  ", true},
		{"next", true},
		{"keep going", true},
		{"please continue", true},
		{"continue!", true},
		{"Continue the research.", true},
		{"continue researching the cache layer", true},
		{"continue with the auth flow", false},
		{"how does caching work?", false},
		{"what's next for the roadmap", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, isContinuation(tt.text))
		})
	}
}
