package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kadirpekel/repochat/pkg/vector"
)

// Mode selects the system instructions for one generation pass.
type Mode int

const (
	ModeSimple Mode = iota
	ModeResearchFirst
	ModeResearchIntermediate
	ModeResearchFinal
)

func (m Mode) String() string {
	switch m {
	case ModeResearchFirst:
		return "research_first"
	case ModeResearchIntermediate:
		return "research_intermediate"
	case ModeResearchFinal:
		return "research_final"
	default:
		return "simple"
	}
}

// promptMeta labels the repository inside the system prompt. Locator is
// the credential-free clone URL or local path.
type promptMeta struct {
	Label   string
	Host    string
	Locator string
}

const simpleInstructions = `Answer questions about the repository using the material in the user message.

Rules:
- Answer directly. No preamble, and do not restate the question.
- Never wrap the whole answer in a markdown code fence; fence only code.
- Ground claims in the retrieved context or the pinned file. When the
  material does not cover the question, say so instead of guessing.
- Prefer exact identifiers, file paths, and short excerpts over paraphrase.`

const researchFirstInstructions = `You are starting a deep research session over this repository.

This is iteration 1: produce a research plan, not an answer.
- Name the focus topic behind the question.
- List the concrete areas of the codebase to investigate, seeded from the
  retrieved context.
- Record initial findings for the first area only.
- Do not conclude; later iterations continue from this plan.`

const researchIntermediateTemplate = `You are continuing a deep research session over this repository.

This is iteration %d of %d. Build on the prior iterations in the
conversation history:
- Pick exactly one open gap from the plan and investigate it against the
  retrieved context.
- Do not repeat findings already recorded in earlier iterations.
- Close by listing the gaps still open. Do not conclude yet.`

const researchFinalTemplate = `You are concluding a deep research session over this repository.

This is the final iteration (%d). Synthesize the findings from every
prior iteration into one conclusion:
- Answer the original question directly, first.
- Back the answer with the strongest evidence gathered across iterations.
- Note anything that remained uninvestigated.`

// buildSystemPrompt assembles the repository header, the response
// language, and the mode's instruction block.
func buildSystemPrompt(mode Mode, iteration, finalIteration int, meta promptMeta, langName string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a code assistant for the repository %s, a %s repository at %s.\n", meta.Label, meta.Host, meta.Locator)
	fmt.Fprintf(&b, "Respond in %s.\n\n", langName)

	switch mode {
	case ModeResearchFirst:
		b.WriteString(researchFirstInstructions)
	case ModeResearchIntermediate:
		fmt.Fprintf(&b, researchIntermediateTemplate, iteration, finalIteration)
	case ModeResearchFinal:
		fmt.Fprintf(&b, researchFinalTemplate, iteration)
	default:
		b.WriteString(simpleInstructions)
	}
	return b.String()
}

// Notes inserted in place of retrieved context so its absence is never
// silent.
const (
	noContextNote = "Note: no repository context was retrieved for this question; you are answering without retrieval augmentation."

	droppedContextNote = "Note: the retrieved repository context exceeded the model's input limit, so retrieval augmentation was skipped for this answer."
)

// assembleUserTurn renders the final user message: optional pinned file,
// retrieved context grouped per source file, then the question. Exactly
// one of the context section or a note appears.
func assembleUserTurn(pinnedPath, pinnedText string, chunks []vector.Chunk, note, query string) string {
	var b strings.Builder

	if pinnedPath != "" {
		fmt.Fprintf(&b, "## Pinned file: %s\n\n```\n%s\n```\n\n", pinnedPath, strings.TrimRight(pinnedText, "\n"))
	}

	if len(chunks) > 0 {
		b.WriteString("## Retrieved context\n\n")
		for _, g := range groupBySource(chunks) {
			fmt.Fprintf(&b, "### %s\n\n", g.path)
			for _, c := range g.chunks {
				b.WriteString(strings.TrimSpace(c.Text))
				b.WriteString("\n\n")
			}
		}
	} else if note != "" {
		b.WriteString(note)
		b.WriteString("\n\n")
	}

	b.WriteString("## Question\n\n")
	b.WriteString(strings.TrimSpace(query))
	b.WriteString("\n")
	return b.String()
}

type sourceGroup struct {
	path   string
	chunks []vector.Chunk
}

// groupBySource preserves first-hit order across files so the best match
// leads the context, and restores document order inside each file.
func groupBySource(chunks []vector.Chunk) []sourceGroup {
	order := make(map[string]int, len(chunks))
	var groups []sourceGroup
	for _, c := range chunks {
		i, ok := order[c.SourcePath]
		if !ok {
			i = len(groups)
			order[c.SourcePath] = i
			groups = append(groups, sourceGroup{path: c.SourcePath})
		}
		groups[i].chunks = append(groups[i].chunks, c)
	}
	for i := range groups {
		sort.SliceStable(groups[i].chunks, func(a, b int) bool {
			return groups[i].chunks[a].Ordinal < groups[i].chunks[b].Ordinal
		})
	}
	return groups
}
