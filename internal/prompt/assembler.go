// Package prompt builds the final instruction string handed to a build
// agent. The assembler is pure: its only inputs are the card, the project,
// the collaborator-produced blocks in Opts, and the embedded templates.
package prompt

import (
	"embed"
	"strings"

	"github.com/maslowhq/maslow/internal/store"
)

//go:embed templates/*.md
var templateFS embed.FS

// Opts carries the collaborator-produced prompt blocks. Empty fields are
// omitted from the assembled prompt.
type Opts struct {
	// SteeringBlock is the persisted operator corrections block.
	SteeringBlock string
	// Snapshot is the previous context snapshot for a resumed card.
	Snapshot string
	// SkillBlock is the selected-skills block.
	SkillBlock string
}

// Assembler concatenates the prompt sections in a fixed order.
type Assembler struct {
	researchProtocol    string
	completionChecklist string
}

func NewAssembler() *Assembler {
	return &Assembler{
		researchProtocol:    mustTemplate("research_protocol.md"),
		completionChecklist: mustTemplate("completion_checklist.md"),
	}
}

func mustTemplate(name string) string {
	data, err := templateFS.ReadFile("templates/" + name)
	if err != nil {
		// Embedded files are checked at build time; a miss is a packaging bug.
		panic("prompt: missing embedded template " + name)
	}
	return strings.TrimSpace(string(data))
}

const identityBlock = `You are an autonomous build agent working on one card of a kanban board.
You operate inside a dedicated git worktree; everything you need is in the
working directory. Read AGENTS.md at the repository root first if it exists;
it is the operator's standing instructions and overrides anything below.`

// Build assembles the prompt: identity, card, project, steering, snapshot,
// skills, research protocol, completion checklist.
func (a *Assembler) Build(card *store.Card, project *store.Project, opts Opts) string {
	var sections []string

	sections = append(sections, identityBlock)

	task := "## Task\n\n" + card.Title
	if card.Description != "" && card.Description != card.Title {
		task += "\n\n" + card.Description
	}
	sections = append(sections, task)

	if project != nil {
		proj := "## Project\n\n" + project.Name
		if project.Description != "" {
			proj += "\n\n" + project.Description
		}
		sections = append(sections, proj)
	}

	if opts.SteeringBlock != "" {
		sections = append(sections, opts.SteeringBlock)
	}
	if opts.Snapshot != "" {
		sections = append(sections, "## Previous context\n\nA prior agent worked on this card. Its handoff notes:\n\n"+opts.Snapshot)
	}
	if opts.SkillBlock != "" {
		sections = append(sections, opts.SkillBlock)
	}

	sections = append(sections, a.researchProtocol, a.completionChecklist)

	return strings.Join(sections, "\n\n")
}
