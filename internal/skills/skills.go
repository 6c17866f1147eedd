// Package skills selects reusable instruction snippets for build agents.
// A skill is a directory under workspace/skills/<name>/ containing SKILL.md
// whose first line is a one-sentence description followed by the body.
package skills

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/maslowhq/maslow/internal/store"
)

const skillsDir = "skills"

// Skill is one loaded instruction snippet.
type Skill struct {
	Name        string
	Description string
	Body        string
}

// Loader scans the workspace skills directory on each selection so new
// skills take effect without a restart.
type Loader struct {
	workspace string
}

func NewLoader(workspace string) *Loader {
	return &Loader{workspace: workspace}
}

// SelectForTask returns skills whose name or description matches words in
// the card title or description. Zero matches is normal.
func (l *Loader) SelectForTask(card *store.Card) []Skill {
	all, err := l.loadAll()
	if err != nil || len(all) == 0 {
		return nil
	}

	haystack := strings.ToLower(card.Title + " " + card.Description)
	var selected []Skill
	for _, sk := range all {
		if skillMatches(sk, haystack) {
			selected = append(selected, sk)
		}
	}
	return selected
}

func skillMatches(sk Skill, haystack string) bool {
	if strings.Contains(haystack, strings.ToLower(strings.ReplaceAll(sk.Name, "-", " "))) {
		return true
	}
	for _, word := range strings.Fields(strings.ToLower(sk.Description)) {
		if len(word) >= 5 && strings.Contains(haystack, word) {
			return true
		}
	}
	return false
}

// BuildPromptBlock formats selected skills for prompt injection; "" when
// none selected.
func BuildPromptBlock(selected []Skill) string {
	if len(selected) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("## Skills\n")
	for _, sk := range selected {
		b.WriteString("\n### ")
		b.WriteString(sk.Name)
		b.WriteString("\n")
		b.WriteString(strings.TrimSpace(sk.Body))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (l *Loader) loadAll() ([]Skill, error) {
	root := filepath.Join(l.workspace, skillsDir)
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}
	var all []Skill
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(root, e.Name(), "SKILL.md"))
		if err != nil {
			continue
		}
		desc, body, _ := strings.Cut(strings.TrimSpace(string(data)), "\n")
		all = append(all, Skill{
			Name:        e.Name(),
			Description: strings.TrimSpace(strings.TrimPrefix(desc, "#")),
			Body:        body,
		})
	}
	return all, nil
}
