// Package steering loads persisted operator corrections that get injected
// into every build agent's prompt.
package steering

import (
	"os"
	"path/filepath"
	"strings"
)

const (
	steeringFile = "steering.md"
	steeringDir  = "steering"
)

// Service reads steering corrections from the workspace. Corrections live in
// workspace/steering.md (global) and workspace/steering/<projectID>.md
// (per-project).
type Service struct {
	workspace string
}

func New(workspace string) *Service {
	return &Service{workspace: workspace}
}

// BuildPromptBlock returns the steering block for a project, or "" when no
// corrections exist. Missing files are not an error.
func (s *Service) BuildPromptBlock(projectID string) string {
	var parts []string
	if body := readTrimmed(filepath.Join(s.workspace, steeringFile)); body != "" {
		parts = append(parts, body)
	}
	if projectID != "" {
		if body := readTrimmed(filepath.Join(s.workspace, steeringDir, projectID+".md")); body != "" {
			parts = append(parts, body)
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return "## Steering corrections\n\n" + strings.Join(parts, "\n\n")
}

func readTrimmed(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	body := strings.TrimSpace(string(data))
	// A seeded template with only headings and comments counts as empty.
	if stripped := strings.TrimSpace(stripBoilerplate(body)); stripped == "" {
		return ""
	}
	return body
}

func stripBoilerplate(body string) string {
	var b strings.Builder
	inComment := false
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if inComment {
			if strings.Contains(trimmed, "-->") {
				inComment = false
			}
			continue
		}
		if strings.HasPrefix(trimmed, "<!--") {
			if !strings.Contains(trimmed, "-->") {
				inComment = true
			}
			continue
		}
		if strings.HasPrefix(trimmed, "#") {
			continue
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}
