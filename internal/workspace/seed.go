// Package workspace seeds the operator workspace with its editable
// documents on first run. Existing files are never overwritten.
package workspace

import (
	"embed"
	"log/slog"
	"os"
	"path/filepath"
)

//go:embed templates/*.md
var templateFS embed.FS

// templateFiles lists the documents to seed, in order.
var templateFiles = []string{
	"heartbeat.md",
	"steering.md",
	"assumptions.md",
}

// subdirs are created empty; their content is operator- or engine-written.
var subdirs = []string{"steering", "skills"}

// Ensure seeds the workspace directory and returns the files it created.
func Ensure(dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	for _, sub := range subdirs {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, err
		}
	}

	var created []string
	for _, name := range templateFiles {
		ok, err := seedTemplate(dir, name)
		if err != nil {
			slog.Warn("workspace: failed to seed template", "file", name, "error", err)
			continue
		}
		if ok {
			created = append(created, name)
		}
	}
	return created, nil
}

// seedTemplate writes one template if absent. O_EXCL keeps a concurrent or
// repeated run from clobbering operator edits.
func seedTemplate(dir, name string) (bool, error) {
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return false, nil
		}
		return false, err
	}
	defer f.Close()

	content, err := templateFS.ReadFile(filepath.Join("templates", name))
	if err != nil {
		return false, err
	}
	if _, err := f.Write(content); err != nil {
		return false, err
	}
	return true, nil
}
