// Package output resolves safe filesystem paths and materializes
// markdown documents with frontmatter atomically, per spec.md §4.6.
package output

import (
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/blackcoderx/corpusctl/pkg/collector/cerrors"
	"github.com/blackcoderx/corpusctl/pkg/collector/security"
)

// Manager materializes collected items under BaseDir.
type Manager struct {
	BaseDir string
}

// New returns a Manager rooted at baseDir.
func New(baseDir string) *Manager {
	return &Manager{BaseDir: baseDir}
}

// EnsureFolder returns (creating if necessary) a directory inside
// BaseDir built from sourceTag and optional subsource components.
// Every component is sanitized, the final path's symlinks are
// resolved, and containment within BaseDir is re-verified after
// resolution to defend against a symlink swapped in after the
// sanitize step.
func (m *Manager) EnsureFolder(sourceTag string, subsource ...string) (string, error) {
	parts := append([]string{sourceTag}, subsource...)
	clean := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		clean = append(clean, security.SanitizeFilename(p))
	}

	absBase, err := filepath.Abs(m.BaseDir)
	if err != nil {
		return "", cerrors.PathTraversal("cannot resolve base directory", err)
	}
	target := filepath.Join(append([]string{absBase}, clean...)...)

	if err := os.MkdirAll(target, 0o750); err != nil {
		return "", cerrors.Content("failed to create output directory", err).WithContext("path", target)
	}

	resolved, err := filepath.EvalSymlinks(target)
	if err != nil {
		return "", cerrors.Content("failed to resolve output directory", err).WithContext("path", target)
	}
	resolvedBase, err := filepath.EvalSymlinks(absBase)
	if err != nil {
		return "", cerrors.Content("failed to resolve base directory", err).WithContext("path", absBase)
	}
	if resolved != resolvedBase && !strings.HasPrefix(resolved, resolvedBase+string(filepath.Separator)) {
		return "", cerrors.PathTraversal("resolved output path escapes base directory", nil).
			WithContext("resolved", resolved, "base", resolvedBase)
	}
	return resolved, nil
}

// ItemFilename builds the "{date}_{sanitized_title}_{item_id}.md" name
// from spec.md §3/§6.
func ItemFilename(date, title, itemID string) string {
	return date + "_" + security.SanitizeFilename(title) + "_" + security.SanitizeFilename(itemID) + ".md"
}

// WriteMarkdown writes meta+body to path atomically (temp file in the
// same directory, fsync, rename). When update is true and a file
// already exists at path, the new frontmatter is overlaid onto the
// old one additively: keys present in the old file but absent from
// meta survive.
func (m *Manager) WriteMarkdown(path string, meta Frontmatter, body string, update bool) error {
	kv, err := meta.toMap()
	if err != nil {
		return err
	}

	if update {
		if existing, ok := readExistingFrontmatter(path); ok {
			for k, v := range existing {
				if _, present := kv[k]; !present {
					kv[k] = v
				}
			}
		}
	}

	content := render(kv) + "\n" + body
	return atomicWrite(path, []byte(content))
}

// readExistingFrontmatter parses the leading "---\n...\n---\n" block
// of the file at path, if any. Returns ok=false if the file doesn't
// exist or has no parseable frontmatter.
func readExistingFrontmatter(path string) (map[string]string, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	s := string(data)
	if !strings.HasPrefix(s, "---\n") {
		return nil, false
	}
	rest := s[len("---\n"):]
	end := strings.Index(rest, "\n---\n")
	if end == -1 {
		return nil, false
	}
	block := rest[:end]

	var raw map[string]any
	if err := yaml.Unmarshal([]byte(block), &raw); err != nil {
		return nil, false
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		out[k] = scalarString(v)
	}
	return out, true
}

// atomicWrite writes data to a temp file in path's directory, fsyncs
// it, then renames it over path. Under interruption, either the old
// file is intact or the rename has completed — there is no state
// where path is partially written.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return cerrors.Content("failed to create parent directory", err).WithContext("path", dir)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return cerrors.Content("failed to create temp file", err).WithContext("dir", dir)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return cerrors.Content("failed to write temp file", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return cerrors.Content("failed to fsync temp file", err)
	}
	if err := tmp.Close(); err != nil {
		return cerrors.Content("failed to close temp file", err)
	}
	if err := os.Chmod(tmpPath, 0o640); err != nil {
		return cerrors.Content("failed to set file permissions", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return cerrors.Content("failed to rename temp file into place", err).WithContext("path", path)
	}
	return nil
}
