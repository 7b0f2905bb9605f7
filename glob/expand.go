package glob

import (
	"fmt"
	"io/fs"
	"strings"
)

// Expand enumerates root-relative paths of regular files matching pattern.
// The result order follows tree iteration and carries no guarantee; Resolve
// is responsible for deterministic ordering.
func Expand(fsys fs.FS, pattern string) ([]string, error) {
	var out []string
	err := ExpandFunc(fsys, pattern, func(path string) error {
		out = append(out, path)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}

// ExpandFunc streams matching regular-file paths to visit, pruning directory
// subtrees that no completion of the pattern could reach. Traversal stops at
// the first visit error.
func ExpandFunc(fsys fs.FS, pattern string, visit func(path string) error) error {
	cp, err := compile(pattern)
	if err != nil {
		return err
	}

	return cp.expand(fsys, visit)
}

func (p *compiledPattern) expand(fsys fs.FS, visit func(path string) error) error {
	err := fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("walking tree at %q: %w", path, err)
		}

		if path == "." {
			return nil
		}

		parts := strings.Split(path, "/")
		if d.IsDir() {
			if !canMatchDescendants(p.segments, parts) {
				return fs.SkipDir
			}
			return nil
		}

		// Directories never satisfy a pattern themselves, and non-regular
		// entries (symlinks, devices) are never emitted.
		if !d.Type().IsRegular() {
			return nil
		}

		if matchSegments(p.segments, parts) {
			return visit(path)
		}

		return nil
	})
	if err != nil {
		return err
	}

	return nil
}
