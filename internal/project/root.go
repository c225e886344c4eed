// Package project locates the project root that owns the database file.
package project

import (
	"os"
	"path/filepath"
)

// markers are checked in priority order at each directory level while
// walking upward.
var markers = []string{
	".git",
	"package.json",
	"requirements.txt",
	"Cargo.toml",
	"go.mod",
	"composer.json",
}

// FindRoot walks from start toward the filesystem root and returns the
// first directory containing a project marker. When no marker is found
// it falls back to start.
func FindRoot(start string) string {
	dir, err := filepath.Abs(start)
	if err != nil {
		return start
	}

	for cur := dir; ; {
		for _, marker := range markers {
			if _, err := os.Stat(filepath.Join(cur, marker)); err == nil {
				return cur
			}
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return dir
		}
		cur = parent
	}
}
