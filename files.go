/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"fmt"
	"os"
	"sort"
	"strings"
)

// cleanSaveName reduces a user-supplied filename to a bare name inside
// the save directory, appending the save extension when missing. Path
// separators and dot-dot names are rejected rather than resolved.
func cleanSaveName(name string) (string, error) {
	name = strings.TrimSpace(name)

	if name == "" {
		return "", fmt.Errorf("empty filename")
	}
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", fmt.Errorf("invalid filename %q", name)
	}
	if !strings.HasSuffix(name, saveExtension) {
		name += saveExtension
	}

	return name, nil
}

// listSaves returns the save files in dir, sorted by name. The listing
// is advisory, like a file picker filter: anything that decodes can
// still be loaded by exact name.
func listSaves(dir string) ([]string, error) {
	dirents, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read save dir: %w", err)
	}

	saves := []string{}
	for _, dirent := range dirents {
		if dirent.IsDir() || !strings.HasSuffix(dirent.Name(), saveExtension) {
			continue
		}
		saves = append(saves, dirent.Name())
	}
	sort.Strings(saves)

	return saves, nil
}

func humanReadableSize(bytes int64) string {
	const unit int64 = 1000
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := unit, 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB",
		float64(bytes)/float64(div),
		"kMGTPE"[exp])
}
