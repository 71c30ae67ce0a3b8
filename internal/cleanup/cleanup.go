// Package cleanup implements pruning of downloaded build artifacts.
package cleanup

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// PruneByAge removes artifact files older than maxAgeDays from the
// downloads directory. If dryRun is true, no files are deleted; the function
// only returns the names that would be removed. Returns the list of pruned
// file names.
func PruneByAge(downloadsDir string, maxAgeDays int, dryRun bool) ([]string, error) {
	entries, err := os.ReadDir(downloadsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading downloads directory: %w", err)
	}

	cutoff := time.Now().AddDate(0, 0, -maxAgeDays)
	var pruned []string

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, infoErr := entry.Info()
		if infoErr != nil {
			continue
		}

		if info.ModTime().Before(cutoff) {
			if !dryRun {
				path := filepath.Join(downloadsDir, entry.Name())
				if rmErr := os.Remove(path); rmErr != nil {
					return pruned, fmt.Errorf("removing %s: %w", entry.Name(), rmErr)
				}
			}
			pruned = append(pruned, entry.Name())
		}
	}

	return pruned, nil
}

// PruneKeepRecent removes all artifact files except the keep most recently
// modified ones. If dryRun is true, no files are deleted. Returns the list
// of pruned file names.
func PruneKeepRecent(downloadsDir string, keep int, dryRun bool) ([]string, error) {
	entries, err := os.ReadDir(downloadsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading downloads directory: %w", err)
	}

	type artifact struct {
		name string
		mod  time.Time
	}
	var files []artifact
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, infoErr := entry.Info()
		if infoErr != nil {
			continue
		}
		files = append(files, artifact{name: entry.Name(), mod: info.ModTime()})
	}

	// Oldest first.
	sort.Slice(files, func(i, j int) bool { return files[i].mod.Before(files[j].mod) })

	if len(files) <= keep {
		return nil, nil
	}

	toRemove := files[:len(files)-keep]
	var pruned []string

	for _, f := range toRemove {
		if !dryRun {
			path := filepath.Join(downloadsDir, f.name)
			if rmErr := os.Remove(path); rmErr != nil {
				return pruned, fmt.Errorf("removing %s: %w", f.name, rmErr)
			}
		}
		pruned = append(pruned, f.name)
	}

	return pruned, nil
}
