package cleanup

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// createMockArtifact creates an artifact file with the given mod time.
func createMockArtifact(t *testing.T, dir string, i int, mod time.Time) string {
	t.Helper()
	name := fmt.Sprintf("artifact-%02d.apk", i)
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("apk"), 0644); err != nil {
		t.Fatalf("creating mock artifact %s: %v", name, err)
	}
	if err := os.Chtimes(path, mod, mod); err != nil {
		t.Fatalf("setting mod time on %s: %v", name, err)
	}
	return name
}

func TestPruneByAge_RemovesOldArtifacts(t *testing.T) {
	dir := t.TempDir()

	now := time.Now()
	old := createMockArtifact(t, dir, 1, now.AddDate(0, 0, -60))
	recent := createMockArtifact(t, dir, 2, now.AddDate(0, 0, -2))

	pruned, err := PruneByAge(dir, 30, false)
	if err != nil {
		t.Fatalf("PruneByAge failed: %v", err)
	}

	if len(pruned) != 1 || pruned[0] != old {
		t.Errorf("expected pruned=[%s], got %v", old, pruned)
	}

	// Old artifact should be gone.
	if _, err := os.Stat(filepath.Join(dir, old)); !os.IsNotExist(err) {
		t.Errorf("expected %s to be deleted", old)
	}

	// Recent artifact should still exist.
	if _, err := os.Stat(filepath.Join(dir, recent)); err != nil {
		t.Errorf("expected %s to still exist: %v", recent, err)
	}
}

func TestPruneByAge_DryRun(t *testing.T) {
	dir := t.TempDir()

	old := createMockArtifact(t, dir, 1, time.Now().AddDate(0, 0, -60))

	pruned, err := PruneByAge(dir, 30, true)
	if err != nil {
		t.Fatalf("PruneByAge dry-run failed: %v", err)
	}

	if len(pruned) != 1 || pruned[0] != old {
		t.Errorf("expected pruned=[%s], got %v", old, pruned)
	}

	// File should still exist in dry-run mode.
	if _, err := os.Stat(filepath.Join(dir, old)); err != nil {
		t.Errorf("expected %s to still exist in dry-run: %v", old, err)
	}
}

func TestPruneByAge_SkipsDirectories(t *testing.T) {
	dir := t.TempDir()

	if err := os.MkdirAll(filepath.Join(dir, "keepdir"), 0755); err != nil {
		t.Fatalf("creating mock dir: %v", err)
	}

	pruned, err := PruneByAge(dir, 1, false)
	if err != nil {
		t.Fatalf("PruneByAge failed: %v", err)
	}

	if len(pruned) != 0 {
		t.Errorf("expected no pruned files, got %v", pruned)
	}
}

func TestPruneByAge_NonexistentDir(t *testing.T) {
	pruned, err := PruneByAge("/nonexistent/path", 30, false)
	if err != nil {
		t.Fatalf("expected nil error for nonexistent dir, got: %v", err)
	}
	if len(pruned) != 0 {
		t.Errorf("expected empty pruned list, got %v", pruned)
	}
}

func TestPruneKeepRecent_KeepsCorrectCount(t *testing.T) {
	dir := t.TempDir()

	now := time.Now()
	f1 := createMockArtifact(t, dir, 1, now.AddDate(0, 0, -4))
	f2 := createMockArtifact(t, dir, 2, now.AddDate(0, 0, -3))
	_ = createMockArtifact(t, dir, 3, now.AddDate(0, 0, -2))
	_ = createMockArtifact(t, dir, 4, now.AddDate(0, 0, -1))

	pruned, err := PruneKeepRecent(dir, 2, false)
	if err != nil {
		t.Fatalf("PruneKeepRecent failed: %v", err)
	}

	if len(pruned) != 2 {
		t.Fatalf("expected 2 pruned, got %d: %v", len(pruned), pruned)
	}

	// The two oldest should be removed.
	if pruned[0] != f1 || pruned[1] != f2 {
		t.Errorf("expected pruned=[%s, %s], got %v", f1, f2, pruned)
	}

	// Check filesystem state.
	entries, _ := os.ReadDir(dir)
	if len(entries) != 2 {
		t.Errorf("expected 2 remaining files, got %d", len(entries))
	}
}

func TestPruneKeepRecent_KeepMoreThanExist(t *testing.T) {
	dir := t.TempDir()

	createMockArtifact(t, dir, 1, time.Now().AddDate(0, 0, -1))

	pruned, err := PruneKeepRecent(dir, 5, false)
	if err != nil {
		t.Fatalf("PruneKeepRecent failed: %v", err)
	}

	if len(pruned) != 0 {
		t.Errorf("expected no pruned files, got %v", pruned)
	}
}

func TestPruneKeepRecent_DryRun(t *testing.T) {
	dir := t.TempDir()

	now := time.Now()
	f1 := createMockArtifact(t, dir, 1, now.AddDate(0, 0, -3))
	createMockArtifact(t, dir, 2, now.AddDate(0, 0, -1))

	pruned, err := PruneKeepRecent(dir, 1, true)
	if err != nil {
		t.Fatalf("PruneKeepRecent dry-run failed: %v", err)
	}

	if len(pruned) != 1 || pruned[0] != f1 {
		t.Errorf("expected pruned=[%s], got %v", f1, pruned)
	}

	// Both should still exist in dry-run.
	entries, _ := os.ReadDir(dir)
	if len(entries) != 2 {
		t.Errorf("expected 2 files to remain in dry-run, got %d", len(entries))
	}
}

func TestPruneKeepRecent_NonexistentDir(t *testing.T) {
	pruned, err := PruneKeepRecent("/nonexistent/path", 5, false)
	if err != nil {
		t.Fatalf("expected nil error for nonexistent dir, got: %v", err)
	}
	if len(pruned) != 0 {
		t.Errorf("expected empty pruned list, got %v", pruned)
	}
}
