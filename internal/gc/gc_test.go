package gc

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/upkit-dev/upkit/internal/ledger"
)

func openTestLedger(t *testing.T) (*ledger.Ledger, clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	l, err := ledger.OpenWithClock(context.Background(), filepath.Join(t.TempDir(), "ledger.db"), clock)
	if err != nil {
		t.Fatalf("OpenWithClock: %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })
	return l, clock
}

func TestSweepRemovesOrphanedDirAndPrunesRow(t *testing.T) {
	l, clock := openTestLedger(t)
	ctx := context.Background()
	root := t.TempDir()

	keepDir := filepath.Join(root, "python", "3.12.0")
	orphanDir := filepath.Join(root, "python", "2.7.0")
	if err := os.MkdirAll(filepath.Join(keepDir, "bin"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(orphanDir, "bin"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(orphanDir, "bin", "python"), []byte("x"), 0o755); err != nil {
		t.Fatal(err)
	}

	keepID, err := l.AddInstalled(ctx, "mise", "python", "", "3.12.0", []string{filepath.Join(keepDir, "bin")}, keepDir)
	if err != nil {
		t.Fatalf("AddInstalled: %v", err)
	}
	payload := ledger.EnvPayload{VersionsJSON: "[]", PathsJSON: "[]", EnvVarsJSON: "[]", ConfigModtimesJSON: "{}", ConfigHash: "h1"}
	envID, _, err := l.AssignEnvironment(ctx, "wd-gc", payload, "", ledger.Retention{MaxTotal: 10, MaxPerWorkdir: 10, RetentionSecs: 3600})
	if err != nil {
		t.Fatalf("AssignEnvironment: %v", err)
	}
	if err := l.AddRequiredBy(ctx, keepID, envID); err != nil {
		t.Fatalf("AddRequiredBy: %v", err)
	}
	orphanID, err := l.AddInstalled(ctx, "mise", "python", "", "2.7.0", []string{filepath.Join(orphanDir, "bin")}, orphanDir)
	if err != nil {
		t.Fatalf("AddInstalled: %v", err)
	}
	_ = orphanID // never given a required_by edge: orphaned from the start

	clock.Advance(2 * time.Hour)

	s := New(l, 3600)
	results, err := s.Run(ctx, []StoreRoot{{Backend: "mise", Root: filepath.Join(root, "python")}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	r := results[0]
	if r.ArtifactsPruned != 1 {
		t.Fatalf("expected 1 pruned artifact, got %d", r.ArtifactsPruned)
	}
	if len(r.RemovedPaths) != 1 || r.RemovedPaths[0] != orphanDir {
		t.Fatalf("expected orphanDir removed, got %v", r.RemovedPaths)
	}
	if _, err := os.Stat(orphanDir); !os.IsNotExist(err) {
		t.Fatalf("expected orphanDir to be gone from disk")
	}
	if _, err := os.Stat(keepDir); err != nil {
		t.Fatalf("expected keepDir to survive: %v", err)
	}
}

func TestSweepLeavesRecentlyTouchedArtifactAlone(t *testing.T) {
	l, _ := openTestLedger(t)
	ctx := context.Background()
	root := t.TempDir()
	dir := filepath.Join(root, "python", "3.11.0")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}

	if _, err := l.AddInstalled(ctx, "mise", "python", "", "3.11.0", []string{filepath.Join(dir, "bin")}, dir); err != nil {
		t.Fatalf("AddInstalled: %v", err)
	}

	s := New(l, 3600)
	results, err := s.Run(ctx, []StoreRoot{{Backend: "mise", Root: filepath.Join(root, "python")}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if results[0].ArtifactsPruned != 0 {
		t.Fatalf("expected no prune within cleanup_after window, got %d", results[0].ArtifactsPruned)
	}
	if len(results[0].RemovedPaths) != 0 {
		t.Fatalf("expected no removal, got %v", results[0].RemovedPaths)
	}
}
