package ledger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func openTestLedger(t *testing.T) (*Ledger, clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	path := filepath.Join(t.TempDir(), "ledger.db")
	l, err := OpenWithClock(context.Background(), path, clock)
	if err != nil {
		t.Fatalf("OpenWithClock: %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })
	return l, clock
}

func TestHashPayloadStability(t *testing.T) {
	p := EnvPayload{
		VersionsJSON:       `[{"tool":"python","version":"3.12.0"}]`,
		PathsJSON:          `["/a/bin","/b/bin"]`,
		EnvVarsJSON:        `[{"name":"FOO","op":"set","value":"1"}]`,
		ConfigModtimesJSON: `{"up.yaml":1234}`,
		ConfigHash:         "deadbeef",
	}
	h1 := HashPayload(p.VersionsJSON, p.PathsJSON, p.EnvVarsJSON, p.ConfigModtimesJSON, p.ConfigHash)
	h2 := HashPayload(p.VersionsJSON, p.PathsJSON, p.EnvVarsJSON, p.ConfigModtimesJSON, p.ConfigHash)
	if h1 != h2 {
		t.Fatalf("hash not stable: %s vs %s", h1, h2)
	}
	if len(h1) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(h1))
	}

	other := HashPayload(p.VersionsJSON, p.PathsJSON, p.EnvVarsJSON, p.ConfigModtimesJSON, "cafebabe")
	if other == h1 {
		t.Fatalf("different config_hash produced identical digest")
	}
}

func TestAddInstalledIdempotent(t *testing.T) {
	l, _ := openTestLedger(t)
	ctx := context.Background()

	id1, err := l.AddInstalled(ctx, "github-release", "foo/bar", "", "1.2.0", []string{"/x/bin/bar"}, "")
	if err != nil {
		t.Fatalf("AddInstalled: %v", err)
	}
	id2, err := l.AddInstalled(ctx, "github-release", "foo/bar", "", "1.2.0", []string{"/x/bin/bar"}, "")
	if err != nil {
		t.Fatalf("AddInstalled (second): %v", err)
	}
	if id1 != id2 {
		t.Fatalf("expected same row id, got %d and %d", id1, id2)
	}

	all, err := l.ListInstalled(ctx, "github-release")
	if err != nil {
		t.Fatalf("ListInstalled: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected exactly one row, got %d", len(all))
	}
}

func TestAddRequiredByIdempotent(t *testing.T) {
	l, _ := openTestLedger(t)
	ctx := context.Background()

	artifactID, err := l.AddInstalled(ctx, "go-install", "golang.org/x/tools/cmd/stringer", "", "v0.20.0", nil, "")
	if err != nil {
		t.Fatalf("AddInstalled: %v", err)
	}

	payload := EnvPayload{VersionsJSON: "[]", PathsJSON: "[]", EnvVarsJSON: "[]", ConfigModtimesJSON: "{}", ConfigHash: "h1"}
	envID, _, err := l.AssignEnvironment(ctx, "github.com:me/proj", payload, "", Retention{MaxTotal: 10, MaxPerWorkdir: 10, RetentionSecs: 3600})
	if err != nil {
		t.Fatalf("AssignEnvironment: %v", err)
	}

	if err := l.AddRequiredBy(ctx, artifactID, envID); err != nil {
		t.Fatalf("AddRequiredBy: %v", err)
	}
	if err := l.AddRequiredBy(ctx, artifactID, envID); err != nil {
		t.Fatalf("AddRequiredBy (second): %v", err)
	}

	var count int
	row := l.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM required_by WHERE installed_artifact_id = ? AND env_version_id = ?`, artifactID, envID)
	if err := row.Scan(&count); err != nil {
		t.Fatalf("counting required_by rows: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly one required_by row, got %d", count)
	}
}

func TestAssignEnvironmentIdempotent(t *testing.T) {
	l, _ := openTestLedger(t)
	ctx := context.Background()
	payload := EnvPayload{VersionsJSON: "[]", PathsJSON: "[]", EnvVarsJSON: "[]", ConfigModtimesJSON: "{}", ConfigHash: "h1"}
	retention := Retention{MaxTotal: 10, MaxPerWorkdir: 10, RetentionSecs: 3600}

	id1, isNew1, err := l.AssignEnvironment(ctx, "github.com:me/proj", payload, "sha1", retention)
	if err != nil {
		t.Fatalf("AssignEnvironment: %v", err)
	}
	if !isNew1 {
		t.Fatalf("expected isNew=true on first assign")
	}

	id2, isNew2, err := l.AssignEnvironment(ctx, "github.com:me/proj", payload, "sha1", retention)
	if err != nil {
		t.Fatalf("AssignEnvironment (second): %v", err)
	}
	if id1 != id2 {
		t.Fatalf("expected same env_version_id, got %s and %s", id1, id2)
	}
	if isNew2 {
		t.Fatalf("expected isNew=false on second identical assign")
	}

	var historyCount int
	row := l.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM workdir_history WHERE wd_trust_id = ?`, "github.com:me/proj")
	if err := row.Scan(&historyCount); err != nil {
		t.Fatalf("counting history: %v", err)
	}
	if historyCount != 1 {
		t.Fatalf("expected exactly one history row after idempotent re-assign, got %d", historyCount)
	}
}

func TestCascadeDeleteRemovesRequiredBy(t *testing.T) {
	l, clock := openTestLedger(t)
	ctx := context.Background()

	artifactID, err := l.AddInstalled(ctx, "cargo-install", "ripgrep", "", "14.0.0", nil, "")
	if err != nil {
		t.Fatalf("AddInstalled: %v", err)
	}
	payload := EnvPayload{VersionsJSON: "[]", PathsJSON: "[]", EnvVarsJSON: "[]", ConfigModtimesJSON: "{}", ConfigHash: "h1"}
	envID, _, err := l.AssignEnvironment(ctx, "wd-a", payload, "", Retention{MaxTotal: 10, MaxPerWorkdir: 10, RetentionSecs: 3600})
	if err != nil {
		t.Fatalf("AssignEnvironment: %v", err)
	}
	if err := l.AddRequiredBy(ctx, artifactID, envID); err != nil {
		t.Fatalf("AddRequiredBy: %v", err)
	}

	clock.Advance(2 * time.Hour)
	if err := l.RemoveBinding(ctx, "wd-a"); err != nil {
		t.Fatalf("RemoveBinding: %v", err)
	}

	var envCount, requiredByCount int
	if err := l.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM env_versions WHERE id = ?`, envID).Scan(&envCount); err != nil {
		t.Fatalf("counting env_versions: %v", err)
	}
	if err := l.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM required_by WHERE env_version_id = ?`, envID).Scan(&requiredByCount); err != nil {
		t.Fatalf("counting required_by: %v", err)
	}
	if envCount != 0 {
		t.Fatalf("expected orphaned env_version to be swept, found %d", envCount)
	}
	if requiredByCount != 0 {
		t.Fatalf("expected required_by rows to cascade-delete, found %d", requiredByCount)
	}

	// the installed artifact itself (the usage edge's other end) survives —
	// only its reference count changed, per spec §4.7 step 1 semantics.
	artifacts, err := l.ListInstalled(ctx, "cargo-install")
	if err != nil {
		t.Fatalf("ListInstalled: %v", err)
	}
	if len(artifacts) != 1 {
		t.Fatalf("expected installed artifact to survive binding removal, got %d rows", len(artifacts))
	}
}

func TestRetentionCapsPerWorkdir(t *testing.T) {
	l, _ := openTestLedger(t)
	ctx := context.Background()
	retention := Retention{MaxTotal: 100, MaxPerWorkdir: 2, RetentionSecs: 3600}

	for i := 0; i < 5; i++ {
		payload := EnvPayload{
			VersionsJSON:       "[]",
			PathsJSON:          "[]",
			EnvVarsJSON:        "[]",
			ConfigModtimesJSON: "{}",
			ConfigHash:         string(rune('a' + i)),
		}
		if _, _, err := l.AssignEnvironment(ctx, "wd-x", payload, "", retention); err != nil {
			t.Fatalf("AssignEnvironment #%d: %v", i, err)
		}
	}

	var historyCount int
	if err := l.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM workdir_history WHERE wd_trust_id = ?`, "wd-x").Scan(&historyCount); err != nil {
		t.Fatalf("counting history: %v", err)
	}
	if historyCount != 2 {
		t.Fatalf("expected exactly 2 history rows retained (max_per_workdir), got %d", historyCount)
	}

	var openCount int
	if err := l.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM workdir_history WHERE wd_trust_id = ? AND closed_at IS NULL`, "wd-x").Scan(&openCount); err != nil {
		t.Fatalf("counting open rows: %v", err)
	}
	if openCount != 1 {
		t.Fatalf("expected exactly one open history row, got %d", openCount)
	}
}
