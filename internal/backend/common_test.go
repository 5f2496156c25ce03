package backend

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/jonboulle/clockwork"

	"github.com/upkit-dev/upkit/internal/ledger"
	"github.com/upkit-dev/upkit/internal/versionsrc"
)

func openTestDeps(t *testing.T) Deps {
	t.Helper()
	clock := clockwork.NewFakeClock()
	l, err := ledger.OpenWithClock(context.Background(), filepath.Join(t.TempDir(), "ledger.db"), clock)
	if err != nil {
		t.Fatalf("OpenWithClock: %v", err)
	}
	sources := versionsrc.New(l, clock)
	t.Cleanup(func() {
		sources.Close()
		_ = l.Close()
	})
	return Deps{Ledger: l, Sources: sources}
}

func TestResolveVersionPicksLatestMatching(t *testing.T) {
	d := openTestDeps(t)
	fetch := func(ctx context.Context) ([]string, error) {
		return []string{"3.10.0", "3.11.0", "3.12.0"}, nil
	}

	v, usedInstalled, err := resolveVersion(context.Background(), d, "mise", "python", "", "latest", resolveOptions{}, "mise:python", fetch)
	if err != nil {
		t.Fatalf("resolveVersion: %v", err)
	}
	if usedInstalled {
		t.Fatal("expected a fresh resolution, not an installed reuse")
	}
	if v != "3.12.0" {
		t.Fatalf("expected 3.12.0, got %s", v)
	}
}

func TestResolveVersionPrefersInstalledWithoutUpgrade(t *testing.T) {
	d := openTestDeps(t)
	if _, err := d.Ledger.AddInstalled(context.Background(), "mise", "python", "", "3.11.0", []string{"/bin"}, ""); err != nil {
		t.Fatalf("AddInstalled: %v", err)
	}

	fetch := func(ctx context.Context) ([]string, error) {
		return []string{"3.10.0", "3.11.0", "3.12.0"}, nil
	}

	v, usedInstalled, err := resolveVersion(context.Background(), d, "mise", "python", "", "latest", resolveOptions{Upgrade: false}, "mise:python", fetch)
	if err != nil {
		t.Fatalf("resolveVersion: %v", err)
	}
	if !usedInstalled {
		t.Fatal("expected the already-installed version to be reused")
	}
	if v != "3.11.0" {
		t.Fatalf("expected to keep 3.11.0, got %s", v)
	}
}

func TestResolveVersionFallsBackToInstalledOnFetchError(t *testing.T) {
	d := openTestDeps(t)
	if _, err := d.Ledger.AddInstalled(context.Background(), "mise", "node", "", "20.0.0", []string{"/bin"}, ""); err != nil {
		t.Fatalf("AddInstalled: %v", err)
	}

	fetch := func(ctx context.Context) ([]string, error) {
		return nil, errors.New("network down")
	}

	v, usedInstalled, err := resolveVersion(context.Background(), d, "mise", "node", "", "latest", resolveOptions{}, "mise:node", fetch)
	if err != nil {
		t.Fatalf("resolveVersion: %v", err)
	}
	if !usedInstalled || v != "20.0.0" {
		t.Fatalf("expected stale-installed fallback to 20.0.0, got v=%s usedInstalled=%v", v, usedInstalled)
	}
}

func TestRecordInstalledIsIdempotentAcrossRuns(t *testing.T) {
	d := openTestDeps(t)
	id1, err := recordInstalled(context.Background(), d, "mise", "python", "", "3.12.0", []string{"/a/bin"}, "")
	if err != nil {
		t.Fatalf("recordInstalled: %v", err)
	}
	id2, err := recordInstalled(context.Background(), d, "mise", "python", "", "3.12.0", []string{"/a/bin"}, "")
	if err != nil {
		t.Fatalf("recordInstalled: %v", err)
	}
	if id1 != id2 {
		t.Fatalf("expected the same artifact row to be reused, got %d and %d", id1, id2)
	}
}
