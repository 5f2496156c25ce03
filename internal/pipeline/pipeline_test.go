package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/jonboulle/clockwork"

	"github.com/upkit-dev/upkit/internal/config"
	"github.com/upkit-dev/upkit/internal/ledger"
	"github.com/upkit-dev/upkit/internal/versionsrc"
)

func newTestPipeline(t *testing.T) (*Pipeline, string) {
	t.Helper()
	home := t.TempDir()
	l, err := ledger.OpenWithClock(context.Background(), filepath.Join(home, "ledger.db"), clockwork.NewFakeClock())
	if err != nil {
		t.Fatalf("OpenWithClock: %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })

	sources := versionsrc.New(l, clockwork.NewFakeClock())
	t.Cleanup(sources.Close)

	dataHome := filepath.Join(home, "data")
	p := New(l, sources, dataHome, "", config.Retention{MaxTotal: 500, MaxPerWorkdir: 10, Seconds: 0})
	return p, home
}

func customManifest(listOutput string) *config.Manifest {
	return &config.Manifest{Entries: []config.Entry{
		{
			Backend:     config.BackendCustom,
			Plugin:      "greeter",
			UpCommand:   "true",
			ListCommand: "echo " + listOutput,
		},
	}}
}

func TestUpAssignsEnvironmentAndCommitsUsage(t *testing.T) {
	p, home := newTestPipeline(t)
	wd := filepath.Join(home, "project")
	if err := os.MkdirAll(wd, 0o755); err != nil {
		t.Fatal(err)
	}

	result, err := p.Up(context.Background(), UpOptions{
		WorkDir:  wd,
		Manifest: customManifest("1.0.0"),
	})
	if err != nil {
		t.Fatalf("Up: %v", err)
	}
	if result.EnvVersionID == "" {
		t.Fatal("expected a non-empty env version id")
	}
	if !result.IsNew {
		t.Fatal("expected IsNew on first assignment")
	}
	if result.ToolCount != 1 {
		t.Fatalf("expected 1 tool, got %d", result.ToolCount)
	}

	installed, err := p.Ledger.FindInstalled(context.Background(), "custom", "greeter", "", "1.0.0")
	if err != nil {
		t.Fatalf("FindInstalled: %v", err)
	}
	if installed == nil {
		t.Fatal("expected custom:greeter@1.0.0 to be recorded as installed")
	}

	binding, ok, err := p.Ledger.CurrentBinding(context.Background(), result.WdTrustID)
	if err != nil || !ok {
		t.Fatalf("CurrentBinding: ok=%v err=%v", ok, err)
	}
	if binding != result.EnvVersionID {
		t.Fatalf("expected binding %q, got %q", result.EnvVersionID, binding)
	}
}

func TestUpTwiceIsIdempotent(t *testing.T) {
	p, home := newTestPipeline(t)
	wd := filepath.Join(home, "project")
	if err := os.MkdirAll(wd, 0o755); err != nil {
		t.Fatal(err)
	}

	opts := UpOptions{WorkDir: wd, Manifest: customManifest("1.0.0")}

	first, err := p.Up(context.Background(), opts)
	if err != nil {
		t.Fatalf("first Up: %v", err)
	}
	second, err := p.Up(context.Background(), opts)
	if err != nil {
		t.Fatalf("second Up: %v", err)
	}
	if first.EnvVersionID != second.EnvVersionID {
		t.Fatalf("expected stable env version id, got %q then %q", first.EnvVersionID, second.EnvVersionID)
	}
	if second.IsNew {
		t.Fatal("expected second assignment to reuse the existing row")
	}
}

func TestDownRemovesBinding(t *testing.T) {
	p, home := newTestPipeline(t)
	wd := filepath.Join(home, "project")
	if err := os.MkdirAll(wd, 0o755); err != nil {
		t.Fatal(err)
	}

	up, err := p.Up(context.Background(), UpOptions{WorkDir: wd, Manifest: customManifest("1.0.0")})
	if err != nil {
		t.Fatalf("Up: %v", err)
	}

	if err := p.Down(context.Background(), DownOptions{WorkDir: wd, Manifest: customManifest("1.0.0")}); err != nil {
		t.Fatalf("Down: %v", err)
	}

	_, ok, err := p.Ledger.CurrentBinding(context.Background(), up.WdTrustID)
	if err != nil {
		t.Fatalf("CurrentBinding: %v", err)
	}
	if ok {
		t.Fatal("expected no binding after Down")
	}
}
