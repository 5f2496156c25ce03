package dynenv

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jonboulle/clockwork"

	"github.com/upkit-dev/upkit/internal/environment"
	"github.com/upkit-dev/upkit/internal/ledger"
)

func openTestLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	l, err := ledger.OpenWithClock(context.Background(), filepath.Join(t.TempDir(), "ledger.db"), clockwork.NewFakeClock())
	if err != nil {
		t.Fatalf("OpenWithClock: %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func assignTestEnv(t *testing.T, l *ledger.Ledger, wd string, versions []environment.VersionEntry, paths []string, envVars []environment.EnvVarEntry) string {
	t.Helper()
	a := environment.NewAssembler("/data")
	for _, v := range versions {
		a.AddVersion(v)
	}
	for _, p := range paths {
		a.AddPath(p)
	}
	for _, e := range envVars {
		a.AddEnvVar(e)
	}
	payload, err := a.Payload(nil, "cfg-hash")
	if err != nil {
		t.Fatalf("Payload: %v", err)
	}
	id, _, err := l.AssignEnvironment(context.Background(), wd, payload, "deadbeef", ledger.Retention{MaxTotal: 100, MaxPerWorkdir: 10})
	if err != nil {
		t.Fatalf("AssignEnvironment: %v", err)
	}
	return id
}

func TestHookNoOpWhenAlreadyApplied(t *testing.T) {
	l := openTestLedger(t)
	id := assignTestEnv(t, l, "wd1", []environment.VersionEntry{{Tool: "python", NormalizedName: "python", Version: "3.12.0", DataPath: "/data/python/3.12.0"}}, []string{"/data/python/3.12.0/bin"}, nil)

	h := &Hook{Ledger: l}
	out, err := h.Run(context.Background(), Request{
		Environ:   map[string]string{StateVar: id + ";{}"},
		WdTrustID: "wd1",
		Shell:     ShellBash,
		Quiet:     true,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if strings.Contains(out, "export PATH") {
		t.Fatalf("expected no PATH mutation when already applied, got: %s", out)
	}
}

func TestHookAppliesPathAndSideVars(t *testing.T) {
	l := openTestLedger(t)
	assignTestEnv(t, l, "wd1",
		[]environment.VersionEntry{{Tool: "python", NormalizedName: "python", Version: "3.12.0", DataPath: "/data/python/3.12.0"}},
		[]string{"/data/python/3.12.0/bin"}, nil)

	h := &Hook{Ledger: l}
	out, err := h.Run(context.Background(), Request{
		Environ:   map[string]string{"PATH": "/usr/bin"},
		WdTrustID: "wd1",
		Shell:     ShellBash,
		Quiet:     true,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(out, "/data/python/3.12.0/bin:/usr/bin") {
		t.Fatalf("expected PATH prepend, got: %s", out)
	}
	if !strings.Contains(out, "VIRTUAL_ENV") {
		t.Fatalf("expected VIRTUAL_ENV side var, got: %s", out)
	}
	if !strings.Contains(out, StateVar) {
		t.Fatalf("expected state var to be written, got: %s", out)
	}
}

func TestHookUndoesPriorMutationWhenLeavingDirectory(t *testing.T) {
	l := openTestLedger(t)
	id := assignTestEnv(t, l, "wd1",
		[]environment.VersionEntry{{Tool: "python", NormalizedName: "python", Version: "3.12.0", DataPath: "/data/python/3.12.0"}},
		[]string{"/data/python/3.12.0/bin"}, nil)

	prevPath := "/usr/bin"
	mutation := Mutation{
		"PATH": {ListOps: []environment.ListMutation{{Kind: "add", Value: "/data/python/3.12.0/bin", Index: 0}}},
	}
	encoded, err := State{EnvVersionID: id, Mutation: mutation}.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	h := &Hook{Ledger: l}
	out, err := h.Run(context.Background(), Request{
		Environ:   map[string]string{"PATH": "/data/python/3.12.0/bin:" + prevPath, StateVar: encoded},
		WdTrustID: "", // left the work directory: no binding
		Shell:     ShellBash,
		Quiet:     true,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(out, "export PATH='"+prevPath+"'") {
		t.Fatalf("expected PATH restored to %q, got: %s", prevPath, out)
	}
}

func TestHookLeavesUserModifiedScalarAlone(t *testing.T) {
	l := openTestLedger(t)
	id := assignTestEnv(t, l, "wd1", nil, nil, []environment.EnvVarEntry{{Name: "FOO", Value: "bar", Op: environment.OpSet}})

	mutation := Mutation{"FOO": {SetValue: strPtr("bar")}}
	encoded, err := State{EnvVersionID: id, Mutation: mutation}.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	h := &Hook{Ledger: l}
	out, err := h.Run(context.Background(), Request{
		Environ:   map[string]string{"FOO": "user-changed-this", StateVar: encoded},
		WdTrustID: "",
		Shell:     ShellBash,
		Quiet:     true,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if strings.Contains(out, "FOO") {
		t.Fatalf("expected FOO left untouched since the user changed it, got: %s", out)
	}
}

func TestStateRoundTrip(t *testing.T) {
	s := State{EnvVersionID: "wd%abc123", Mutation: Mutation{
		"FOO":  {PriorExisted: true, PriorValue: strPtr("old"), SetValue: strPtr("new")},
		"PATH": {ListOps: []environment.ListMutation{{Kind: "add", Value: "/bin", Index: 0}}},
	}}
	encoded, err := s.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded := DecodeState(encoded)
	if decoded.EnvVersionID != s.EnvVersionID {
		t.Fatalf("id mismatch: %s vs %s", decoded.EnvVersionID, s.EnvVersionID)
	}
	var want, got string
	wb, _ := json.Marshal(s.Mutation)
	gb, _ := json.Marshal(decoded.Mutation)
	want, got = string(wb), string(gb)
	if want != got {
		t.Fatalf("mutation round-trip mismatch:\nwant %s\ngot  %s", want, got)
	}
}

func strPtr(s string) *string { return &s }
