package main

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"rsc.io/script"
	"rsc.io/script/scripttest"
)

// TestScripts drives the built `up` binary through the txtar scripts under
// testdata/ (spec §8: "one end-to-end scenario... additionally covered by
// an rsc.io/script txtar script test driving the built up binary").
func TestScripts(t *testing.T) {
	bin := buildUpBinary(t)

	engine := &script.Engine{
		Cmds:  script.DefaultCmds(),
		Conds: script.DefaultConds(),
	}
	engine.Cmds["up"] = script.Program(bin, nil, 30*time.Second)

	env := append(os.Environ(),
		"UP_CACHE_HOME="+t.TempDir(),
		"UP_DATA_HOME="+t.TempDir(),
	)
	scripttest.Test(t, context.Background(), engine, env, "testdata/*.txt")
}

// buildUpBinary compiles this package's own binary once for the test run,
// matching the standard rsc.io/script pattern of exercising a real built
// executable rather than the package's in-process functions.
func buildUpBinary(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	bin := filepath.Join(dir, "up")
	cmd := exec.Command("go", "build", "-o", bin, ".")
	cmd.Dir = "."
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("building up binary: %v\n%s", err, out)
	}
	return bin
}
