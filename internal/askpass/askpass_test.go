package askpass

import (
	"bytes"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

func TestBrokerRoundTrip(t *testing.T) {
	b, err := New(func(prompt string) (string, error) {
		if prompt != "Password:" {
			t.Fatalf("unexpected prompt: %q", prompt)
		}
		return "hunter2", nil
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer b.Close()

	info, err := os.Stat(b.Dir())
	if err != nil {
		t.Fatalf("Stat dir: %v", err)
	}
	if info.Mode().Perm() != 0o700 {
		t.Fatalf("expected dir mode 0700, got %v", info.Mode().Perm())
	}

	var out bytes.Buffer
	if err := RunClient(b.SocketPath(), "Password:", &out); err != nil {
		t.Fatalf("RunClient: %v", err)
	}
	if out.String() != "hunter2" {
		t.Fatalf("expected %q, got %q", "hunter2", out.String())
	}
}

func TestBrokerCloseRemovesDir(t *testing.T) {
	b, err := New(func(string) (string, error) { return "", nil })
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	dir := b.Dir()
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatalf("expected broker dir removed, got err=%v", err)
	}
}

func TestWriteShimAndEnvVars(t *testing.T) {
	dir := t.TempDir()
	selfExe := filepath.Join(dir, "up")
	if err := os.WriteFile(selfExe, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatal(err)
	}

	shimPath, err := WriteShim(dir, "sudo", selfExe, filepath.Join(dir, "askpass.sock"))
	if err != nil {
		t.Fatalf("WriteShim: %v", err)
	}
	info, err := os.Stat(shimPath)
	if err != nil {
		t.Fatalf("Stat shim: %v", err)
	}
	if info.Mode().Perm() != 0o700 {
		t.Fatalf("expected shim mode 0700, got %v", info.Mode().Perm())
	}

	vars := EnvVars(shimPath)
	want := map[string]bool{
		"SUDO_ASKPASS=" + shimPath:  true,
		"SSH_ASKPASS=" + shimPath:   true,
		"SSH_ASKPASS_REQUIRE=force": true,
		"DISPLAY=":                  true,
	}
	if len(vars) != len(want) {
		t.Fatalf("expected %d vars, got %v", len(want), vars)
	}
	for _, v := range vars {
		if !want[v] {
			t.Fatalf("unexpected env var %q", v)
		}
	}
}

func TestShimScriptInvokesBroker(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("no /bin/sh available")
	}

	b, err := New(func(prompt string) (string, error) { return "s3cr3t", nil })
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer b.Close()

	selfExe, err := os.Executable()
	if err != nil {
		t.Fatalf("os.Executable: %v", err)
	}

	shimPath, err := WriteShim(b.Dir(), "ssh", selfExe, b.SocketPath())
	if err != nil {
		t.Fatalf("WriteShim: %v", err)
	}

	data, err := os.ReadFile(shimPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Contains(data, []byte("__askpass-client")) {
		t.Fatalf("expected shim script to invoke __askpass-client, got: %s", data)
	}
}
