package environment

import (
	"reflect"
	"testing"
)

func TestResolvedPathsDedupAndPromote(t *testing.T) {
	a := NewAssembler("/data")
	a.AddPath("/usr/bin")
	a.AddPath("/data/mise/installs/python/3.12/bin")
	a.AddPath("/usr/local/bin")
	a.AddPath("/usr/bin") // re-inserted later: earlier occurrence dropped

	got := a.ResolvedPaths()
	want := []string{
		"/data/mise/installs/python/3.12/bin", // promoted (under data home)
		"/usr/bin",                            // last inserted occurrence, reversed order
		"/usr/local/bin",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestVersionsForDirLongestMatch(t *testing.T) {
	a := NewAssembler("")
	a.AddVersion(VersionEntry{Tool: "python", Version: "3.11.0", Dir: ""})
	a.AddVersion(VersionEntry{Tool: "python", Version: "3.12.0", Dir: "services/api"})

	root := a.VersionsForDir("")
	if len(root) != 1 || root[0].Version != "3.11.0" {
		t.Fatalf("expected root dir to resolve 3.11.0, got %+v", root)
	}

	nested := a.VersionsForDir("services/api")
	if len(nested) != 1 || nested[0].Version != "3.12.0" {
		t.Fatalf("expected nested dir to resolve 3.12.0, got %+v", nested)
	}

	deeper := a.VersionsForDir("services/api/internal")
	if len(deeper) != 1 || deeper[0].Version != "3.12.0" {
		t.Fatalf("expected deeper dir to still resolve the more specific 3.12.0, got %+v", deeper)
	}

	sibling := a.VersionsForDir("services/web")
	if len(sibling) != 1 || sibling[0].Version != "3.11.0" {
		t.Fatalf("expected sibling dir to fall back to root version, got %+v", sibling)
	}
}

func TestHashStableAcrossEquivalentAssembly(t *testing.T) {
	build := func() *Assembler {
		a := NewAssembler("/data")
		a.AddVersion(VersionEntry{Tool: "python", Version: "3.12.0", Dir: ""})
		a.AddPath("/data/python/bin")
		a.AddEnvVar(EnvVarEntry{Name: "FOO", Value: "1", Op: OpSet})
		return a
	}

	modtimes := map[string]int64{"up.yaml": 100}
	h1, err := build().Hash(modtimes, "cfg-hash")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	h2, err := build().Hash(modtimes, "cfg-hash")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if h1 != h2 {
		t.Fatalf("expected stable hash for identical assembly, got %s vs %s", h1, h2)
	}

	a3 := build()
	a3.AddEnvVar(EnvVarEntry{Name: "BAR", Value: "2", Op: OpSet})
	h3, err := a3.Hash(modtimes, "cfg-hash")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if h3 == h1 {
		t.Fatalf("expected different hash after adding an env var")
	}
}
