package semver

import "testing"

func TestParseAndMatch(t *testing.T) {
	cases := []struct {
		expr    string
		version string
		want    bool
	}{
		{"latest", "1.2.3", true},
		{"1.2.3", "1.2.3", true},
		{"1.2.3", "1.2.4", false},
		{"1", "1.9.9", true},
		{"1", "2.0.0", false},
		{"1.2", "1.2.9", true},
		{"1.2", "1.3.0", false},
		{"1.2.*", "1.2.5", true},
		{"1.2.*", "1.3.0", false},
		{">=1.2,<2", "1.5.0", true},
		{">=1.2,<2", "2.0.0", false},
		{">=1.2,<2", "1.1.0", false},
	}
	for _, c := range cases {
		e, err := Parse(c.expr)
		if err != nil {
			t.Fatalf("Parse(%q): %v", c.expr, err)
		}
		got := e.Matches(c.version)
		if got != c.want {
			t.Errorf("Expr(%q).Matches(%q) = %v, want %v", c.expr, c.version, got, c.want)
		}
	}
}

func TestCanonicalAcceptsPrefix(t *testing.T) {
	if Canonical("v1.2.3") != "v1.2.3" {
		t.Fatalf("expected v1.2.3, got %s", Canonical("v1.2.3"))
	}
	if Canonical("1.2.3") != "v1.2.3" {
		t.Fatalf("expected v1.2.3, got %s", Canonical("1.2.3"))
	}
}

func TestSortDescending(t *testing.T) {
	vs := []string{"1.0.0", "1.3.0-rc1", "1.2.0", "2.0.0"}
	SortDescending(vs)
	want := []string{"2.0.0", "1.3.0-rc1", "1.2.0", "1.0.0"}
	for i := range vs {
		if vs[i] != want[i] {
			t.Fatalf("at %d: got %s want %s (full: %v)", i, vs[i], want[i], vs)
		}
	}
}

func TestResolveUpgradeFalsePrefersInstalled(t *testing.T) {
	e, _ := Parse(">=1.0,<2")
	v, used, ok := Resolve(e, []string{"1.0.0", "1.5.0", "1.9.0"}, ResolveOptions{
		Upgrade:   false,
		Installed: []string{"1.2.0"},
	})
	if !ok || !used || v != "1.2.0" {
		t.Fatalf("got v=%s used=%v ok=%v, want v=1.2.0 used=true ok=true", v, used, ok)
	}
}

func TestResolveLatestTieBreak(t *testing.T) {
	e, _ := Parse("latest")
	v, _, ok := Resolve(e, []string{"1.0.0", "1.3.0-rc1", "1.2.0"}, ResolveOptions{})
	if !ok || v != "1.2.0" {
		t.Fatalf("got v=%s ok=%v, want v=1.2.0 (highest non-prerelease)", v, ok)
	}
}

func TestResolveNoMatchIsNotOK(t *testing.T) {
	e, _ := Parse("latest")
	_, _, ok := Resolve(e, []string{"1.0.0-rc1"}, ResolveOptions{Prerelease: false})
	if ok {
		t.Fatalf("expected ok=false when only pre-releases exist and prerelease:false")
	}
}
