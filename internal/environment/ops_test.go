package environment

import "testing"

func strp(s string) *string { return &s }

func TestApplySetUnset(t *testing.T) {
	r := Apply(OpSet, "1", nil)
	if r.NewValue == nil || *r.NewValue != "1" {
		t.Fatalf("Set on absent: got %+v", r)
	}
	r = Apply(OpUnset, "", strp("1"))
	if r.NewValue != nil {
		t.Fatalf("Unset should clear value, got %+v", r)
	}
}

func TestApplyPrependAppendRemoveRoundTrip(t *testing.T) {
	cur := strp("/a/bin:/b/bin")

	prepend := Apply(OpPrepend, "/c/bin", cur)
	if *prepend.NewValue != "/c/bin:/a/bin:/b/bin" {
		t.Fatalf("Prepend: got %q", *prepend.NewValue)
	}
	if prepend.List == nil || prepend.List.Kind != "add" || prepend.List.Index != 0 {
		t.Fatalf("Prepend list record: got %+v", prepend.List)
	}
	undone := UndoList(*prepend.List, *prepend.NewValue)
	if undone != *cur {
		t.Fatalf("undo prepend: got %q want %q", undone, *cur)
	}

	appendResult := Apply(OpAppend, "/d/bin", cur)
	if *appendResult.NewValue != "/a/bin:/b/bin:/d/bin" {
		t.Fatalf("Append: got %q", *appendResult.NewValue)
	}
	undone = UndoList(*appendResult.List, *appendResult.NewValue)
	if undone != *cur {
		t.Fatalf("undo append: got %q want %q", undone, *cur)
	}

	remove := Apply(OpRemove, "/a/bin", cur)
	if *remove.NewValue != "/b/bin" {
		t.Fatalf("Remove: got %q", *remove.NewValue)
	}
	undone = UndoList(*remove.List, *remove.NewValue)
	if undone != *cur {
		t.Fatalf("undo remove: got %q want %q", undone, *cur)
	}
}

func TestApplyPrefixOnAbsentSuffixOnPresent(t *testing.T) {
	r := Apply(OpPrefix, "-I/usr/include", nil)
	if *r.NewValue != "-I/usr/include" {
		t.Fatalf("Prefix on absent: got %+v", r)
	}
	r = Apply(OpSuffix, " -O2", strp("-Wall"))
	if *r.NewValue != "-Wall -O2" {
		t.Fatalf("Suffix on present: got %q", *r.NewValue)
	}
}

func TestCompressFlagTokensKeepsFirstOccurrence(t *testing.T) {
	got := CompressFlagTokens("-I/a -L/b -I/a -O2 -L/b")
	want := "-I/a -L/b -O2"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestRemoveNoMatchIsNoOp(t *testing.T) {
	cur := strp("/a/bin:/b/bin")
	r := Apply(OpRemove, "/missing", cur)
	if r.NewValue == nil || *r.NewValue != *cur {
		t.Fatalf("expected no-op remove, got %+v", r)
	}
	if r.List != nil {
		t.Fatalf("expected no list record for no-op remove, got %+v", r.List)
	}
}
