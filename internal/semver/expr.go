// Package semver resolves a version expression (spec §4.2) against a
// candidate set, using golang.org/x/mod/semver for comparison after
// normalizing away the single-letter prefix the expression grammar allows
// that x/mod/semver itself doesn't (it requires a leading "v").
package semver

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/mod/semver"
)

// Kind identifies the shape of a parsed version expression.
type Kind int

const (
	KindLatest Kind = iota
	KindExact
	KindPartial
	KindRange
)

// Constraint is one clause of a range expression, e.g. ">=1.2".
type Constraint struct {
	Op      string // one of >=, <=, >, <, =
	Version string // normalized "vX.Y.Z" form
}

// Expr is a parsed version expression.
type Expr struct {
	Kind Kind

	// KindExact
	Exact string

	// KindPartial: the provided numeric components, and whether the
	// expression ended in a wildcard ("1.2.*").
	PartialParts    []int
	PartialWildcard bool

	// KindRange
	Constraints []Constraint

	Raw string
}

// Parse parses a version expression string per spec §4.2.
func Parse(raw string) (Expr, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Expr{}, fmt.Errorf("empty version expression")
	}
	if s == "latest" {
		return Expr{Kind: KindLatest, Raw: s}, nil
	}
	if strings.ContainsAny(s, ",") || strings.HasPrefix(s, ">") || strings.HasPrefix(s, "<") || strings.HasPrefix(s, "=") {
		return parseRange(s)
	}
	if strings.Contains(s, "*") || isPartialNumeric(s) {
		return parsePartial(s)
	}
	return Expr{Kind: KindExact, Exact: s, Raw: s}, nil
}

func isPartialNumeric(s string) bool {
	for _, part := range strings.Split(s, ".") {
		if _, err := strconv.Atoi(part); err != nil {
			return false
		}
	}
	return len(strings.Split(s, ".")) < 3
}

func parsePartial(s string) (Expr, error) {
	wildcard := false
	trimmed := s
	if strings.HasSuffix(s, ".*") {
		wildcard = true
		trimmed = strings.TrimSuffix(s, ".*")
	}
	parts := strings.Split(trimmed, ".")
	nums := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return Expr{}, fmt.Errorf("invalid partial version %q: %w", s, err)
		}
		nums = append(nums, n)
	}
	return Expr{Kind: KindPartial, PartialParts: nums, PartialWildcard: wildcard, Raw: s}, nil
}

func parseRange(s string) (Expr, error) {
	clauses := strings.Split(s, ",")
	cs := make([]Constraint, 0, len(clauses))
	for _, c := range clauses {
		c = strings.TrimSpace(c)
		var op string
		switch {
		case strings.HasPrefix(c, ">="):
			op, c = ">=", c[2:]
		case strings.HasPrefix(c, "<="):
			op, c = "<=", c[2:]
		case strings.HasPrefix(c, ">"):
			op, c = ">", c[1:]
		case strings.HasPrefix(c, "<"):
			op, c = "<", c[1:]
		case strings.HasPrefix(c, "="):
			op, c = "=", c[1:]
		default:
			return Expr{}, fmt.Errorf("invalid range clause %q", c)
		}
		v := Canonical(strings.TrimSpace(c))
		if !semver.IsValid(v) {
			return Expr{}, fmt.Errorf("invalid version %q in range %q", c, s)
		}
		cs = append(cs, Constraint{Op: op, Version: v})
	}
	return Expr{Kind: KindRange, Constraints: cs, Raw: s}, nil
}

// Canonical normalizes a candidate version string into the "vX.Y.Z..." form
// golang.org/x/mod/semver requires, tolerating the optional single-letter
// prefix spec §4.2 step 2 describes (most commonly "v", but any single
// letter is accepted and replaced).
func Canonical(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return s
	}
	if len(s) > 1 && isLetter(s[0]) && (s[1] >= '0' && s[1] <= '9') {
		s = s[1:]
	}
	if !strings.HasPrefix(s, "v") {
		s = "v" + s
	}
	return s
}

func isLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// IsPrerelease reports whether version has a pre-release component.
func IsPrerelease(version string) bool {
	return semver.Prerelease(Canonical(version)) != ""
}

// HasBuildMetadata reports whether version has build metadata ("+...").
func HasBuildMetadata(version string) bool {
	return semver.Build(Canonical(version)) != ""
}

// Compare returns -1, 0, or 1 comparing a and b, treating a pre-release as
// lower than its corresponding release (x/mod/semver's native ordering).
func Compare(a, b string) int {
	return semver.Compare(Canonical(a), Canonical(b))
}

// Valid reports whether version parses as a valid (canonicalized) semver.
func Valid(version string) bool {
	return semver.IsValid(Canonical(version))
}

// Matches reports whether version satisfies expr.
func (e Expr) Matches(version string) bool {
	v := Canonical(version)
	if !semver.IsValid(v) {
		return false
	}
	switch e.Kind {
	case KindLatest:
		return true
	case KindExact:
		return semver.Compare(v, Canonical(e.Exact)) == 0 || stripBuild(v) == Canonical(e.Exact)
	case KindPartial:
		return matchPartial(v, e)
	case KindRange:
		for _, c := range e.Constraints {
			if !matchConstraint(v, c) {
				return false
			}
		}
		return true
	}
	return false
}

func stripBuild(v string) string {
	if i := strings.IndexByte(v, '+'); i >= 0 {
		return v[:i]
	}
	return v
}

func matchPartial(v string, e Expr) bool {
	maj := parseInt(strings.TrimPrefix(semver.Major(v), "v"))
	min := parseInt(trimDot(semver.MajorMinor(v), semver.Major(v)))
	patch := parseInt(patchOf(v))

	got := []int{maj, min, patch}
	for i, want := range e.PartialParts {
		if i >= len(got) {
			break
		}
		if got[i] != want {
			return false
		}
	}
	return true
}

func trimDot(majorMinor, major string) string {
	s := strings.TrimPrefix(majorMinor, major+".")
	if s == majorMinor {
		return "0"
	}
	return s
}

func patchOf(v string) string {
	mm := semver.MajorMinor(v)
	rest := strings.TrimPrefix(v, mm+".")
	if rest == v {
		return "0"
	}
	// rest may carry -prerelease/+build; take the leading numeric run.
	rest = stripBuild(rest)
	if i := strings.IndexByte(rest, '-'); i >= 0 {
		rest = rest[:i]
	}
	return rest
}

func parseInt(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func matchConstraint(v string, c Constraint) bool {
	cmp := semver.Compare(v, c.Version)
	switch c.Op {
	case ">=":
		return cmp >= 0
	case "<=":
		return cmp <= 0
	case ">":
		return cmp > 0
	case "<":
		return cmp < 0
	case "=":
		return cmp == 0
	}
	return false
}

// SortDescending sorts versions in descending semver order, pre-releases
// lower than their release (spec §4.2 step 4).
func SortDescending(versions []string) {
	sort.Slice(versions, func(i, j int) bool {
		return semver.Compare(Canonical(versions[i]), Canonical(versions[j])) > 0
	})
}
