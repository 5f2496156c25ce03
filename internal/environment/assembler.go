// Package environment aggregates per-tool install outcomes into one
// UpEnvironment value for a work directory (spec §4.3, component C4).
package environment

import "strings"

// VersionEntry is one resolved tool in the assembled environment.
type VersionEntry struct {
	Tool           string `json:"tool"`
	Plugin         string `json:"plugin"`
	NormalizedName string `json:"normalized_name"`
	Version        string `json:"version"`
	BinPath        string `json:"bin_path"`
	// Dir is the subdirectory (relative to the wd root) this version
	// applies to; "" means the wd root.
	Dir      string `json:"dir"`
	DataPath string `json:"data_path,omitempty"`
}

// Alias is a supplemental assembled entry (grounded in original_source/'s
// shell_aliases.rs, not present in spec.md's distillation — see
// SPEC_FULL.md §4.5): a shell alias or function the manifest declares
// alongside env vars.
type Alias struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Assembler accumulates the three ordered sequences spec §4.3 describes for
// one work directory, plus the supplemental alias sequence.
type Assembler struct {
	Versions []VersionEntry
	EnvVars  []EnvVarEntry
	Aliases  []Alias

	// paths is the raw insertion-ordered sequence; ResolvedPaths applies
	// the reversal/promotion/dedup rules spec §4.3 describes.
	paths    []string
	dataHome string
}

// NewAssembler returns an empty assembler. dataHome is the shared data home
// root (spec §6); paths under it are promoted ahead of all others.
func NewAssembler(dataHome string) *Assembler {
	return &Assembler{dataHome: dataHome}
}

// AddVersion appends a resolved tool to the versions sequence.
func (a *Assembler) AddVersion(v VersionEntry) {
	a.Versions = append(a.Versions, v)
}

// AddPath records a PATH entry to prepend.
func (a *Assembler) AddPath(p string) {
	a.paths = append(a.paths, p)
}

// AddEnvVar appends a declared env-var operation.
func (a *Assembler) AddEnvVar(e EnvVarEntry) {
	a.EnvVars = append(a.EnvVars, e)
}

// AddAlias appends a declared shell alias.
func (a *Assembler) AddAlias(al Alias) {
	a.Aliases = append(a.Aliases, al)
}

// ResolvedPaths returns the final PATH-prepend sequence: duplicates removed
// (keeping the last inserted occurrence), the remainder reversed relative to
// insertion order, and any path under the shared data home promoted ahead
// of the rest (spec §4.3).
//
// Scanning the raw sequence back-to-front does both the dedup and the
// reversal in one pass: the first time a path is seen walking backward is
// its last inserted occurrence, and appending in that walk order yields the
// list already in reverse-insertion order.
func (a *Assembler) ResolvedPaths() []string {
	seen := make(map[string]bool, len(a.paths))
	deduped := make([]string, 0, len(a.paths))
	for i := len(a.paths) - 1; i >= 0; i-- {
		p := a.paths[i]
		if seen[p] {
			continue
		}
		seen[p] = true
		deduped = append(deduped, p)
	}

	if a.dataHome == "" {
		return deduped
	}

	promoted := make([]string, 0, len(deduped))
	rest := make([]string, 0, len(deduped))
	for _, p := range deduped {
		if strings.HasPrefix(p, a.dataHome) {
			promoted = append(promoted, p)
		} else {
			rest = append(rest, p)
		}
	}
	return append(promoted, rest...)
}

// VersionsForDir implements the longest-prefix-match selection of spec
// §4.3: for a request against directory d, each tool contributes the
// version entry whose Dir is the longest match (v.Dir == "" or v.Dir == d
// or d starts with v.Dir+"/"). This is spec's P6.
func (a *Assembler) VersionsForDir(d string) []VersionEntry {
	bestLen := make(map[string]int)
	best := make(map[string]VersionEntry)

	for _, v := range a.Versions {
		if !dirMatches(v.Dir, d) {
			continue
		}
		l := len(v.Dir)
		if cur, ok := bestLen[v.Tool]; !ok || l > cur {
			bestLen[v.Tool] = l
			best[v.Tool] = v
		}
	}

	out := make([]VersionEntry, 0, len(best))
	for _, v := range best {
		out = append(out, v)
	}
	return out
}

func dirMatches(entryDir, requestDir string) bool {
	if entryDir == "" || entryDir == requestDir {
		return true
	}
	return strings.HasPrefix(requestDir, entryDir+"/")
}
