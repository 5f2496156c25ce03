// Package config loads the global up settings and the per-work-directory
// up: manifest.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// BackendKind identifies which installer backend a manifest entry targets.
type BackendKind string

const (
	BackendMise          BackendKind = "mise"
	BackendHomebrew      BackendKind = "homebrew"
	BackendNix           BackendKind = "nix"
	BackendGoInstall     BackendKind = "go-install"
	BackendCargoInstall  BackendKind = "cargo-install"
	BackendGithubRelease BackendKind = "github-release"
	BackendCustom        BackendKind = "custom"
	BackendAny           BackendKind = "any"
)

// Entry is one item of the up: manifest sequence. It is either a bare tool
// name (implying BackendMise with Plugin set to the name) or a mapping keyed
// by one of the recognized backend names.
type Entry struct {
	Backend BackendKind

	// Plugin is the backend-specific identifier the user typed, e.g.
	// "python" for mise, "hashicorp/terraform" for github-release.
	Plugin string

	Version       string
	URL           string
	Dir           []string
	Upgrade       bool
	Prerelease    bool
	Build         bool
	Exact         bool
	FailOnUpgrade bool

	// Repository is the "owner/repo" for github-release entries.
	Repository string

	// Custom backend fields: shell commands run for up/down/list.
	UpCommand   string
	DownCommand string
	ListCommand string

	// Any holds the alternatives for an `any:` group, tried in order
	// until one succeeds.
	Any []Entry

	// OS/Arch gate this entry to specific runtime.GOOS/GOARCH values.
	// Empty means "all". Supplemental feature carried over from
	// original_source's up_command.rs `if:` predicate.
	OS   []string
	Arch []string
}

// Matches reports whether this entry applies to the current platform.
func (e Entry) Matches(goos, goarch string) bool {
	if len(e.OS) > 0 && !contains(e.OS, goos) {
		return false
	}
	if len(e.Arch) > 0 && !contains(e.Arch, goarch) {
		return false
	}
	return true
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// Manifest is the parsed up: sequence for one work directory.
type Manifest struct {
	Entries []Entry
}

// rawEntry mirrors the YAML shape of one non-bare manifest item: a mapping
// with at most one of the recognized backend keys (or "any").
type rawEntry struct {
	Mise          *rawBody `yaml:"mise"`
	Homebrew      *rawBody `yaml:"homebrew"`
	Nix           *rawBody `yaml:"nix"`
	GoInstall     *rawBody `yaml:"go-install"`
	CargoInstall  *rawBody `yaml:"cargo-install"`
	GithubRelease *rawBody `yaml:"github-release"`
	Custom        *rawBody `yaml:"custom"`
	Any           []yaml.Node `yaml:"any"`
}

type rawBody struct {
	Plugin        string   `yaml:"plugin"`
	Version       string   `yaml:"version"`
	URL           string   `yaml:"url"`
	Dir           []string `yaml:"dir"`
	Upgrade       bool     `yaml:"upgrade"`
	Prerelease    bool     `yaml:"prerelease"`
	Build         bool     `yaml:"build"`
	Exact         bool     `yaml:"exact"`
	FailOnUpgrade bool     `yaml:"fail_on_upgrade"`
	Repository    string   `yaml:"repository"`
	Up            string   `yaml:"up"`
	Down          string   `yaml:"down"`
	List          string   `yaml:"list"`
	OS            []string `yaml:"os"`
	Arch          []string `yaml:"arch"`
}

// UnmarshalYAML implements custom decoding for a manifest entry, which may
// be a bare scalar string (a bare tool name) or a mapping with one
// recognized backend key.
func (e *Entry) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		var name string
		if err := node.Decode(&name); err != nil {
			return err
		}
		*e = Entry{Backend: BackendMise, Plugin: name, Version: "latest"}
		return nil
	}

	var raw rawEntry
	if err := node.Decode(&raw); err != nil {
		return fmt.Errorf("decoding manifest entry: %w", err)
	}

	switch {
	case raw.Mise != nil:
		*e = fromBody(BackendMise, raw.Mise)
	case raw.Homebrew != nil:
		*e = fromBody(BackendHomebrew, raw.Homebrew)
	case raw.Nix != nil:
		*e = fromBody(BackendNix, raw.Nix)
	case raw.GoInstall != nil:
		*e = fromBody(BackendGoInstall, raw.GoInstall)
	case raw.CargoInstall != nil:
		*e = fromBody(BackendCargoInstall, raw.CargoInstall)
	case raw.GithubRelease != nil:
		*e = fromBody(BackendGithubRelease, raw.GithubRelease)
	case raw.Custom != nil:
		*e = fromBody(BackendCustom, raw.Custom)
	case raw.Any != nil:
		alts := make([]Entry, 0, len(raw.Any))
		for i := range raw.Any {
			var alt Entry
			if err := alt.UnmarshalYAML(&raw.Any[i]); err != nil {
				return fmt.Errorf("decoding any[%d]: %w", i, err)
			}
			alts = append(alts, alt)
		}
		*e = Entry{Backend: BackendAny, Any: alts}
	default:
		return fmt.Errorf("manifest entry has no recognized backend key")
	}
	return nil
}

func fromBody(kind BackendKind, b *rawBody) Entry {
	e := Entry{
		Backend:       kind,
		Plugin:        b.Plugin,
		Version:       b.Version,
		URL:           b.URL,
		Dir:           b.Dir,
		Upgrade:       b.Upgrade,
		Prerelease:    b.Prerelease,
		Build:         b.Build,
		Exact:         b.Exact,
		FailOnUpgrade: b.FailOnUpgrade,
		Repository:    b.Repository,
		UpCommand:     b.Up,
		DownCommand:   b.Down,
		ListCommand:   b.List,
		OS:            b.OS,
		Arch:          b.Arch,
	}
	if e.Version == "" {
		e.Version = "latest"
	}
	if e.Plugin == "" && e.Repository != "" {
		e.Plugin = e.Repository
	}
	return e
}

type rawManifest struct {
	Up []Entry `yaml:"up"`
}

// ParseManifest parses the up: sequence out of raw per-wd config YAML bytes.
func ParseManifest(data []byte) (*Manifest, error) {
	var raw rawManifest
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}
	return &Manifest{Entries: raw.Up}, nil
}

// FilterForPlatform drops entries (recursively within any: groups) that
// don't match the given GOOS/GOARCH.
func (m *Manifest) FilterForPlatform(goos, goarch string) *Manifest {
	out := &Manifest{}
	for _, e := range m.Entries {
		if !e.Matches(goos, goarch) {
			continue
		}
		if e.Backend == BackendAny {
			var alts []Entry
			for _, alt := range e.Any {
				if alt.Matches(goos, goarch) {
					alts = append(alts, alt)
				}
			}
			if len(alts) == 0 {
				continue
			}
			e.Any = alts
		}
		out.Entries = append(out.Entries, e)
	}
	return out
}

// WorkdirConfigFileName is the file name searched for within a wd's config
// directory, holding the up: manifest among other per-project settings.
const WorkdirConfigFileName = "config.yaml"

// WorkdirConfigDirName is the directory (relative to the wd root) that
// holds WorkdirConfigFileName, mirroring the teacher's .beads/ convention.
const WorkdirConfigDirName = ".up"

// FindWorkdirConfig walks up from dir looking for <ancestor>/.up/config.yaml,
// returning its path or "" if none is found.
func FindWorkdirConfig(dir string) string {
	for d := dir; ; {
		candidate := filepath.Join(d, WorkdirConfigDirName, WorkdirConfigFileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		parent := filepath.Dir(d)
		if parent == d {
			return ""
		}
		d = parent
	}
}

// LoadManifestForDir finds and parses the manifest that applies to dir,
// filtered for the current platform. Returns a nil manifest (no error) when
// no config file is found.
func LoadManifestForDir(dir string) (*Manifest, string, error) {
	path := FindWorkdirConfig(dir)
	if path == "" {
		return nil, "", nil
	}
	data, err := os.ReadFile(path) // #nosec G304 -- path found via controlled walk
	if err != nil {
		return nil, path, fmt.Errorf("reading %s: %w", path, err)
	}
	m, err := ParseManifest(data)
	if err != nil {
		return nil, path, err
	}
	return m.FilterForPlatform(runtime.GOOS, runtime.GOARCH), path, nil
}
