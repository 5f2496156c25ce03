package dynenv

// sideVarsByTool names the backend-specific environment variable a tool's
// install directory feeds, per spec §4.5 ("synthesize backend-specific
// side env vars (e.g. GOROOT, GEM_HOME, RUSTUP_HOME, VIRTUAL_ENV)").
// Keyed by the version entry's normalized tool name.
var sideVarsByTool = map[string]string{
	"go":     "GOROOT",
	"ruby":   "GEM_HOME",
	"rust":   "RUSTUP_HOME",
	"python": "VIRTUAL_ENV",
}

// sideVarFor returns the env var name to point at dataPath for the given
// normalized tool name, and whether one applies.
func sideVarFor(normalizedName string) (string, bool) {
	v, ok := sideVarsByTool[normalizedName]
	return v, ok
}
