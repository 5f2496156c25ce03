package environment

import (
	"encoding/json"
	"sort"

	"github.com/upkit-dev/upkit/internal/ledger"
)

// Payload serializes the assembled environment into the form
// ledger.AssignEnvironment hashes and persists (spec §3/§4.4 step 1).
// Versions are sorted (by tool, then dir) before serializing — spec §3
// requires the hash cover "sorted tool versions" so that install order
// never affects the resulting id; paths and env vars are serialized in
// their already-meaningful order (§4.3: "ordered PATH additions, ordered
// env-var ops").
func (a *Assembler) Payload(configModtimes map[string]int64, configHash string) (ledger.EnvPayload, error) {
	sorted := append([]VersionEntry(nil), a.Versions...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Tool != sorted[j].Tool {
			return sorted[i].Tool < sorted[j].Tool
		}
		return sorted[i].Dir < sorted[j].Dir
	})

	versionsJSON, err := json.Marshal(sorted)
	if err != nil {
		return ledger.EnvPayload{}, err
	}
	pathsJSON, err := json.Marshal(a.ResolvedPaths())
	if err != nil {
		return ledger.EnvPayload{}, err
	}
	envVarsJSON, err := json.Marshal(a.EnvVars)
	if err != nil {
		return ledger.EnvPayload{}, err
	}
	modtimesJSON, err := json.Marshal(configModtimes)
	if err != nil {
		return ledger.EnvPayload{}, err
	}
	aliasesJSON, err := json.Marshal(a.Aliases)
	if err != nil {
		return ledger.EnvPayload{}, err
	}

	return ledger.EnvPayload{
		VersionsJSON:       string(versionsJSON),
		PathsJSON:          string(pathsJSON),
		EnvVarsJSON:        string(envVarsJSON),
		ConfigModtimesJSON: string(modtimesJSON),
		ConfigHash:         configHash,
		AliasesJSON:        string(aliasesJSON),
	}, nil
}

// Hash computes the env_version_id-ready digest for the assembled
// environment without touching the ledger (spec §8 P1), useful for the
// pipeline's idempotency short-circuit before opening a write transaction.
func (a *Assembler) Hash(configModtimes map[string]int64, configHash string) (string, error) {
	p, err := a.Payload(configModtimes, configHash)
	if err != nil {
		return "", err
	}
	return ledger.HashPayload(p.VersionsJSON, p.PathsJSON, p.EnvVarsJSON, p.ConfigModtimesJSON, p.ConfigHash), nil
}
