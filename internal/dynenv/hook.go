package dynenv

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/upkit-dev/upkit/internal/environment"
	"github.com/upkit-dev/upkit/internal/ledger"
)

// flagVars are the flag-accumulator variables whose repeated `-`-prefixed
// tokens get compressed to first-occurrence-only as the final apply step
// (spec §4.5).
var flagVars = []string{"CFLAGS", "CPPFLAGS", "LDFLAGS"}

// Hook implements the per-prompt dynamic-environment reconciliation of
// spec §4.5.
type Hook struct {
	Ledger *ledger.Ledger
}

// Request is everything one hook invocation needs: the calling shell's
// current environment, which work directory (if any) is current, and the
// rendering/behavior flags `up hook env` accepts.
type Request struct {
	Environ   map[string]string
	WdTrustID string // empty means "not inside a recognized work directory"
	Shell     Shell
	KeepShims bool
	Quiet     bool
	ShimDir   string

	// Notification gate inputs (spec §4.5 "Notification gate").
	ConfigModtimes    map[string]int64
	ConfigHash        string
	NotifySuppressVar string
}

// notifyStateVar records the gate's last decision so it doesn't re-print
// the same hint on every subsequent prompt.
const notifyStateVar = "__omni_dynenv_notify"

// Run computes and emits the shell statements to reconcile the active
// environment with the one the current directory requires, returning the
// rendered script as a string ready for the shell to `eval`.
func (h *Hook) Run(ctx context.Context, req Request) (string, error) {
	var out strings.Builder
	stmts := NewStatements(&out, req.Shell)

	active := DecodeState(req.Environ[StateVar])

	desiredID := ""
	if req.WdTrustID != "" {
		id, ok, err := h.Ledger.CurrentBinding(ctx, req.WdTrustID)
		if err != nil {
			return "", err
		}
		if ok {
			desiredID = id
		}
	}

	var desiredEV *ledger.EnvVersion
	if desiredID != "" {
		ev, err := h.Ledger.GetEnvVersion(ctx, desiredID)
		if err != nil {
			return "", err
		}
		desiredEV = ev
	}

	h.runNotifyGate(req, desiredEV, stmts)

	if active.EnvVersionID == desiredID {
		return out.String(), nil
	}

	working := make(map[string]string, len(req.Environ))
	for k, v := range req.Environ {
		working[k] = v
	}

	if !req.KeepShims && req.ShimDir != "" {
		stripShimDir(working, stmts, req.ShimDir)
	}

	for name, vm := range active.Mutation {
		if len(vm.ListOps) > 0 {
			undoList(name, vm, working, stmts)
		} else {
			undoScalar(name, vm, working, stmts)
		}
	}

	state := &envState{working: working, mutation: Mutation{}}

	if desiredEV != nil {
		if err := applyEnvVersion(state, desiredEV); err != nil {
			return "", err
		}
	}

	for name, vm := range state.mutation {
		if vm.SetValue == nil {
			stmts.Unset(name)
		} else {
			stmts.Export(name, *vm.SetValue)
		}
	}

	if desiredEV != nil {
		var aliases []environment.Alias
		if err := json.Unmarshal([]byte(desiredEV.AliasesJSON), &aliases); err == nil {
			for _, al := range aliases {
				stmts.Alias(al.Name, al.Value)
			}
		}
	}

	newState := State{EnvVersionID: desiredID, Mutation: state.mutation}
	encoded, err := newState.Encode()
	if err != nil {
		return "", err
	}
	stmts.Export(StateVar, encoded)

	return out.String(), nil
}

// applyEnvVersion performs the full "Apply" step of spec §4.5: side vars,
// PATH prepends, user-declared ops in order, then flag-token compression.
func applyEnvVersion(state *envState, ev *ledger.EnvVersion) error {
	var versions []environment.VersionEntry
	if err := json.Unmarshal([]byte(ev.VersionsJSON), &versions); err != nil {
		return err
	}
	var paths []string
	if err := json.Unmarshal([]byte(ev.PathsJSON), &paths); err != nil {
		return err
	}
	var envVars []environment.EnvVarEntry
	if err := json.Unmarshal([]byte(ev.EnvVarsJSON), &envVars); err != nil {
		return err
	}

	for _, v := range versions {
		if name, ok := sideVarFor(v.NormalizedName); ok && v.DataPath != "" {
			state.apply(name, environment.OpSet, v.DataPath)
		}
	}

	for i := len(paths) - 1; i >= 0; i-- {
		state.apply("PATH", environment.OpPrepend, paths[i])
	}

	for _, entry := range envVars {
		state.apply(entry.Name, entry.Op, entry.Value)
	}

	for _, name := range flagVars {
		if current, ok := state.working[name]; ok {
			compressed := environment.CompressFlagTokens(current)
			if compressed != current {
				state.setFinal(name, compressed)
			}
		}
	}
	return nil
}

// stripShimDir removes shimDir from PATH before undo/apply runs, spec
// §4.5's unconditional pre-step ("Unless the caller passes --keep-shims,
// remove the shim directory from PATH before applying").
func stripShimDir(working map[string]string, stmts *Statements, shimDir string) {
	current, ok := working["PATH"]
	if !ok {
		return
	}
	parts := strings.Split(current, ":")
	kept := make([]string, 0, len(parts))
	changed := false
	for _, p := range parts {
		if p == shimDir {
			changed = true
			continue
		}
		kept = append(kept, p)
	}
	if !changed {
		return
	}
	newValue := strings.Join(kept, ":")
	working["PATH"] = newValue
	stmts.Export("PATH", newValue)
}

// runNotifyGate implements spec §4.5's "Notification gate": when the
// directory's current config-file modtimes/hash no longer match what the
// ledger recorded for the last `up`, print a one-line hint to re-run it.
// The decision is cached in an env var so unchanged directories don't
// re-export it or reprint the hint on every prompt; the fingerprint itself
// is recomputed each time.
func (h *Hook) runNotifyGate(req Request, desiredEV *ledger.EnvVersion, stmts *Statements) {
	if req.WdTrustID == "" || req.Quiet || desiredEV == nil {
		return
	}
	if req.NotifySuppressVar != "" {
		if _, suppressed := req.Environ[req.NotifySuppressVar]; suppressed {
			return
		}
	}

	fingerprint := configFingerprint(req.ConfigModtimes, req.ConfigHash)
	ledgerFingerprint := configFingerprint(decodeModtimes(desiredEV.ConfigModtimesJSON), desiredEV.ConfigHash)
	decisionKey := desiredEV.ID + ":" + fingerprint

	if req.Environ[notifyStateVar] == decisionKey {
		return
	}
	stmts.Export(notifyStateVar, decisionKey)

	if fingerprint != ledgerFingerprint {
		stmts.Echo("up: directory configuration changed since last `up` — re-run it to apply")
	}
}

func configFingerprint(modtimes map[string]int64, hash string) string {
	b, _ := json.Marshal(struct {
		Modtimes map[string]int64 `json:"modtimes"`
		Hash     string           `json:"hash"`
	}{modtimes, hash})
	return string(b)
}

func decodeModtimes(raw string) map[string]int64 {
	var m map[string]int64
	_ = json.Unmarshal([]byte(raw), &m)
	return m
}
