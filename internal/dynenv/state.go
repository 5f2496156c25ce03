// Package dynenv implements the per-prompt shell hook (spec §4.5): it
// diffs the environment the current work directory requires against
// whatever was last applied, emits shell statements to reconcile them, and
// records the new state in a single environment variable the calling
// shell keeps alive across prompts.
package dynenv

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/upkit-dev/upkit/internal/environment"
)

// StateVar is the name of the process environment variable the hook uses
// to remember what it last did (spec §4.5: "`__omni_dynenv`").
const StateVar = "__omni_dynenv"

// VarMutation records how the hook touched one variable, enough to undo
// it later. ListOps is empty for a scalar mutation (set/unset/prefix/
// suffix); non-empty for a PATH-like list mutation, recording the
// ordered Add/Del operations applied, oldest first.
type VarMutation struct {
	PriorExisted bool    `json:"prior_existed,omitempty"`
	PriorValue   *string `json:"prior_value,omitempty"`

	// SetValue is what the hook last wrote to this variable (nil if it
	// unset it); undo only proceeds if the variable's current value
	// still matches this, per spec §4.5's "user may have changed it
	// meanwhile" guard.
	SetValue *string `json:"set_value,omitempty"`

	ListOps []environment.ListMutation `json:"list_ops,omitempty"`
}

// Mutation is the full record of one hook application: every variable it
// touched, keyed by name.
type Mutation map[string]VarMutation

// State is the decoded contents of the __omni_dynenv variable.
type State struct {
	EnvVersionID string
	Mutation     Mutation
}

// Encode renders State back into the "<hex64_id>;<json_blob>" wire form
// spec §4.5 mandates.
func (s State) Encode() (string, error) {
	blob, err := json.Marshal(s.Mutation)
	if err != nil {
		return "", fmt.Errorf("encoding dynenv state: %w", err)
	}
	return s.EnvVersionID + ";" + string(blob), nil
}

// DecodeState parses the __omni_dynenv variable's value. An empty or
// malformed value decodes to the zero State (id "", meaning "nothing
// applied yet") rather than erroring — a corrupt or hand-edited state var
// should self-heal on the next hook invocation, not wedge the shell.
func DecodeState(raw string) State {
	if raw == "" {
		return State{}
	}
	idPart, jsonPart, found := strings.Cut(raw, ";")
	if !found {
		return State{}
	}
	var mutation Mutation
	if err := json.Unmarshal([]byte(jsonPart), &mutation); err != nil {
		return State{}
	}
	return State{EnvVersionID: idPart, Mutation: mutation}
}
