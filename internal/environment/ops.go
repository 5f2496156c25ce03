package environment

import "strings"

// Op identifies one environment-variable mutation kind (spec §4.6).
type Op string

const (
	OpSet     Op = "set"
	OpUnset   Op = "unset"
	OpPrefix  Op = "prefix"
	OpSuffix  Op = "suffix"
	OpPrepend Op = "prepend"
	OpAppend  Op = "append"
	OpRemove  Op = "remove"
)

// EnvVarEntry is one declared env-var operation (spec §4.3/§4.6).
type EnvVarEntry struct {
	Name  string `json:"name"`
	Value string `json:"value,omitempty"`
	Op    Op     `json:"op"`
}

// ListMutation records enough about a list-style (`:`-separated) mutation
// to undo it later (spec §4.5 "list-operations (Add/Del with index)").
type ListMutation struct {
	Kind  string `json:"kind"` // "add" or "del"
	Value string `json:"value"`
	Index int    `json:"index"`
}

// ApplyResult is the outcome of applying one EnvVarEntry against a
// variable's current value.
type ApplyResult struct {
	// NewValue is the variable's value after applying the op; nil means
	// the variable should be unset.
	NewValue *string
	// List is set only for Prepend/Append/Remove, which mutate a
	// `:`-separated list and need an undo record.
	List *ListMutation
}

// Apply implements the operation table of spec §4.6 for a single variable.
// current is the variable's present value, or nil if unset.
func Apply(op Op, value string, current *string) ApplyResult {
	switch op {
	case OpSet:
		v := value
		return ApplyResult{NewValue: &v}

	case OpUnset:
		return ApplyResult{NewValue: nil}

	case OpPrefix:
		if current == nil {
			v := value
			return ApplyResult{NewValue: &v}
		}
		v := value + *current
		return ApplyResult{NewValue: &v}

	case OpSuffix:
		if current == nil {
			v := value
			return ApplyResult{NewValue: &v}
		}
		v := *current + value
		return ApplyResult{NewValue: &v}

	case OpPrepend:
		if current == nil || *current == "" {
			v := value
			return ApplyResult{NewValue: &v, List: &ListMutation{Kind: "add", Value: value, Index: 0}}
		}
		parts := append([]string{value}, strings.Split(*current, ":")...)
		v := strings.Join(parts, ":")
		return ApplyResult{NewValue: &v, List: &ListMutation{Kind: "add", Value: value, Index: 0}}

	case OpAppend:
		if current == nil || *current == "" {
			v := value
			return ApplyResult{NewValue: &v, List: &ListMutation{Kind: "add", Value: value, Index: 0}}
		}
		parts := strings.Split(*current, ":")
		idx := len(parts)
		parts = append(parts, value)
		v := strings.Join(parts, ":")
		return ApplyResult{NewValue: &v, List: &ListMutation{Kind: "add", Value: value, Index: idx}}

	case OpRemove:
		if current == nil {
			return ApplyResult{NewValue: nil}
		}
		parts := strings.Split(*current, ":")
		kept := make([]string, 0, len(parts))
		removedIdx := -1
		for i, p := range parts {
			if p == value {
				if removedIdx == -1 {
					removedIdx = i
				}
				continue
			}
			kept = append(kept, p)
		}
		if removedIdx == -1 {
			v := *current
			return ApplyResult{NewValue: &v}
		}
		v := strings.Join(kept, ":")
		return ApplyResult{NewValue: &v, List: &ListMutation{Kind: "del", Value: value, Index: removedIdx}}
	}

	// Unknown op: treat as no-op rather than silently corrupting state.
	return ApplyResult{NewValue: current}
}

// UndoList reverses one recorded list mutation against current, per spec
// §4.5: "an Add is undone by removing the element closest in index to the
// original insertion index; a Del is undone by re-inserting at the recorded
// index."
func UndoList(m ListMutation, current string) string {
	parts := strings.Split(current, ":")
	switch m.Kind {
	case "add":
		idx, best := -1, 0
		for i, p := range parts {
			if p != m.Value {
				continue
			}
			d := i - m.Index
			if d < 0 {
				d = -d
			}
			if idx < 0 || d < best {
				idx, best = i, d
			}
		}
		if idx < 0 {
			idx = m.Index
		}
		if idx < 0 || idx >= len(parts) {
			return current
		}
		return strings.Join(append(append([]string{}, parts[:idx]...), parts[idx+1:]...), ":")
	case "del":
		idx := m.Index
		if idx < 0 {
			idx = 0
		}
		if idx > len(parts) {
			idx = len(parts)
		}
		out := make([]string, 0, len(parts)+1)
		out = append(out, parts[:idx]...)
		out = append(out, m.Value)
		out = append(out, parts[idx:]...)
		return strings.Join(out, ":")
	}
	return current
}

// CompressFlagTokens preserves only the first occurrence of each
// whitespace-separated token in a flag-style variable value (CFLAGS/CPPFLAGS/
// LDFLAGS), per spec §4.5's final apply step.
func CompressFlagTokens(value string) string {
	fields := strings.Fields(value)
	seen := make(map[string]bool, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return strings.Join(out, " ")
}
