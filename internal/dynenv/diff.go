package dynenv

import "github.com/upkit-dev/upkit/internal/environment"

// envState accumulates the working environment and the mutation record
// being built as the apply step runs, so multiple operations against the
// same variable (e.g. several PATH prepends, or a side var followed by a
// user-declared prefix) merge into one VarMutation entry.
type envState struct {
	working  map[string]string
	mutation Mutation
}

func (s *envState) ensure(name string) VarMutation {
	if vm, ok := s.mutation[name]; ok {
		return vm
	}
	vm := VarMutation{}
	if prior, existed := s.working[name]; existed {
		vm.PriorExisted = true
		p := prior
		vm.PriorValue = &p
	}
	return vm
}

// apply runs one environment.Apply call against the variable's current
// working value and folds the result into its accumulated VarMutation.
func (s *envState) apply(name string, op environment.Op, value string) {
	var currentPtr *string
	if current, ok := s.working[name]; ok {
		c := current
		currentPtr = &c
	}

	result := environment.Apply(op, value, currentPtr)
	vm := s.ensure(name)

	if result.List != nil {
		vm.ListOps = append(vm.ListOps, *result.List)
	}

	if result.NewValue == nil {
		delete(s.working, name)
		vm.SetValue = nil
	} else {
		s.working[name] = *result.NewValue
		v := *result.NewValue
		vm.SetValue = &v
	}

	s.mutation[name] = vm
}

// setFinal overwrites a variable's value directly (used by the flag-token
// compression pass, which rewrites a value already built by earlier
// scalar/prefix ops rather than adding a new kind of operation).
func (s *envState) setFinal(name, value string) {
	vm := s.ensure(name)
	s.working[name] = value
	v := value
	vm.SetValue = &v
	s.mutation[name] = vm
}

// undoScalar reverses a scalar VarMutation, but only if the variable's
// current value still matches what the hook last set — otherwise the
// user changed it since, and spec §4.5 says to leave it alone.
func undoScalar(name string, vm VarMutation, working map[string]string, stmts *Statements) {
	current, exists := working[name]

	var matches bool
	if vm.SetValue == nil {
		matches = !exists
	} else {
		matches = exists && current == *vm.SetValue
	}
	if !matches {
		return
	}

	if vm.PriorExisted {
		stmts.Export(name, *vm.PriorValue)
		working[name] = *vm.PriorValue
	} else {
		stmts.Unset(name)
		delete(working, name)
	}
}

// undoList replays the recorded Add/Del operations in reverse (spec
// §4.5), regardless of whether the variable's current value still
// matches what was set — a PATH-like variable is rebuilt token by token,
// not compared wholesale, so partial divergence from other tooling still
// gets a best-effort reversal.
func undoList(name string, vm VarMutation, working map[string]string, stmts *Statements) {
	current := working[name]
	for i := len(vm.ListOps) - 1; i >= 0; i-- {
		current = environment.UndoList(vm.ListOps[i], current)
	}
	if current == "" {
		stmts.Unset(name)
		delete(working, name)
	} else {
		stmts.Export(name, current)
		working[name] = current
	}
}
