package dynenv

import (
	"fmt"
	"io"
	"strings"
)

// Shell identifies the calling shell's export syntax.
type Shell string

const (
	ShellBash  Shell = "bash"
	ShellZsh   Shell = "zsh"
	ShellFish  Shell = "fish"
	ShellPosix Shell = "posix"
)

// ParseShell maps a shell name (as reported by $SHELL's basename, or
// passed explicitly to `up hook env <shell>`) to a known Shell, defaulting
// to posix for anything unrecognized.
func ParseShell(name string) Shell {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "bash":
		return ShellBash
	case "zsh":
		return ShellZsh
	case "fish":
		return ShellFish
	default:
		return ShellPosix
	}
}

// Statements accumulates the shell-syntax output of one hook invocation,
// in emission order (spec §4.5 ordering: shim removal → undo → apply →
// write state var).
type Statements struct {
	shell Shell
	w     io.Writer
}

func NewStatements(w io.Writer, shell Shell) *Statements {
	return &Statements{shell: shell, w: w}
}

// Export emits an assignment that both sets the variable and marks it
// exported to child processes.
func (s *Statements) Export(name, value string) {
	switch s.shell {
	case ShellFish:
		fmt.Fprintf(s.w, "set -gx %s %s;\n", name, fishQuote(value))
	default:
		fmt.Fprintf(s.w, "export %s=%s;\n", name, posixQuote(value))
	}
}

// Unset emits an unset statement.
func (s *Statements) Unset(name string) {
	switch s.shell {
	case ShellFish:
		fmt.Fprintf(s.w, "set -e %s;\n", name)
	default:
		fmt.Fprintf(s.w, "unset %s;\n", name)
	}
}

// Echo emits a line printed to stderr, used for the notification-gate
// hint (spec §4.5) so it's visible without being `eval`-executed as code.
func (s *Statements) Echo(text string) {
	fmt.Fprintf(s.w, "echo %s >&2;\n", posixQuote(text))
}

// Alias emits a shell alias definition (supplemental feature carried from
// original_source/'s shell_aliases.rs — see SPEC_FULL.md §4.5).
func (s *Statements) Alias(name, value string) {
	switch s.shell {
	case ShellFish:
		fmt.Fprintf(s.w, "alias %s %s;\n", name, fishQuote(value))
	default:
		fmt.Fprintf(s.w, "alias %s=%s;\n", name, posixQuote(value))
	}
}

func posixQuote(v string) string {
	return "'" + strings.ReplaceAll(v, "'", `'\''`) + "'"
}

func fishQuote(v string) string {
	return "'" + strings.ReplaceAll(strings.ReplaceAll(v, `\`, `\\`), "'", `\'`) + "'"
}
