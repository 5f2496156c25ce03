package backend

import (
	"bufio"
	"context"
	"io"
	"strings"
	"time"

	"github.com/upkit-dev/upkit/internal/config"
)

const customCommandTimeout = 15 * time.Minute

// CustomBackend runs user-supplied shell commands for up/down/list,
// escape-hatching the contract for tools none of the built-in backends
// know how to install (spec §4.1 "custom: up_command, down_command,
// list_command"). The version it reports is whatever list_command prints
// on its last line, or "custom" if no list_command was given.
type CustomBackend struct {
	Deps
	Name        string
	UpCommand   string
	DownCommand string
	ListCommand string
}

func NewCustomBackend(d Deps, name string, entry config.Entry) *CustomBackend {
	return &CustomBackend{Deps: d, Name: name, UpCommand: entry.UpCommand, DownCommand: entry.DownCommand, ListCommand: entry.ListCommand}
}

func (b *CustomBackend) Plan(ctx context.Context, entry config.Entry) (PlanResult, error) {
	return PlanResult{NormalizedPlugin: b.Name, RequestedVersion: "custom", WillInstall: true}, nil
}

func (b *CustomBackend) Up(ctx context.Context, entry config.Entry, progress io.Writer) (*Outcome, error) {
	if b.UpCommand != "" {
		if _, err := Run(ctx, progress, customCommandTimeout, "sh", "-c", b.UpCommand); err != nil {
			return nil, err
		}
	}

	version := "custom"
	if b.ListCommand != "" {
		out, err := Run(ctx, progress, 30*time.Second, "sh", "-c", b.ListCommand)
		if err == nil {
			if v := lastNonEmptyLine(out.Stdout); v != "" {
				version = v
			}
		}
	}

	artifactID, err := recordInstalled(ctx, b.Deps, "custom", b.Name, "", version, nil, "")
	if err != nil {
		return nil, err
	}
	return &Outcome{ActualVersion: version, artifactID: artifactID}, nil
}

func (b *CustomBackend) Commit(ctx context.Context, envVersionID string, outcome *Outcome) error {
	return b.Ledger.AddRequiredBy(ctx, outcome.artifactID, envVersionID)
}

func (b *CustomBackend) Down(ctx context.Context, progress io.Writer) error {
	if b.DownCommand == "" {
		return nil
	}
	_, err := Run(ctx, progress, customCommandTimeout, "sh", "-c", b.DownCommand)
	return err
}

func lastNonEmptyLine(s string) string {
	scanner := bufio.NewScanner(strings.NewReader(s))
	last := ""
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			last = line
		}
	}
	return last
}
