// Package pipeline wires the core components together for the two
// outward-facing mutations spec.md describes: `up` (C2 -> C3 -> C4 -> C5 ->
// C1) and `down` (C3.Down per entry, then the C5 binding is torn down).
// Everything here is orchestration; the protocols themselves live in
// internal/backend, internal/environment, and internal/ledger.
package pipeline

import (
	"github.com/google/go-github/v66/github"

	"github.com/upkit-dev/upkit/internal/config"
	"github.com/upkit-dev/upkit/internal/ledger"
	"github.com/upkit-dev/upkit/internal/versionsrc"
)

// Pipeline bundles the process-wide handles every backend needs, so
// command code constructs it once at startup and calls Up/Down/Cleanup
// per invocation.
type Pipeline struct {
	Ledger       *ledger.Ledger
	Sources      *versionsrc.Source
	DataHome     string
	GithubClient *github.Client
	Retention    config.Retention
}

// New builds a Pipeline. ghToken may be empty, in which case the GitHub
// client is unauthenticated (fine for public release listings, subject to
// GitHub's stricter anonymous rate limit).
func New(l *ledger.Ledger, sources *versionsrc.Source, dataHome string, ghToken string, retention config.Retention) *Pipeline {
	client := github.NewClient(nil)
	if ghToken != "" {
		client = client.WithAuthToken(ghToken)
	}
	return &Pipeline{
		Ledger:       l,
		Sources:      sources,
		DataHome:     dataHome,
		GithubClient: client,
		Retention:    retention,
	}
}
