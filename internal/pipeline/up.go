package pipeline

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/upkit-dev/upkit/internal/askpass"
	"github.com/upkit-dev/upkit/internal/backend"
	"github.com/upkit-dev/upkit/internal/config"
	"github.com/upkit-dev/upkit/internal/environment"
	"github.com/upkit-dev/upkit/internal/ledger"
	"github.com/upkit-dev/upkit/internal/workdir"
)

// DefaultLockTimeout bounds how long Up/Down wait for another process's
// exclusive lock on the same work directory before giving up (spec §5:
// "per-work-directory exclusivity").
const DefaultLockTimeout = 30 * time.Second

// UpOptions is everything one `up` invocation needs beyond the Pipeline's
// own process-wide handles.
type UpOptions struct {
	WorkDir        string
	Manifest       *config.Manifest
	ConfigModtimes map[string]int64
	ConfigHash     string
	HeadSHA        string
	Progress       io.Writer
	LockTimeout    time.Duration

	// AskpassPrompt, if set, stands up a §4.8 broker for the duration of
	// this Up call and points SUDO_ASKPASS/SSH_ASKPASS at its shim so any
	// installer subprocess that needs a credential can prompt through it.
	AskpassPrompt askpass.PromptFunc
}

// UpResult summarizes what one Up call did.
type UpResult struct {
	WdTrustID    string
	EnvVersionID string
	IsNew        bool
	ToolCount    int
}

type committedOutcome struct {
	backend backend.Backend
	outcome *backend.Outcome
}

// Up drives C2 -> C3 -> C4 -> C5 -> C1 for one work directory: resolve and
// install every manifest entry in order (spec §4.1: "stopping on the first
// failure, unless the entry is under an any: group"), assemble the
// resulting environment, assign it an id, and record each backend's usage
// edge against that id.
func (p *Pipeline) Up(ctx context.Context, opts UpOptions) (*UpResult, error) {
	wdTrustID, err := workdir.TrustID(opts.WorkDir)
	if err != nil {
		return nil, err
	}

	timeout := opts.LockTimeout
	if timeout == 0 {
		timeout = DefaultLockTimeout
	}
	lock, err := workdir.AcquireExclusive(ctx, p.DataHome, wdTrustID, timeout)
	if err != nil {
		return nil, err
	}
	defer func() { _ = lock.Release() }()

	if opts.AskpassPrompt != nil {
		broker, restore, err := p.wireAskpass(opts.AskpassPrompt)
		if err != nil {
			return nil, err
		}
		defer restore()
		defer func() { _ = broker.Close() }()
	}

	assembler := environment.NewAssembler(p.DataHome)
	var toCommit []committedOutcome

	manifest := opts.Manifest
	if manifest == nil {
		manifest = &config.Manifest{}
	}

	for _, entry := range manifest.Entries {
		b, err := p.buildBackend(ctx, entry, wdTrustID)
		if err != nil {
			return nil, err
		}

		outcome, err := b.Up(ctx, entry, opts.Progress)
		if err != nil {
			return nil, err
		}

		plan, err := b.Plan(ctx, entry)
		if err != nil {
			return nil, err
		}

		dirs := entry.Dir
		if len(dirs) == 0 {
			dirs = []string{""}
		}
		for _, dir := range dirs {
			assembler.AddVersion(versionEntryFor(entry.Backend, plan, outcome, dir))
		}
		for _, bp := range outcome.BinPaths {
			assembler.AddPath(bp)
		}
		for _, ev := range outcome.EnvVars {
			assembler.AddEnvVar(ev)
		}

		toCommit = append(toCommit, committedOutcome{backend: b, outcome: outcome})
	}

	payload, err := assembler.Payload(opts.ConfigModtimes, opts.ConfigHash)
	if err != nil {
		return nil, err
	}

	envVersionID, isNew, err := p.Ledger.AssignEnvironment(ctx, wdTrustID, payload, opts.HeadSHA, ledger.Retention{
		MaxTotal:      p.Retention.MaxTotal,
		MaxPerWorkdir: p.Retention.MaxPerWorkdir,
		RetentionSecs: p.Retention.Seconds,
	})
	if err != nil {
		return nil, err
	}

	for _, c := range toCommit {
		if err := c.backend.Commit(ctx, envVersionID, c.outcome); err != nil {
			return nil, err
		}
	}

	return &UpResult{WdTrustID: wdTrustID, EnvVersionID: envVersionID, IsNew: isNew, ToolCount: len(toCommit)}, nil
}

// versionEntryFor turns one backend's Plan/Outcome pair into the assembled
// environment's VersionEntry (spec §4.3). Mise-managed language runtimes
// get their install directory recorded as DataPath so the hook can
// synthesize GOROOT/GEM_HOME/RUSTUP_HOME/VIRTUAL_ENV (§4.5); other
// backends only carry a DataPath when they explicitly reported one.
func versionEntryFor(kind config.BackendKind, plan backend.PlanResult, outcome *backend.Outcome, dir string) environment.VersionEntry {
	ve := environment.VersionEntry{
		Tool:           string(kind),
		Plugin:         plan.NormalizedPlugin,
		NormalizedName: plan.NormalizedPlugin,
		Version:        outcome.ActualVersion,
		Dir:            dir,
	}
	if len(outcome.BinPaths) > 0 {
		ve.BinPath = outcome.BinPaths[0]
	}
	switch {
	case len(outcome.DataPaths) > 0:
		ve.DataPath = outcome.DataPaths[0]
	case kind == config.BackendMise && len(outcome.BinPaths) > 0:
		ve.DataPath = filepath.Dir(outcome.BinPaths[0])
	}
	return ve
}

// wireAskpass stands up a broker and points the process's own
// SUDO_ASKPASS/SSH_ASKPASS/SSH_ASKPASS_REQUIRE/DISPLAY at its shim, since
// every backend's subprocess inherits os.Environ() (internal/backend's
// Run/RunWithEnv only appends to it, never replaces it). The returned
// restore func puts the prior values back.
func (p *Pipeline) wireAskpass(prompt askpass.PromptFunc) (*askpass.Broker, func(), error) {
	broker, err := askpass.New(prompt)
	if err != nil {
		return nil, nil, err
	}

	selfExe, err := os.Executable()
	if err != nil {
		_ = broker.Close()
		return nil, nil, err
	}
	shimPath, err := askpass.WriteShim(broker.Dir(), "up", selfExe, broker.SocketPath())
	if err != nil {
		_ = broker.Close()
		return nil, nil, err
	}

	vars := askpass.EnvVars(shimPath)
	prior := make(map[string]*string, len(vars))
	for _, kv := range vars {
		name, value := splitEnvVar(kv)
		if existing, ok := os.LookupEnv(name); ok {
			v := existing
			prior[name] = &v
		} else {
			prior[name] = nil
		}
		_ = os.Setenv(name, value)
	}

	restore := func() {
		for name, value := range prior {
			if value == nil {
				_ = os.Unsetenv(name)
			} else {
				_ = os.Setenv(name, *value)
			}
		}
	}
	return broker, restore, nil
}

func splitEnvVar(kv string) (name, value string) {
	for i := 0; i < len(kv); i++ {
		if kv[i] == '=' {
			return kv[:i], kv[i+1:]
		}
	}
	return kv, ""
}
