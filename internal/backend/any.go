package backend

import (
	"context"
	"io"

	"github.com/upkit-dev/upkit/internal/config"
	"github.com/upkit-dev/upkit/internal/errs"
)

// AnyBackend composes alternatives tried in manifest order, the `any:`
// group of spec §9's UpConfigTool tagged sum. The first alternative whose
// Up succeeds wins; its Commit/Down are the ones later invoked against the
// chosen outcome.
type AnyBackend struct {
	Alternatives []Backend
	winner       Backend
}

func NewAnyBackend(alternatives []Backend) *AnyBackend {
	return &AnyBackend{Alternatives: alternatives}
}

// Plan reports the first alternative's plan; which one actually installs
// is only known after Up runs them in order.
func (b *AnyBackend) Plan(ctx context.Context, entry config.Entry) (PlanResult, error) {
	if len(b.Alternatives) == 0 {
		return PlanResult{}, errs.Config("any: group has no alternatives", nil)
	}
	return b.Alternatives[0].Plan(ctx, entry)
}

func (b *AnyBackend) Up(ctx context.Context, entry config.Entry, progress io.Writer) (*Outcome, error) {
	var lastErr error
	for _, alt := range b.Alternatives {
		outcome, err := alt.Up(ctx, entry, progress)
		if err == nil {
			b.winner = alt
			return outcome, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = errs.Resolution("any: group has no alternatives", nil)
	}
	return nil, errs.Resolution("all alternatives in any: group failed", lastErr)
}

func (b *AnyBackend) Commit(ctx context.Context, envVersionID string, outcome *Outcome) error {
	if b.winner == nil {
		return errs.Config("any: Commit called before a successful Up", nil)
	}
	return b.winner.Commit(ctx, envVersionID, outcome)
}

func (b *AnyBackend) Down(ctx context.Context, progress io.Writer) error {
	if b.winner == nil {
		return nil
	}
	return b.winner.Down(ctx, progress)
}
