package backend

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/upkit-dev/upkit/internal/config"
)

type stubBackend struct {
	upErr      error
	committed  bool
	downCalled bool
}

func (s *stubBackend) Plan(ctx context.Context, entry config.Entry) (PlanResult, error) {
	return PlanResult{NormalizedPlugin: "stub"}, nil
}

func (s *stubBackend) Up(ctx context.Context, entry config.Entry, progress io.Writer) (*Outcome, error) {
	if s.upErr != nil {
		return nil, s.upErr
	}
	return &Outcome{ActualVersion: "1.0.0"}, nil
}

func (s *stubBackend) Commit(ctx context.Context, envVersionID string, outcome *Outcome) error {
	s.committed = true
	return nil
}

func (s *stubBackend) Down(ctx context.Context, progress io.Writer) error {
	s.downCalled = true
	return nil
}

func TestAnyBackendFirstSuccessWins(t *testing.T) {
	failing := &stubBackend{upErr: errors.New("not found")}
	succeeding := &stubBackend{}
	any := NewAnyBackend([]Backend{failing, succeeding})

	outcome, err := any.Up(context.Background(), config.Entry{}, nil)
	if err != nil {
		t.Fatalf("Up: %v", err)
	}
	if outcome.ActualVersion != "1.0.0" {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}

	if err := any.Commit(context.Background(), "ev1", outcome); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if !succeeding.committed {
		t.Fatal("expected the winning alternative to receive Commit")
	}
	if failing.committed {
		t.Fatal("the failing alternative must never receive Commit")
	}

	if err := any.Down(context.Background(), nil); err != nil {
		t.Fatalf("Down: %v", err)
	}
	if !succeeding.downCalled {
		t.Fatal("expected the winning alternative to receive Down")
	}
}

func TestAnyBackendAllFail(t *testing.T) {
	a := NewAnyBackend([]Backend{
		&stubBackend{upErr: errors.New("a failed")},
		&stubBackend{upErr: errors.New("b failed")},
	})
	if _, err := a.Up(context.Background(), config.Entry{}, nil); err == nil {
		t.Fatal("expected an error when every alternative fails")
	}
}
