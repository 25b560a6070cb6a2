package store

import (
	"errors"
	"testing"

	"github.com/cohortlens/cohortlens/pkg/cohortlens/internalerr"
)

func TestDocTransitionTable(t *testing.T) {
	allowed := []struct{ from, to DocStatus }{
		{DocUploaded, DocExtracted},
		{DocUploaded, DocFailed},
		{DocFailed, DocExtracted},
		{DocFailed, DocFailed},
		{DocExtracted, DocProjected},
		{DocProjected, DocProjected}, // rerun bookkeeping no-op
	}
	for _, c := range allowed {
		if err := CheckDocTransition(c.from, c.to); err != nil {
			t.Errorf("%s -> %s should be allowed: %v", c.from, c.to, err)
		}
	}

	rejected := []struct{ from, to DocStatus }{
		{DocExtracted, DocUploaded},
		{DocProjected, DocUploaded},
		{DocProjected, DocFailed},
		{DocUploaded, DocProjected},
		{DocExtracted, DocFailed},
	}
	for _, c := range rejected {
		err := CheckDocTransition(c.from, c.to)
		if !errors.Is(err, internalerr.ErrBadTransition) {
			t.Errorf("%s -> %s should be rejected, got %v", c.from, c.to, err)
		}
	}
}

func TestRunTransitionTable(t *testing.T) {
	allowed := []struct{ from, to RunStatus }{
		{RunPending, RunQueued},
		{RunQueued, RunRunning},
		{RunRunning, RunDone},
		{RunRunning, RunFailed},
	}
	for _, c := range allowed {
		if err := CheckRunTransition(c.from, c.to); err != nil {
			t.Errorf("%s -> %s should be allowed: %v", c.from, c.to, err)
		}
	}

	rejected := []struct{ from, to RunStatus }{
		{RunDone, RunRunning},
		{RunFailed, RunRunning},
		{RunRunning, RunQueued},
		{RunQueued, RunDone},
		{RunPending, RunRunning},
	}
	for _, c := range rejected {
		err := CheckRunTransition(c.from, c.to)
		if !errors.Is(err, internalerr.ErrBadTransition) {
			t.Errorf("%s -> %s should be rejected, got %v", c.from, c.to, err)
		}
	}
}

func TestUnknownStatusRejected(t *testing.T) {
	if err := CheckDocTransition(DocUploaded, DocStatus("archived")); !errors.Is(err, internalerr.ErrInvalidInput) {
		t.Errorf("got %v", err)
	}
	if err := CheckRunTransition(RunPending, RunStatus("paused")); !errors.Is(err, internalerr.ErrInvalidInput) {
		t.Errorf("got %v", err)
	}
}

func TestRunTerminal(t *testing.T) {
	for s, want := range map[RunStatus]bool{
		RunPending: false, RunQueued: false, RunRunning: false,
		RunDone: true, RunFailed: true,
	} {
		if got := s.Terminal(); got != want {
			t.Errorf("%s.Terminal() = %v", s, got)
		}
	}
}
