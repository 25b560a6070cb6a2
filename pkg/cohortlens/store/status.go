package store

import (
	"fmt"

	"github.com/cohortlens/cohortlens/pkg/cohortlens/internalerr"
)

// DocStatus is the document lifecycle state.
type DocStatus string

const (
	DocUploaded  DocStatus = "uploaded"
	DocExtracted DocStatus = "extracted"
	DocFailed    DocStatus = "failed"
	DocProjected DocStatus = "projected"
)

// RunStatus is the analysis-run lifecycle state. Runs only move forward.
type RunStatus string

const (
	RunPending RunStatus = "pending"
	RunQueued  RunStatus = "queued"
	RunRunning RunStatus = "running"
	RunDone    RunStatus = "done"
	RunFailed  RunStatus = "failed"
)

var docTransitions = map[DocStatus][]DocStatus{
	DocUploaded:  {DocExtracted, DocFailed},
	DocFailed:    {DocExtracted, DocFailed},
	DocExtracted: {DocProjected},
	DocProjected: {},
}

var runTransitions = map[RunStatus][]RunStatus{
	RunPending: {RunQueued},
	RunQueued:  {RunRunning},
	RunRunning: {RunDone, RunFailed},
	RunDone:    {},
	RunFailed:  {},
}

// Valid reports whether s is a known document status.
func (s DocStatus) Valid() bool {
	_, ok := docTransitions[s]
	return ok
}

// CanTransition reports whether moving to next is allowed. Writing the same
// status again is always permitted as a no-op: rerun bookkeeping re-marks
// already-projected documents.
func (s DocStatus) CanTransition(next DocStatus) bool {
	if s == next {
		return true
	}
	for _, t := range docTransitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// Valid reports whether s is a known run status.
func (s RunStatus) Valid() bool {
	_, ok := runTransitions[s]
	return ok
}

// CanTransition reports whether moving to next is allowed.
func (s RunStatus) CanTransition(next RunStatus) bool {
	if s == next {
		return true
	}
	for _, t := range runTransitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// Terminal reports whether the run has finished, successfully or not.
func (s RunStatus) Terminal() bool {
	return s == RunDone || s == RunFailed
}

// CheckDocTransition returns an error when from -> to is not in the document
// transition table. Store implementations call it before every status write.
func CheckDocTransition(from, to DocStatus) error {
	if !to.Valid() {
		return fmt.Errorf("%w: unknown document status %q", internalerr.ErrInvalidInput, to)
	}
	if !from.CanTransition(to) {
		return fmt.Errorf("%w: document %s -> %s", internalerr.ErrBadTransition, from, to)
	}
	return nil
}

// CheckRunTransition returns an error when from -> to is not in the run
// transition table.
func CheckRunTransition(from, to RunStatus) error {
	if !to.Valid() {
		return fmt.Errorf("%w: unknown run status %q", internalerr.ErrInvalidInput, to)
	}
	if !from.CanTransition(to) {
		return fmt.Errorf("%w: run %s -> %s", internalerr.ErrBadTransition, from, to)
	}
	return nil
}
