package pipeline

import (
	"context"
	"fmt"

	"github.com/cohortlens/cohortlens/pkg/cohortlens/project"
	"github.com/cohortlens/cohortlens/pkg/cohortlens/store"
)

// Enqueuer hands a run id to the background execution queue.
type Enqueuer interface {
	Enqueue(runID int64)
}

// Lineage creates reruns and deletes cohorts, recording both as audit events.
type Lineage struct {
	Runner *Runner
	Queue  Enqueuer
}

// CreateRerun derives a new queued run from baseRunID. Model and chunking
// configuration are copied from the base run; the projection parameters are
// inherited unless overrides is non-nil, in which case only the override is
// used. The new run records its parent and is enqueued immediately.
func (l *Lineage) CreateRerun(ctx context.Context, baseRunID int64, overrides *project.Params, label string) (store.AnalysisRun, error) {
	base, err := l.Runner.Store.GetRun(ctx, baseRunID)
	if err != nil {
		return store.AnalysisRun{}, err
	}

	params := base.UMAPParams
	if overrides != nil {
		params = *overrides
	}
	if label == "" {
		label = fmt.Sprintf("rerun of %d", base.ID)
	}

	run := store.AnalysisRun{
		CohortKey:       base.CohortKey,
		EmbeddingModel:  base.EmbeddingModel,
		ChunkingVersion: base.ChunkingVersion,
		UMAPParams:      params,
		Status:          store.RunQueued,
		Label:           label,
		ParentRunID:     &base.ID,
	}
	if err := l.Runner.Store.CreateRun(ctx, &run); err != nil {
		return store.AnalysisRun{}, fmt.Errorf("create rerun: %w", err)
	}

	ev := store.AuditEvent{
		Action:    store.ActionRunRerun,
		CohortKey: run.CohortKey,
		Detail: map[string]any{
			"base_run_id": base.ID,
			"new_run_id":  run.ID,
			"umap_params": params,
		},
	}
	if err := l.Runner.Store.AppendAudit(ctx, ev); err != nil {
		return store.AnalysisRun{}, fmt.Errorf("audit rerun: %w", err)
	}

	if l.Queue != nil {
		l.Queue.Enqueue(run.ID)
	}
	return run, nil
}

// DeleteResult reports a cohort deletion. StorageErrors carries the
// non-fatal file-deletion failures; record removal proceeds regardless.
type DeleteResult struct {
	DocumentsDeleted int
	StorageErrors    []error
}

// DeleteCohort removes a cohort's stored files best-effort, then atomically
// deletes its documents and runs (cascading embeddings and projections) and
// appends one audit event carrying the document count.
func (l *Lineage) DeleteCohort(ctx context.Context, cohortKey, actor string) (DeleteResult, error) {
	docs, err := l.Runner.Store.ListDocuments(ctx, cohortKey)
	if err != nil {
		return DeleteResult{}, fmt.Errorf("list documents: %w", err)
	}

	var res DeleteResult
	for _, d := range docs {
		if d.FilePath == "" {
			continue
		}
		if derr := l.Runner.Files.Delete(d.FilePath); derr != nil {
			res.StorageErrors = append(res.StorageErrors, fmt.Errorf("delete %s: %w", d.FilePath, derr))
			l.Runner.logf("cohort %s: storage delete %s: %v", cohortKey, d.FilePath, derr)
		}
	}

	ev := store.AuditEvent{
		Action:    store.ActionCohortDelete,
		CohortKey: cohortKey,
		Actor:     actor,
		Detail:    map[string]any{"documents_deleted": len(docs)},
	}
	n, err := l.Runner.Store.DeleteCohort(ctx, cohortKey, ev)
	if err != nil {
		return res, fmt.Errorf("delete cohort records: %w", err)
	}
	res.DocumentsDeleted = n
	return res, nil
}
