// Package cohortlens analyzes document cohorts: uploaded files are extracted,
// scrubbed of PII, chunked into sections, embedded, projected to 2D and
// clustered, with common-phrase mining across the cohort.
package cohortlens

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/cohortlens/cohortlens/pkg/cohortlens/chunk"
	"github.com/cohortlens/cohortlens/pkg/cohortlens/embed"
	"github.com/cohortlens/cohortlens/pkg/cohortlens/extract"
	"github.com/cohortlens/cohortlens/pkg/cohortlens/herd"
	"github.com/cohortlens/cohortlens/pkg/cohortlens/internalerr"
	"github.com/cohortlens/cohortlens/pkg/cohortlens/neighbor"
	"github.com/cohortlens/cohortlens/pkg/cohortlens/pipeline"
	"github.com/cohortlens/cohortlens/pkg/cohortlens/project"
	"github.com/cohortlens/cohortlens/pkg/cohortlens/storage"
	"github.com/cohortlens/cohortlens/pkg/cohortlens/store"
)

// DefaultEmbeddingModel is used when a run does not name a model.
const DefaultEmbeddingModel = "sentence-transformers/all-MiniLM-L6-v2"

// App is the main cohort analysis facade.
type App struct {
	store   store.Store
	files   storage.Storage
	runner  *pipeline.Runner
	lineage *pipeline.Lineage
	queue   pipeline.Enqueuer

	defaultModel  string
	defaultParams project.Params
}

// Options configures an App instance.
type Options struct {
	Store     store.Store
	Files     storage.Storage
	Extractor extract.Extractor
	Embedder  embed.Provider
	Projector project.Projector
	Clusterer project.Clusterer
	// Queue receives newly created run ids. Nil means the caller executes
	// runs itself.
	Queue pipeline.Enqueuer

	DefaultModel  string
	DefaultParams project.Params
}

// New creates an App with the given dependencies.
func New(opts Options) *App {
	if opts.Extractor == nil {
		opts.Extractor = extract.SuffixExtractor{}
	}
	if opts.Projector == nil {
		opts.Projector = project.PCAProjector{}
	}
	if opts.Clusterer == nil {
		opts.Clusterer = project.DensityClusterer{}
	}
	if opts.DefaultModel == "" {
		opts.DefaultModel = DefaultEmbeddingModel
	}
	if opts.DefaultParams.Metric == "" {
		opts.DefaultParams = project.DefaultParams()
	}

	runner := &pipeline.Runner{
		Store:     opts.Store,
		Files:     opts.Files,
		Extractor: opts.Extractor,
		Embedder:  opts.Embedder,
		Projector: opts.Projector,
		Clusterer: opts.Clusterer,
	}
	return &App{
		store:         opts.Store,
		files:         opts.Files,
		runner:        runner,
		lineage:       &pipeline.Lineage{Runner: runner, Queue: opts.Queue},
		queue:         opts.Queue,
		defaultModel:  opts.DefaultModel,
		defaultParams: opts.DefaultParams,
	}
}

// Close shuts the App down.
func (a *App) Close() error {
	return a.store.Close()
}

// Runner exposes the pipeline runner, for queue workers.
func (a *App) Runner() *pipeline.Runner {
	return a.runner
}

// Upload stores a document file and registers it in the cohort. The document
// starts in uploaded state; extraction happens on the next run.
func (a *App) Upload(ctx context.Context, cohortKey, filename string, r io.Reader) (store.Document, error) {
	if cohortKey == "" {
		return store.Document{}, fmt.Errorf("%w: cohort key is required", internalerr.ErrInvalidInput)
	}
	filename = filepath.Base(filename)
	if filename == "" || filename == "." || filename == "/" {
		return store.Document{}, fmt.Errorf("%w: filename is required", internalerr.ErrInvalidInput)
	}

	stored := store.NewEventID() + strings.ToLower(filepath.Ext(filename))
	path, err := a.files.Save(filepath.Join(cohortKey, stored), r)
	if err != nil {
		return store.Document{}, fmt.Errorf("store file: %w", err)
	}

	doc := store.Document{
		CohortKey:        cohortKey,
		OriginalFilename: filename,
		StoredName:       stored,
		FilePath:         path,
		Status:           store.DocUploaded,
	}
	if err := a.store.CreateDocument(ctx, &doc); err != nil {
		// Best effort; an orphaned file is harmless.
		_ = a.files.Delete(path)
		return store.Document{}, err
	}
	return doc, nil
}

// RunOptions configures a new analysis run. Zero values fall back to the
// App defaults.
type RunOptions struct {
	EmbeddingModel string
	Params         *project.Params
	Label          string
}

// StartRun creates a run for the cohort and queues it for execution.
func (a *App) StartRun(ctx context.Context, cohortKey string, opts RunOptions) (store.AnalysisRun, error) {
	if cohortKey == "" {
		return store.AnalysisRun{}, fmt.Errorf("%w: cohort key is required", internalerr.ErrInvalidInput)
	}

	model := opts.EmbeddingModel
	if model == "" {
		model = a.defaultModel
	}
	params := a.defaultParams
	if opts.Params != nil {
		params = *opts.Params
	}

	run := store.AnalysisRun{
		CohortKey:       cohortKey,
		EmbeddingModel:  model,
		ChunkingVersion: chunk.Version,
		UMAPParams:      params,
		Status:          store.RunPending,
		Label:           opts.Label,
	}
	if err := a.store.CreateRun(ctx, &run); err != nil {
		return store.AnalysisRun{}, err
	}
	if err := a.store.SetRunStatus(ctx, run.ID, store.RunQueued, ""); err != nil {
		return store.AnalysisRun{}, err
	}
	run.Status = store.RunQueued

	if a.queue != nil {
		a.queue.Enqueue(run.ID)
	}
	return run, nil
}

// Rerun derives a new run from an existing one, inheriting its model and
// chunking version. Non-nil params replace the base parameters wholesale.
func (a *App) Rerun(ctx context.Context, baseRunID int64, params *project.Params, label string) (store.AnalysisRun, error) {
	return a.lineage.CreateRerun(ctx, baseRunID, params, label)
}

// Run returns a single analysis run.
func (a *App) Run(ctx context.Context, runID int64) (store.AnalysisRun, error) {
	return a.store.GetRun(ctx, runID)
}

// ListRuns returns the cohort's runs, newest first.
func (a *App) ListRuns(ctx context.Context, cohortKey string) ([]store.AnalysisRun, error) {
	return a.store.ListRuns(ctx, cohortKey)
}

// Documents returns the cohort's documents in upload order.
func (a *App) Documents(ctx context.Context, cohortKey string) ([]store.Document, error) {
	return a.store.ListDocuments(ctx, cohortKey)
}

// Projection returns the 2D points for one section of a run.
func (a *App) Projection(ctx context.Context, runID int64, section string) ([]store.ProjectionPoint, error) {
	return a.store.ListSectionProjections(ctx, runID, section)
}

// Herd returns the run's mined phrases.
func (a *App) Herd(ctx context.Context, runID int64) ([]herd.PhraseStat, error) {
	run, err := a.store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	return run.HerdPhrases["bigrams"], nil
}

// Neighbors returns the k nearest documents to docID in a run section, by
// cosine distance over the stored embeddings.
func (a *App) Neighbors(ctx context.Context, runID, docID int64, section string, k int) ([]neighbor.Neighbor, error) {
	return neighbor.Nearest(ctx, a.store, runID, docID, section, k)
}

// DeleteCohort removes a cohort's files, documents, runs and artifacts, and
// records one audit event.
func (a *App) DeleteCohort(ctx context.Context, cohortKey, actor string) (pipeline.DeleteResult, error) {
	return a.lineage.DeleteCohort(ctx, cohortKey, actor)
}

// AuditTrail returns the cohort's audit events, oldest first.
func (a *App) AuditTrail(ctx context.Context, cohortKey string) ([]store.AuditEvent, error) {
	return a.store.ListAuditEvents(ctx, cohortKey)
}
