// Package store defines the persisted entities of the analysis pipeline and
// the interface its stages write through.
package store

import (
	"context"
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/cohortlens/cohortlens/pkg/cohortlens/herd"
	"github.com/cohortlens/cohortlens/pkg/cohortlens/project"
)

// Store is the persistence interface for documents, runs, derived artifacts
// and the audit log.
type Store interface {
	Close() error

	// Documents
	CreateDocument(ctx context.Context, d *Document) error
	GetDocument(ctx context.Context, id int64) (Document, error)
	ListDocuments(ctx context.Context, cohortKey string) ([]Document, error)
	UpdateDocumentExtraction(ctx context.Context, d Document) error
	UpdateDocumentStatuses(ctx context.Context, ids []int64, status DocStatus) error

	// Runs
	CreateRun(ctx context.Context, r *AnalysisRun) error
	GetRun(ctx context.Context, id int64) (AnalysisRun, error)
	ListRuns(ctx context.Context, cohortKey string) ([]AnalysisRun, error)
	SetRunStatus(ctx context.Context, id int64, status RunStatus, errMsg string) error
	SetRunPhrases(ctx context.Context, id int64, phrases map[string][]herd.PhraseStat) error

	// Derived artifacts. The insert calls each write their batch as one
	// atomic unit; ClearRunArtifacts removes every embedding and projection
	// of a run in one unit.
	ClearRunArtifacts(ctx context.Context, runID int64) error
	InsertEmbeddings(ctx context.Context, rows []DocEmbedding) error
	InsertProjections(ctx context.Context, rows []DocProjection) error
	GetEmbedding(ctx context.Context, runID, docID int64, section string) (DocEmbedding, error)
	ListSectionEmbeddings(ctx context.Context, runID int64, section string) ([]SectionEmbedding, error)
	ListSectionProjections(ctx context.Context, runID int64, section string) ([]ProjectionPoint, error)

	// Cohort deletion + audit. DeleteCohort removes the cohort's documents
	// and runs (cascading artifacts) and appends ev in the same unit.
	DeleteCohort(ctx context.Context, cohortKey string, ev AuditEvent) (int, error)
	AppendAudit(ctx context.Context, ev AuditEvent) error
	ListAuditEvents(ctx context.Context, cohortKey string) ([]AuditEvent, error)
}

// Document is one uploaded file and its extraction state. Text fields stay
// empty until extraction succeeds; Error holds the last failure reason and is
// cleared on success.
type Document struct {
	ID               int64
	CreatedAt        time.Time
	CohortKey        string
	OriginalFilename string
	StoredName       string
	ContentType      string
	FilePath         string
	RawText          string
	ScrubbedText     string
	Status           DocStatus
	Error            string
}

// AnalysisRun is one pipeline execution over a cohort with a fixed
// configuration snapshot. ParentRunID links a rerun to the run it was derived
// from.
type AnalysisRun struct {
	ID              int64
	CreatedAt       time.Time
	CohortKey       string
	EmbeddingModel  string
	ChunkingVersion string
	UMAPParams      project.Params
	Status          RunStatus
	Error           string
	HerdPhrases     map[string][]herd.PhraseStat
	Label           string
	ParentRunID     *int64
}

// DocEmbedding holds one section embedding. At most one row exists per
// (document, run, section).
type DocEmbedding struct {
	DocumentID int64
	RunID      int64
	Section    string
	Vector     []float32
	Norm       float64
}

// DocProjection holds one 2D point per (document, run, section). ClusterID of
// project.Noise means unclustered.
type DocProjection struct {
	DocumentID   int64
	RunID        int64
	Section      string
	X            float64
	Y            float64
	ClusterID    int
	OutlierScore float64
}

// SectionEmbedding is a DocEmbedding joined with its document's filename, the
// shape the neighbor query consumes.
type SectionEmbedding struct {
	DocumentID int64
	Filename   string
	Vector     []float32
	Norm       float64
}

// ProjectionPoint is a DocProjection joined with its document's filename, the
// shape the projection view serves.
type ProjectionPoint struct {
	DocumentID   int64
	Filename     string
	X            float64
	Y            float64
	ClusterID    int
	OutlierScore float64
}

// AuditEvent is one append-only log entry.
type AuditEvent struct {
	ID        string
	CreatedAt time.Time
	Action    string
	CohortKey string
	Actor     string
	Detail    map[string]any
}

// Audit actions recorded by the pipeline.
const (
	ActionCohortDelete = "cohort_delete"
	ActionRunRerun     = "run_rerun"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewEventID returns a fresh ULID for an audit event.
func NewEventID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}
