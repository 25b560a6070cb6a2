// Package pipeline drives an analysis run end to end: extraction, PII
// scrubbing, cohort phrase mining, per-section embedding, projection,
// clustering and persistence of every derived artifact.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/cohortlens/cohortlens/pkg/cohortlens/chunk"
	"github.com/cohortlens/cohortlens/pkg/cohortlens/embed"
	"github.com/cohortlens/cohortlens/pkg/cohortlens/extract"
	"github.com/cohortlens/cohortlens/pkg/cohortlens/herd"
	"github.com/cohortlens/cohortlens/pkg/cohortlens/project"
	"github.com/cohortlens/cohortlens/pkg/cohortlens/scrub"
	"github.com/cohortlens/cohortlens/pkg/cohortlens/storage"
	"github.com/cohortlens/cohortlens/pkg/cohortlens/store"
)

// SectionsForViews is the ordered list of sections embedded and projected per
// run. Kept small; adding a section multiplies embedding cost per document.
var SectionsForViews = []string{chunk.SectionDoc, chunk.SectionSkills, chunk.SectionExperience}

const (
	// MinSectionDocs is the hard floor under which a section is skipped:
	// projection and clustering are not meaningful on fewer points.
	MinSectionDocs = 5

	// chunkGuard bounds the text handed to the chunker against pathological
	// inputs; embedMaxLen bounds what is sent to the embedding provider.
	chunkGuard  = 20000
	embedMaxLen = 12000

	herdTopN = 30
)

// Runner executes analysis runs. Every collaborator is passed in by
// interface; the Runner holds no hidden state of its own.
type Runner struct {
	Store     store.Store
	Files     storage.Storage
	Extractor extract.Extractor
	Embedder  embed.Provider
	Projector project.Projector
	Clusterer project.Clusterer
	Log       *log.Logger
}

// Execute drives run runID to a terminal status. Whatever happens, the run is
// never left in running state on return: any failure transitions it to failed
// with the error recorded, and the error is returned so the caller's queue can
// apply its own retry policy.
func (r *Runner) Execute(ctx context.Context, runID int64) (err error) {
	run, err := r.Store.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if err := r.Store.SetRunStatus(ctx, runID, store.RunRunning, ""); err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			r.failRun(ctx, runID, fmt.Sprintf("panic: %v", p))
			panic(p)
		}
		if err != nil {
			r.failRun(ctx, runID, err.Error())
		}
	}()

	if err = r.run(ctx, run); err != nil {
		return err
	}
	return r.Store.SetRunStatus(ctx, runID, store.RunDone, "")
}

func (r *Runner) failRun(ctx context.Context, runID int64, msg string) {
	if serr := r.Store.SetRunStatus(ctx, runID, store.RunFailed, msg); serr != nil {
		r.logf("run %d: recording failure: %v", runID, serr)
	}
}

func (r *Runner) run(ctx context.Context, run store.AnalysisRun) error {
	docs, err := r.Store.ListDocuments(ctx, run.CohortKey)
	if err != nil {
		return fmt.Errorf("list documents: %w", err)
	}
	if len(docs) == 0 {
		return errors.New("no documents found")
	}

	if err := r.extractStage(ctx, docs); err != nil {
		return err
	}

	var okDocs []store.Document
	for _, d := range docs {
		if d.Status != store.DocFailed {
			okDocs = append(okDocs, d)
		}
	}
	if len(okDocs) == 0 {
		return errors.New("all documents failed extraction")
	}

	var herdTexts []string
	for _, d := range okDocs {
		if d.ScrubbedText != "" {
			herdTexts = append(herdTexts, d.ScrubbedText)
		}
	}
	phrases := map[string][]herd.PhraseStat{"bigrams": herd.Phrases(herdTexts, herdTopN)}
	if err := r.Store.SetRunPhrases(ctx, run.ID, phrases); err != nil {
		return fmt.Errorf("store herd phrases: %w", err)
	}

	// Reset stage: a retried run id rewrites its artifacts from scratch.
	if err := r.Store.ClearRunArtifacts(ctx, run.ID); err != nil {
		return fmt.Errorf("clear run artifacts: %w", err)
	}

	for _, section := range SectionsForViews {
		if err := r.sectionStage(ctx, run, section, okDocs); err != nil {
			return err
		}
	}

	ids := make([]int64, len(okDocs))
	for i, d := range okDocs {
		ids[i] = d.ID
	}
	if err := r.Store.UpdateDocumentStatuses(ctx, ids, store.DocProjected); err != nil {
		return fmt.Errorf("mark documents projected: %w", err)
	}

	return nil
}

// extractStage extracts and scrubs every document still in uploaded or failed
// state. Each document is persisted as soon as its outcome is known so a crash
// mid-stage loses at most the in-flight document. Per-document failures are
// recorded on the document and never abort the run; docs is updated in place.
func (r *Runner) extractStage(ctx context.Context, docs []store.Document) error {
	for i := range docs {
		d := docs[i]
		if d.Status != store.DocUploaded && d.Status != store.DocFailed {
			continue
		}

		text, xerr := r.extractDocument(d)
		if xerr != nil {
			d.Status = store.DocFailed
			d.Error = xerr.Error()
			r.logf("document %d (%s): extraction failed: %v", d.ID, d.OriginalFilename, xerr)
		} else {
			d.RawText = text
			d.ScrubbedText = scrub.PII(text)
			d.Status = store.DocExtracted
			d.Error = ""
		}

		if err := r.Store.UpdateDocumentExtraction(ctx, d); err != nil {
			return fmt.Errorf("persist document %d: %w", d.ID, err)
		}
		docs[i] = d
	}
	return nil
}

func (r *Runner) extractDocument(d store.Document) (string, error) {
	rc, err := r.Files.Open(d.FilePath)
	if err != nil {
		return "", fmt.Errorf("open stored file: %w", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return "", fmt.Errorf("read stored file: %w", err)
	}
	return r.Extractor.Extract(d.OriginalFilename, data)
}

// sectionStage embeds, projects and clusters one section across the cohort.
// Row i of every intermediate structure belongs to contributors[i]; the
// stage's two batch writes are each one atomic unit.
func (r *Runner) sectionStage(ctx context.Context, run store.AnalysisRun, section string, okDocs []store.Document) error {
	var contributors []store.Document
	var texts []string
	for _, d := range okDocs {
		chunks := chunk.Sections(truncateRunes(d.ScrubbedText, chunkGuard))
		if t := strings.TrimSpace(chunks[section]); t != "" {
			contributors = append(contributors, d)
			texts = append(texts, t)
		}
	}

	if len(contributors) < MinSectionDocs {
		r.logf("run %d: section %q skipped: %d contributing documents", run.ID, section, len(contributors))
		return nil
	}

	vectors := make([][]float32, len(texts))
	embeddings := make([]store.DocEmbedding, len(texts))
	for i, t := range texts {
		vec, err := r.Embedder.Embed(ctx, run.EmbeddingModel, truncateRunes(t, embedMaxLen))
		if err != nil {
			return fmt.Errorf("embed section %q document %d: %w", section, contributors[i].ID, err)
		}
		vectors[i] = vec
		embeddings[i] = store.DocEmbedding{
			DocumentID: contributors[i].ID,
			RunID:      run.ID,
			Section:    section,
			Vector:     vec,
			Norm:       embed.L2Norm(vec),
		}
	}
	if err := r.Store.InsertEmbeddings(ctx, embeddings); err != nil {
		return fmt.Errorf("store section %q embeddings: %w", section, err)
	}

	coords, err := r.Projector.Project(ctx, vectors, run.UMAPParams)
	if err != nil {
		return fmt.Errorf("project section %q: %w", section, err)
	}
	if len(coords) != len(contributors) {
		return fmt.Errorf("project section %q: got %d coords for %d documents", section, len(coords), len(contributors))
	}

	labels, scores, err := r.Clusterer.Cluster(coords)
	if err != nil {
		return fmt.Errorf("cluster section %q: %w", section, err)
	}
	if len(labels) != len(contributors) || len(scores) != len(contributors) {
		return fmt.Errorf("cluster section %q: row count mismatch", section)
	}

	projections := make([]store.DocProjection, len(contributors))
	for i, d := range contributors {
		projections[i] = store.DocProjection{
			DocumentID:   d.ID,
			RunID:        run.ID,
			Section:      section,
			X:            coords[i].X,
			Y:            coords[i].Y,
			ClusterID:    labels[i],
			OutlierScore: scores[i],
		}
	}
	if err := r.Store.InsertProjections(ctx, projections); err != nil {
		return fmt.Errorf("store section %q projections: %w", section, err)
	}

	return nil
}

func (r *Runner) logf(format string, args ...any) {
	if r.Log != nil {
		r.Log.Printf(format, args...)
	}
}

func truncateRunes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
