// Package memstore is an in-memory store.Store for tests. It mirrors the
// sqlite implementation's behavior, including transition checks, uniqueness
// of (document, run, section) artifacts and cascade deletes.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cohortlens/cohortlens/pkg/cohortlens/herd"
	"github.com/cohortlens/cohortlens/pkg/cohortlens/internalerr"
	"github.com/cohortlens/cohortlens/pkg/cohortlens/store"
)

type artifactKey struct {
	docID   int64
	runID   int64
	section string
}

// Store is an in-memory implementation of store.Store.
type Store struct {
	mu          sync.RWMutex
	nextDocID   int64
	nextRunID   int64
	docs        map[int64]store.Document
	runs        map[int64]store.AnalysisRun
	embeddings  map[artifactKey]store.DocEmbedding
	projections map[artifactKey]store.DocProjection
	audit       []store.AuditEvent
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		nextDocID:   1,
		nextRunID:   1,
		docs:        make(map[int64]store.Document),
		runs:        make(map[int64]store.AnalysisRun),
		embeddings:  make(map[artifactKey]store.DocEmbedding),
		projections: make(map[artifactKey]store.DocProjection),
	}
}

// Close implements store.Store.
func (s *Store) Close() error { return nil }

func (s *Store) CreateDocument(ctx context.Context, d *store.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d.ID = s.nextDocID
	s.nextDocID++
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	if d.Status == "" {
		d.Status = store.DocUploaded
	}
	s.docs[d.ID] = *d
	return nil
}

func (s *Store) GetDocument(ctx context.Context, id int64) (store.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.docs[id]
	if !ok {
		return store.Document{}, fmt.Errorf("document %d: %w", id, internalerr.ErrNotFound)
	}
	return d, nil
}

func (s *Store) ListDocuments(ctx context.Context, cohortKey string) ([]store.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []store.Document
	for _, d := range s.docs {
		if d.CohortKey == cohortKey {
			out = append(out, d)
		}
	}
	// Creation order; ids are assigned monotonically.
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) UpdateDocumentExtraction(ctx context.Context, d store.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.docs[d.ID]
	if !ok {
		return fmt.Errorf("document %d: %w", d.ID, internalerr.ErrNotFound)
	}
	if err := store.CheckDocTransition(cur.Status, d.Status); err != nil {
		return err
	}
	cur.RawText = d.RawText
	cur.ScrubbedText = d.ScrubbedText
	cur.Status = d.Status
	cur.Error = d.Error
	s.docs[d.ID] = cur
	return nil
}

func (s *Store) UpdateDocumentStatuses(ctx context.Context, ids []int64, status store.DocStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Validate the whole batch before mutating anything.
	for _, id := range ids {
		cur, ok := s.docs[id]
		if !ok {
			return fmt.Errorf("document %d: %w", id, internalerr.ErrNotFound)
		}
		if err := store.CheckDocTransition(cur.Status, status); err != nil {
			return err
		}
	}
	for _, id := range ids {
		cur := s.docs[id]
		cur.Status = status
		s.docs[id] = cur
	}
	return nil
}

func (s *Store) CreateRun(ctx context.Context, r *store.AnalysisRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r.ID = s.nextRunID
	s.nextRunID++
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	if r.Status == "" {
		r.Status = store.RunPending
	}
	s.runs[r.ID] = *r
	return nil
}

func (s *Store) GetRun(ctx context.Context, id int64) (store.AnalysisRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.runs[id]
	if !ok {
		return store.AnalysisRun{}, fmt.Errorf("run %d: %w", id, internalerr.ErrNotFound)
	}
	return r, nil
}

func (s *Store) ListRuns(ctx context.Context, cohortKey string) ([]store.AnalysisRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []store.AnalysisRun
	for _, r := range s.runs {
		if r.CohortKey == cohortKey {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) SetRunStatus(ctx context.Context, id int64, status store.RunStatus, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.runs[id]
	if !ok {
		return fmt.Errorf("run %d: %w", id, internalerr.ErrNotFound)
	}
	if err := store.CheckRunTransition(r.Status, status); err != nil {
		return err
	}
	r.Status = status
	r.Error = errMsg
	s.runs[id] = r
	return nil
}

func (s *Store) SetRunPhrases(ctx context.Context, id int64, phrases map[string][]herd.PhraseStat) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.runs[id]
	if !ok {
		return fmt.Errorf("run %d: %w", id, internalerr.ErrNotFound)
	}
	r.HerdPhrases = phrases
	s.runs[id] = r
	return nil
}

func (s *Store) ClearRunArtifacts(ctx context.Context, runID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k := range s.embeddings {
		if k.runID == runID {
			delete(s.embeddings, k)
		}
	}
	for k := range s.projections {
		if k.runID == runID {
			delete(s.projections, k)
		}
	}
	return nil
}

func (s *Store) InsertEmbeddings(ctx context.Context, rows []store.DocEmbedding) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range rows {
		k := artifactKey{r.DocumentID, r.RunID, r.Section}
		if _, exists := s.embeddings[k]; exists {
			return fmt.Errorf("embedding (%d,%d,%s): %w", r.DocumentID, r.RunID, r.Section, internalerr.ErrDuplicate)
		}
	}
	for _, r := range rows {
		vec := make([]float32, len(r.Vector))
		copy(vec, r.Vector)
		r.Vector = vec
		s.embeddings[artifactKey{r.DocumentID, r.RunID, r.Section}] = r
	}
	return nil
}

func (s *Store) InsertProjections(ctx context.Context, rows []store.DocProjection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range rows {
		k := artifactKey{r.DocumentID, r.RunID, r.Section}
		if _, exists := s.projections[k]; exists {
			return fmt.Errorf("projection (%d,%d,%s): %w", r.DocumentID, r.RunID, r.Section, internalerr.ErrDuplicate)
		}
	}
	for _, r := range rows {
		s.projections[artifactKey{r.DocumentID, r.RunID, r.Section}] = r
	}
	return nil
}

func (s *Store) GetEmbedding(ctx context.Context, runID, docID int64, section string) (store.DocEmbedding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.embeddings[artifactKey{docID, runID, section}]
	if !ok {
		return store.DocEmbedding{}, fmt.Errorf("embedding (%d,%d,%s): %w", docID, runID, section, internalerr.ErrNotFound)
	}
	return e, nil
}

func (s *Store) ListSectionEmbeddings(ctx context.Context, runID int64, section string) ([]store.SectionEmbedding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []store.SectionEmbedding
	for k, e := range s.embeddings {
		if k.runID != runID || k.section != section {
			continue
		}
		se := store.SectionEmbedding{DocumentID: e.DocumentID, Vector: e.Vector, Norm: e.Norm}
		if d, ok := s.docs[e.DocumentID]; ok {
			se.Filename = d.OriginalFilename
		}
		out = append(out, se)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DocumentID < out[j].DocumentID })
	return out, nil
}

func (s *Store) ListSectionProjections(ctx context.Context, runID int64, section string) ([]store.ProjectionPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []store.ProjectionPoint
	for k, p := range s.projections {
		if k.runID != runID || k.section != section {
			continue
		}
		pp := store.ProjectionPoint{
			DocumentID:   p.DocumentID,
			X:            p.X,
			Y:            p.Y,
			ClusterID:    p.ClusterID,
			OutlierScore: p.OutlierScore,
		}
		if d, ok := s.docs[p.DocumentID]; ok {
			pp.Filename = d.OriginalFilename
		}
		out = append(out, pp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DocumentID < out[j].DocumentID })
	return out, nil
}

func (s *Store) DeleteCohort(ctx context.Context, cohortKey string, ev store.AuditEvent) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var docIDs []int64
	for id, d := range s.docs {
		if d.CohortKey == cohortKey {
			docIDs = append(docIDs, id)
		}
	}
	var runIDs []int64
	for id, r := range s.runs {
		if r.CohortKey == cohortKey {
			runIDs = append(runIDs, id)
		}
	}

	for _, id := range docIDs {
		delete(s.docs, id)
	}
	for _, id := range runIDs {
		delete(s.runs, id)
	}
	for k := range s.embeddings {
		if containsID(runIDs, k.runID) || containsID(docIDs, k.docID) {
			delete(s.embeddings, k)
		}
	}
	for k := range s.projections {
		if containsID(runIDs, k.runID) || containsID(docIDs, k.docID) {
			delete(s.projections, k)
		}
	}

	s.appendAuditLocked(ev)
	return len(docIDs), nil
}

func (s *Store) AppendAudit(ctx context.Context, ev store.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendAuditLocked(ev)
	return nil
}

func (s *Store) appendAuditLocked(ev store.AuditEvent) {
	if ev.ID == "" {
		ev.ID = store.NewEventID()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	s.audit = append(s.audit, ev)
}

func (s *Store) ListAuditEvents(ctx context.Context, cohortKey string) ([]store.AuditEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []store.AuditEvent
	for _, ev := range s.audit {
		if ev.CohortKey == cohortKey {
			out = append(out, ev)
		}
	}
	return out, nil
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
