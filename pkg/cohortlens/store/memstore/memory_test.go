package memstore

import (
	"context"
	"errors"
	"testing"

	"github.com/cohortlens/cohortlens/pkg/cohortlens/internalerr"
	"github.com/cohortlens/cohortlens/pkg/cohortlens/store"
)

func TestDocumentLifecycle(t *testing.T) {
	ctx := context.Background()
	s := New()

	d := store.Document{CohortKey: "c1", OriginalFilename: "a.txt", Status: store.DocUploaded}
	if err := s.CreateDocument(ctx, &d); err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}
	if d.ID == 0 {
		t.Fatal("id not assigned")
	}

	d.RawText = "raw"
	d.ScrubbedText = "scrubbed"
	d.Status = store.DocExtracted
	if err := s.UpdateDocumentExtraction(ctx, d); err != nil {
		t.Fatalf("UpdateDocumentExtraction: %v", err)
	}

	got, err := s.GetDocument(ctx, d.ID)
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if got.Status != store.DocExtracted || got.ScrubbedText != "scrubbed" {
		t.Errorf("got %+v", got)
	}

	// Backward transition rejected.
	got.Status = store.DocUploaded
	if err := s.UpdateDocumentExtraction(ctx, got); !errors.Is(err, internalerr.ErrBadTransition) {
		t.Errorf("backward transition: %v", err)
	}
}

func TestListDocumentsOrdered(t *testing.T) {
	ctx := context.Background()
	s := New()
	for _, name := range []string{"z.txt", "a.txt", "m.txt"} {
		d := store.Document{CohortKey: "c1", OriginalFilename: name, Status: store.DocUploaded}
		if err := s.CreateDocument(ctx, &d); err != nil {
			t.Fatal(err)
		}
	}
	other := store.Document{CohortKey: "c2", OriginalFilename: "other.txt", Status: store.DocUploaded}
	_ = s.CreateDocument(ctx, &other)

	docs, err := s.ListDocuments(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 3 {
		t.Fatalf("got %d docs", len(docs))
	}
	// Creation order, not filename order.
	if docs[0].OriginalFilename != "z.txt" || docs[2].OriginalFilename != "m.txt" {
		t.Errorf("order wrong: %v", docs)
	}
}

func TestEmbeddingUniqueness(t *testing.T) {
	ctx := context.Background()
	s := New()

	rows := []store.DocEmbedding{{DocumentID: 1, RunID: 1, Section: "doc", Vector: []float32{1}, Norm: 1}}
	if err := s.InsertEmbeddings(ctx, rows); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if err := s.InsertEmbeddings(ctx, rows); !errors.Is(err, internalerr.ErrDuplicate) {
		t.Errorf("duplicate insert: %v", err)
	}

	if err := s.ClearRunArtifacts(ctx, 1); err != nil {
		t.Fatal(err)
	}
	if err := s.InsertEmbeddings(ctx, rows); err != nil {
		t.Errorf("insert after clear: %v", err)
	}
}

func TestDeleteCohortCascades(t *testing.T) {
	ctx := context.Background()
	s := New()

	d := store.Document{CohortKey: "c1", Status: store.DocUploaded}
	_ = s.CreateDocument(ctx, &d)
	r := store.AnalysisRun{CohortKey: "c1", Status: store.RunQueued}
	_ = s.CreateRun(ctx, &r)
	_ = s.InsertEmbeddings(ctx, []store.DocEmbedding{{DocumentID: d.ID, RunID: r.ID, Section: "doc", Vector: []float32{1}}})
	_ = s.InsertProjections(ctx, []store.DocProjection{{DocumentID: d.ID, RunID: r.ID, Section: "doc"}})

	n, err := s.DeleteCohort(ctx, "c1", store.AuditEvent{
		Action:    store.ActionCohortDelete,
		CohortKey: "c1",
		Detail:    map[string]any{"documents_deleted": 1},
	})
	if err != nil {
		t.Fatalf("DeleteCohort: %v", err)
	}
	if n != 1 {
		t.Errorf("deleted %d docs, want 1", n)
	}

	if docs, _ := s.ListDocuments(ctx, "c1"); len(docs) != 0 {
		t.Errorf("documents remain: %v", docs)
	}
	if runs, _ := s.ListRuns(ctx, "c1"); len(runs) != 0 {
		t.Errorf("runs remain: %v", runs)
	}
	if _, err := s.GetEmbedding(ctx, r.ID, d.ID, "doc"); !errors.Is(err, internalerr.ErrNotFound) {
		t.Errorf("embedding survived: %v", err)
	}

	events, _ := s.ListAuditEvents(ctx, "c1")
	if len(events) != 1 || events[0].Action != store.ActionCohortDelete {
		t.Errorf("audit events: %v", events)
	}
	if events[0].ID == "" {
		t.Error("audit event id not assigned")
	}
}

func TestRunStatusTransitions(t *testing.T) {
	ctx := context.Background()
	s := New()

	r := store.AnalysisRun{CohortKey: "c1", Status: store.RunQueued}
	_ = s.CreateRun(ctx, &r)

	if err := s.SetRunStatus(ctx, r.ID, store.RunRunning, ""); err != nil {
		t.Fatalf("queued->running: %v", err)
	}
	if err := s.SetRunStatus(ctx, r.ID, store.RunDone, ""); err != nil {
		t.Fatalf("running->done: %v", err)
	}
	if err := s.SetRunStatus(ctx, r.ID, store.RunRunning, ""); !errors.Is(err, internalerr.ErrBadTransition) {
		t.Errorf("done->running: %v", err)
	}
}
