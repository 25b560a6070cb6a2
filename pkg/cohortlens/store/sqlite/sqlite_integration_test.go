package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/cohortlens/cohortlens/pkg/cohortlens/herd"
	"github.com/cohortlens/cohortlens/pkg/cohortlens/internalerr"
	"github.com/cohortlens/cohortlens/pkg/cohortlens/project"
	"github.com/cohortlens/cohortlens/pkg/cohortlens/store"
)

func openTestStore(t *testing.T) store.Store {
	t.Helper()
	ctx := context.Background()
	st, err := Open(ctx, filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestDocumentRoundTrip(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)

	d := store.Document{
		CohortKey:        "spring-batch",
		OriginalFilename: "jane.pdf",
		StoredName:       "01H0.pdf",
		ContentType:      "application/pdf",
		FilePath:         "spring-batch/01H0.pdf",
		Status:           store.DocUploaded,
	}
	if err := st.CreateDocument(ctx, &d); err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}

	d.RawText = "raw body"
	d.ScrubbedText = "scrubbed body"
	d.Status = store.DocExtracted
	if err := st.UpdateDocumentExtraction(ctx, d); err != nil {
		t.Fatalf("UpdateDocumentExtraction: %v", err)
	}

	got, err := st.GetDocument(ctx, d.ID)
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if got.ScrubbedText != "scrubbed body" || got.Status != store.DocExtracted {
		t.Errorf("got %+v", got)
	}
	if got.OriginalFilename != "jane.pdf" || got.FilePath != "spring-batch/01H0.pdf" {
		t.Errorf("identity fields lost: %+v", got)
	}

	// Illegal transition is rejected and leaves the row untouched.
	got.Status = store.DocUploaded
	if err := st.UpdateDocumentExtraction(ctx, got); !errors.Is(err, internalerr.ErrBadTransition) {
		t.Errorf("expected transition error, got %v", err)
	}
	after, _ := st.GetDocument(ctx, d.ID)
	if after.Status != store.DocExtracted {
		t.Errorf("status changed despite rejection: %s", after.Status)
	}
}

func TestRunRoundTripWithParamsAndPhrases(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)

	params := project.DefaultParams()
	params.NNeighbors = 7
	params.Extra = map[string]any{"spread": 1.5}

	parent := store.AnalysisRun{CohortKey: "c", Status: store.RunQueued, UMAPParams: project.DefaultParams()}
	if err := st.CreateRun(ctx, &parent); err != nil {
		t.Fatalf("CreateRun parent: %v", err)
	}

	r := store.AnalysisRun{
		CohortKey:       "c",
		EmbeddingModel:  "sentence-transformers/all-MiniLM-L6-v2",
		ChunkingVersion: "v1_doc_only",
		UMAPParams:      params,
		Status:          store.RunQueued,
		Label:           "rerun of 1",
		ParentRunID:     &parent.ID,
	}
	if err := st.CreateRun(ctx, &r); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	phrases := map[string][]herd.PhraseStat{
		"bigrams": {{Phrase: "data analysis", Count: 2, DocFreq: 2}},
	}
	if err := st.SetRunPhrases(ctx, r.ID, phrases); err != nil {
		t.Fatalf("SetRunPhrases: %v", err)
	}

	got, err := st.GetRun(ctx, r.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.UMAPParams.NNeighbors != 7 {
		t.Errorf("n_neighbors = %d", got.UMAPParams.NNeighbors)
	}
	if got.UMAPParams.Extra["spread"] != 1.5 {
		t.Errorf("extra params lost: %v", got.UMAPParams.Extra)
	}
	if got.ParentRunID == nil || *got.ParentRunID != parent.ID {
		t.Errorf("parent run lost: %v", got.ParentRunID)
	}
	if !reflect.DeepEqual(got.HerdPhrases, phrases) {
		t.Errorf("phrases = %v", got.HerdPhrases)
	}
}

func TestRunStatusMachine(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)

	r := store.AnalysisRun{CohortKey: "c", Status: store.RunQueued, UMAPParams: project.DefaultParams()}
	if err := st.CreateRun(ctx, &r); err != nil {
		t.Fatal(err)
	}

	if err := st.SetRunStatus(ctx, r.ID, store.RunRunning, ""); err != nil {
		t.Fatalf("queued->running: %v", err)
	}
	if err := st.SetRunStatus(ctx, r.ID, store.RunFailed, "boom"); err != nil {
		t.Fatalf("running->failed: %v", err)
	}
	got, _ := st.GetRun(ctx, r.ID)
	if got.Status != store.RunFailed || got.Error != "boom" {
		t.Errorf("got %+v", got)
	}
	if err := st.SetRunStatus(ctx, r.ID, store.RunRunning, ""); !errors.Is(err, internalerr.ErrBadTransition) {
		t.Errorf("failed->running: %v", err)
	}
}

func TestEmbeddingVectorRoundTripAndUniqueness(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)

	d := store.Document{CohortKey: "c", OriginalFilename: "a.txt", Status: store.DocUploaded}
	_ = st.CreateDocument(ctx, &d)
	r := store.AnalysisRun{CohortKey: "c", Status: store.RunQueued, UMAPParams: project.DefaultParams()}
	_ = st.CreateRun(ctx, &r)

	vec := []float32{0.25, -1.5, 3.75}
	rows := []store.DocEmbedding{{DocumentID: d.ID, RunID: r.ID, Section: "doc", Vector: vec, Norm: 4.1}}
	if err := st.InsertEmbeddings(ctx, rows); err != nil {
		t.Fatalf("InsertEmbeddings: %v", err)
	}

	got, err := st.GetEmbedding(ctx, r.ID, d.ID, "doc")
	if err != nil {
		t.Fatalf("GetEmbedding: %v", err)
	}
	if !reflect.DeepEqual(got.Vector, vec) {
		t.Errorf("vector = %v, want %v", got.Vector, vec)
	}

	// Second insert of the same triple violates the primary key.
	if err := st.InsertEmbeddings(ctx, rows); err == nil {
		t.Error("duplicate (document, run, section) accepted")
	}

	// Reset then re-insert, the retry path.
	if err := st.ClearRunArtifacts(ctx, r.ID); err != nil {
		t.Fatalf("ClearRunArtifacts: %v", err)
	}
	if err := st.InsertEmbeddings(ctx, rows); err != nil {
		t.Errorf("insert after clear: %v", err)
	}
}

func TestSectionListingsJoinFilenames(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)

	r := store.AnalysisRun{CohortKey: "c", Status: store.RunQueued, UMAPParams: project.DefaultParams()}
	_ = st.CreateRun(ctx, &r)

	var ids []int64
	for _, name := range []string{"a.txt", "b.txt"} {
		d := store.Document{CohortKey: "c", OriginalFilename: name, Status: store.DocUploaded}
		_ = st.CreateDocument(ctx, &d)
		ids = append(ids, d.ID)
	}

	_ = st.InsertEmbeddings(ctx, []store.DocEmbedding{
		{DocumentID: ids[0], RunID: r.ID, Section: "doc", Vector: []float32{1}, Norm: 1},
		{DocumentID: ids[1], RunID: r.ID, Section: "doc", Vector: []float32{2}, Norm: 2},
	})
	_ = st.InsertProjections(ctx, []store.DocProjection{
		{DocumentID: ids[0], RunID: r.ID, Section: "doc", X: 1, Y: 2, ClusterID: 0, OutlierScore: 0.1},
		{DocumentID: ids[1], RunID: r.ID, Section: "doc", X: 3, Y: 4, ClusterID: project.Noise, OutlierScore: 0.9},
	})

	embs, err := st.ListSectionEmbeddings(ctx, r.ID, "doc")
	if err != nil {
		t.Fatalf("ListSectionEmbeddings: %v", err)
	}
	if len(embs) != 2 || embs[0].Filename != "a.txt" || embs[1].Filename != "b.txt" {
		t.Errorf("embeddings = %+v", embs)
	}

	pts, err := st.ListSectionProjections(ctx, r.ID, "doc")
	if err != nil {
		t.Fatalf("ListSectionProjections: %v", err)
	}
	if len(pts) != 2 || pts[1].ClusterID != project.Noise {
		t.Errorf("projections = %+v", pts)
	}
}

func TestDeleteCohortCascadesAndAudits(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)

	d := store.Document{CohortKey: "gone", OriginalFilename: "a.txt", Status: store.DocUploaded}
	_ = st.CreateDocument(ctx, &d)
	r := store.AnalysisRun{CohortKey: "gone", Status: store.RunQueued, UMAPParams: project.DefaultParams()}
	_ = st.CreateRun(ctx, &r)
	_ = st.InsertEmbeddings(ctx, []store.DocEmbedding{{DocumentID: d.ID, RunID: r.ID, Section: "doc", Vector: []float32{1}}})

	n, err := st.DeleteCohort(ctx, "gone", store.AuditEvent{
		Action:    store.ActionCohortDelete,
		CohortKey: "gone",
		Actor:     "test",
		Detail:    map[string]any{"documents_deleted": 1},
	})
	if err != nil {
		t.Fatalf("DeleteCohort: %v", err)
	}
	if n != 1 {
		t.Errorf("deleted %d, want 1", n)
	}

	if docs, _ := st.ListDocuments(ctx, "gone"); len(docs) != 0 {
		t.Errorf("documents remain: %v", docs)
	}
	if runs, _ := st.ListRuns(ctx, "gone"); len(runs) != 0 {
		t.Errorf("runs remain: %v", runs)
	}
	if _, err := st.GetEmbedding(ctx, r.ID, d.ID, "doc"); !errors.Is(err, internalerr.ErrNotFound) {
		t.Errorf("embedding survived cascade: %v", err)
	}

	events, err := st.ListAuditEvents(ctx, "gone")
	if err != nil {
		t.Fatalf("ListAuditEvents: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d audit events, want 1", len(events))
	}
	ev := events[0]
	if ev.Action != store.ActionCohortDelete || ev.Actor != "test" {
		t.Errorf("event = %+v", ev)
	}
	if got := ev.Detail["documents_deleted"]; got != float64(1) {
		t.Errorf("documents_deleted = %v", got)
	}
}

func TestGetNotFound(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)

	if _, err := st.GetDocument(ctx, 99); !errors.Is(err, internalerr.ErrNotFound) {
		t.Errorf("GetDocument: %v", err)
	}
	if _, err := st.GetRun(ctx, 99); !errors.Is(err, internalerr.ErrNotFound) {
		t.Errorf("GetRun: %v", err)
	}
	if _, err := st.GetEmbedding(ctx, 1, 1, "doc"); !errors.Is(err, internalerr.ErrNotFound) {
		t.Errorf("GetEmbedding: %v", err)
	}
}
