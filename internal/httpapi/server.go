// Package httpapi exposes the cohort analysis operations over a JSON API.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/cohortlens/cohortlens/pkg/cohortlens"
	"github.com/cohortlens/cohortlens/pkg/cohortlens/chunk"
	"github.com/cohortlens/cohortlens/pkg/cohortlens/herd"
	"github.com/cohortlens/cohortlens/pkg/cohortlens/internalerr"
	"github.com/cohortlens/cohortlens/pkg/cohortlens/project"
	"github.com/cohortlens/cohortlens/pkg/cohortlens/store"
)

// maxUploadBytes caps one multipart upload request.
const maxUploadBytes = 32 << 20

// Server wires the App into HTTP handlers.
type Server struct {
	App *cohortlens.App
	Log *log.Logger
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/cohorts/{key}/documents", s.uploadDocument)
	mux.HandleFunc("GET /api/cohorts/{key}/documents", s.listDocuments)
	mux.HandleFunc("POST /api/cohorts/{key}/runs", s.startRun)
	mux.HandleFunc("GET /api/cohorts/{key}/runs", s.listRuns)
	mux.HandleFunc("DELETE /api/cohorts/{key}", s.deleteCohort)
	mux.HandleFunc("GET /api/cohorts/{key}/audit", s.auditTrail)
	mux.HandleFunc("GET /api/runs/{id}", s.getRun)
	mux.HandleFunc("POST /api/runs/{id}/rerun", s.rerun)
	mux.HandleFunc("GET /api/runs/{id}/projection", s.projection)
	mux.HandleFunc("GET /api/runs/{id}/herd", s.herdPhrases)
	mux.HandleFunc("GET /api/runs/{id}/neighbors", s.neighbors)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

type documentJSON struct {
	ID               int64     `json:"id"`
	CreatedAt        time.Time `json:"created_at"`
	CohortKey        string    `json:"cohort_key"`
	OriginalFilename string    `json:"original_filename"`
	Status           string    `json:"status"`
	Error            string    `json:"error,omitempty"`
}

type runJSON struct {
	ID              int64                        `json:"id"`
	CreatedAt       time.Time                    `json:"created_at"`
	CohortKey       string                       `json:"cohort_key"`
	EmbeddingModel  string                       `json:"embedding_model"`
	ChunkingVersion string                       `json:"chunking_version"`
	UMAPParams      project.Params               `json:"umap_params"`
	Status          string                       `json:"status"`
	Error           string                       `json:"error,omitempty"`
	Label           string                       `json:"label,omitempty"`
	ParentRunID     *int64                       `json:"parent_run_id,omitempty"`
	HerdPhrases     map[string][]herd.PhraseStat `json:"herd_phrases,omitempty"`
}

type pointJSON struct {
	DocumentID   int64   `json:"doc_id"`
	Filename     string  `json:"filename"`
	X            float64 `json:"x"`
	Y            float64 `json:"y"`
	ClusterID    int     `json:"cluster_id"`
	OutlierScore float64 `json:"outlier_score"`
}

func toDocumentJSON(d store.Document) documentJSON {
	return documentJSON{
		ID:               d.ID,
		CreatedAt:        d.CreatedAt,
		CohortKey:        d.CohortKey,
		OriginalFilename: d.OriginalFilename,
		Status:           string(d.Status),
		Error:            d.Error,
	}
}

func toRunJSON(r store.AnalysisRun) runJSON {
	return runJSON{
		ID:              r.ID,
		CreatedAt:       r.CreatedAt,
		CohortKey:       r.CohortKey,
		EmbeddingModel:  r.EmbeddingModel,
		ChunkingVersion: r.ChunkingVersion,
		UMAPParams:      r.UMAPParams,
		Status:          string(r.Status),
		Error:           r.Error,
		Label:           r.Label,
		ParentRunID:     r.ParentRunID,
		HerdPhrases:     r.HerdPhrases,
	}
}

func (s *Server) uploadDocument(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.writeError(w, fmt.Errorf("%w: %v", internalerr.ErrInvalidInput, err))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, fmt.Errorf("%w: missing file field", internalerr.ErrInvalidInput))
		return
	}
	defer file.Close()

	doc, err := s.App.Upload(r.Context(), key, header.Filename, file)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, toDocumentJSON(doc))
}

func (s *Server) listDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.App.Documents(r.Context(), r.PathValue("key"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	out := make([]documentJSON, len(docs))
	for i, d := range docs {
		out[i] = toDocumentJSON(d)
	}
	s.writeJSON(w, http.StatusOK, out)
}

type startRunRequest struct {
	EmbeddingModel string          `json:"embedding_model"`
	UMAPParams     *project.Params `json:"umap_params"`
	Label          string          `json:"label"`
}

func (s *Server) startRun(w http.ResponseWriter, r *http.Request) {
	var req startRunRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	run, err := s.App.StartRun(r.Context(), r.PathValue("key"), cohortlens.RunOptions{
		EmbeddingModel: req.EmbeddingModel,
		Params:         req.UMAPParams,
		Label:          req.Label,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, toRunJSON(run))
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.App.ListRuns(r.Context(), r.PathValue("key"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	out := make([]runJSON, len(runs))
	for i, run := range runs {
		out[i] = toRunJSON(run)
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	run, err := s.App.Run(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toRunJSON(run))
}

type rerunRequest struct {
	UMAPParams *project.Params `json:"umap_params"`
	Label      string          `json:"label"`
}

func (s *Server) rerun(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req rerunRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	run, err := s.App.Rerun(r.Context(), id, req.UMAPParams, req.Label)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, toRunJSON(run))
}

func (s *Server) projection(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	section := r.URL.Query().Get("section")
	if section == "" {
		section = chunk.SectionDoc
	}
	pts, err := s.App.Projection(r.Context(), id, section)
	if err != nil {
		s.writeError(w, err)
		return
	}
	out := make([]pointJSON, len(pts))
	for i, pt := range pts {
		out[i] = pointJSON{
			DocumentID:   pt.DocumentID,
			Filename:     pt.Filename,
			X:            pt.X,
			Y:            pt.Y,
			ClusterID:    pt.ClusterID,
			OutlierScore: pt.OutlierScore,
		}
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) herdPhrases(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	phrases, err := s.App.Herd(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if phrases == nil {
		phrases = []herd.PhraseStat{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"bigrams": phrases})
}

func (s *Server) neighbors(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	q := r.URL.Query()
	docID, err := strconv.ParseInt(q.Get("doc_id"), 10, 64)
	if err != nil {
		s.writeError(w, fmt.Errorf("%w: doc_id is required", internalerr.ErrInvalidInput))
		return
	}
	section := q.Get("section")
	if section == "" {
		section = chunk.SectionDoc
	}
	k := 0
	if raw := q.Get("k"); raw != "" {
		k, err = strconv.Atoi(raw)
		if err != nil || k < 0 {
			s.writeError(w, fmt.Errorf("%w: bad k %q", internalerr.ErrInvalidInput, raw))
			return
		}
	}
	nbs, err := s.App.Neighbors(r.Context(), id, docID, section, k)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, nbs)
}

func (s *Server) deleteCohort(w http.ResponseWriter, r *http.Request) {
	res, err := s.App.DeleteCohort(r.Context(), r.PathValue("key"), r.Header.Get("X-Actor"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	body := map[string]any{"documents_deleted": res.DocumentsDeleted}
	if len(res.StorageErrors) > 0 {
		msgs := make([]string, len(res.StorageErrors))
		for i, e := range res.StorageErrors {
			msgs[i] = e.Error()
		}
		body["storage_errors"] = msgs
	}
	s.writeJSON(w, http.StatusOK, body)
}

func (s *Server) auditTrail(w http.ResponseWriter, r *http.Request) {
	events, err := s.App.AuditTrail(r.Context(), r.PathValue("key"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	type eventJSON struct {
		ID        string         `json:"id"`
		CreatedAt time.Time      `json:"created_at"`
		Action    string         `json:"action"`
		Actor     string         `json:"actor,omitempty"`
		Detail    map[string]any `json:"detail,omitempty"`
	}
	out := make([]eventJSON, len(events))
	for i, ev := range events {
		out[i] = eventJSON{ID: ev.ID, CreatedAt: ev.CreatedAt, Action: ev.Action, Actor: ev.Actor, Detail: ev.Detail}
	}
	s.writeJSON(w, http.StatusOK, out)
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad run id %q", internalerr.ErrInvalidInput, r.PathValue("id"))
	}
	return id, nil
}

func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", internalerr.ErrInvalidInput, err)
	}
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil && s.Log != nil {
		s.Log.Printf("write response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, internalerr.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, internalerr.ErrInvalidInput), errors.Is(err, internalerr.ErrInvalidConfig):
		status = http.StatusBadRequest
	case errors.Is(err, internalerr.ErrDuplicate), errors.Is(err, internalerr.ErrBadTransition):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError && s.Log != nil {
		s.Log.Printf("request failed: %v", err)
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}
