// Package sqlite implements store.Store on SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"time"

	_ "modernc.org/sqlite"

	"github.com/cohortlens/cohortlens/pkg/cohortlens/herd"
	"github.com/cohortlens/cohortlens/pkg/cohortlens/internalerr"
	"github.com/cohortlens/cohortlens/pkg/cohortlens/store"
)

type sqliteStore struct {
	db *sql.DB
}

// Open opens a SQLite database with WAL mode and foreign keys enabled and
// initializes the schema.
func Open(ctx context.Context, path string) (store.Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// Single connection so the pragmas below hold for every statement.
	db.SetMaxOpenConns(1)

	// WAL improves concurrent reader behavior while a run is writing.
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, err
	}

	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &sqliteStore{db: db}, nil
}

// Close closes the database connection.
func (s *sqliteStore) Close() error {
	return s.db.Close()
}

func initSchema(ctx context.Context, db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS documents (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	created_at TEXT NOT NULL,
	cohort_key TEXT NOT NULL,
	original_filename TEXT NOT NULL DEFAULT '',
	stored_name TEXT NOT NULL DEFAULT '',
	content_type TEXT NOT NULL DEFAULT '',
	file_path TEXT NOT NULL DEFAULT '',
	raw_text TEXT NOT NULL DEFAULT '',
	scrubbed_text TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	error TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_documents_cohort ON documents(cohort_key);

CREATE TABLE IF NOT EXISTS analysis_runs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	created_at TEXT NOT NULL,
	cohort_key TEXT NOT NULL,
	embedding_model TEXT NOT NULL DEFAULT '',
	chunking_version TEXT NOT NULL DEFAULT '',
	umap_params TEXT NOT NULL DEFAULT '{}',
	status TEXT NOT NULL,
	error TEXT NOT NULL DEFAULT '',
	herd_phrases TEXT NOT NULL DEFAULT '{}',
	label TEXT NOT NULL DEFAULT '',
	parent_run_id INTEGER REFERENCES analysis_runs(id) ON DELETE SET NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_cohort ON analysis_runs(cohort_key);

CREATE TABLE IF NOT EXISTS doc_embeddings (
	document_id INTEGER NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	run_id INTEGER NOT NULL REFERENCES analysis_runs(id) ON DELETE CASCADE,
	section TEXT NOT NULL,
	vector BLOB NOT NULL,
	norm REAL NOT NULL DEFAULT 0,
	PRIMARY KEY(document_id, run_id, section)
);
CREATE INDEX IF NOT EXISTS idx_embeddings_run_section ON doc_embeddings(run_id, section);

CREATE TABLE IF NOT EXISTS doc_projections (
	document_id INTEGER NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	run_id INTEGER NOT NULL REFERENCES analysis_runs(id) ON DELETE CASCADE,
	section TEXT NOT NULL,
	x REAL NOT NULL,
	y REAL NOT NULL,
	cluster_id INTEGER NOT NULL,
	outlier_score REAL NOT NULL DEFAULT 0,
	PRIMARY KEY(document_id, run_id, section)
);
CREATE INDEX IF NOT EXISTS idx_projections_run_section ON doc_projections(run_id, section);

CREATE TABLE IF NOT EXISTS audit_events (
	id TEXT PRIMARY KEY,
	created_at TEXT NOT NULL,
	action TEXT NOT NULL,
	cohort_key TEXT NOT NULL,
	actor TEXT NOT NULL DEFAULT '',
	detail TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_audit_cohort ON audit_events(cohort_key);
`

	_, err := db.ExecContext(ctx, schema)
	return err
}

func (s *sqliteStore) CreateDocument(ctx context.Context, d *store.Document) error {
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	if d.Status == "" {
		d.Status = store.DocUploaded
	}

	const stmt = `
INSERT INTO documents (created_at, cohort_key, original_filename, stored_name, content_type, file_path, raw_text, scrubbed_text, status, error)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
RETURNING id;
`
	return s.db.QueryRowContext(ctx, stmt,
		d.CreatedAt.UTC().Format(time.RFC3339Nano),
		d.CohortKey,
		d.OriginalFilename,
		d.StoredName,
		d.ContentType,
		d.FilePath,
		d.RawText,
		d.ScrubbedText,
		string(d.Status),
		d.Error,
	).Scan(&d.ID)
}

const docColumns = `id, created_at, cohort_key, original_filename, stored_name, content_type, file_path, raw_text, scrubbed_text, status, error`

func scanDocument(row interface{ Scan(...any) error }) (store.Document, error) {
	var d store.Document
	var createdAt, status string
	err := row.Scan(&d.ID, &createdAt, &d.CohortKey, &d.OriginalFilename, &d.StoredName,
		&d.ContentType, &d.FilePath, &d.RawText, &d.ScrubbedText, &status, &d.Error)
	if err != nil {
		return store.Document{}, err
	}
	d.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	d.Status = store.DocStatus(status)
	return d, nil
}

func (s *sqliteStore) GetDocument(ctx context.Context, id int64) (store.Document, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+docColumns+` FROM documents WHERE id=?`, id)
	d, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return store.Document{}, fmt.Errorf("document %d: %w", id, internalerr.ErrNotFound)
	}
	return d, err
}

func (s *sqliteStore) ListDocuments(ctx context.Context, cohortKey string) ([]store.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+docColumns+` FROM documents WHERE cohort_key=? ORDER BY created_at, id`, cohortKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *sqliteStore) UpdateDocumentExtraction(ctx context.Context, d store.Document) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRowContext(ctx, `SELECT status FROM documents WHERE id=?`, d.ID).Scan(&current)
	if err == sql.ErrNoRows {
		return fmt.Errorf("document %d: %w", d.ID, internalerr.ErrNotFound)
	}
	if err != nil {
		return err
	}
	if err := store.CheckDocTransition(store.DocStatus(current), d.Status); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE documents SET raw_text=?, scrubbed_text=?, status=?, error=? WHERE id=?`,
		d.RawText, d.ScrubbedText, string(d.Status), d.Error, d.ID)
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (s *sqliteStore) UpdateDocumentStatuses(ctx context.Context, ids []int64, status store.DocStatus) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, id := range ids {
		var current string
		err := tx.QueryRowContext(ctx, `SELECT status FROM documents WHERE id=?`, id).Scan(&current)
		if err == sql.ErrNoRows {
			return fmt.Errorf("document %d: %w", id, internalerr.ErrNotFound)
		}
		if err != nil {
			return err
		}
		if err := store.CheckDocTransition(store.DocStatus(current), status); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE documents SET status=? WHERE id=?`, string(status), id); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *sqliteStore) CreateRun(ctx context.Context, r *store.AnalysisRun) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	if r.Status == "" {
		r.Status = store.RunPending
	}

	params, err := json.Marshal(r.UMAPParams)
	if err != nil {
		return fmt.Errorf("marshal umap params: %w", err)
	}
	phrases, err := marshalPhrases(r.HerdPhrases)
	if err != nil {
		return err
	}

	var parent any
	if r.ParentRunID != nil {
		parent = *r.ParentRunID
	}

	const stmt = `
INSERT INTO analysis_runs (created_at, cohort_key, embedding_model, chunking_version, umap_params, status, error, herd_phrases, label, parent_run_id)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
RETURNING id;
`
	return s.db.QueryRowContext(ctx, stmt,
		r.CreatedAt.UTC().Format(time.RFC3339Nano),
		r.CohortKey,
		r.EmbeddingModel,
		r.ChunkingVersion,
		string(params),
		string(r.Status),
		r.Error,
		string(phrases),
		r.Label,
		parent,
	).Scan(&r.ID)
}

const runColumns = `id, created_at, cohort_key, embedding_model, chunking_version, umap_params, status, error, herd_phrases, label, parent_run_id`

func scanRun(row interface{ Scan(...any) error }) (store.AnalysisRun, error) {
	var r store.AnalysisRun
	var createdAt, params, status, phrases string
	var parent sql.NullInt64
	err := row.Scan(&r.ID, &createdAt, &r.CohortKey, &r.EmbeddingModel, &r.ChunkingVersion,
		&params, &status, &r.Error, &phrases, &r.Label, &parent)
	if err != nil {
		return store.AnalysisRun{}, err
	}
	r.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	r.Status = store.RunStatus(status)
	if err := json.Unmarshal([]byte(params), &r.UMAPParams); err != nil {
		return store.AnalysisRun{}, fmt.Errorf("unmarshal umap params: %w", err)
	}
	if phrases != "" && phrases != "{}" {
		if err := json.Unmarshal([]byte(phrases), &r.HerdPhrases); err != nil {
			return store.AnalysisRun{}, fmt.Errorf("unmarshal herd phrases: %w", err)
		}
	}
	if parent.Valid {
		r.ParentRunID = &parent.Int64
	}
	return r, nil
}

func (s *sqliteStore) GetRun(ctx context.Context, id int64) (store.AnalysisRun, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM analysis_runs WHERE id=?`, id)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return store.AnalysisRun{}, fmt.Errorf("run %d: %w", id, internalerr.ErrNotFound)
	}
	return r, err
}

func (s *sqliteStore) ListRuns(ctx context.Context, cohortKey string) ([]store.AnalysisRun, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM analysis_runs WHERE cohort_key=? ORDER BY created_at, id`, cohortKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.AnalysisRun
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *sqliteStore) SetRunStatus(ctx context.Context, id int64, status store.RunStatus, errMsg string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRowContext(ctx, `SELECT status FROM analysis_runs WHERE id=?`, id).Scan(&current)
	if err == sql.ErrNoRows {
		return fmt.Errorf("run %d: %w", id, internalerr.ErrNotFound)
	}
	if err != nil {
		return err
	}
	if err := store.CheckRunTransition(store.RunStatus(current), status); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE analysis_runs SET status=?, error=? WHERE id=?`, string(status), errMsg, id); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *sqliteStore) SetRunPhrases(ctx context.Context, id int64, phrases map[string][]herd.PhraseStat) error {
	data, err := marshalPhrases(phrases)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE analysis_runs SET herd_phrases=? WHERE id=?`, string(data), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %d: %w", id, internalerr.ErrNotFound)
	}
	return nil
}

func (s *sqliteStore) ClearRunArtifacts(ctx context.Context, runID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM doc_embeddings WHERE run_id=?`, runID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM doc_projections WHERE run_id=?`, runID); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *sqliteStore) InsertEmbeddings(ctx context.Context, rows []store.DocEmbedding) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO doc_embeddings (document_id, run_id, section, vector, norm) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, r.DocumentID, r.RunID, r.Section, encodeVector(r.Vector), r.Norm); err != nil {
			return fmt.Errorf("insert embedding (%d,%d,%s): %w", r.DocumentID, r.RunID, r.Section, err)
		}
	}
	return tx.Commit()
}

func (s *sqliteStore) InsertProjections(ctx context.Context, rows []store.DocProjection) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO doc_projections (document_id, run_id, section, x, y, cluster_id, outlier_score) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, r.DocumentID, r.RunID, r.Section, r.X, r.Y, r.ClusterID, r.OutlierScore); err != nil {
			return fmt.Errorf("insert projection (%d,%d,%s): %w", r.DocumentID, r.RunID, r.Section, err)
		}
	}
	return tx.Commit()
}

func (s *sqliteStore) GetEmbedding(ctx context.Context, runID, docID int64, section string) (store.DocEmbedding, error) {
	var e store.DocEmbedding
	var blob []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT document_id, run_id, section, vector, norm FROM doc_embeddings WHERE run_id=? AND document_id=? AND section=?`,
		runID, docID, section,
	).Scan(&e.DocumentID, &e.RunID, &e.Section, &blob, &e.Norm)
	if err == sql.ErrNoRows {
		return store.DocEmbedding{}, fmt.Errorf("embedding (%d,%d,%s): %w", docID, runID, section, internalerr.ErrNotFound)
	}
	if err != nil {
		return store.DocEmbedding{}, err
	}
	e.Vector = decodeVector(blob)
	return e, nil
}

func (s *sqliteStore) ListSectionEmbeddings(ctx context.Context, runID int64, section string) ([]store.SectionEmbedding, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT e.document_id, d.original_filename, e.vector, e.norm
FROM doc_embeddings e
JOIN documents d ON d.id = e.document_id
WHERE e.run_id=? AND e.section=?
ORDER BY e.document_id`, runID, section)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.SectionEmbedding
	for rows.Next() {
		var se store.SectionEmbedding
		var blob []byte
		if err := rows.Scan(&se.DocumentID, &se.Filename, &blob, &se.Norm); err != nil {
			return nil, err
		}
		se.Vector = decodeVector(blob)
		out = append(out, se)
	}
	return out, rows.Err()
}

func (s *sqliteStore) ListSectionProjections(ctx context.Context, runID int64, section string) ([]store.ProjectionPoint, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT p.document_id, d.original_filename, p.x, p.y, p.cluster_id, p.outlier_score
FROM doc_projections p
JOIN documents d ON d.id = p.document_id
WHERE p.run_id=? AND p.section=?
ORDER BY p.document_id`, runID, section)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.ProjectionPoint
	for rows.Next() {
		var pp store.ProjectionPoint
		if err := rows.Scan(&pp.DocumentID, &pp.Filename, &pp.X, &pp.Y, &pp.ClusterID, &pp.OutlierScore); err != nil {
			return nil, err
		}
		out = append(out, pp)
	}
	return out, rows.Err()
}

func (s *sqliteStore) DeleteCohort(ctx context.Context, cohortKey string, ev store.AuditEvent) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE cohort_key=?`, cohortKey)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()

	if _, err := tx.ExecContext(ctx, `DELETE FROM analysis_runs WHERE cohort_key=?`, cohortKey); err != nil {
		return 0, err
	}

	if err := insertAudit(ctx, tx, ev); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *sqliteStore) AppendAudit(ctx context.Context, ev store.AuditEvent) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := insertAudit(ctx, tx, ev); err != nil {
		return err
	}
	return tx.Commit()
}

func insertAudit(ctx context.Context, tx *sql.Tx, ev store.AuditEvent) error {
	if ev.ID == "" {
		ev.ID = store.NewEventID()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	detail, err := json.Marshal(ev.Detail)
	if err != nil {
		return fmt.Errorf("marshal audit detail: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO audit_events (id, created_at, action, cohort_key, actor, detail) VALUES (?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.CreatedAt.UTC().Format(time.RFC3339Nano), ev.Action, ev.CohortKey, ev.Actor, string(detail))
	return err
}

func (s *sqliteStore) ListAuditEvents(ctx context.Context, cohortKey string) ([]store.AuditEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, created_at, action, cohort_key, actor, detail FROM audit_events WHERE cohort_key=? ORDER BY created_at, id`,
		cohortKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.AuditEvent
	for rows.Next() {
		var ev store.AuditEvent
		var createdAt, detail string
		if err := rows.Scan(&ev.ID, &createdAt, &ev.Action, &ev.CohortKey, &ev.Actor, &detail); err != nil {
			return nil, err
		}
		ev.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		if detail != "" {
			if err := json.Unmarshal([]byte(detail), &ev.Detail); err != nil {
				return nil, fmt.Errorf("unmarshal audit detail: %w", err)
			}
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func marshalPhrases(phrases map[string][]herd.PhraseStat) ([]byte, error) {
	if phrases == nil {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(phrases)
	if err != nil {
		return nil, fmt.Errorf("marshal herd phrases: %w", err)
	}
	return data, nil
}

// encodeVector packs float32s little-endian; decodeVector reverses it.
func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(buf []byte) []float32 {
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec
}
