package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"finsight/pkg/apperr"
	"finsight/pkg/model"
	"finsight/pkg/vectorindex"
)

// WorkspaceRepo is the Workspace Store's Postgres-backed repository. It
// implements orchestrator.ResultSink, orchestrator.ChatSink, and
// orchestrator.StatementSource, plus the upload lifecycle and
// cascading-delete operations spec.md §8 requires. Table layout is
// defined in db.go's schema constant.
type WorkspaceRepo struct {
	pool       *pgxpool.Pool
	cache      *Cache
	index      *vectorindex.Index
	uploadsDir string
}

// NewWorkspaceRepo builds a repo over pool. cache may be nil, in which
// case every read goes straight to Postgres. index is used only by
// DeleteUpload to cascade into the vector store; uploadsDir is where
// DeleteUpload cascades into the on-disk original files ingest.Pipeline
// wrote, may be empty to skip that step.
func NewWorkspaceRepo(pool *pgxpool.Pool, cache *Cache, index *vectorindex.Index, uploadsDir string) *WorkspaceRepo {
	return &WorkspaceRepo{pool: pool, cache: cache, index: index, uploadsDir: uploadsDir}
}

// CreateUpload inserts a new Upload row with the status u carries.
func (r *WorkspaceRepo) CreateUpload(ctx context.Context, u model.Upload) error {
	meta, err := json.Marshal(u.SummaryMetadata)
	if err != nil {
		return apperr.Wrap(apperr.DatabaseError, "marshal summary metadata", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO uploads (upload_id, user_id, filename, document_type, status, created_at, summary_metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		u.UploadID, u.UserID, u.Filename, string(u.DocumentType), string(u.Status), u.CreatedAt, meta)
	if err != nil {
		return apperr.Wrap(apperr.DatabaseError, "insert upload", err)
	}
	return nil
}

// UpdateUploadStatus advances an Upload's status and, optionally, its
// summary metadata (pass a nil meta to leave the stored metadata
// untouched).
func (r *WorkspaceRepo) UpdateUploadStatus(ctx context.Context, uploadID string, status model.UploadStatus, meta *model.SummaryMetadata) error {
	if meta != nil {
		raw, err := json.Marshal(*meta)
		if err != nil {
			return apperr.Wrap(apperr.DatabaseError, "marshal summary metadata", err)
		}
		_, err = r.pool.Exec(ctx, `UPDATE uploads SET status = $1, summary_metadata = $2 WHERE upload_id = $3`,
			string(status), raw, uploadID)
		if err != nil {
			return apperr.Wrap(apperr.DatabaseError, "update upload status", err)
		}
		return nil
	}
	_, err := r.pool.Exec(ctx, `UPDATE uploads SET status = $1 WHERE upload_id = $2`, string(status), uploadID)
	if err != nil {
		return apperr.Wrap(apperr.DatabaseError, "update upload status", err)
	}
	return nil
}

// UpdateUploadDocumentType records the Document-Type Detector's verdict
// once ingestion completes; it never changes afterward.
func (r *WorkspaceRepo) UpdateUploadDocumentType(ctx context.Context, uploadID string, docType model.DocumentType) error {
	_, err := r.pool.Exec(ctx, `UPDATE uploads SET document_type = $1 WHERE upload_id = $2`, string(docType), uploadID)
	if err != nil {
		return apperr.Wrap(apperr.DatabaseError, "update upload document type", err)
	}
	if r.cache != nil {
		r.cache.Invalidate(ctx, "upload:"+uploadID)
	}
	return nil
}

// GetUpload fetches one Upload, cache-first.
func (r *WorkspaceRepo) GetUpload(ctx context.Context, uploadID string) (model.Upload, error) {
	cacheKey := "upload:" + uploadID
	var u model.Upload
	if r.cache != nil && r.cache.Get(ctx, cacheKey, &u) {
		return u, nil
	}

	row := r.pool.QueryRow(ctx, `
		SELECT upload_id, user_id, filename, document_type, status, created_at, summary_metadata
		FROM uploads WHERE upload_id = $1`, uploadID)

	var docType, status string
	var meta []byte
	if err := row.Scan(&u.UploadID, &u.UserID, &u.Filename, &docType, &status, &u.CreatedAt, &meta); err != nil {
		if err == pgx.ErrNoRows {
			return model.Upload{}, apperr.New(apperr.WorkspaceNotFound, "upload not found")
		}
		return model.Upload{}, apperr.Wrap(apperr.DatabaseError, "fetch upload", err)
	}
	u.DocumentType = model.DocumentType(docType)
	u.Status = model.UploadStatus(status)
	if len(meta) > 0 {
		_ = json.Unmarshal(meta, &u.SummaryMetadata)
	}

	if r.cache != nil {
		r.cache.Set(ctx, cacheKey, u)
	}
	return u, nil
}

// ListUploads returns every upload belonging to userID, newest first.
func (r *WorkspaceRepo) ListUploads(ctx context.Context, userID string) ([]model.Upload, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT upload_id, user_id, filename, document_type, status, created_at, summary_metadata
		FROM uploads WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, apperr.Wrap(apperr.DatabaseError, "list uploads", err)
	}
	defer rows.Close()

	var out []model.Upload
	for rows.Next() {
		var u model.Upload
		var docType, status string
		var meta []byte
		if err := rows.Scan(&u.UploadID, &u.UserID, &u.Filename, &docType, &status, &u.CreatedAt, &meta); err != nil {
			return nil, apperr.Wrap(apperr.DatabaseError, "scan upload", err)
		}
		u.DocumentType = model.DocumentType(docType)
		u.Status = model.UploadStatus(status)
		if len(meta) > 0 {
			_ = json.Unmarshal(meta, &u.SummaryMetadata)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// SaveChatMessage implements orchestrator.ChatSink.
func (r *WorkspaceRepo) SaveChatMessage(ctx context.Context, msg model.ChatMessage) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO chat_messages (id, upload_id, user_id, role, content, agent_name, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		msg.ID, msg.UploadID, msg.UserID, string(msg.Role), msg.Content, nullableString(msg.AgentName), msg.CreatedAt)
	if err != nil {
		return apperr.Wrap(apperr.DatabaseError, "insert chat message", err)
	}
	if r.cache != nil {
		r.cache.Invalidate(ctx, "chat_history:"+msg.UploadID)
	}
	return nil
}

// ChatHistory returns every message for uploadID ordered by CreatedAt
// ascending (spec.md §8 property 3: strictly monotonic within an
// upload), cache-first.
func (r *WorkspaceRepo) ChatHistory(ctx context.Context, uploadID string) ([]model.ChatMessage, error) {
	cacheKey := "chat_history:" + uploadID
	var cached []model.ChatMessage
	if r.cache != nil && r.cache.Get(ctx, cacheKey, &cached) {
		return cached, nil
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, upload_id, user_id, role, content, COALESCE(agent_name, ''), created_at
		FROM chat_messages WHERE upload_id = $1 ORDER BY created_at ASC`, uploadID)
	if err != nil {
		return nil, apperr.Wrap(apperr.DatabaseError, "list chat history", err)
	}
	defer rows.Close()

	var out []model.ChatMessage
	for rows.Next() {
		var m model.ChatMessage
		var role string
		if err := rows.Scan(&m.ID, &m.UploadID, &m.UserID, &role, &m.Content, &m.AgentName, &m.CreatedAt); err != nil {
			return nil, apperr.Wrap(apperr.DatabaseError, "scan chat message", err)
		}
		m.Role = model.ChatRole(role)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.DatabaseError, "list chat history", err)
	}

	if r.cache != nil {
		r.cache.Set(ctx, cacheKey, out)
	}
	return out, nil
}

// SaveAnalysisResult implements orchestrator.ResultSink. One row per
// (upload_id, agent_name); a re-run of the same agent overwrites its
// prior result rather than accumulating history, matching the
// "analysis results are a snapshot, not a log" shape spec.md §4.11
// describes for the insights endpoint.
func (r *WorkspaceRepo) SaveAnalysisResult(ctx context.Context, result model.AnalysisResult) error {
	findings, err := json.Marshal(result.Findings)
	if err != nil {
		return apperr.Wrap(apperr.DatabaseError, "marshal findings", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO analysis_results (upload_id, user_id, agent_name, status, summary, findings, mode, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (upload_id, agent_name) DO UPDATE SET
			status = EXCLUDED.status,
			summary = EXCLUDED.summary,
			findings = EXCLUDED.findings,
			mode = EXCLUDED.mode,
			created_at = EXCLUDED.created_at`,
		result.UploadID, result.UserID, result.AgentName, string(result.Status),
		result.Summary, findings, result.Mode, result.CreatedAt)
	if err != nil {
		return apperr.Wrap(apperr.DatabaseError, "upsert analysis result", err)
	}
	if r.cache != nil {
		r.cache.Invalidate(ctx, "analysis_results:"+result.UploadID)
	}
	return nil
}

// AnalysisResults returns every agent's latest result for uploadID,
// cache-first.
func (r *WorkspaceRepo) AnalysisResults(ctx context.Context, uploadID string) ([]model.AnalysisResult, error) {
	cacheKey := "analysis_results:" + uploadID
	var cached []model.AnalysisResult
	if r.cache != nil && r.cache.Get(ctx, cacheKey, &cached) {
		return cached, nil
	}

	rows, err := r.pool.Query(ctx, `
		SELECT upload_id, user_id, agent_name, status, summary, findings, mode, created_at
		FROM analysis_results WHERE upload_id = $1 ORDER BY agent_name ASC`, uploadID)
	if err != nil {
		return nil, apperr.Wrap(apperr.DatabaseError, "list analysis results", err)
	}
	defer rows.Close()

	var out []model.AnalysisResult
	for rows.Next() {
		var res model.AnalysisResult
		var status string
		var findings []byte
		if err := rows.Scan(&res.UploadID, &res.UserID, &res.AgentName, &status, &res.Summary, &findings, &res.Mode, &res.CreatedAt); err != nil {
			return nil, apperr.Wrap(apperr.DatabaseError, "scan analysis result", err)
		}
		res.Status = model.AnalysisStatus(status)
		if len(findings) > 0 {
			_ = json.Unmarshal(findings, &res.Findings)
		}
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.DatabaseError, "list analysis results", err)
	}

	if r.cache != nil {
		r.cache.Set(ctx, cacheKey, out)
	}
	return out, nil
}

// DeleteUpload removes an upload and everything derived from it:
// chat_messages, analysis_results, and vector_doc_snapshots cascade via
// FK, the live in-memory vector index is purged by filter, and the
// original file ingest.Pipeline wrote under uploadsDir is removed from
// disk, satisfying spec.md §8 property 5 ("Delete Completeness"). Cache
// entries for the workspace are invalidated last; until then a cached
// read can still return the deleted workspace's state.
func (r *WorkspaceRepo) DeleteUpload(ctx context.Context, uploadID string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM uploads WHERE upload_id = $1`, uploadID)
	if err != nil {
		return apperr.Wrap(apperr.DatabaseError, "delete upload", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.WorkspaceNotFound, "upload not found")
	}

	if r.index != nil {
		scoped := vectorindex.Filter{}.WithUploadID(uploadID)
		if err := r.index.Delete(ctx, scoped); err != nil {
			return apperr.Wrap(apperr.DatabaseError, "delete vector docs", err)
		}
	}

	if r.uploadsDir != "" {
		if err := os.RemoveAll(filepath.Join(r.uploadsDir, uploadID)); err != nil {
			return apperr.Wrap(apperr.DatabaseError, "delete uploaded files", err)
		}
	}

	if r.cache != nil {
		r.cache.Invalidate(ctx, "upload:"+uploadID)
		r.cache.Invalidate(ctx, "chat_history:"+uploadID)
		r.cache.Invalidate(ctx, "analysis_results:"+uploadID)
	}
	return nil
}

// SaveVectorSnapshot persists a durable copy of one VectorDoc alongside
// the in-memory index's own JSON snapshot file, so a fresh process can
// rehydrate a workspace's evidence from Postgres even if the snapshot
// file was lost. Repurposes the teacher's FSAPCache dual-write (DB and
// file, always both) as DB-and-in-memory-index here.
func (r *WorkspaceRepo) SaveVectorSnapshot(ctx context.Context, uploadID, docID string, doc model.VectorDoc) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return apperr.Wrap(apperr.DatabaseError, "marshal vector doc", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO vector_doc_snapshots (upload_id, doc_id, payload, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (upload_id, doc_id) DO UPDATE SET payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at`,
		uploadID, docID, payload, time.Now())
	if err != nil {
		return apperr.Wrap(apperr.DatabaseError, "upsert vector snapshot", err)
	}
	return nil
}

// LoadVectorSnapshots returns every VectorDoc snapshot for uploadID.
// Nothing in this repository calls it (or SaveVectorSnapshot): startup
// reloads the index only from its own JSON snapshot file.
func (r *WorkspaceRepo) LoadVectorSnapshots(ctx context.Context, uploadID string) ([]model.VectorDoc, error) {
	rows, err := r.pool.Query(ctx, `SELECT payload FROM vector_doc_snapshots WHERE upload_id = $1`, uploadID)
	if err != nil {
		return nil, apperr.Wrap(apperr.DatabaseError, "list vector snapshots", err)
	}
	defer rows.Close()

	var out []model.VectorDoc
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, apperr.Wrap(apperr.DatabaseError, "scan vector snapshot", err)
		}
		var doc model.VectorDoc
		if err := json.Unmarshal(payload, &doc); err != nil {
			return nil, apperr.Wrap(apperr.DatabaseError, "unmarshal vector snapshot", err)
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

// SaveFinancialStatement persists the parsed FinancialStatement for a
// statement-kind upload, one row per upload_id (overwritten on re-parse).
func (r *WorkspaceRepo) SaveFinancialStatement(ctx context.Context, uploadID string, stmt model.FinancialStatement) error {
	payload, err := json.Marshal(stmt)
	if err != nil {
		return apperr.Wrap(apperr.DatabaseError, "marshal financial statement", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO financial_statements (upload_id, payload, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (upload_id) DO UPDATE SET payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at`,
		uploadID, payload, time.Now())
	if err != nil {
		return apperr.Wrap(apperr.DatabaseError, "upsert financial statement", err)
	}
	return nil
}

// GetFinancialStatement fetches the parsed FinancialStatement for uploadID.
func (r *WorkspaceRepo) GetFinancialStatement(ctx context.Context, uploadID string) (model.FinancialStatement, error) {
	var payload []byte
	err := r.pool.QueryRow(ctx, `SELECT payload FROM financial_statements WHERE upload_id = $1`, uploadID).Scan(&payload)
	if err != nil {
		if err == pgx.ErrNoRows {
			return model.FinancialStatement{}, apperr.New(apperr.WorkspaceNotFound, "no parsed statement for this upload")
		}
		return model.FinancialStatement{}, apperr.Wrap(apperr.DatabaseError, "fetch financial statement", err)
	}
	var stmt model.FinancialStatement
	if err := json.Unmarshal(payload, &stmt); err != nil {
		return model.FinancialStatement{}, apperr.Wrap(apperr.DatabaseError, "unmarshal financial statement", err)
	}
	return stmt, nil
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
