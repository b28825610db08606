package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"finsight/pkg/apperr"
	"finsight/pkg/ingest"
	"finsight/pkg/llm"
	"finsight/pkg/model"
	"finsight/pkg/router"
	"finsight/pkg/understander"
	"finsight/pkg/vectorindex"
)

// Handler holds every handler method's dependencies. One Handler serves
// the whole router; it carries no per-request state.
type Handler struct {
	deps     Deps
	pipeline *ingest.Pipeline
}

type ctxKey string

const userIDKey ctxKey = "user_id"

// userIDMiddleware reads X-User-ID and mints a fresh one when absent,
// per spec.md §6: "a missing header is treated as new anonymous user".
func userIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get("X-User-ID")
		if userID == "" {
			userID = uuid.NewString()
			w.Header().Set("X-User-ID", userID)
		}
		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func userIDFrom(r *http.Request) string {
	if v, ok := r.Context().Value(userIDKey).(string); ok {
		return v
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Str("component", "api").Err(err).Msg("failed to encode response")
	}
}

// writeErr maps an error to the status its apperr.Kind declares (500 if
// unclassified) and writes a short, user-safe message — never a stack
// trace or internal identifier beyond upload_id, per spec.md §7.
func writeErr(w http.ResponseWriter, err error) {
	writeJSON(w, apperr.StatusFor(err), map[string]string{"error": err.Error()})
}

const maxUploadMemory = 32 << 20 // 32MB kept in memory before spilling to temp files

func (h *Handler) handleUploadCreate(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r)

	maxBytes := int64(h.deps.MaxFileSizeMB) << 20
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeErr(w, apperr.New(apperr.IngestionParseFailed, "request too large or malformed"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeErr(w, apperr.New(apperr.IngestionParseFailed, "missing file field"))
		return
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		writeErr(w, apperr.Wrap(apperr.IngestionParseFailed, "read upload body", err))
		return
	}

	uploadID := uuid.NewString()
	upload := model.Upload{
		UploadID:  uploadID,
		UserID:    userID,
		Filename:  header.Filename,
		Status:    model.StatusProcessing,
		CreatedAt: time.Now(),
	}
	if err := h.deps.Repo.CreateUpload(r.Context(), upload); err != nil {
		writeErr(w, err)
		return
	}

	// Ingestion runs in the background so the client gets an immediate
	// handle; the client polls /api/upload/{id}/status (spec.md §6) for
	// completion.
	go h.runIngestion(uploadID, userID, header.Filename, raw)

	writeJSON(w, http.StatusOK, map[string]interface{}{"upload_id": uploadID, "status": string(model.StatusProcessing)})
}

func (h *Handler) runIngestion(uploadID, userID, filename string, raw []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	result, err := h.pipeline.Ingest(ctx, uploadID, userID, filename, raw)
	if err != nil {
		log.Error().Str("component", "api").Str("upload_id", uploadID).Err(err).Msg("ingestion failed")
		_ = h.deps.Repo.UpdateUploadStatus(ctx, uploadID, model.StatusFailed, &model.SummaryMetadata{
			Warnings: []string{err.Error()},
		})
		return
	}

	meta := model.SummaryMetadata{RowCount: result.RowCount, Warnings: result.Warnings, DateFrom: result.DateFrom, DateTo: result.DateTo}
	if err := h.deps.Repo.UpdateUploadStatus(ctx, uploadID, model.StatusCompleted, &meta); err != nil {
		log.Error().Str("component", "api").Str("upload_id", uploadID).Err(err).Msg("failed to record completion")
		return
	}

	if err := h.deps.Repo.UpdateUploadDocumentType(ctx, uploadID, result.DocumentType); err != nil {
		log.Error().Str("component", "api").Str("upload_id", uploadID).Err(err).Msg("failed to record document type")
	}

	if result.Statement != nil {
		if err := h.deps.Repo.SaveFinancialStatement(ctx, uploadID, *result.Statement); err != nil {
			log.Error().Str("component", "api").Str("upload_id", uploadID).Err(err).Msg("failed to persist financial statement")
		}
	}
}

func (h *Handler) handleUploadList(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r)
	uploads, err := h.deps.Repo.ListUploads(r.Context(), userID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"uploads": uploads})
}

func (h *Handler) handleUploadStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	upload, err := h.deps.Repo.GetUpload(r.Context(), id)
	if err != nil {
		writeErr(w, err)
		return
	}
	resp := map[string]interface{}{"status": string(upload.Status)}
	if upload.Status == model.StatusCompleted {
		resp["document_type"] = upload.DocumentType
		resp["summary_metadata"] = upload.SummaryMetadata
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleUploadDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.deps.Repo.DeleteUpload(r.Context(), id); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

// transactionView is the JSON shape /api/transactions returns: a
// rendering over the indexed evidence rather than a separate table,
// since the Vector Index is this system's only durable record of
// individual transactions once ingested (see DESIGN.md, pkg/ingest).
type transactionView struct {
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
	Category    string  `json:"category,omitempty"`
	Date        int64   `json:"date_timestamp"`
}

func (h *Handler) handleTransactions(w http.ResponseWriter, r *http.Request) {
	uploadID := r.URL.Query().Get("upload_id")
	if uploadID == "" {
		writeErr(w, apperr.New(apperr.IngestionParseFailed, "upload_id is required"))
		return
	}

	page := queryInt(r, "page", 1)
	limit := queryInt(r, "limit", 50)

	filter := vectorindex.Filter{}.WithUploadID(uploadID)
	filter.Kind = &vectorindex.EqualFilter{Value: "transaction"}

	docs, err := h.deps.Index.QueryStructured(r.Context(), filter, 0)
	if err != nil {
		writeErr(w, err)
		return
	}

	views := make([]transactionView, 0, len(docs))
	for _, d := range docs {
		views = append(views, transactionView{
			Description: d.Text,
			Amount:      d.Metadata.Amount,
			Category:    d.Metadata.Category,
			Date:        d.Metadata.DateTimestamp,
		})
	}
	sort.Slice(views, func(i, j int) bool { return views[i].Date > views[j].Date })

	start := (page - 1) * limit
	if start > len(views) {
		start = len(views)
	}
	end := start + limit
	if end > len(views) {
		end = len(views)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"transactions": views[start:end], "total": len(views)})
}

func (h *Handler) handleFinancialStatement(w http.ResponseWriter, r *http.Request) {
	uploadID := r.URL.Query().Get("upload_id")
	if uploadID == "" {
		writeErr(w, apperr.New(apperr.IngestionParseFailed, "upload_id is required"))
		return
	}
	stmt, err := h.deps.Repo.GetFinancialStatement(r.Context(), uploadID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stmt)
}

type analysisFullRequest struct {
	UploadID string `json:"upload_id"`
}

func (h *Handler) handleAnalysisFull(w http.ResponseWriter, r *http.Request) {
	var req analysisFullRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UploadID == "" {
		writeErr(w, apperr.New(apperr.IngestionParseFailed, "upload_id is required"))
		return
	}

	userID := userIDFrom(r)
	upload, err := h.deps.Repo.GetUpload(r.Context(), req.UploadID)
	if err != nil {
		writeErr(w, err)
		return
	}
	if upload.Status == model.StatusProcessing || upload.Status == model.StatusUploading {
		writeErr(w, apperr.New(apperr.WorkspaceBusy, "upload is still being processed"))
		return
	}

	results := h.deps.Orchestrator.RunFullInsights(r.Context(), req.UploadID, userID, string(upload.DocumentType))

	byAgent := make(map[string]model.AnalysisResult, len(results))
	for _, res := range results {
		byAgent[res.AgentName] = res
	}
	writeJSON(w, http.StatusOK, byAgent)
}

func (h *Handler) handleAnalysisResults(w http.ResponseWriter, r *http.Request) {
	uploadID := r.URL.Query().Get("upload_id")
	if uploadID == "" {
		writeErr(w, apperr.New(apperr.IngestionParseFailed, "upload_id is required"))
		return
	}
	results, err := h.deps.Repo.AnalysisResults(r.Context(), uploadID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"has_results": len(results) > 0, "results": results})
}

type chatRequest struct {
	UploadID string `json:"upload_id"`
	Query    string `json:"query"`
}

func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UploadID == "" || req.Query == "" {
		writeErr(w, apperr.New(apperr.IngestionParseFailed, "upload_id and query are required"))
		return
	}

	userID := userIDFrom(r)
	upload, err := h.deps.Repo.GetUpload(r.Context(), req.UploadID)
	if err != nil {
		writeErr(w, err)
		return
	}

	answer, agentUsed, err := h.answerOneShot(r.Context(), req.UploadID, userID, string(upload.DocumentType), req.Query)
	if err != nil {
		writeErr(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"answer": answer, "agent_used": agentUsed})
}

// answerOneShot runs the Query Understander, then the Router, then the
// orchestrator's single-agent chat protocol, persisting both turns.
func (h *Handler) answerOneShot(ctx context.Context, uploadID, userID, docKind, query string) (string, string, error) {
	intent := understander.Understand(ctx, h.deps.Gateway, h.deps.RouterModel, query)

	agentName := intent.AgentHint
	if agentName == "" {
		agentName = router.Route(ctx, h.deps.Gateway, h.deps.RouterModel, intent.EnhancedQuery, intent.AgentHint)
	}

	history, err := h.deps.Repo.ChatHistory(ctx, uploadID)
	if err != nil {
		return "", "", err
	}
	llmHistory := toLLMHistory(history)

	filter := intent.Filter.WithUploadID(uploadID)
	answer, err := h.deps.Orchestrator.AnswerChat(ctx, uploadID, userID, docKind, agentName, filter, intent.EnhancedQuery, llmHistory)
	if err != nil {
		return "", "", err
	}

	now := time.Now()
	_ = h.deps.Repo.SaveChatMessage(ctx, model.ChatMessage{UploadID: uploadID, UserID: userID, Role: model.RoleUser, Content: query, CreatedAt: now})
	_ = h.deps.Repo.SaveChatMessage(ctx, model.ChatMessage{UploadID: uploadID, UserID: userID, Role: model.RoleAssistant, Content: answer, AgentName: agentName, CreatedAt: now.Add(time.Millisecond)})

	return answer, agentName, nil
}

func (h *Handler) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	uploadID := r.URL.Query().Get("upload_id")
	if uploadID == "" {
		writeErr(w, apperr.New(apperr.IngestionParseFailed, "upload_id is required"))
		return
	}
	messages, err := h.deps.Repo.ChatHistory(r.Context(), uploadID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"messages": messages})
}

func toLLMHistory(messages []model.ChatMessage) []llm.ChatMessage {
	out := make([]llm.ChatMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, llm.ChatMessage{Role: string(m.Role), Content: m.Content})
	}
	return out
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
