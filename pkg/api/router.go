// Package api implements the HTTP/JSON surface of spec.md §6, plus the
// streaming-chat WebSocket. Router construction (chi.NewRouter with a
// CORS → RequestID → Recoverer → Logger middleware chain) is grounded
// on the Sergey-Bar-Alfred gateway's services/gateway/router/router.go,
// the one corpus repo that actually builds a chi-based HTTP surface;
// handler shape (small struct holding its dependencies, writeJSON
// helper, chi.URLParam for path params) follows that repo's
// handler/cache.go.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"

	"finsight/pkg/embedding"
	"finsight/pkg/ingest"
	"finsight/pkg/llm"
	"finsight/pkg/orchestrator"
	"finsight/pkg/store"
	"finsight/pkg/vectorindex"
)

// Deps bundles everything a handler needs, built once at startup by
// cmd/finsight and threaded through NewRouter.
type Deps struct {
	Gateway       *llm.Gateway
	Embedder      *embedding.Service
	Index         *vectorindex.Index
	Repo          *store.WorkspaceRepo
	Orchestrator  *orchestrator.Orchestrator
	RouterModel   string
	VisionModel   string
	MaxFileSizeMB int
	UploadsDir    string
}

// NewRouter builds the full chi router: CORS first so preflight
// requests succeed, then request ID, panic recovery, and a structured
// request logger, matching the gateway's documented middleware order.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "X-User-ID"},
		AllowCredentials: false,
	}))
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(requestLogger)
	r.Use(userIDMiddleware)

	h := &Handler{deps: deps, pipeline: &ingest.Pipeline{
		Gateway:     deps.Gateway,
		Index:       deps.Index,
		Embedder:    deps.Embedder,
		VisionModel: deps.VisionModel,
		UploadsDir:  deps.UploadsDir,
	}}

	r.Route("/api", func(r chi.Router) {
		r.Post("/upload", h.handleUploadCreate)
		r.Get("/upload", h.handleUploadList)
		r.Get("/upload/{id}/status", h.handleUploadStatus)
		r.Delete("/upload/{id}", h.handleUploadDelete)

		r.Get("/transactions", h.handleTransactions)
		r.Get("/financial/statements", h.handleFinancialStatement)

		r.Post("/analysis/full", h.handleAnalysisFull)
		r.Get("/analysis/results", h.handleAnalysisResults)

		r.Post("/chat", h.handleChat)
		r.Get("/chat/history", h.handleChatHistory)
	})

	r.Get("/ws/chat/{upload_id}", h.handleChatStream)

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Info().Str("component", "api").Str("method", r.Method).Str("path", r.URL.Path).
			Dur("elapsed", time.Since(start)).Msg("request handled")
	})
}
