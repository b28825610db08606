package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"finsight/pkg/agent"
	"finsight/pkg/model"
	"finsight/pkg/router"
	"finsight/pkg/understander"
	"finsight/pkg/vectorindex"
)

// upgrader allows any origin: this system has no authentication layer
// (spec.md §6), so origin checking would be theater, not a boundary.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const wsPongWait = 60 * time.Second

type wsQueryFrame struct {
	Query string `json:"query"`
}

type wsDeltaFrame struct {
	Delta string `json:"delta"`
}

type wsDoneFrame struct {
	Done      bool   `json:"done"`
	AgentUsed string `json:"agent_used,omitempty"`
}

// handleChatStream upgrades to a WebSocket and, for every {query} frame
// the client sends, streams the chosen agent's chat answer back as a
// sequence of {delta} frames followed by one {done} frame. Grounded on
// the upgrader/read-pump shape in the opense.ai corpus example's
// api/websocket.go, simplified from its hub/broadcast model to a
// single connection per upload since chat here has no fan-out.
func (h *Handler) handleChatStream(w http.ResponseWriter, r *http.Request) {
	uploadID := chi.URLParam(r, "upload_id")
	userID := userIDFrom(r)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Str("component", "api.websocket").Err(err).Msg("upgrade failed")
		return
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	if _, err := h.deps.Repo.GetUpload(r.Context(), uploadID); err != nil {
		_ = conn.WriteJSON(map[string]string{"error": "upload not found"})
		return
	}

	for {
		var frame wsQueryFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Str("component", "api.websocket").Err(err).Msg("read error")
			}
			return
		}
		if frame.Query == "" {
			continue
		}

		if err := h.streamOneTurn(r.Context(), conn, uploadID, userID, frame.Query); err != nil {
			_ = conn.WriteJSON(map[string]string{"error": err.Error()})
		}
	}
}

// streamOneTurn runs the Query Understander and Router exactly like
// answerOneShot (both make Gateway calls with the router model), then
// either short-circuits to the NEEDS_INSIGHTS sentinel without making
// the agent's chat call (spec.md §4.10 run_chat step 1), or forwards the chosen
// agent's streamed tokens as they arrive instead of buffering the full
// answer first.
func (h *Handler) streamOneTurn(ctx context.Context, conn *websocket.Conn, uploadID, userID, query string) error {
	intent := understander.Understand(ctx, h.deps.Gateway, h.deps.RouterModel, query)

	agentName := intent.AgentHint
	if agentName == "" {
		agentName = router.Route(ctx, h.deps.Gateway, h.deps.RouterModel, intent.EnhancedQuery, intent.AgentHint)
	}

	spec, ok := agent.SpecByName(agentName)
	if !ok {
		spec = agent.Specs[0]
		agentName = spec.Name
	}

	cached, err := h.deps.Orchestrator.CachedSummary(ctx, uploadID, spec.Name)
	if err != nil {
		return err
	}

	var full string
	if cached == "" {
		full = agent.NeedsInsightsSentinel
		if err := conn.WriteJSON(wsDeltaFrame{Delta: full}); err != nil {
			return err
		}
	} else {
		history, err := h.deps.Repo.ChatHistory(ctx, uploadID)
		if err != nil {
			return err
		}
		llmHistory := toLLMHistory(history)

		base := agent.NewBase(spec, h.deps.Gateway, h.deps.Orchestrator.ModelFor(spec.Name))
		retriever := vectorindex.NewScopedRetriever(h.deps.Index, uploadID)
		filter := intent.Filter.WithUploadID(uploadID)

		chunks, err := base.AnswerChatStream(ctx, retriever, cached, intent.EnhancedQuery, filter, llmHistory)
		if err != nil {
			return err
		}

		for chunk := range chunks {
			full += chunk
			if err := conn.WriteJSON(wsDeltaFrame{Delta: chunk}); err != nil {
				return err
			}
		}
	}

	now := time.Now()
	_ = h.deps.Repo.SaveChatMessage(ctx, model.ChatMessage{UploadID: uploadID, UserID: userID, Role: model.RoleUser, Content: query, CreatedAt: now})
	_ = h.deps.Repo.SaveChatMessage(ctx, model.ChatMessage{UploadID: uploadID, UserID: userID, Role: model.RoleAssistant, Content: full, AgentName: agentName, CreatedAt: now.Add(time.Millisecond)})

	return conn.WriteJSON(wsDoneFrame{Done: true, AgentUsed: agentName})
}
