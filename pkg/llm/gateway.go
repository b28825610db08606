// Package llm implements the LLM Gateway (C1): a uniform call interface
// to a single local LLM runtime, generalized from the teacher's
// multi-vendor Provider registry (pkg/core/llm in the retrieved corpus,
// which dispatched GenerateResponse/AdaptInstructions to named cloud
// providers). Here there is one runtime reachable at LLM_HOST:LLM_PORT;
// the per-agent axis is model selection, not vendor selection.
package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"finsight/pkg/apperr"
)

// Options configures a single Generate/Chat/VisionGenerate call.
type Options struct {
	Model       string
	Temperature float64
	MaxTokens   int
	Think       bool
	Timeout     time.Duration
	Images      [][]byte // raw image bytes, for VisionGenerate
}

// ChatMessage is one turn in a Chat() call.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Gateway is the uniform call interface spec.md §4.1 describes. It is
// safe for concurrent use; the underlying http.Client pools connections.
type Gateway struct {
	baseURL string
	client  *http.Client

	// availability cache: models we've confirmed are present on the
	// runtime, so we don't re-check (and don't try to pull) every call.
	known map[string]bool
}

// NewGateway constructs a Gateway pointed at the local runtime's base URL
// (e.g. "http://127.0.0.1:11434").
func NewGateway(baseURL string) *Gateway {
	return &Gateway{
		baseURL: baseURL,
		client:  &http.Client{},
		known:   make(map[string]bool),
	}
}

// AdaptInstructions reshapes a system prompt for a given model's quirks.
// Kept as its own method (teacher: llm.Provider.AdaptInstructions) because
// small router/understander models need terser, more directive system
// prompts than the primary model; the default is the identity transform.
func (g *Gateway) AdaptInstructions(model, raw string) string {
	return raw
}

type generateRequest struct {
	Model   string   `json:"model"`
	Prompt  string   `json:"prompt"`
	System  string   `json:"system,omitempty"`
	Think   bool     `json:"think"`
	Stream  bool     `json:"stream"`
	Images  []string `json:"images,omitempty"`
	Options struct {
		Temperature float64 `json:"temperature"`
		NumPredict  int     `json:"num_predict,omitempty"`
	} `json:"options"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Generate issues a single completion call. insights-mode callers should
// set Options.Timeout to up to 180s; chat-mode callers up to 30s, per
// spec.md §4.1.
func (g *Gateway) Generate(ctx context.Context, prompt, systemPrompt string, opts Options) (string, error) {
	if err := g.ensureAvailable(ctx, opts.Model); err != nil {
		return "", err
	}

	req := generateRequest{
		Model:  opts.Model,
		Prompt: prompt,
		System: g.AdaptInstructions(opts.Model, systemPrompt),
		Think:  opts.Think,
		Stream: false,
	}
	req.Options.Temperature = opts.Temperature
	req.Options.NumPredict = opts.MaxTokens

	return g.doGenerate(ctx, "/api/generate", req, opts)
}

// VisionGenerate is Generate plus one or more page images, used by the
// Vision PDF Processor (C7).
func (g *Gateway) VisionGenerate(ctx context.Context, prompt, systemPrompt string, images [][]byte, opts Options) (string, error) {
	if err := g.ensureAvailable(ctx, opts.Model); err != nil {
		return "", err
	}

	req := generateRequest{
		Model:  opts.Model,
		Prompt: prompt,
		System: g.AdaptInstructions(opts.Model, systemPrompt),
		Think:  opts.Think,
		Stream: false,
	}
	req.Options.Temperature = opts.Temperature
	req.Options.NumPredict = opts.MaxTokens
	for _, img := range images {
		req.Images = append(req.Images, base64.StdEncoding.EncodeToString(img))
	}

	return g.doGenerate(ctx, "/api/generate", req, opts)
}

func (g *Gateway) doGenerate(ctx context.Context, path string, req generateRequest, opts Options) (string, error) {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 180 * time.Second
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := json.Marshal(req)
	if err != nil {
		return "", apperr.Wrap(apperr.LLMBadResponse, "marshal generate request", err)
	}

	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, g.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return "", apperr.Wrap(apperr.LLMUnavailable, "build generate request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		if callCtx.Err() != nil {
			log.Warn().Str("component", "llm.Gateway").Str("model", req.Model).Msg("generate call timed out")
			return "", apperr.Wrap(apperr.LLMTimeout, "generate timed out", err)
		}
		log.Error().Str("component", "llm.Gateway").Err(err).Msg("generate call failed")
		return "", apperr.Wrap(apperr.LLMUnavailable, "local LLM runtime unreachable", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", apperr.Wrap(apperr.LLMBadResponse, "read generate response", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", apperr.New(apperr.LLMBadResponse, fmt.Sprintf("runtime returned status %d", resp.StatusCode))
	}

	var out generateResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", apperr.Wrap(apperr.LLMBadResponse, "decode generate response", err)
	}

	return out.Response, nil
}

// Chat issues a multi-turn chat call. It always streams: the returned
// string is always empty, and the answer's chunks are delivered only on
// the returned channel (closed when done), the way the
// teacher's debate orchestrator fans a single producer out over
// subscriber channels (pkg/core/debate/orchestrator.go's broadcast).
func (g *Gateway) Chat(ctx context.Context, messages []ChatMessage, opts Options) (string, <-chan string, error) {
	if err := g.ensureAvailable(ctx, opts.Model); err != nil {
		return "", nil, err
	}

	type chatRequest struct {
		Model    string        `json:"model"`
		Messages []ChatMessage `json:"messages"`
		Think    bool          `json:"think"`
		Stream   bool          `json:"stream"`
		Options  struct {
			Temperature float64 `json:"temperature"`
			NumPredict  int     `json:"num_predict,omitempty"`
		} `json:"options"`
	}

	req := chatRequest{Model: opts.Model, Messages: messages, Think: opts.Think, Stream: true}
	req.Options.Temperature = opts.Temperature
	req.Options.NumPredict = opts.MaxTokens

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)

	body, err := json.Marshal(req)
	if err != nil {
		cancel()
		return "", nil, apperr.Wrap(apperr.LLMBadResponse, "marshal chat request", err)
	}

	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, g.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		cancel()
		return "", nil, apperr.Wrap(apperr.LLMUnavailable, "build chat request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		cancel()
		if callCtx.Err() != nil {
			return "", nil, apperr.Wrap(apperr.LLMTimeout, "chat timed out", err)
		}
		return "", nil, apperr.Wrap(apperr.LLMUnavailable, "local LLM runtime unreachable", err)
	}

	out := make(chan string, 32)
	go func() {
		defer cancel()
		defer resp.Body.Close()
		defer close(out)

		dec := json.NewDecoder(resp.Body)
		for {
			var chunk struct {
				Message ChatMessage `json:"message"`
				Done    bool        `json:"done"`
			}
			if err := dec.Decode(&chunk); err != nil {
				if err != io.EOF {
					log.Warn().Str("component", "llm.Gateway").Err(err).Msg("chat stream decode error")
				}
				return
			}
			if chunk.Message.Content != "" {
				select {
				case out <- chunk.Message.Content:
				case <-callCtx.Done():
					return
				}
			}
			if chunk.Done {
				return
			}
		}
	}()

	return "", out, nil
}

// ensureAvailable verifies the model is present on the runtime, pulling
// it on first use, per spec.md §4.1 ("may pull the model or fail with a
// classified error").
func (g *Gateway) ensureAvailable(ctx context.Context, model string) error {
	if model == "" {
		return apperr.New(apperr.LLMBadResponse, "no model specified")
	}
	if g.known[model] {
		return nil
	}

	tagsReq, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/api/tags", nil)
	if err != nil {
		return apperr.Wrap(apperr.LLMUnavailable, "build tags request", err)
	}
	resp, err := g.client.Do(tagsReq)
	if err != nil {
		return apperr.Wrap(apperr.LLMUnavailable, "local LLM runtime unreachable", err)
	}
	defer resp.Body.Close()

	var tags struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tags); err == nil {
		for _, m := range tags.Models {
			if m.Name == model {
				g.known[model] = true
				return nil
			}
		}
	}

	log.Info().Str("component", "llm.Gateway").Str("model", model).Msg("model not resident, pulling")
	return g.pull(ctx, model)
}

func (g *Gateway) pull(ctx context.Context, model string) error {
	body, _ := json.Marshal(map[string]string{"name": model})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/api/pull", bytes.NewReader(body))
	if err != nil {
		return apperr.Wrap(apperr.LLMUnavailable, "build pull request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.LLMUnavailable, fmt.Sprintf("failed to pull model %s", model), err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return apperr.New(apperr.LLMUnavailable, fmt.Sprintf("failed to pull model %s: status %d", model, resp.StatusCode))
	}
	g.known[model] = true
	return nil
}

