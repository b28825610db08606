// Package embedding implements the Embedding Service (C2): a pure,
// deterministic text->vector function backed by the local LLM runtime's
// embedding endpoint, with an on-disk cache keyed by content hash.
// Grounded on the teacher's FSAPCache dual-backing idea (pkg/core/store
// in the retrieved corpus): a cache that degrades gracefully when its
// backing directory is unavailable rather than failing calls outright.
package embedding

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"

	"finsight/pkg/apperr"
	"finsight/pkg/model"
)

const DefaultDimension = 384

// Service embeds text, caching results on disk by content hash so
// repeated evidence (recurring merchant descriptions, repeated line
// items) skips the model call entirely.
type Service struct {
	baseURL   string
	model     string
	cacheDir  string
	client    *http.Client
	mu        sync.Mutex
	memCache  map[string]model.Vector
}

func NewService(baseURL, embeddingModel, cacheDir string) *Service {
	if cacheDir != "" {
		if err := os.MkdirAll(cacheDir, 0o755); err != nil {
			log.Warn().Str("component", "embedding.Service").Err(err).Msg("could not create embedding cache dir")
		}
	}
	return &Service{
		baseURL:  baseURL,
		model:    embeddingModel,
		cacheDir: cacheDir,
		client:   &http.Client{},
		memCache: make(map[string]model.Vector),
	}
}

// Embed is a pure function of text: same text always yields the same
// vector. Cache hits (in-memory first, then disk) skip the model call.
func (s *Service) Embed(ctx context.Context, text string) (model.Vector, error) {
	key := contentHash(text)

	s.mu.Lock()
	if v, ok := s.memCache[key]; ok {
		s.mu.Unlock()
		return v, nil
	}
	s.mu.Unlock()

	if v, ok := s.loadFromDisk(key); ok {
		s.mu.Lock()
		s.memCache[key] = v
		s.mu.Unlock()
		return v, nil
	}

	v, err := s.callModel(ctx, text)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.memCache[key] = v
	s.mu.Unlock()
	s.saveToDisk(key, v)

	return v, nil
}

// EmbedBatch embeds many texts, reusing the cache per item.
func (s *Service) EmbedBatch(ctx context.Context, texts []string) ([]model.Vector, error) {
	out := make([]model.Vector, len(texts))
	for i, t := range texts {
		v, err := s.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func contentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

func (s *Service) loadFromDisk(key string) (model.Vector, bool) {
	if s.cacheDir == "" {
		return nil, false
	}
	raw, err := os.ReadFile(filepath.Join(s.cacheDir, key+".json"))
	if err != nil {
		return nil, false
	}
	var v model.Vector
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, false
	}
	return v, true
}

func (s *Service) saveToDisk(key string, v model.Vector) {
	if s.cacheDir == "" {
		return
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	path := filepath.Join(s.cacheDir, key+".json")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		log.Warn().Str("component", "embedding.Service").Err(err).Str("path", path).Msg("failed to persist embedding cache entry")
	}
}

type embedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

func (s *Service) callModel(ctx context.Context, text string) (model.Vector, error) {
	body, err := json.Marshal(embedRequest{Model: s.model, Input: text})
	if err != nil {
		return nil, apperr.Wrap(apperr.LLMBadResponse, "marshal embed request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, apperr.Wrap(apperr.LLMUnavailable, "build embed request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.LLMUnavailable, "local LLM runtime unreachable for embedding", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperr.New(apperr.LLMBadResponse, fmt.Sprintf("embedding endpoint returned status %d", resp.StatusCode))
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, apperr.Wrap(apperr.LLMBadResponse, "decode embed response", err)
	}
	if len(out.Embeddings) == 0 {
		return nil, apperr.New(apperr.LLMBadResponse, "embedding endpoint returned no vectors")
	}

	return model.Vector(out.Embeddings[0]), nil
}
