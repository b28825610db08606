// Package vectorindex implements the Vector Index (C3): semantic +
// structured retrieval over a collection of VectorDocs, strictly
// partitioned per upload_id. Grounded structurally on the cagent
// semantic-embeddings strategy (pkg/rag/strategy in the retrieved
// corpus, other_examples/), which exposes the same similarity_metric /
// threshold knobs; persistence borrows the teacher's FSAPCache
// dual-backing idea (DB-shaped primary, file fallback), here applied as
// a JSON snapshot written after every Insert and Delete so a process
// restart doesn't lose evidence.
package vectorindex

import (
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"finsight/pkg/embedding"
	"finsight/pkg/model"
)

// ScoredDoc pairs a retrieved VectorDoc with its similarity score,
// normalised to [0,1].
type ScoredDoc struct {
	Doc   model.VectorDoc
	Score float64
}

// Index is a mutex-guarded in-process vector store. Safe for concurrent
// inserts and queries; writes are batched to minimise lock scope per
// spec.md §5.
type Index struct {
	mu        sync.RWMutex
	docs      map[string]model.VectorDoc
	embedder  *embedding.Service
	persistTo string
}

func NewIndex(embedder *embedding.Service, persistDir string) *Index {
	idx := &Index{
		docs:      make(map[string]model.VectorDoc),
		embedder:  embedder,
		persistTo: persistDir,
	}
	idx.loadSnapshot()
	return idx
}

// Insert batches docs (~100 at a time is the spec.md suggestion; callers
// are free to pass fewer). Idempotent by ID: re-inserting the same ID
// overwrites, it does not duplicate.
func (idx *Index) Insert(ctx context.Context, docs []model.VectorDoc) error {
	idx.mu.Lock()
	for _, d := range docs {
		idx.docs[d.ID] = d
	}
	idx.mu.Unlock()

	idx.snapshot()
	return nil
}

// QuerySemantic embeds text, then ranks all docs matching filters by
// cosine similarity, returning the top k.
func (idx *Index) QuerySemantic(ctx context.Context, text string, k int, filter Filter) ([]ScoredDoc, error) {
	qv, err := idx.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	idx.mu.RLock()
	candidates := make([]ScoredDoc, 0, len(idx.docs))
	for _, d := range idx.docs {
		if !filter.Match(d) {
			continue
		}
		candidates = append(candidates, ScoredDoc{Doc: d, Score: cosineSimilarity(qv, d.Embedding)})
	}
	idx.mu.RUnlock()

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Score > candidates[j].Score })
	if k > 0 && len(candidates) > k {
		candidates = candidates[:k]
	}
	return candidates, nil
}

// QueryStructured is pure metadata retrieval: no embedding call, ordered
// by DateTimestamp descending by default.
func (idx *Index) QueryStructured(ctx context.Context, filter Filter, limit int) ([]model.VectorDoc, error) {
	idx.mu.RLock()
	out := make([]model.VectorDoc, 0, len(idx.docs))
	for _, d := range idx.docs {
		if filter.Match(d) {
			out = append(out, d)
		}
	}
	idx.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].Metadata.DateTimestamp > out[j].Metadata.DateTimestamp
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Delete removes every doc matching filter. Used by workspace deletion
// (spec.md §4.12) with filter={upload_id: id}.
func (idx *Index) Delete(ctx context.Context, filter Filter) error {
	idx.mu.Lock()
	for id, d := range idx.docs {
		if filter.Match(d) {
			delete(idx.docs, id)
		}
	}
	idx.mu.Unlock()

	idx.snapshot()
	return nil
}

func cosineSimilarity(a, b model.Vector) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	cos := dot / (math.Sqrt(magA) * math.Sqrt(magB))
	// Normalise [-1,1] -> [0,1] per spec.md §4.3.
	return (cos + 1) / 2
}

type snapshotFile struct {
	Docs []model.VectorDoc `json:"docs"`
}

func (idx *Index) snapshot() {
	if idx.persistTo == "" {
		return
	}
	idx.mu.RLock()
	docs := make([]model.VectorDoc, 0, len(idx.docs))
	for _, d := range idx.docs {
		docs = append(docs, d)
	}
	idx.mu.RUnlock()

	if err := os.MkdirAll(idx.persistTo, 0o755); err != nil {
		log.Warn().Str("component", "vectorindex.Index").Err(err).Msg("could not create persist dir")
		return
	}
	raw, err := json.Marshal(snapshotFile{Docs: docs})
	if err != nil {
		log.Warn().Str("component", "vectorindex.Index").Err(err).Msg("could not marshal snapshot")
		return
	}
	path := filepath.Join(idx.persistTo, "index.json")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		log.Warn().Str("component", "vectorindex.Index").Err(err).Str("path", path).Msg("could not write snapshot")
	}
}

func (idx *Index) loadSnapshot() {
	if idx.persistTo == "" {
		return
	}
	path := filepath.Join(idx.persistTo, "index.json")
	raw, err := os.ReadFile(path)
	if err != nil {
		return
	}
	var snap snapshotFile
	if err := json.Unmarshal(raw, &snap); err != nil {
		log.Warn().Str("component", "vectorindex.Index").Err(err).Msg("could not parse snapshot")
		return
	}
	for _, d := range snap.Docs {
		idx.docs[d.ID] = d
	}
}
