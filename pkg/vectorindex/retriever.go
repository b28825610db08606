package vectorindex

import (
	"context"
	"fmt"

	"finsight/pkg/model"
)

// ScopedRetriever is the wrapped retrieval handle spec.md §9 describes:
// "the orchestrator, not the agent, is responsible for injecting
// upload_id into every retrieval... implement this by wrapping the
// retrieval handle passed to each agent so that agents cannot bypass
// it." Agents never see the bare *Index — only a ScopedRetriever
// pinned to one workspace.
type ScopedRetriever struct {
	index    *Index
	uploadID string
}

// NewScopedRetriever binds a retriever to exactly one workspace. This is
// the only place an upload_id is allowed to be attached to a Filter for
// agent-originated retrieval.
func NewScopedRetriever(index *Index, uploadID string) *ScopedRetriever {
	return &ScopedRetriever{index: index, uploadID: uploadID}
}

// QuerySemantic scopes filter to this retriever's workspace before
// delegating to the index, regardless of what the caller set.
func (r *ScopedRetriever) QuerySemantic(ctx context.Context, text string, k int, filter Filter) ([]ScoredDoc, error) {
	return r.index.QuerySemantic(ctx, text, k, filter.WithUploadID(r.uploadID))
}

// QueryStructured is QuerySemantic's structured-only counterpart.
func (r *ScopedRetriever) QueryStructured(ctx context.Context, filter Filter, limit int) ([]model.VectorDoc, error) {
	return r.index.QueryStructured(ctx, filter.WithUploadID(r.uploadID), limit)
}

func (r *ScopedRetriever) UploadID() string { return r.uploadID }

// assertScoped is a defensive check used in tests (spec.md §8 property
// 1): every doc returned by this retriever must belong to its workspace.
func assertScoped(uploadID string, docs []model.VectorDoc) error {
	for _, d := range docs {
		if d.Metadata.UploadID != uploadID {
			return fmt.Errorf("workspace isolation violated: retriever for %s returned doc from %s", uploadID, d.Metadata.UploadID)
		}
	}
	return nil
}
