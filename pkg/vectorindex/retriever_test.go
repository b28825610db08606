package vectorindex

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finsight/pkg/model"
)

func docFor(uploadID, id string) model.VectorDoc {
	return model.VectorDoc{
		ID:   id,
		Text: id,
		Metadata: model.VectorDocMetadata{
			UploadID: uploadID,
			Kind:     "transaction",
		},
	}
}

// TestScopedRetrieverIsolatesUpload is spec.md §8 property 1: a
// retriever bound to one upload_id must never surface another
// workspace's documents, regardless of what filter the caller passes.
func TestScopedRetrieverIsolatesUpload(t *testing.T) {
	idx := NewIndex(nil, "")
	require.NoError(t, idx.Insert(context.Background(), []model.VectorDoc{
		docFor("upload-a", "a1"),
		docFor("upload-a", "a2"),
		docFor("upload-b", "b1"),
	}))

	retriever := NewScopedRetriever(idx, "upload-a")

	// Even an empty filter, or one the caller tried to scope to the
	// wrong workspace, must come back pinned to upload-a.
	docs, err := retriever.QueryStructured(context.Background(), Filter{}, 0)
	require.NoError(t, err)
	require.NoError(t, assertScoped("upload-a", docs))
	assert.Len(t, docs, 2)

	crossScoped := Filter{}.WithUploadID("upload-b")
	docs, err = retriever.QueryStructured(context.Background(), crossScoped, 0)
	require.NoError(t, err)
	require.NoError(t, assertScoped("upload-a", docs))
	assert.Len(t, docs, 2)

	assert.Equal(t, "upload-a", retriever.UploadID())
}

// TestAssertScopedCatchesLeak is the negative case: if a caller bypassed
// ScopedRetriever and queried the bare Index directly, assertScoped must
// flag the cross-workspace leak rather than pass it silently.
func TestAssertScopedCatchesLeak(t *testing.T) {
	idx := NewIndex(nil, "")
	require.NoError(t, idx.Insert(context.Background(), []model.VectorDoc{
		docFor("upload-a", "a1"),
		docFor("upload-b", "b1"),
	}))

	docs, err := idx.QueryStructured(context.Background(), Filter{}, 0)
	require.NoError(t, err)
	require.Len(t, docs, 2)

	err = assertScoped("upload-a", docs)
	assert.Error(t, err)
}
