package model

// Vector is a fixed-dimension embedding, typically 384-wide for the
// local embedding model (C2).
type Vector []float32

// VectorDocMetadata carries the structured fields the Vector Index (C3)
// filters on. UploadID is mandatory: every VectorDoc must belong to
// exactly one workspace, and every retrieval path is required to filter
// on it (spec.md §4.3, the "principal correctness bug" warning).
type VectorDocMetadata struct {
	UploadID      string   `json:"upload_id"`
	UserID        string   `json:"user_id"`
	Kind          string   `json:"kind"` // "transaction" | "financial_statement" | ...
	DateTimestamp int64    `json:"date_timestamp,omitempty"`
	Amount        float64  `json:"amount,omitempty"`
	Category      string   `json:"category,omitempty"`
	SemanticTags  []string `json:"semantic_tags,omitempty"`
}

// VectorDoc is a single piece of indexed evidence: a natural-language
// rendition of a Transaction or statement line item, its embedding, and
// the metadata used for structured filtering.
type VectorDoc struct {
	ID        string            `json:"id"`
	Text      string            `json:"text"`
	Embedding Vector            `json:"embedding"`
	Metadata  VectorDocMetadata `json:"metadata"`
}
