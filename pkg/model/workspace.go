package model

import "time"

// DocumentType is the classification produced by the Document-Type
// Detector (C4): it determines which half of the agent roster (C10) runs
// against an Upload.
type DocumentType string

const (
	DocTransactions        DocumentType = "transactions"
	DocFinancialStatement  DocumentType = "financial_statement"
)

// UploadStatus advances monotonically over an Upload's lifetime.
type UploadStatus string

const (
	StatusUploading  UploadStatus = "uploading"
	StatusProcessing UploadStatus = "processing"
	StatusCompleted  UploadStatus = "completed"
	StatusFailed     UploadStatus = "failed"
)

// SummaryMetadata is a small denormalized summary computed at ingestion
// time, cheap enough to return from a status poll without touching the
// parsed records themselves.
type SummaryMetadata struct {
	RowCount  int        `json:"row_count,omitempty"`
	DateFrom  *time.Time `json:"date_from,omitempty"`
	DateTo    *time.Time `json:"date_to,omitempty"`
	Warnings  []string   `json:"warnings,omitempty"`
}

// Upload is the root aggregate — one ingested document and everything
// derived from it. It is the unit of workspace isolation (spec.md §8
// property 1) and the unit of deletion (spec.md §4.12).
type Upload struct {
	UploadID        string          `json:"upload_id"`
	UserID          string          `json:"user_id"`
	Filename        string          `json:"filename"`
	DocumentType    DocumentType    `json:"document_type"`
	Status          UploadStatus    `json:"status"`
	CreatedAt       time.Time       `json:"created_at"`
	SummaryMetadata SummaryMetadata `json:"summary_metadata"`
}

// ChatRole distinguishes the two sides of a chat turn.
type ChatRole string

const (
	RoleUser      ChatRole = "user"
	RoleAssistant ChatRole = "assistant"
)

// ChatMessage is one turn of a conversation bound to an Upload. Ordering
// is by CreatedAt, strictly monotonic within an upload (spec.md §8
// property 3).
type ChatMessage struct {
	ID        string    `json:"id"`
	UploadID  string    `json:"upload_id"`
	UserID    string    `json:"user_id"`
	Role      ChatRole  `json:"role"`
	Content   string    `json:"content"`
	AgentName string    `json:"agent_name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// AnalysisStatus tags the outcome of a single agent's insights run.
type AnalysisStatus string

const (
	AnalysisCompleted AnalysisStatus = "completed"
	AnalysisFailed    AnalysisStatus = "failed"
)

// AnalysisResult is the durable output of one agent's insights run
// (spec.md §4.10). Findings is an open map at the persistence boundary —
// each agent produces a specific Go struct internally and flattens it
// into this map via JSON marshal/unmarshal, per the "open map at the
// boundary, tagged sum internally" strategy in spec.md §9.
type AnalysisResult struct {
	UploadID  string                 `json:"upload_id"`
	UserID    string                 `json:"user_id"`
	AgentName string                 `json:"agent_name"`
	Status    AnalysisStatus         `json:"status"`
	Summary   string                 `json:"summary"`
	Findings  map[string]interface{} `json:"findings"`
	Mode      string                 `json:"mode"` // always "insights"
	CreatedAt time.Time              `json:"created_at"`
}
