// Package model holds the core domain types shared across the ingestion,
// retrieval, agent, and persistence layers.
package model

import "time"

// TransactionKind encodes the sign of a Transaction's amount.
type TransactionKind string

const (
	KindDebit   TransactionKind = "debit"
	KindCredit  TransactionKind = "credit"
	KindUnknown TransactionKind = "unknown"
)

// Transaction is a single bank-account movement extracted by the tabular
// parser or the vision PDF processor. Once constructed it is immutable;
// it is destroyed only when its owning Upload is deleted.
type Transaction struct {
	Date        time.Time         `json:"date"`
	Description string            `json:"description"`
	Amount      float64           `json:"amount"` // always >= 0; sign lives in Kind
	Kind        TransactionKind   `json:"kind"`
	Balance     *float64          `json:"balance,omitempty"`
	Reference   string            `json:"reference,omitempty"`
	Category    string            `json:"category,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// SignedAmount returns the amount with the sign implied by Kind applied,
// debit negative, credit positive. Unknown-kind transactions are treated
// as neither and return the unsigned amount.
func (t Transaction) SignedAmount() float64 {
	switch t.Kind {
	case KindDebit:
		return -t.Amount
	case KindCredit:
		return t.Amount
	default:
		return t.Amount
	}
}
