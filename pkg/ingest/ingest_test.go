package ingest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"finsight/pkg/model"
)

func fig(v float64) *float64 { return &v }

func TestRenderTransactionIncludesReference(t *testing.T) {
	txn := model.Transaction{
		Date:        time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC),
		Description: "Grocery store",
		Amount:      120.50,
		Kind:        model.KindDebit,
		Reference:   "REF123",
	}
	out := renderTransaction(txn)
	assert.Contains(t, out, "2026-01-15")
	assert.Contains(t, out, "debit")
	assert.Contains(t, out, "120.50")
	assert.Contains(t, out, "Grocery store")
	assert.Contains(t, out, "REF123")
}

func TestRenderTransactionOmitsEmptyReference(t *testing.T) {
	txn := model.Transaction{Date: time.Now(), Description: "x", Amount: 1, Kind: model.KindCredit}
	assert.NotContains(t, renderTransaction(txn), "reference")
}

func TestRenderStatementSkipsAbsentFigures(t *testing.T) {
	stmt := &model.FinancialStatement{}
	stmt.BalanceSheet.Assets.Current = map[string]model.Figure{
		"cash":              model.NewFigure(fig(500), nil),
		"accounts_receivable": model.NewFigure(nil, nil),
	}

	docs := renderStatement("upload-1", "user-1", stmt)
	assert.Len(t, docs, 1)
	assert.Equal(t, "upload-1", docs[0].Metadata.UploadID)
	assert.Equal(t, "cash", docs[0].Metadata.Category)
	assert.Equal(t, 500.0, docs[0].Metadata.Amount)
}

func TestCompanyNameFromFilename(t *testing.T) {
	assert.Equal(t, "Q3_Report", companyNameFromFilename("/uploads/Q3_Report.xlsx"))
}
