// Package detector implements the Document-Type Detector (C4):
// classifies an uploaded file as transactions or financial_statement
// from filename, sheet structure, and keyword signals. Deterministic
// and side-effect-free, grounded on the teacher's form-classification
// heuristics in pkg/core/edgar (keyword/threshold checks over a
// document's structure rather than a trained classifier).
package detector

import (
	"path/filepath"
	"regexp"
	"strings"

	"finsight/pkg/model"
)

// Result is the detector's verdict plus a human-readable reason, useful
// for logs and for the /api/upload/{id}/status response.
type Result struct {
	DocumentType model.DocumentType
	Reason       string
}

var transactionColumnNames = []string{"date", "description", "amount", "debit", "credit", "balance", "reference", "narration"}

var financialKeywords = regexp.MustCompile(`(?i)(balance sheet|income statement|profit and loss|cash flow statement|statement of financial position|total assets|total liabilities|shareholders.?\s*equity)`)

var transactionFilenamePattern = regexp.MustCompile(`(?i)(statement|transactions|bank|account.?activity)`)
var financialFilenamePattern = regexp.MustCompile(`(?i)(financial|annual.?report|10-?k|balance.?sheet|income.?statement|10q)`)

// DetectFromFirstPageText classifies a PDF from the text of its first
// page (step (a) of spec.md §4.4).
func DetectFromFirstPageText(firstPageText, filename string) Result {
	if financialKeywords.MatchString(firstPageText) {
		return Result{DocumentType: model.DocFinancialStatement, Reason: "first page text matches financial-statement keywords"}
	}
	// Transactions PDFs (scanned bank statements) rarely carry balance-sheet
	// vocabulary; fall back to filename, then default to transactions since
	// that's the more common upload shape for a PDF bank statement.
	return DetectFromFilename(filename)
}

// DetectFromSheet classifies a CSV/Excel file from its header row (step
// (b) of spec.md §4.4): many unnamed columns + financial-report keywords
// imply financial_statement; columns matching {date, amount|debit|credit,
// description} imply transactions.
func DetectFromSheet(headerRow []string, bodySample string, filename string) Result {
	lowered := make([]string, len(headerRow))
	for i, h := range headerRow {
		lowered[i] = strings.ToLower(strings.TrimSpace(h))
	}

	unnamed := 0
	txnMatches := 0
	for _, h := range lowered {
		if h == "" || strings.HasPrefix(h, "unnamed") || strings.HasPrefix(h, "column") {
			unnamed++
			continue
		}
		for _, want := range transactionColumnNames {
			if strings.Contains(h, want) {
				txnMatches++
				break
			}
		}
	}

	hasDate := containsAny(lowered, "date")
	hasAmount := containsAny(lowered, "amount", "debit", "credit")
	hasDescription := containsAny(lowered, "description", "narration", "particulars")

	if hasDate && hasAmount && hasDescription {
		return Result{DocumentType: model.DocTransactions, Reason: "header row matches date/amount/description columns"}
	}

	if unnamed > len(lowered)/2 && financialKeywords.MatchString(bodySample) {
		return Result{DocumentType: model.DocFinancialStatement, Reason: "mostly unnamed columns with financial-report keywords in body"}
	}

	if financialKeywords.MatchString(bodySample) {
		return Result{DocumentType: model.DocFinancialStatement, Reason: "body text matches financial-statement keywords"}
	}

	if txnMatches > 0 {
		return Result{DocumentType: model.DocTransactions, Reason: "header row partially matches transaction columns"}
	}

	return DetectFromFilename(filename)
}

// DetectFromFilename is the deterministic fallback (step (c)).
func DetectFromFilename(filename string) Result {
	base := filepath.Base(filename)
	if financialFilenamePattern.MatchString(base) {
		return Result{DocumentType: model.DocFinancialStatement, Reason: "filename matches financial-statement pattern"}
	}
	if transactionFilenamePattern.MatchString(base) {
		return Result{DocumentType: model.DocTransactions, Reason: "filename matches transaction pattern"}
	}
	// Default: most uploads without strong signal are bank statements.
	return Result{DocumentType: model.DocTransactions, Reason: "no strong signal; defaulting to transactions"}
}

func containsAny(haystack []string, needles ...string) bool {
	for _, h := range haystack {
		for _, n := range needles {
			if strings.Contains(h, n) {
				return true
			}
		}
	}
	return false
}

// IsPDF reports whether filename has a .pdf extension.
func IsPDF(filename string) bool {
	return strings.EqualFold(filepath.Ext(filename), ".pdf")
}
