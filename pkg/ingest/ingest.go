// Package ingest wires the per-upload pipeline together: detect
// document type, parse into domain records (transactions or a
// financial statement), render each record as retrievable natural-
// language evidence, embed it, and insert it into the Vector Index
// scoped to its upload_id. Grounded on the teacher's
// pkg/core/ingest/ingestor.go pipeline shape (IngestResult summarizing
// a multi-stage fetch/parse/map run), generalized from
// Excel-cell-to-FSAP mapping to file-to-VectorDoc mapping.
package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"finsight/pkg/apperr"
	"finsight/pkg/detector"
	"finsight/pkg/embedding"
	"finsight/pkg/llm"
	"finsight/pkg/model"
	"finsight/pkg/statement"
	"finsight/pkg/tabular"
	"finsight/pkg/vectorindex"
	"finsight/pkg/vision"
)

// Result summarizes one ingestion run, cheap enough to fold directly
// into model.SummaryMetadata for a status poll.
type Result struct {
	DocumentType model.DocumentType
	RowCount     int
	Warnings     []string
	DateFrom     *time.Time
	DateTo       *time.Time
	Statement    *model.FinancialStatement // set only for financial_statement uploads
}

// Pipeline holds the components an ingestion run needs.
type Pipeline struct {
	Gateway     *llm.Gateway
	Index       *vectorindex.Index
	Embedder    *embedding.Service
	VisionModel string
	UploadsDir  string // original files persisted here, spec.md §6
}

// Ingest detects filename/content, parses, and indexes raw into the
// workspace identified by uploadID/userID. When the upload turns out to
// be a financial statement, its company name is derived from filename
// (companyNameFromFilename). The original
// file is persisted under UploadsDir/<uploadID>/<filename> before
// parsing so DeleteUpload has something to cascade-remove later.
func (p *Pipeline) Ingest(ctx context.Context, uploadID, userID, filename string, raw []byte) (Result, error) {
	if err := p.persist(uploadID, filename, raw); err != nil {
		return Result{}, apperr.Wrap(apperr.IngestionParseFailed, "persist upload", err)
	}

	ext := strings.ToLower(filepath.Ext(filename))

	switch ext {
	case ".pdf":
		return p.ingestPDF(ctx, uploadID, userID, filename, raw)
	case ".csv", ".txt", ".xlsx", ".xls":
		return p.ingestTabularOrStatement(ctx, uploadID, userID, filename, raw)
	default:
		return Result{}, apperr.New(apperr.IngestionParseFailed, fmt.Sprintf("unsupported file extension %q", ext))
	}
}

// persist writes the original upload to disk. A Pipeline with no
// UploadsDir configured (e.g. some test doubles) skips this silently
// rather than erroring, matching the teacher's "best-effort" fallback
// tone elsewhere in this package.
func (p *Pipeline) persist(uploadID, filename string, raw []byte) error {
	if p.UploadsDir == "" {
		return nil
	}
	dir := filepath.Join(p.UploadsDir, uploadID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, filepath.Base(filename)), raw, 0o644)
}

func (p *Pipeline) ingestTabularOrStatement(ctx context.Context, uploadID, userID, filename string, raw []byte) (Result, error) {
	// tabular.Parse fails unless it finds a header row with at least
	// two recognised column names and at least one row with a parseable
	// date and amount, so a successful parse with rows is itself the
	// transactions signal;
	// anything it rejects is tried as a financial statement instead.
	parsed, tabErr := tabular.Parse(filename, raw)
	if tabErr == nil && len(parsed.Transactions) > 0 {
		return p.indexTransactions(ctx, uploadID, userID, parsed)
	}

	stmt, stmtErr := statement.ParseExcel(raw, companyNameFromFilename(filename))
	if stmtErr != nil {
		return Result{}, apperr.Wrap(apperr.IngestionParseFailed, "neither tabular nor statement parse succeeded", stmtErr)
	}
	return p.indexStatement(ctx, uploadID, userID, stmt)
}

func (p *Pipeline) ingestPDF(ctx context.Context, uploadID, userID, filename string, raw []byte) (Result, error) {
	_, firstPageText, err := vision.RenderPages(raw)
	if err != nil {
		return Result{}, apperr.Wrap(apperr.IngestionParseFailed, "render pdf", err)
	}

	det := detector.DetectFromFirstPageText(firstPageText, filename)
	if det.DocumentType == model.DocTransactions {
		// Scanned bank-statement PDFs aren't in scope for vision
		// extraction into Transaction records in this pipeline; only
		// financial-statement PDFs are routed through the vision path,
		// matching spec.md §4.7's scope (scanned financial statements).
		return Result{}, apperr.New(apperr.IngestionParseFailed, "scanned transaction PDFs are not supported; export a CSV/Excel statement instead")
	}

	rows, failedPages, err := vision.ExtractDocument(ctx, p.Gateway, p.VisionModel, raw)
	if err != nil {
		return Result{}, apperr.Wrap(apperr.IngestionParseFailed, "vision extraction", err)
	}

	bs := statement.BuildBalanceSheet(rows)
	is := statement.BuildIncomeStatement(rows)
	cf := statement.BuildCashFlowStatement(rows)
	stmt := &model.FinancialStatement{
		CompanyInfo:       model.CompanyInfo{Name: companyNameFromFilename(filename)},
		BalanceSheet:      bs,
		IncomeStatement:   is,
		CashFlowStatement: cf,
	}
	stmt.Ratios = statement.ComputeRatios(stmt)

	result, err := p.indexStatement(ctx, uploadID, userID, stmt)
	if failedPages > 0 {
		result.Warnings = append(result.Warnings, fmt.Sprintf("%d page(s) could not be extracted", failedPages))
	}
	return result, err
}

func (p *Pipeline) indexTransactions(ctx context.Context, uploadID, userID string, parsed *tabular.ParseResult) (Result, error) {
	docs := make([]model.VectorDoc, 0, len(parsed.Transactions))
	for _, txn := range parsed.Transactions {
		docs = append(docs, model.VectorDoc{
			ID:   uuid.NewString(),
			Text: renderTransaction(txn),
			Metadata: model.VectorDocMetadata{
				UploadID:      uploadID,
				UserID:        userID,
				Kind:          "transaction",
				DateTimestamp: txn.Date.Unix(),
				Amount:        txn.SignedAmount(),
				Category:      txn.Category,
			},
		})
	}

	if err := p.embedAndInsert(ctx, docs); err != nil {
		return Result{}, err
	}

	res := Result{DocumentType: model.DocTransactions, RowCount: len(parsed.Transactions), Warnings: parsed.Warnings}
	if len(parsed.Transactions) > 0 {
		from, to := parsed.Transactions[0].Date, parsed.Transactions[0].Date
		for _, t := range parsed.Transactions {
			if t.Date.Before(from) {
				from = t.Date
			}
			if t.Date.After(to) {
				to = t.Date
			}
		}
		res.DateFrom, res.DateTo = &from, &to
	}
	return res, nil
}

func (p *Pipeline) indexStatement(ctx context.Context, uploadID, userID string, stmt *model.FinancialStatement) (Result, error) {
	docs := renderStatement(uploadID, userID, stmt)
	if err := p.embedAndInsert(ctx, docs); err != nil {
		return Result{}, err
	}
	return Result{DocumentType: model.DocFinancialStatement, RowCount: len(docs), Statement: stmt}, nil
}

func (p *Pipeline) embedAndInsert(ctx context.Context, docs []model.VectorDoc) error {
	if len(docs) == 0 {
		return apperr.New(apperr.IngestionParseFailed, "no records extracted from document")
	}

	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Text
	}

	vectors, err := p.Embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return apperr.Wrap(apperr.LLMUnavailable, "embed evidence batch", err)
	}
	for i := range docs {
		docs[i].Embedding = vectors[i]
	}

	return p.Index.Insert(ctx, docs)
}

func renderTransaction(t model.Transaction) string {
	return fmt.Sprintf("On %s, a %s transaction of %.2f for %q%s",
		t.Date.Format("2006-01-02"), t.Kind, t.Amount, t.Description, refSuffix(t.Reference))
}

func refSuffix(ref string) string {
	if ref == "" {
		return ""
	}
	return fmt.Sprintf(" (reference %s)", ref)
}

func renderStatement(uploadID, userID string, stmt *model.FinancialStatement) []model.VectorDoc {
	var docs []model.VectorDoc
	add := func(section, label string, fig model.Figure) {
		cur, ok := fig.Val()
		if !ok {
			return
		}
		docs = append(docs, model.VectorDoc{
			ID:   uuid.NewString(),
			Text: fmt.Sprintf("%s line item %q: current period %.2f", section, label, cur),
			Metadata: model.VectorDocMetadata{
				UploadID: uploadID,
				UserID:   userID,
				Kind:     "financial_statement",
				Category: label,
				Amount:   cur,
			},
		})
	}

	for k, v := range stmt.BalanceSheet.Assets.Current {
		add("balance sheet asset (current)", k, v)
	}
	for k, v := range stmt.BalanceSheet.Assets.NonCurrent {
		add("balance sheet asset (non-current)", k, v)
	}
	for k, v := range stmt.BalanceSheet.Liabilities.Current {
		add("balance sheet liability (current)", k, v)
	}
	for k, v := range stmt.BalanceSheet.Liabilities.NonCurrent {
		add("balance sheet liability (non-current)", k, v)
	}
	for k, v := range stmt.IncomeStatement.Revenue {
		add("income statement revenue", k, v)
	}
	for k, v := range stmt.IncomeStatement.Expenses {
		add("income statement expense", k, v)
	}
	for k, v := range stmt.IncomeStatement.ProfitMetrics {
		add("income statement profit metric", k, v)
	}
	for k, v := range stmt.CashFlowStatement.Operating {
		add("cash flow (operating)", k, v)
	}
	for k, v := range stmt.CashFlowStatement.Investing {
		add("cash flow (investing)", k, v)
	}
	for k, v := range stmt.CashFlowStatement.Financing {
		add("cash flow (financing)", k, v)
	}
	return docs
}

func companyNameFromFilename(filename string) string {
	base := filepath.Base(filename)
	ext := filepath.Ext(base)
	return strings.TrimSuffix(base, ext)
}
