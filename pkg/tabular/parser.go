// Package tabular implements the Tabular Parser (C5): extracts a
// sequence of model.Transaction records from CSV/Excel with format
// auto-detection (encoding, header row, column aliases, date formats,
// single-vs-dual amount columns). Encoding detection uses
// golang.org/x/text/encoding/charmap, already an indirect dependency of
// three corpus repos and promoted here to direct use since this is the
// first component that actually decodes multi-encoding input.
package tabular

import (
	"encoding/csv"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"finsight/pkg/apperr"
	"finsight/pkg/model"
)

// ParseResult carries the extracted transactions plus bookkeeping on
// rows that were dropped, per spec.md §4.5's failure semantics.
type ParseResult struct {
	Transactions []model.Transaction
	RowsDropped  int
	Warnings     []string
}

// column aliases, per spec.md §4.5 step 3.
var columnAliases = map[string][]string{
	"date":        {"date", "transaction date", "value date", "posting date", "txn date"},
	"description": {"description", "narration", "particulars", "details", "memo"},
	"amount":      {"amount", "transaction amount"},
	"debit":       {"debit", "withdrawal", "dr"},
	"credit":      {"credit", "deposit", "cr"},
	"balance":     {"balance", "running balance", "closing balance"},
	"reference":   {"reference", "ref", "ref no", "cheque no", "check no"},
}

var headerColumnRegexes = buildHeaderRegexes()

func buildHeaderRegexes() map[string]*regexp.Regexp {
	out := make(map[string]*regexp.Regexp)
	for canon, aliases := range columnAliases {
		escaped := make([]string, len(aliases))
		for i, a := range aliases {
			escaped[i] = regexp.QuoteMeta(a)
		}
		out[canon] = regexp.MustCompile(`(?i)^\s*(` + strings.Join(escaped, "|") + `)\s*$`)
	}
	return out
}

var dateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"01/02/2006",
	"02-01-2006",
	"2006/01/02",
	"02 Jan 2006",
	"02 January 2006",
}

var currencyStrip = regexp.MustCompile(`[^\d.\-]`)

// ParseCSV parses raw CSV bytes into transactions, auto-detecting
// encoding, header row, and column layout.
func ParseCSV(raw []byte) (*ParseResult, error) {
	decoded, err := decodeBestEffort(raw)
	if err != nil {
		return nil, apperr.Wrap(apperr.IngestionParseFailed, "could not decode file in any supported encoding", err)
	}

	reader := csv.NewReader(strings.NewReader(decoded))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var rows [][]string
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue // malformed line: skip, counted via RowsDropped below
		}
		rows = append(rows, rec)
	}

	if len(rows) == 0 {
		return nil, apperr.New(apperr.IngestionParseFailed, "file contains no parsable rows")
	}

	headerIdx, header, err := locateHeaderRow(rows)
	if err != nil {
		return nil, err
	}

	colIdx := canonicalizeColumns(header)

	result := &ParseResult{}
	for _, row := range rows[headerIdx+1:] {
		txn, ok := parseRow(row, colIdx)
		if !ok {
			result.RowsDropped++
			continue
		}
		result.Transactions = append(result.Transactions, txn)
	}

	if len(result.Transactions) == 0 {
		return nil, apperr.New(apperr.IngestionParseFailed, "zero usable transaction rows after parsing")
	}

	if result.RowsDropped > 0 {
		result.Warnings = append(result.Warnings, fmt.Sprintf("%d rows dropped: missing valid date or amount", result.RowsDropped))
	}

	return result, nil
}

// decodeBestEffort tries utf-8, then latin-1/cp1252/iso-8859-1, returning
// the first that decodes a 1KiB prefix cleanly (spec.md §4.5 step 1).
func decodeBestEffort(raw []byte) (string, error) {
	prefixLen := len(raw)
	if prefixLen > 1024 {
		prefixLen = 1024
	}
	prefix := raw[:prefixLen]

	if utf8.Valid(prefix) {
		return string(raw), nil
	}

	candidates := []struct {
		name string
		enc  *charmap.Charmap
	}{
		{"windows-1252", charmap.Windows1252},
		{"iso-8859-1", charmap.ISO8859_1},
		{"latin-1", charmap.ISO8859_1},
	}

	for _, c := range candidates {
		decoded, _, err := transform.String(c.enc.NewDecoder(), string(raw))
		if err == nil {
			return decoded, nil
		}
	}

	return "", fmt.Errorf("no supported encoding decoded the input")
}

// locateHeaderRow scans the first 20 lines for the row that scores the
// most column-alias matches (spec.md §4.5 step 2).
func locateHeaderRow(rows [][]string) (int, []string, error) {
	limit := len(rows)
	if limit > 20 {
		limit = 20
	}

	bestIdx, bestScore := -1, 0
	for i := 0; i < limit; i++ {
		score := 0
		for _, cell := range rows[i] {
			for _, re := range headerColumnRegexes {
				if re.MatchString(cell) {
					score++
					break
				}
			}
		}
		if score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}

	if bestIdx == -1 || bestScore < 2 {
		return 0, nil, apperr.New(apperr.IngestionParseFailed, "could not locate a header row with date/amount/description columns")
	}

	return bestIdx, rows[bestIdx], nil
}

type columnIndex struct {
	date, description, amount, debit, credit, balance, reference int
}

func canonicalizeColumns(header []string) columnIndex {
	idx := columnIndex{-1, -1, -1, -1, -1, -1, -1}
	for i, cell := range header {
		for canon, re := range headerColumnRegexes {
			if re.MatchString(cell) {
				switch canon {
				case "date":
					idx.date = i
				case "description":
					idx.description = i
				case "amount":
					idx.amount = i
				case "debit":
					idx.debit = i
				case "credit":
					idx.credit = i
				case "balance":
					idx.balance = i
				case "reference":
					idx.reference = i
				}
			}
		}
	}
	return idx
}

func parseRow(row []string, idx columnIndex) (model.Transaction, bool) {
	date, ok := parseDate(cell(row, idx.date))
	if !ok {
		return model.Transaction{}, false
	}

	amount, kind, ok := resolveAmountAndKind(row, idx)
	if !ok {
		return model.Transaction{}, false
	}

	txn := model.Transaction{
		Date:        date,
		Description: strings.TrimSpace(cell(row, idx.description)),
		Amount:      amount,
		Kind:        kind,
		Reference:   strings.TrimSpace(cell(row, idx.reference)),
	}

	if balStr := cell(row, idx.balance); balStr != "" {
		if bal, err := parseAmount(balStr); err == nil {
			txn.Balance = &bal
		}
	}

	return txn, true
}

// resolveAmountAndKind applies the precedence from spec.md §4.5 step 5:
// debit column > 0 => debit; credit column > 0 => credit; else a signed
// amount column (negative => debit, positive => credit).
func resolveAmountAndKind(row []string, idx columnIndex) (float64, model.TransactionKind, bool) {
	if debitStr := cell(row, idx.debit); debitStr != "" {
		if v, err := parseAmount(debitStr); err == nil && v > 0 {
			return v, model.KindDebit, true
		}
	}
	if creditStr := cell(row, idx.credit); creditStr != "" {
		if v, err := parseAmount(creditStr); err == nil && v > 0 {
			return v, model.KindCredit, true
		}
	}
	if amtStr := cell(row, idx.amount); amtStr != "" {
		if v, err := parseAmount(amtStr); err == nil {
			if v < 0 {
				return -v, model.KindDebit, true
			}
			if v > 0 {
				return v, model.KindCredit, true
			}
		}
	}
	return 0, model.KindUnknown, false
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}

// parseAmount strips currency symbols and thousands separators, per
// spec.md §4.5 step 5.
func parseAmount(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty amount")
	}
	negative := strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")")
	cleaned := currencyStrip.ReplaceAllString(s, "")
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	if cleaned == "" || cleaned == "-" {
		return 0, fmt.Errorf("no numeric content")
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, err
	}
	if negative {
		v = -v
	}
	return v, nil
}

// parseDate tries each supported layout in order (spec.md §4.5 step 6),
// plus a permissive fallback.
func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	// Permissive fallback: try RFC3339 and a couple of common variants.
	fallbacks := []string{time.RFC3339, "2006-01-02T15:04:05", "1/2/2006", "2-1-2006"}
	for _, layout := range fallbacks {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// WriteCSV is the canonical writer used by the parser round-trip test
// (spec.md §8 property 6): Date,Description,Debit,Credit,Balance.
func WriteCSV(w io.Writer, txns []model.Transaction) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write([]string{"Date", "Description", "Debit", "Credit", "Balance"}); err != nil {
		return err
	}

	for _, t := range txns {
		debit, credit := "", ""
		switch t.Kind {
		case model.KindDebit:
			debit = strconv.FormatFloat(t.Amount, 'f', 2, 64)
		case model.KindCredit:
			credit = strconv.FormatFloat(t.Amount, 'f', 2, 64)
		}
		balance := ""
		if t.Balance != nil {
			balance = strconv.FormatFloat(*t.Balance, 'f', 2, 64)
		}
		row := []string{t.Date.Format("2006-01-02"), t.Description, debit, credit, balance}
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	return nil
}
