package tabular

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"

	"finsight/pkg/apperr"
)

// ParseExcel parses an .xls/.xlsx workbook's first sheet into
// transactions, reusing the same header-detection and row-parsing logic
// as ParseCSV. excelize is a new ecosystem dependency: no corpus repo
// ships a working (non-mocked) Excel reader, and the standard library
// cannot decode the zipped-XML workbook format (see DESIGN.md).
func ParseExcel(raw []byte) (*ParseResult, error) {
	f, err := excelize.OpenReader(bytes.NewReader(raw))
	if err != nil {
		return nil, apperr.Wrap(apperr.IngestionParseFailed, "could not open workbook", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, apperr.New(apperr.IngestionParseFailed, "workbook contains no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, apperr.Wrap(apperr.IngestionParseFailed, "could not read sheet rows", err)
	}
	if len(rows) == 0 {
		return nil, apperr.New(apperr.IngestionParseFailed, "sheet contains no rows")
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
