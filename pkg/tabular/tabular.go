package tabular

import (
	"path/filepath"
	"strings"

	"finsight/pkg/apperr"
)

// Parse dispatches to ParseCSV or ParseExcel based on filename extension.
func Parse(filename string, raw []byte) (*ParseResult, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv", ".txt":
		return ParseCSV(raw)
	case ".xlsx", ".xls":
		return ParseExcel(raw)
	default:
		return nil, apperr.New(apperr.IngestionParseFailed, "unsupported file extension: "+filepath.Ext(filename))
	}
}
