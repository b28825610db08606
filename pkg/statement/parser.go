package statement

import (
	"bytes"
	"regexp"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"finsight/pkg/apperr"
	"finsight/pkg/model"
)

// Row is one label/value line extracted from a workbook or from the
// vision PDF processor's structured JSON (C7) before statement
// assembly. Current/Prior follow the same two-period shape as the rest
// of the model.
type Row struct {
	Label   string
	Current *float64
	Prior   *float64
}

var sectionHeaderPatterns = struct {
	balanceSheet, incomeStatement, cashFlow *regexp.Regexp
}{
	balanceSheet:    regexp.MustCompile(`(?i)(balance sheet|statement of financial position)`),
	incomeStatement: regexp.MustCompile(`(?i)(income statement|statement of (comprehensive )?income|profit and loss)`),
	cashFlow:        regexp.MustCompile(`(?i)(cash flow statement|statement of cash flows)`),
}

// ParseExcel reads the first sheet of an XBRL-style workbook: a Data
// sheet of label/current/prior rows grouped under section headers, the
// same structure the teacher's calc.BalanceSheet field comments
// document row-by-row against V2_FSAP_Ford_2023.xlsx. Section headers
// in column A partition the sheet into balance sheet / income statement
// / cash flow blocks; everything outside a recognised section is
// ignored.
func ParseExcel(raw []byte, companyName string) (*model.FinancialStatement, error) {
	f, err := excelize.OpenReader(bytes.NewReader(raw))
	if err != nil {
		return nil, apperr.Wrap(apperr.IngestionParseFailed, "could not open workbook", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, apperr.New(apperr.IngestionParseFailed, "workbook contains no sheets")
	}

	rawRows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, apperr.Wrap(apperr.IngestionParseFailed, "could not read sheet rows", err)
	}

	var bsRows, isRows, cfRows []Row
	section := ""
	var currentPeriod, priorPeriod string

	for _, r := range rawRows {
		if len(r) == 0 {
			continue
		}
		label := strings.TrimSpace(r[0])
		if label == "" {
			continue
		}

		switch {
		case sectionHeaderPatterns.balanceSheet.MatchString(label):
			section = "balance_sheet"
			continue
		case sectionHeaderPatterns.incomeStatement.MatchString(label):
			section = "income_statement"
			continue
		case sectionHeaderPatterns.cashFlow.MatchString(label):
			section = "cash_flow"
			continue
		}

		// A header row inside a section carries period labels rather than
		// numbers in columns 2/3; capture them once.
		if currentPeriod == "" && len(r) >= 2 && !looksNumeric(r[1]) {
			if len(r) >= 2 {
				currentPeriod = strings.TrimSpace(r[1])
			}
			if len(r) >= 3 {
				priorPeriod = strings.TrimSpace(r[2])
			}
			continue
		}

		row := Row{Label: label}
		if len(r) >= 2 {
			row.Current = parseCell(r[1])
		}
		if len(r) >= 3 {
			row.Prior = parseCell(r[2])
		}
		if row.Current == nil && row.Prior == nil {
			continue
		}

		switch section {
		case "balance_sheet":
			bsRows = append(bsRows, row)
		case "income_statement":
			isRows = append(isRows, row)
		case "cash_flow":
			cfRows = append(cfRows, row)
		}
	}

	if len(bsRows) == 0 && len(isRows) == 0 && len(cfRows) == 0 {
		return nil, apperr.New(apperr.IngestionParseFailed, "no recognisable balance sheet, income statement, or cash flow rows found")
	}

	stmt := &model.FinancialStatement{
		CompanyInfo: model.CompanyInfo{
			Name:          companyName,
			CurrentPeriod: currentPeriod,
			PriorPeriod:   priorPeriod,
		},
		Periods:           model.Periods{Current: currentPeriod, Prior: priorPeriod},
		BalanceSheet:      BuildBalanceSheet(bsRows),
		IncomeStatement:   BuildIncomeStatement(isRows),
		CashFlowStatement: BuildCashFlowStatement(cfRows),
	}
	stmt.Ratios = ComputeRatios(stmt)

	return stmt, nil
}

func looksNumeric(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	_, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	return err == nil
}

func parseCell(s string) *float64 {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return nil
	}
	negative := strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")")
	s = strings.TrimPrefix(strings.TrimSuffix(s, ")"), "(")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	if negative {
		v = -v
	}
	return &v
}

// BuildBalanceSheet classifies rows into assets/liabilities/equity
// buckets by label, keyed by canonical line-item name. Rows whose label
// matches no total check and no line-item pattern are not kept.
func BuildBalanceSheet(rows []Row) model.BalanceSheet {
	var bs model.BalanceSheet
	bs.Assets.Current = map[string]model.Figure{}
	bs.Assets.NonCurrent = map[string]model.Figure{}
	bs.Liabilities.Current = map[string]model.Figure{}
	bs.Liabilities.NonCurrent = map[string]model.Figure{}

	var equityFigures []model.Figure

	for _, r := range rows {
		fig := model.NewFigure(r.Current, r.Prior)
		lower := strings.ToLower(r.Label)

		if strings.Contains(lower, "total assets") {
			bs.Assets.Total = fig
			continue
		}
		if strings.Contains(lower, "total liabilities") && !strings.Contains(lower, "and equity") && !strings.Contains(lower, "and shareholders") {
			bs.Liabilities.Total = fig
			continue
		}
		if strings.Contains(lower, "total equity") || strings.Contains(lower, "shareholders") && strings.Contains(lower, "total") {
			bs.Equity.Total = fig
			continue
		}

		if key, ok := classify(r.Label, assetCurrentPatterns); ok {
			bs.Assets.Current[key] = fig
			continue
		}
		if key, ok := classify(r.Label, assetNonCurrentPatterns); ok {
			bs.Assets.NonCurrent[key] = fig
			continue
		}
		if key, ok := classify(r.Label, liabilityCurrentPatterns); ok {
			bs.Liabilities.Current[key] = fig
			continue
		}
		if key, ok := classify(r.Label, liabilityNonCurrentPatterns); ok {
			bs.Liabilities.NonCurrent[key] = fig
			continue
		}
		if key, ok := classify(r.Label, equityPatterns); ok {
			equityFigures = append(equityFigures, fig)
			_ = key
			continue
		}
	}

	if bs.Equity.Total.Current == nil && len(equityFigures) > 0 {
		bs.Equity.Total = sumFigures(equityFigures)
	}

	return bs
}

// BuildIncomeStatement classifies rows into revenue/expense/profit
// buckets.
func BuildIncomeStatement(rows []Row) model.IncomeStatement {
	is := model.IncomeStatement{
		Revenue:       map[string]model.Figure{},
		Expenses:      map[string]model.Figure{},
		ProfitMetrics: map[string]model.Figure{},
	}

	for _, r := range rows {
		fig := model.NewFigure(r.Current, r.Prior)

		if key, ok := classify(r.Label, revenuePatterns); ok {
			is.Revenue[key] = fig
			continue
		}
		if key, ok := classify(r.Label, profitPatterns); ok {
			is.ProfitMetrics[key] = fig
			continue
		}
		if key, ok := classify(r.Label, expensePatterns); ok {
			is.Expenses[key] = fig
			continue
		}
	}

	return is
}

// BuildCashFlowStatement classifies rows into operating/investing/
// financing buckets.
func BuildCashFlowStatement(rows []Row) model.CashFlowStatement {
	cf := model.CashFlowStatement{
		Operating: map[string]model.Figure{},
		Investing: map[string]model.Figure{},
		Financing: map[string]model.Figure{},
	}

	for _, r := range rows {
		fig := model.NewFigure(r.Current, r.Prior)

		if key, ok := classify(r.Label, cashflowOperatingPatterns); ok {
			cf.Operating[key] = fig
			continue
		}
		if key, ok := classify(r.Label, cashflowInvestingPatterns); ok {
			cf.Investing[key] = fig
			continue
		}
		if key, ok := classify(r.Label, cashflowFinancingPatterns); ok {
			cf.Financing[key] = fig
			continue
		}
	}

	return cf
}

func sumFigures(figs []model.Figure) model.Figure {
	var curSum, priorSum float64
	var curOK, priorOK bool
	for _, f := range figs {
		if f.Current != nil {
			curSum += *f.Current
			curOK = true
		}
		if f.Prior != nil {
			priorSum += *f.Prior
			priorOK = true
		}
	}
	var cur, prior *float64
	if curOK {
		cur = &curSum
	}
	if priorOK {
		prior = &priorSum
	}
	return model.NewFigure(cur, prior)
}
