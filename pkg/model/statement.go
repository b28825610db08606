package model

// Figure is a single financial-statement line item: a current-period and
// a prior-period value, either of which may be absent. Absence is always
// represented as a nil pointer, never as a zero value — spec.md §3 requires
// that missing data is null, never 0.
type Figure struct {
	Current *float64 `json:"current"`
	Prior   *float64 `json:"prior"`
}

func NewFigure(current, prior *float64) Figure {
	return Figure{Current: current, Prior: prior}
}

// Val returns the underlying float, or 0 with ok=false when absent.
func (f Figure) Val() (float64, bool) {
	if f.Current == nil {
		return 0, false
	}
	return *f.Current, true
}

// CompanyInfo identifies the reporting entity and the periods covered.
type CompanyInfo struct {
	Name          string `json:"name"`
	CurrentPeriod string `json:"current_period"`
	PriorPeriod   string `json:"prior_period"`
}

type Periods struct {
	Current string `json:"current"`
	Prior   string `json:"prior"`
}

// BalanceSheet mirrors spec.md §3: assets/liabilities each split into
// current and non-current, with a total; equity carries only a total.
type BalanceSheet struct {
	Assets struct {
		Current    map[string]Figure `json:"current"`
		NonCurrent map[string]Figure `json:"non_current"`
		Total      Figure            `json:"total"`
	} `json:"assets"`
	Liabilities struct {
		Current    map[string]Figure `json:"current"`
		NonCurrent map[string]Figure `json:"non_current"`
		Total      Figure            `json:"total"`
	} `json:"liabilities"`
	Equity struct {
		Total Figure `json:"total"`
	} `json:"equity"`
}

// IncomeStatement holds revenue, expense, and profitability line items.
type IncomeStatement struct {
	Revenue       map[string]Figure `json:"revenue"`
	Expenses      map[string]Figure `json:"expenses"`
	ProfitMetrics map[string]Figure `json:"profit_metrics"` // gross_profit, operating_income, net_income, ebitda_est, ...
}

// CashFlowStatement splits activity into the three standard sections.
type CashFlowStatement struct {
	Operating map[string]Figure `json:"operating"`
	Investing map[string]Figure `json:"investing"`
	Financing map[string]Figure `json:"financing"`
}

// Ratios holds both extracted and derived ratios. A nil value means the
// ratio could not be computed (divisor was zero or missing), never 0.
type Ratios struct {
	CurrentRatio   *float64 `json:"current_ratio"`
	QuickRatio     *float64 `json:"quick_ratio"`
	DebtToEquity   *float64 `json:"debt_to_equity"`
	GrossMargin    *float64 `json:"gross_margin"`
	NetMargin      *float64 `json:"net_margin"`
	ROA            *float64 `json:"roa"`
	ROE            *float64 `json:"roe"`
	AssetTurnover  *float64 `json:"asset_turnover"`
}

// FinancialStatement is a complete snapshot of a company's books, as
// produced by the Financial-Statement Parser (C6), from either an
// XBRL-style Excel source or vision-model JSON (C7). Immutable once
// built; destroyed only with its owning Upload.
type FinancialStatement struct {
	CompanyInfo       CompanyInfo         `json:"company_info"`
	Periods           Periods             `json:"periods"`
	BalanceSheet      BalanceSheet        `json:"balance_sheet"`
	IncomeStatement   IncomeStatement     `json:"income_statement"`
	CashFlowStatement CashFlowStatement   `json:"cash_flow_statement"`
	Ratios            Ratios              `json:"ratios"`
}
