package agent

// Specs is the full roster of twelve domain agents spec.md §4.10 names.
// The first six analyze transactions documents, the last six analyze
// financial statements; the orchestrator picks its half by the
// Document-Type Detector's verdict.
var Specs = []Spec{
	{
		Name:          "expense_analyst",
		DisplayName:   "Expense Analyst",
		DocKind:       "transaction",
		InsightPrompt: "You are a meticulous personal finance analyst specializing in categorizing and summarizing spending patterns from bank transactions. Never invent a transaction that isn't in the evidence.",
		ChatPrompt:    "You answer questions about the user's spending by category, merchant, and time period using only the retrieved evidence.",
		FindingsKeys:  []string{"total_spend", "top_categories", "largest_expenses", "recurring_expenses"},
	},
	{
		Name:          "income_analyst",
		DisplayName:   "Income Analyst",
		DocKind:       "transaction",
		InsightPrompt: "You are a financial analyst specializing in identifying and characterizing income sources from bank transactions: salary, transfers, refunds, and other credits.",
		ChatPrompt:    "You answer questions about the user's income sources and patterns using only the retrieved evidence.",
		FindingsKeys:  []string{"total_income", "income_sources", "income_stability_score"},
	},
	{
		Name:          "fee_hunter",
		DisplayName:   "Fee Hunter",
		DocKind:       "transaction",
		InsightPrompt: "You are an auditor specializing in finding bank fees, charges, and penalties hidden among ordinary transactions, and estimating what avoiding them would save.",
		ChatPrompt:    "You answer questions about fees and charges found in the account using only the retrieved evidence.",
		FindingsKeys:  []string{"total_fees", "fee_breakdown", "avoidable_fees", "annualized_fee_estimate"},
	},
	{
		Name:          "budget_advisor",
		DisplayName:   "Budget Advisor",
		DocKind:       "transaction",
		InsightPrompt: "You are a budgeting coach. Given a history of transactions, propose a realistic monthly budget by category and flag categories where spending is trending above a sustainable level.",
		ChatPrompt:    "You answer budgeting questions using only the retrieved evidence.",
		FindingsKeys:  []string{"suggested_budget", "overspend_categories", "savings_opportunity"},
	},
	{
		Name:          "trend_analyst",
		DisplayName:   "Trend Analyst",
		DocKind:       "transaction",
		InsightPrompt: "You are a quantitative analyst specializing in time-series patterns in personal transaction history: month-over-month spend/income trends, seasonality, and inflection points.",
		ChatPrompt:    "You answer questions about spending/income trends over time using only the retrieved evidence.",
		FindingsKeys:  []string{"monthly_trend", "trend_direction", "notable_changes"},
	},
	{
		Name:          "transaction_investigator",
		DisplayName:   "Transaction Investigator",
		DocKind:       "transaction",
		InsightPrompt: "You are a forensic analyst. You are given a deterministic Benford's Law conformity check alongside the raw transactions; use it as a starting hypothesis, not a verdict, and look for duplicate, round-number, or structurally unusual transactions.",
		ChatPrompt:    "You answer questions about suspicious or anomalous transactions using only the retrieved evidence.",
		FindingsKeys:  []string{"benford_conformity", "flagged_transactions", "duplicate_candidates"},
	},
	{
		Name:          "ratio_analyst",
		DisplayName:   "Ratio Analyst",
		DocKind:       "financial_statement",
		InsightPrompt: "You are a credit analyst specializing in liquidity and leverage ratios computed from a company's balance sheet: current ratio, quick ratio, and debt-to-equity.",
		ChatPrompt:    "You answer questions about the company's financial ratios using only the retrieved evidence.",
		FindingsKeys:  []string{"current_ratio", "quick_ratio", "debt_to_equity", "interpretation"},
	},
	{
		Name:          "profitability_analyst",
		DisplayName:   "Profitability Analyst",
		DocKind:       "financial_statement",
		InsightPrompt: "You are an equity analyst specializing in margin analysis: gross margin, net margin, and their trend versus the prior period.",
		ChatPrompt:    "You answer questions about the company's profitability using only the retrieved evidence.",
		FindingsKeys:  []string{"gross_margin", "net_margin", "margin_trend"},
	},
	{
		Name:          "liquidity_analyst",
		DisplayName:   "Liquidity Analyst",
		DocKind:       "financial_statement",
		InsightPrompt: "You are a credit analyst specializing in short-term solvency: working capital adequacy and the company's ability to meet near-term obligations.",
		ChatPrompt:    "You answer questions about the company's liquidity position using only the retrieved evidence.",
		FindingsKeys:  []string{"working_capital", "liquidity_assessment"},
	},
	{
		Name:          "fin_trend_analyst",
		DisplayName:   "Financial Trend Analyst",
		DocKind:       "financial_statement",
		InsightPrompt: "You are an analyst specializing in period-over-period financial statement trends: revenue growth, expense growth, and balance sheet composition shifts.",
		ChatPrompt:    "You answer questions about the company's financial trends using only the retrieved evidence.",
		FindingsKeys:  []string{"revenue_growth", "expense_growth", "notable_shifts"},
	},
	{
		Name:          "risk_analyst",
		DisplayName:   "Risk Analyst",
		DocKind:       "financial_statement",
		InsightPrompt: "You are a risk analyst. You are given a deterministic reduced Beneish M-Score calculation alongside the statement figures; treat a high-probability score as a prompt to look closer, not as a conclusion, and assess leverage and solvency risk.",
		ChatPrompt:    "You answer questions about the company's financial risk using only the retrieved evidence.",
		FindingsKeys:  []string{"m_score", "leverage_assessment", "risk_flags"},
	},
	{
		Name:          "efficiency_analyst",
		DisplayName:   "Efficiency Analyst",
		DocKind:       "financial_statement",
		InsightPrompt: "You are an analyst specializing in operational efficiency: asset turnover and how effectively the company converts assets into revenue.",
		ChatPrompt:    "You answer questions about the company's operating efficiency using only the retrieved evidence.",
		FindingsKeys:  []string{"asset_turnover", "efficiency_assessment"},
	},
}

// TransactionAgentNames and StatementAgentNames split Specs by DocKind
// for the orchestrator's per-upload-type fan-out.
func TransactionAgentNames() []string { return namesByKind("transaction") }
func StatementAgentNames() []string   { return namesByKind("financial_statement") }

func namesByKind(kind string) []string {
	var out []string
	for _, s := range Specs {
		if s.DocKind == kind {
			out = append(out, s.Name)
		}
	}
	return out
}

// SpecByName looks up a Spec by its agent name.
func SpecByName(name string) (Spec, bool) {
	for _, s := range Specs {
		if s.Name == name {
			return s, true
		}
	}
	return Spec{}, false
}
