package statement

import "finsight/pkg/model"

// ComputeRatios derives the standard ratio set from a statement's
// extracted figures. Every ratio is nil rather than 0 when its divisor
// is missing or zero, matching the teacher's calc package convention of
// never fabricating a number from absent data.
func ComputeRatios(stmt *model.FinancialStatement) model.Ratios {
	var r model.Ratios

	totalCurrentAssets, hasCA := sumMap(stmt.BalanceSheet.Assets.Current)
	totalCurrentLiabilities, hasCL := sumMap(stmt.BalanceSheet.Liabilities.Current)
	inventories, hasInv := figureVal(stmt.BalanceSheet.Assets.Current["inventories"])
	totalAssets, hasTA := stmt.BalanceSheet.Assets.Total.Val()
	totalEquity, hasEq := stmt.BalanceSheet.Equity.Total.Val()
	totalLiabilities, hasTL := stmt.BalanceSheet.Liabilities.Total.Val()

	revenue, hasRev := sumMap(stmt.IncomeStatement.Revenue)
	netIncome, hasNI := figureVal(stmt.IncomeStatement.ProfitMetrics["net_income"])
	grossProfit, hasGP := figureVal(stmt.IncomeStatement.ProfitMetrics["gross_profit"])

	if hasCA && hasCL {
		r.CurrentRatio = divide(totalCurrentAssets, totalCurrentLiabilities)
	}
	if hasCA && hasCL {
		quickAssets := totalCurrentAssets
		if hasInv {
			quickAssets -= inventories
		}
		r.QuickRatio = divide(quickAssets, totalCurrentLiabilities)
	}
	if hasTL && hasEq {
		r.DebtToEquity = divide(totalLiabilities, totalEquity)
	}
	if hasGP && hasRev {
		r.GrossMargin = divide(grossProfit, revenue)
	}
	if hasNI && hasRev {
		r.NetMargin = divide(netIncome, revenue)
	}
	if hasNI && hasTA {
		r.ROA = divide(netIncome, totalAssets)
	}
	if hasNI && hasEq {
		r.ROE = divide(netIncome, totalEquity)
	}
	if hasRev && hasTA {
		r.AssetTurnover = divide(revenue, totalAssets)
	}

	return r
}

func sumMap(m map[string]model.Figure) (float64, bool) {
	var sum float64
	found := false
	for _, f := range m {
		if v, ok := f.Val(); ok {
			sum += v
			found = true
		}
	}
	return sum, found
}

func figureVal(f model.Figure) (float64, bool) {
	return f.Val()
}

// divide returns nil instead of dividing by zero, per spec.md's
// null-over-zero rule for ratios that cannot be computed.
func divide(numerator, denominator float64) *float64 {
	if denominator == 0 {
		return nil
	}
	v := numerator / denominator
	return &v
}
