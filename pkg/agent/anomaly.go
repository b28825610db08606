package agent

import (
	"math"
	"strconv"

	"finsight/pkg/model"
)

// benfordDistribution is the expected leading-digit frequency under
// Benford's Law, adapted verbatim from the teacher's
// pkg/core/calc/benford.go BenfordDistribution table.
var benfordDistribution = map[int]float64{
	1: 0.30103, 2: 0.17609, 3: 0.12494, 4: 0.09691, 5: 0.07918,
	6: 0.06695, 7: 0.05799, 8: 0.05115, 9: 0.04576,
}

// BenfordResult is the leading-digit conformity verdict for a set of
// transaction amounts, the same shape and MAD thresholds as the
// teacher's calc.BenfordResult/AnalyzeBenfordsLaw.
type BenfordResult struct {
	DigitFrequencies map[int]float64 `json:"digit_frequencies"`
	TotalCount       int             `json:"total_count"`
	MAD              float64         `json:"mad"`
	Flagged          bool            `json:"flagged"`
	Level            string          `json:"level"`
}

// AnalyzeBenfordsLaw runs first-digit analysis over transaction amounts,
// feeding the TransactionInvestigator agent a deterministic pre-check
// before it asks the LLM to interpret the result. Adapted from the
// teacher's calc.AnalyzeBenfordsLaw; this supplements spec.md's literal
// scope because the teacher already implements exactly this check.
func AnalyzeBenfordsLaw(amounts []float64) BenfordResult {
	counts := make(map[int]int)
	processed := 0

	for _, v := range amounts {
		vAbs := math.Abs(v)
		if vAbs < 1.0 {
			continue
		}
		s := strconv.FormatFloat(vAbs, 'f', -1, 64)
		leading := -1
		for _, c := range s {
			if c >= '1' && c <= '9' {
				leading = int(c - '0')
				break
			}
		}
		if leading != -1 {
			counts[leading]++
			processed++
		}
	}

	if processed == 0 {
		return BenfordResult{Level: "Insufficient Data"}
	}

	freqs := make(map[int]float64)
	var sumDiff float64
	for d := 1; d <= 9; d++ {
		actual := float64(counts[d]) / float64(processed)
		freqs[d] = actual
		sumDiff += math.Abs(actual - benfordDistribution[d])
	}
	mad := sumDiff / 9.0

	level := "Low Risk"
	flagged := false
	switch {
	case mad > 0.015:
		level, flagged = "High Risk", true
	case mad > 0.010:
		level = "Medium Risk"
	}

	return BenfordResult{
		DigitFrequencies: freqs,
		TotalCount:       processed,
		MAD:              mad,
		Flagged:          flagged,
		Level:            level,
	}
}

// MScoreResult mirrors the teacher's calc.BeneishMScoreResult shape,
// recomputed against our own FinancialStatement model instead of the
// teacher's edgar.FSAPDataResponse (see DESIGN.md: the teacher's
// version is grounded on a different, heavier extraction type than
// ours, so the formula is kept and the inputs are re-derived from
// model.FinancialStatement figures).
type MScoreResult struct {
	DSRI  float64 `json:"dsri"`
	GMI   float64 `json:"gmi"`
	AQI   float64 `json:"aqi"`
	SGI   float64 `json:"sgi"`
	TATA  float64 `json:"tata"`
	Score float64 `json:"score"`
	Risk  string  `json:"risk"`
}

// CalculateMScore computes a reduced Beneish M-Score (DSRI, GMI, AQI,
// SGI, TATA — the variables derivable from a two-period balance sheet
// and income statement without a cash-flow-derived depreciation split)
// using the original 1999 paper's coefficients, same as the teacher's
// CalculateBeneishMScore.
func CalculateMScore(stmt *model.FinancialStatement) *MScoreResult {
	if stmt == nil {
		return nil
	}

	receivablesCurr, okRC := stmt.BalanceSheet.Assets.Current["accounts_receivable"].Val()
	receivablesPrior, _ := priorVal(stmt.BalanceSheet.Assets.Current["accounts_receivable"])
	salesCurr, okSC := sumMapCurrent(stmt.IncomeStatement.Revenue)
	salesPrior, _ := sumMapPrior(stmt.IncomeStatement.Revenue)
	gpCurr, _ := stmt.IncomeStatement.ProfitMetrics["gross_profit"].Val()
	gpPrior, _ := priorVal(stmt.IncomeStatement.ProfitMetrics["gross_profit"])
	totalAssetsCurr, okTA := stmt.BalanceSheet.Assets.Total.Val()
	totalAssetsPrior, _ := priorVal(stmt.BalanceSheet.Assets.Total)
	currentAssetsCurr, _ := sumMapCurrent(stmt.BalanceSheet.Assets.Current)
	currentAssetsPrior, _ := sumMapPrior(stmt.BalanceSheet.Assets.Current)
	ppeCurr, _ := stmt.BalanceSheet.Assets.NonCurrent["ppe_net"].Val()
	ppePrior, _ := priorVal(stmt.BalanceSheet.Assets.NonCurrent["ppe_net"])
	netIncomeCurr, _ := stmt.IncomeStatement.ProfitMetrics["net_income"].Val()
	cashFromOpsCurr, _ := figureValFromMap(stmt.CashFlowStatement.Operating, "cash_from_operations")

	if !okRC || !okSC || !okTA {
		return nil
	}

	dsri := safeDiv(safeDiv(receivablesCurr, salesCurr), safeDiv(receivablesPrior, salesPrior))
	gmi := safeDiv(safeDiv(gpPrior, salesPrior), safeDiv(gpCurr, salesCurr))
	softCurr := 1 - safeDiv(currentAssetsCurr+ppeCurr, totalAssetsCurr)
	softPrior := 1 - safeDiv(currentAssetsPrior+ppePrior, totalAssetsPrior)
	aqi := safeDiv(softCurr, softPrior)
	sgi := safeDiv(salesCurr, salesPrior)
	tata := safeDiv(netIncomeCurr-cashFromOpsCurr, totalAssetsCurr)

	score := -4.84 + 0.92*dsri + 0.528*gmi + 0.404*aqi + 0.892*sgi + 4.679*tata

	risk := "Low Probability"
	if score > -1.78 {
		risk = "High Probability"
	}

	return &MScoreResult{DSRI: dsri, GMI: gmi, AQI: aqi, SGI: sgi, TATA: tata, Score: score, Risk: risk}
}

func priorVal(f model.Figure) (float64, bool) {
	if f.Prior == nil {
		return 0, false
	}
	return *f.Prior, true
}

func sumMapCurrent(m map[string]model.Figure) (float64, bool) {
	var sum float64
	found := false
	for _, f := range m {
		if f.Current != nil {
			sum += *f.Current
			found = true
		}
	}
	return sum, found
}

func sumMapPrior(m map[string]model.Figure) (float64, bool) {
	var sum float64
	found := false
	for _, f := range m {
		if f.Prior != nil {
			sum += *f.Prior
			found = true
		}
	}
	return sum, found
}

func figureValFromMap(m map[string]model.Figure, key string) (float64, bool) {
	f, ok := m[key]
	if !ok {
		return 0, false
	}
	return f.Val()
}

func safeDiv(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}
