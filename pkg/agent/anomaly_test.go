package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finsight/pkg/model"
)

func TestAnalyzeBenfordsLawConformingData(t *testing.T) {
	// Roughly Benford-conforming leading digits.
	amounts := []float64{10, 11, 12, 100, 120, 150, 200, 250, 13, 14, 15, 19, 21, 31, 41}
	result := AnalyzeBenfordsLaw(amounts)
	assert.Greater(t, result.TotalCount, 0)
	assert.Contains(t, []string{"Low Risk", "Medium Risk", "High Risk"}, result.Level)
}

func TestAnalyzeBenfordsLawInsufficientData(t *testing.T) {
	result := AnalyzeBenfordsLaw([]float64{0.5, 0.2})
	assert.Equal(t, "Insufficient Data", result.Level)
}

func fig(v float64) *float64 { return &v }

func TestCalculateMScoreNilWithoutData(t *testing.T) {
	assert.Nil(t, CalculateMScore(nil))
	assert.Nil(t, CalculateMScore(&model.FinancialStatement{}))
}

func TestCalculateMScoreComputesFromStatement(t *testing.T) {
	stmt := &model.FinancialStatement{}
	stmt.BalanceSheet.Assets.Current = map[string]model.Figure{
		"accounts_receivable": model.NewFigure(fig(100), fig(80)),
	}
	stmt.BalanceSheet.Assets.NonCurrent = map[string]model.Figure{
		"ppe_net": model.NewFigure(fig(200), fig(190)),
	}
	stmt.BalanceSheet.Assets.Total = model.NewFigure(fig(1000), fig(900))
	stmt.IncomeStatement.Revenue = map[string]model.Figure{
		"revenue": model.NewFigure(fig(2000), fig(1800)),
	}
	stmt.IncomeStatement.ProfitMetrics = map[string]model.Figure{
		"gross_profit": model.NewFigure(fig(800), fig(700)),
		"net_income":   model.NewFigure(fig(150), fig(120)),
	}

	result := CalculateMScore(stmt)
	require.NotNil(t, result)
	assert.Contains(t, []string{"Low Probability", "High Probability"}, result.Risk)
}

func TestFormatFindingsSchema(t *testing.T) {
	out := formatFindingsSchema([]string{"a", "b"})
	assert.Equal(t, `"a":null,"b":null`, out)
}
