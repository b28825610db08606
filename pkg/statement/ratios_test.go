package statement

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finsight/pkg/model"
)

func f(v float64) *float64 { return &v }

func TestComputeRatiosHappyPath(t *testing.T) {
	stmt := &model.FinancialStatement{}
	stmt.BalanceSheet.Assets.Current = map[string]model.Figure{
		"cash":        model.NewFigure(f(100), f(80)),
		"inventories": model.NewFigure(f(50), f(40)),
	}
	stmt.BalanceSheet.Liabilities.Current = map[string]model.Figure{
		"accounts_payable": model.NewFigure(f(75), f(60)),
	}
	stmt.BalanceSheet.Assets.Total = model.NewFigure(f(1000), f(900))
	stmt.BalanceSheet.Liabilities.Total = model.NewFigure(f(400), f(350))
	stmt.BalanceSheet.Equity.Total = model.NewFigure(f(600), f(550))
	stmt.IncomeStatement.Revenue = map[string]model.Figure{"revenue": model.NewFigure(f(2000), f(1800))}
	stmt.IncomeStatement.ProfitMetrics = map[string]model.Figure{
		"net_income":   model.NewFigure(f(200), f(150)),
		"gross_profit": model.NewFigure(f(800), f(700)),
	}

	r := ComputeRatios(stmt)

	require.NotNil(t, r.CurrentRatio)
	assert.InDelta(t, 150.0/75.0, *r.CurrentRatio, 1e-9)

	require.NotNil(t, r.QuickRatio)
	assert.InDelta(t, 100.0/75.0, *r.QuickRatio, 1e-9)

	require.NotNil(t, r.DebtToEquity)
	assert.InDelta(t, 400.0/600.0, *r.DebtToEquity, 1e-9)

	require.NotNil(t, r.NetMargin)
	assert.InDelta(t, 200.0/2000.0, *r.NetMargin, 1e-9)

	require.NotNil(t, r.ROE)
	assert.InDelta(t, 200.0/600.0, *r.ROE, 1e-9)
}

func TestComputeRatiosMissingDataYieldsNil(t *testing.T) {
	stmt := &model.FinancialStatement{}
	r := ComputeRatios(stmt)

	assert.Nil(t, r.CurrentRatio)
	assert.Nil(t, r.QuickRatio)
	assert.Nil(t, r.DebtToEquity)
	assert.Nil(t, r.GrossMargin)
	assert.Nil(t, r.NetMargin)
	assert.Nil(t, r.ROA)
	assert.Nil(t, r.ROE)
	assert.Nil(t, r.AssetTurnover)
}

func TestBuildBalanceSheetClassifiesLabels(t *testing.T) {
	rows := []Row{
		{Label: "Cash and cash equivalents", Current: f(500), Prior: f(400)},
		{Label: "Accounts receivable", Current: f(300), Prior: f(250)},
		{Label: "Total assets", Current: f(5000), Prior: f(4500)},
		{Label: "Accounts payable", Current: f(200), Prior: f(180)},
		{Label: "Total liabilities", Current: f(2000), Prior: f(1800)},
		{Label: "Total shareholders equity", Current: f(3000), Prior: f(2700)},
	}

	bs := BuildBalanceSheet(rows)

	require.Contains(t, bs.Assets.Current, "cash")
	v, ok := bs.Assets.Current["cash"].Val()
	require.True(t, ok)
	assert.Equal(t, 500.0, v)

	total, ok := bs.Assets.Total.Val()
	require.True(t, ok)
	assert.Equal(t, 5000.0, total)

	eq, ok := bs.Equity.Total.Val()
	require.True(t, ok)
	assert.Equal(t, 3000.0, eq)
}
