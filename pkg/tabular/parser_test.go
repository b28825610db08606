package tabular

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finsight/pkg/model"
)

func TestParseCSVBasic(t *testing.T) {
	csv := "Date,Description,Debit,Credit,Balance\n" +
		"2024-01-05,Grocery Store,120.50,,4879.50\n" +
		"2024-01-06,Salary,,5000.00,9879.50\n" +
		"2024-01-07,ATM Withdrawal,200.00,,9679.50\n"

	result, err := ParseCSV([]byte(csv))
	require.NoError(t, err)
	require.Len(t, result.Transactions, 3)

	assert.Equal(t, model.KindDebit, result.Transactions[0].Kind)
	assert.Equal(t, 120.50, result.Transactions[0].Amount)
	assert.Equal(t, model.KindCredit, result.Transactions[1].Kind)
	assert.Equal(t, 5000.00, result.Transactions[1].Amount)
}

func TestParseCSVSignedAmountColumn(t *testing.T) {
	csv := "Transaction Date,Particulars,Amount\n" +
		"05/01/2024,Coffee Shop,-15.75\n" +
		"06/01/2024,Refund,42.00\n"

	result, err := ParseCSV([]byte(csv))
	require.NoError(t, err)
	require.Len(t, result.Transactions, 2)

	assert.Equal(t, model.KindDebit, result.Transactions[0].Kind)
	assert.Equal(t, 15.75, result.Transactions[0].Amount)
	assert.Equal(t, model.KindCredit, result.Transactions[1].Kind)
}

func TestParseCSVDropsFooterRow(t *testing.T) {
	csv := "Date,Description,Amount\n" +
		"2024-01-05,Item A,10.00\n" +
		"Total,,10.00\n"

	result, err := ParseCSV([]byte(csv))
	require.NoError(t, err)
	require.Len(t, result.Transactions, 1)
	assert.Equal(t, 1, result.RowsDropped)
	assert.NotEmpty(t, result.Warnings)
}

func TestParseCSVNoHeaderFails(t *testing.T) {
	csv := "foo,bar,baz\n1,2,3\n"
	_, err := ParseCSV([]byte(csv))
	assert.Error(t, err)
}

func TestParseCSVCurrencySymbolsAndParens(t *testing.T) {
	csv := "Date,Description,Amount\n" +
		"2024-02-01,Purchase,\"(1,250.00)\"\n" +
		"2024-02-02,Deposit,\"$3,000.00\"\n"

	result, err := ParseCSV([]byte(csv))
	require.NoError(t, err)
	require.Len(t, result.Transactions, 2)
	assert.Equal(t, model.KindDebit, result.Transactions[0].Kind)
	assert.Equal(t, 1250.00, result.Transactions[0].Amount)
	assert.Equal(t, model.KindCredit, result.Transactions[1].Kind)
	assert.Equal(t, 3000.00, result.Transactions[1].Amount)
}

func TestRoundTripPreservesAmountsAndDates(t *testing.T) {
	original := []model.Transaction{
		{Date: mustDate("2024-03-01"), Description: "Rent", Amount: 1500, Kind: model.KindDebit},
		{Date: mustDate("2024-03-02"), Description: "Paycheck", Amount: 4200, Kind: model.KindCredit},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, original))

	result, err := ParseCSV(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, result.Transactions, 2)

	for i, txn := range result.Transactions {
		assert.Equal(t, original[i].Amount, txn.Amount)
		assert.Equal(t, original[i].Kind, txn.Kind)
		assert.True(t, original[i].Date.Equal(txn.Date))
	}
}

func TestParseDispatchUnsupportedExtension(t *testing.T) {
	_, err := Parse("statement.pdf", []byte("irrelevant"))
	assert.Error(t, err)
}

func mustDate(s string) time.Time {
	parsed, ok := parseDate(s)
	if !ok {
		panic("bad test date: " + s)
	}
	return parsed
}
