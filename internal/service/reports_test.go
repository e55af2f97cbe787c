package service

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safar/rain-market/internal/models"
)

func TestEarningsReport(t *testing.T) {
	f := newFixture(t)
	f.placeOrder(t, f.buyer.ID, 1)
	f.placeOrder(t, f.buyer.ID, 2)
	cancelled := f.placeOrder(t, f.buyer.ID, 3)
	_, _, err := f.orders.TransitionOrder(t.Context(), cancelled.ID, f.buyer.ID, models.ActionCancel)
	require.NoError(t, err)

	report, err := f.reports.Earnings(t.Context(), f.supplier.ID, nil, nil)
	require.NoError(t, err)

	require.Len(t, report.Lines, 2)
	assert.False(t, report.Truncated)
	assert.Equal(t, "153", report.TotalGross.String())
	assert.Equal(t, "3.06", report.TotalCommission.String())
	assert.Equal(t, "149.94", report.TotalNet.String())
	assert.Equal(t, "Rain jacket", report.Lines[0].ProductName)
}

func TestEarningsTotalsCoverTruncatedLines(t *testing.T) {
	f := newFixture(t)
	f.reports.lineLimit = 2
	for _, qty := range []int{1, 2, 3} {
		f.placeOrder(t, f.buyer.ID, qty)
	}

	report, err := f.reports.Earnings(t.Context(), f.supplier.ID, nil, nil)
	require.NoError(t, err)

	require.Len(t, report.Lines, 2)
	assert.True(t, report.Truncated)
	assert.Equal(t, 3, report.LineCount)
	assert.Equal(t, "306", report.TotalGross.String())
	assert.Equal(t, "6.12", report.TotalCommission.String())
	assert.Equal(t, "299.88", report.TotalNet.String())

	var buf bytes.Buffer
	require.NoError(t, WriteEarningsCSV(&buf, report))
	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "299.88", rows[3][8])
}

func TestEarningsReportAccessAndRange(t *testing.T) {
	f := newFixture(t)

	_, err := f.reports.Earnings(t.Context(), f.buyer.ID, nil, nil)
	assert.ErrorIs(t, err, ErrForbidden)

	now := time.Now()
	earlier := now.Add(-time.Hour)
	_, err = f.reports.Earnings(t.Context(), f.supplier.ID, &now, &earlier)
	assert.True(t, IsValidationError(err))
}

func TestWriteEarningsCSV(t *testing.T) {
	f := newFixture(t)
	f.placeOrder(t, f.buyer.ID, 1)

	report, err := f.reports.Earnings(t.Context(), f.supplier.ID, nil, nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteEarningsCSV(&buf, report))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, earningsCSVHeader, rows[0])
	assert.Equal(t, []string{"51.00", "0.0200", "1.02", "49.98"}, rows[1][5:])
	assert.Equal(t, "TOTAL", rows[2][0])
	assert.Equal(t, "49.98", rows[2][8])
}
