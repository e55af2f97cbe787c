package service

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/safar/rain-market/internal/models"
	"github.com/safar/rain-market/internal/store"
)

const maxEarningsLines = 5000

type EarningsReport struct {
	SupplierID      int64                 `json:"supplier_id"`
	Currency        string                `json:"currency"`
	Lines           []models.EarningsLine `json:"lines"`
	TotalGross      decimal.Decimal       `json:"total_gross"`
	TotalCommission decimal.Decimal       `json:"total_commission"`
	TotalNet        decimal.Decimal       `json:"total_net"`

	// LineCount counts every line in range. Truncated is set when Lines
	// holds fewer; the totals always cover all of them.
	LineCount int  `json:"line_count"`
	Truncated bool `json:"truncated"`
}

type ReportService struct {
	store     Store
	logger    *zap.Logger
	currency  string
	lineLimit int
}

func NewReportService(s Store, logger *zap.Logger, currency string) *ReportService {
	return &ReportService{store: s, logger: logger, currency: currency, lineLimit: maxEarningsLines}
}

// Earnings builds the supplier's settlement report over [from, to).
// Either bound may be nil.
func (s *ReportService) Earnings(ctx context.Context, supplierID int64, from, to *time.Time) (*EarningsReport, error) {
	if err := requireRole(ctx, s.store, s.logger, supplierID, models.RoleSupplier); err != nil {
		return nil, err
	}
	if from != nil && to != nil && !from.Before(*to) {
		return nil, invalid("from", "must be before to")
	}

	filter := store.EarningsFilter{
		SupplierID: supplierID,
		From:       from,
		To:         to,
		Limit:      s.lineLimit,
	}

	lines, err := s.store.SupplierEarnings(ctx, filter)
	if err != nil {
		return nil, err
	}

	totals, err := s.store.SupplierEarningsTotals(ctx, filter)
	if err != nil {
		return nil, err
	}

	report := &EarningsReport{
		SupplierID:      supplierID,
		Currency:        s.currency,
		Lines:           lines,
		TotalGross:      totals.Gross,
		TotalCommission: totals.Commission,
		TotalNet:        totals.Net,
		LineCount:       totals.Lines,
		Truncated:       totals.Lines > len(lines),
	}

	if report.Truncated {
		s.logger.Warn("Earnings report truncated",
			zap.Int64("supplier_id", supplierID),
			zap.Int("lines", len(lines)),
			zap.Int("line_count", totals.Lines))
	}

	return report, nil
}

var earningsCSVHeader = []string{
	"order_id", "order_date", "product", "quantity", "unit_price",
	"line_total", "commission_rate", "commission_amount", "net_to_supplier",
}

// WriteEarningsCSV writes one row per line followed by a totals row.
func WriteEarningsCSV(w io.Writer, report *EarningsReport) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(earningsCSVHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for _, l := range report.Lines {
		row := []string{
			strconv.FormatInt(l.OrderID, 10),
			l.OrderDate.UTC().Format(time.RFC3339),
			l.ProductName,
			strconv.Itoa(l.Quantity),
			l.UnitPrice.StringFixed(2),
			l.LineTotal.StringFixed(2),
			l.CommissionRate.StringFixed(4),
			l.CommissionAmount.StringFixed(2),
			l.NetToSupplier.StringFixed(2),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}

	totals := []string{
		"TOTAL", "", "", "", "",
		report.TotalGross.StringFixed(2),
		"",
		report.TotalCommission.StringFixed(2),
		report.TotalNet.StringFixed(2),
	}
	if err := cw.Write(totals); err != nil {
		return fmt.Errorf("write csv totals: %w", err)
	}

	cw.Flush()
	return cw.Error()
}
