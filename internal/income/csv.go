package income

import (
	"fmt"
	"strings"

	"shopledger/backend/internal/domain"
)

// csvHeader is a fixed export contract; downstream spreadsheets key on these
// column names.
const csvHeader = "Invoice,Amount,Overdue,OldPaidOverdue,Method,PaymentDate,InvoiceTotal"

// SelectDay picks the rows exported for a single day, optionally restricted
// to one payment-method group. GroupAll keeps every method.
func SelectDay(rows []domain.MergedRow, day string, group Group) []domain.MergedRow {
	out := make([]domain.MergedRow, 0, len(rows))
	for _, r := range rows {
		if r.PaymentDate != day {
			continue
		}
		if group != GroupAll && Classify(r.PaymentMethod) != group {
			continue
		}
		out = append(out, r)
	}
	return out
}

// RowsToCSV renders export rows as CSV text. Text columns are always
// double-quoted with embedded quotes doubled; numeric columns render with two
// decimals and no quoting. The per-row OldPaidOverdue column carries the full
// payment amount when the payment settles an invoice from an earlier day, and
// zero otherwise.
func RowsToCSV(rows []domain.MergedRow) string {
	lines := make([]string, 0, len(rows)+1)
	lines = append(lines, csvHeader)
	for _, r := range rows {
		oldPaid := 0.0
		if r.InvoiceCreatedAt != "" && r.InvoiceCreatedAt < r.PaymentDate {
			oldPaid = r.Amount
		}
		lines = append(lines, strings.Join([]string{
			csvQuote(r.InvoiceID),
			fmt.Sprintf("%.2f", r.Amount),
			fmt.Sprintf("%.2f", r.OverdueAmount),
			fmt.Sprintf("%.2f", oldPaid),
			csvQuote(r.PaymentMethod),
			csvQuote(r.PaymentDate),
			fmt.Sprintf("%.2f", r.InvoiceTotal),
		}, ","))
	}
	return strings.Join(lines, "\n")
}

// CSVFilename names the download for a given day's export.
func CSVFilename(day string) string {
	return "daily_" + day + ".csv"
}

func csvQuote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
