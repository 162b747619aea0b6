// Package income implements the daily income reconciliation pipeline: it
// merges explicit payment records with payments implied by invoices that were
// partly paid at creation, buckets the result by calendar day and reconciles
// each day's collections against the invoices issued that day.
//
// Every function is a pure function of its inputs. Callers recompute the whole
// pipeline from fresh snapshots whenever invoices, payments or the selected
// date range change; nothing here is cached or mutated in place.
package income

import (
	"math"
	"sort"
	"strings"
	"time"

	"shopledger/backend/internal/domain"
)

// SyntheticIDPrefix marks payment records derived from an invoice's
// paid_amount. The prefix keeps the derived id space disjoint from explicit
// payment ids.
const SyntheticIDPrefix = "invpay-"

// timestampLayouts are tried in order when a value is not already a bare
// YYYY-MM-DD day string.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// Day canonicalizes a raw date value into a YYYY-MM-DD day key. A value that
// already starts with a day string is returned verbatim (no timezone
// conversion); anything else is parsed as a timestamp and rendered as the UTC
// calendar date. Empty or unparseable input yields "".
func Day(value string) string {
	if value == "" {
		return ""
	}
	if len(value) >= 10 && isDayPrefix(value[:10]) {
		return value[:10]
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts.UTC().Format("2006-01-02")
		}
	}
	return ""
}

func isDayPrefix(s string) bool {
	if len(s) != 10 || s[4] != '-' || s[7] != '-' {
		return false
	}
	for i, c := range s {
		if i == 4 || i == 7 {
			continue
		}
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// Group is a coarse payment-method category used for per-day filtering.
type Group string

const (
	GroupAll   Group = "ALL"
	GroupUPI   Group = "UPI"
	GroupCash  Group = "CASH"
	GroupBank  Group = "BANK"
	GroupOther Group = "OTHER"
)

var (
	upiKeywords  = []string{"upi", "gpay", "phonepe", "paytm", "bhim"}
	cashKeywords = []string{"cash", "cod", "on_delivery"}
	bankKeywords = []string{"bank", "bank_transfer", "neft", "rtgs", "imps"}
)

// Classify maps a free-text payment method onto a Group by case-insensitive
// substring match. First category wins in the order UPI, CASH, BANK; an empty
// method is OTHER.
func Classify(method string) Group {
	s := strings.ToLower(strings.TrimSpace(method))
	if s == "" {
		return GroupOther
	}
	if containsAny(s, upiKeywords) {
		return GroupUPI
	}
	if containsAny(s, cashKeywords) {
		return GroupCash
	}
	if containsAny(s, bankKeywords) {
		return GroupBank
	}
	return GroupOther
}

// ParseGroup normalizes a caller-supplied filter value. Unknown values fall
// back to ALL.
func ParseGroup(raw string) Group {
	switch Group(strings.ToUpper(strings.TrimSpace(raw))) {
	case GroupUPI:
		return GroupUPI
	case GroupCash:
		return GroupCash
	case GroupBank:
		return GroupBank
	case GroupOther:
		return GroupOther
	default:
		return GroupAll
	}
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

// InvoiceIndex holds lookup maps over an invoice snapshot, keyed by id and by
// human-readable invoice number. It must be rebuilt whenever the snapshot
// changes.
type InvoiceIndex struct {
	byID     map[string]domain.Invoice
	byNumber map[string]domain.Invoice
}

func NewInvoiceIndex(invoices []domain.Invoice) *InvoiceIndex {
	idx := &InvoiceIndex{
		byID:     make(map[string]domain.Invoice, len(invoices)),
		byNumber: make(map[string]domain.Invoice, len(invoices)),
	}
	for _, inv := range invoices {
		if inv.ID != "" {
			idx.byID[inv.ID] = inv
		}
		if inv.InvoiceNumber != "" {
			idx.byNumber[inv.InvoiceNumber] = inv
		}
	}
	return idx
}

// Resolve looks a payment's invoice reference up by id first, then by invoice
// number. An unresolved reference is not an error: downstream treats it as
// "no invoice" with zero totals.
func (idx *InvoiceIndex) Resolve(ref string) (domain.Invoice, bool) {
	if ref == "" {
		return domain.Invoice{}, false
	}
	if inv, ok := idx.byID[ref]; ok {
		return inv, true
	}
	if inv, ok := idx.byNumber[ref]; ok {
		return inv, true
	}
	return domain.Invoice{}, false
}

// SyntheticPayments derives one implicit payment record per invoice with a
// positive paid_amount, dated at the invoice's creation day. The invoice
// schema carries no payment method for this up-front amount, so the method is
// fixed to cash.
//
// No deduplication is attempted against explicit payment rows: an explicit
// record entered for the same invoice coexists with the synthetic one, which
// matches how the data has always been entered upstream.
func SyntheticPayments(invoices []domain.Invoice) []domain.PaymentRecord {
	payments := make([]domain.PaymentRecord, 0, len(invoices))
	for _, inv := range invoices {
		if inv.PaidAmount <= 0 {
			continue
		}
		day := Day(inv.CreatedAt)
		payments = append(payments, domain.PaymentRecord{
			ID:                  SyntheticIDPrefix + inv.ID,
			InvoiceID:           inv.ID,
			CustomerName:        inv.CustomerName,
			PaymentDate:         day,
			Amount:              inv.PaidAmount,
			PaymentMethod:       "cash",
			InvoiceDate:         day,
			InvoiceCustomerName: inv.CustomerName,
		})
	}
	return payments
}

// Merge joins payment rows (explicit rows first, then synthetic ones) against
// the invoice index, attaching invoice-level totals. Rows whose reference does
// not resolve keep a zero invoice total and fall back to the hints carried on
// the row itself.
func Merge(payments []domain.PaymentRecord, idx *InvoiceIndex) []domain.MergedRow {
	rows := make([]domain.MergedRow, 0, len(payments))
	for _, p := range payments {
		row := domain.MergedRow{PaymentRecord: p}

		inv, ok := idx.Resolve(p.InvoiceID)
		if ok {
			row.InvoiceTotal = inv.GrandTotal
			row.InvoiceCreatedAt = Day(inv.CreatedAt)
			if row.InvoiceCreatedAt == "" {
				row.InvoiceCreatedAt = Day(p.InvoiceDate)
			}
			row.InvoicePaidAmount = inv.PaidAmount
			if inv.CustomerName != "" {
				row.InvoiceCustomerName = inv.CustomerName
			} else {
				row.InvoiceCustomerName = p.CustomerName
			}
		} else {
			row.InvoiceCreatedAt = Day(p.InvoiceDate)
			row.InvoiceCustomerName = p.CustomerName
		}
		row.OverdueAmount = math.Max(row.InvoiceTotal-row.InvoicePaidAmount, 0)

		rows = append(rows, row)
	}
	return rows
}

// FilterRange keeps rows whose payment_date falls inside the inclusive
// [start, end] window. Either bound may be empty, meaning unbounded on that
// side. Day keys are ISO day strings, so lexical comparison is chronological.
func FilterRange(rows []domain.MergedRow, start, end string) []domain.MergedRow {
	out := make([]domain.MergedRow, 0, len(rows))
	for _, r := range rows {
		if start != "" && r.PaymentDate < start {
			continue
		}
		if end != "" && r.PaymentDate > end {
			continue
		}
		out = append(out, r)
	}
	return out
}

// DayInvoiceTotal is one entry of the per-day invoice rollup.
type DayInvoiceTotal struct {
	TotalInvoice float64
	TotalOverdue float64
}

// InvoiceDayRollup sums invoice grand totals and remaining balances per
// creation day across the entire invoice snapshot. The rollup deliberately
// ignores the caller's date range: the day rows it feeds always reflect full
// invoice history for that day.
func InvoiceDayRollup(invoices []domain.Invoice) map[string]DayInvoiceTotal {
	rollup := make(map[string]DayInvoiceTotal)
	for _, inv := range invoices {
		day := Day(inv.CreatedAt)
		if day == "" {
			continue
		}
		entry := rollup[day]
		entry.TotalInvoice += inv.GrandTotal
		entry.TotalOverdue += math.Max(inv.GrandTotal-inv.PaidAmount, 0)
		rollup[day] = entry
	}
	return rollup
}

// Summarize buckets filtered rows by payment day and splits each day's
// collections into same-day payments and recoveries of older invoices. Days
// present in the invoice rollup then get their invoice total overwritten with
// the true per-day sum and their outstanding figure recomputed as
// max(totalInvoice - todayPaid, 0).
//
// A row whose invoice is dated after its payment day lands in neither paid
// bucket. Days with payments but no rollup entry keep a zero invoice total
// and a zero outstanding figure.
//
// The result is sorted most recent day first.
func Summarize(rows []domain.MergedRow, rollup map[string]DayInvoiceTotal) []domain.DailySummary {
	byDay := make(map[string]*domain.DailySummary)

	for _, r := range rows {
		payDay := Day(r.PaymentDate)
		invDay := Day(r.InvoiceCreatedAt)
		if invDay == "" {
			invDay = payDay
		}

		entry, ok := byDay[payDay]
		if !ok {
			entry = &domain.DailySummary{Date: payDay}
			byDay[payDay] = entry
		}

		if invDay == payDay {
			entry.TodayPaid += r.Amount
		} else if invDay < payDay {
			entry.TotalOldOverduePaid += r.Amount
		}
		entry.TotalCollectable = entry.TodayPaid + entry.TotalOldOverduePaid
	}

	for day, entry := range byDay {
		if invoiced, ok := rollup[day]; ok {
			entry.TotalInvoice = invoiced.TotalInvoice
			entry.TotalOverdue = math.Max(entry.TotalInvoice-entry.TodayPaid, 0)
		}
	}

	summary := make([]domain.DailySummary, 0, len(byDay))
	for _, entry := range byDay {
		summary = append(summary, *entry)
	}
	sort.Slice(summary, func(i, j int) bool {
		return summary[i].Date > summary[j].Date
	})
	return summary
}

// ReduceTotals sums per-day summaries into the footer totals.
func ReduceTotals(summary []domain.DailySummary) domain.IncomeTotals {
	var totals domain.IncomeTotals
	for _, s := range summary {
		totals.Invoice += s.TotalInvoice
		totals.Paid += s.TodayPaid
		totals.Overdue += s.TotalOverdue
		totals.OldOverdue += s.TotalOldOverduePaid
		totals.Collectable += s.TotalCollectable
	}
	return totals
}

// BuildReport runs the full pipeline over raw snapshots: derive synthetic
// payments, merge, filter to [start, end], summarize against the unfiltered
// invoice rollup and reduce footer totals.
func BuildReport(invoices []domain.Invoice, payments []domain.PaymentRecord, start, end string) domain.DailyIncomeReport {
	idx := NewInvoiceIndex(invoices)

	all := make([]domain.PaymentRecord, 0, len(payments)+len(invoices))
	all = append(all, payments...)
	all = append(all, SyntheticPayments(invoices)...)

	merged := Merge(all, idx)
	filtered := FilterRange(merged, start, end)
	summary := Summarize(filtered, InvoiceDayRollup(invoices))

	return domain.DailyIncomeReport{
		Start:   start,
		End:     end,
		Summary: summary,
		Totals:  ReduceTotals(summary),
	}
}

// MergedRows runs derivation and merge without any range filtering; the CSV
// export selects single days from this set.
func MergedRows(invoices []domain.Invoice, payments []domain.PaymentRecord) []domain.MergedRow {
	idx := NewInvoiceIndex(invoices)
	all := make([]domain.PaymentRecord, 0, len(payments)+len(invoices))
	all = append(all, payments...)
	all = append(all, SyntheticPayments(invoices)...)
	return Merge(all, idx)
}
