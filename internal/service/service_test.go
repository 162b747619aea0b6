package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"shopledger/backend/internal/cache"
	"shopledger/backend/internal/domain"
	"shopledger/backend/internal/store"
	"shopledger/backend/internal/store/memory"
)

func newTestService() *Service {
	return New(memory.NewSeeded(), cache.NoopReportCache{}, 5*time.Second)
}

func adminCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "admin", Role: "admin"})
}

func TestCreateProductRequiresAdmin(t *testing.T) {
	svc := newTestService()
	ctx := WithActor(context.Background(), domain.Actor{Username: "staff", Role: "staff"})

	_, err := svc.CreateProduct(ctx, domain.ProductCreateRequest{
		Name: "Jaggery 1kg", Category: "grocery", Price: 80, StockQuantity: 10,
	})
	if err == nil {
		t.Fatalf("expected create product to fail for staff role")
	}
}

func TestCreateProductRejectsOfferAbovePrice(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreateProduct(adminCtx(), domain.ProductCreateRequest{
		Name: "Jaggery 1kg", Category: "grocery", Price: 80, OfferPrice: 95,
	})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestUpdateProductPatchesOnlyProvidedFields(t *testing.T) {
	svc := newTestService()

	created, err := svc.CreateProduct(adminCtx(), domain.ProductCreateRequest{
		Name: "Jaggery 1kg", Category: "grocery", Price: 80, StockQuantity: 10,
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}

	newPrice := 85.0
	updated, err := svc.UpdateProduct(adminCtx(), created.ID, domain.ProductUpdateRequest{Price: &newPrice})
	if err != nil {
		t.Fatalf("update product: %v", err)
	}
	if updated.Price != 85 {
		t.Fatalf("expected price 85, got %v", updated.Price)
	}
	if updated.Name != "Jaggery 1kg" || updated.StockQuantity != 10 {
		t.Fatalf("unrelated fields changed: %+v", updated)
	}
}

func TestCheckoutCreatesOrderAndInvoice(t *testing.T) {
	svc := newTestService()

	resp, err := svc.Checkout(context.Background(), domain.CheckoutRequest{
		CustomerName:  "Asha",
		PaymentMethod: "upi",
		PaidAmount:    100,
		Items: []domain.CheckoutItem{
			{ProductID: "prod-oil-1l", Qty: 2},
			{ProductID: "prod-sugar-1kg", Qty: 1},
		},
	})
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}

	// Offer price applies to the oil, list price to the sugar.
	wantTotal := 139.0*2 + 46.0
	if resp.Order.TotalAmount != wantTotal {
		t.Fatalf("expected order total %v, got %v", wantTotal, resp.Order.TotalAmount)
	}
	if resp.Invoice.GrandTotal != wantTotal || resp.Invoice.PaidAmount != 100 {
		t.Fatalf("invoice totals = %+v", resp.Invoice)
	}
	if resp.Order.InvoiceID != resp.Invoice.ID {
		t.Fatalf("order not linked to invoice: %+v", resp.Order)
	}
	if resp.Order.Status != domain.OrderStatusPending {
		t.Fatalf("expected pending order, got %s", resp.Order.Status)
	}
}

func TestCheckoutRejectsOverpayment(t *testing.T) {
	svc := newTestService()

	_, err := svc.Checkout(context.Background(), domain.CheckoutRequest{
		CustomerName:  "Asha",
		PaymentMethod: "cash",
		PaidAmount:    10000,
		Items:         []domain.CheckoutItem{{ProductID: "prod-sugar-1kg", Qty: 1}},
	})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestCheckoutFailsOnInsufficientStock(t *testing.T) {
	svc := newTestService()

	_, err := svc.Checkout(context.Background(), domain.CheckoutRequest{
		CustomerName:  "Ravi",
		PaymentMethod: "cash",
		Items:         []domain.CheckoutItem{{ProductID: "prod-dal-1kg", Qty: 9999}},
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
}

func TestCheckoutFailureLeavesStockUntouched(t *testing.T) {
	repo := memory.NewSeeded()
	svc := New(repo, cache.NoopReportCache{}, 5*time.Second)

	before, err := repo.GetProductByID(context.Background(), "prod-oil-1l")
	if err != nil {
		t.Fatalf("read product: %v", err)
	}

	_, err = svc.Checkout(context.Background(), domain.CheckoutRequest{
		CustomerName:  "Ravi",
		PaymentMethod: "cash",
		Items: []domain.CheckoutItem{
			{ProductID: "prod-oil-1l", Qty: 2},
			{ProductID: "prod-sugar-1kg", Qty: 9999},
		},
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	after, err := repo.GetProductByID(context.Background(), "prod-oil-1l")
	if err != nil {
		t.Fatalf("read product after failed checkout: %v", err)
	}
	if after.StockQuantity != before.StockQuantity {
		t.Fatalf("failed checkout changed stock: before=%d after=%d", before.StockQuantity, after.StockQuantity)
	}

	invoices, err := repo.ListInvoices(context.Background())
	if err != nil {
		t.Fatalf("list invoices: %v", err)
	}
	if len(invoices) != 0 {
		t.Fatalf("failed checkout left %d invoice(s) behind", len(invoices))
	}
}

func TestUpdateOrderStatusValidatesStatus(t *testing.T) {
	svc := newTestService()

	resp, err := svc.Checkout(context.Background(), domain.CheckoutRequest{
		CustomerName:  "Meera",
		PaymentMethod: "cash",
		Items:         []domain.CheckoutItem{{ProductID: "prod-tea-500g", Qty: 1}},
	})
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}

	if _, err := svc.UpdateOrderStatus(adminCtx(), resp.Order.ID, "teleported"); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for unknown status, got %v", err)
	}

	updated, err := svc.UpdateOrderStatus(adminCtx(), resp.Order.ID, "confirmed")
	if err != nil {
		t.Fatalf("update status failed: %v", err)
	}
	if updated.Status != domain.OrderStatusConfirmed {
		t.Fatalf("expected confirmed, got %s", updated.Status)
	}
}

func TestCreateInvoiceRejectsOverpaidInvoice(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreateInvoice(adminCtx(), domain.InvoiceCreateRequest{
		CustomerName: "Asha",
		GrandTotal:   100,
		PaidAmount:   150,
	})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestCreatePaymentNormalizesDateAndAttachesInvoiceHints(t *testing.T) {
	svc := newTestService()

	inv, err := svc.CreateInvoice(adminCtx(), domain.InvoiceCreateRequest{
		CustomerName: "Asha",
		GrandTotal:   500,
		PaidAmount:   0,
	})
	if err != nil {
		t.Fatalf("create invoice: %v", err)
	}

	payment, err := svc.CreatePayment(adminCtx(), domain.PaymentCreateRequest{
		InvoiceID:     inv.ID,
		PaymentDate:   "2024-03-05T18:30:00Z",
		Amount:        200,
		PaymentMethod: "gpay",
	})
	if err != nil {
		t.Fatalf("create payment: %v", err)
	}
	if payment.PaymentDate != "2024-03-05" {
		t.Fatalf("expected normalized day, got %q", payment.PaymentDate)
	}
	if payment.InvoiceDate == "" || payment.InvoiceCustomerName != "Asha" {
		t.Fatalf("expected invoice hints on payment, got %+v", payment)
	}
}

func TestDailyIncomeEndToEnd(t *testing.T) {
	repo := memory.New()
	svc := New(repo, cache.NoopReportCache{}, 5*time.Second)
	ctx := adminCtx()

	inv, err := repo.CreateInvoice(ctx, domain.Invoice{
		CustomerName: "Asha",
		CreatedAt:    "2024-01-10",
		GrandTotal:   1000,
		PaidAmount:   400,
	})
	if err != nil {
		t.Fatalf("create invoice: %v", err)
	}
	if _, err := repo.CreatePayment(ctx, domain.PaymentRecord{
		InvoiceID:   inv.ID,
		PaymentDate: "2024-01-12",
		Amount:      300,
	}); err != nil {
		t.Fatalf("create payment: %v", err)
	}

	report, err := svc.DailyIncome(ctx, "2024-01-10", "2024-01-12")
	if err != nil {
		t.Fatalf("daily income: %v", err)
	}
	if len(report.Summary) != 2 {
		t.Fatalf("expected 2 summary days, got %d", len(report.Summary))
	}
	if report.Summary[0].Date != "2024-01-12" || report.Summary[0].TotalOldOverduePaid != 300 {
		t.Fatalf("newest day = %+v", report.Summary[0])
	}
	if report.Summary[1].Date != "2024-01-10" || report.Summary[1].TodayPaid != 400 {
		t.Fatalf("oldest day = %+v", report.Summary[1])
	}
	if report.Totals.Paid != 400 || report.Totals.OldOverdue != 300 || report.Totals.Collectable != 700 {
		t.Fatalf("totals = %+v", report.Totals)
	}
}

func TestDailyIncomeRejectsInvertedRange(t *testing.T) {
	svc := newTestService()

	_, err := svc.DailyIncome(context.Background(), "2024-02-01", "2024-01-01")
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestDailyIncomeCSV(t *testing.T) {
	repo := memory.New()
	svc := New(repo, cache.NoopReportCache{}, 5*time.Second)
	ctx := adminCtx()

	inv, err := repo.CreateInvoice(ctx, domain.Invoice{
		CustomerName: "Asha",
		CreatedAt:    "2024-01-10",
		GrandTotal:   1000,
		PaidAmount:   0,
	})
	if err != nil {
		t.Fatalf("create invoice: %v", err)
	}
	if _, err := repo.CreatePayment(ctx, domain.PaymentRecord{
		InvoiceID:     inv.ID,
		PaymentDate:   "2024-01-12",
		Amount:        300,
		PaymentMethod: "gpay",
	}); err != nil {
		t.Fatalf("create payment: %v", err)
	}

	filename, csv, err := svc.DailyIncomeCSV(ctx, "2024-01-12", "upi")
	if err != nil {
		t.Fatalf("csv export: %v", err)
	}
	if filename != "daily_2024-01-12.csv" {
		t.Fatalf("filename = %q", filename)
	}
	lines := strings.Split(csv, "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header + 1 row, got %d lines", len(lines))
	}
	if !strings.Contains(lines[1], `"gpay"`) || !strings.Contains(lines[1], "300.00") {
		t.Fatalf("row = %q", lines[1])
	}

	// The cash filter excludes the gpay payment.
	_, csv, err = svc.DailyIncomeCSV(ctx, "2024-01-12", "cash")
	if err != nil {
		t.Fatalf("csv export: %v", err)
	}
	if lines := strings.Split(csv, "\n"); len(lines) != 1 {
		t.Fatalf("expected header only, got %d lines", len(lines))
	}
}

func TestIncomePresetRejectsUnknownPreset(t *testing.T) {
	svc := newTestService()

	if _, err := svc.IncomePreset("fortnight"); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	rng, err := svc.IncomePreset("today")
	if err != nil {
		t.Fatalf("today preset: %v", err)
	}
	if rng.Start == "" || rng.Start != rng.End {
		t.Fatalf("today range = %+v", rng)
	}
}

type failingInvoiceRepo struct {
	store.Repository
}

func (f failingInvoiceRepo) ListInvoices(_ context.Context) ([]domain.Invoice, error) {
	return nil, errors.New("backend unavailable")
}

func TestDailyIncomeDegradesWhenInvoiceFetchFails(t *testing.T) {
	repo := memory.New()
	svc := New(failingInvoiceRepo{Repository: repo}, cache.NoopReportCache{}, 5*time.Second)
	ctx := adminCtx()

	if _, err := repo.CreatePayment(ctx, domain.PaymentRecord{
		PaymentDate: "2024-01-12",
		Amount:      300,
	}); err != nil {
		t.Fatalf("create payment: %v", err)
	}

	report, err := svc.DailyIncome(ctx, "", "")
	if err != nil {
		t.Fatalf("expected degraded report, got error: %v", err)
	}
	if len(report.Summary) != 1 {
		t.Fatalf("expected 1 summary day, got %d", len(report.Summary))
	}
	day := report.Summary[0]
	if day.TodayPaid != 300 || day.TotalInvoice != 0 {
		t.Fatalf("degraded day = %+v", day)
	}
}
