package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"shopledger/backend/internal/cache"
	"shopledger/backend/internal/domain"
	"shopledger/backend/internal/income"
	"shopledger/backend/internal/store"
	"shopledger/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo      store.Repository
	reports   cache.ReportCache
	reportTTL time.Duration
}

func New(repo store.Repository, reports cache.ReportCache, reportTTL time.Duration) *Service {
	if reports == nil {
		reports = cache.NoopReportCache{}
	}
	if reportTTL < time.Second {
		reportTTL = 30 * time.Second
	}

	return &Service{
		repo:      repo,
		reports:   reports,
		reportTTL: reportTTL,
	}
}

func (s *Service) ListProducts(ctx context.Context, includeInactive bool) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx, !includeInactive)
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Product{}, fmt.Errorf("admin role required")
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Category = strings.TrimSpace(req.Category)

	if req.Name == "" {
		return domain.Product{}, store.ErrInvalidInput
	}
	if req.Price <= 0 || req.OfferPrice < 0 || req.StockQuantity < 0 {
		return domain.Product{}, store.ErrInvalidInput
	}
	if req.OfferPrice > 0 && req.OfferPrice >= req.Price {
		return domain.Product{}, store.ErrInvalidInput
	}

	product := domain.Product{
		Name:          req.Name,
		Category:      req.Category,
		Description:   strings.TrimSpace(req.Description),
		Price:         req.Price,
		OfferPrice:    req.OfferPrice,
		ImageURLs:     req.ImageURLs,
		Featured:      req.Featured,
		Active:        true,
		StockQuantity: req.StockQuantity,
	}

	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "product_create", "product", created.ID, fmt.Sprintf("name=%s,price=%.2f,stock=%d", created.Name, created.Price, created.StockQuantity))
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Product{}, fmt.Errorf("admin role required")
	}

	existing, err := s.repo.GetProductByID(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	product := *existing

	if req.Name != nil {
		product.Name = strings.TrimSpace(*req.Name)
	}
	if req.Category != nil {
		product.Category = strings.TrimSpace(*req.Category)
	}
	if req.Description != nil {
		product.Description = strings.TrimSpace(*req.Description)
	}
	if req.Price != nil {
		product.Price = *req.Price
	}
	if req.OfferPrice != nil {
		product.OfferPrice = *req.OfferPrice
	}
	if req.ImageURLs != nil {
		product.ImageURLs = *req.ImageURLs
	}
	if req.Featured != nil {
		product.Featured = *req.Featured
	}
	if req.Active != nil {
		product.Active = *req.Active
	}
	if req.StockQuantity != nil {
		product.StockQuantity = *req.StockQuantity
	}

	if product.Name == "" || product.Price <= 0 || product.OfferPrice < 0 || product.StockQuantity < 0 {
		return domain.Product{}, store.ErrInvalidInput
	}
	if product.OfferPrice > 0 && product.OfferPrice >= product.Price {
		return domain.Product{}, store.ErrInvalidInput
	}

	updated, err := s.repo.UpdateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "product_update", "product", updated.ID, fmt.Sprintf("name=%s,price=%.2f,active=%t", updated.Name, updated.Price, updated.Active))
	return *updated, nil
}

// Checkout records a customer order and raises the matching invoice in one
// step. Unit prices come from the product records at checkout time, never
// from the request. PaidAmount is the optional up-front payment captured on
// the invoice; the income pipeline later derives a cash payment row from it.
func (s *Service) Checkout(ctx context.Context, req domain.CheckoutRequest) (domain.CheckoutResponse, error) {
	req.CustomerName = strings.TrimSpace(req.CustomerName)
	req.PaymentMethod = strings.TrimSpace(req.PaymentMethod)

	if req.CustomerName == "" || len(req.Items) == 0 {
		return domain.CheckoutResponse{}, store.ErrInvalidInput
	}
	if req.PaymentMethod == "" {
		req.PaymentMethod = "cash"
	}
	if req.PaidAmount < 0 {
		return domain.CheckoutResponse{}, store.ErrInvalidInput
	}

	orderItems := make([]domain.OrderItem, 0, len(req.Items))
	invoiceItems := make([]domain.InvoiceItem, 0, len(req.Items))
	total := 0.0
	for _, item := range req.Items {
		if item.ProductID == "" || item.Qty < 1 {
			return domain.CheckoutResponse{}, store.ErrInvalidInput
		}
		product, err := s.repo.GetProductByID(ctx, item.ProductID)
		if err != nil {
			return domain.CheckoutResponse{}, err
		}
		if !product.Active {
			return domain.CheckoutResponse{}, store.ErrNotFound
		}

		price := product.Price
		if product.OfferPrice > 0 {
			price = product.OfferPrice
		}
		lineTotal := price * float64(item.Qty)
		total += lineTotal

		orderItems = append(orderItems, domain.OrderItem{
			ProductID: product.ID,
			Name:      product.Name,
			Qty:       item.Qty,
			Price:     price,
		})
		invoiceItems = append(invoiceItems, domain.InvoiceItem{
			Description: product.Name,
			Qty:         item.Qty,
			Price:       price,
			Total:       lineTotal,
		})
	}

	if req.PaidAmount > total {
		return domain.CheckoutResponse{}, store.ErrInvalidInput
	}

	// Stock decrements and both writes happen as one atomic store operation,
	// so a failing line cannot strand earlier decrements.
	now := time.Now().UTC()
	order, invoice, err := s.repo.CreateCheckout(ctx, domain.Order{
		ID:              xid.New("ord"),
		CustomerName:    req.CustomerName,
		Phone:           strings.TrimSpace(req.Phone),
		DeliveryAddress: strings.TrimSpace(req.DeliveryAddress),
		PaymentMethod:   req.PaymentMethod,
		Status:          domain.OrderStatusPending,
		TotalAmount:     total,
		CreatedAt:       now,
		Items:           orderItems,
	}, domain.Invoice{
		ID:           xid.New("inv"),
		CustomerName: req.CustomerName,
		CreatedAt:    now.Format(time.RFC3339),
		Subtotal:     total,
		GrandTotal:   total,
		PaidAmount:   req.PaidAmount,
		Items:        invoiceItems,
	})
	if err != nil {
		return domain.CheckoutResponse{}, err
	}

	s.logAudit(ctx, "order_checkout", "order", order.ID, fmt.Sprintf("customer=%s,total=%.2f,paid=%.2f", order.CustomerName, total, req.PaidAmount))
	s.bumpReportGeneration(ctx)

	return domain.CheckoutResponse{Order: *order, Invoice: *invoice}, nil
}

func (s *Service) ListOrders(ctx context.Context, status string, limit int) (domain.OrderListResponse, error) {
	if limit < 1 {
		limit = 100
	}
	orders, err := s.repo.ListOrders(ctx, status, limit)
	if err != nil {
		return domain.OrderListResponse{}, err
	}
	return domain.OrderListResponse{Orders: orders}, nil
}

func (s *Service) UpdateOrderStatus(ctx context.Context, id string, status string) (domain.Order, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Order{}, fmt.Errorf("admin role required")
	}

	status = strings.ToLower(strings.TrimSpace(status))
	if !isValidOrderStatus(status) {
		return domain.Order{}, store.ErrInvalidInput
	}

	updated, err := s.repo.UpdateOrderStatus(ctx, id, status)
	if err != nil {
		return domain.Order{}, err
	}

	s.logAudit(ctx, "order_status", "order", updated.ID, "status="+status)
	return *updated, nil
}

func (s *Service) ListInvoices(ctx context.Context) (domain.InvoiceListResponse, error) {
	invoices, err := s.repo.ListInvoices(ctx)
	if err != nil {
		return domain.InvoiceListResponse{}, err
	}
	return domain.InvoiceListResponse{Invoices: invoices}, nil
}

func (s *Service) CreateInvoice(ctx context.Context, req domain.InvoiceCreateRequest) (domain.Invoice, error) {
	req.CustomerName = strings.TrimSpace(req.CustomerName)
	if req.CustomerName == "" {
		return domain.Invoice{}, store.ErrInvalidInput
	}
	if req.GrandTotal < 0 || req.PaidAmount < 0 || req.PaidAmount > req.GrandTotal {
		return domain.Invoice{}, store.ErrInvalidInput
	}

	created, err := s.repo.CreateInvoice(ctx, domain.Invoice{
		ID:            xid.New("inv"),
		InvoiceNumber: strings.TrimSpace(req.InvoiceNumber),
		CustomerName:  req.CustomerName,
		CreatedAt:     time.Now().UTC().Format(time.RFC3339),
		Subtotal:      req.Subtotal,
		TotalDiscount: req.TotalDiscount,
		GrandTotal:    req.GrandTotal,
		PaidAmount:    req.PaidAmount,
		Items:         req.Items,
	})
	if err != nil {
		return domain.Invoice{}, err
	}

	s.logAudit(ctx, "invoice_create", "invoice", created.ID, fmt.Sprintf("number=%s,total=%.2f,paid=%.2f", created.InvoiceNumber, created.GrandTotal, created.PaidAmount))
	s.bumpReportGeneration(ctx)
	return *created, nil
}

func (s *Service) DeleteInvoice(ctx context.Context, id string, reason string) error {
	if err := s.repo.DeleteInvoice(ctx, id); err != nil {
		return err
	}

	s.logAudit(ctx, "invoice_delete", "invoice", id, "reason="+strings.TrimSpace(reason))
	s.bumpReportGeneration(ctx)
	return nil
}

func (s *Service) ListPayments(ctx context.Context) (domain.PaymentListResponse, error) {
	payments, err := s.repo.ListPayments(ctx)
	if err != nil {
		return domain.PaymentListResponse{}, err
	}
	return domain.PaymentListResponse{Payments: payments}, nil
}

func (s *Service) CreatePayment(ctx context.Context, req domain.PaymentCreateRequest) (domain.PaymentRecord, error) {
	day := income.Day(req.PaymentDate)
	if day == "" || req.Amount <= 0 {
		return domain.PaymentRecord{}, store.ErrInvalidInput
	}

	payment := domain.PaymentRecord{
		ID:            xid.New("pay"),
		InvoiceID:     strings.TrimSpace(req.InvoiceID),
		CustomerName:  strings.TrimSpace(req.CustomerName),
		PaymentDate:   day,
		Amount:        req.Amount,
		PaymentMethod: strings.TrimSpace(req.PaymentMethod),
	}
	if payment.InvoiceID != "" {
		if inv, err := s.repo.GetInvoiceByID(ctx, payment.InvoiceID); err == nil {
			payment.InvoiceDate = inv.CreatedAt
			payment.InvoiceCustomerName = inv.CustomerName
		}
	}

	created, err := s.repo.CreatePayment(ctx, payment)
	if err != nil {
		return domain.PaymentRecord{}, err
	}

	s.logAudit(ctx, "payment_create", "payment", created.ID, fmt.Sprintf("invoice=%s,date=%s,amount=%.2f", created.InvoiceID, created.PaymentDate, created.Amount))
	s.bumpReportGeneration(ctx)
	return *created, nil
}

func (s *Service) DeletePayment(ctx context.Context, id string, reason string) error {
	if err := s.repo.DeletePayment(ctx, id); err != nil {
		return err
	}

	s.logAudit(ctx, "payment_delete", "payment", id, "reason="+strings.TrimSpace(reason))
	s.bumpReportGeneration(ctx)
	return nil
}

// DailyIncome runs the reconciliation pipeline over fresh snapshots. A failed
// invoice fetch degrades to an empty invoice collection with a warning rather
// than failing the report; a failed payment fetch is a hard error. Reports
// are cached per range under the current cache generation.
func (s *Service) DailyIncome(ctx context.Context, start string, end string) (domain.DailyIncomeReport, error) {
	start, end, err := normalizeRange(start, end)
	if err != nil {
		return domain.DailyIncomeReport{}, err
	}

	key, cacheable := s.reportCacheKey(ctx, start, end)
	if cacheable {
		if cached, ok, err := s.reports.Get(ctx, key); err == nil && ok {
			return *cached, nil
		} else if err != nil {
			log.Printf("[service] WARN: report cache get failed key=%s: %v", key, err)
		}
	}

	invoices, payments, err := s.incomeSnapshots(ctx)
	if err != nil {
		return domain.DailyIncomeReport{}, err
	}

	report := income.BuildReport(invoices, payments, start, end)

	if cacheable {
		if err := s.reports.Set(ctx, key, &report, s.reportTTL); err != nil {
			log.Printf("[service] WARN: report cache set failed key=%s: %v", key, err)
		}
	}
	return report, nil
}

// DailyIncomeCSV renders a single day's rows, optionally filtered to one
// payment-method group, and names the download file. The rows are selected
// from the unfiltered merged set so the export matches the day row regardless
// of the range on screen.
func (s *Service) DailyIncomeCSV(ctx context.Context, date string, method string) (filename string, csv string, err error) {
	day := income.Day(date)
	if day == "" {
		return "", "", store.ErrInvalidInput
	}

	invoices, payments, err := s.incomeSnapshots(ctx)
	if err != nil {
		return "", "", err
	}

	rows := income.SelectDay(income.MergedRows(invoices, payments), day, income.ParseGroup(method))
	return income.CSVFilename(day), income.RowsToCSV(rows), nil
}

// IncomePreset resolves a named relative range against the current UTC day.
func (s *Service) IncomePreset(preset string) (domain.IncomeRangeResponse, error) {
	start, end, ok := income.PresetRange(income.Preset(strings.ToLower(strings.TrimSpace(preset))), time.Now().UTC())
	if !ok {
		return domain.IncomeRangeResponse{}, store.ErrInvalidInput
	}
	return domain.IncomeRangeResponse{Start: start, End: end}, nil
}

func (s *Service) ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}
	return s.repo.ListAuditLogs(ctx, limit)
}

func (s *Service) incomeSnapshots(ctx context.Context) ([]domain.Invoice, []domain.PaymentRecord, error) {
	invoices, err := s.repo.ListInvoices(ctx)
	if err != nil {
		log.Printf("[service] WARN: invoice fetch failed, reporting over empty invoice set: %v", err)
		invoices = nil
	}

	payments, err := s.repo.ListPayments(ctx)
	if err != nil {
		return nil, nil, err
	}
	return invoices, payments, nil
}

func (s *Service) reportCacheKey(ctx context.Context, start string, end string) (string, bool) {
	gen, err := s.reports.Generation(ctx)
	if err != nil {
		log.Printf("[service] WARN: report cache generation unavailable: %v", err)
		return "", false
	}
	return fmt.Sprintf("income:report:g%d:%s:%s", gen, start, end), true
}

func (s *Service) bumpReportGeneration(ctx context.Context) {
	if err := s.reports.Bump(ctx); err != nil {
		log.Printf("[service] WARN: report cache bump failed: %v", err)
	}
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     time.Now().UTC(),
	}); err != nil {
		log.Printf("[audit] WARN: failed to write audit log action=%s entity=%s/%s: %v", action, entityType, entityID, err)
	}
}

// normalizeRange canonicalizes the bounds and rejects an inverted non-empty
// range. Empty bounds stay empty and mean unbounded.
func normalizeRange(start string, end string) (string, string, error) {
	if strings.TrimSpace(start) != "" {
		if start = income.Day(start); start == "" {
			return "", "", store.ErrInvalidInput
		}
	} else {
		start = ""
	}
	if strings.TrimSpace(end) != "" {
		if end = income.Day(end); end == "" {
			return "", "", store.ErrInvalidInput
		}
	} else {
		end = ""
	}
	if start != "" && end != "" && start > end {
		return "", "", store.ErrInvalidInput
	}
	return start, end, nil
}

func isValidOrderStatus(status string) bool {
	switch status {
	case domain.OrderStatusPending, domain.OrderStatusConfirmed, domain.OrderStatusShipped,
		domain.OrderStatusDelivered, domain.OrderStatusCancelled:
		return true
	}
	return false
}
