package memory

import (
	"context"
	"fmt"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"shopledger/backend/internal/domain"
	"shopledger/backend/internal/store"
	"shopledger/backend/internal/xid"
)

type Store struct {
	mu           sync.RWMutex
	products     map[string]domain.Product
	ordersByID   map[string]domain.Order
	invoicesByID map[string]domain.Invoice
	paymentsByID map[string]domain.PaymentRecord
	auditLogs    []domain.AuditLog
	usersByName  map[string]domain.UserAccount
	invoiceSeq   int
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials are read from SEED_ADMIN_PASSWORD and SEED_STAFF_PASSWORD
// environment variables. If unset, hardcoded dev defaults are used with a
// warning printed to stdout. These credentials are never used in production
// (the backend uses PostgreSQL when DATABASE_URL is set).
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	staffPwd := envOr("SEED_STAFF_PASSWORD", "staff123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_STAFF_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_STAFF_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"staff", staffPwd, "staff"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func New() *Store {
	return &Store{
		products:     make(map[string]domain.Product),
		ordersByID:   make(map[string]domain.Order),
		invoicesByID: make(map[string]domain.Invoice),
		paymentsByID: make(map[string]domain.PaymentRecord),
		auditLogs:    make([]domain.AuditLog, 0, 128),
		usersByName:  seedUsers(),
	}
}

func NewSeeded() *Store {
	products := []domain.Product{
		{ID: "prod-rice-5kg", Name: "Basmati Rice 5kg", Category: "grocery", Price: 620, Featured: true, Active: true, StockQuantity: 80},
		{ID: "prod-atta-10kg", Name: "Whole Wheat Atta 10kg", Category: "grocery", Price: 455, Active: true, StockQuantity: 60},
		{ID: "prod-oil-1l", Name: "Sunflower Oil 1L", Category: "grocery", Price: 148, OfferPrice: 139, Active: true, StockQuantity: 120},
		{ID: "prod-tea-500g", Name: "Assam Tea 500g", Category: "beverage", Price: 260, Active: true, StockQuantity: 95},
		{ID: "prod-sugar-1kg", Name: "Sugar 1kg", Category: "grocery", Price: 46, Active: true, StockQuantity: 150},
		{ID: "prod-dal-1kg", Name: "Toor Dal 1kg", Category: "grocery", Price: 165, Active: true, StockQuantity: 70},
		{ID: "prod-soap-4pk", Name: "Bath Soap 4 Pack", Category: "household", Price: 128, OfferPrice: 115, Featured: true, Active: true, StockQuantity: 200},
		{ID: "prod-detergent-1kg", Name: "Detergent Powder 1kg", Category: "household", Price: 110, Active: true, StockQuantity: 85},
	}

	s := New()
	for _, p := range products {
		s.products[p.ID] = p
	}
	return s
}

func (s *Store) ListProducts(_ context.Context, activeOnly bool) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if activeOnly && !p.Active {
			continue
		}
		products = append(products, cloneProduct(p))
	}

	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Category == b.Category {
			return cmpString(a.Name, b.Name)
		}
		return cmpString(a.Category, b.Category)
	})

	return products, nil
}

func (s *Store) GetProductByID(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyProduct := cloneProduct(product)
	return &copyProduct, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.Name == "" || product.Price <= 0 {
		return nil, store.ErrInvalidInput
	}
	if product.StockQuantity < 0 || product.OfferPrice < 0 {
		return nil, store.ErrInvalidInput
	}
	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	if _, exists := s.products[product.ID]; exists {
		return nil, store.ErrConflict
	}

	product.Active = true
	s.products[product.ID] = cloneProduct(product)
	created := cloneProduct(product)
	return &created, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.Name == "" || product.Price <= 0 {
		return nil, store.ErrInvalidInput
	}
	if product.StockQuantity < 0 || product.OfferPrice < 0 {
		return nil, store.ErrInvalidInput
	}
	if _, exists := s.products[product.ID]; !exists {
		return nil, store.ErrNotFound
	}

	s.products[product.ID] = cloneProduct(product)
	updated := cloneProduct(product)
	return &updated, nil
}

func (s *Store) DecrementStock(_ context.Context, productID string, qty int) error {
	if qty < 1 {
		return store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	product, exists := s.products[productID]
	if !exists || !product.Active {
		return store.ErrNotFound
	}
	if product.StockQuantity < qty {
		return store.ErrInsufficientStock
	}
	product.StockQuantity -= qty
	s.products[productID] = product
	return nil
}

func (s *Store) CreateOrder(_ context.Context, order domain.Order) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.createOrderLocked(order)
}

func (s *Store) createOrderLocked(order domain.Order) (*domain.Order, error) {
	if order.CustomerName == "" || len(order.Items) == 0 {
		return nil, store.ErrInvalidInput
	}
	if order.ID == "" {
		order.ID = xid.New("ord")
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}
	if order.Status == "" {
		order.Status = domain.OrderStatusPending
	}

	s.ordersByID[order.ID] = cloneOrder(order)
	created := cloneOrder(order)
	return &created, nil
}

// CreateCheckout performs the stock decrement and the invoice and order
// writes under one lock. Every line is checked against available stock before
// anything mutates, so a failing line leaves all products untouched.
func (s *Store) CreateCheckout(_ context.Context, order domain.Order, invoice domain.Invoice) (*domain.Order, *domain.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if order.CustomerName == "" || len(order.Items) == 0 {
		return nil, nil, store.ErrInvalidInput
	}
	for _, item := range order.Items {
		if item.Qty < 1 {
			return nil, nil, store.ErrInvalidInput
		}
		product, exists := s.products[item.ProductID]
		if !exists || !product.Active {
			return nil, nil, store.ErrNotFound
		}
		if product.StockQuantity < item.Qty {
			return nil, nil, store.ErrInsufficientStock
		}
	}

	createdInvoice, err := s.createInvoiceLocked(invoice)
	if err != nil {
		return nil, nil, err
	}

	order.InvoiceID = createdInvoice.ID
	createdOrder, err := s.createOrderLocked(order)
	if err != nil {
		delete(s.invoicesByID, createdInvoice.ID)
		return nil, nil, err
	}

	for _, item := range order.Items {
		product := s.products[item.ProductID]
		product.StockQuantity -= item.Qty
		s.products[item.ProductID] = product
	}

	return createdOrder, createdInvoice, nil
}

func (s *Store) ListOrders(_ context.Context, status string, limit int) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status = strings.ToLower(strings.TrimSpace(status))
	result := make([]domain.Order, 0, len(s.ordersByID))
	for _, order := range s.ordersByID {
		if status != "" && order.Status != status {
			continue
		}
		result = append(result, cloneOrder(order))
	}

	slices.SortFunc(result, func(a, b domain.Order) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) GetOrderByID(_ context.Context, id string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, exists := s.ordersByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyOrder := cloneOrder(order)
	return &copyOrder, nil
}

func (s *Store) UpdateOrderStatus(_ context.Context, id string, status string) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, exists := s.ordersByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	order.Status = status
	s.ordersByID[id] = order
	copyOrder := cloneOrder(order)
	return &copyOrder, nil
}

func (s *Store) ListInvoices(_ context.Context) ([]domain.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	invoices := make([]domain.Invoice, 0, len(s.invoicesByID))
	for _, inv := range s.invoicesByID {
		invoices = append(invoices, cloneInvoice(inv))
	}

	slices.SortFunc(invoices, func(a, b domain.Invoice) int {
		if a.CreatedAt == b.CreatedAt {
			return cmpString(b.ID, a.ID)
		}
		return cmpString(b.CreatedAt, a.CreatedAt)
	})
	return invoices, nil
}

func (s *Store) GetInvoiceByID(_ context.Context, id string) (*domain.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inv, exists := s.invoicesByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyInvoice := cloneInvoice(inv)
	return &copyInvoice, nil
}

func (s *Store) CreateInvoice(_ context.Context, invoice domain.Invoice) (*domain.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.createInvoiceLocked(invoice)
}

func (s *Store) createInvoiceLocked(invoice domain.Invoice) (*domain.Invoice, error) {
	if invoice.CustomerName == "" || invoice.GrandTotal < 0 || invoice.PaidAmount < 0 {
		return nil, store.ErrInvalidInput
	}
	if invoice.ID == "" {
		invoice.ID = xid.New("inv")
	}
	if _, exists := s.invoicesByID[invoice.ID]; exists {
		return nil, store.ErrConflict
	}
	if invoice.InvoiceNumber == "" {
		s.invoiceSeq++
		invoice.InvoiceNumber = fmt.Sprintf("INV-%05d", s.invoiceSeq)
	} else {
		for _, existing := range s.invoicesByID {
			if existing.InvoiceNumber == invoice.InvoiceNumber {
				return nil, store.ErrConflict
			}
		}
	}
	if invoice.CreatedAt == "" {
		invoice.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}

	s.invoicesByID[invoice.ID] = cloneInvoice(invoice)
	created := cloneInvoice(invoice)
	return &created, nil
}

func (s *Store) DeleteInvoice(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.invoicesByID[id]; !exists {
		return store.ErrNotFound
	}
	delete(s.invoicesByID, id)
	return nil
}

func (s *Store) ListPayments(_ context.Context) ([]domain.PaymentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	payments := make([]domain.PaymentRecord, 0, len(s.paymentsByID))
	for _, p := range s.paymentsByID {
		payments = append(payments, p)
	}

	slices.SortFunc(payments, func(a, b domain.PaymentRecord) int {
		if a.PaymentDate == b.PaymentDate {
			return cmpString(b.ID, a.ID)
		}
		return cmpString(b.PaymentDate, a.PaymentDate)
	})
	return payments, nil
}

func (s *Store) CreatePayment(_ context.Context, payment domain.PaymentRecord) (*domain.PaymentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if payment.PaymentDate == "" || payment.Amount <= 0 {
		return nil, store.ErrInvalidInput
	}
	if payment.ID == "" {
		payment.ID = xid.New("pay")
	}
	if _, exists := s.paymentsByID[payment.ID]; exists {
		return nil, store.ErrConflict
	}

	s.paymentsByID[payment.ID] = payment
	created := payment
	return &created, nil
}

func (s *Store) DeletePayment(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.paymentsByID[id]; !exists {
		return store.ErrNotFound
	}
	delete(s.paymentsByID, id)
	return nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, len(s.auditLogs))
	copy(result, s.auditLogs)

	slices.SortFunc(result, func(a, b domain.AuditLog) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if _, exists := s.usersByName[username]; exists {
		return store.ErrConflict
	}
	user.Username = username
	if user.Role == "" {
		user.Role = "staff"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByName[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByName))
	for _, user := range s.usersByName {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmpString(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}
	user, exists := s.usersByName[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByName[username] = user
	return nil
}

func cmpString(a string, b string) int {
	if a == b {
		return 0
	}
	if a < b {
		return -1
	}
	return 1
}

func cloneProduct(src domain.Product) domain.Product {
	dup := src
	urls := make([]string, len(src.ImageURLs))
	copy(urls, src.ImageURLs)
	dup.ImageURLs = urls
	return dup
}

func cloneOrder(src domain.Order) domain.Order {
	dup := src
	items := make([]domain.OrderItem, len(src.Items))
	copy(items, src.Items)
	dup.Items = items
	return dup
}

func cloneInvoice(src domain.Invoice) domain.Invoice {
	dup := src
	items := make([]domain.InvoiceItem, len(src.Items))
	copy(items, src.Items)
	dup.Items = items
	return dup
}
