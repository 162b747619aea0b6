package store

import (
	"context"
	"errors"

	"shopledger/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidInput      = errors.New("invalid input")
	ErrConflict          = errors.New("conflict")
)

type Repository interface {
	ListProducts(ctx context.Context, activeOnly bool) ([]domain.Product, error)
	GetProductByID(ctx context.Context, id string) (*domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	DecrementStock(ctx context.Context, productID string, qty int) error
	// CreateCheckout decrements stock for every order line and writes the
	// invoice and the order as one atomic operation: either all of it lands
	// or none of it does.
	CreateCheckout(ctx context.Context, order domain.Order, invoice domain.Invoice) (*domain.Order, *domain.Invoice, error)
	CreateOrder(ctx context.Context, order domain.Order) (*domain.Order, error)
	ListOrders(ctx context.Context, status string, limit int) ([]domain.Order, error)
	GetOrderByID(ctx context.Context, id string) (*domain.Order, error)
	UpdateOrderStatus(ctx context.Context, id string, status string) (*domain.Order, error)
	ListInvoices(ctx context.Context) ([]domain.Invoice, error)
	GetInvoiceByID(ctx context.Context, id string) (*domain.Invoice, error)
	CreateInvoice(ctx context.Context, invoice domain.Invoice) (*domain.Invoice, error)
	DeleteInvoice(ctx context.Context, id string) error
	ListPayments(ctx context.Context) ([]domain.PaymentRecord, error)
	CreatePayment(ctx context.Context, payment domain.PaymentRecord) (*domain.PaymentRecord, error)
	DeletePayment(ctx context.Context, id string) error
	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error)
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
