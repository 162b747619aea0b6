package domain

import "time"

// InvoiceItem is a single billed line on an invoice.
type InvoiceItem struct {
	Description string  `json:"description"`
	Qty         int     `json:"qty"`
	Price       float64 `json:"price"`
	Total       float64 `json:"total"`
}

// Invoice is a snapshot of an invoice row from the backing store. CreatedAt is
// kept as the raw string the store returned (full timestamp or bare day) and
// normalized lazily by the income package.
type Invoice struct {
	ID            string        `json:"id"`
	InvoiceNumber string        `json:"invoice_number,omitempty"`
	CustomerName  string        `json:"customer_name,omitempty"`
	CreatedAt     string        `json:"created_at"`
	Subtotal      float64       `json:"subtotal"`
	TotalDiscount float64       `json:"total_discount"`
	GrandTotal    float64       `json:"grand_total"`
	PaidAmount    float64       `json:"paid_amount"`
	Items         []InvoiceItem `json:"items,omitempty"`
}

type InvoiceCreateRequest struct {
	InvoiceNumber string        `json:"invoice_number,omitempty"`
	CustomerName  string        `json:"customer_name"`
	Subtotal      float64       `json:"subtotal"`
	TotalDiscount float64       `json:"total_discount"`
	GrandTotal    float64       `json:"grand_total"`
	PaidAmount    float64       `json:"paid_amount"`
	Items         []InvoiceItem `json:"items,omitempty"`
}

type InvoiceListResponse struct {
	Invoices []Invoice `json:"invoices"`
}

// PaymentRecord is one incoming payment. InvoiceID may reference an invoice
// either by id or by human-readable invoice number; the income package tries
// both. InvoiceDate and InvoiceCustomerName are optional hints carried on rows
// whose invoice may not be resolvable.
type PaymentRecord struct {
	ID                  string  `json:"id"`
	InvoiceID           string  `json:"invoice_id,omitempty"`
	CustomerName        string  `json:"customer_name,omitempty"`
	PaymentDate         string  `json:"payment_date"`
	Amount              float64 `json:"amount"`
	PaymentMethod       string  `json:"payment_method,omitempty"`
	InvoiceDate         string  `json:"invoice_date,omitempty"`
	InvoiceCustomerName string  `json:"invoice_customer_name,omitempty"`
}

type PaymentCreateRequest struct {
	InvoiceID     string  `json:"invoice_id,omitempty"`
	CustomerName  string  `json:"customer_name,omitempty"`
	PaymentDate   string  `json:"payment_date"`
	Amount        float64 `json:"amount"`
	PaymentMethod string  `json:"payment_method,omitempty"`
}

type PaymentListResponse struct {
	Payments []PaymentRecord `json:"payments"`
}

// MergedRow is a PaymentRecord joined against the invoice collection.
// OverdueAmount is the row-level remaining balance of the referenced invoice,
// not the per-day outstanding figure on DailySummary; the two are computed
// independently and must not be conflated.
type MergedRow struct {
	PaymentRecord
	InvoiceTotal      float64 `json:"invoice_total"`
	InvoiceCreatedAt  string  `json:"invoice_created_at,omitempty"`
	InvoicePaidAmount float64 `json:"invoice_paid_amount"`
	OverdueAmount     float64 `json:"overdue_amount"`
}

// DailySummary is one row of the daily income table. TotalInvoice and
// TotalOverdue come from the unfiltered per-day invoice rollup; the paid
// buckets come from the range-filtered payment rows.
type DailySummary struct {
	Date                string  `json:"date"`
	TotalInvoice        float64 `json:"total_invoice"`
	TotalOverdue        float64 `json:"total_overdue"`
	TodayPaid           float64 `json:"today_paid"`
	TotalOldOverduePaid float64 `json:"total_old_overdue_paid"`
	TotalCollectable    float64 `json:"total_collectable"`
}

// IncomeTotals is the footer of the daily income table: a plain sum of the
// corresponding DailySummary fields across all days.
type IncomeTotals struct {
	Invoice     float64 `json:"invoice"`
	Paid        float64 `json:"paid"`
	Overdue     float64 `json:"overdue"`
	OldOverdue  float64 `json:"old_overdue"`
	Collectable float64 `json:"collectable"`
}

type DailyIncomeReport struct {
	Start   string         `json:"start"`
	End     string         `json:"end"`
	Summary []DailySummary `json:"summary"`
	Totals  IncomeTotals   `json:"totals"`
}

type IncomeRangeResponse struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type Product struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Category      string   `json:"category,omitempty"`
	Description   string   `json:"description,omitempty"`
	Price         float64  `json:"price"`
	OfferPrice    float64  `json:"offer_price,omitempty"`
	ImageURLs     []string `json:"image_urls,omitempty"`
	Featured      bool     `json:"featured"`
	Active        bool     `json:"active"`
	StockQuantity int      `json:"stock_quantity"`
}

type ProductCreateRequest struct {
	Name          string   `json:"name"`
	Category      string   `json:"category"`
	Description   string   `json:"description,omitempty"`
	Price         float64  `json:"price"`
	OfferPrice    float64  `json:"offer_price,omitempty"`
	ImageURLs     []string `json:"image_urls,omitempty"`
	Featured      bool     `json:"featured"`
	StockQuantity int      `json:"stock_quantity"`
}

type ProductUpdateRequest struct {
	Name          *string   `json:"name,omitempty"`
	Category      *string   `json:"category,omitempty"`
	Description   *string   `json:"description,omitempty"`
	Price         *float64  `json:"price,omitempty"`
	OfferPrice    *float64  `json:"offer_price,omitempty"`
	ImageURLs     *[]string `json:"image_urls,omitempty"`
	Featured      *bool     `json:"featured,omitempty"`
	Active        *bool     `json:"active,omitempty"`
	StockQuantity *int      `json:"stock_quantity,omitempty"`
}

type OrderItem struct {
	ProductID string  `json:"product_id"`
	Name      string  `json:"name,omitempty"`
	Qty       int     `json:"qty"`
	Price     float64 `json:"price"`
}

type Order struct {
	ID              string      `json:"id"`
	CustomerName    string      `json:"customer_name"`
	Phone           string      `json:"phone,omitempty"`
	DeliveryAddress string      `json:"delivery_address,omitempty"`
	PaymentMethod   string      `json:"payment_method"`
	Status          string      `json:"status"`
	TotalAmount     float64     `json:"total_amount"`
	InvoiceID       string      `json:"invoice_id,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
	Items           []OrderItem `json:"items"`
}

type CheckoutItem struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

type CheckoutRequest struct {
	CustomerName    string         `json:"customer_name"`
	Phone           string         `json:"phone,omitempty"`
	DeliveryAddress string         `json:"delivery_address,omitempty"`
	PaymentMethod   string         `json:"payment_method"`
	PaidAmount      float64        `json:"paid_amount"`
	Items           []CheckoutItem `json:"items"`
}

type CheckoutResponse struct {
	Order   Order   `json:"order"`
	Invoice Invoice `json:"invoice"`
}

type OrderListResponse struct {
	Orders []Order `json:"orders"`
}

type OrderStatusRequest struct {
	Status string `json:"status"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type DeleteRequest struct {
	Reason     string `json:"reason,omitempty"`
	ManagerPIN string `json:"manager_pin"`
}

type StaffCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type StaffUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

const (
	OrderStatusPending   = "pending"
	OrderStatusConfirmed = "confirmed"
	OrderStatusShipped   = "shipped"
	OrderStatusDelivered = "delivered"
	OrderStatusCancelled = "cancelled"
)
