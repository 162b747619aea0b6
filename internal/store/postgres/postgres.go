package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"shopledger/backend/internal/domain"
	"shopledger/backend/internal/store"
	"shopledger/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ListProducts(ctx context.Context, activeOnly bool) ([]domain.Product, error) {
	query := `
		SELECT id, name, category, description, price, offer_price, image_urls, featured, active, stock_quantity
		FROM products
		ORDER BY category, name
	`
	if activeOnly {
		query = `
			SELECT id, name, category, description, price, offer_price, image_urls, featured, active, stock_quantity
			FROM products
			WHERE active = true
			ORDER BY category, name
		`
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return products, nil
}

func (s *Store) GetProductByID(ctx context.Context, id string) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, category, description, price, offer_price, image_urls, featured, active, stock_quantity
		FROM products
		WHERE id = $1
	`, id)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || product.Price <= 0 {
		return nil, store.ErrInvalidInput
	}
	if product.StockQuantity < 0 || product.OfferPrice < 0 {
		return nil, store.ErrInvalidInput
	}
	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	product.Active = true

	urls, err := json.Marshal(product.ImageURLs)
	if err != nil {
		return nil, err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO products (id, name, category, description, price, offer_price, image_urls, featured, active, stock_quantity, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,now(),now())
	`, product.ID, product.Name, product.Category, product.Description, product.Price,
		product.OfferPrice, urls, product.Featured, product.Active, product.StockQuantity)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}

	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || product.Price <= 0 {
		return nil, store.ErrInvalidInput
	}
	if product.StockQuantity < 0 || product.OfferPrice < 0 {
		return nil, store.ErrInvalidInput
	}

	urls, err := json.Marshal(product.ImageURLs)
	if err != nil {
		return nil, err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, category = $3, description = $4, price = $5, offer_price = $6,
			image_urls = $7, featured = $8, active = $9, stock_quantity = $10, updated_at = now()
		WHERE id = $1
	`, product.ID, product.Name, product.Category, product.Description, product.Price,
		product.OfferPrice, urls, product.Featured, product.Active, product.StockQuantity)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	updated := product
	return &updated, nil
}

func (s *Store) DecrementStock(ctx context.Context, productID string, qty int) error {
	if qty < 1 {
		return store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET stock_quantity = stock_quantity - $2, updated_at = now()
		WHERE id = $1 AND active = true AND stock_quantity >= $2
	`, productID, qty)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		var exists bool
		if err := s.db.QueryRowContext(ctx, `
			SELECT EXISTS (SELECT 1 FROM products WHERE id = $1 AND active = true)
		`, productID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return store.ErrNotFound
		}
		return store.ErrInsufficientStock
	}
	return nil
}

// CreateCheckout runs the stock decrements and the invoice and order inserts
// inside one serializable transaction; a failing line or insert rolls the
// whole checkout back.
func (s *Store) CreateCheckout(ctx context.Context, order domain.Order, invoice domain.Invoice) (*domain.Order, *domain.Invoice, error) {
	if order.CustomerName == "" || len(order.Items) == 0 {
		return nil, nil, store.ErrInvalidInput
	}
	if invoice.CustomerName == "" || invoice.GrandTotal < 0 || invoice.PaidAmount < 0 {
		return nil, nil, store.ErrInvalidInput
	}
	if order.ID == "" {
		order.ID = xid.New("ord")
	}
	if invoice.ID == "" {
		invoice.ID = xid.New("inv")
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}
	if order.Status == "" {
		order.Status = domain.OrderStatusPending
	}
	if invoice.CreatedAt == "" {
		invoice.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}
	order.InvoiceID = invoice.ID

	invoiceItems, err := json.Marshal(invoice.Items)
	if err != nil {
		return nil, nil, err
	}
	orderItems, err := json.Marshal(order.Items)
	if err != nil {
		return nil, nil, err
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = tx.Rollback() }()

	for _, item := range order.Items {
		if item.Qty < 1 {
			return nil, nil, store.ErrInvalidInput
		}
		res, err := tx.ExecContext(ctx, `
			UPDATE products
			SET stock_quantity = stock_quantity - $2, updated_at = now()
			WHERE id = $1 AND active = true AND stock_quantity >= $2
		`, item.ProductID, item.Qty)
		if err != nil {
			return nil, nil, err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, nil, err
		}
		if affected == 0 {
			var exists bool
			if err := tx.QueryRowContext(ctx, `
				SELECT EXISTS (SELECT 1 FROM products WHERE id = $1 AND active = true)
			`, item.ProductID).Scan(&exists); err != nil {
				return nil, nil, err
			}
			if !exists {
				return nil, nil, store.ErrNotFound
			}
			return nil, nil, store.ErrInsufficientStock
		}
	}

	if invoice.InvoiceNumber == "" {
		if err := tx.QueryRowContext(ctx, `
			SELECT 'INV-' || LPAD(nextval('invoice_number_seq')::text, 5, '0')
		`).Scan(&invoice.InvoiceNumber); err != nil {
			return nil, nil, err
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO invoices (id, invoice_number, customer_name, created_at, subtotal, total_discount, grand_total, paid_amount, items)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, invoice.ID, invoice.InvoiceNumber, invoice.CustomerName, invoice.CreatedAt,
		invoice.Subtotal, invoice.TotalDiscount, invoice.GrandTotal, invoice.PaidAmount, invoiceItems)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, nil, store.ErrConflict
		}
		return nil, nil, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (id, customer_name, phone, delivery_address, payment_method, status, total_amount, invoice_id, items, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, order.ID, order.CustomerName, nullIfEmpty(order.Phone), nullIfEmpty(order.DeliveryAddress),
		order.PaymentMethod, order.Status, order.TotalAmount, order.InvoiceID, orderItems, order.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, nil, store.ErrConflict
		}
		return nil, nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}

	createdOrder := order
	createdInvoice := invoice
	return &createdOrder, &createdInvoice, nil
}

func (s *Store) CreateOrder(ctx context.Context, order domain.Order) (*domain.Order, error) {
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

	items, err := json.Marshal(order.Items)
	if err != nil {
		return nil, err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO orders (id, customer_name, phone, delivery_address, payment_method, status, total_amount, invoice_id, items, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, order.ID, order.CustomerName, nullIfEmpty(order.Phone), nullIfEmpty(order.DeliveryAddress),
		order.PaymentMethod, order.Status, order.TotalAmount, nullIfEmpty(order.InvoiceID), items, order.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}

	created := order
	return &created, nil
}

func (s *Store) ListOrders(ctx context.Context, status string, limit int) ([]domain.Order, error) {
	if limit < 1 {
		limit = 100
	}
	status = strings.ToLower(strings.TrimSpace(status))

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, customer_name, phone, delivery_address, payment_method, status, total_amount, invoice_id, items, created_at
		FROM orders
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := make([]domain.Order, 0, limit)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return orders, nil
}

func (s *Store) GetOrderByID(ctx context.Context, id string) (*domain.Order, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, customer_name, phone, delivery_address, payment_method, status, total_amount, invoice_id, items, created_at
		FROM orders
		WHERE id = $1
	`, id)
	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &order, nil
}

func (s *Store) UpdateOrderStatus(ctx context.Context, id string, status string) (*domain.Order, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE orders
		SET status = $2
		WHERE id = $1
	`, id, status)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetOrderByID(ctx, id)
}

func (s *Store) ListInvoices(ctx context.Context) ([]domain.Invoice, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, invoice_number, customer_name, created_at, subtotal, total_discount, grand_total, paid_amount, items
		FROM invoices
		ORDER BY created_at DESC, id DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	invoices := make([]domain.Invoice, 0, 256)
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return invoices, nil
}

func (s *Store) GetInvoiceByID(ctx context.Context, id string) (*domain.Invoice, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, invoice_number, customer_name, created_at, subtotal, total_discount, grand_total, paid_amount, items
		FROM invoices
		WHERE id = $1
	`, id)
	inv, err := scanInvoice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &inv, nil
}

func (s *Store) CreateInvoice(ctx context.Context, invoice domain.Invoice) (*domain.Invoice, error) {
	if invoice.CustomerName == "" || invoice.GrandTotal < 0 || invoice.PaidAmount < 0 {
		return nil, store.ErrInvalidInput
	}
	if invoice.ID == "" {
		invoice.ID = xid.New("inv")
	}
	if invoice.CreatedAt == "" {
		invoice.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}

	items, err := json.Marshal(invoice.Items)
	if err != nil {
		return nil, err
	}

	if invoice.InvoiceNumber == "" {
		// created_at carries raw upstream values, so the sequence comes
		// from a dedicated counter rather than a row count.
		if err := s.db.QueryRowContext(ctx, `
			SELECT 'INV-' || LPAD(nextval('invoice_number_seq')::text, 5, '0')
		`).Scan(&invoice.InvoiceNumber); err != nil {
			return nil, err
		}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO invoices (id, invoice_number, customer_name, created_at, subtotal, total_discount, grand_total, paid_amount, items)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, invoice.ID, invoice.InvoiceNumber, invoice.CustomerName, invoice.CreatedAt,
		invoice.Subtotal, invoice.TotalDiscount, invoice.GrandTotal, invoice.PaidAmount, items)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}

	created := invoice
	return &created, nil
}

func (s *Store) DeleteInvoice(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM invoices WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListPayments(ctx context.Context) ([]domain.PaymentRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, invoice_id, customer_name, payment_date, amount, payment_method, invoice_date, invoice_customer_name
		FROM payments
		ORDER BY payment_date DESC, id DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := make([]domain.PaymentRecord, 0, 256)
	for rows.Next() {
		var p domain.PaymentRecord
		var invoiceID, customer, method, invoiceDate, invoiceCustomer sql.NullString
		if err := rows.Scan(&p.ID, &invoiceID, &customer, &p.PaymentDate, &p.Amount, &method, &invoiceDate, &invoiceCustomer); err != nil {
			return nil, err
		}
		p.InvoiceID = invoiceID.String
		p.CustomerName = customer.String
		p.PaymentMethod = method.String
		p.InvoiceDate = invoiceDate.String
		p.InvoiceCustomerName = invoiceCustomer.String
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return payments, nil
}

func (s *Store) CreatePayment(ctx context.Context, payment domain.PaymentRecord) (*domain.PaymentRecord, error) {
	if payment.PaymentDate == "" || payment.Amount <= 0 {
		return nil, store.ErrInvalidInput
	}
	if payment.ID == "" {
		payment.ID = xid.New("pay")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO payments (id, invoice_id, customer_name, payment_date, amount, payment_method, invoice_date, invoice_customer_name)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, payment.ID, nullIfEmpty(payment.InvoiceID), nullIfEmpty(payment.CustomerName),
		payment.PaymentDate, payment.Amount, nullIfEmpty(payment.PaymentMethod),
		nullIfEmpty(payment.InvoiceDate), nullIfEmpty(payment.InvoiceCustomerName))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}

	created := payment
	return &created, nil
}

func (s *Store) DeletePayment(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM payments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorUsername, &entry.ActorRole, &entry.Action,
			&entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if user.Role == "" {
		user.Role = "staff"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password_hash, role, active, created_at)
		VALUES ($1,$2,$3,true,$4)
	`, username, user.Password, user.Role, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrConflict
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password_hash, role, active, created_at
		FROM users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET password_hash = $2
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var p domain.Product
	var description sql.NullString
	var urls []byte
	if err := row.Scan(&p.ID, &p.Name, &p.Category, &description, &p.Price, &p.OfferPrice,
		&urls, &p.Featured, &p.Active, &p.StockQuantity); err != nil {
		return domain.Product{}, err
	}
	p.Description = description.String
	if len(urls) > 0 {
		if err := json.Unmarshal(urls, &p.ImageURLs); err != nil {
			return domain.Product{}, err
		}
	}
	return p, nil
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var order domain.Order
	var phone, address, invoiceID sql.NullString
	var items []byte
	if err := row.Scan(&order.ID, &order.CustomerName, &phone, &address, &order.PaymentMethod,
		&order.Status, &order.TotalAmount, &invoiceID, &items, &order.CreatedAt); err != nil {
		return domain.Order{}, err
	}
	order.Phone = phone.String
	order.DeliveryAddress = address.String
	order.InvoiceID = invoiceID.String
	order.CreatedAt = order.CreatedAt.UTC()
	if len(items) > 0 {
		if err := json.Unmarshal(items, &order.Items); err != nil {
			return domain.Order{}, err
		}
	}
	return order, nil
}

func scanInvoice(row rowScanner) (domain.Invoice, error) {
	var inv domain.Invoice
	var number, customer sql.NullString
	var items []byte
	if err := row.Scan(&inv.ID, &number, &customer, &inv.CreatedAt, &inv.Subtotal,
		&inv.TotalDiscount, &inv.GrandTotal, &inv.PaidAmount, &items); err != nil {
		return domain.Invoice{}, err
	}
	inv.InvoiceNumber = number.String
	inv.CustomerName = customer.String
	if len(items) > 0 {
		if err := json.Unmarshal(items, &inv.Items); err != nil {
			return domain.Invoice{}, err
		}
	}
	return inv, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}
