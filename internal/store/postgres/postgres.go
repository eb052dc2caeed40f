package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"motocadena/backend/internal/domain"
	"motocadena/backend/internal/store"
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

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sku, name, price
		FROM products
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.SKU, &p.Name, &p.Price); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return products, nil
}

func (s *Store) ListServices(ctx context.Context) ([]domain.Service, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, price, is_active
		FROM services
		WHERE is_active = true
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	services := make([]domain.Service, 0, 32)
	for rows.Next() {
		var sv domain.Service
		if err := rows.Scan(&sv.ID, &sv.Name, &sv.Price, &sv.Active); err != nil {
			return nil, err
		}
		services = append(services, sv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return services, nil
}

func (s *Store) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, first_name, last_name
		FROM customers
		ORDER BY last_name, first_name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0, 64)
	for rows.Next() {
		var c domain.Customer
		if err := rows.Scan(&c.ID, &c.FirstName, &c.LastName); err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return customers, nil
}

func (s *Store) GetCustomer(ctx context.Context, id string) (*domain.Customer, error) {
	var c domain.Customer
	err := s.db.QueryRowContext(ctx, `
		SELECT id, first_name, last_name
		FROM customers
		WHERE id = $1
	`, id).Scan(&c.ID, &c.FirstName, &c.LastName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (s *Store) ListPendingInvoices(ctx context.Context) ([]domain.PendingInvoice, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT i.id, i.total_amount, i.work_order_id, i.created_at,
		       c.id, c.first_name, c.last_name
		FROM invoices i
		JOIN customers c ON c.id = i.customer_id
		WHERE i.status = 'PENDING'
		ORDER BY i.created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	invoices := make([]domain.PendingInvoice, 0, 32)
	for rows.Next() {
		inv, err := scanPendingInvoice(rows)
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

func (s *Store) GetPendingInvoice(ctx context.Context, id string) (*domain.PendingInvoice, error) {
	var status string
	row := s.db.QueryRowContext(ctx, `
		SELECT i.id, i.total_amount, i.work_order_id, i.created_at,
		       c.id, c.first_name, c.last_name, i.status
		FROM invoices i
		JOIN customers c ON c.id = i.customer_id
		WHERE i.id = $1
	`, id)

	var inv domain.PendingInvoice
	var workOrderID sql.NullString
	err := row.Scan(&inv.ID, &inv.TotalAmount, &workOrderID, &inv.CreatedAt,
		&inv.Customer.ID, &inv.Customer.FirstName, &inv.Customer.LastName, &status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if status != "PENDING" {
		return nil, store.ErrInvoiceNotPending
	}
	inv.WorkOrderID = workOrderID.String
	inv.CreatedAt = inv.CreatedAt.UTC()
	return &inv, nil
}

type invoiceScanner interface {
	Scan(dest ...any) error
}

func scanPendingInvoice(row invoiceScanner) (domain.PendingInvoice, error) {
	var inv domain.PendingInvoice
	var workOrderID sql.NullString
	err := row.Scan(&inv.ID, &inv.TotalAmount, &workOrderID, &inv.CreatedAt,
		&inv.Customer.ID, &inv.Customer.FirstName, &inv.Customer.LastName)
	if err != nil {
		return domain.PendingInvoice{}, err
	}
	inv.WorkOrderID = workOrderID.String
	inv.CreatedAt = inv.CreatedAt.UTC()
	return inv, nil
}

// CommitSettlement runs the whole settlement write in one serializable
// transaction. Liquidations flip the invoice from PENDING with a conditional
// update; zero affected rows means another session got there first and the
// commit fails with ErrInvoiceNotPending.
func (s *Store) CommitSettlement(ctx context.Context, commit domain.SettlementCommit) (*domain.SettlementResult, error) {
	if (commit.Invoice == nil) == (commit.Sale == nil) {
		return nil, store.ErrInvalidCommit
	}
	if len(commit.Allocations) == 0 {
		return nil, store.ErrInvalidCommit
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	result := &domain.SettlementResult{CommittedAt: now}

	var saleID, workOrderID string
	switch {
	case commit.Invoice != nil:
		res, err := tx.ExecContext(ctx, `
			UPDATE invoices
			SET status = 'PAID', payment_method = $2, updated_at = $3
			WHERE id = $1 AND status = 'PENDING'
		`, commit.Invoice.InvoiceID, domain.MethodMixed, now)
		if err != nil {
			return nil, err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if affected == 0 {
			return nil, store.ErrInvoiceNotPending
		}

		var total decimal.Decimal
		err = tx.QueryRowContext(ctx, `
			SELECT total_amount FROM invoices WHERE id = $1
		`, commit.Invoice.InvoiceID).Scan(&total)
		if err != nil {
			return nil, err
		}

		if commit.Invoice.WorkOrderID != "" {
			res, err := tx.ExecContext(ctx, `
				UPDATE work_orders
				SET billing_status = 'PAID', status = 'READY', updated_at = $2
				WHERE id = $1
			`, commit.Invoice.WorkOrderID, now)
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
			workOrderID = commit.Invoice.WorkOrderID
		}

		result.InvoiceID = commit.Invoice.InvoiceID
		result.WorkOrderID = workOrderID
		result.TotalAmount = total

	case commit.Sale != nil:
		sale := commit.Sale
		if sale.CustomerID == "" || len(sale.Items) == 0 {
			return nil, store.ErrInvalidCommit
		}

		saleID = uuid.NewString()
		_, err := tx.ExecContext(ctx, `
			INSERT INTO pos_sales (id, customer_id, seller_id, total_amount, status, created_at)
			VALUES ($1,$2,$3,$4,'COMPLETED',$5)
		`, saleID, sale.CustomerID, nullIfEmpty(sale.SellerID), sale.TotalAmount, now)
		if err != nil {
			return nil, err
		}

		for _, item := range sale.Items {
			var productID, serviceID any
			switch item.Kind {
			case domain.KindProduct:
				productID = item.CatalogID
			case domain.KindService:
				serviceID = item.CatalogID
			default:
				return nil, store.ErrInvalidCommit
			}
			_, err := tx.ExecContext(ctx, `
				INSERT INTO pos_sale_items (id, sale_id, product_id, service_id, quantity, price)
				VALUES ($1,$2,$3,$4,$5,$6)
			`, uuid.NewString(), saleID, productID, serviceID, item.Quantity, item.UnitPrice)
			if err != nil {
				return nil, err
			}
		}

		result.SaleID = saleID
		result.TotalAmount = sale.TotalAmount
	}

	payments := make([]domain.PaymentRecord, 0, len(commit.Allocations))
	for _, alloc := range commit.Allocations {
		payment := domain.PaymentRecord{
			ID:          uuid.NewString(),
			SaleID:      saleID,
			WorkOrderID: workOrderID,
			Amount:      alloc.AmountBase,
			Method:      alloc.Method,
			Reference:   alloc.Reference,
			CreatedAt:   now,
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO payments (id, sale_id, work_order_id, amount, method, reference_code, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, payment.ID, nullIfEmpty(payment.SaleID), nullIfEmpty(payment.WorkOrderID), payment.Amount, payment.Method, nullIfEmpty(payment.Reference), payment.CreatedAt)
		if err != nil {
			return nil, err
		}
		payments = append(payments, payment)
	}
	result.Payments = payments

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) (*domain.UserAccount, error) {
	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return nil, store.ErrInvalidCommit
	}
	user.Username = username
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.Role == "" {
		user.Role = "cashier"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, username, password_hash, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (username) DO NOTHING
	`, user.ID, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrUsernameTaken
	}

	created := user
	return &created, nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error) {
	var user domain.UserAccount
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, password_hash, role, active, created_at
		FROM users
		WHERE username = $1
	`, strings.ToLower(strings.TrimSpace(username))).Scan(
		&user.ID, &user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	user.CreatedAt = user.CreatedAt.UTC()
	return &user, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, username, password_hash, role, active, created_at
		FROM users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 8)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.ID, &user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
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

func nullIfEmpty(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
