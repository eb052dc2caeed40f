package memory

import (
	"context"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"motocadena/backend/internal/domain"
	"motocadena/backend/internal/store"
)

// Store is the in-memory repository used for dev/demo mode and tests. It
// mirrors the transactional behavior of the PostgreSQL store: CommitSettlement
// validates everything before mutating anything.
type Store struct {
	mu              sync.RWMutex
	productsByID    map[string]domain.Product
	servicesByID    map[string]domain.Service
	customersByID   map[string]domain.Customer
	invoicesByID    map[string]invoiceRow
	workOrdersByID  map[string]workOrderRow
	salesByID       map[string]saleRow
	paymentsByID    map[string]domain.PaymentRecord
	usersByUsername map[string]domain.UserAccount
}

type invoiceRow struct {
	domain.PendingInvoice
	Status        string
	PaymentMethod string
	UpdatedAt     time.Time
}

type workOrderRow struct {
	ID            string
	CustomerID    string
	Status        string
	BillingStatus string
	UpdatedAt     time.Time
}

type saleRow struct {
	ID          string
	CustomerID  string
	SellerID    string
	TotalAmount decimal.Decimal
	Status      string
	Items       []domain.CartItem
	CreatedAt   time.Time
}

// seedUsers builds the initial user accounts for dev/demo mode. Credentials
// come from SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD; unset variables
// fall back to hardcoded dev defaults with a warning. Production deployments
// use PostgreSQL via DATABASE_URL and never reach this path.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cajero123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"cajero", cashierPwd, "cashier"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			ID:        uuid.NewString(),
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

func NewSeeded() *Store {
	price := decimal.RequireFromString

	products := []domain.Product{
		{ID: uuid.NewString(), SKU: "REP-ACE-10W40", Name: "Aceite 10W40 1L", Price: price("9.50")},
		{ID: uuid.NewString(), SKU: "REP-BUJIA-NGK", Name: "Bujía NGK CR8E", Price: price("6.00")},
		{ID: uuid.NewString(), SKU: "REP-KIT-ARRASTRE", Name: "Kit de arrastre 428H", Price: price("38.00")},
		{ID: uuid.NewString(), SKU: "REP-PASTILLA-FRENO", Name: "Pastillas de freno delanteras", Price: price("12.00")},
		{ID: uuid.NewString(), SKU: "REP-CAUCHO-TRAS", Name: "Caucho trasero 110/90-17", Price: price("45.00")},
		{ID: uuid.NewString(), SKU: "REP-BATERIA-12V", Name: "Batería 12V 7Ah", Price: price("28.00")},
		{ID: uuid.NewString(), SKU: "REP-FILTRO-AIRE", Name: "Filtro de aire", Price: price("8.50")},
	}
	services := []domain.Service{
		{ID: uuid.NewString(), Name: "Cambio de aceite", Price: price("5.00"), Active: true},
		{ID: uuid.NewString(), Name: "Servicio de frenos", Price: price("10.00"), Active: true},
		{ID: uuid.NewString(), Name: "Cambio de kit de arrastre", Price: price("15.00"), Active: true},
		{ID: uuid.NewString(), Name: "Diagnóstico general", Price: price("12.00"), Active: true},
		{ID: uuid.NewString(), Name: "Montaje de caucho", Price: price("6.00"), Active: true},
	}
	customers := []domain.Customer{
		{ID: uuid.NewString(), FirstName: "Carlos", LastName: "Pérez"},
		{ID: uuid.NewString(), FirstName: "María", LastName: "González"},
		{ID: uuid.NewString(), FirstName: "José", LastName: "Rodríguez"},
		{ID: uuid.NewString(), FirstName: "Ana", LastName: "Martínez"},
	}

	now := time.Now().UTC()
	workOrder := workOrderRow{
		ID:            uuid.NewString(),
		CustomerID:    customers[0].ID,
		Status:        "IN_PROGRESS",
		BillingStatus: "INVOICED",
		UpdatedAt:     now,
	}
	invoices := []invoiceRow{
		{
			PendingInvoice: domain.PendingInvoice{
				ID:          uuid.NewString(),
				TotalAmount: price("120.00"),
				Customer:    customers[0],
				WorkOrderID: workOrder.ID,
				CreatedAt:   now.Add(-48 * time.Hour),
			},
			Status: "PENDING",
		},
		{
			PendingInvoice: domain.PendingInvoice{
				ID:          uuid.NewString(),
				TotalAmount: price("35.50"),
				Customer:    customers[1],
				CreatedAt:   now.Add(-24 * time.Hour),
			},
			Status: "PENDING",
		},
	}

	productMap := make(map[string]domain.Product, len(products))
	for _, p := range products {
		productMap[p.ID] = p
	}
	serviceMap := make(map[string]domain.Service, len(services))
	for _, sv := range services {
		serviceMap[sv.ID] = sv
	}
	customerMap := make(map[string]domain.Customer, len(customers))
	for _, c := range customers {
		customerMap[c.ID] = c
	}
	invoiceMap := make(map[string]invoiceRow, len(invoices))
	for _, inv := range invoices {
		invoiceMap[inv.ID] = inv
	}

	return &Store{
		productsByID:    productMap,
		servicesByID:    serviceMap,
		customersByID:   customerMap,
		invoicesByID:    invoiceMap,
		workOrdersByID:  map[string]workOrderRow{workOrder.ID: workOrder},
		salesByID:       make(map[string]saleRow),
		paymentsByID:    make(map[string]domain.PaymentRecord),
		usersByUsername: seedUsers(),
	}
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.productsByID))
	for _, p := range s.productsByID {
		products = append(products, p)
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		return cmpString(a.Name, b.Name)
	})
	return products, nil
}

func (s *Store) ListServices(_ context.Context) ([]domain.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	services := make([]domain.Service, 0, len(s.servicesByID))
	for _, sv := range s.servicesByID {
		if !sv.Active {
			continue
		}
		services = append(services, sv)
	}
	slices.SortFunc(services, func(a, b domain.Service) int {
		return cmpString(a.Name, b.Name)
	})
	return services, nil
}

func (s *Store) ListCustomers(_ context.Context) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customers := make([]domain.Customer, 0, len(s.customersByID))
	for _, c := range s.customersByID {
		customers = append(customers, c)
	}
	slices.SortFunc(customers, func(a, b domain.Customer) int {
		if a.LastName == b.LastName {
			return cmpString(a.FirstName, b.FirstName)
		}
		return cmpString(a.LastName, b.LastName)
	})
	return customers, nil
}

func (s *Store) GetCustomer(_ context.Context, id string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customer, exists := s.customersByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyCustomer := customer
	return &copyCustomer, nil
}

func (s *Store) ListPendingInvoices(_ context.Context) ([]domain.PendingInvoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	invoices := make([]domain.PendingInvoice, 0, len(s.invoicesByID))
	for _, inv := range s.invoicesByID {
		if inv.Status != "PENDING" {
			continue
		}
		invoices = append(invoices, inv.PendingInvoice)
	}
	slices.SortFunc(invoices, func(a, b domain.PendingInvoice) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(a.ID, b.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	return invoices, nil
}

func (s *Store) GetPendingInvoice(_ context.Context, id string) (*domain.PendingInvoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inv, exists := s.invoicesByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	if inv.Status != "PENDING" {
		return nil, store.ErrInvoiceNotPending
	}
	copyInv := inv.PendingInvoice
	return &copyInv, nil
}

// CommitSettlement applies the whole settlement or none of it. Validation
// runs first against the locked state; mutations only start once every write
// is known to succeed.
func (s *Store) CommitSettlement(_ context.Context, commit domain.SettlementCommit) (*domain.SettlementResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if (commit.Invoice == nil) == (commit.Sale == nil) {
		return nil, store.ErrInvalidCommit
	}
	if len(commit.Allocations) == 0 {
		return nil, store.ErrInvalidCommit
	}

	now := time.Now().UTC()
	result := &domain.SettlementResult{CommittedAt: now}

	var saleID, workOrderID string
	switch {
	case commit.Invoice != nil:
		inv, exists := s.invoicesByID[commit.Invoice.InvoiceID]
		if !exists {
			return nil, store.ErrNotFound
		}
		if inv.Status != "PENDING" {
			return nil, store.ErrInvoiceNotPending
		}
		if commit.Invoice.WorkOrderID != "" {
			if _, exists := s.workOrdersByID[commit.Invoice.WorkOrderID]; !exists {
				return nil, store.ErrNotFound
			}
		}

		inv.Status = "PAID"
		inv.PaymentMethod = domain.MethodMixed
		inv.UpdatedAt = now
		s.invoicesByID[inv.ID] = inv

		if commit.Invoice.WorkOrderID != "" {
			wo := s.workOrdersByID[commit.Invoice.WorkOrderID]
			wo.BillingStatus = "PAID"
			wo.Status = "READY"
			wo.UpdatedAt = now
			s.workOrdersByID[wo.ID] = wo
			workOrderID = wo.ID
		}

		result.InvoiceID = inv.ID
		result.WorkOrderID = workOrderID
		result.TotalAmount = inv.TotalAmount

	case commit.Sale != nil:
		sale := commit.Sale
		if sale.CustomerID == "" || len(sale.Items) == 0 {
			return nil, store.ErrInvalidCommit
		}
		if _, exists := s.customersByID[sale.CustomerID]; !exists {
			return nil, store.ErrNotFound
		}

		saleID = uuid.NewString()
		items := make([]domain.CartItem, len(sale.Items))
		copy(items, sale.Items)
		s.salesByID[saleID] = saleRow{
			ID:          saleID,
			CustomerID:  sale.CustomerID,
			SellerID:    sale.SellerID,
			TotalAmount: sale.TotalAmount,
			Status:      "COMPLETED",
			Items:       items,
			CreatedAt:   now,
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
		s.paymentsByID[payment.ID] = payment
		payments = append(payments, payment)
	}
	result.Payments = payments

	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) (*domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return nil, store.ErrInvalidCommit
	}
	if _, exists := s.usersByUsername[username]; exists {
		return nil, store.ErrUsernameTaken
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
	s.usersByUsername[user.Username] = user
	created := user
	return &created, nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, exists := s.usersByUsername[strings.ToLower(strings.TrimSpace(username))]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyUser := user
	return &copyUser, nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmpString(a.Username, b.Username)
	})
	return users, nil
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
