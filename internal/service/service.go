package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"motocadena/backend/internal/domain"
	"motocadena/backend/internal/rates"
	"motocadena/backend/internal/settlement"
	"motocadena/backend/internal/store"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// Service owns the live settlement sessions and mediates between the HTTP
// layer, the rate source and the repository. Sessions live in memory; only a
// successful commit touches the store.
type Service struct {
	repo  store.Repository
	rates rates.Source

	mu       sync.RWMutex
	sessions map[string]*settlement.Session
}

func New(repo store.Repository, rateSource rates.Source) *Service {
	return &Service{
		repo:     repo,
		rates:    rateSource,
		sessions: make(map[string]*settlement.Session),
	}
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) ListServices(ctx context.Context) ([]domain.Service, error) {
	return s.repo.ListServices(ctx)
}

func (s *Service) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	return s.repo.ListCustomers(ctx)
}

func (s *Service) ListPendingInvoices(ctx context.Context) ([]domain.PendingInvoice, error) {
	return s.repo.ListPendingInvoices(ctx)
}

// CurrentRate resolves the exchange rate the counter should quote right now.
func (s *Service) CurrentRate(ctx context.Context) (decimal.Decimal, error) {
	return s.rates.Rate(ctx)
}

// StartSession opens a fresh settlement session and returns its view.
func (s *Service) StartSession(_ context.Context) domain.SessionView {
	session := settlement.NewSession(uuid.NewString())

	s.mu.Lock()
	s.sessions[session.ID()] = session
	s.mu.Unlock()

	return session.View()
}

func (s *Service) GetSession(_ context.Context, id string) (domain.SessionView, error) {
	session, err := s.session(id)
	if err != nil {
		return domain.SessionView{}, err
	}
	return session.View(), nil
}

// CancelSession drops a session that has not started committing. Nothing was
// persisted, so there is nothing to undo.
func (s *Service) CancelSession(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.sessions[id]
	if !exists {
		return store.ErrNotFound
	}
	if !session.Cancelable() {
		return fmt.Errorf("session %s has a commit in flight", id)
	}
	delete(s.sessions, id)
	return nil
}

func (s *Service) AddCartItem(ctx context.Context, sessionID string, req domain.AddCartItemRequest) (domain.SessionView, error) {
	session, err := s.session(sessionID)
	if err != nil {
		return domain.SessionView{}, err
	}

	line, err := s.catalogLine(ctx, req.CatalogID, req.Kind)
	if err != nil {
		return domain.SessionView{}, err
	}
	if err := session.AddCartItem(*line, req.ConfirmDiscard); err != nil {
		return domain.SessionView{}, err
	}
	return session.View(), nil
}

func (s *Service) SetCartQuantity(_ context.Context, sessionID string, req domain.SetCartQuantityRequest) (domain.SessionView, error) {
	session, err := s.session(sessionID)
	if err != nil {
		return domain.SessionView{}, err
	}
	if err := session.SetCartQuantity(req.CatalogID, req.Kind, req.Quantity); err != nil {
		return domain.SessionView{}, err
	}
	return session.View(), nil
}

func (s *Service) RemoveCartItem(_ context.Context, sessionID string, req domain.RemoveCartItemRequest) (domain.SessionView, error) {
	session, err := s.session(sessionID)
	if err != nil {
		return domain.SessionView{}, err
	}
	if err := session.RemoveCartItem(req.CatalogID, req.Kind); err != nil {
		return domain.SessionView{}, err
	}
	return session.View(), nil
}

func (s *Service) SelectInvoice(ctx context.Context, sessionID string, req domain.SelectInvoiceRequest) (domain.SessionView, error) {
	session, err := s.session(sessionID)
	if err != nil {
		return domain.SessionView{}, err
	}

	invoice, err := s.repo.GetPendingInvoice(ctx, req.InvoiceID)
	if err != nil {
		return domain.SessionView{}, err
	}
	if err := session.SelectInvoice(*invoice, req.ConfirmDiscard); err != nil {
		return domain.SessionView{}, err
	}
	return session.View(), nil
}

func (s *Service) AssignCustomer(ctx context.Context, sessionID string, req domain.AssignCustomerRequest) (domain.SessionView, error) {
	session, err := s.session(sessionID)
	if err != nil {
		return domain.SessionView{}, err
	}

	customer, err := s.repo.GetCustomer(ctx, req.CustomerID)
	if err != nil {
		return domain.SessionView{}, err
	}
	if err := session.AssignCustomer(*customer); err != nil {
		return domain.SessionView{}, err
	}
	return session.View(), nil
}

func (s *Service) ClearTarget(_ context.Context, sessionID string) (domain.SessionView, error) {
	session, err := s.session(sessionID)
	if err != nil {
		return domain.SessionView{}, err
	}
	if err := session.ClearTarget(); err != nil {
		return domain.SessionView{}, err
	}
	return session.View(), nil
}

// AddAllocation records an abono. The amount arrives as a string and is
// parsed exactly; the current exchange rate is resolved here and frozen into
// the allocation.
func (s *Service) AddAllocation(ctx context.Context, sessionID string, req domain.AddAllocationRequest) (domain.SessionView, error) {
	session, err := s.session(sessionID)
	if err != nil {
		return domain.SessionView{}, err
	}

	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if !domain.IsPaymentMethod(method) {
		return domain.SessionView{}, fmt.Errorf("unknown payment method %q", req.Method)
	}

	amount, err := decimal.NewFromString(strings.TrimSpace(req.Amount))
	if err != nil {
		return domain.SessionView{}, fmt.Errorf("invalid amount %q: %w", req.Amount, err)
	}

	currency := req.Currency
	if currency == "" {
		currency = domain.CurrencyBase
		if domain.LocalDenominated(method) {
			currency = domain.CurrencyLocal
		}
	}

	rate, err := s.rates.Rate(ctx)
	if err != nil {
		return domain.SessionView{}, fmt.Errorf("resolve exchange rate: %w", err)
	}

	if _, err := session.AddAllocation(method, amount, currency, strings.TrimSpace(req.Reference), rate); err != nil {
		return domain.SessionView{}, err
	}
	return session.View(), nil
}

func (s *Service) RemoveAllocation(_ context.Context, sessionID string, index int) (domain.SessionView, error) {
	session, err := s.session(sessionID)
	if err != nil {
		return domain.SessionView{}, err
	}
	if err := session.RemoveAllocation(index); err != nil {
		return domain.SessionView{}, err
	}
	return session.View(), nil
}

// Commit closes the session against the store. The acting user becomes the
// seller on direct sales. Committed sessions are removed from the registry;
// failed ones stay so the operator can retry.
func (s *Service) Commit(ctx context.Context, sessionID string) (*domain.SettlementResult, error) {
	session, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}

	actor, _ := ActorFromContext(ctx)
	result, err := session.Commit(ctx, s.repo, actor.UserID)
	if err != nil {
		log.Printf("[service] settlement commit failed session=%s: %v", sessionID, err)
		return nil, err
	}

	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()

	log.Printf("[service] settlement committed session=%s total=%s by=%s", sessionID, result.TotalAmount, actor.Username)
	return result, nil
}

// ListUsers returns the account roster for the admin screen, without
// password hashes.
func (s *Service) ListUsers(ctx context.Context) ([]domain.UserView, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return nil, fmt.Errorf("admin role required")
	}

	users, err := s.repo.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]domain.UserView, 0, len(users))
	for _, user := range users {
		views = append(views, domain.UserView{
			ID:        user.ID,
			Username:  user.Username,
			Role:      user.Role,
			Active:    user.Active,
			CreatedAt: user.CreatedAt,
		})
	}
	return views, nil
}

// CreateUser registers a login account. Passwords are hashed here so the
// store only ever sees bcrypt hashes.
func (s *Service) CreateUser(ctx context.Context, req domain.CreateUserRequest) (*domain.UserView, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return nil, fmt.Errorf("admin role required")
	}

	username := strings.ToLower(strings.TrimSpace(req.Username))
	if len(username) < 4 || strings.ContainsAny(username, " \t\r\n") {
		return nil, fmt.Errorf("username must be at least 4 characters with no spaces")
	}
	if len(strings.TrimSpace(req.Password)) < 6 {
		return nil, fmt.Errorf("password must be at least 6 characters")
	}
	role := strings.TrimSpace(req.Role)
	if role == "" {
		role = "cashier"
	}
	if role != "cashier" && role != "admin" {
		return nil, fmt.Errorf("unknown role %q", role)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	created, err := s.repo.CreateUser(ctx, domain.UserAccount{
		Username: username,
		Password: string(hash),
		Role:     role,
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[service] user created username=%s role=%s by=%s", created.Username, created.Role, actor.Username)
	return &domain.UserView{
		ID:        created.ID,
		Username:  created.Username,
		Role:      created.Role,
		Active:    created.Active,
		CreatedAt: created.CreatedAt,
	}, nil
}

func (s *Service) session(id string) (*settlement.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, exists := s.sessions[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return session, nil
}

// catalogLine resolves a product or service into the immutable snapshot a
// cart entry is built from.
func (s *Service) catalogLine(ctx context.Context, catalogID string, kind domain.ItemKind) (*domain.CatalogLine, error) {
	switch kind {
	case domain.KindProduct:
		products, err := s.repo.ListProducts(ctx)
		if err != nil {
			return nil, err
		}
		for _, p := range products {
			if p.ID == catalogID {
				return &domain.CatalogLine{ID: p.ID, Kind: domain.KindProduct, Name: p.Name, UnitPrice: p.Price}, nil
			}
		}
		return nil, store.ErrNotFound
	case domain.KindService:
		services, err := s.repo.ListServices(ctx)
		if err != nil {
			return nil, err
		}
		for _, sv := range services {
			if sv.ID == catalogID {
				return &domain.CatalogLine{ID: sv.ID, Kind: domain.KindService, Name: sv.Name, UnitPrice: sv.Price}, nil
			}
		}
		return nil, store.ErrNotFound
	default:
		return nil, fmt.Errorf("unknown catalog kind %q", kind)
	}
}
