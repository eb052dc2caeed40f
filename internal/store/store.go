package store

import (
	"context"
	"errors"

	"motocadena/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("store: not found")
	ErrInvoiceNotPending = errors.New("store: invoice is not pending")
	ErrInvalidCommit     = errors.New("store: invalid settlement commit")
	ErrUsernameTaken     = errors.New("store: username already taken")
)

// Repository is the persistence contract the settlement service depends on.
// Reads return snapshots; CommitSettlement is the only write path for
// settlements and must be atomic.
type Repository interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	ListServices(ctx context.Context) ([]domain.Service, error)
	ListCustomers(ctx context.Context) ([]domain.Customer, error)
	GetCustomer(ctx context.Context, id string) (*domain.Customer, error)

	ListPendingInvoices(ctx context.Context) ([]domain.PendingInvoice, error)
	GetPendingInvoice(ctx context.Context, id string) (*domain.PendingInvoice, error)

	// CommitSettlement persists a settlement in a single transaction.
	// Returns ErrInvoiceNotPending when the target invoice was already
	// liquidated by another session.
	CommitSettlement(ctx context.Context, commit domain.SettlementCommit) (*domain.SettlementResult, error)

	CreateUser(ctx context.Context, user domain.UserAccount) (*domain.UserAccount, error)
	GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error)
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
}
