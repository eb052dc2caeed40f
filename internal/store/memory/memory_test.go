package memory

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"motocadena/backend/internal/domain"
	"motocadena/backend/internal/store"
)

func seededInvoiceWithWorkOrder(t *testing.T, s *Store) domain.PendingInvoice {
	t.Helper()
	invoices, err := s.ListPendingInvoices(context.Background())
	if err != nil {
		t.Fatalf("list invoices failed: %v", err)
	}
	for _, inv := range invoices {
		if inv.WorkOrderID != "" {
			return inv
		}
	}
	t.Fatalf("seed data has no invoice linked to a work order")
	return domain.PendingInvoice{}
}

func allocation(amount string) domain.PaymentAllocation {
	value := decimal.RequireFromString(amount)
	return domain.PaymentAllocation{
		Method:      domain.MethodCashUSD,
		Currency:    domain.CurrencyBase,
		AmountInput: value,
		AmountBase:  value,
		AmountLocal: value.Mul(decimal.RequireFromString("55")),
		Rate:        decimal.RequireFromString("55"),
	}
}

func TestCommitLiquidationFlipsInvoiceAndWorkOrder(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()
	invoice := seededInvoiceWithWorkOrder(t, s)

	result, err := s.CommitSettlement(ctx, domain.SettlementCommit{
		Invoice:     &domain.InvoiceCommit{InvoiceID: invoice.ID, WorkOrderID: invoice.WorkOrderID},
		Allocations: []domain.PaymentAllocation{allocation("120.00")},
	})
	if err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	if result.InvoiceID != invoice.ID || result.WorkOrderID != invoice.WorkOrderID {
		t.Fatalf("unexpected result %+v", result)
	}
	if len(result.Payments) != 1 || !result.Payments[0].Amount.Equal(decimal.RequireFromString("120.00")) {
		t.Fatalf("unexpected payments %+v", result.Payments)
	}

	if _, err := s.GetPendingInvoice(ctx, invoice.ID); err != store.ErrInvoiceNotPending {
		t.Fatalf("expected invoice no longer pending, got %v", err)
	}

	wo := s.workOrdersByID[invoice.WorkOrderID]
	if wo.BillingStatus != "PAID" || wo.Status != "READY" {
		t.Fatalf("work order not updated: %+v", wo)
	}
}

func TestCommitLiquidationTwiceFails(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()
	invoice := seededInvoiceWithWorkOrder(t, s)

	commit := domain.SettlementCommit{
		Invoice:     &domain.InvoiceCommit{InvoiceID: invoice.ID, WorkOrderID: invoice.WorkOrderID},
		Allocations: []domain.PaymentAllocation{allocation("120.00")},
	}
	if _, err := s.CommitSettlement(ctx, commit); err != nil {
		t.Fatalf("first commit failed: %v", err)
	}
	if _, err := s.CommitSettlement(ctx, commit); err != store.ErrInvoiceNotPending {
		t.Fatalf("expected ErrInvoiceNotPending, got %v", err)
	}
}

func TestCommitSaleWithUnknownCustomerLeavesNoTrace(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	_, err := s.CommitSettlement(ctx, domain.SettlementCommit{
		Sale: &domain.SaleCommit{
			CustomerID:  "missing",
			SellerID:    "seller-1",
			TotalAmount: decimal.RequireFromString("10.00"),
			Items: []domain.CartItem{
				{CatalogID: "p1", Kind: domain.KindProduct, Name: "Aceite", UnitPrice: decimal.RequireFromString("10.00"), Quantity: 1},
			},
		},
		Allocations: []domain.PaymentAllocation{allocation("10.00")},
	})
	if err != store.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if len(s.salesByID) != 0 || len(s.paymentsByID) != 0 {
		t.Fatalf("failed commit must not leave partial writes: sales=%d payments=%d", len(s.salesByID), len(s.paymentsByID))
	}
}

func TestCreateUserRejectsDuplicateUsername(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	created, err := s.CreateUser(ctx, domain.UserAccount{Username: "Mecanico", Password: "hash", Role: "cashier"})
	if err != nil {
		t.Fatalf("create user failed: %v", err)
	}
	if created.ID == "" || !created.Active || created.Username != "mecanico" {
		t.Fatalf("unexpected created user %+v", created)
	}

	if _, err := s.CreateUser(ctx, domain.UserAccount{Username: "mecanico", Password: "hash", Role: "cashier"}); err != store.ErrUsernameTaken {
		t.Fatalf("expected ErrUsernameTaken, got %v", err)
	}
	if _, err := s.CreateUser(ctx, domain.UserAccount{Username: "admin", Password: "hash", Role: "admin"}); err != store.ErrUsernameTaken {
		t.Fatalf("expected ErrUsernameTaken for seeded admin, got %v", err)
	}
}

func TestCommitRejectsAmbiguousTarget(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	if _, err := s.CommitSettlement(ctx, domain.SettlementCommit{
		Allocations: []domain.PaymentAllocation{allocation("10.00")},
	}); err != store.ErrInvalidCommit {
		t.Fatalf("expected ErrInvalidCommit with no target, got %v", err)
	}

	if _, err := s.CommitSettlement(ctx, domain.SettlementCommit{
		Invoice:     &domain.InvoiceCommit{InvoiceID: "inv"},
		Sale:        &domain.SaleCommit{CustomerID: "cus"},
		Allocations: []domain.PaymentAllocation{allocation("10.00")},
	}); err != store.ErrInvalidCommit {
		t.Fatalf("expected ErrInvalidCommit with both targets, got %v", err)
	}
}
