package settlement

import (
	"context"
	"errors"
	"sync"

	"github.com/shopspring/decimal"

	"motocadena/backend/internal/domain"
	"motocadena/backend/internal/store"
)

// State is the coordinator state of a settlement session.
type State string

const (
	StateIdle            State = "idle"
	StateAwaitingPayment State = "awaiting_payment"
	StateSettled         State = "settled"
	StateCommitting      State = "committing"
	StateCommitted       State = "committed"
	StateFailed          State = "failed"
)

type targetKind int

const (
	targetNone targetKind = iota
	targetCart
	targetInvoice
)

func (k targetKind) String() string {
	switch k {
	case targetCart:
		return "cart"
	case targetInvoice:
		return "invoice"
	default:
		return "none"
	}
}

// Committer is the single transactional write the session needs from the
// data store. The whole commit becomes visible atomically or not at all.
type Committer interface {
	CommitSettlement(ctx context.Context, commit domain.SettlementCommit) (*domain.SettlementResult, error)
}

// Session is one operator's settlement in progress: the cart or pending
// invoice being paid, the ledger of abonos against it, and the commit state
// machine. Sessions are single-writer; the mutex only guards against
// accidental concurrent HTTP calls on the same session.
type Session struct {
	mu sync.Mutex

	id       string
	target   targetKind
	cart     Cart
	invoice  *domain.PendingInvoice
	customer *domain.Customer
	ledger   Ledger
	state    State
	lastRate decimal.Decimal
	result   *domain.SettlementResult
}

func NewSession(id string) *Session {
	return &Session{id: id, state: StateIdle}
}

func (s *Session) ID() string {
	return s.id
}

// AddCartItem puts a catalog line in the cart. When an invoice target is
// active the caller must confirm discarding it first; on confirmation the
// invoice target and its allocations are dropped and the session becomes a
// direct sale. The customer binding survives the switch so the operator does
// not have to re-pick the same client.
func (s *Session) AddCartItem(line domain.CatalogLine, confirmed bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.mutable(); err != nil {
		return err
	}
	if s.target == targetInvoice {
		if !confirmed {
			return newError(KindConfirmationRequired, "hay una factura de taller seleccionada; confirma para descartarla y hacer una venta directa")
		}
		s.invoice = nil
		s.ledger.Clear()
	}
	s.cart.Add(line)
	s.target = targetCart
	s.recomputeState()
	return nil
}

// RemoveCartItem deletes a cart line; absent lines are a no-op.
func (s *Session) RemoveCartItem(catalogID string, kind domain.ItemKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.mutable(); err != nil {
		return err
	}
	s.cart.Remove(catalogID, kind)
	if s.target == targetCart && s.cart.Len() == 0 {
		s.target = targetNone
	}
	s.recomputeState()
	return nil
}

// SetCartQuantity replaces a line quantity; zero or less removes the line.
func (s *Session) SetCartQuantity(catalogID string, kind domain.ItemKind, quantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.mutable(); err != nil {
		return err
	}
	s.cart.SetQuantity(catalogID, kind, quantity)
	if s.target == targetCart && s.cart.Len() == 0 {
		s.target = targetNone
	}
	s.recomputeState()
	return nil
}

// SelectInvoice makes a pending invoice the settlement target. A non-empty
// cart requires explicit confirmation and is discarded together with any
// allocations made against it. The invoice's customer is bound and cannot be
// overridden.
func (s *Session) SelectInvoice(invoice domain.PendingInvoice, confirmed bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.mutable(); err != nil {
		return err
	}
	if s.cart.Len() > 0 && !confirmed {
		return newError(KindConfirmationRequired, "se descartará el carrito actual para procesar esta factura de taller; confirma para continuar")
	}
	s.cart.Clear()
	s.ledger.Clear()
	inv := invoice
	customer := invoice.Customer
	s.invoice = &inv
	s.customer = &customer
	s.target = targetInvoice
	s.recomputeState()
	return nil
}

// AssignCustomer binds the customer a direct sale belongs to. Invoice
// settlements inherit the invoice's customer and reject overrides.
func (s *Session) AssignCustomer(customer domain.Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.mutable(); err != nil {
		return err
	}
	if s.target == targetInvoice {
		return newError(KindPreconditionFailed, "la factura define su propio cliente; no se puede reasignar")
	}
	c := customer
	s.customer = &c
	return nil
}

// ClearTarget resets the session to no target: cart, invoice, customer and
// ledger are all dropped. Allocations are target-scoped and meaningless once
// the target is gone.
func (s *Session) ClearTarget() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.mutable(); err != nil {
		return err
	}
	s.cart.Clear()
	s.invoice = nil
	s.customer = nil
	s.ledger.Clear()
	s.target = targetNone
	s.state = StateIdle
	return nil
}

// TargetTotal is the base-currency amount being settled.
func (s *Session) TargetTotal() (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.targetTotalLocked()
}

func (s *Session) targetTotalLocked() (decimal.Decimal, error) {
	switch s.target {
	case targetInvoice:
		return s.invoice.TotalAmount, nil
	case targetCart:
		return s.cart.Subtotal(), nil
	default:
		if s.ledger.Len() > 0 {
			return decimal.Zero, newError(KindNoTargetSelected, "hay abonos registrados pero ningún objetivo de cobro seleccionado")
		}
		return decimal.Zero, nil
	}
}

// AddAllocation records an abono at the given rate. The rate is frozen into
// the allocation at this moment and never revisited.
func (s *Session) AddAllocation(method string, amount decimal.Decimal, currency domain.Currency, reference string, rate decimal.Decimal) (domain.PaymentAllocation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.mutable(); err != nil {
		return domain.PaymentAllocation{}, err
	}
	if s.target == targetNone {
		return domain.PaymentAllocation{}, newError(KindNoTargetSelected, "selecciona una factura o agrega artículos antes de registrar abonos")
	}
	total, err := s.targetTotalLocked()
	if err != nil {
		return domain.PaymentAllocation{}, err
	}
	alloc, err := s.ledger.Add(method, amount, currency, reference, rate, total)
	if err != nil {
		return domain.PaymentAllocation{}, err
	}
	s.lastRate = rate
	s.recomputeState()
	return alloc, nil
}

// RemoveAllocation deletes an abono by its position in the ledger.
func (s *Session) RemoveAllocation(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.mutable(); err != nil {
		return err
	}
	if err := s.ledger.Remove(index); err != nil {
		return err
	}
	s.recomputeState()
	return nil
}

// Commit runs the all-or-nothing settlement write. It is callable from
// settled, and again from failed so the operator can retry a transient store
// failure without re-entering abonos. On success the session is committed and
// the result is returned; on failure the ledger and target are untouched.
func (s *Session) Commit(ctx context.Context, committer Committer, sellerID string) (*domain.SettlementResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateSettled, StateFailed:
	case StateCommitting:
		return nil, newError(KindPreconditionFailed, "ya hay un cierre en curso")
	case StateCommitted:
		return nil, newError(KindPreconditionFailed, "la sesión ya fue cerrada")
	default:
		return nil, newError(KindPreconditionFailed, "aún queda saldo pendiente por cubrir")
	}

	total, err := s.targetTotalLocked()
	if err != nil {
		return nil, err
	}
	if !s.ledger.IsSettled(total) {
		s.state = StateAwaitingPayment
		return nil, newError(KindPreconditionFailed, "aún queda saldo pendiente por cubrir")
	}

	commit := domain.SettlementCommit{Allocations: s.ledger.Allocations()}
	switch s.target {
	case targetInvoice:
		commit.Invoice = &domain.InvoiceCommit{
			InvoiceID:   s.invoice.ID,
			WorkOrderID: s.invoice.WorkOrderID,
		}
	case targetCart:
		if s.customer == nil {
			return nil, newError(KindPreconditionFailed, "debes asignar un cliente para la venta directa")
		}
		commit.Sale = &domain.SaleCommit{
			CustomerID:  s.customer.ID,
			SellerID:    sellerID,
			TotalAmount: total,
			Items:       s.cart.Items(),
		}
	default:
		return nil, newError(KindNoTargetSelected, "ningún objetivo de cobro seleccionado")
	}

	s.state = StateCommitting
	result, err := committer.CommitSettlement(ctx, commit)
	if err != nil {
		s.state = StateFailed
		if errors.Is(err, store.ErrInvoiceNotPending) {
			return nil, &Error{Kind: KindAlreadySettled, Message: "la factura ya fue liquidada en otra sesión", Err: err}
		}
		return nil, &Error{Kind: KindCommitFailed, Message: "no se pudo registrar el cierre", Err: err}
	}

	s.state = StateCommitted
	s.result = result
	return result, nil
}

// Cancelable reports whether the session can still be abandoned with no
// persisted side effects.
func (s *Session) Cancelable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state != StateCommitting
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Result returns the commit result, or nil before a successful commit.
func (s *Session) Result() *domain.SettlementResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// View builds a read snapshot for the API. The rate shown is the one frozen
// by the most recent allocation, or zero when none exist yet.
func (s *Session) View() domain.SessionView {
	s.mu.Lock()
	defer s.mu.Unlock()

	total, err := s.targetTotalLocked()
	if err != nil {
		total = decimal.Zero
	}

	view := domain.SessionView{
		ID:            s.id,
		State:         string(s.state),
		Target:        s.target.String(),
		CartItems:     s.cart.Items(),
		Allocations:   s.ledger.Allocations(),
		TargetTotal:   total,
		TotalPaid:     s.ledger.TotalPaid(),
		RemainingBase: s.ledger.Remaining(total),
		Settled:       s.target != targetNone && s.ledger.IsSettled(total),
		Rate:          s.lastRate,
	}
	if s.invoice != nil {
		inv := *s.invoice
		view.Invoice = &inv
	}
	if s.customer != nil {
		c := *s.customer
		view.Customer = &c
	}
	return view
}

// mutable rejects mutations once the commit has started or finished.
func (s *Session) mutable() error {
	switch s.state {
	case StateCommitting:
		return newError(KindPreconditionFailed, "hay un cierre en curso; la sesión no se puede modificar")
	case StateCommitted:
		return newError(KindPreconditionFailed, "la sesión ya fue cerrada")
	default:
		return nil
	}
}

// recomputeState derives settled/awaiting from the ledger, leaving terminal
// and in-flight states alone. A failed session that is edited goes back into
// the normal flow.
func (s *Session) recomputeState() {
	if s.state == StateCommitting || s.state == StateCommitted {
		return
	}
	if s.target == targetNone && s.ledger.Len() == 0 {
		s.state = StateIdle
		return
	}
	total, err := s.targetTotalLocked()
	if err != nil {
		s.state = StateAwaitingPayment
		return
	}
	if s.target != targetNone && s.ledger.IsSettled(total) {
		s.state = StateSettled
		return
	}
	s.state = StateAwaitingPayment
}
