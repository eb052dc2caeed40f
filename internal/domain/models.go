package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ItemKind distinguishes catalog entries. Products are physical parts,
// services are workshop labor.
type ItemKind string

const (
	KindProduct ItemKind = "PRODUCT"
	KindService ItemKind = "SERVICE"
)

// Currency identifies the denomination of a payment allocation as entered.
// Base is USD, the canonical pricing currency; Local is Bolívares.
type Currency string

const (
	CurrencyBase  Currency = "BASE"
	CurrencyLocal Currency = "LOCAL"
)

const (
	MethodCashUSD    = "EFECTIVO_USD"
	MethodCashBS     = "EFECTIVO_BS"
	MethodPagoMovil  = "PAGO_MOVIL"
	MethodTransferBS = "TRANSFERENCIA_BS"
	MethodCredit     = "CREDITO"

	// MethodMixed marks a liquidated invoice paid through several abonos.
	MethodMixed = "MIXTO"
)

// PaymentMethods lists every accepted payment method.
var PaymentMethods = []string{
	MethodCashUSD, MethodCashBS, MethodPagoMovil, MethodTransferBS, MethodCredit,
}

// IsPaymentMethod reports whether method is one of the accepted methods.
func IsPaymentMethod(method string) bool {
	for _, m := range PaymentMethods {
		if m == method {
			return true
		}
	}
	return false
}

// LocalDenominated reports whether amounts for the method are entered in the
// local currency by default.
func LocalDenominated(method string) bool {
	return method == MethodCashBS || method == MethodPagoMovil || method == MethodTransferBS
}

type Product struct {
	ID    string          `json:"id"`
	SKU   string          `json:"sku"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

type Service struct {
	ID     string          `json:"id"`
	Name   string          `json:"name"`
	Price  decimal.Decimal `json:"price"`
	Active bool            `json:"is_active"`
}

type Customer struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// CatalogLine is the immutable reference snapshot a cart entry is built from.
type CatalogLine struct {
	ID        string          `json:"id"`
	Kind      ItemKind        `json:"kind"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// CartItem is a line in the live cart. Identity is (CatalogID, Kind).
type CartItem struct {
	CatalogID string          `json:"catalog_id"`
	Kind      ItemKind        `json:"kind"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
}

// PendingInvoice is a read-only snapshot of a workshop invoice awaiting
// settlement. WorkOrderID is empty for invoices not linked to a work order.
type PendingInvoice struct {
	ID          string          `json:"id"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Customer    Customer        `json:"customer"`
	WorkOrderID string          `json:"work_order_id,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// PaymentAllocation is a single abono toward the settlement target. It is
// immutable once added: both amounts and the rate are frozen at allocation
// time and never recomputed.
type PaymentAllocation struct {
	Method      string          `json:"method"`
	Currency    Currency        `json:"currency"`
	AmountInput decimal.Decimal `json:"amount_input"`
	AmountBase  decimal.Decimal `json:"amount_base"`
	AmountLocal decimal.Decimal `json:"amount_local"`
	Rate        decimal.Decimal `json:"rate"`
	Reference   string          `json:"reference,omitempty"`
}

// SettlementCommit carries everything the store needs to persist a settlement
// in one transactional write. Exactly one of Invoice or Sale is set.
type SettlementCommit struct {
	Invoice     *InvoiceCommit
	Sale        *SaleCommit
	Allocations []PaymentAllocation
}

// InvoiceCommit liquidates an existing PENDING invoice and, when linked,
// flips its work order to READY / billing PAID.
type InvoiceCommit struct {
	InvoiceID   string
	WorkOrderID string
}

// SaleCommit creates a direct counter sale with snapshotted line prices.
type SaleCommit struct {
	CustomerID  string
	SellerID    string
	TotalAmount decimal.Decimal
	Items       []CartItem
}

// SettlementResult reports what the commit produced. SaleID is set for
// direct sales; InvoiceID (and WorkOrderID when linked) for liquidations.
type SettlementResult struct {
	SaleID      string          `json:"sale_id,omitempty"`
	InvoiceID   string          `json:"invoice_id,omitempty"`
	WorkOrderID string          `json:"work_order_id,omitempty"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Payments    []PaymentRecord `json:"payments"`
	CommittedAt time.Time       `json:"committed_at"`
}

// PaymentRecord is one persisted payment row, linked to whichever of sale or
// work order the settlement produced.
type PaymentRecord struct {
	ID          string          `json:"id"`
	SaleID      string          `json:"sale_id,omitempty"`
	WorkOrderID string          `json:"work_order_id,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	Method      string          `json:"method"`
	Reference   string          `json:"reference,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

type Actor struct {
	Username string
	Role     string
	UserID   string
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

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	ID        string
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

// UserView is the API-facing projection of a user account. The password hash
// never leaves the store layer.
type UserView struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type CreateUserRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type AddCartItemRequest struct {
	CatalogID      string   `json:"catalog_id"`
	Kind           ItemKind `json:"kind"`
	ConfirmDiscard bool     `json:"confirm_discard"`
}

type SetCartQuantityRequest struct {
	CatalogID string   `json:"catalog_id"`
	Kind      ItemKind `json:"kind"`
	Quantity  int      `json:"quantity"`
}

type RemoveCartItemRequest struct {
	CatalogID string   `json:"catalog_id"`
	Kind      ItemKind `json:"kind"`
}

type SelectInvoiceRequest struct {
	InvoiceID      string `json:"invoice_id"`
	ConfirmDiscard bool   `json:"confirm_discard"`
}

type AssignCustomerRequest struct {
	CustomerID string `json:"customer_id"`
}

type AddAllocationRequest struct {
	Method    string   `json:"method"`
	Amount    string   `json:"amount"`
	Currency  Currency `json:"currency"`
	Reference string   `json:"reference,omitempty"`
}

// SessionView is the read snapshot the API returns after every mutation.
type SessionView struct {
	ID            string              `json:"id"`
	State         string              `json:"state"`
	Target        string              `json:"target"`
	Invoice       *PendingInvoice     `json:"invoice,omitempty"`
	Customer      *Customer           `json:"customer,omitempty"`
	CartItems     []CartItem          `json:"cart_items"`
	Allocations   []PaymentAllocation `json:"allocations"`
	TargetTotal   decimal.Decimal     `json:"target_total"`
	TotalPaid     decimal.Decimal     `json:"total_paid"`
	RemainingBase decimal.Decimal     `json:"remaining_base"`
	Settled       bool                `json:"settled"`
	Rate          decimal.Decimal     `json:"rate"`
}

type ExchangeRateResponse struct {
	Rate decimal.Decimal `json:"rate"`
	At   string          `json:"at"`
}
