package settlement

import (
	"fmt"

	"github.com/shopspring/decimal"

	"motocadena/backend/internal/domain"
)

// allocationEpsilon absorbs rounding noise from rate conversion when checking
// a single allocation against the remaining balance.
//
// settleDelta is the looser threshold for declaring the whole target covered;
// it absorbs accumulation across several converted allocations. Both values
// are part of the settlement contract and must not drift.
var (
	allocationEpsilon = decimal.RequireFromString("0.01")
	settleDelta       = decimal.RequireFromString("0.05")
)

// Ledger is the ordered list of payment allocations against the current
// settlement target. Order is display order only; settlement math is a sum.
type Ledger struct {
	allocations []domain.PaymentAllocation
}

// Add validates amount and currency, converts to the base currency at the
// given rate, and appends the allocation. The rate is frozen into the
// allocation; later rate changes never reprice it. Nothing is recorded when
// validation fails.
func (l *Ledger) Add(method string, amount decimal.Decimal, currency domain.Currency, reference string, rate decimal.Decimal, targetTotal decimal.Decimal) (domain.PaymentAllocation, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return domain.PaymentAllocation{}, newError(KindInvalidAmount, "el monto del abono debe ser mayor que cero")
	}
	if rate.LessThanOrEqual(decimal.Zero) {
		return domain.PaymentAllocation{}, newError(KindInvalidAmount, "tasa de cambio inválida")
	}

	alloc := domain.PaymentAllocation{
		Method:      method,
		Currency:    currency,
		AmountInput: amount,
		Rate:        rate,
		Reference:   reference,
	}
	switch currency {
	case domain.CurrencyLocal:
		alloc.AmountLocal = amount
		alloc.AmountBase = amount.Div(rate)
	case domain.CurrencyBase:
		alloc.AmountBase = amount
		alloc.AmountLocal = amount.Mul(rate)
	default:
		return domain.PaymentAllocation{}, newError(KindInvalidAmount, fmt.Sprintf("moneda desconocida %q", currency))
	}

	remaining := l.Remaining(targetTotal)
	if alloc.AmountBase.GreaterThan(remaining.Add(allocationEpsilon)) {
		return domain.PaymentAllocation{}, newError(KindOverAllocation, "el monto ingresado supera el saldo pendiente")
	}

	l.allocations = append(l.allocations, alloc)
	return alloc, nil
}

// Remove deletes the allocation at the given position.
func (l *Ledger) Remove(index int) error {
	if index < 0 || index >= len(l.allocations) {
		return newError(KindPreconditionFailed, fmt.Sprintf("no existe abono en la posición %d", index))
	}
	l.allocations = append(l.allocations[:index], l.allocations[index+1:]...)
	return nil
}

// TotalPaid is the base-currency sum of all present allocations.
func (l *Ledger) TotalPaid() decimal.Decimal {
	total := decimal.Zero
	for _, alloc := range l.allocations {
		total = total.Add(alloc.AmountBase)
	}
	return total
}

// Remaining is the base-currency balance still owed, floored at zero.
func (l *Ledger) Remaining(targetTotal decimal.Decimal) decimal.Decimal {
	remaining := targetTotal.Sub(l.TotalPaid())
	if remaining.IsNegative() {
		return decimal.Zero
	}
	return remaining
}

// IsSettled reports whether the remaining balance is within the settle
// tolerance of zero.
func (l *Ledger) IsSettled(targetTotal decimal.Decimal) bool {
	return l.Remaining(targetTotal).LessThanOrEqual(settleDelta)
}

// Allocations returns a copy of the ledger in append order.
func (l *Ledger) Allocations() []domain.PaymentAllocation {
	allocations := make([]domain.PaymentAllocation, len(l.allocations))
	copy(allocations, l.allocations)
	return allocations
}

func (l *Ledger) Len() int {
	return len(l.allocations)
}

func (l *Ledger) Clear() {
	l.allocations = nil
}
