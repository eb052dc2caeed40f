package settlement

import (
	"testing"

	"motocadena/backend/internal/domain"
)

func TestLedgerMixedCurrencySettlement(t *testing.T) {
	var ledger Ledger
	total := d("120.00")
	rate := d("55")

	if _, err := ledger.Add(domain.MethodCashUSD, d("50"), domain.CurrencyBase, "", rate, total); err != nil {
		t.Fatalf("base allocation failed: %v", err)
	}
	if got := ledger.Remaining(total); !got.Equal(d("70.00")) {
		t.Fatalf("expected remaining 70.00, got %s", got)
	}

	if _, err := ledger.Add(domain.MethodPagoMovil, d("3850"), domain.CurrencyLocal, "REF-001", rate, total); err != nil {
		t.Fatalf("local allocation failed: %v", err)
	}

	if got := ledger.Remaining(total); !got.IsZero() {
		t.Fatalf("expected remaining zero, got %s", got)
	}
	if !ledger.IsSettled(total) {
		t.Fatalf("expected ledger settled")
	}
}

func TestLedgerRejectsOverAllocation(t *testing.T) {
	var ledger Ledger
	total := d("40.00")

	_, err := ledger.Add(domain.MethodCashUSD, d("45"), domain.CurrencyBase, "", d("55"), total)
	if !IsKind(err, KindOverAllocation) {
		t.Fatalf("expected over_allocation, got %v", err)
	}
	if ledger.Len() != 0 {
		t.Fatalf("rejected allocation must not be recorded, ledger has %d entries", ledger.Len())
	}
}

func TestLedgerAllocationEpsilon(t *testing.T) {
	var ledger Ledger
	total := d("10.00")

	// Within the per-allocation tolerance.
	if _, err := ledger.Add(domain.MethodCashUSD, d("10.01"), domain.CurrencyBase, "", d("55"), total); err != nil {
		t.Fatalf("allocation within epsilon should pass: %v", err)
	}

	ledger.Clear()
	_, err := ledger.Add(domain.MethodCashUSD, d("10.02"), domain.CurrencyBase, "", d("55"), total)
	if !IsKind(err, KindOverAllocation) {
		t.Fatalf("expected over_allocation beyond epsilon, got %v", err)
	}
}

func TestLedgerSettleDelta(t *testing.T) {
	var ledger Ledger
	total := d("100.00")

	if _, err := ledger.Add(domain.MethodCashUSD, d("99.95"), domain.CurrencyBase, "", d("55"), total); err != nil {
		t.Fatalf("allocation failed: %v", err)
	}
	if !ledger.IsSettled(total) {
		t.Fatalf("remaining 0.05 should count as settled")
	}

	ledger.Clear()
	if _, err := ledger.Add(domain.MethodCashUSD, d("99.94"), domain.CurrencyBase, "", d("55"), total); err != nil {
		t.Fatalf("allocation failed: %v", err)
	}
	if ledger.IsSettled(total) {
		t.Fatalf("remaining 0.06 must not count as settled")
	}
}

func TestLedgerRejectsNonPositiveAmountAndRate(t *testing.T) {
	var ledger Ledger
	total := d("50.00")

	if _, err := ledger.Add(domain.MethodCashUSD, d("0"), domain.CurrencyBase, "", d("55"), total); !IsKind(err, KindInvalidAmount) {
		t.Fatalf("expected invalid_amount for zero amount, got %v", err)
	}
	if _, err := ledger.Add(domain.MethodCashBS, d("100"), domain.CurrencyLocal, "", d("0"), total); !IsKind(err, KindInvalidAmount) {
		t.Fatalf("expected invalid_amount for zero rate, got %v", err)
	}
	if ledger.Len() != 0 {
		t.Fatalf("ledger must stay empty, has %d entries", ledger.Len())
	}
}

func TestLedgerRemoveReopensBalance(t *testing.T) {
	var ledger Ledger
	total := d("60.00")

	if _, err := ledger.Add(domain.MethodCashUSD, d("30"), domain.CurrencyBase, "", d("55"), total); err != nil {
		t.Fatalf("allocation failed: %v", err)
	}
	if _, err := ledger.Add(domain.MethodCashUSD, d("30"), domain.CurrencyBase, "", d("55"), total); err != nil {
		t.Fatalf("allocation failed: %v", err)
	}
	if !ledger.IsSettled(total) {
		t.Fatalf("expected settled")
	}

	if err := ledger.Remove(0); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if ledger.IsSettled(total) {
		t.Fatalf("expected unsettled after removal")
	}
	if got := ledger.Remaining(total); !got.Equal(d("30")) {
		t.Fatalf("expected remaining 30, got %s", got)
	}
}

func TestLedgerRemoveOutOfRange(t *testing.T) {
	var ledger Ledger
	if err := ledger.Remove(0); !IsKind(err, KindPreconditionFailed) {
		t.Fatalf("expected precondition_failed removing from empty ledger, got %v", err)
	}
	if err := ledger.Remove(-1); !IsKind(err, KindPreconditionFailed) {
		t.Fatalf("expected precondition_failed for negative index, got %v", err)
	}
}

func TestLedgerTotalPaidMatchesEntries(t *testing.T) {
	var ledger Ledger
	total := d("200.00")
	rate := d("50")

	amounts := []struct {
		amount   string
		currency domain.Currency
	}{
		{"20", domain.CurrencyBase},
		{"1000", domain.CurrencyLocal},
		{"35.50", domain.CurrencyBase},
	}
	for _, a := range amounts {
		if _, err := ledger.Add(domain.MethodCashUSD, d(a.amount), a.currency, "", rate, total); err != nil {
			t.Fatalf("allocation %s failed: %v", a.amount, err)
		}
	}

	sum := d("0")
	for _, alloc := range ledger.Allocations() {
		sum = sum.Add(alloc.AmountBase)
	}
	if !sum.Equal(ledger.TotalPaid()) {
		t.Fatalf("TotalPaid %s does not match entry sum %s", ledger.TotalPaid(), sum)
	}
	// 20 + 1000/50 + 35.50 = 75.50
	if !ledger.TotalPaid().Equal(d("75.50")) {
		t.Fatalf("expected total paid 75.50, got %s", ledger.TotalPaid())
	}
}
