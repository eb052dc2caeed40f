package settlement

import (
	"testing"

	"github.com/shopspring/decimal"

	"motocadena/backend/internal/domain"
)

func d(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}

func productLine(id, name, price string) domain.CatalogLine {
	return domain.CatalogLine{ID: id, Kind: domain.KindProduct, Name: name, UnitPrice: d(price)}
}

func serviceLine(id, name, price string) domain.CatalogLine {
	return domain.CatalogLine{ID: id, Kind: domain.KindService, Name: name, UnitPrice: d(price)}
}

func TestCartAddIncrementsExistingLine(t *testing.T) {
	var cart Cart
	line := productLine("p1", "Bujía", "6.00")

	cart.Add(line)
	cart.Add(line)

	items := cart.Items()
	if len(items) != 1 {
		t.Fatalf("expected 1 line, got %d", len(items))
	}
	if items[0].Quantity != 2 {
		t.Fatalf("expected quantity 2, got %d", items[0].Quantity)
	}
}

func TestCartSubtotal(t *testing.T) {
	var cart Cart
	cart.Add(productLine("p1", "Pastillas", "12.00"))
	cart.Add(productLine("p1", "Pastillas", "12.00"))
	cart.Add(serviceLine("s1", "Servicio de frenos", "21.00"))

	if got := cart.Subtotal(); !got.Equal(d("45.00")) {
		t.Fatalf("expected subtotal 45.00, got %s", got)
	}
}

func TestCartProductAndServiceWithSameIDAreDistinct(t *testing.T) {
	var cart Cart
	cart.Add(productLine("x", "Repuesto", "5.00"))
	cart.Add(serviceLine("x", "Mano de obra", "7.00"))

	if cart.Len() != 2 {
		t.Fatalf("expected 2 lines, got %d", cart.Len())
	}

	cart.Remove("x", domain.KindProduct)
	items := cart.Items()
	if len(items) != 1 || items[0].Kind != domain.KindService {
		t.Fatalf("expected only the service line to remain, got %+v", items)
	}
}

func TestCartSetQuantityZeroRemoves(t *testing.T) {
	var cart Cart
	cart.Add(productLine("p1", "Aceite", "9.50"))
	cart.SetQuantity("p1", domain.KindProduct, 3)

	items := cart.Items()
	if items[0].Quantity != 3 {
		t.Fatalf("expected quantity 3, got %d", items[0].Quantity)
	}

	cart.SetQuantity("p1", domain.KindProduct, 0)
	if cart.Len() != 0 {
		t.Fatalf("expected empty cart after zero quantity, got %d lines", cart.Len())
	}
}

func TestCartRemoveAbsentIsNoop(t *testing.T) {
	var cart Cart
	cart.Add(productLine("p1", "Aceite", "9.50"))
	cart.Remove("missing", domain.KindProduct)

	if cart.Len() != 1 {
		t.Fatalf("expected cart untouched, got %d lines", cart.Len())
	}
}
