package models

import (
	"testing"

	"bitbucket.org/mmdatafocus/ledger_backend/utils"
	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestComputeBillTotals_Identity(t *testing.T) {
	items := []BillItem{
		{Name: "a", Quantity: d("2"), UnitPrice: d("10.50"), LineTotal: d("21.00")},
		{Name: "b", Quantity: d("1"), UnitPrice: d("30.25"), LineTotal: d("30.25")},
	}
	discount := d("5.00")
	tax := d("2.50")
	shipping := d("3.00")
	adjustment := d("-1.00")
	roundOff := d("0.25")

	subtotal, total := computeBillTotals(items, discount, tax, shipping, adjustment, roundOff)

	if !subtotal.Equal(d("51.25")) {
		t.Fatalf("expected subtotal 51.25, got %v", subtotal)
	}
	// total = subtotal - discount + tax + shipping + adjustment + roundOff
	want := subtotal.Sub(discount).Add(tax).Add(shipping).Add(adjustment).Add(roundOff)
	if !total.Equal(want) {
		t.Fatalf("totals identity violated: got %v want %v", total, want)
	}
	if !total.Equal(d("51.00")) {
		t.Fatalf("expected total 51.00, got %v", total)
	}
}

func TestComputeBillTotals_RoundsToTwoPlaces(t *testing.T) {
	items := []BillItem{
		{Name: "a", Quantity: d("3"), UnitPrice: d("0.333"), LineTotal: d("1.00")},
	}
	subtotal, total := computeBillTotals(items, decimal.Zero, decimal.Zero, decimal.Zero, decimal.Zero, decimal.Zero)
	if subtotal.Exponent() < -2 || total.Exponent() < -2 {
		t.Fatalf("amounts not rounded to 2dp: subtotal=%v total=%v", subtotal, total)
	}
}

func TestBuildBillItems_EmptyItemsRejected(t *testing.T) {
	_, err := buildBillItems(nil)
	if err == nil {
		t.Fatal("expected validation error for empty items")
	}
	if kind := utils.ErrorKind(err); kind != "ValidationError" {
		t.Fatalf("expected ValidationError, got %s", kind)
	}
}

func TestBuildBillItems_NegativeLineRejected(t *testing.T) {
	_, err := buildBillItems([]BillItemInput{
		{Name: "a", Quantity: d("-1"), UnitPrice: d("10")},
	})
	if err == nil {
		t.Fatal("expected validation error for negative quantity")
	}
}

func TestBuildBillItems_ComputesLineTotals(t *testing.T) {
	items, err := buildBillItems([]BillItemInput{
		{Name: "a", Quantity: d("2.5"), UnitPrice: d("4.20")},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !items[0].LineTotal.Equal(d("10.50")) {
		t.Fatalf("expected line total 10.50, got %v", items[0].LineTotal)
	}
}
