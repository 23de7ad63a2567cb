package models

import (
	"testing"
	"time"
)

func TestApplyOverdue_SnapshotCarriesStatusPair(t *testing.T) {
	bill := &Bill{
		Status:        BillStatusPartial,
		TotalAmount:   d("100"),
		PaidAmount:    d("40"),
		BalanceAmount: d("60"),
	}

	before := applyOverdue(bill)

	if before.Status != BillStatusPartial {
		t.Fatalf("snapshot lost the old status: %s", before.Status)
	}
	if bill.Status != BillStatusOverdue {
		t.Fatalf("expected Overdue, got %s", bill.Status)
	}
	if !before.BalanceAmount.Equal(bill.BalanceAmount) {
		t.Fatal("overdue sweep must not touch balances")
	}
}

func TestOverdueCutoff_NormalizesToLocalDay(t *testing.T) {
	asOf := time.Date(2026, 8, 30, 14, 30, 0, 0, time.UTC)

	cutoff := overdueCutoff(asOf, "Asia/Yangon")
	if cutoff.Hour() != 0 || cutoff.Minute() != 0 || cutoff.Second() != 0 {
		t.Fatalf("cutoff not at start of day: %v", cutoff)
	}
	if cutoff.After(asOf) {
		t.Fatalf("cutoff %v is after asOf %v", cutoff, asOf)
	}

	// unknown timezone falls back to the instant
	fallback := overdueCutoff(asOf, "Not/AZone")
	if !fallback.Equal(asOf) {
		t.Fatalf("expected fallback to asOf, got %v", fallback)
	}
}
