package models

import (
	"testing"

	"bitbucket.org/mmdatafocus/ledger_backend/utils"
	"github.com/shopspring/decimal"
)

// NOTE: These tests are intentionally DB-free. They validate the allocation
// semantics on the pure planning/apply functions; the transactional wrapper
// around them only adds locking and persistence.

func TestPlanAllocations_FIFO(t *testing.T) {
	// B1 due first with balance 100, B2 with balance 50, payment 120:
	// 100 goes to B1, 20 to B2.
	planned, remaining := planAllocations(d("120"), []AllocationTarget{
		{BillId: "b1", BalanceAmount: d("100")},
		{BillId: "b2", BalanceAmount: d("50")},
	})

	if len(planned) != 2 {
		t.Fatalf("expected 2 allocations, got %d", len(planned))
	}
	if planned[0].BillId != "b1" || !planned[0].Amount.Equal(d("100")) {
		t.Fatalf("first allocation wrong: %+v", planned[0])
	}
	if planned[1].BillId != "b2" || !planned[1].Amount.Equal(d("20")) {
		t.Fatalf("second allocation wrong: %+v", planned[1])
	}
	if planned[0].AllocationOrder != 1 || planned[1].AllocationOrder != 2 {
		t.Fatalf("allocation order not incrementing: %d, %d", planned[0].AllocationOrder, planned[1].AllocationOrder)
	}
	if !remaining.IsZero() {
		t.Fatalf("expected no remainder, got %v", remaining)
	}
	if !planned[1].BalanceAfter.Equal(d("30")) {
		t.Fatalf("expected b2 balance 30 after, got %v", planned[1].BalanceAfter)
	}
}

func TestPlanAllocations_OverpaymentLeftUnallocated(t *testing.T) {
	// payment 200 against total outstanding 150 settles both and leaves 50.
	planned, remaining := planAllocations(d("200"), []AllocationTarget{
		{BillId: "b1", BalanceAmount: d("100")},
		{BillId: "b2", BalanceAmount: d("50")},
	})

	if len(planned) != 2 {
		t.Fatalf("expected 2 allocations, got %d", len(planned))
	}
	if !remaining.Equal(d("50")) {
		t.Fatalf("expected remainder 50, got %v", remaining)
	}
	for _, step := range planned {
		if !step.BalanceAfter.IsZero() {
			t.Fatalf("bill %s not settled: balance after %v", step.BillId, step.BalanceAfter)
		}
	}
}

func TestPlanAllocations_Invariants(t *testing.T) {
	planned, remaining := planAllocations(d("77.77"), []AllocationTarget{
		{BillId: "b1", BalanceAmount: d("33.33")},
		{BillId: "b2", BalanceAmount: d("0")},
		{BillId: "b3", BalanceAmount: d("100.10")},
	})

	allocatedSum := decimal.Zero
	for _, step := range planned {
		if step.Amount.GreaterThan(step.BalanceBefore) {
			t.Fatalf("allocation %v exceeds balance before %v", step.Amount, step.BalanceBefore)
		}
		if !step.BalanceAfter.Equal(step.BalanceBefore.Sub(step.Amount)) {
			t.Fatalf("balance after mismatch for %s", step.BillId)
		}
		if step.BillId == "b2" {
			t.Fatal("zero-balance bill must be skipped")
		}
		allocatedSum = allocatedSum.Add(step.Amount)
	}
	if !allocatedSum.Add(remaining).Equal(d("77.77")) {
		t.Fatalf("allocated %v + remaining %v != amount", allocatedSum, remaining)
	}
}

func TestPlanAllocations_ZeroAmount(t *testing.T) {
	planned, remaining := planAllocations(decimal.Zero, []AllocationTarget{
		{BillId: "b1", BalanceAmount: d("10")},
	})
	if len(planned) != 0 {
		t.Fatalf("expected no allocations for zero amount, got %d", len(planned))
	}
	if !remaining.IsZero() {
		t.Fatalf("expected zero remainder, got %v", remaining)
	}
}

func TestApplyAllocationToBill_StatusTransitions(t *testing.T) {
	bill := &Bill{
		Status:        BillStatusPending,
		TotalAmount:   d("100"),
		PaidAmount:    decimal.Zero,
		BalanceAmount: d("100"),
	}

	if err := applyAllocationToBill(bill, d("40")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bill.Status != BillStatusPartial {
		t.Fatalf("expected Partial after partial allocation, got %s", bill.Status)
	}
	if !bill.BalanceAmount.Equal(d("60")) || !bill.PaidAmount.Equal(d("40")) {
		t.Fatalf("balance/paid wrong: %v/%v", bill.BalanceAmount, bill.PaidAmount)
	}

	if err := applyAllocationToBill(bill, d("60")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bill.Status != BillStatusPaid {
		t.Fatalf("expected Paid after settlement, got %s", bill.Status)
	}
	if !bill.BalanceAmount.IsZero() {
		t.Fatalf("expected zero balance, got %v", bill.BalanceAmount)
	}
}

func TestApplyAllocationToBill_OverdueStaysOverdueUntilPaid(t *testing.T) {
	bill := &Bill{
		Status:        BillStatusOverdue,
		TotalAmount:   d("100"),
		PaidAmount:    decimal.Zero,
		BalanceAmount: d("100"),
	}
	if err := applyAllocationToBill(bill, d("30")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bill.Status != BillStatusOverdue {
		t.Fatalf("partial payment must not clear Overdue, got %s", bill.Status)
	}
	if err := applyAllocationToBill(bill, d("70")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bill.Status != BillStatusPaid {
		t.Fatalf("expected Paid, got %s", bill.Status)
	}
}

func TestApplyAllocationToBill_AuditSnapshotPair(t *testing.T) {
	// The allocation history row stores the bill before and after the
	// allocation, so the snapshots must carry the status transition.
	bill := &Bill{
		Status:        BillStatusPending,
		TotalAmount:   d("100"),
		PaidAmount:    decimal.Zero,
		BalanceAmount: d("100"),
	}
	before := *bill

	if err := applyAllocationToBill(bill, d("100")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if before.Status != BillStatusPending || bill.Status != BillStatusPaid {
		t.Fatalf("snapshot pair lost the transition: %s -> %s", before.Status, bill.Status)
	}
	if !before.BalanceAmount.Equal(d("100")) || !bill.BalanceAmount.IsZero() {
		t.Fatalf("snapshot pair lost the balance change: %v -> %v", before.BalanceAmount, bill.BalanceAmount)
	}
}

func TestApplyAllocationToBill_NeverNegative(t *testing.T) {
	bill := &Bill{
		Status:        BillStatusPending,
		TotalAmount:   d("100"),
		PaidAmount:    d("80"),
		BalanceAmount: d("20"),
	}
	err := applyAllocationToBill(bill, d("80"))
	if err == nil {
		t.Fatal("expected conflict when allocation exceeds balance")
	}
	if kind := utils.ErrorKind(err); kind != "ConflictError" {
		t.Fatalf("expected ConflictError, got %s", kind)
	}
	// no mutation on failure
	if !bill.BalanceAmount.Equal(d("20")) {
		t.Fatalf("balance mutated on failed allocation: %v", bill.BalanceAmount)
	}
}
