package models

import (
	"sync"
	"testing"

	"github.com/shopspring/decimal"
)

// Simulates two payments racing for the same bill. In production the row
// lock serializes them and each transaction re-plans against the balance it
// observed under the lock; the mutex here stands in for that lock.
func TestConcurrentAllocations_SerializeOnBalance(t *testing.T) {
	bill := &Bill{
		Status:        BillStatusPending,
		TotalAmount:   d("100"),
		PaidAmount:    decimal.Zero,
		BalanceAmount: d("100"),
	}

	var rowLock sync.Mutex
	type outcome struct {
		allocated decimal.Decimal
		remainder decimal.Decimal
	}
	results := make([]outcome, 2)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			rowLock.Lock()
			defer rowLock.Unlock()

			planned, remaining := planAllocations(d("80"), []AllocationTarget{
				{BillId: "b1", BalanceAmount: bill.BalanceAmount},
			})
			allocated := decimal.Zero
			for _, step := range planned {
				if err := applyAllocationToBill(bill, step.Amount); err != nil {
					t.Errorf("allocation under lock must not conflict: %v", err)
					return
				}
				allocated = allocated.Add(step.Amount)
			}
			results[idx] = outcome{allocated: allocated, remainder: remaining}
		}(i)
	}
	wg.Wait()

	if bill.BalanceAmount.IsNegative() {
		t.Fatalf("balance went negative: %v", bill.BalanceAmount)
	}
	if !bill.BalanceAmount.IsZero() {
		t.Fatalf("expected bill settled, balance %v", bill.BalanceAmount)
	}
	if bill.Status != BillStatusPaid {
		t.Fatalf("expected Paid, got %s", bill.Status)
	}

	totalAllocated := results[0].allocated.Add(results[1].allocated)
	if !totalAllocated.Equal(d("100")) {
		t.Fatalf("total allocated %v, want 100", totalAllocated)
	}
	// One payment gets the full 80, the loser re-plans against 20 and keeps
	// 60 unallocated. Order depends on scheduling, so check the pair.
	totalRemainder := results[0].remainder.Add(results[1].remainder)
	if !totalRemainder.Equal(d("60")) {
		t.Fatalf("total remainder %v, want 60", totalRemainder)
	}
	for _, r := range results {
		if !r.allocated.Add(r.remainder).Equal(d("80")) {
			t.Fatalf("allocated %v + remainder %v != payment amount", r.allocated, r.remainder)
		}
	}
}
