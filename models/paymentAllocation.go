package models

import (
	"context"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/ledger_backend/config"
	"bitbucket.org/mmdatafocus/ledger_backend/utils"
	"github.com/shopspring/decimal"
)

// PaymentAllocation links one payment to one bill. Rows are created
// atomically with the balance mutation they represent and never updated or
// deleted; corrections are new allocations or refunds.
type PaymentAllocation struct {
	ID                int             `gorm:"primary_key" json:"id"`
	BusinessId        string          `gorm:"size:64;index;not null" json:"business_id"`
	PaymentId         string          `gorm:"size:64;not null;index:uniq_alloc,unique" json:"payment_id"`
	BillId            string          `gorm:"size:64;not null;index:uniq_alloc,unique;index" json:"bill_id"`
	AllocatedAmount   decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"allocated_amount"`
	BillBalanceBefore decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"bill_balance_before"`
	BillBalanceAfter  decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"bill_balance_after"`
	AllocationOrder   int             `gorm:"not null" json:"allocation_order"`
	CreatedAt         time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

// AllocationTarget is the slice of bill state the planner needs.
type AllocationTarget struct {
	BillId        string
	BalanceAmount decimal.Decimal
}

// PlannedAllocation is one step of an allocation walk.
type PlannedAllocation struct {
	BillId          string
	Amount          decimal.Decimal
	BalanceBefore   decimal.Decimal
	BalanceAfter    decimal.Decimal
	AllocationOrder int
}

// planAllocations walks targets in the given order, allocating
// min(remaining, balance) to each until the payment is exhausted or every
// target is settled. Returns the steps and the unallocated remainder.
// Callers are responsible for ordering targets (FIFO for bulk).
func planAllocations(amount decimal.Decimal, targets []AllocationTarget) ([]PlannedAllocation, decimal.Decimal) {
	remaining := utils.RoundMoney(amount)
	planned := make([]PlannedAllocation, 0, len(targets))
	order := 1
	for _, target := range targets {
		if remaining.LessThanOrEqual(decimal.Zero) {
			break
		}
		if target.BalanceAmount.LessThanOrEqual(decimal.Zero) {
			continue
		}
		allocate := decimal.Min(remaining, target.BalanceAmount)
		allocate = utils.RoundMoney(allocate)
		planned = append(planned, PlannedAllocation{
			BillId:          target.BillId,
			Amount:          allocate,
			BalanceBefore:   target.BalanceAmount,
			BalanceAfter:    utils.RoundMoney(target.BalanceAmount.Sub(allocate)),
			AllocationOrder: order,
		})
		remaining = utils.RoundMoney(remaining.Sub(allocate))
		order++
	}
	return planned, remaining
}

// applyAllocationToBill mutates the bill's paid/balance amounts and derives
// the resulting status. The caller holds the row lock.
func applyAllocationToBill(bill *Bill, allocated decimal.Decimal) error {
	if allocated.GreaterThan(bill.BalanceAmount) {
		return utils.NewConflictError("allocation exceeds bill balance")
	}
	bill.PaidAmount = utils.RoundMoney(bill.PaidAmount.Add(allocated))
	bill.BalanceAmount = utils.RoundMoney(bill.BalanceAmount.Sub(allocated))

	if bill.BalanceAmount.IsZero() {
		bill.Status = BillStatusPaid
	} else if bill.PaidAmount.IsPositive() && bill.Status != BillStatusOverdue {
		bill.Status = BillStatusPartial
	}
	return nil
}

// validateBillPayable gates allocation on lifecycle and approval state.
func validateBillPayable(bill *Bill) error {
	if bill.ApprovalStatus == ApprovalStatusPending {
		return utils.NewInvalidStateError("bill", string(bill.Status), "bill is awaiting approval and cannot receive payments")
	}
	if bill.ApprovalStatus == ApprovalStatusRejected {
		return utils.NewInvalidStateError("bill", string(bill.Status), "a rejected bill cannot receive payments")
	}
	if !bill.Status.IsPayable() {
		return utils.NewInvalidStateError("bill", string(bill.Status), "bill status does not allow payments")
	}
	if bill.BalanceAmount.LessThanOrEqual(decimal.Zero) {
		return utils.NewInvalidStateError("bill", string(bill.Status), "bill has no outstanding balance")
	}
	return nil
}

// isLockContention classifies driver errors that indicate a lost row-lock
// race (InnoDB lock wait timeout or deadlock victim).
func isLockContention(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "lock wait timeout") || strings.Contains(msg, "deadlock")
}

// GetAllocationsForBill returns the allocation trail of one bill in the
// order the allocations happened.
func GetAllocationsForBill(ctx context.Context, billId string) ([]*PaymentAllocation, error) {
	db := config.GetDB()

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, utils.NewForbiddenError("business id is required")
	}
	if err := utils.ValidateResourceId[Bill](ctx, businessId, billId); err != nil {
		return nil, utils.NewNotFoundError("bill", billId)
	}

	var rows []*PaymentAllocation
	err := db.WithContext(ctx).
		Where("business_id = ? AND bill_id = ?", businessId, billId).
		Order("created_at ASC, allocation_order ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
