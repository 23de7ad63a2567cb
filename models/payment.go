package models

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/ledger_backend/config"
	"bitbucket.org/mmdatafocus/ledger_backend/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Payment is one money receipt from a customer. It is not necessarily tied
// to any bill at creation; allocations link it to bills. After allocation a
// payment is never mutated except for verification metadata.
type Payment struct {
	ID                string          `gorm:"primary_key;type:char(36)" json:"id"`
	BusinessId        string          `gorm:"size:64;not null;index;index:uniq_pay_no,unique" json:"business_id"`
	CustomerId        *string         `gorm:"size:64;index" json:"customer_id"`
	PaymentNumber     string          `gorm:"size:30;not null;index:uniq_pay_no,unique" json:"payment_number"`
	SequenceNo        int64           `gorm:"not null" json:"sequence_no"`
	Amount            decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount"`
	AllocatedAmount   decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"allocated_amount"`
	UnallocatedAmount decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"unallocated_amount"`
	Method            PaymentMethod   `gorm:"size:20;not null" json:"method"`
	Status            PaymentStatus   `gorm:"size:20;not null;index" json:"status"`
	ReceivedAt        time.Time       `gorm:"not null" json:"received_at"`
	CreatedBy         string          `gorm:"size:64;not null" json:"created_by"`
	CreatedAt         time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (p *Payment) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

type AllocationResult struct {
	Payment     *Payment             `json:"payment"`
	Allocations []*PaymentAllocation `json:"allocations"`
}

// allocationRetryAttempts bounds retries on row-lock contention.
const allocationRetryAttempts = 3

func validatePaymentInput(amount decimal.Decimal, method PaymentMethod) error {
	fields := map[string]string{}
	if amount.LessThanOrEqual(decimal.Zero) {
		fields["amount"] = "must be positive"
	}
	if !method.Valid() {
		fields["method"] = "unknown payment method"
	}
	if len(fields) > 0 {
		return utils.NewFieldValidationError("invalid payment", fields)
	}
	return nil
}

func newPayment(ctx context.Context, businessId string, customerId *string, amount decimal.Decimal, method PaymentMethod, userId string) (*Payment, error) {
	business, err := GetBusiness(ctx, businessId)
	if err != nil {
		return nil, err
	}
	seqNo, err := utils.GetSequence[Payment](ctx, businessId)
	if err != nil {
		return nil, err
	}
	amount = utils.RoundMoney(amount)
	return &Payment{
		BusinessId:        businessId,
		CustomerId:        customerId,
		PaymentNumber:     fmt.Sprintf("%s-%06d", business.PaymentPrefix, seqNo),
		SequenceNo:        seqNo,
		Amount:            amount,
		AllocatedAmount:   decimal.Zero,
		UnallocatedAmount: amount,
		Method:            method,
		Status:            PaymentStatusCompleted,
		ReceivedAt:        time.Now().UTC(),
		CreatedBy:         userId,
	}, nil
}

// AllocateSinglePayment records a payment against one bill. Overpayment is
// permitted: min(amount, balance) is allocated and the remainder stays on
// the payment as unallocated. The bill's balance mutation, the allocation
// row, the status transition, and the history write commit as one unit.
func AllocateSinglePayment(ctx context.Context, billId string, amount decimal.Decimal, method PaymentMethod) (*AllocationResult, error) {
	db := config.GetDB()
	logger := config.GetLogger()

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, utils.NewForbiddenError("business id is required")
	}
	userId, _ := utils.GetUserIdFromContext(ctx)
	if err := checkPermission(ctx, businessId, ResourcePayment, ActionRecord); err != nil {
		return nil, err
	}
	if err := validatePaymentInput(amount, method); err != nil {
		return nil, err
	}
	if err := utils.ValidateResourceId[Bill](ctx, businessId, billId); err != nil {
		return nil, utils.NewNotFoundError("bill", billId)
	}

	payment, err := newPayment(ctx, businessId, nil, amount, method, userId)
	if err != nil {
		return nil, err
	}

	var result *AllocationResult
	err = utils.RetryOnLockContention(ctx, allocationRetryAttempts, func() error {
		tx := db.WithContext(ctx).Begin()
		if tx.Error != nil {
			return tx.Error
		}

		bill, err := utils.FetchModelForUpdate[Bill](tx, businessId, billId)
		if err != nil {
			tx.Rollback()
			if err == utils.ErrorRecordNotFound {
				return utils.NewNotFoundError("bill", billId)
			}
			if isLockContention(err) {
				return utils.NewConflictError("bill row is locked by a concurrent operation")
			}
			return err
		}

		if err := validateBillPayable(bill); err != nil {
			tx.Rollback()
			return err
		}

		planned, remaining := planAllocations(payment.Amount, []AllocationTarget{
			{BillId: bill.ID, BalanceAmount: bill.BalanceAmount},
		})
		if len(planned) == 0 {
			tx.Rollback()
			return utils.NewInvalidStateError("bill", string(bill.Status), "nothing to allocate")
		}
		step := planned[0]

		billBefore := *bill
		if err := applyAllocationToBill(bill, step.Amount); err != nil {
			tx.Rollback()
			return err
		}

		payment.CustomerId = bill.CustomerId
		payment.AllocatedAmount = step.Amount
		payment.UnallocatedAmount = remaining
		if err := tx.Create(payment).Error; err != nil {
			tx.Rollback()
			config.LogError(logger, "models", "AllocateSinglePayment", "create payment", payment.PaymentNumber, err)
			return err
		}

		allocation := PaymentAllocation{
			BusinessId:        businessId,
			PaymentId:         payment.ID,
			BillId:            bill.ID,
			AllocatedAmount:   step.Amount,
			BillBalanceBefore: step.BalanceBefore,
			BillBalanceAfter:  step.BalanceAfter,
			AllocationOrder:   step.AllocationOrder,
		}
		if err := tx.Create(&allocation).Error; err != nil {
			tx.Rollback()
			return err
		}

		if err := tx.Omit("Items").Save(bill).Error; err != nil {
			tx.Rollback()
			if isLockContention(err) {
				return utils.NewConflictError("bill row is locked by a concurrent operation")
			}
			return err
		}

		description := fmt.Sprintf("Payment %s of %v allocated to bill %s.", payment.PaymentNumber, step.Amount, bill.BillNumber)
		if err := SaveHistoryAllocation(tx, bill.ID, ReferenceTypeBill, &billBefore, bill, description); err != nil {
			tx.Rollback()
			return err
		}

		if err := QueueNotification(ctx, tx, businessId, payment.ID, ReferenceTypePayment,
			NotificationPaymentRecorded, []string{bill.CreatedBy}, payment); err != nil {
			tx.Rollback()
			return err
		}

		if err := tx.Commit().Error; err != nil {
			if isLockContention(err) {
				return utils.NewConflictError("bill row is locked by a concurrent operation")
			}
			return err
		}
		result = &AllocationResult{Payment: payment, Allocations: []*PaymentAllocation{&allocation}}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// BulkAllocationItem is one per-bill outcome of a bulk allocation.
type BulkAllocationItem struct {
	BillId     string             `json:"bill_id"`
	Succeeded  bool               `json:"succeeded"`
	Allocation *PaymentAllocation `json:"allocation,omitempty"`
	ErrorKind  string             `json:"error_kind,omitempty"`
	Message    string             `json:"message,omitempty"`
}

type BulkAllocationResult struct {
	Payment     *Payment             `json:"payment"`
	Items       []BulkAllocationItem `json:"items"`
	Allocations []*PaymentAllocation `json:"allocations"`
}

// fifoTargets selects the customer's outstanding bills oldest obligation
// first: due date ascending, then bill date, then creation order.
func fifoTargets(ctx context.Context, businessId string, customerId string) ([]*Bill, error) {
	db := config.GetDB()
	var bills []*Bill
	err := db.WithContext(ctx).
		Where("business_id = ? AND customer_id = ? AND balance_amount > 0 AND status IN ?",
			businessId, customerId,
			[]BillStatus{BillStatusPending, BillStatusPartial, BillStatusOverdue}).
		Where("approval_status IN ?", []ApprovalStatus{ApprovalStatusNotRequired, ApprovalStatusApproved}).
		Order("due_date ASC, bill_date ASC, created_at ASC, sequence_no ASC").
		Find(&bills).Error
	if err != nil {
		return nil, err
	}
	return bills, nil
}

// AllocateBulkPayment distributes one payment across a customer's
// outstanding bills FIFO. Each bill's atomic unit commits independently; a
// failure partway leaves earlier allocations committed and is reported in
// the per-item outcomes. Amount beyond the total outstanding stays on the
// payment as unallocated.
func AllocateBulkPayment(ctx context.Context, customerId string, amount decimal.Decimal, method PaymentMethod) (*BulkAllocationResult, error) {
	db := config.GetDB()
	logger := config.GetLogger()

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, utils.NewForbiddenError("business id is required")
	}
	userId, _ := utils.GetUserIdFromContext(ctx)
	if err := checkPermission(ctx, businessId, ResourcePayment, ActionRecord); err != nil {
		return nil, err
	}
	if err := validatePaymentInput(amount, method); err != nil {
		return nil, err
	}
	if err := utils.ValidateResourceId[Customer](ctx, businessId, customerId); err != nil {
		return nil, utils.NewNotFoundError("customer", customerId)
	}

	payment, err := newPayment(ctx, businessId, &customerId, amount, method, userId)
	if err != nil {
		return nil, err
	}
	if err := db.WithContext(ctx).Create(payment).Error; err != nil {
		config.LogError(logger, "models", "AllocateBulkPayment", "create payment", payment.PaymentNumber, err)
		return nil, err
	}

	targets, err := fifoTargets(ctx, businessId, customerId)
	if err != nil {
		return nil, err
	}

	result := &BulkAllocationResult{Payment: payment}
	remaining := payment.Amount
	order := 1

	for _, target := range targets {
		if remaining.LessThanOrEqual(decimal.Zero) {
			break
		}

		allocation, allocated, err := allocateBulkStep(ctx, businessId, payment, target.ID, remaining, order)
		if err != nil {
			result.Items = append(result.Items, BulkAllocationItem{
				BillId:    target.ID,
				Succeeded: false,
				ErrorKind: utils.ErrorKind(err),
				Message:   err.Error(),
			})
			continue
		}
		result.Items = append(result.Items, BulkAllocationItem{
			BillId:     target.ID,
			Succeeded:  true,
			Allocation: allocation,
		})
		result.Allocations = append(result.Allocations, allocation)
		remaining = utils.RoundMoney(remaining.Sub(allocated))
		order++
	}

	payment.AllocatedAmount = utils.RoundMoney(payment.Amount.Sub(remaining))
	payment.UnallocatedAmount = remaining
	if err := db.WithContext(ctx).Model(&Payment{}).Where("id = ?", payment.ID).Updates(map[string]interface{}{
		"allocated_amount":   payment.AllocatedAmount,
		"unallocated_amount": payment.UnallocatedAmount,
	}).Error; err != nil {
		return nil, err
	}

	if len(result.Allocations) > 0 {
		tx := db.WithContext(ctx).Begin()
		if tx.Error == nil {
			if err := QueueNotification(ctx, tx, businessId, payment.ID, ReferenceTypePayment,
				NotificationPaymentRecorded, []string{userId}, payment); err != nil {
				tx.Rollback()
				config.LogError(logger, "models", "AllocateBulkPayment", "queue notification", payment.ID, err)
			} else if err := tx.Commit().Error; err != nil {
				config.LogError(logger, "models", "AllocateBulkPayment", "commit notification", payment.ID, err)
			}
		}
	}

	return result, nil
}

// allocateBulkStep is one bill's atomic unit inside a bulk allocation:
// lock the bill, re-read its balance, allocate, write the allocation row
// and history, commit. The balance is re-planned under the lock so a
// concurrent allocation since the FIFO scan cannot push it negative.
func allocateBulkStep(ctx context.Context, businessId string, payment *Payment, billId string, remaining decimal.Decimal, order int) (*PaymentAllocation, decimal.Decimal, error) {
	db := config.GetDB()

	var allocation *PaymentAllocation
	var allocated decimal.Decimal

	err := utils.RetryOnLockContention(ctx, allocationRetryAttempts, func() error {
		tx := db.WithContext(ctx).Begin()
		if tx.Error != nil {
			return tx.Error
		}

		bill, err := utils.FetchModelForUpdate[Bill](tx, businessId, billId)
		if err != nil {
			tx.Rollback()
			if err == utils.ErrorRecordNotFound {
				return utils.NewNotFoundError("bill", billId)
			}
			if isLockContention(err) {
				return utils.NewConflictError("bill row is locked by a concurrent operation")
			}
			return err
		}

		if err := validateBillPayable(bill); err != nil {
			tx.Rollback()
			return err
		}

		planned, _ := planAllocations(remaining, []AllocationTarget{
			{BillId: bill.ID, BalanceAmount: bill.BalanceAmount},
		})
		if len(planned) == 0 {
			tx.Rollback()
			return utils.NewInvalidStateError("bill", string(bill.Status), "nothing to allocate")
		}
		step := planned[0]

		billBefore := *bill
		if err := applyAllocationToBill(bill, step.Amount); err != nil {
			tx.Rollback()
			return err
		}

		row := PaymentAllocation{
			BusinessId:        businessId,
			PaymentId:         payment.ID,
			BillId:            bill.ID,
			AllocatedAmount:   step.Amount,
			BillBalanceBefore: step.BalanceBefore,
			BillBalanceAfter:  step.BalanceAfter,
			AllocationOrder:   order,
		}
		if err := tx.Create(&row).Error; err != nil {
			tx.Rollback()
			return err
		}

		if err := tx.Omit("Items").Save(bill).Error; err != nil {
			tx.Rollback()
			if isLockContention(err) {
				return utils.NewConflictError("bill row is locked by a concurrent operation")
			}
			return err
		}

		description := fmt.Sprintf("Payment %s of %v allocated to bill %s (bulk #%d).", payment.PaymentNumber, step.Amount, bill.BillNumber, order)
		if err := SaveHistoryAllocation(tx, bill.ID, ReferenceTypeBill, &billBefore, bill, description); err != nil {
			tx.Rollback()
			return err
		}

		if err := tx.Commit().Error; err != nil {
			if isLockContention(err) {
				return utils.NewConflictError("bill row is locked by a concurrent operation")
			}
			return err
		}
		allocation = &row
		allocated = step.Amount
		return nil
	})
	if err != nil {
		return nil, decimal.Zero, err
	}
	return allocation, allocated, nil
}

func GetPayment(ctx context.Context, id string) (*Payment, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, utils.NewForbiddenError("business id is required")
	}
	result, err := utils.FetchModel[Payment](ctx, businessId, id)
	if err != nil {
		return nil, utils.NewNotFoundError("payment", id)
	}
	return result, nil
}
