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
	"gorm.io/gorm/clause"
)

type Bill struct {
	ID               string          `gorm:"primary_key;type:char(36)" json:"id"`
	BusinessId       string          `gorm:"size:64;not null;index;index:uniq_bill_no,unique" json:"business_id"`
	CustomerId       *string         `gorm:"size:64;index" json:"customer_id"`
	BillNumber       string          `gorm:"size:30;not null;index:uniq_bill_no,unique" json:"bill_number"`
	SequenceNo       int64           `gorm:"not null" json:"sequence_no"`
	BillDate         time.Time       `gorm:"not null" json:"bill_date"`
	DueDate          *time.Time      `gorm:"index" json:"due_date"`
	Status           BillStatus      `gorm:"size:20;not null;index" json:"status"`
	ApprovalStatus   ApprovalStatus  `gorm:"size:20;not null;index" json:"approval_status"`
	Subtotal         decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"subtotal"`
	DiscountAmount   decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"discount_amount"`
	TaxAmount        decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"tax_amount"`
	ShippingCost     decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"shipping_cost"`
	AdjustmentAmount decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"adjustment_amount"`
	RoundOffAmount   decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"round_off_amount"`
	TotalAmount      decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"total_amount"`
	PaidAmount       decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"paid_amount"`
	BalanceAmount    decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"balance_amount"`
	Notes            string          `gorm:"type:text" json:"notes"`
	CreatedBy        string          `gorm:"size:64;not null" json:"created_by"`
	ApprovedBy       *string         `gorm:"size:64" json:"approved_by"`
	RejectedBy       *string         `gorm:"size:64" json:"rejected_by"`
	VoidedBy         *string         `gorm:"size:64" json:"voided_by"`
	VoidedAt         *time.Time      `json:"voided_at"`
	VoidReason       string          `gorm:"size:255" json:"void_reason"`
	ParentBillId     *string         `gorm:"size:64;index" json:"parent_bill_id"`
	Items            []BillItem      `gorm:"foreignKey:BillId" json:"items"`
	CreatedAt        time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt        gorm.DeletedAt  `gorm:"index" json:"-"`
}

func (b *Bill) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	return nil
}

func (Bill) TableName() string { return "bills" }

type BillItem struct {
	ID        int             `gorm:"primary_key" json:"id"`
	BillId    string          `gorm:"size:64;index;not null" json:"bill_id"`
	Name      string          `gorm:"size:255;not null" json:"name"`
	Quantity  decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"quantity"`
	UnitPrice decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"unit_price"`
	LineTotal decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"line_total"`
}

type BillItemInput struct {
	Name      string          `json:"name" validate:"required,max=255"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

type NewBill struct {
	CustomerId       *string         `json:"customerId"`
	BillDate         *time.Time      `json:"billDate"`
	DueDate          *time.Time      `json:"dueDate"`
	Items            []BillItemInput `json:"items" validate:"required,min=1,dive"`
	DiscountAmount   decimal.Decimal `json:"discountAmount"`
	TaxAmount        decimal.Decimal `json:"taxAmount"`
	ShippingCost     decimal.Decimal `json:"shippingCost"`
	AdjustmentAmount decimal.Decimal `json:"adjustmentAmount"`
	RoundOffAmount   decimal.Decimal `json:"roundOffAmount"`
	Notes            string          `json:"notes"`
	ParentBillId     *string         `json:"parentBillId"`
}

type UpdateBillInput struct {
	CustomerId       *string          `json:"customerId"`
	BillDate         *time.Time       `json:"billDate"`
	DueDate          *time.Time       `json:"dueDate"`
	Items            []BillItemInput  `json:"items"`
	DiscountAmount   *decimal.Decimal `json:"discountAmount"`
	TaxAmount        *decimal.Decimal `json:"taxAmount"`
	ShippingCost     *decimal.Decimal `json:"shippingCost"`
	AdjustmentAmount *decimal.Decimal `json:"adjustmentAmount"`
	RoundOffAmount   *decimal.Decimal `json:"roundOffAmount"`
	Notes            *string          `json:"notes"`
}

// buildBillItems validates line inputs and computes line totals.
func buildBillItems(items []BillItemInput) ([]BillItem, error) {
	if len(items) == 0 {
		return nil, utils.NewFieldValidationError("invalid bill", map[string]string{"items": "min=1"})
	}
	result := make([]BillItem, 0, len(items))
	for i, item := range items {
		if item.Name == "" {
			return nil, utils.NewFieldValidationError("invalid bill", map[string]string{fmt.Sprintf("items[%d].name", i): "required"})
		}
		if item.Quantity.IsNegative() || item.UnitPrice.IsNegative() {
			return nil, utils.NewFieldValidationError("invalid bill", map[string]string{fmt.Sprintf("items[%d]", i): "negative line total"})
		}
		lineTotal := utils.RoundMoney(item.Quantity.Mul(item.UnitPrice))
		if lineTotal.IsNegative() {
			return nil, utils.NewFieldValidationError("invalid bill", map[string]string{fmt.Sprintf("items[%d]", i): "negative line total"})
		}
		result = append(result, BillItem{
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			LineTotal: lineTotal,
		})
	}
	return result, nil
}

// computeBillTotals derives subtotal and total from line items and charges.
// total = subtotal - discount + tax + shipping + adjustment + roundOff
func computeBillTotals(items []BillItem, discount, tax, shipping, adjustment, roundOff decimal.Decimal) (subtotal decimal.Decimal, total decimal.Decimal) {
	subtotal = decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(item.LineTotal)
	}
	subtotal = utils.RoundMoney(subtotal)
	total = utils.RoundMoney(subtotal.
		Sub(discount).
		Add(tax).
		Add(shipping).
		Add(adjustment).
		Add(roundOff))
	return subtotal, total
}

// validateBillStatusChange enforces the lifecycle state machine.
// Void is reachable from any state except Void itself and a fully settled
// Paid bill.
func validateBillStatusChange(from BillStatus, to BillStatus) error {
	if !to.Valid() {
		return utils.NewValidationError("invalid bill status " + string(to))
	}

	if to == BillStatusVoid {
		switch from {
		case BillStatusVoid:
			return utils.NewInvalidStateError("bill", string(from), "bill is already void")
		case BillStatusPaid:
			return utils.NewInvalidStateError("bill", string(from), "a fully settled bill cannot be voided")
		}
		return nil
	}
	if from == to {
		return nil
	}

	allowed := map[BillStatus][]BillStatus{
		BillStatusDraft:   {BillStatusPending, BillStatusCancelled},
		BillStatusPending: {BillStatusDraft, BillStatusPaid, BillStatusPartial, BillStatusOverdue, BillStatusCancelled},
		BillStatusPartial: {BillStatusPaid, BillStatusOverdue},
		BillStatusOverdue: {BillStatusPaid, BillStatusPartial},
	}
	for _, next := range allowed[from] {
		if next == to {
			return nil
		}
	}
	return utils.NewInvalidStateError("bill", string(from), fmt.Sprintf("cannot change bill status from %s to %s", from, to))
}

const handlerCreateBill = "CreateBill"

// CreateBill creates a bill in Draft. When the caller supplies an
// idempotency key, a retry of a previously committed call returns the
// original bill instead of minting a second number.
func CreateBill(ctx context.Context, input *NewBill) (*Bill, error) {
	db := config.GetDB()
	logger := config.GetLogger()

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, utils.NewForbiddenError("business id is required")
	}
	userId, _ := utils.GetUserIdFromContext(ctx)
	if err := checkPermission(ctx, businessId, ResourceBill, ActionCreate); err != nil {
		return nil, err
	}
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}

	// Idempotent replay: a key that already succeeded short-circuits to the
	// bill the first call produced.
	idemKey, hasIdemKey := utils.GetIdempotencyKeyFromContext(ctx)
	if hasIdemKey && idemKey != "" {
		existing, err := findIdempotencyKey(db.WithContext(ctx), businessId, handlerCreateBill, idemKey)
		if err != nil {
			return nil, err
		}
		resultRef, replay, err := resolveIdempotentReplay(existing)
		if err != nil {
			return nil, err
		}
		if replay {
			return GetBill(ctx, resultRef)
		}
	}

	items, err := buildBillItems(input.Items)
	if err != nil {
		return nil, err
	}
	subtotal, total := computeBillTotals(items,
		input.DiscountAmount, input.TaxAmount, input.ShippingCost,
		input.AdjustmentAmount, input.RoundOffAmount)
	if total.IsNegative() {
		return nil, utils.NewFieldValidationError("invalid bill", map[string]string{"totalAmount": "negative"})
	}

	if input.CustomerId != nil && *input.CustomerId != "" {
		if err := utils.ValidateResourceId[Customer](ctx, businessId, *input.CustomerId); err != nil {
			return nil, utils.NewNotFoundError("customer", *input.CustomerId)
		}
	}
	if input.ParentBillId != nil && *input.ParentBillId != "" {
		if err := utils.ValidateResourceId[Bill](ctx, businessId, *input.ParentBillId); err != nil {
			return nil, utils.NewNotFoundError("bill", *input.ParentBillId)
		}
	}

	business, err := GetBusiness(ctx, businessId)
	if err != nil {
		return nil, err
	}

	seqNo, err := utils.GetSequence[Bill](ctx, businessId)
	if err != nil {
		config.LogError(logger, "models", "CreateBill", "get bill sequence", businessId, err)
		return nil, err
	}

	billDate := time.Now().UTC()
	if input.BillDate != nil {
		billDate = *input.BillDate
	}

	bill := Bill{
		BusinessId:       businessId,
		CustomerId:       input.CustomerId,
		BillNumber:       fmt.Sprintf("%s-%06d", business.BillPrefix, seqNo),
		SequenceNo:       seqNo,
		BillDate:         billDate,
		DueDate:          input.DueDate,
		Status:           BillStatusDraft,
		ApprovalStatus:   ApprovalStatusNotRequired,
		Subtotal:         subtotal,
		DiscountAmount:   utils.RoundMoney(input.DiscountAmount),
		TaxAmount:        utils.RoundMoney(input.TaxAmount),
		ShippingCost:     utils.RoundMoney(input.ShippingCost),
		AdjustmentAmount: utils.RoundMoney(input.AdjustmentAmount),
		RoundOffAmount:   utils.RoundMoney(input.RoundOffAmount),
		TotalAmount:      total,
		PaidAmount:       decimal.Zero,
		BalanceAmount:    total,
		Notes:            input.Notes,
		CreatedBy:        userId,
		ParentBillId:     input.ParentBillId,
		Items:            items,
	}

	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}

	var idemRecord *IdempotencyKey
	if hasIdemKey && idemKey != "" {
		idemRecord, err = beginIdempotency(tx, businessId, handlerCreateBill, idemKey)
		if err != nil {
			tx.Rollback()
			// unique index hit: a concurrent call with the same key won
			return nil, utils.NewConflictError("duplicate createBill idempotency key")
		}
	}

	if err := tx.Create(&bill).Error; err != nil {
		tx.Rollback()
		config.LogError(logger, "models", "CreateBill", "create bill", bill.BillNumber, err)
		return nil, err
	}

	description := fmt.Sprintf("Bill %s created for %v.", bill.BillNumber, bill.TotalAmount)
	if err := SaveHistoryCreate(tx, bill.ID, ReferenceTypeBill, &bill, description); err != nil {
		tx.Rollback()
		return nil, err
	}

	if idemRecord != nil {
		if err := completeIdempotency(tx, idemRecord, bill.ID); err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &bill, nil
}

// UpdateBill patches a bill while it is still mutable. Monetary fields are
// frozen once any payment has been allocated.
func UpdateBill(ctx context.Context, billId string, input *UpdateBillInput) (*Bill, error) {
	db := config.GetDB()
	logger := config.GetLogger()

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, utils.NewForbiddenError("business id is required")
	}
	if err := checkPermission(ctx, businessId, ResourceBill, ActionUpdate); err != nil {
		return nil, err
	}

	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}

	bill, err := utils.FetchModelForUpdate[Bill](tx, businessId, billId)
	if err != nil {
		tx.Rollback()
		if err == utils.ErrorRecordNotFound {
			return nil, utils.NewNotFoundError("bill", billId)
		}
		return nil, err
	}

	if bill.Status != BillStatusDraft && bill.Status != BillStatusPending {
		tx.Rollback()
		return nil, utils.NewInvalidStateError("bill", string(bill.Status), "bill can only be updated while Draft or Pending")
	}
	if bill.ApprovalStatus == ApprovalStatusApproved {
		tx.Rollback()
		return nil, utils.NewInvalidStateError("bill", string(bill.Status), "an approved bill cannot be updated")
	}

	monetaryChange := input.Items != nil || input.DiscountAmount != nil || input.TaxAmount != nil ||
		input.ShippingCost != nil || input.AdjustmentAmount != nil || input.RoundOffAmount != nil
	if monetaryChange && bill.PaidAmount.IsPositive() {
		tx.Rollback()
		return nil, utils.NewInvalidStateError("bill", string(bill.Status), "monetary fields are frozen once payments are allocated")
	}
	if config.StrictSettledBillImmutability() && bill.PaidAmount.IsPositive() {
		tx.Rollback()
		return nil, utils.NewInvalidStateError("bill", string(bill.Status), "bill with payments must be voided and recreated")
	}

	before := *bill

	if input.CustomerId != nil {
		if *input.CustomerId != "" {
			if err := utils.ValidateResourceId[Customer](ctx, businessId, *input.CustomerId); err != nil {
				tx.Rollback()
				return nil, utils.NewNotFoundError("customer", *input.CustomerId)
			}
		}
		bill.CustomerId = input.CustomerId
	}
	if input.BillDate != nil {
		bill.BillDate = *input.BillDate
	}
	if input.DueDate != nil {
		bill.DueDate = input.DueDate
	}
	if input.Notes != nil {
		bill.Notes = *input.Notes
	}
	if input.DiscountAmount != nil {
		bill.DiscountAmount = utils.RoundMoney(*input.DiscountAmount)
	}
	if input.TaxAmount != nil {
		bill.TaxAmount = utils.RoundMoney(*input.TaxAmount)
	}
	if input.ShippingCost != nil {
		bill.ShippingCost = utils.RoundMoney(*input.ShippingCost)
	}
	if input.AdjustmentAmount != nil {
		bill.AdjustmentAmount = utils.RoundMoney(*input.AdjustmentAmount)
	}
	if input.RoundOffAmount != nil {
		bill.RoundOffAmount = utils.RoundMoney(*input.RoundOffAmount)
	}

	items := bill.Items
	if input.Items != nil {
		items, err = buildBillItems(input.Items)
		if err != nil {
			tx.Rollback()
			return nil, err
		}
		// replace line items wholesale
		if err := tx.Where("bill_id = ?", bill.ID).Delete(&BillItem{}).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
		for i := range items {
			items[i].BillId = bill.ID
		}
		if err := tx.Create(&items).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
		bill.Items = items
	} else {
		if err := tx.Where("bill_id = ?", bill.ID).Find(&items).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
		bill.Items = items
	}

	subtotal, total := computeBillTotals(items,
		bill.DiscountAmount, bill.TaxAmount, bill.ShippingCost,
		bill.AdjustmentAmount, bill.RoundOffAmount)
	if total.IsNegative() {
		tx.Rollback()
		return nil, utils.NewFieldValidationError("invalid bill", map[string]string{"totalAmount": "negative"})
	}
	bill.Subtotal = subtotal
	bill.TotalAmount = total
	bill.BalanceAmount = utils.RoundMoney(total.Sub(bill.PaidAmount))

	// A revised bill goes back through approval.
	if bill.ApprovalStatus == ApprovalStatusPending || bill.ApprovalStatus == ApprovalStatusRejected {
		bill.ApprovalStatus = ApprovalStatusNotRequired
		bill.Status = BillStatusDraft
	}

	if err := tx.Omit("Items").Save(bill).Error; err != nil {
		tx.Rollback()
		config.LogError(logger, "models", "UpdateBill", "save bill", billId, err)
		return nil, err
	}

	description := fmt.Sprintf("Bill %s updated.", bill.BillNumber)
	if err := SaveHistoryUpdate(tx, bill.ID, ReferenceTypeBill, &before, bill, description); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return bill, nil
}

// VoidBill voids a bill from any non-void, non-settled state. Existing
// allocations are not reversed; refunds are a separate operation.
func VoidBill(ctx context.Context, billId string, reason string) (*Bill, error) {
	db := config.GetDB()

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, utils.NewForbiddenError("business id is required")
	}
	userId, _ := utils.GetUserIdFromContext(ctx)
	if err := checkPermission(ctx, businessId, ResourceBill, ActionVoid); err != nil {
		return nil, err
	}

	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}

	bill, err := utils.FetchModelForUpdate[Bill](tx, businessId, billId)
	if err != nil {
		tx.Rollback()
		if err == utils.ErrorRecordNotFound {
			return nil, utils.NewNotFoundError("bill", billId)
		}
		return nil, err
	}

	if err := validateBillStatusChange(bill.Status, BillStatusVoid); err != nil {
		tx.Rollback()
		return nil, err
	}

	before := *bill
	now := time.Now().UTC()
	bill.Status = BillStatusVoid
	if bill.ApprovalStatus == ApprovalStatusPending {
		bill.ApprovalStatus = ApprovalStatusCancelled
	}
	bill.VoidedBy = &userId
	bill.VoidedAt = &now
	bill.VoidReason = reason

	if err := tx.Omit("Items").Save(bill).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	description := fmt.Sprintf("Bill %s voided: %s", bill.BillNumber, reason)
	if err := SaveHistoryVoid(tx, bill.ID, ReferenceTypeBill, &before, bill, description); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := QueueNotification(ctx, tx, businessId, bill.ID, ReferenceTypeBill,
		NotificationBillVoided, []string{bill.CreatedBy}, bill); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return bill, nil
}

func GetBill(ctx context.Context, id string) (*Bill, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, utils.NewForbiddenError("business id is required")
	}
	result, err := utils.FetchModel[Bill](ctx, businessId, id, "Items")
	if err != nil {
		return nil, utils.NewNotFoundError("bill", id)
	}
	return result, nil
}

type BillFilter struct {
	CustomerId *string
	Status     *BillStatus
	FromDate   *time.Time
	ToDate     *time.Time
}

func GetBills(ctx context.Context, filter *BillFilter) ([]*Bill, error) {
	db := config.GetDB()

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, utils.NewForbiddenError("business id is required")
	}

	dbCtx := db.WithContext(ctx).Where("business_id = ?", businessId)
	if filter != nil {
		if filter.CustomerId != nil && *filter.CustomerId != "" {
			dbCtx = dbCtx.Where("customer_id = ?", *filter.CustomerId)
		}
		if filter.Status != nil {
			dbCtx = dbCtx.Where("status = ?", *filter.Status)
		}
		if filter.FromDate != nil {
			dbCtx = dbCtx.Where("bill_date >= ?", *filter.FromDate)
		}
		if filter.ToDate != nil {
			dbCtx = dbCtx.Where("bill_date <= ?", *filter.ToDate)
		}
	}

	var results []*Bill
	err := dbCtx.Preload("Items").Order("bill_date DESC, sequence_no DESC").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

// overdueCutoff normalizes asOf to the business-local start of day so due
// dates are compared on calendar days, not instants.
func overdueCutoff(asOf time.Time, timezone string) time.Time {
	cutoff, err := utils.ConvertToDate(asOf, timezone)
	if err != nil {
		return asOf
	}
	return cutoff
}

// applyOverdue flips one bill to Overdue and returns the prior snapshot for
// its audit row.
func applyOverdue(bill *Bill) Bill {
	before := *bill
	bill.Status = BillStatusOverdue
	return before
}

// MarkOverdueBills flips unpaid bills whose due date has passed to Overdue,
// one history row per transition. Run daily by the operations scheduler.
func MarkOverdueBills(ctx context.Context, asOf time.Time) (int64, error) {
	db := config.GetDB()

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return 0, utils.NewForbiddenError("business id is required")
	}

	business, err := GetBusiness(ctx, businessId)
	if err != nil {
		return 0, err
	}
	cutoff := overdueCutoff(asOf, business.Timezone)

	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return 0, tx.Error
	}

	var bills []*Bill
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("business_id = ? AND status IN ? AND due_date IS NOT NULL AND due_date < ?",
			businessId, []BillStatus{BillStatusPending, BillStatusPartial}, cutoff).
		Find(&bills).Error; err != nil {
		tx.Rollback()
		return 0, err
	}

	for _, bill := range bills {
		before := applyOverdue(bill)
		if err := tx.Omit("Items").Save(bill).Error; err != nil {
			tx.Rollback()
			return 0, err
		}
		description := fmt.Sprintf("Bill %s marked overdue.", bill.BillNumber)
		if err := SaveHistoryUpdate(tx, bill.ID, ReferenceTypeBill, &before, bill, description); err != nil {
			tx.Rollback()
			return 0, err
		}
	}

	if err := tx.Commit().Error; err != nil {
		return 0, err
	}
	return int64(len(bills)), nil
}
