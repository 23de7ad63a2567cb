package models

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/ledger_backend/config"
	"bitbucket.org/mmdatafocus/ledger_backend/utils"
	"gorm.io/gorm"
)

// BillApprovalHistory records every approval decision. Append-only.
type BillApprovalHistory struct {
	ID         int            `gorm:"primary_key" json:"id"`
	BusinessId string         `gorm:"size:64;index;not null" json:"business_id"`
	BillId     string         `gorm:"size:64;index;not null" json:"bill_id"`
	OldStatus  ApprovalStatus `gorm:"size:20;not null" json:"old_status"`
	NewStatus  ApprovalStatus `gorm:"size:20;not null" json:"new_status"`
	ActedBy    string         `gorm:"size:64;not null" json:"acted_by"`
	Notes      string         `gorm:"type:text" json:"notes"`
	CreatedAt  time.Time      `gorm:"autoCreateTime" json:"created_at"`
}

func appendApprovalHistory(tx *gorm.DB, businessId string, billId string, oldStatus, newStatus ApprovalStatus, actedBy string, notes string) error {
	row := BillApprovalHistory{
		BusinessId: businessId,
		BillId:     billId,
		OldStatus:  oldStatus,
		NewStatus:  newStatus,
		ActedBy:    actedBy,
		Notes:      notes,
	}
	return tx.Create(&row).Error
}

// SubmitBillForApproval moves a Draft bill to Pending. When the business's
// approval policy covers the bill total, approvalStatus goes to Pending and
// the business owner is notified; otherwise the bill is immediately payable.
func SubmitBillForApproval(ctx context.Context, billId string) (*Bill, error) {
	db := config.GetDB()

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, utils.NewForbiddenError("business id is required")
	}
	userId, _ := utils.GetUserIdFromContext(ctx)
	if err := checkPermission(ctx, businessId, ResourceBill, ActionSubmit); err != nil {
		return nil, err
	}

	business, err := GetBusiness(ctx, businessId)
	if err != nil {
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

	if bill.Status != BillStatusDraft {
		tx.Rollback()
		return nil, utils.NewInvalidStateError("bill", string(bill.Status), "only Draft bills can be submitted")
	}

	before := *bill
	oldApproval := bill.ApprovalStatus
	bill.Status = BillStatusPending
	if business.RequiresApproval(bill.TotalAmount) {
		bill.ApprovalStatus = ApprovalStatusPending
	} else {
		bill.ApprovalStatus = ApprovalStatusNotRequired
	}

	if err := tx.Omit("Items").Save(bill).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := appendApprovalHistory(tx, businessId, bill.ID, oldApproval, bill.ApprovalStatus, userId, ""); err != nil {
		tx.Rollback()
		return nil, err
	}
	description := fmt.Sprintf("Bill %s submitted.", bill.BillNumber)
	if err := SaveHistoryUpdate(tx, bill.ID, ReferenceTypeBill, &before, bill, description); err != nil {
		tx.Rollback()
		return nil, err
	}

	if bill.ApprovalStatus == ApprovalStatusPending {
		if err := QueueNotification(ctx, tx, businessId, bill.ID, ReferenceTypeBill,
			NotificationBillSubmitted, []string{business.OwnerUserId}, bill); err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return bill, nil
}

// ProcessBillApproval records an approve/reject decision on a bill whose
// approvalStatus is Pending. Reject sends the bill back to Draft for
// revision. A decision already made surfaces as ConflictError.
func ProcessBillApproval(ctx context.Context, billId string, action ApprovalAction, notes string) (*Bill, error) {
	db := config.GetDB()

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, utils.NewForbiddenError("business id is required")
	}
	userId, _ := utils.GetUserIdFromContext(ctx)
	if err := checkPermission(ctx, businessId, ResourceBill, ActionApprove); err != nil {
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

	if bill.ApprovalStatus != ApprovalStatusPending {
		tx.Rollback()
		return nil, utils.NewConflictError(fmt.Sprintf("approval for bill %s is already %s", bill.BillNumber, bill.ApprovalStatus))
	}

	before := *bill
	oldApproval := bill.ApprovalStatus
	var eventKind NotificationEventKind
	switch action {
	case ApprovalActionApprove:
		bill.ApprovalStatus = ApprovalStatusApproved
		bill.ApprovedBy = &userId
		eventKind = NotificationBillApproved
	case ApprovalActionReject:
		bill.ApprovalStatus = ApprovalStatusRejected
		bill.RejectedBy = &userId
		bill.Status = BillStatusDraft
		eventKind = NotificationBillRejected
	default:
		tx.Rollback()
		return nil, utils.NewFieldValidationError("invalid approval", map[string]string{"action": "approve or reject"})
	}

	if err := tx.Omit("Items").Save(bill).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := appendApprovalHistory(tx, businessId, bill.ID, oldApproval, bill.ApprovalStatus, userId, notes); err != nil {
		tx.Rollback()
		return nil, err
	}
	description := fmt.Sprintf("Bill %s %s.", bill.BillNumber, bill.ApprovalStatus)
	if err := SaveHistoryUpdate(tx, bill.ID, ReferenceTypeBill, &before, bill, description); err != nil {
		tx.Rollback()
		return nil, err
	}

	// decision notice goes to the bill's creator
	if err := QueueNotification(ctx, tx, businessId, bill.ID, ReferenceTypeBill,
		eventKind, []string{bill.CreatedBy}, bill); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return bill, nil
}

// BulkApprovalResult is one per-bill outcome of a bulk approval.
type BulkApprovalResult struct {
	BillId    string `json:"bill_id"`
	Succeeded bool   `json:"succeeded"`
	ErrorKind string `json:"error_kind,omitempty"`
	Message   string `json:"message,omitempty"`
}

// BulkApproveBills applies ProcessBillApproval per bill independently.
// Partial failures are collected per item; the batch never aborts early
// and is not atomic across bills.
func BulkApproveBills(ctx context.Context, billIds []string, action ApprovalAction, notes string) []BulkApprovalResult {
	results := make([]BulkApprovalResult, 0, len(billIds))
	for _, billId := range billIds {
		_, err := ProcessBillApproval(ctx, billId, action, notes)
		if err != nil {
			results = append(results, BulkApprovalResult{
				BillId:    billId,
				Succeeded: false,
				ErrorKind: utils.ErrorKind(err),
				Message:   err.Error(),
			})
			continue
		}
		results = append(results, BulkApprovalResult{BillId: billId, Succeeded: true})
	}
	return results
}

// GetBillApprovalHistory returns a bill's approval decisions, oldest first.
func GetBillApprovalHistory(ctx context.Context, billId string) ([]*BillApprovalHistory, error) {
	db := config.GetDB()

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, utils.NewForbiddenError("business id is required")
	}

	if err := utils.ValidateResourceId[Bill](ctx, businessId, billId); err != nil {
		return nil, utils.NewNotFoundError("bill", billId)
	}

	var rows []*BillApprovalHistory
	err := db.WithContext(ctx).
		Where("business_id = ? AND bill_id = ?", businessId, billId).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
