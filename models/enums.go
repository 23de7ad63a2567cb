package models

import "errors"

type BillStatus string

const (
	BillStatusDraft     BillStatus = "Draft"
	BillStatusPending   BillStatus = "Pending"
	BillStatusPaid      BillStatus = "Paid"
	BillStatusPartial   BillStatus = "Partial"
	BillStatusOverdue   BillStatus = "Overdue"
	BillStatusCancelled BillStatus = "Cancelled"
	BillStatusVoid      BillStatus = "Void"
)

func (s BillStatus) Valid() bool {
	switch s {
	case BillStatusDraft, BillStatusPending, BillStatusPaid, BillStatusPartial,
		BillStatusOverdue, BillStatusCancelled, BillStatusVoid:
		return true
	}
	return false
}

// IsPayable reports whether a bill in this status may receive allocations.
func (s BillStatus) IsPayable() bool {
	switch s {
	case BillStatusPending, BillStatusPartial, BillStatusOverdue:
		return true
	}
	return false
}

type ApprovalStatus string

const (
	ApprovalStatusNotRequired ApprovalStatus = "NotRequired"
	ApprovalStatusPending     ApprovalStatus = "Pending"
	ApprovalStatusApproved    ApprovalStatus = "Approved"
	ApprovalStatusRejected    ApprovalStatus = "Rejected"
	ApprovalStatusCancelled   ApprovalStatus = "Cancelled"
)

func (s ApprovalStatus) Valid() bool {
	switch s {
	case ApprovalStatusNotRequired, ApprovalStatusPending, ApprovalStatusApproved,
		ApprovalStatusRejected, ApprovalStatusCancelled:
		return true
	}
	return false
}

type ApprovalAction string

const (
	ApprovalActionApprove ApprovalAction = "approve"
	ApprovalActionReject  ApprovalAction = "reject"
)

func ParseApprovalAction(s string) (ApprovalAction, error) {
	switch ApprovalAction(s) {
	case ApprovalActionApprove:
		return ApprovalActionApprove, nil
	case ApprovalActionReject:
		return ApprovalActionReject, nil
	}
	return "", errors.New("invalid approval action")
}

type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "Pending"
	PaymentStatusCompleted  PaymentStatus = "Completed"
	PaymentStatusFailed     PaymentStatus = "Failed"
	PaymentStatusRefunded   PaymentStatus = "Refunded"
	PaymentStatusCancelled  PaymentStatus = "Cancelled"
	PaymentStatusProcessing PaymentStatus = "Processing"
)

type PaymentMethod string

const (
	PaymentMethodCash         PaymentMethod = "Cash"
	PaymentMethodBankTransfer PaymentMethod = "BankTransfer"
	PaymentMethodMobileMoney  PaymentMethod = "MobileMoney"
	PaymentMethodCard         PaymentMethod = "Card"
	PaymentMethodCheque       PaymentMethod = "Cheque"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCash, PaymentMethodBankTransfer, PaymentMethodMobileMoney,
		PaymentMethodCard, PaymentMethodCheque:
		return true
	}
	return false
}

// LedgerReferenceType names the entity a history or outbox row points at.
type LedgerReferenceType string

const (
	ReferenceTypeBill    LedgerReferenceType = "Bill"
	ReferenceTypePayment LedgerReferenceType = "Payment"
)

type NotificationEventKind string

const (
	NotificationBillSubmitted   NotificationEventKind = "BILL_SUBMITTED"
	NotificationBillApproved    NotificationEventKind = "BILL_APPROVED"
	NotificationBillRejected    NotificationEventKind = "BILL_REJECTED"
	NotificationBillVoided      NotificationEventKind = "BILL_VOIDED"
	NotificationPaymentRecorded NotificationEventKind = "PAYMENT_RECORDED"
)

type OutboxPublishStatus string

const (
	OutboxPublishStatusPending   OutboxPublishStatus = "PENDING"
	OutboxPublishStatusPublished OutboxPublishStatus = "PUBLISHED"
	OutboxPublishStatusDead      OutboxPublishStatus = "DEAD"
)
