package models

import (
	"testing"

	"bitbucket.org/mmdatafocus/ledger_backend/utils"
	"github.com/shopspring/decimal"
)

func TestValidateBillStatusChange(t *testing.T) {
	cases := []struct {
		from BillStatus
		to   BillStatus
		ok   bool
	}{
		{BillStatusDraft, BillStatusPending, true},
		{BillStatusDraft, BillStatusCancelled, true},
		{BillStatusDraft, BillStatusPaid, false},
		{BillStatusPending, BillStatusPartial, true},
		{BillStatusPending, BillStatusPaid, true},
		{BillStatusPartial, BillStatusPaid, true},
		{BillStatusPartial, BillStatusDraft, false},
		{BillStatusOverdue, BillStatusPaid, true},
		{BillStatusDraft, BillStatusVoid, true},
		{BillStatusPartial, BillStatusVoid, true},
		{BillStatusOverdue, BillStatusVoid, true},
		{BillStatusPaid, BillStatusVoid, false},
		{BillStatusVoid, BillStatusVoid, false},
		{BillStatusVoid, BillStatusPending, false},
		{BillStatusCancelled, BillStatusPending, false},
	}

	for _, tc := range cases {
		err := validateBillStatusChange(tc.from, tc.to)
		if tc.ok && err != nil {
			t.Fatalf("%s -> %s should be allowed, got %v", tc.from, tc.to, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("%s -> %s should be rejected", tc.from, tc.to)
		}
	}
}

func TestValidateBillStatusChange_InvalidTarget(t *testing.T) {
	err := validateBillStatusChange(BillStatusDraft, BillStatus("Bogus"))
	if err == nil {
		t.Fatal("expected error for unknown status")
	}
	if kind := utils.ErrorKind(err); kind != "ValidationError" {
		t.Fatalf("expected ValidationError, got %s", kind)
	}
}

func TestValidateBillPayable_ApprovalGate(t *testing.T) {
	bill := &Bill{
		Status:         BillStatusPending,
		ApprovalStatus: ApprovalStatusPending,
		TotalAmount:    d("100"),
		BalanceAmount:  d("100"),
	}
	balanceBefore := bill.BalanceAmount

	err := validateBillPayable(bill)
	if err == nil {
		t.Fatal("bill awaiting approval must not be payable")
	}
	if kind := utils.ErrorKind(err); kind != "InvalidStateError" {
		t.Fatalf("expected InvalidStateError, got %s", kind)
	}
	if !bill.BalanceAmount.Equal(balanceBefore) {
		t.Fatalf("balance mutated by gate check: %v", bill.BalanceAmount)
	}
}

func TestValidateBillPayable_States(t *testing.T) {
	cases := []struct {
		name     string
		status   BillStatus
		approval ApprovalStatus
		balance  decimal.Decimal
		ok       bool
	}{
		{"approved pending bill", BillStatusPending, ApprovalStatusApproved, d("50"), true},
		{"no approval needed", BillStatusPending, ApprovalStatusNotRequired, d("50"), true},
		{"partial bill", BillStatusPartial, ApprovalStatusNotRequired, d("10"), true},
		{"overdue bill", BillStatusOverdue, ApprovalStatusNotRequired, d("10"), true},
		{"draft bill", BillStatusDraft, ApprovalStatusNotRequired, d("50"), false},
		{"rejected bill", BillStatusPending, ApprovalStatusRejected, d("50"), false},
		{"void bill", BillStatusVoid, ApprovalStatusNotRequired, d("50"), false},
		{"settled bill", BillStatusPaid, ApprovalStatusNotRequired, decimal.Zero, false},
	}

	for _, tc := range cases {
		bill := &Bill{Status: tc.status, ApprovalStatus: tc.approval, BalanceAmount: tc.balance}
		err := validateBillPayable(bill)
		if tc.ok && err != nil {
			t.Fatalf("%s: expected payable, got %v", tc.name, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("%s: expected rejection", tc.name)
		}
	}
}

func TestBusinessRequiresApproval(t *testing.T) {
	disabled := &Business{ApprovalEnabled: utils.NewFalse(), ApprovalThreshold: d("100")}
	if disabled.RequiresApproval(d("1000")) {
		t.Fatal("approval disabled must never gate")
	}

	zeroThreshold := &Business{ApprovalEnabled: utils.NewTrue(), ApprovalThreshold: decimal.Zero}
	if !zeroThreshold.RequiresApproval(d("0.01")) {
		t.Fatal("zero threshold with approval enabled gates every bill")
	}

	threshold := &Business{ApprovalEnabled: utils.NewTrue(), ApprovalThreshold: d("100")}
	if threshold.RequiresApproval(d("99.99")) {
		t.Fatal("below threshold must not gate")
	}
	if !threshold.RequiresApproval(d("100")) {
		t.Fatal("at threshold must gate")
	}
	if !threshold.RequiresApproval(d("250")) {
		t.Fatal("above threshold must gate")
	}
}
