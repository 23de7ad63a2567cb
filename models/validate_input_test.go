package models

import (
	"errors"
	"strings"
	"testing"

	"bitbucket.org/mmdatafocus/ledger_backend/utils"
)

func TestValidateNewBill_OverlongItemName(t *testing.T) {
	input := &NewBill{
		Items: []BillItemInput{
			{Name: strings.Repeat("x", 300), Quantity: d("1"), UnitPrice: d("10")},
		},
	}
	err := utils.ValidateStruct(input)
	if err == nil {
		t.Fatal("item name beyond the column limit must be rejected before persistence")
	}
	if kind := utils.ErrorKind(err); kind != "ValidationError" {
		t.Fatalf("expected ValidationError, got %s", kind)
	}
	var ve *utils.ValidationError
	if !errors.As(err, &ve) || ve.Fields["Name"] != "max" {
		t.Fatalf("expected field detail for Name max, got %+v", ve)
	}
}

func TestValidateNewBill_EmptyItems(t *testing.T) {
	if err := utils.ValidateStruct(&NewBill{}); err == nil {
		t.Fatal("bill without items must be rejected")
	}
	input := &NewBill{Items: []BillItemInput{{Name: "a", Quantity: d("1"), UnitPrice: d("2")}}}
	if err := utils.ValidateStruct(input); err != nil {
		t.Fatalf("valid bill rejected: %v", err)
	}
}

func TestValidateNewCustomer(t *testing.T) {
	if err := utils.ValidateStruct(&NewCustomer{Name: "Acme", Email: "not-an-email"}); err == nil {
		t.Fatal("malformed email must be rejected")
	}
	if err := utils.ValidateStruct(&NewCustomer{Email: "a@b.co"}); err == nil {
		t.Fatal("missing name must be rejected")
	}
	if err := utils.ValidateStruct(&NewCustomer{Name: "Acme", Email: "a@b.co"}); err != nil {
		t.Fatalf("valid customer rejected: %v", err)
	}
}

func TestValidateNewUser(t *testing.T) {
	err := utils.ValidateStruct(&NewUser{Name: "A", Email: "a@b.co", Password: "short", Role: "staff"})
	if err == nil {
		t.Fatal("short password must be rejected")
	}
	var ve *utils.ValidationError
	if !errors.As(err, &ve) || ve.Fields["Password"] != "min" {
		t.Fatalf("expected field detail for Password min, got %+v", ve)
	}
	if err := utils.ValidateStruct(&NewUser{Name: "A", Email: "a@b.co", Password: "longenough", Role: "staff"}); err != nil {
		t.Fatalf("valid user rejected: %v", err)
	}
}

func TestValidateNewBusiness(t *testing.T) {
	if err := utils.ValidateStruct(&NewBusiness{}); err == nil {
		t.Fatal("missing name must be rejected")
	}
	if err := utils.ValidateStruct(&NewBusiness{Name: "Acme", Email: "bad"}); err == nil {
		t.Fatal("malformed email must be rejected")
	}
	if err := utils.ValidateStruct(&NewBusiness{Name: "Acme"}); err != nil {
		t.Fatalf("valid business rejected: %v", err)
	}
}
