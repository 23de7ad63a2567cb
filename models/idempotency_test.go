package models

import (
	"testing"

	"bitbucket.org/mmdatafocus/ledger_backend/utils"
)

func TestResolveIdempotentReplay_FirstAttempt(t *testing.T) {
	ref, replay, err := resolveIdempotentReplay(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if replay || ref != "" {
		t.Fatalf("first attempt must proceed, got replay=%v ref=%q", replay, ref)
	}
}

func TestResolveIdempotentReplay_ReturnsOriginalResult(t *testing.T) {
	billId := "bill-1"
	ref, replay, err := resolveIdempotentReplay(&IdempotencyKey{
		Status:    IdempotencyStatusSucceeded,
		ResultRef: &billId,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !replay || ref != "bill-1" {
		t.Fatalf("retry of a committed call must replay its result, got replay=%v ref=%q", replay, ref)
	}
}

func TestResolveIdempotentReplay_InFlightConflicts(t *testing.T) {
	_, replay, err := resolveIdempotentReplay(&IdempotencyKey{Status: IdempotencyStatusStarted})
	if replay {
		t.Fatal("an in-flight key must not replay")
	}
	if kind := utils.ErrorKind(err); kind != "ConflictError" {
		t.Fatalf("expected ConflictError, got %s", kind)
	}
}

func TestResolveIdempotentReplay_SucceededWithoutRef(t *testing.T) {
	_, replay, err := resolveIdempotentReplay(&IdempotencyKey{Status: IdempotencyStatusSucceeded})
	if replay {
		t.Fatal("a succeeded key with no result must not replay")
	}
	if kind := utils.ErrorKind(err); kind != "ConflictError" {
		t.Fatalf("expected ConflictError, got %s", kind)
	}
}
