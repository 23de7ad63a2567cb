package config

import (
	"os"
	"strings"
)

// StrictSettledBillImmutability enables fintech-grade guardrails:
// bills with recorded payments cannot be edited; they must be voided and recreated.
//
// Set via env:
// - STRICT_SETTLED_BILL_IMMUTABLE=true
func StrictSettledBillImmutability() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("STRICT_SETTLED_BILL_IMMUTABLE")))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}

// NotificationEventEnabled gates outbound notification kinds during rollout.
// When NOTIFICATION_EVENTS is unset, every kind is enabled.
//
// Set via env:
// - NOTIFICATION_EVENTS="BILL_SUBMITTED,BILL_APPROVED,BILL_REJECTED,PAYMENT_RECORDED"
//
// Kind keys are case-insensitive.
func NotificationEventEnabled(kind string) bool {
	kind = strings.ToUpper(strings.TrimSpace(kind))
	if kind == "" {
		return false
	}
	raw := os.Getenv("NOTIFICATION_EVENTS")
	if strings.TrimSpace(raw) == "" {
		return true
	}
	for _, part := range strings.Split(raw, ",") {
		if strings.ToUpper(strings.TrimSpace(part)) == kind {
			return true
		}
	}
	return false
}
