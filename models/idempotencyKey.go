package models

import (
	"time"

	"bitbucket.org/mmdatafocus/ledger_backend/utils"
	"gorm.io/gorm"
)

type IdempotencyStatus string

const (
	IdempotencyStatusStarted   IdempotencyStatus = "STARTED"
	IdempotencyStatusSucceeded IdempotencyStatus = "SUCCEEDED"
	IdempotencyStatusFailed    IdempotencyStatus = "FAILED"
)

// IdempotencyKey provides durable, DB-backed idempotency for retried calls.
// Unique constraint: (business_id, handler_name, message_id).
// ResultRef stores the id of the record the original call produced so a
// replay can return it instead of running the handler again.
type IdempotencyKey struct {
	ID          int               `gorm:"primary_key" json:"id"`
	BusinessId  string            `gorm:"size:64;not null;index:uniq_idem,unique" json:"business_id"`
	HandlerName string            `gorm:"size:100;not null;index:uniq_idem,unique" json:"handler_name"`
	MessageId   string            `gorm:"size:255;not null;index:uniq_idem,unique" json:"message_id"`
	Status      IdempotencyStatus `gorm:"size:20;not null;index" json:"status"`
	ResultRef   *string           `gorm:"size:64" json:"result_ref"`
	LastError   *string           `gorm:"type:text" json:"last_error"`
	CreatedAt   time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

// findIdempotencyKey returns the existing row for (business, handler, key),
// or nil when this is a first attempt.
func findIdempotencyKey(tx *gorm.DB, businessId string, handlerName string, messageId string) (*IdempotencyKey, error) {
	var record IdempotencyKey
	err := tx.Where("business_id = ? AND handler_name = ? AND message_id = ?",
		businessId, handlerName, messageId).First(&record).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// resolveIdempotentReplay decides how a retried call with an existing key
// row proceeds: replay the original result, or conflict while another
// attempt still holds the key. A nil row means this is a first attempt.
func resolveIdempotentReplay(existing *IdempotencyKey) (string, bool, error) {
	if existing == nil {
		return "", false, nil
	}
	if existing.Status == IdempotencyStatusSucceeded && existing.ResultRef != nil {
		return *existing.ResultRef, true, nil
	}
	return "", false, utils.NewConflictError("a call with this idempotency key has not completed")
}

// beginIdempotency inserts the STARTED marker inside the caller's
// transaction. The unique index makes concurrent duplicates fail at commit.
func beginIdempotency(tx *gorm.DB, businessId string, handlerName string, messageId string) (*IdempotencyKey, error) {
	record := IdempotencyKey{
		BusinessId:  businessId,
		HandlerName: handlerName,
		MessageId:   messageId,
		Status:      IdempotencyStatusStarted,
	}
	if err := tx.Create(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

func completeIdempotency(tx *gorm.DB, record *IdempotencyKey, resultRef string) error {
	return tx.Model(&IdempotencyKey{}).Where("id = ?", record.ID).Updates(map[string]interface{}{
		"status":     IdempotencyStatusSucceeded,
		"result_ref": &resultRef,
	}).Error
}
