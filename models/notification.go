package models

import (
	"context"
	"encoding/json"
	"time"

	"bitbucket.org/mmdatafocus/ledger_backend/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// NotificationRecord is the transactional outbox row for outbound
// notifications. The ledger's contract ends at "row committed"; actual
// delivery is performed asynchronously by the notification dispatcher.
type NotificationRecord struct {
	ID            int                   `gorm:"primary_key" json:"id"`
	BusinessId    string                `gorm:"size:64;index;not null" json:"business_id"`
	EventKind     NotificationEventKind `gorm:"size:50;not null" json:"event_kind"`
	ReferenceId   string                `gorm:"size:64;index" json:"reference_id"`
	ReferenceType LedgerReferenceType   `gorm:"size:50" json:"reference_type"`
	Recipients    string                `gorm:"type:text" json:"recipients"`
	Payload       []byte                `gorm:"type:mediumtext" json:"payload"`
	PublishStatus OutboxPublishStatus   `gorm:"size:20;not null;index" json:"publish_status"`
	Attempts      int                   `gorm:"not null;default:0" json:"attempts"`
	LastError     *string               `gorm:"type:text" json:"last_error"`
	ProcessedAt   *time.Time            `json:"processed_at"`
	CorrelationId string                `gorm:"size:64" json:"correlation_id"`
	CreatedAt     time.Time             `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt     time.Time             `gorm:"autoUpdateTime" json:"updated_at"`
}

// QueueNotification writes an outbox row inside the caller's transaction.
// It never publishes directly; a failed delivery therefore cannot roll back
// the ledger mutation that triggered it.
func QueueNotification(ctx context.Context, tx *gorm.DB, businessId string, refId string, refType LedgerReferenceType, kind NotificationEventKind, recipientIds []string, payload interface{}) error {

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	recipientsJSON, err := json.Marshal(recipientIds)
	if err != nil {
		return err
	}

	record := NotificationRecord{
		BusinessId:    businessId,
		EventKind:     kind,
		ReferenceId:   refId,
		ReferenceType: refType,
		Recipients:    string(recipientsJSON),
		Payload:       payloadJSON,
		PublishStatus: OutboxPublishStatusPending,
		CorrelationId: correlationIdFromContextOrNew(ctx),
	}
	return tx.Create(&record).Error
}

func correlationIdFromContextOrNew(ctx context.Context) string {
	if ctx != nil {
		if v, ok := utils.GetCorrelationIdFromContext(ctx); ok && v != "" {
			return v
		}
	}
	return uuid.NewString()
}

// FetchPendingNotifications claims up to limit pending outbox rows using
// FOR UPDATE SKIP LOCKED so concurrent dispatcher instances never double-send.
// Must be called inside an open transaction.
func FetchPendingNotifications(tx *gorm.DB, limit int) ([]*NotificationRecord, error) {
	var records []*NotificationRecord
	err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("publish_status = ?", OutboxPublishStatusPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

func MarkNotificationPublished(tx *gorm.DB, id int, messageId string) error {
	now := time.Now().UTC()
	return tx.Model(&NotificationRecord{}).Where("id = ?", id).Updates(map[string]interface{}{
		"publish_status": OutboxPublishStatusPublished,
		"processed_at":   &now,
		"last_error":     nil,
	}).Error
}

// MarkNotificationFailed bumps the attempt counter. Once maxAttempts is
// reached the row is parked as DEAD and requires manual revert.
func MarkNotificationFailed(tx *gorm.DB, record *NotificationRecord, maxAttempts int, failure error) error {
	attempts := record.Attempts + 1
	status := OutboxPublishStatusPending
	if attempts >= maxAttempts {
		status = OutboxPublishStatusDead
	}
	msg := failure.Error()
	return tx.Model(&NotificationRecord{}).Where("id = ?", record.ID).Updates(map[string]interface{}{
		"publish_status": status,
		"attempts":       attempts,
		"last_error":     &msg,
	}).Error
}

// RevertDeadNotifications requeues DEAD rows for another delivery round.
func RevertDeadNotifications(ctx context.Context, tx *gorm.DB, businessId string) (int64, error) {
	result := tx.WithContext(ctx).Model(&NotificationRecord{}).
		Where("business_id = ? AND publish_status = ?", businessId, OutboxPublishStatusDead).
		Updates(map[string]interface{}{
			"publish_status": OutboxPublishStatusPending,
			"attempts":       0,
			"last_error":     nil,
		})
	return result.RowsAffected, result.Error
}
