package workflow

import (
	"context"
	"encoding/json"
	"time"

	"bitbucket.org/mmdatafocus/ledger_backend/config"
	"bitbucket.org/mmdatafocus/ledger_backend/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// NotificationDispatcher drains the notification outbox and publishes each
// row to Pub/Sub. Rows are claimed with SKIP LOCKED so multiple dispatcher
// instances can run concurrently without double-sending; delivery outcomes
// are written back while the claim lock is still held.
type NotificationDispatcher struct {
	DB           *gorm.DB
	Logger       *logrus.Logger
	DispatcherID string

	BatchSize    int
	PollInterval time.Duration
	MaxAttempts  int
}

func NewNotificationDispatcher(db *gorm.DB, logger *logrus.Logger) *NotificationDispatcher {
	return &NotificationDispatcher{
		DB:           db,
		Logger:       logger,
		DispatcherID: uuid.NewString(),
		BatchSize:    50,
		PollInterval: 500 * time.Millisecond,
		MaxAttempts:  20,
	}
}

func (d *NotificationDispatcher) Run(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		d.dispatchOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(d.PollInterval):
		}
	}
}

func (d *NotificationDispatcher) dispatchOnce(ctx context.Context) {
	db := d.DB
	if db == nil {
		return
	}

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		claimed, err := models.FetchPendingNotifications(tx, d.BatchSize)
		if err != nil {
			return err
		}
		for _, rec := range claimed {
			// Kinds switched off during rollout are suppressed, not retried.
			if !config.NotificationEventEnabled(string(rec.EventKind)) {
				if err := models.MarkNotificationPublished(tx, rec.ID, "suppressed"); err != nil {
					return err
				}
				continue
			}

			msg := convertToPubSubMessage(rec)
			pubID, pubErr := config.PublishNotificationWithResult(ctx, rec.BusinessId, msg)
			if pubErr != nil {
				if err := models.MarkNotificationFailed(tx, rec, d.MaxAttempts, pubErr); err != nil {
					return err
				}
				d.logPublishFailed(rec, pubErr)
				continue
			}
			if err := models.MarkNotificationPublished(tx, rec.ID, pubID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil && d.Logger != nil {
		d.Logger.WithFields(logrus.Fields{
			"field":         "NotificationDispatcher",
			"dispatcher_id": d.DispatcherID,
		}).Error("notification dispatch batch failed: " + err.Error())
	}
}

func (d *NotificationDispatcher) logPublishFailed(rec *models.NotificationRecord, err error) {
	if d.Logger == nil {
		return
	}
	d.Logger.WithFields(logrus.Fields{
		"field":       "NotificationDispatcher",
		"business_id": rec.BusinessId,
		"record_id":   rec.ID,
		"event_kind":  rec.EventKind,
		"attempt":     rec.Attempts + 1,
	}).Error("notification publish failed: " + err.Error())
}

func convertToPubSubMessage(rec *models.NotificationRecord) config.PubSubMessage {
	var recipients []string
	_ = json.Unmarshal([]byte(rec.Recipients), &recipients)
	return config.PubSubMessage{
		ID:            rec.ID,
		BusinessId:    rec.BusinessId,
		EventDateTime: rec.CreatedAt,
		ReferenceId:   rec.ReferenceId,
		ReferenceType: string(rec.ReferenceType),
		EventKind:     string(rec.EventKind),
		RecipientIds:  recipients,
		Payload:       rec.Payload,
		CorrelationId: rec.CorrelationId,
	}
}
