package models

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/ledger_backend/config"
	"bitbucket.org/mmdatafocus/ledger_backend/utils"
	"gorm.io/gorm"
)

// History is the append-only audit trail for bill and payment mutations.
// Rows are never updated or deleted.
type History struct {
	ID            int                 `gorm:"primary_key" json:"id"`
	BusinessId    string              `gorm:"size:64;index;not null" json:"business_id"`
	ActionType    string              `gorm:"size:20;not null" json:"action_type"`
	Before        string              `gorm:"type:text" json:"before"`
	After         string              `gorm:"type:text" json:"after"`
	Description   string              `gorm:"type:text;not null" json:"description"`
	ReferenceId   string              `gorm:"size:64;index" json:"reference_id"`
	ReferenceType LedgerReferenceType `gorm:"size:50" json:"reference_type"`
	UserId        string              `gorm:"size:64;index;not null" json:"user_id"`
	UserName      string              `gorm:"size:100" json:"user_name"`
	CreatedAt     time.Time           `gorm:"autoCreateTime" json:"created_at"`
}

// createHistory writes one audit row inside the caller's transaction.
// businessId, userId, userName come from the transaction's context so the
// row always reflects the acting user of the surrounding mutation.
func createHistory(tx *gorm.DB,
	actionType string,
	referenceId string,
	referenceType LedgerReferenceType,
	before interface{},
	after interface{},
	description string) (err error) {

	var history History

	b, _ := json.Marshal(before)
	a, _ := json.Marshal(after)

	ctx := tx.Statement.Context
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return errors.New("business id is required")
	}
	userId, ok := utils.GetUserIdFromContext(ctx)
	if !ok {
		return errors.New("user id is required")
	}
	userName, _ := utils.GetUserNameFromContext(ctx)

	history.BusinessId = businessId
	history.ActionType = actionType
	history.Before = string(b)
	history.After = string(a)
	history.Description = description
	history.ReferenceId = referenceId
	history.ReferenceType = referenceType
	history.UserId = userId
	history.UserName = userName

	err = tx.Create(&history).Error
	return err
}

func SaveHistoryCreate(tx *gorm.DB, id string, referenceType LedgerReferenceType, obj interface{}, description string) error {
	return createHistory(tx, "CREATE", id, referenceType, nil, obj, description)
}

func SaveHistoryUpdate(tx *gorm.DB, id string, referenceType LedgerReferenceType, before interface{}, after interface{}, description string) error {
	return createHistory(tx, "UPDATE", id, referenceType, before, after, description)
}

func SaveHistoryVoid(tx *gorm.DB, id string, referenceType LedgerReferenceType, before interface{}, after interface{}, description string) error {
	return createHistory(tx, "VOID", id, referenceType, before, after, description)
}

// SaveHistoryAllocation records the bill snapshots around an allocation so
// the row carries the status and balance pair the allocation caused. The
// allocation detail itself rides in the description.
func SaveHistoryAllocation(tx *gorm.DB, id string, referenceType LedgerReferenceType, before interface{}, after interface{}, description string) error {
	return createHistory(tx, "ALLOCATE", id, referenceType, before, after, description)
}

func GetHistories(ctx context.Context, referenceId *string, referenceType *string, userId *string) ([]*History, error) {

	db := config.GetDB()
	var results []*History

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	dbCtx := db.WithContext(ctx).Where("business_id = ?", businessId)
	if referenceId != nil && *referenceId != "" {
		dbCtx = dbCtx.Where("reference_id = ?", referenceId)
	}
	if referenceType != nil && len(*referenceType) > 0 {
		dbCtx = dbCtx.Where("reference_type = ?", referenceType)
	}
	if userId != nil && *userId != "" {
		dbCtx = dbCtx.Where("user_id = ?", userId)
	}
	err := dbCtx.Order("created_at DESC").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
