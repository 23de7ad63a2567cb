package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/ledger_backend/config"
	"bitbucket.org/mmdatafocus/ledger_backend/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Business struct {
	ID                string          `gorm:"primary_key;type:char(36)" json:"id"`
	Name              string          `gorm:"size:100;not null" json:"name" binding:"required"`
	OwnerUserId       string          `gorm:"size:64;not null" json:"owner_user_id"`
	Email             string          `gorm:"size:100" json:"email"`
	Phone             string          `gorm:"size:20" json:"phone"`
	Timezone          string          `gorm:"size:50" json:"timezone"`
	BillPrefix        string          `gorm:"size:10" json:"bill_prefix"`
	PaymentPrefix     string          `gorm:"size:10" json:"payment_prefix"`
	ApprovalEnabled   *bool           `gorm:"default:false" json:"approval_enabled"`
	ApprovalThreshold decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"approval_threshold"`
	IsActive          *bool           `gorm:"default:true" json:"is_active"`
	CreatedAt         time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt         gorm.DeletedAt  `gorm:"index" json:"-"`
}

func (b *Business) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	return nil
}

// RequiresApproval reports whether a bill of the given total must pass the
// approval workflow. A zero threshold with approval enabled gates every bill.
func (b *Business) RequiresApproval(totalAmount decimal.Decimal) bool {
	if !utils.DereferencePtr(b.ApprovalEnabled) {
		return false
	}
	if b.ApprovalThreshold.IsZero() {
		return true
	}
	return totalAmount.GreaterThanOrEqual(b.ApprovalThreshold)
}

type NewBusiness struct {
	Name              string  `json:"name" validate:"required,max=100"`
	Email             string  `json:"email" validate:"omitempty,email"`
	Phone             string  `json:"phone"`
	Timezone          string  `json:"timezone"`
	BillPrefix        string  `json:"billPrefix"`
	PaymentPrefix     string  `json:"paymentPrefix"`
	ApprovalEnabled   *bool   `json:"approvalEnabled"`
	ApprovalThreshold *string `json:"approvalThreshold"`
}

func CreateBusiness(ctx context.Context, input *NewBusiness) (*Business, error) {
	db := config.GetDB()

	userId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || userId == "" {
		return nil, utils.NewForbiddenError("user id is required")
	}

	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	if input.Phone != "" {
		if err := utils.ValidatePhoneNumber(input.Phone, utils.CountryCode); err != nil {
			return nil, utils.NewFieldValidationError("invalid business", map[string]string{"phone": "phone"})
		}
	}

	threshold := decimal.Zero
	if input.ApprovalThreshold != nil {
		var err error
		threshold, err = utils.ParseDecimal(*input.ApprovalThreshold)
		if err != nil || threshold.IsNegative() {
			return nil, utils.NewFieldValidationError("invalid business", map[string]string{"approvalThreshold": "decimal"})
		}
	}

	business := Business{
		Name:              input.Name,
		OwnerUserId:       userId,
		Email:             input.Email,
		Phone:             input.Phone,
		Timezone:          input.Timezone,
		BillPrefix:        input.BillPrefix,
		PaymentPrefix:     input.PaymentPrefix,
		ApprovalEnabled:   input.ApprovalEnabled,
		ApprovalThreshold: utils.RoundMoney(threshold),
		IsActive:          utils.NewTrue(),
	}
	if business.BillPrefix == "" {
		business.BillPrefix = "BILL"
	}
	if business.PaymentPrefix == "" {
		business.PaymentPrefix = "PAY"
	}

	if err := db.WithContext(ctx).Create(&business).Error; err != nil {
		return nil, err
	}
	return &business, nil
}

// GetBusiness reads through a redis cache keyed Business:$id.
func GetBusiness(ctx context.Context, id string) (*Business, error) {
	cached, _ := utils.RetrieveRedis[Business](id)
	if cached != nil {
		return cached, nil
	}

	// businesses is the tenant root table, so the fetch is unscoped.
	business, err := utils.FetchSingleModel[Business](ctx, id)
	if err != nil {
		return nil, utils.NewNotFoundError("business", id)
	}
	_ = utils.StoreRedis[Business](business, id)
	return business, nil
}

type UpdateBusinessApproval struct {
	ApprovalEnabled   *bool   `json:"approvalEnabled"`
	ApprovalThreshold *string `json:"approvalThreshold"`
}

// UpdateBusinessApprovalPolicy changes the approval gate configuration.
// Only the business owner may change it.
func UpdateBusinessApprovalPolicy(ctx context.Context, businessId string, input *UpdateBusinessApproval) (*Business, error) {
	db := config.GetDB()

	userId, _ := utils.GetUserIdFromContext(ctx)
	business, err := GetBusiness(ctx, businessId)
	if err != nil {
		return nil, err
	}
	if business.OwnerUserId != userId {
		return nil, utils.NewForbiddenError("only the business owner can change approval policy")
	}

	updates := map[string]interface{}{}
	if input.ApprovalEnabled != nil {
		updates["approval_enabled"] = *input.ApprovalEnabled
	}
	if input.ApprovalThreshold != nil {
		threshold, err := utils.ParseDecimal(*input.ApprovalThreshold)
		if err != nil || threshold.IsNegative() {
			return nil, utils.NewFieldValidationError("invalid approval policy", map[string]string{"approvalThreshold": "decimal"})
		}
		updates["approval_threshold"] = utils.RoundMoney(threshold)
	}
	if len(updates) == 0 {
		return business, nil
	}

	if err := db.WithContext(ctx).Model(&Business{}).Where("id = ?", businessId).Updates(updates).Error; err != nil {
		return nil, err
	}
	_ = utils.RemoveRedisItem[Business](businessId)
	return GetBusiness(ctx, businessId)
}
