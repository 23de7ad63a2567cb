package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/ledger_backend/config"
	"bitbucket.org/mmdatafocus/ledger_backend/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Customer struct {
	ID         string         `gorm:"primary_key;type:char(36)" json:"id"`
	BusinessId string         `gorm:"size:64;index;not null" json:"business_id"`
	Name       string         `gorm:"size:100;not null" json:"name" binding:"required"`
	Email      string         `gorm:"size:100" json:"email"`
	Phone      string         `gorm:"size:20" json:"phone"`
	IsActive   *bool          `gorm:"default:true" json:"is_active"`
	CreatedAt  time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"-"`
}

func (c *Customer) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

type NewCustomer struct {
	Name  string `json:"name" validate:"required,max=100"`
	Email string `json:"email" validate:"omitempty,email"`
	Phone string `json:"phone"`
}

func CreateCustomer(ctx context.Context, input *NewCustomer) (*Customer, error) {
	db := config.GetDB()

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, utils.NewForbiddenError("business id is required")
	}

	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	if input.Phone != "" {
		if err := utils.ValidatePhoneNumber(input.Phone, utils.CountryCode); err != nil {
			return nil, utils.NewFieldValidationError("invalid customer", map[string]string{"phone": "phone"})
		}
	}

	customer := Customer{
		BusinessId: businessId,
		Name:       input.Name,
		Email:      input.Email,
		Phone:      input.Phone,
		IsActive:   utils.NewTrue(),
	}
	if err := db.WithContext(ctx).Create(&customer).Error; err != nil {
		return nil, err
	}
	_ = utils.RemoveRedisList[Customer](businessId)
	return &customer, nil
}

func GetCustomer(ctx context.Context, id string) (*Customer, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, utils.NewForbiddenError("business id is required")
	}
	result, err := utils.FetchModel[Customer](ctx, businessId, id)
	if err != nil {
		return nil, utils.NewNotFoundError("customer", id)
	}
	return result, nil
}

func GetCustomers(ctx context.Context) ([]*Customer, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, utils.NewForbiddenError("business id is required")
	}

	// list cache, invalidated on create
	cached, _ := utils.RetrieveRedisList[Customer](businessId)
	if cached != nil {
		return cached, nil
	}

	results, err := utils.FetchAllModels[Customer](ctx, businessId)
	if err != nil {
		return nil, err
	}
	_ = utils.StoreRedisList[Customer](results, businessId)
	return results, nil
}
