package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/ledger_backend/config"
	"bitbucket.org/mmdatafocus/ledger_backend/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type User struct {
	ID         string         `gorm:"primary_key;type:char(36)" json:"id"`
	BusinessId string         `gorm:"size:64;index;not null" json:"business_id"`
	Name       string         `gorm:"size:100;not null" json:"name" binding:"required"`
	Email      string         `gorm:"size:100;uniqueIndex;not null" json:"email" binding:"required"`
	Password   string         `gorm:"size:100;not null" json:"-"`
	Role       string         `gorm:"size:50;not null" json:"role"`
	IsActive   *bool          `gorm:"default:true" json:"is_active"`
	CreatedAt  time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"-"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

type NewUser struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Role     string `json:"role" validate:"required"`
}

func CreateUser(ctx context.Context, input *NewUser) (*User, error) {
	db := config.GetDB()

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, utils.NewForbiddenError("business id is required")
	}

	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	if _, ok := rolePermissions[input.Role]; !ok {
		return nil, utils.NewFieldValidationError("invalid user", map[string]string{"role": "unknown role"})
	}

	hashed, err := utils.HashPassword(input.Password)
	if err != nil {
		return nil, err
	}

	user := User{
		BusinessId: businessId,
		Name:       input.Name,
		Email:      input.Email,
		Password:   string(hashed),
		Role:       input.Role,
		IsActive:   utils.NewTrue(),
	}
	if err := db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

type SignInResult struct {
	Token string `json:"token"`
	User  *User  `json:"user"`
}

func SignIn(ctx context.Context, email string, password string) (*SignInResult, error) {
	db := config.GetDB()

	var user User
	err := db.WithContext(ctx).First(&user, "email = ?", email).Error
	if err != nil {
		return nil, utils.NewForbiddenError("invalid credentials")
	}
	if err := utils.ComparePassword(user.Password, password); err != nil {
		return nil, utils.NewForbiddenError("invalid credentials")
	}
	if !utils.DereferencePtr(user.IsActive) {
		return nil, utils.NewForbiddenError("account disabled")
	}

	token, err := utils.JwtGenerate(user.ID, user.BusinessId, user.Name, user.Role)
	if err != nil {
		return nil, err
	}
	return &SignInResult{Token: token, User: &user}, nil
}

func GetUser(ctx context.Context, id string) (*User, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, utils.NewForbiddenError("business id is required")
	}
	result, err := utils.FetchModel[User](ctx, businessId, id)
	if err != nil {
		return nil, utils.NewNotFoundError("user", id)
	}
	return result, nil
}
