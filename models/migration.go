package models

import "bitbucket.org/mmdatafocus/ledger_backend/config"

// Migrate runs gorm auto-migration for every ledger table.
func Migrate() error {
	db := config.GetDB()
	return db.AutoMigrate(
		&Business{},
		&User{},
		&Customer{},
		&Bill{},
		&BillItem{},
		&BillApprovalHistory{},
		&Payment{},
		&PaymentAllocation{},
		&History{},
		&NotificationRecord{},
		&IdempotencyKey{},
	)
}
