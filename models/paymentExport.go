package models

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/ledger_backend/config"
	"bitbucket.org/mmdatafocus/ledger_backend/utils"
	"github.com/xuri/excelize/v2"
)

type allocationExportRow struct {
	PaymentNumber     string
	BillNumber        string
	CustomerName      string
	AllocatedAmount   string
	BillBalanceBefore string
	BillBalanceAfter  string
	AllocationOrder   int
	CreatedAt         time.Time
}

// ExportAllocationsExcel builds an xlsx workbook of the business's payment
// allocations in the given date range. Used by back-office reconciliation.
func ExportAllocationsExcel(ctx context.Context, fromDate time.Time, toDate time.Time) (*bytes.Buffer, error) {
	db := config.GetDB()

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, utils.NewForbiddenError("business id is required")
	}
	if err := checkPermission(ctx, businessId, ResourcePayment, ActionRead); err != nil {
		return nil, err
	}

	var rows []allocationExportRow
	err := db.WithContext(ctx).
		Table("payment_allocations AS pa").
		Select(`p.payment_number AS payment_number,
			b.bill_number AS bill_number,
			COALESCE(c.name, '') AS customer_name,
			pa.allocated_amount AS allocated_amount,
			pa.bill_balance_before AS bill_balance_before,
			pa.bill_balance_after AS bill_balance_after,
			pa.allocation_order AS allocation_order,
			pa.created_at AS created_at`).
		Joins("JOIN payments p ON p.id = pa.payment_id").
		Joins("JOIN bills b ON b.id = pa.bill_id").
		Joins("LEFT JOIN customers c ON c.id = b.customer_id").
		Where("pa.business_id = ? AND pa.created_at >= ? AND pa.created_at <= ?", businessId, fromDate, toDate).
		Order("pa.created_at ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer f.Close()

	sheet := "Allocations"
	f.SetSheetName("Sheet1", sheet)

	headers := []string{"Payment No", "Bill No", "Customer", "Allocated", "Balance Before", "Balance After", "Order", "Date"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return nil, err
		}
	}

	for i, row := range rows {
		values := []interface{}{
			row.PaymentNumber,
			row.BillNumber,
			row.CustomerName,
			row.AllocatedAmount,
			row.BillBalanceBefore,
			row.BillBalanceAfter,
			row.AllocationOrder,
			row.CreatedAt.Format("2006-01-02 15:04:05"),
		}
		for j, v := range values {
			cell, _ := excelize.CoordinatesToCellName(j+1, i+2)
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return nil, err
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write allocation export: %w", err)
	}
	return buf, nil
}
