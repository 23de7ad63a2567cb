package main

import (
	"errors"
	"net/http"
	"time"

	"bitbucket.org/mmdatafocus/ledger_backend/config"
	"bitbucket.org/mmdatafocus/ledger_backend/models"
	"bitbucket.org/mmdatafocus/ledger_backend/utils"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// respondError maps the error taxonomy onto HTTP statuses. Internal errors
// are logged with detail but surfaced as an opaque 500.
func respondError(c *gin.Context, err error) {
	kind := utils.ErrorKind(err)
	status := http.StatusInternalServerError
	switch kind {
	case "ValidationError":
		status = http.StatusBadRequest
	case "InvalidStateError":
		status = http.StatusUnprocessableEntity
	case "ForbiddenError":
		status = http.StatusForbidden
	case "ConflictError":
		status = http.StatusConflict
	case "NotFoundError":
		status = http.StatusNotFound
	}

	body := gin.H{"kind": kind, "message": err.Error()}
	if kind == "Internal" {
		config.LogError(config.GetLogger(), "server", c.FullPath(), "internal error", nil, err)
		body["message"] = "internal error"
	}
	var ve *utils.ValidationError
	if errors.As(err, &ve) && len(ve.Fields) > 0 {
		body["fields"] = ve.Fields
	}
	c.JSON(status, body)
}

func signInHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Email    string `json:"email" binding:"required"`
			Password string `json:"password" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, utils.NewValidationError("email and password are required"))
			return
		}
		result, err := models.SignIn(c.Request.Context(), req.Email, req.Password)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func createBusinessHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewBusiness
		if err := c.ShouldBindJSON(&input); err != nil {
			respondError(c, utils.NewValidationError("malformed business payload"))
			return
		}
		business, err := models.CreateBusiness(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, business)
	}
}

func updateApprovalPolicyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.UpdateBusinessApproval
		if err := c.ShouldBindJSON(&input); err != nil {
			respondError(c, utils.NewValidationError("malformed approval policy payload"))
			return
		}
		business, err := models.UpdateBusinessApprovalPolicy(c.Request.Context(), c.Param("id"), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, business)
	}
}

func createCustomerHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewCustomer
		if err := c.ShouldBindJSON(&input); err != nil {
			respondError(c, utils.NewValidationError("malformed customer payload"))
			return
		}
		customer, err := models.CreateCustomer(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, customer)
	}
}

func listCustomersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		customers, err := models.GetCustomers(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, customers)
	}
}

func createUserHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewUser
		if err := c.ShouldBindJSON(&input); err != nil {
			respondError(c, utils.NewValidationError("malformed user payload"))
			return
		}
		user, err := models.CreateUser(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, user)
	}
}

func createBillHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewBill
		if err := c.ShouldBindJSON(&input); err != nil {
			respondError(c, utils.NewValidationError("malformed bill payload"))
			return
		}
		bill, err := models.CreateBill(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, bill)
	}
}

func getBillHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		bill, err := models.GetBill(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, bill)
	}
}

func listBillsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var filter models.BillFilter
		if v := c.Query("customerId"); v != "" {
			filter.CustomerId = &v
		}
		if v := c.Query("status"); v != "" {
			status := models.BillStatus(v)
			if !status.Valid() {
				respondError(c, utils.NewValidationError("invalid bill status filter"))
				return
			}
			filter.Status = &status
		}
		bills, err := models.GetBills(c.Request.Context(), &filter)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, bills)
	}
}

func updateBillHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.UpdateBillInput
		if err := c.ShouldBindJSON(&input); err != nil {
			respondError(c, utils.NewValidationError("malformed bill payload"))
			return
		}
		bill, err := models.UpdateBill(c.Request.Context(), c.Param("id"), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, bill)
	}
}

func voidBillHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Reason string `json:"reason" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, utils.NewValidationError("void reason is required"))
			return
		}
		bill, err := models.VoidBill(c.Request.Context(), c.Param("id"), req.Reason)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, bill)
	}
}

func submitBillHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		bill, err := models.SubmitBillForApproval(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, bill)
	}
}

func processApprovalHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Action string `json:"action" binding:"required"`
			Notes  string `json:"notes"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, utils.NewValidationError("approval action is required"))
			return
		}
		action, err := models.ParseApprovalAction(req.Action)
		if err != nil {
			respondError(c, utils.NewFieldValidationError("invalid approval", map[string]string{"action": "approve or reject"}))
			return
		}
		bill, err := models.ProcessBillApproval(c.Request.Context(), c.Param("id"), action, req.Notes)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, bill)
	}
}

func bulkApproveHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			BillIds []string `json:"billIds" binding:"required"`
			Action  string   `json:"action" binding:"required"`
			Notes   string   `json:"notes"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, utils.NewValidationError("billIds and action are required"))
			return
		}
		action, err := models.ParseApprovalAction(req.Action)
		if err != nil {
			respondError(c, utils.NewFieldValidationError("invalid approval", map[string]string{"action": "approve or reject"}))
			return
		}
		results := models.BulkApproveBills(c.Request.Context(), req.BillIds, action, req.Notes)
		c.JSON(http.StatusOK, gin.H{"results": results})
	}
}

func approvalHistoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		rows, err := models.GetBillApprovalHistory(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, rows)
	}
}

func billAllocationsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		rows, err := models.GetAllocationsForBill(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, rows)
	}
}

type paymentRequest struct {
	Amount string `json:"amount" binding:"required"`
	Method string `json:"method" binding:"required"`
}

func (r *paymentRequest) parse() (decimal.Decimal, models.PaymentMethod, error) {
	amount, err := utils.ParseDecimal(r.Amount)
	if err != nil {
		return decimal.Zero, "", utils.NewFieldValidationError("invalid payment", map[string]string{"amount": "decimal"})
	}
	return amount, models.PaymentMethod(r.Method), nil
}

func singlePaymentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req paymentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, utils.NewValidationError("amount and method are required"))
			return
		}
		amount, method, err := req.parse()
		if err != nil {
			respondError(c, err)
			return
		}
		result, err := models.AllocateSinglePayment(c.Request.Context(), c.Param("id"), amount, method)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, result)
	}
}

func bulkPaymentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req paymentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, utils.NewValidationError("amount and method are required"))
			return
		}
		amount, method, err := req.parse()
		if err != nil {
			respondError(c, err)
			return
		}
		result, err := models.AllocateBulkPayment(c.Request.Context(), c.Param("id"), amount, method)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, result)
	}
}

func getPaymentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		payment, err := models.GetPayment(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, payment)
	}
}

func listHistoriesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var referenceId, referenceType, userId *string
		if v := c.Query("referenceId"); v != "" {
			referenceId = &v
		}
		if v := c.Query("referenceType"); v != "" {
			referenceType = &v
		}
		if v := c.Query("userId"); v != "" {
			userId = &v
		}
		rows, err := models.GetHistories(c.Request.Context(), referenceId, referenceType, userId)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, rows)
	}
}

func markOverdueHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		count, err := models.MarkOverdueBills(c.Request.Context(), time.Now().UTC())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"marked": count})
	}
}

func exportAllocationsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		from, err := time.Parse("2006-01-02", c.Query("from"))
		if err != nil {
			respondError(c, utils.NewFieldValidationError("invalid export range", map[string]string{"from": "date (2006-01-02)"}))
			return
		}
		to, err := time.Parse("2006-01-02", c.Query("to"))
		if err != nil {
			respondError(c, utils.NewFieldValidationError("invalid export range", map[string]string{"to": "date (2006-01-02)"}))
			return
		}
		to = to.Add(time.Hour*23 + time.Minute*59 + time.Second*59)

		buf, err := models.ExportAllocationsExcel(c.Request.Context(), from, to)
		if err != nil {
			respondError(c, err)
			return
		}
		c.Header("Content-Disposition", `attachment; filename="allocations.xlsx"`)
		c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
	}
}

// Ops tooling (admin only): requeue notification outbox rows marked DEAD.
func notificationReplayHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if isAdmin, _ := utils.GetIsAdminFromContext(ctx); !isAdmin {
			respondError(c, utils.NewForbiddenError("admin only"))
			return
		}
		var req struct {
			BusinessId string `json:"businessId" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, utils.NewValidationError("businessId is required"))
			return
		}
		count, err := models.RevertDeadNotifications(ctx, config.GetDB(), req.BusinessId)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"requeued": count})
	}
}
