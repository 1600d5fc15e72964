package handler

import (
	"context"
	"strconv"
	"time"

	"bankledger/internal/model"
	"bankledger/internal/service"
	"bankledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	accountService   *service.AccountService
	ledgerService    *service.LedgerService
	statementService *service.StatementService
}

func NewHandler(accounts *service.AccountService, ledger *service.LedgerService, statements *service.StatementService) *Handler {
	return &Handler{
		accountService:   accounts,
		ledgerService:    ledger,
		statementService: statements,
	}
}

// ============================================================
// 账户相关接口
// ============================================================

type AccountRequest struct {
	AccountName string `json:"account_name" binding:"required,max=128"`
	AccountType string `json:"account_type" binding:"required"`
}

// OpenAccount 开户
// POST /api/v1/accounts
func (h *Handler) OpenAccount(c *gin.Context) {
	var req AccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	account, err := h.accountService.OpenAccount(c.Request.Context(), customerID(c), req.AccountName, model.AccountType(req.AccountType))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Created(c, toAccountResponse(account))
}

// ListAccounts GET /api/v1/accounts
func (h *Handler) ListAccounts(c *gin.Context) {
	accounts, err := h.accountService.ListAccounts(c.Request.Context(), customerID(c))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, toAccountResponses(accounts))
}

// GetAccount GET /api/v1/accounts/:number
func (h *Handler) GetAccount(c *gin.Context) {
	account, err := h.accountService.GetAccount(c.Request.Context(), customerID(c), c.Param("number"))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, toAccountResponse(account))
}

// UpdateAccount PUT /api/v1/accounts/:number
func (h *Handler) UpdateAccount(c *gin.Context) {
	var req AccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	account, err := h.accountService.UpdateAccount(c.Request.Context(), customerID(c), c.Param("number"), req.AccountName, model.AccountType(req.AccountType))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, toAccountResponse(account))
}

// CloseAccount POST /api/v1/accounts/:number/close
func (h *Handler) CloseAccount(c *gin.Context) {
	account, err := h.accountService.CloseAccount(c.Request.Context(), customerID(c), c.Param("number"))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, toAccountResponse(account))
}

// Dashboard GET /api/v1/dashboard
func (h *Handler) Dashboard(c *gin.Context) {
	dash, err := h.accountService.Dashboard(c.Request.Context(), customerID(c))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, toDashboardResponse(dash))
}

// ============================================================
// 账务接口
// ============================================================

// MovementRequest 存款 / 取款请求，金额用字符串避免浮点误差
type MovementRequest struct {
	AccountNumber string `json:"account_number" binding:"required"`
	Amount        string `json:"amount" binding:"required"`
	Description   string `json:"description" binding:"max=500"`
}

type TransferRequest struct {
	FromAccountNumber string `json:"from_account_number" binding:"required"`
	ToAccountNumber   string `json:"to_account_number" binding:"required"`
	Amount            string `json:"amount" binding:"required"`
	Description       string `json:"description" binding:"max=500"`
}

// Deposit POST /api/v1/transactions/deposit
func (h *Handler) Deposit(c *gin.Context) {
	h.movement(c, h.ledgerService.Deposit)
}

// Withdraw POST /api/v1/transactions/withdraw
func (h *Handler) Withdraw(c *gin.Context) {
	h.movement(c, h.ledgerService.Withdraw)
}

type movementFunc func(ctx context.Context, caller int64, accountNumber string, amount decimal.Decimal, description string) (*model.Transaction, error)

func (h *Handler) movement(c *gin.Context, apply movementFunc) {
	var req MovementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	amount, err := model.ParseAmount(req.Amount)
	if err != nil {
		response.FromError(c, err)
		return
	}

	trans, err := apply(c.Request.Context(), customerID(c), req.AccountNumber, amount, req.Description)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Created(c, toTransactionResponse(trans))
}

// Transfer POST /api/v1/transactions/transfer
func (h *Handler) Transfer(c *gin.Context) {
	var req TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	amount, err := model.ParseAmount(req.Amount)
	if err != nil {
		response.FromError(c, err)
		return
	}

	debit, err := h.ledgerService.Transfer(c.Request.Context(), customerID(c), req.FromAccountNumber, req.ToAccountNumber, amount, req.Description)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Created(c, toTransactionResponse(debit))
}

// Statement GET /api/v1/transactions/statement?account_number=&page=&size=
func (h *Handler) Statement(c *gin.Context) {
	page, size, ok := pageParams(c)
	if !ok {
		return
	}

	result, err := h.statementService.GetStatement(c.Request.Context(), customerID(c), c.Query("account_number"), page, size)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, toPageResponse(result))
}

// History GET /api/v1/transactions/history?account_number=&start=&end=&page=&size=
//
// start/end accept RFC3339 or a plain date; a plain end date covers the whole day.
func (h *Handler) History(c *gin.Context) {
	page, size, ok := pageParams(c)
	if !ok {
		return
	}
	start, err := parseTime(c.Query("start"), false)
	if err != nil {
		response.ParamError(c, "start 参数错误")
		return
	}
	end, err := parseTime(c.Query("end"), true)
	if err != nil {
		response.ParamError(c, "end 参数错误")
		return
	}

	result, err := h.statementService.GetHistory(c.Request.Context(), customerID(c), c.Query("account_number"), start, end, page, size)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, toPageResponse(result))
}

func pageParams(c *gin.Context) (page, size int, ok bool) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "0"))
	if err != nil {
		response.ParamError(c, "page 参数错误")
		return 0, 0, false
	}
	size, err = strconv.Atoi(c.DefaultQuery("size", "0"))
	if err != nil {
		response.ParamError(c, "size 参数错误")
		return 0, 0, false
	}
	return page, size, true
}

const dateLayout = "2006-01-02"

func parseTime(value string, endOfDay bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}
