package handler

import (
	"errors"
	"log/slog"
	"strconv"

	"kidbank/internal/service"
	"kidbank/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	ledger   *service.LedgerService
	policy   *service.PolicyService
	accounts *service.AccountService
	goals    *service.GoalService
}

func NewHandler(ledger *service.LedgerService, policy *service.PolicyService, accounts *service.AccountService, goals *service.GoalService) *Handler {
	return &Handler{
		ledger:   ledger,
		policy:   policy,
		accounts: accounts,
		goals:    goals,
	}
}

var errorCodes = []struct {
	err  error
	code int
}{
	{service.ErrInsufficientFunds, response.CodeInsufficientFunds},
	{service.ErrCardFrozen, response.CodeCardFrozen},
	{service.ErrWithdrawalLimitExceeded, response.CodeWithdrawalLimitExceeded},
	{service.ErrRecipientNotFound, response.CodeRecipientNotFound},
	{service.ErrAccountNotFound, response.CodeAccountNotFound},
	{service.ErrSelfTransferRejected, response.CodeSelfTransferRejected},
	{service.ErrGoalNotFound, response.CodeGoalNotFound},
	{service.ErrAccountExists, response.CodeAccountExists},
	{service.ErrInvalidRole, response.CodeInvalidRole},
	{service.ErrNotDependent, response.CodeNotDependent},
	{service.ErrTransientStoreConflict, response.CodeConflictRetry},
	{service.ErrStoreUnavailable, response.CodeStoreUnavailable},
	{service.ErrTransactionNotFound, response.CodeTransactionNotFound},
}

var paramErrors = []error{
	service.ErrInvalidAmount,
	service.ErrInvalidField,
	service.ErrSameField,
	service.ErrInvalidArgument,
}

// writeError 把 service 层错误映射为业务码
func writeError(c *gin.Context, err error) {
	for _, target := range paramErrors {
		if errors.Is(err, target) {
			response.ParamError(c, target.Error())
			return
		}
	}
	for _, e := range errorCodes {
		if errors.Is(err, e.err) {
			response.BusinessError(c, e.code, e.err.Error())
			return
		}
	}
	slog.ErrorContext(c.Request.Context(), "unhandled error",
		"component", "http", "path", c.FullPath(), "error", err)
	response.ServerError(c, "服务器内部错误")
}

func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return false
	}
	return true
}

// ============================================================
// 账户
// ============================================================

// CreateAccount 开户
// POST /api/v1/accounts
func (h *Handler) CreateAccount(c *gin.Context) {
	var req service.CreateAccountRequest
	if !bindJSON(c, &req) {
		return
	}

	account, err := h.accounts.CreateAccount(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, account)
}

// FindAccountByEmail 按邮箱查找账户
// GET /api/v1/accounts?email=xxx
func (h *Handler) FindAccountByEmail(c *gin.Context) {
	email := c.Query("email")
	if email == "" {
		response.ParamError(c, "email 参数不能为空")
		return
	}

	account, err := h.accounts.FindByEmail(c.Request.Context(), email)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, account)
}

// GetAccount GET /api/v1/accounts/:id
func (h *Handler) GetAccount(c *gin.Context) {
	view, err := h.accounts.GetAccount(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, view)
}

// ListTransactions 流水分页查询，按时间倒序
// GET /api/v1/accounts/:id/transactions?field=checking&page=1&page_size=20
func (h *Handler) ListTransactions(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	list, total, err := h.accounts.ListTransactions(c.Request.Context(), c.Param("id"), c.Query("field"), page, pageSize)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, gin.H{
		"list":      list,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// Reconcile GET /api/v1/accounts/:id/reconcile
func (h *Handler) Reconcile(c *gin.Context) {
	report, err := h.accounts.Reconcile(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, report)
}

// GetTransaction GET /api/v1/transactions/:transactionNo
func (h *Handler) GetTransaction(c *gin.Context) {
	entry, err := h.accounts.GetTransaction(c.Request.Context(), c.Param("transactionNo"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, entry)
}

type amountRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// SetAllowance PUT /api/v1/accounts/:id/allowance
func (h *Handler) SetAllowance(c *gin.Context) {
	var req amountRequest
	if !bindJSON(c, &req) {
		return
	}

	account, err := h.accounts.SetAllowance(c.Request.Context(), c.Param("id"), req.Amount)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, account)
}

// SetInterestRate PUT /api/v1/accounts/:id/interest-rate
func (h *Handler) SetInterestRate(c *gin.Context) {
	var req struct {
		Rate decimal.Decimal `json:"rate"`
	}
	if !bindJSON(c, &req) {
		return
	}

	account, err := h.accounts.SetInterestRate(c.Request.Context(), c.Param("id"), req.Rate)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, account)
}

// SetCardFrozen PUT /api/v1/accounts/:id/card-frozen
func (h *Handler) SetCardFrozen(c *gin.Context) {
	var req struct {
		Frozen *bool `json:"frozen" binding:"required"`
	}
	if !bindJSON(c, &req) {
		return
	}

	account, err := h.accounts.SetCardFrozen(c.Request.Context(), c.Param("id"), *req.Frozen)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, account)
}

// ============================================================
// 账务操作
// ============================================================

type entryRequest struct {
	Field       string          `json:"field" binding:"required"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

// Credit 入账
// POST /api/v1/accounts/:id/credit
func (h *Handler) Credit(c *gin.Context) {
	var req entryRequest
	if !bindJSON(c, &req) {
		return
	}

	entry, err := h.ledger.Credit(c.Request.Context(), c.Param("id"), req.Field, req.Amount, req.Description)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, entry)
}

// Debit 出账
// POST /api/v1/accounts/:id/debit
func (h *Handler) Debit(c *gin.Context) {
	var req entryRequest
	if !bindJSON(c, &req) {
		return
	}

	entry, err := h.ledger.Debit(c.Request.Context(), c.Param("id"), req.Field, req.Amount, req.Description)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, entry)
}

// InternalTransfer checking 与 savings 之间划转
// POST /api/v1/accounts/:id/internal-transfer
func (h *Handler) InternalTransfer(c *gin.Context) {
	var req struct {
		FromField string          `json:"from_field" binding:"required"`
		ToField   string          `json:"to_field" binding:"required"`
		Amount    decimal.Decimal `json:"amount"`
	}
	if !bindJSON(c, &req) {
		return
	}

	entries, err := h.ledger.InternalTransfer(c.Request.Context(), c.Param("id"), req.FromField, req.ToField, req.Amount)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, entries)
}

// PeerTransfer 点对点转账，to 可以是账户ID或邮箱
// POST /api/v1/accounts/:id/peer-transfer
func (h *Handler) PeerTransfer(c *gin.Context) {
	var req struct {
		To          string          `json:"to" binding:"required"`
		Amount      decimal.Decimal `json:"amount"`
		Description string          `json:"description"`
	}
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.ledger.PeerTransfer(c.Request.Context(), c.Param("id"), req.To, req.Amount, req.Description)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, result)
}

// EvaluatePolicies 评估零花钱与利息，由客户端在会话开始时调用。
// 单条规则失败时仍返回另一条的结果，失败原因放在 error 字段。
// POST /api/v1/accounts/:id/policy/evaluate
func (h *Handler) EvaluatePolicies(c *gin.Context) {
	results, err := h.policy.Evaluate(c.Request.Context(), c.Param("id"))
	if err != nil && len(results) == 0 {
		writeError(c, err)
		return
	}

	data := gin.H{"results": results}
	if err != nil {
		data["error"] = err.Error()
	}
	response.Success(c, data)
}

// ============================================================
// 储蓄目标
// ============================================================

// CreateGoal POST /api/v1/accounts/:id/goals
func (h *Handler) CreateGoal(c *gin.Context) {
	var req service.CreateGoalRequest
	if !bindJSON(c, &req) {
		return
	}

	goal, err := h.goals.CreateGoal(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, goal)
}

// ListGoals GET /api/v1/accounts/:id/goals
func (h *Handler) ListGoals(c *gin.Context) {
	goals, err := h.goals.ListGoals(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, goals)
}

// GetGoal GET /api/v1/accounts/:id/goals/:goalId
func (h *Handler) GetGoal(c *gin.Context) {
	goal, err := h.goals.GetGoal(c.Request.Context(), c.Param("id"), c.Param("goalId"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, goal)
}

// ContributeToGoal amount 为正存入目标，为负取回储蓄
// POST /api/v1/accounts/:id/goals/:goalId/contribute
func (h *Handler) ContributeToGoal(c *gin.Context) {
	var req amountRequest
	if !bindJSON(c, &req) {
		return
	}

	goal, err := h.ledger.ContributeToGoal(c.Request.Context(), c.Param("id"), c.Param("goalId"), req.Amount)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, goal)
}

// DeleteGoal 删除目标，剩余金额退回储蓄
// DELETE /api/v1/accounts/:id/goals/:goalId
func (h *Handler) DeleteGoal(c *gin.Context) {
	refund, err := h.ledger.DeleteGoal(c.Request.Context(), c.Param("id"), c.Param("goalId"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, gin.H{"refund": refund})
}

// ============================================================
// 监护关系
// ============================================================

// ListDependents GET /api/v1/guardians/:id/dependents
func (h *Handler) ListDependents(c *gin.Context) {
	dependents, err := h.accounts.ListDependents(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, dependents)
}

// LinkDependent 按邮箱关联被监护账户
// POST /api/v1/guardians/:id/dependents
func (h *Handler) LinkDependent(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required"`
	}
	if !bindJSON(c, &req) {
		return
	}

	dependent, err := h.accounts.LinkDependent(c.Request.Context(), c.Param("id"), req.Email)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, dependent)
}
