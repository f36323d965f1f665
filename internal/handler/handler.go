package handler

import (
	"errors"
	"strconv"

	"investsystem/internal/config"
	"investsystem/internal/infrastructure/lock"
	"investsystem/internal/model"
	"investsystem/internal/repository"
	"investsystem/internal/service"
	"investsystem/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	investmentService *service.InvestmentService
	payoutService     *service.PayoutService
	ledgerService     *service.LedgerService
	fundService       *service.FundService
}

// NewHandler 创建处理器实例
func NewHandler(db *gorm.DB, rdb *redis.Client, cfg *config.Config) *Handler {
	return &Handler{
		investmentService: service.NewInvestmentService(db, rdb, cfg),
		payoutService:     service.NewPayoutService(db, rdb, cfg),
		ledgerService:     service.NewLedgerService(db, rdb, cfg),
		fundService:       service.NewFundService(db, rdb, cfg),
	}
}

// writeError 业务错误统一映射到响应码
// 锁竞争/乐观锁冲突映射为可重试错误，管理端提示稍后再试而不是静默吞掉
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidArgument):
		response.ParamError(c, err.Error())
	case errors.Is(err, repository.ErrInsufficientFunds):
		response.BusinessError(c, response.CodeInsufficientFunds, err.Error())
	case errors.Is(err, repository.ErrInvestmentNotFound):
		response.BusinessError(c, response.CodeInvestmentNotFound, err.Error())
	case errors.Is(err, repository.ErrInvalidStateTransition):
		response.BusinessError(c, response.CodeInvalidStateTransition, err.Error())
	case errors.Is(err, service.ErrScheduleExhausted):
		response.BusinessError(c, response.CodeScheduleExhausted, err.Error())
	case errors.Is(err, repository.ErrBalanceNotFound):
		response.BusinessError(c, response.CodeBalanceNotFound, err.Error())
	case errors.Is(err, repository.ErrFundRequestNotFound):
		response.BusinessError(c, response.CodeFundRequestNotFound, err.Error())
	case errors.Is(err, repository.ErrRequestNotPending):
		response.BusinessError(c, response.CodeRequestNotPending, err.Error())
	case errors.Is(err, repository.ErrOptimisticLock),
		errors.Is(err, repository.ErrScheduleConflict),
		errors.Is(err, lock.ErrLockFailed):
		response.BusinessError(c, response.CodeConcurrencyConflict, "操作冲突，请稍后重试")
	default:
		response.ServerError(c, err.Error())
	}
}

// ============================================================
// 投资生命周期接口
// ============================================================

// CreateInvestments 批量创建投资
// POST /api/v1/admin/investments/create
//
// 【关键点】多个用户共用一套参数，但每个用户独立一个事务：
// 余额不足的用户单独失败并在响应里报告，不阻塞其他用户
func (h *Handler) CreateInvestments(c *gin.Context) {
	var req service.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.investmentService.Create(c.Request.Context(), AdminID(c), &req)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, result)
}

// ListInvestments 投资列表
// GET /api/v1/admin/investments?status=ACTIVE&page=1&page_size=20
// status 为空返回全部状态
func (h *Handler) ListInvestments(c *gin.Context) {
	status := c.Query("status")
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	investments, total, err := h.investmentService.List(c.Request.Context(), status, page, pageSize)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, gin.H{
		"list":      investments,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// GetInvestment 投资详情
// GET /api/v1/admin/investments/detail?investment_no=xxx
func (h *Handler) GetInvestment(c *gin.Context) {
	investmentNo := c.Query("investment_no")
	if investmentNo == "" {
		response.ParamError(c, "investment_no 参数不能为空")
		return
	}

	inv, err := h.investmentService.GetByInvestmentNo(c.Request.Context(), investmentNo)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, inv)
}

// investmentIDRequest 按内部ID操作单笔投资的通用请求体
type investmentIDRequest struct {
	InvestmentID int64 `json:"investment_id" binding:"required"`
}

// EditInvestmentRequest 修改投资条款请求
type EditInvestmentRequest struct {
	InvestmentID int64 `json:"investment_id" binding:"required"`
	service.EditRequest
}

// EditInvestment 修改投资条款（仅限进行中）
// POST /api/v1/admin/investments/edit
func (h *Handler) EditInvestment(c *gin.Context) {
	var req EditInvestmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	inv, err := h.investmentService.Edit(c.Request.Context(), AdminID(c), req.InvestmentID, &req.EditRequest)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, inv)
}

// CancelInvestment 取消投资，本金退回用户
// POST /api/v1/admin/investments/cancel
func (h *Handler) CancelInvestment(c *gin.Context) {
	var req investmentIDRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	inv, err := h.investmentService.Cancel(c.Request.Context(), AdminID(c), req.InvestmentID)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, inv)
}

// StopInvestment 强制终止投资，余额效果与取消一致，终态不同
// POST /api/v1/admin/investments/stop
func (h *Handler) StopInvestment(c *gin.Context) {
	var req investmentIDRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	inv, err := h.investmentService.Stop(c.Request.Context(), AdminID(c), req.InvestmentID)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, inv)
}

// ============================================================
// 派息接口
// ============================================================

// ForcePayInvestment 无视排期立即派一次息
// POST /api/v1/admin/investments/force-pay
func (h *Handler) ForcePayInvestment(c *gin.Context) {
	var req investmentIDRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.payoutService.ForcePay(c.Request.Context(), AdminID(c), req.InvestmentID)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, result)
}

// CatchUpInvestment 补发单笔投资停机期间欠下的全部派息
// POST /api/v1/admin/investments/catch-up
func (h *Handler) CatchUpInvestment(c *gin.Context) {
	var req investmentIDRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.payoutService.CatchUp(c.Request.Context(), AdminID(c), req.InvestmentID)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, result)
}

// TriggerPayouts 手动触发一轮派息扫描
// POST /api/v1/admin/investments/trigger-payouts
func (h *Handler) TriggerPayouts(c *gin.Context) {
	processed, settled, err := h.payoutService.RunPass(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, gin.H{
		"processed": processed,
		"settled":   settled,
	})
}

// ============================================================
// 余额接口
// ============================================================

// AdjustBalanceRequest 余额调整请求
// 封闭结构：字段和模式都是枚举，未知字段在服务层直接拒绝
type AdjustBalanceRequest struct {
	UserID int64   `json:"user_id" binding:"required"`
	Field  string  `json:"field" binding:"required"`
	Mode   string  `json:"mode" binding:"required"`
	Amount float64 `json:"amount" binding:"gte=0"`
	Remark string  `json:"remark"`
}

// AdjustBalance 管理员调整余额（SET 覆盖 / ADD 增加 / REDUCE 减少，减到0为止）
// POST /api/v1/admin/balance/adjust
func (h *Handler) AdjustBalance(c *gin.Context) {
	var req AdjustBalanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	balance, err := h.ledgerService.AdminAdjust(c.Request.Context(), AdminID(c),
		req.UserID, req.Field, req.Mode, req.Amount, req.Remark)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, balance)
}

// GetBalance 查询用户余额
// GET /api/v1/admin/balance?user_id=xxx
func (h *Handler) GetBalance(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Query("user_id"), 10, 64)
	if err != nil {
		response.ParamError(c, "user_id 参数错误")
		return
	}

	balance, err := h.ledgerService.GetBalance(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, balance)
}

// ListLedger 查询用户资金流水
// GET /api/v1/admin/ledger?user_id=xxx&page=1&page_size=20
func (h *Handler) ListLedger(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Query("user_id"), 10, 64)
	if err != nil {
		response.ParamError(c, "user_id 参数错误")
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	entries, total, err := h.ledgerService.ListEntries(c.Request.Context(), userID, page, pageSize)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, gin.H{
		"list":      entries,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// ============================================================
// 出入金审核接口
// ============================================================

// fundReviewRequest 审核单笔出入金请求的通用请求体
type fundReviewRequest struct {
	RequestID int64  `json:"request_id" binding:"required"`
	Note      string `json:"note"`
}

// listFundRequests 出入金请求列表的通用实现
// status 为空返回全部状态
func (h *Handler) listFundRequests(c *gin.Context, requestType string) {
	status := c.Query("status")
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	requests, total, err := h.fundService.List(c.Request.Context(), requestType, status, page, pageSize)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, gin.H{
		"list":      requests,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// ListDeposits 入金请求列表
// GET /api/v1/admin/deposits?status=PENDING&page=1&page_size=20
func (h *Handler) ListDeposits(c *gin.Context) {
	h.listFundRequests(c, model.FundRequestTypeDeposit)
}

// ListWithdrawals 出金请求列表
// GET /api/v1/admin/withdrawals?status=PENDING&page=1&page_size=20
func (h *Handler) ListWithdrawals(c *gin.Context) {
	h.listFundRequests(c, model.FundRequestTypeWithdrawal)
}

// ApproveDeposit 入金审核通过，可用余额入账
// POST /api/v1/admin/deposits/approve
func (h *Handler) ApproveDeposit(c *gin.Context) {
	var req fundReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.fundService.ApproveDeposit(c.Request.Context(), AdminID(c), req.RequestID, req.Note)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, result)
}

// RejectDeposit 驳回入金请求，资金不动
// POST /api/v1/admin/deposits/reject
func (h *Handler) RejectDeposit(c *gin.Context) {
	var req fundReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.fundService.RejectDeposit(c.Request.Context(), AdminID(c), req.RequestID, req.Note)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, result)
}

// ApproveWithdrawal 出金审核通过，严格扣减可用余额
// POST /api/v1/admin/withdrawals/approve
//
// 【关键点】用户可用余额盖不住出金金额时审核失败，请求保持待审核，
// 管理端拿到明确的余额不足错误而不是把余额截断到0
func (h *Handler) ApproveWithdrawal(c *gin.Context) {
	var req fundReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.fundService.ApproveWithdrawal(c.Request.Context(), AdminID(c), req.RequestID, req.Note)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, result)
}

// RejectWithdrawal 驳回出金请求，资金不动
// POST /api/v1/admin/withdrawals/reject
func (h *Handler) RejectWithdrawal(c *gin.Context) {
	var req fundReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.fundService.RejectWithdrawal(c.Request.Context(), AdminID(c), req.RequestID, req.Note)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, result)
}

// ============================================================
// 报表接口
// ============================================================

// GetStats 管理端看板聚合数据
// GET /api/v1/admin/stats
func (h *Handler) GetStats(c *gin.Context) {
	stats, err := h.investmentService.GetStats(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, stats)
}
