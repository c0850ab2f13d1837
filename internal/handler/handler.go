package handler

import (
	"context"
	"strconv"
	"time"

	"creditengine/internal/service"
	"creditengine/pkg/response"

	"github.com/gin-gonic/gin"
)

// Services 处理器依赖的全部服务，由 main 组装
type Services struct {
	Account    *service.AccountService
	Payment    *service.PaymentService
	Reaction   *service.ReactionService
	Confession *service.ConfessionService
	Gift       *service.GiftService
	Visibility *service.VisibilityService
	RateLimit  *service.RateLimiter
	Quota      *service.QuotaTracker
	Admin      *service.AdminService
}

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	svc *Services
}

// NewHandler 创建处理器实例
func NewHandler(svc *Services) *Handler {
	return &Handler{svc: svc}
}

// banChecker 未装配管理服务时不做封禁校验
func (h *Handler) banChecker() BanChecker {
	if h.svc.Admin == nil {
		return nil
	}
	return h.svc.Admin
}

// pathID 解析路径中的帖子 ID
func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.ParamError(c, "id 参数错误")
		return 0, false
	}
	return id, true
}

// ============================================================
// 账户相关接口
// ============================================================

// GetBalance 查询当前用户余额
// GET /api/v1/account/balance
func (h *Handler) GetBalance(c *gin.Context) {
	account, err := h.svc.Account.GetAccount(c.Request.Context(), CurrentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, gin.H{
		"user_id":    account.UserID,
		"balance":    account.Balance,
		"is_premium": account.IsPremium,
		"is_banned":  account.IsBanned,
		"ban_until":  account.BanUntil,
	})
}

// ListLedger 查询积分流水
// GET /api/v1/account/ledger?page=1&page_size=20
func (h *Handler) ListLedger(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	result, err := h.svc.Account.ListLedger(c.Request.Context(), CurrentUserID(c), page, pageSize)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, result)
}

// ListEvents 用户最近的通知事件
// GET /api/v1/account/events?type=gift_received&limit=20
func (h *Handler) ListEvents(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	msgs, err := h.svc.Account.ListEvents(c.Request.Context(), CurrentUserID(c), c.Query("type"), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, msgs)
}

// ============================================================
// 支付回调
// ============================================================

// GetReceipt 查询支付回执
// GET /api/v1/payment/receipt/:payment_id
func (h *Handler) GetReceipt(c *gin.Context) {
	receipt, err := h.svc.Payment.GetReceipt(c.Request.Context(), CurrentUserID(c), c.Param("payment_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, receipt)
}

// VerifyCredits 积分套餐支付校验
// POST /api/v1/payment/verify-credits
func (h *Handler) VerifyCredits(c *gin.Context) {
	h.verify(c, h.svc.Payment.VerifyCreditPurchase)
}

// VerifyPremium 会员支付校验
// POST /api/v1/payment/verify-premium
func (h *Handler) VerifyPremium(c *gin.Context) {
	h.verify(c, h.svc.Payment.VerifyPremiumPurchase)
}

// VerifyUnban 解封支付校验
// POST /api/v1/payment/verify-unban
func (h *Handler) VerifyUnban(c *gin.Context) {
	h.verify(c, h.svc.Payment.VerifyUnbanPayment)
}

type verifyFunc func(ctx context.Context, userID int64, req *service.VerifyRequest) (*service.VerifyResult, error)

func (h *Handler) verify(c *gin.Context, fn verifyFunc) {
	var req service.VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := fn(c.Request.Context(), CurrentUserID(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, result)
}

// ============================================================
// 帖子相关接口
// ============================================================

type ReactRequest struct {
	ReactionType string `json:"reaction_type" binding:"required"`
}

// React 付费反应
// POST /api/v1/confession/:id/react
func (h *Handler) React(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req ReactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.svc.Reaction.React(c.Request.Context(), CurrentUserID(c), id, req.ReactionType)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, result)
}

// RemoveReactions 撤回反应
// POST /api/v1/confession/:id/react/remove
func (h *Handler) RemoveReactions(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req ReactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	removed, err := h.svc.Reaction.RemoveAll(c.Request.Context(), CurrentUserID(c), id, req.ReactionType)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, gin.H{"removed": removed})
}

type PostRequest struct {
	VoiceSeconds int `json:"voice_seconds" binding:"gte=0"`
}

// QuotePost 发帖报价
// POST /api/v1/confession/quote-post
func (h *Handler) QuotePost(c *gin.Context) {
	var req PostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	quote, err := h.svc.Confession.QuotePost(c.Request.Context(), CurrentUserID(c), req.VoiceSeconds)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, quote)
}

// ChargePost 发帖扣费
// POST /api/v1/confession/post
func (h *Handler) ChargePost(c *gin.Context) {
	var req PostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	charge, err := h.svc.Confession.ChargePost(c.Request.Context(), CurrentUserID(c), req.VoiceSeconds)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, charge)
}

// ChargeEdit 编辑扣费
// POST /api/v1/confession/:id/edit
func (h *Handler) ChargeEdit(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	charge, err := h.svc.Confession.ChargeEdit(c.Request.Context(), CurrentUserID(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, charge)
}

// ============================================================
// 礼物
// ============================================================

type SendGiftRequest struct {
	ConfessionID int64  `json:"confession_id" binding:"required"`
	GiftType     string `json:"gift_type" binding:"required"`
	Message      string `json:"message" binding:"max=200"`
}

// SendGift 送礼
// POST /api/v1/gift/send
func (h *Handler) SendGift(c *gin.Context) {
	var req SendGiftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.svc.Gift.SendGift(c.Request.Context(), CurrentUserID(c), req.ConfessionID, req.GiftType, req.Message)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, result)
}

// GiftProgress 当前用户的收礼进度
// GET /api/v1/gift/progress
func (h *Handler) GiftProgress(c *gin.Context) {
	list, err := h.svc.Gift.ListProgress(c.Request.Context(), CurrentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, gin.H{"list": list})
}

// ============================================================
// 加热 / 置顶
// ============================================================

type VisibilityRequest struct {
	DurationMinutes int `json:"duration_minutes" binding:"required"`
}

// Boost 加热
// POST /api/v1/visibility/boost/:id
func (h *Handler) Boost(c *gin.Context) {
	h.visibility(c, h.svc.Visibility.ApplyBoost)
}

// Spotlight 置顶
// POST /api/v1/visibility/spotlight/:id
func (h *Handler) Spotlight(c *gin.Context) {
	h.visibility(c, h.svc.Visibility.ApplySpotlight)
}

// PremiumBoost 会员每月赠送的 24 小时加热
// POST /api/v1/visibility/premium-boost/:id
func (h *Handler) PremiumBoost(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	result, err := h.svc.Visibility.ApplyPremiumBoost(c.Request.Context(), CurrentUserID(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, result)
}

type visibilityFunc func(ctx context.Context, userID, confessionID int64, minutes int) (*service.VisibilityResult, error)

func (h *Handler) visibility(c *gin.Context, fn visibilityFunc) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req VisibilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := fn(c.Request.Context(), CurrentUserID(c), id, req.DurationMinutes)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, result)
}

// ============================================================
// 限流
// ============================================================

// RateLimitStatus 查询限流窗口
// GET /api/v1/ratelimit/status?action=confession_post
func (h *Handler) RateLimitStatus(c *gin.Context) {
	action := c.DefaultQuery("action", "confession_post")

	status, err := h.svc.RateLimit.Status(c.Request.Context(), CurrentUserID(c), action)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, status)
}

// PremiumStatus 会员订阅和剩余额度
// GET /api/v1/premium/status
func (h *Handler) PremiumStatus(c *gin.Context) {
	sub, err := h.svc.Quota.Get(c.Request.Context(), CurrentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	if sub == nil {
		response.Success(c, gin.H{"is_premium": false})
		return
	}
	response.Success(c, gin.H{
		"is_premium":               sub.ActiveAt(time.Now()),
		"end_date":                 sub.EndDate,
		"spotlight_uses_remaining": sub.SpotlightUsesRemaining,
		"spotlight_12h_remaining":  sub.Spotlight12hRemaining,
		"boost_12h_remaining":      sub.Boost12hRemaining,
	})
}

// ============================================================
// 管理后台
// ============================================================

// AdjustCredits 管理员调账
// POST /api/v1/admin/adjust-credits
func (h *Handler) AdjustCredits(c *gin.Context) {
	var req service.AdjustCreditsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	req.AdminID = CurrentUserID(c)

	result, err := h.svc.Admin.AdjustCredits(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, result)
}

// BanUser 封禁用户
// POST /api/v1/admin/ban
func (h *Handler) BanUser(c *gin.Context) {
	var req service.BanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	until, err := h.svc.Admin.BanUser(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, gin.H{
		"user_id":   req.UserID,
		"ban_until": until,
	})
}

// Reconcile 单账户对账
// GET /api/v1/admin/reconcile/:user_id
func (h *Handler) Reconcile(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("user_id"), 10, 64)
	if err != nil {
		response.ParamError(c, "user_id 参数错误")
		return
	}

	result, err := h.svc.Account.Reconcile(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, result)
}
