package handler

import (
	"errors"
	"log"

	"creditengine/internal/gateway"
	"creditengine/internal/pricing"
	"creditengine/internal/repository"
	"creditengine/internal/service"
	"creditengine/pkg/response"

	"github.com/gin-gonic/gin"
)

// mapError 业务错误到响应码；未识别的错误按服务端错误处理
func mapError(err error) (int, string) {
	var insufficient *service.InsufficientFundsError
	switch {
	case errors.As(err, &insufficient):
		return response.CodeInsufficientFunds, insufficient.Error()
	case errors.Is(err, service.ErrInsufficientFunds):
		return response.CodeInsufficientFunds, err.Error()
	case errors.Is(err, service.ErrUserBanned):
		return response.CodeUserBanned, err.Error()
	case errors.Is(err, service.ErrRateLimited):
		return response.CodeRateLimited, err.Error()
	case errors.Is(err, service.ErrQuotaExhausted):
		return response.CodeQuotaExhausted, err.Error()
	case errors.Is(err, service.ErrInvalidSignature):
		return response.CodeInvalidSignature, err.Error()
	case errors.Is(err, service.ErrOwnershipMismatch):
		return response.CodeOwnershipMismatch, err.Error()
	case errors.Is(err, service.ErrPaymentNotCaptured):
		return response.CodePaymentNotCaptured, err.Error()
	case errors.Is(err, service.ErrContentNotFound):
		return response.CodeContentNotFound, err.Error()
	case errors.Is(err, service.ErrNotOwner):
		return response.CodeNotOwner, err.Error()
	case errors.Is(err, service.ErrSelfGift):
		return response.CodeSelfGift, err.Error()
	case errors.Is(err, service.ErrInvalidReaction):
		return response.CodeInvalidReaction, err.Error()
	case errors.Is(err, pricing.ErrInvalidDuration):
		return response.CodeInvalidDuration, err.Error()
	case errors.Is(err, pricing.ErrInvalidGiftType):
		return response.CodeInvalidGiftType, err.Error()
	case errors.Is(err, gateway.ErrGatewayUnavailable):
		return response.CodeGatewayUnavailable, gateway.ErrGatewayUnavailable.Error()
	case errors.Is(err, repository.ErrAccountNotFound),
		errors.Is(err, repository.ErrReceiptNotFound):
		return response.CodeNotFound, err.Error()
	case errors.Is(err, service.ErrInvalidAmount),
		errors.Is(err, service.ErrInvalidCategory),
		errors.Is(err, service.ErrInvalidAction),
		errors.Is(err, service.ErrEmptyReason),
		errors.Is(err, pricing.ErrInvalidPackage),
		errors.Is(err, pricing.ErrInvalidBanDuration):
		return response.CodeParamError, err.Error()
	}
	return response.CodeServerError, "服务器内部错误"
}

func respondError(c *gin.Context, err error) {
	code, msg := mapError(err)
	if code == response.CodeServerError {
		log.Printf("[Handler] 请求处理失败: %s %s, err=%v", c.Request.Method, c.FullPath(), err)
		response.ServerError(c, msg)
		return
	}

	var limited *service.RateLimitedError
	if errors.As(err, &limited) {
		response.ErrorWithData(c, code, msg, gin.H{
			"action_class": limited.ActionClass,
			"retry_after":  limited.RetryAfterSeconds(),
		})
		return
	}
	var banned *service.BannedError
	if errors.As(err, &banned) {
		response.ErrorWithData(c, code, msg, gin.H{"ban_until": banned.Until})
		return
	}
	response.Error(c, code, msg)
}
