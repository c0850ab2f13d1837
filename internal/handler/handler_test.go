package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"creditengine/internal/gateway"
	"creditengine/internal/pricing"
	"creditengine/internal/repository"
	"creditengine/internal/service"
	"creditengine/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestMapError(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{&service.InsufficientFundsError{Required: 5, Current: 1}, response.CodeInsufficientFunds},
		{fmt.Errorf("wrap: %w", &service.RateLimitedError{ActionClass: "reaction", RetryAfter: time.Second}), response.CodeRateLimited},
		{service.ErrQuotaExhausted, response.CodeQuotaExhausted},
		{service.ErrInvalidSignature, response.CodeInvalidSignature},
		{service.ErrOwnershipMismatch, response.CodeOwnershipMismatch},
		{service.ErrPaymentNotCaptured, response.CodePaymentNotCaptured},
		{service.ErrContentNotFound, response.CodeContentNotFound},
		{service.ErrNotOwner, response.CodeNotOwner},
		{service.ErrSelfGift, response.CodeSelfGift},
		{service.ErrInvalidReaction, response.CodeInvalidReaction},
		{pricing.ErrInvalidDuration, response.CodeInvalidDuration},
		{pricing.ErrInvalidGiftType, response.CodeInvalidGiftType},
		{fmt.Errorf("%w: timeout", gateway.ErrGatewayUnavailable), response.CodeGatewayUnavailable},
		{&service.BannedError{}, response.CodeUserBanned},
		{repository.ErrReceiptNotFound, response.CodeNotFound},
		{pricing.ErrInvalidPackage, response.CodeParamError},
		{service.ErrInvalidAmount, response.CodeParamError},
		{errors.New("connection reset"), response.CodeServerError},
	}
	for _, tc := range cases {
		code, msg := mapError(tc.err)
		assert.Equal(t, tc.code, code, "err=%v", tc.err)
		assert.NotEmpty(t, msg)
	}
}

func TestMapErrorHidesInternalDetails(t *testing.T) {
	_, msg := mapError(errors.New("dial tcp 10.0.0.1:3306: i/o timeout"))
	assert.Equal(t, "服务器内部错误", msg)
}

func decode(t *testing.T, w *httptest.ResponseRecorder) response.Response {
	var resp response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestRespondErrorIncludesRetryAfter(t *testing.T) {
	r := gin.New()
	r.GET("/x", func(c *gin.Context) {
		respondError(c, &service.RateLimitedError{ActionClass: "confession_post", RetryAfter: 90 * time.Second})
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))

	resp := decode(t, w)
	assert.Equal(t, response.CodeRateLimited, resp.Code)
	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "confession_post", data["action_class"])
	assert.Equal(t, float64(90), data["retry_after"])
}

func TestAuthMiddleware(t *testing.T) {
	r := gin.New()
	r.GET("/me", AuthMiddleware(), func(c *gin.Context) {
		response.Success(c, gin.H{"user_id": CurrentUserID(c)})
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
	assert.Equal(t, response.CodeUnauthorized, decode(t, w).Code)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set(HeaderUserID, "abc")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, response.CodeUnauthorized, decode(t, w).Code)

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set(HeaderUserID, "42")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	resp := decode(t, w)
	assert.Equal(t, response.CodeSuccess, resp.Code)
	assert.Equal(t, float64(42), resp.Data.(map[string]interface{})["user_id"])
}

func TestAdminMiddleware(t *testing.T) {
	r := gin.New()
	r.POST("/admin", AdminMiddleware(), func(c *gin.Context) {
		response.Success(c, nil)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/admin", nil))
	assert.Equal(t, response.CodeForbidden, decode(t, w).Code)

	req := httptest.NewRequest(http.MethodPost, "/admin", nil)
	req.Header.Set(HeaderUserRole, "admin")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, response.CodeSuccess, decode(t, w).Code)
}

func TestRouterHealthAndAuth(t *testing.T) {
	r := SetupRouter(NewHandler(&Services{}))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	// 未带用户头的请求在进入服务前被拦下
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/account/balance", nil))
	assert.Equal(t, response.CodeUnauthorized, decode(t, w).Code)
}

func TestPathIDRejectsInvalid(t *testing.T) {
	r := SetupRouter(NewHandler(&Services{}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/visibility/boost/abc", nil)
	req.Header.Set(HeaderUserID, "1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, response.CodeParamError, decode(t, w).Code)
}

type fakeBanChecker struct {
	banned map[int64]*time.Time
	err    error
}

func (f *fakeBanChecker) CheckBan(_ context.Context, userID int64) error {
	if f.err != nil {
		return f.err
	}
	if until, ok := f.banned[userID]; ok {
		return &service.BannedError{Until: until}
	}
	return nil
}

func TestBanGuardMiddleware(t *testing.T) {
	until := time.Now().Add(72 * time.Hour).Truncate(time.Second)
	checker := &fakeBanChecker{banned: map[int64]*time.Time{7: &until, 8: nil}}

	reached := 0
	r := gin.New()
	r.POST("/act", AuthMiddleware(), BanGuardMiddleware(checker), func(c *gin.Context) {
		reached++
		response.Success(c, nil)
	})
	call := func(userID string) response.Response {
		req := httptest.NewRequest(http.MethodPost, "/act", nil)
		req.Header.Set(HeaderUserID, userID)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return decode(t, w)
	}

	resp := call("7")
	assert.Equal(t, response.CodeUserBanned, resp.Code)
	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.NotNil(t, data["ban_until"])

	resp = call("8")
	assert.Equal(t, response.CodeUserBanned, resp.Code)
	assert.Equal(t, "账号已被永久封禁", resp.Message)
	assert.Zero(t, reached)

	assert.Equal(t, response.CodeSuccess, call("9").Code)
	assert.Equal(t, 1, reached)

	checker.err = errors.New("db down")
	assert.Equal(t, response.CodeServerError, call("9").Code)
	assert.Equal(t, 1, reached)
}

func TestBanGuardWithoutCheckerPasses(t *testing.T) {
	r := gin.New()
	r.POST("/act", BanGuardMiddleware(nil), func(c *gin.Context) {
		response.Success(c, nil)
	})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/act", nil))
	assert.Equal(t, response.CodeSuccess, decode(t, w).Code)
}

func TestRouterRegistersReadEndpoints(t *testing.T) {
	r := SetupRouter(NewHandler(&Services{}))
	routes := map[string]bool{}
	for _, info := range r.Routes() {
		routes[info.Method+" "+info.Path] = true
	}
	assert.True(t, routes["GET /api/v1/account/events"])
	assert.True(t, routes["GET /api/v1/payment/receipt/:payment_id"])
	assert.True(t, routes["POST /api/v1/visibility/premium-boost/:id"])
}
