package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"

	"creditengine/internal/config"
	"creditengine/internal/gateway"
	"creditengine/internal/model"
	"creditengine/internal/pricing"
	"creditengine/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test_key_secret"

type fakeGateway struct {
	order   *gateway.Order
	payment *gateway.Payment
	err     error
}

func (g *fakeGateway) Secret() string { return testSecret }

func (g *fakeGateway) FetchOrderAndPayment(ctx context.Context, orderID, paymentID string) (*gateway.Order, *gateway.Payment, error) {
	if g.err != nil {
		return nil, nil, g.err
	}
	return g.order, g.payment, nil
}

func newFakeGateway(userID, amount int64, notes gateway.Notes) *fakeGateway {
	orderID := fmt.Sprintf("order_%d", userID)
	if notes == nil {
		notes = gateway.Notes{}
	}
	notes["user_id"] = strconv.FormatInt(userID, 10)
	return &fakeGateway{
		order: &gateway.Order{ID: orderID, Amount: amount, Currency: "INR", Status: "paid", Notes: notes},
		payment: &gateway.Payment{
			ID:      fmt.Sprintf("pay_%d", userID),
			OrderID: orderID,
			Amount:  amount,
			Status:  gateway.PaymentStatusCaptured,
		},
	}
}

func (g *fakeGateway) request() *VerifyRequest {
	return &VerifyRequest{
		OrderID:   g.order.ID,
		PaymentID: g.payment.ID,
		Signature: gateway.Sign(testSecret, g.order.ID, g.payment.ID),
	}
}

func newPaymentService(t *testing.T, gw GatewayClient) (*PaymentService, *BalanceMutator) {
	db := testDB(t)
	cfg := &config.Config{}
	cfg.ApplyDefaults()
	mutator := NewBalanceMutator(db)
	quota := NewQuotaTracker(db, cfg.Economy)
	return NewPaymentService(db, cfg, gw, pricing.NewCatalog(cfg.Economy), mutator, quota), mutator
}

func TestDuplicateSettlementAppliesOnce(t *testing.T) {
	userID := nextUserID()
	gw := newFakeGateway(userID, 6900, gateway.Notes{"package_type": "popular"})
	svc, _ := newPaymentService(t, gw)
	db := testDB(t)
	ctx := context.Background()

	const attempts = 5
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied int
		already int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.VerifyCreditPurchase(ctx, userID, gw.request())
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if res.Applied {
				applied++
				assert.Equal(t, int64(225), res.CreditsAdded)
			}
			if res.AlreadyProcessed {
				already++
				assert.Nil(t, res.Balance)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, applied)
	assert.Equal(t, attempts-1, already)

	balance, err := NewAccountService(db).GetBalance(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(225), balance)

	var receipts int64
	require.NoError(t, db.Model(&model.PaymentReceipt{}).Where("payment_id = ?", gw.payment.ID).Count(&receipts).Error)
	assert.Equal(t, int64(1), receipts)

	receipt, err := svc.GetReceipt(ctx, userID, gw.payment.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentTypeCredits, receipt.PaymentType)
	assert.Equal(t, "popular", receipt.Detail)

	_, err = svc.GetReceipt(ctx, userID+1, gw.payment.ID)
	assert.ErrorIs(t, err, repository.ErrReceiptNotFound)

	msgs, err := NewAccountService(db).ListEvents(ctx, userID, model.EventPaymentSettled, 10)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestVerifyRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(g *fakeGateway, req *VerifyRequest)
		want   error
	}{
		{"bad signature", func(g *fakeGateway, req *VerifyRequest) { req.Signature = "deadbeef" }, ErrInvalidSignature},
		{"not captured", func(g *fakeGateway, req *VerifyRequest) { g.payment.Status = "authorized" }, ErrPaymentNotCaptured},
		{"other user", func(g *fakeGateway, req *VerifyRequest) { g.order.Notes["user_id"] = "1" }, ErrOwnershipMismatch},
		{"payment for other order", func(g *fakeGateway, req *VerifyRequest) { g.payment.OrderID = "order_x" }, ErrOwnershipMismatch},
		{"amount differs", func(g *fakeGateway, req *VerifyRequest) { g.payment.Amount = 100 }, ErrOwnershipMismatch},
		{"price list differs", func(g *fakeGateway, req *VerifyRequest) { g.order.Amount, g.payment.Amount = 100, 100 }, ErrOwnershipMismatch},
		{"gateway down", func(g *fakeGateway, req *VerifyRequest) { g.err = gateway.ErrGatewayUnavailable }, gateway.ErrGatewayUnavailable},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			userID := nextUserID()
			gw := newFakeGateway(userID, 6900, gateway.Notes{"package_type": "popular"})
			svc, _ := newPaymentService(t, gw)
			req := gw.request()
			tc.mutate(gw, req)

			_, err := svc.VerifyCreditPurchase(context.Background(), userID, req)
			assert.True(t, errors.Is(err, tc.want), "got %v", err)

			balance, err := NewAccountService(testDB(t)).GetBalance(context.Background(), userID)
			require.NoError(t, err)
			assert.Zero(t, balance)
		})
	}
}

func TestPremiumPurchaseGrantsAllotmentAndBonus(t *testing.T) {
	userID := nextUserID()
	gw := newFakeGateway(userID, 9900, nil)
	svc, _ := newPaymentService(t, gw)
	ctx := context.Background()

	res, err := svc.VerifyPremiumPurchase(ctx, userID, gw.request())
	require.NoError(t, err)
	require.True(t, res.Applied)
	assert.Equal(t, int64(150), res.CreditsAdded)
	require.NotNil(t, res.PremiumUntil)

	sub, err := svc.quota.Get(ctx, userID)
	require.NoError(t, err)
	assert.True(t, sub.IsActive)
	assert.Equal(t, 10, sub.Spotlight12hRemaining)
	assert.Equal(t, gw.payment.ID, sub.PaymentID)

	account, err := repository.NewAccountRepository(testDB(t)).GetByUserID(ctx, userID)
	require.NoError(t, err)
	assert.True(t, account.IsPremium)
	assert.Equal(t, int64(150), account.Balance)
}

func TestUnbanPaymentLiftsBan(t *testing.T) {
	userID := nextUserID()
	gw := newFakeGateway(userID, 7000, gateway.Notes{"ban_duration": "7"})
	svc, mutator := newPaymentService(t, gw)
	db := testDB(t)
	ctx := context.Background()

	admin := NewAdminService(db, mutator)
	_, err := admin.BanUser(ctx, &BanRequest{UserID: userID, Duration: "7"})
	require.NoError(t, err)
	assert.ErrorIs(t, admin.CheckBan(ctx, userID), ErrUserBanned)

	res, err := svc.VerifyUnbanPayment(ctx, userID, gw.request())
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.NoError(t, admin.CheckBan(ctx, userID))

	account, err := repository.NewAccountRepository(db).GetByUserID(ctx, userID)
	require.NoError(t, err)
	assert.False(t, account.IsBanned)
	assert.Nil(t, account.BanUntil)
}
