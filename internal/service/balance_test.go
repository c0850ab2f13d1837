package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"creditengine/internal/model"
	"creditengine/internal/pricing"
	"creditengine/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConcurrentDebitsNeverOverdraw(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	mutator := NewBalanceMutator(db)
	userID := nextUserID()
	seedBalance(t, mutator, userID, 100)

	const (
		workers = 30
		cost    = 5
	)
	var (
		wg           sync.WaitGroup
		mu           sync.Mutex
		succeeded    int
		insufficient int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := mutator.AdjustInTx(ctx, userID, -cost, model.LedgerCategorySpent, "并发扣款")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, ErrInsufficientFunds):
				insufficient++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 20, succeeded)
	assert.Equal(t, 10, insufficient)

	accounts := NewAccountService(db)
	balance, err := accounts.GetBalance(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance)

	ledger, err := accounts.ListLedger(ctx, userID, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(21), ledger.Total)

	rec, err := accounts.Reconcile(ctx, userID)
	require.NoError(t, err)
	assert.True(t, rec.Consistent)
	assert.Equal(t, int64(0), rec.LedgerSum)
}

func TestDebitCarriesRequiredAndCurrent(t *testing.T) {
	db := testDB(t)
	mutator := NewBalanceMutator(db)
	userID := nextUserID()
	seedBalance(t, mutator, userID, 3)

	_, err := mutator.AdjustInTx(context.Background(), userID, -10, model.LedgerCategorySpent, "余额不足")
	var insufficient *InsufficientFundsError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, int64(10), insufficient.Required)
	assert.Equal(t, int64(3), insufficient.Current)
}

func TestDebitUnknownAccount(t *testing.T) {
	db := testDB(t)
	_, err := NewBalanceMutator(db).AdjustInTx(context.Background(), nextUserID(), -1, model.LedgerCategorySpent, "无账户")
	assert.ErrorIs(t, err, ErrInsufficientFunds)
}

func TestAdjustRejectsBadInput(t *testing.T) {
	db := testDB(t)
	mutator := NewBalanceMutator(db)
	_, err := mutator.AdjustInTx(context.Background(), nextUserID(), 0, model.LedgerCategorySpent, "")
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = mutator.AdjustInTx(context.Background(), nextUserID(), 5, "bonus", "")
	assert.ErrorIs(t, err, ErrInvalidCategory)
}

func TestLedgerPaging(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	mutator := NewBalanceMutator(db)
	userID := nextUserID()
	for i := 0; i < 3; i++ {
		seedBalance(t, mutator, userID, 10)
	}

	page, err := NewAccountService(db).ListLedger(ctx, userID, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Total)
	assert.Equal(t, 1, page.Page)
	assert.Len(t, page.Entries, 2)
}

func TestAdminAdjustNeverBelowZero(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	mutator := NewBalanceMutator(db)
	admin := NewAdminService(db, mutator)
	userID := nextUserID()
	seedBalance(t, mutator, userID, 10)

	_, err := admin.AdjustCredits(ctx, &AdjustCreditsRequest{AdminID: 1, UserID: userID, Amount: -20, Reason: "违规"})
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	_, err = admin.AdjustCredits(ctx, &AdjustCreditsRequest{AdminID: 1, UserID: userID, Amount: -10, Reason: ""})
	assert.ErrorIs(t, err, ErrEmptyReason)

	resp, err := admin.AdjustCredits(ctx, &AdjustCreditsRequest{AdminID: 1, UserID: userID, Amount: -10, Reason: "违规"})
	require.NoError(t, err)
	assert.Equal(t, int64(0), resp.Balance)
	assert.Equal(t, model.LedgerCategoryAdminDeduct, resp.Category)

	resp, err = admin.AdjustCredits(ctx, &AdjustCreditsRequest{AdminID: 1, UserID: userID, Amount: 7, Reason: "补偿"})
	require.NoError(t, err)
	assert.Equal(t, int64(7), resp.Balance)
	assert.Equal(t, model.LedgerCategoryAdminGrant, resp.Category)
}

func TestBanUser(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	admin := NewAdminService(db, NewBalanceMutator(db))
	userID := nextUserID()

	until, err := admin.BanUser(ctx, &BanRequest{UserID: userID, Duration: "3", Reason: "spam"})
	require.NoError(t, err)
	require.NotNil(t, until)

	until, err = admin.BanUser(ctx, &BanRequest{UserID: userID, Duration: "permanent"})
	require.NoError(t, err)
	assert.Nil(t, until)

	account, err := repository.NewAccountRepository(db).GetByUserID(ctx, userID)
	require.NoError(t, err)
	assert.True(t, account.IsBanned)
	assert.Nil(t, account.BanUntil)

	_, err = admin.BanUser(ctx, &BanRequest{UserID: userID, Duration: "30"})
	assert.ErrorIs(t, err, pricing.ErrInvalidBanDuration)
}

func TestCheckBan(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	admin := NewAdminService(db, NewBalanceMutator(db))
	accounts := repository.NewAccountRepository(db)

	// 没有账户的用户不算封禁
	assert.NoError(t, admin.CheckBan(ctx, nextUserID()))

	userID := nextUserID()
	until, err := admin.BanUser(ctx, &BanRequest{UserID: userID, Duration: "3"})
	require.NoError(t, err)

	err = admin.CheckBan(ctx, userID)
	require.ErrorIs(t, err, ErrUserBanned)
	var banned *BannedError
	require.True(t, errors.As(err, &banned))
	require.NotNil(t, banned.Until)
	assert.WithinDuration(t, *until, *banned.Until, time.Second)

	// 到期后第一次校验自动解除
	admin.now = func() time.Time { return until.Add(time.Minute) }
	assert.NoError(t, admin.CheckBan(ctx, userID))
	account, err := accounts.GetByUserID(ctx, userID)
	require.NoError(t, err)
	assert.False(t, account.IsBanned)
	assert.Nil(t, account.BanUntil)

	// 永久封禁不会过期
	_, err = admin.BanUser(ctx, &BanRequest{UserID: userID, Duration: "permanent"})
	require.NoError(t, err)
	admin.now = func() time.Time { return time.Now().AddDate(10, 0, 0) }
	err = admin.CheckBan(ctx, userID)
	require.True(t, errors.As(err, &banned))
	assert.Nil(t, banned.Until)
}
