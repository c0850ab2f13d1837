package service

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"creditengine/internal/config"
	"creditengine/internal/events"
	"creditengine/internal/gateway"
	"creditengine/internal/infrastructure/metrics"
	"creditengine/internal/model"
	"creditengine/internal/pricing"
	"creditengine/internal/repository"

	"gorm.io/gorm"
)

// GatewayClient 支付网关查询接口
type GatewayClient interface {
	Secret() string
	FetchOrderAndPayment(ctx context.Context, orderID, paymentID string) (*gateway.Order, *gateway.Payment, error)
}

// VerifyRequest 前端支付成功后回传的三元组
type VerifyRequest struct {
	OrderID   string `json:"razorpay_order_id" binding:"required"`
	PaymentID string `json:"razorpay_payment_id" binding:"required"`
	Signature string `json:"razorpay_signature" binding:"required"`
}

type VerifyResult struct {
	PaymentID        string     `json:"payment_id"`
	PaymentType      string     `json:"payment_type"`
	Applied          bool       `json:"applied"`
	AlreadyProcessed bool       `json:"already_processed"`
	CreditsAdded     int64      `json:"credits_added,omitempty"`
	Balance          *int64     `json:"balance,omitempty"`
	PremiumUntil     *time.Time `json:"premium_until,omitempty"`
}

// PaymentService 支付回调入账：积分套餐、会员订阅、付费解封
//
// 网关查询在事务外完成；入账通过 SettlementGuard 保证同一个 payment_id 只生效一次
type PaymentService struct {
	gateway     GatewayClient
	guard       *SettlementGuard
	catalog     *pricing.Catalog
	mutator     *BalanceMutator
	quota       *QuotaTracker
	accountRepo *repository.AccountRepository
	outboxRepo  *repository.OutboxRepository
	economy     config.EconomyConfig
	topic       string
}

func NewPaymentService(db *gorm.DB, cfg *config.Config, gw GatewayClient, catalog *pricing.Catalog,
	mutator *BalanceMutator, quota *QuotaTracker) *PaymentService {
	return &PaymentService{
		gateway:     gw,
		guard:       NewSettlementGuard(db),
		catalog:     catalog,
		mutator:     mutator,
		quota:       quota,
		accountRepo: repository.NewAccountRepository(db),
		outboxRepo:  repository.NewOutboxRepository(db),
		economy:     cfg.Economy,
		topic:       cfg.Kafka.Topic.Payment,
	}
}

// GetReceipt 查询当前用户的支付回执，用于前端确认支付是否已入账
// 不属于该用户的回执按不存在处理
func (s *PaymentService) GetReceipt(ctx context.Context, userID int64, paymentID string) (*model.PaymentReceipt, error) {
	receipt, err := s.guard.receiptRepo.GetByPaymentID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if receipt.UserID != userID {
		return nil, repository.ErrReceiptNotFound
	}
	return receipt, nil
}

// verify 签名、支付状态、订单归属和金额校验
func (s *PaymentService) verify(ctx context.Context, userID int64, req *VerifyRequest) (*gateway.Order, *gateway.Payment, error) {
	if !gateway.VerifySignature(s.gateway.Secret(), req.OrderID, req.PaymentID, req.Signature) {
		return nil, nil, ErrInvalidSignature
	}

	order, payment, err := s.gateway.FetchOrderAndPayment(ctx, req.OrderID, req.PaymentID)
	if err != nil {
		return nil, nil, err
	}

	if payment.Status != gateway.PaymentStatusCaptured {
		return nil, nil, ErrPaymentNotCaptured
	}
	if payment.OrderID != req.OrderID {
		log.Printf("支付单与订单不匹配: paymentID=%s, orderID=%s, payment.orderID=%s", req.PaymentID, req.OrderID, payment.OrderID)
		return nil, nil, ErrOwnershipMismatch
	}
	owner := order.Notes["user_id"]
	if owner == "" || owner != strconv.FormatInt(userID, 10) {
		log.Printf("订单不属于当前用户: orderID=%s, owner=%s, userID=%d", req.OrderID, owner, userID)
		return nil, nil, ErrOwnershipMismatch
	}
	if payment.Amount != order.Amount {
		log.Printf("支付金额与订单金额不一致: orderID=%s, order=%d, payment=%d", req.OrderID, order.Amount, payment.Amount)
		return nil, nil, ErrOwnershipMismatch
	}
	return order, payment, nil
}

func (s *PaymentService) checkPrice(order *gateway.Order, expected int64) error {
	if order.Amount != expected {
		log.Printf("订单金额与价目表不一致: orderID=%s, amount=%d, expected=%d", order.ID, order.Amount, expected)
		return ErrOwnershipMismatch
	}
	return nil
}

// VerifyCreditPurchase 积分套餐入账
func (s *PaymentService) VerifyCreditPurchase(ctx context.Context, userID int64, req *VerifyRequest) (*VerifyResult, error) {
	order, payment, err := s.verify(ctx, userID, req)
	if err != nil {
		return nil, s.reject(model.PaymentTypeCredits, err)
	}

	packageID := order.Notes["package_type"]
	pkg, err := s.catalog.Package(packageID)
	if err != nil {
		return nil, s.reject(model.PaymentTypeCredits, err)
	}
	if err := s.checkPrice(order, pkg.Price); err != nil {
		return nil, s.reject(model.PaymentTypeCredits, err)
	}

	result := &VerifyResult{PaymentID: req.PaymentID, PaymentType: model.PaymentTypeCredits}
	receipt := s.receipt(userID, req, payment, model.PaymentTypeCredits, packageID)
	credits := pkg.Total()

	settled, err := s.guard.Settle(ctx, receipt, func(tx *gorm.DB) error {
		balance, err := s.mutator.Adjust(ctx, tx, userID, credits, model.LedgerCategoryPurchased,
			fmt.Sprintf("购买积分-%s-%d", pkg.Name, order.Amount/100))
		if err != nil {
			return err
		}
		result.Balance = &balance
		result.CreditsAdded = credits
		return s.writeSettled(ctx, tx, userID, receipt, map[string]interface{}{
			"package": packageID,
			"credits": credits,
		})
	})
	if err != nil {
		return nil, s.reject(model.PaymentTypeCredits, err)
	}

	return s.finish(result, settled, userID), nil
}

// VerifyPremiumPurchase 开通或续费会员，并赠送积分
func (s *PaymentService) VerifyPremiumPurchase(ctx context.Context, userID int64, req *VerifyRequest) (*VerifyResult, error) {
	order, payment, err := s.verify(ctx, userID, req)
	if err != nil {
		return nil, s.reject(model.PaymentTypePremium, err)
	}
	if err := s.checkPrice(order, s.economy.PremiumPrice); err != nil {
		return nil, s.reject(model.PaymentTypePremium, err)
	}

	result := &VerifyResult{PaymentID: req.PaymentID, PaymentType: model.PaymentTypePremium}
	receipt := s.receipt(userID, req, payment, model.PaymentTypePremium, "")

	settled, err := s.guard.Settle(ctx, receipt, func(tx *gorm.DB) error {
		until, err := s.quota.NextEndDate(ctx, tx, userID, s.economy.PremiumMonths)
		if err != nil {
			return fmt.Errorf("计算会员到期时间失败: %w", err)
		}
		sub, err := s.quota.Renew(ctx, tx, userID, until, req.PaymentID)
		if err != nil {
			return err
		}
		if err := s.accountRepo.Ensure(ctx, tx, userID); err != nil {
			return err
		}
		if err := s.accountRepo.SetPremium(ctx, tx, userID, &sub.ID, true); err != nil {
			return fmt.Errorf("更新会员状态失败: %w", err)
		}
		balance, err := s.mutator.Adjust(ctx, tx, userID, s.economy.PremiumBonusCredits, model.LedgerCategoryEarned, "会员赠送积分")
		if err != nil {
			return err
		}
		result.Balance = &balance
		result.CreditsAdded = s.economy.PremiumBonusCredits
		result.PremiumUntil = &sub.EndDate
		return s.writeSettled(ctx, tx, userID, receipt, map[string]interface{}{
			"end_date":      sub.EndDate,
			"bonus_credits": s.economy.PremiumBonusCredits,
		})
	})
	if err != nil {
		return nil, s.reject(model.PaymentTypePremium, err)
	}

	return s.finish(result, settled, userID), nil
}

// VerifyUnbanPayment 付费解封
func (s *PaymentService) VerifyUnbanPayment(ctx context.Context, userID int64, req *VerifyRequest) (*VerifyResult, error) {
	order, payment, err := s.verify(ctx, userID, req)
	if err != nil {
		return nil, s.reject(model.PaymentTypeUnban, err)
	}

	duration := order.Notes["ban_duration"]
	price, err := s.catalog.UnbanPrice(duration)
	if err != nil {
		return nil, s.reject(model.PaymentTypeUnban, err)
	}
	if err := s.checkPrice(order, price); err != nil {
		return nil, s.reject(model.PaymentTypeUnban, err)
	}

	result := &VerifyResult{PaymentID: req.PaymentID, PaymentType: model.PaymentTypeUnban}
	receipt := s.receipt(userID, req, payment, model.PaymentTypeUnban, duration)

	settled, err := s.guard.Settle(ctx, receipt, func(tx *gorm.DB) error {
		if err := s.accountRepo.Ensure(ctx, tx, userID); err != nil {
			return err
		}
		if err := s.accountRepo.LiftBan(ctx, tx, userID); err != nil {
			return fmt.Errorf("解除封禁失败: %w", err)
		}
		return s.writeSettled(ctx, tx, userID, receipt, map[string]interface{}{
			"ban_duration": duration,
		})
	})
	if err != nil {
		return nil, s.reject(model.PaymentTypeUnban, err)
	}

	return s.finish(result, settled, userID), nil
}

func (s *PaymentService) receipt(userID int64, req *VerifyRequest, payment *gateway.Payment, paymentType, detail string) *model.PaymentReceipt {
	return &model.PaymentReceipt{
		PaymentID:   req.PaymentID,
		OrderID:     req.OrderID,
		UserID:      userID,
		PaymentType: paymentType,
		Amount:      payment.Amount,
		Detail:      detail,
	}
}

// writeSettled 入账事件和入账本身同事务写入 outbox
func (s *PaymentService) writeSettled(ctx context.Context, tx *gorm.DB, userID int64, receipt *model.PaymentReceipt, data map[string]interface{}) error {
	data["payment_id"] = receipt.PaymentID
	data["payment_type"] = receipt.PaymentType
	data["amount"] = receipt.Amount
	msg, err := events.NewOutboxMessage(s.topic, events.Event{
		Type:   model.EventPaymentSettled,
		UserID: userID,
		Data:   data,
	})
	if err != nil {
		return fmt.Errorf("序列化入账事件失败: %w", err)
	}
	if err := s.outboxRepo.Create(ctx, tx, msg); err != nil {
		return fmt.Errorf("写入本地消息表失败: %w", err)
	}
	return nil
}

func (s *PaymentService) finish(result *VerifyResult, settled SettleResult, userID int64) *VerifyResult {
	result.Applied = settled.Applied
	result.AlreadyProcessed = settled.AlreadyProcessed
	if settled.AlreadyProcessed {
		result.Balance = nil
		result.CreditsAdded = 0
		result.PremiumUntil = nil
		metrics.Settlements.WithLabelValues(result.PaymentType, "already_processed").Inc()
		log.Printf("支付已处理过: paymentID=%s, userID=%d", result.PaymentID, userID)
		return result
	}
	metrics.Settlements.WithLabelValues(result.PaymentType, "applied").Inc()
	log.Printf("支付入账成功: type=%s, paymentID=%s, userID=%d", result.PaymentType, result.PaymentID, userID)
	return result
}

func (s *PaymentService) reject(paymentType string, err error) error {
	metrics.Settlements.WithLabelValues(paymentType, "rejected").Inc()
	log.Printf("支付校验失败: type=%s, err=%v", paymentType, err)
	return err
}
