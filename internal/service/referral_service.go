package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	"github.com/leadgrid/leadgrid-api/internal/models"
	"github.com/leadgrid/leadgrid-api/internal/repository"
)

// ReferralService credits affiliate commission for completed orders
// that carry a promotion code.
type ReferralService struct {
	repos  *repository.Repositories
	logger *slog.Logger
}

func NewReferralService(repos *repository.Repositories, logger *slog.Logger) *ReferralService {
	return &ReferralService{repos: repos, logger: logger}
}

// Attribute resolves the order's referral code to an agent and credits
// commission. Best-effort: every failure is logged and swallowed, so a
// broken promotion code never affects the customer-facing outcome. The
// product-order audit row doubles as the idempotency guard.
func (s *ReferralService) Attribute(ctx context.Context, order *models.Order) {
	if order.ReferralCode == "" {
		return
	}

	has, err := s.repos.Affiliate.HasCommission(ctx, order.ID)
	if err != nil {
		s.logger.Error("referral idempotency check failed", "order_id", order.ID, "error", err)
		return
	}
	if has {
		return
	}

	parsed, err := models.ParseReferralCode(order.ReferralCode)
	if err != nil {
		s.logger.Warn("unparseable referral code",
			"order_id", order.ID, "referral_code", order.ReferralCode, "error", err)
		return
	}

	agentCode, rate, promotionCode, ok := s.resolveRate(ctx, order.ReferralCode, parsed.AgentCode)
	if !ok {
		s.logger.Warn("referral code matches no promotion or agent",
			"order_id", order.ID, "referral_code", order.ReferralCode)
		return
	}

	commission := order.Amount.Mul(rate).Round(2)
	po := &models.ProductOrder{
		ID:            ulid.Make().String(),
		OrderID:       order.ID,
		AgentCode:     agentCode,
		PromotionCode: promotionCode,
		ProductID:     order.ProductID,
		Price:         order.Amount,
		Rate:          rate,
		Commission:    commission,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.repos.Affiliate.CreditCommission(ctx, po); err != nil {
		s.logger.Error("commission credit failed",
			"order_id", order.ID, "agent_code", agentCode, "error", err)
		return
	}

	s.logger.Info("commission credited",
		"order_id", order.ID,
		"agent_code", agentCode,
		"commission", commission.String(),
	)
}

// resolveRate prefers a direct promotion-code match (per-campaign rate)
// and falls back to the agent's flat default rate.
func (s *ReferralService) resolveRate(ctx context.Context, fullCode, agentCode string) (string, decimal.Decimal, string, bool) {
	promo, err := s.repos.Affiliate.GetPromotion(ctx, fullCode)
	if err != nil {
		s.logger.Error("promotion lookup failed", "code", fullCode, "error", err)
		return "", decimal.Zero, "", false
	}
	if promo != nil {
		return promo.AgentCode, promo.Rate, promo.Code, true
	}

	agent, err := s.repos.Affiliate.GetAgent(ctx, agentCode)
	if err != nil {
		s.logger.Error("agent lookup failed", "code", agentCode, "error", err)
		return "", decimal.Zero, "", false
	}
	if agent == nil {
		return "", decimal.Zero, "", false
	}
	return agent.Code, agent.DefaultRate, "", true
}
