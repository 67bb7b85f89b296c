package lifecycle

import (
	"github.com/shopspring/decimal"

	"link2ur.backend/internal/domain/entities"
)

// Thresholds are the reward levels at which tasks become vip or super.
type Thresholds struct {
	VIP   decimal.Decimal
	Super decimal.Decimal
}

// DeriveTaskLevel computes task_level at creation. Boundaries are inclusive.
func DeriveTaskLevel(posterTier entities.UserTier, baseReward decimal.Decimal, th Thresholds) entities.TaskLevel {
	if posterTier == entities.UserTierSuper || baseReward.GreaterThanOrEqual(th.Super) {
		return entities.UserTierSuper
	}
	if baseReward.GreaterThanOrEqual(th.VIP) {
		return entities.UserTierVIP
	}
	return entities.UserTierNormal
}

// CanTakeLevel reports whether a user of tier may accept a task of level.
func CanTakeLevel(tier entities.UserTier, level entities.TaskLevel) bool {
	return tier.Rank() >= level.Rank()
}
