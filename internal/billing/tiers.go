// Package billing implements the payment side of the Crixen entitlement
// engine: tier policy, payment intent creation, and webhook reconciliation.
package billing

import (
	"strconv"

	"crixen/internal/types"
)

// tierLimits is the static entitlement table. Zero means no limit.
var tierLimits = map[types.Tier]types.Limits{
	types.TierStarter: {
		DailyGenerations:        10,
		MaxProjects:             1,
		MaxStrategiesPerProject: 3,
	},
	types.TierPro: {
		DailyGenerations:        150,
		MaxProjects:             3,
		MaxStrategiesPerProject: 10,
	},
	types.TierAgency: {
		DailyGenerations:        0,
		MaxProjects:             0,
		MaxStrategiesPerProject: 0,
	},
}

// LimitsFor returns the entitlement limits for a tier. The tier is normalized
// first, so legacy and unknown values resolve to starter limits.
func LimitsFor(tier types.Tier) types.Limits {
	return tierLimits[tier.Normalize()]
}

// Amount thresholds for tier derivation, in whole currency units.
const (
	agencyThreshold = 100
	proThreshold    = 10
)

// TierForAmount derives the granted tier from a payment amount: >= 100 buys
// agency, >= 10 buys pro. Smaller or unparseable amounts also grant pro, so a
// provider reporting a quirky amount on a genuinely successful payment still
// upgrades the customer instead of dropping their money on the floor.
func TierForAmount(amount string) types.Tier {
	v, err := strconv.ParseFloat(amount, 64)
	if err != nil {
		return types.TierPro
	}
	switch {
	case v >= agencyThreshold:
		return types.TierAgency
	case v >= proThreshold:
		return types.TierPro
	default:
		return types.TierPro
	}
}
