package billing

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"crixen/internal/types"
)

func TestLimitsFor_Table(t *testing.T) {
	tests := []struct {
		name string
		tier types.Tier
		want types.Limits
	}{
		{"starter", types.TierStarter, types.Limits{DailyGenerations: 10, MaxProjects: 1, MaxStrategiesPerProject: 3}},
		{"pro", types.TierPro, types.Limits{DailyGenerations: 150, MaxProjects: 3, MaxStrategiesPerProject: 10}},
		{"agency unlimited", types.TierAgency, types.Limits{}},
		{"legacy free maps to starter", types.Tier("free"), types.Limits{DailyGenerations: 10, MaxProjects: 1, MaxStrategiesPerProject: 3}},
		{"unknown maps to starter", types.Tier("platinum"), types.Limits{DailyGenerations: 10, MaxProjects: 1, MaxStrategiesPerProject: 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, LimitsFor(tt.tier))
		})
	}
}

func TestLimitsFor_IsPure(t *testing.T) {
	first := LimitsFor(types.TierPro)
	second := LimitsFor(types.TierPro)
	assert.Equal(t, first, second)
}

func TestTierForAmount(t *testing.T) {
	tests := []struct {
		amount string
		want   types.Tier
	}{
		{"100", types.TierAgency},
		{"100.00", types.TierAgency},
		{"250.50", types.TierAgency},
		{"99.99", types.TierPro},
		{"29.00", types.TierPro},
		{"10", types.TierPro},
		{"9.99", types.TierPro},
		{"0", types.TierPro},
		{"not-a-number", types.TierPro},
		{"", types.TierPro},
	}
	for _, tt := range tests {
		t.Run(tt.amount, func(t *testing.T) {
			assert.Equal(t, tt.want, TierForAmount(tt.amount))
		})
	}
}
