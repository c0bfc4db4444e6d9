package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSettlement() SettlementConfig {
	return SettlementConfig{
		PlatformMerchantID: 1,
		PlatformShare:      0.80,
		Allocations: map[string]float64{
			"public_welfare": 0.01,
			"maintain":       0.01,
			"subsidy_pool":   0.12,
			"director":       0.02,
			"shop":           0.01,
			"city":           0.01,
			"branch":         0.005,
			"fund":           0.015,
		},
		PointsDiscountRate: 0.01,
		TaxRate:            0.06,
	}
}

func TestSettlementConfig_Validate(t *testing.T) {
	cfg := validSettlement()
	require.NoError(t, cfg.Validate())
}

func TestSettlementConfig_Validate_SumMismatch(t *testing.T) {
	cfg := validSettlement()
	cfg.Allocations["subsidy_pool"] = 0.20
	assert.Error(t, cfg.Validate())

	cfg = validSettlement()
	cfg.PlatformShare = 0.75
	assert.Error(t, cfg.Validate())
}

func TestSettlementConfig_Validate_Rejections(t *testing.T) {
	cfg := validSettlement()
	cfg.Allocations = nil
	assert.Error(t, cfg.Validate(), "未配置分账比例")

	cfg = validSettlement()
	cfg.Allocations["shop"] = -0.01
	assert.Error(t, cfg.Validate(), "负比例")

	cfg = validSettlement()
	cfg.PointsDiscountRate = 0
	assert.Error(t, cfg.Validate(), "积分抵扣比例为0")

	cfg = validSettlement()
	cfg.TaxRate = 1.5
	assert.Error(t, cfg.Validate(), "税率越界")
}
