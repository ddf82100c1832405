package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultDunningConfigLadder(t *testing.T) {
	cfg := DefaultDunningConfig()
	require.Len(t, cfg.Tiers, 4)

	require.Equal(t, DunningTier{Tier: 1, MinDaysOverdue: 1, MinDaysSinceLast: 0}, cfg.Tiers[0])
	require.Equal(t, DunningTier{Tier: 2, MinDaysOverdue: 7, MinDaysSinceLast: 6}, cfg.Tiers[1])
	require.Equal(t, DunningTier{Tier: 3, MinDaysOverdue: 15, MinDaysSinceLast: 7}, cfg.Tiers[2])
	require.Equal(t, DunningTier{Tier: 4, MinDaysOverdue: 30, MinDaysSinceLast: 14}, cfg.Tiers[3])
	require.Equal(t, 4, cfg.MaxTier())
	require.Equal(t, 0, DunningConfig{}.MaxTier())
}

func TestStaticHolderServesNormalizedLadder(t *testing.T) {
	holder, err := NewStaticDunningConfigHolder(DunningConfig{
		Tiers: []DunningTier{
			{Tier: 3, MinDaysOverdue: 15, MinDaysSinceLast: 7},
			{Tier: 1, MinDaysOverdue: 1},
			{Tier: 2, MinDaysOverdue: 7, MinDaysSinceLast: 6},
		},
	})
	require.NoError(t, err)

	got := holder.Get()
	require.Equal(t, []int{1, 2, 3}, []int{got.Tiers[0].Tier, got.Tiers[1].Tier, got.Tiers[2].Tier})
}

func TestStaticHolderRejectsInvalidLadders(t *testing.T) {
	cases := []struct {
		name string
		cfg  DunningConfig
	}{
		{"empty", DunningConfig{}},
		{"tier below one", DunningConfig{Tiers: []DunningTier{{Tier: 0, MinDaysOverdue: 1}}}},
		{"duplicate tier", DunningConfig{Tiers: []DunningTier{
			{Tier: 1, MinDaysOverdue: 1},
			{Tier: 1, MinDaysOverdue: 7},
		}}},
		{"negative overdue threshold", DunningConfig{Tiers: []DunningTier{{Tier: 1, MinDaysOverdue: -1}}}},
		{"negative spacing threshold", DunningConfig{Tiers: []DunningTier{{Tier: 1, MinDaysOverdue: 1, MinDaysSinceLast: -2}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewStaticDunningConfigHolder(tc.cfg)
			require.Error(t, err)
		})
	}
}
