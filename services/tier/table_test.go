package tier

import (
	"testing"
	"time"

	"wavesight-core/pkg/config"
	"wavesight-core/pkg/money"

	"github.com/stretchr/testify/require"
)

func TestComputeProgression(t *testing.T) {
	table := DefaultTable()

	tests := []struct {
		name     string
		trends   int64
		approval float64
		quality  float64
		want     Name
	}{
		{"new user", 0, 0, 0, Learning},
		{"verified boundary", 10, 0.60, 0.60, Verified},
		{"verified volume but low quality", 10, 0.90, 0.59, Learning},
		{"elite", 50, 0.75, 0.72, Elite},
		{"master", 100, 0.80, 0.80, Master},
		{"master volume stuck at elite approval", 500, 0.79, 0.95, Elite},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, table.Compute(tt.trends, tt.approval, tt.quality).Name)
		})
	}
}

func TestComputeNeverSkipsTier(t *testing.T) {
	table, err := NewTable([]config.Tier{
		{Name: "verified", MinTrends: 10, MinApprovalRate: 0.9, MinQualityScore: 0.9},
		{Name: "elite", MinTrends: 50, MinApprovalRate: 0.9, MinQualityScore: 0.9},
		{Name: "master", MinTrends: 100, MinApprovalRate: 0.9, MinQualityScore: 0.9},
	})
	require.NoError(t, err)

	require.Equal(t, Master, table.Compute(100, 0.95, 0.95).Name)

	// meets elite's volume but not verified's approval: stays at learning
	require.Equal(t, Learning, table.Compute(60, 0.85, 0.95).Name)
}

func TestRestrictedOnlyViaModeration(t *testing.T) {
	table := DefaultTable()

	require.NotEqual(t, Restricted, table.Compute(0, 0, 0).Name)

	got := table.ForStats(Stats{TrendsSubmitted: 200, ApprovalRate: 1, QualityScore: 1, Restricted: true})
	require.Equal(t, Restricted, got.Name)
	require.Equal(t, "0.5", got.Multiplier.String())
	require.Equal(t, money.MustParse("10.00"), got.DailyCap)
}

func TestApplyMultiplier(t *testing.T) {
	table := DefaultTable()
	base := money.MustParse("0.25")

	for name, want := range map[Name]string{
		Restricted: "0.13",
		Learning:   "0.25",
		Verified:   "0.38",
		Elite:      "0.50",
		Master:     "0.75",
	} {
		tier, ok := table.Get(name)
		require.True(t, ok)
		require.Equal(t, want, tier.Apply(base).String(), name)
	}
}

func TestProgress(t *testing.T) {
	table := DefaultTable()

	p := table.Progress(Stats{TrendsSubmitted: 12, ApprovalRate: 0.65, QualityScore: 0.75})
	require.Equal(t, Verified, p.Current.Name)
	require.NotNil(t, p.Next)
	require.Equal(t, Elite, p.Next.Name)
	require.Len(t, p.Missing, 2)
	require.Equal(t, "trends_submitted", p.Missing[0].Name)
	require.Equal(t, "approval_rate", p.Missing[1].Name)

	p = table.Progress(Stats{TrendsSubmitted: 100, ApprovalRate: 0.9, QualityScore: 0.9})
	require.Equal(t, Master, p.Current.Name)
	require.Nil(t, p.Next)

	p = table.Progress(Stats{Restricted: true})
	require.Equal(t, Restricted, p.Current.Name)
	require.Nil(t, p.Next)
}

func TestNewTableValidation(t *testing.T) {
	_, err := NewTable([]config.Tier{{Name: "legend"}})
	require.Error(t, err)

	_, err = NewTable([]config.Tier{{Name: "elite", CapWindow: "weekly"}})
	require.Error(t, err)

	_, err = NewTable([]config.Tier{{Name: "verified", MinTrends: 80}})
	require.Error(t, err)

	table, err := NewTable([]config.Tier{{Name: "Master", DailyCap: "10.00", CapWindow: "rolling"}})
	require.NoError(t, err)
	master, _ := table.Get(Master)
	require.Equal(t, money.MustParse("10.00"), master.DailyCap)
	require.Equal(t, WindowRolling, master.CapWindow)
}

func TestWindowStart(t *testing.T) {
	now := time.Date(2026, 10, 16, 15, 30, 0, 0, time.UTC)
	require.Equal(t, time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC), WindowCalendar.Start(now))
	require.Equal(t, now.Add(-24*time.Hour), WindowRolling.Start(now))
}
