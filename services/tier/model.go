package tier

import (
	"time"

	"wavesight-core/pkg/money"

	"github.com/shopspring/decimal"
)

type Name string

const (
	Restricted Name = "restricted"
	Learning   Name = "learning"
	Verified   Name = "verified"
	Elite      Name = "elite"
	Master     Name = "master"
)

// Window is the daily cap accounting window.
type Window string

const (
	WindowCalendar Window = "calendar"
	WindowRolling  Window = "rolling"
)

// Start returns the beginning of the cap window containing now.
func (w Window) Start(now time.Time) time.Time {
	now = now.UTC()
	if w == WindowRolling {
		return now.Add(-24 * time.Hour)
	}
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

type Tier struct {
	Name            Name            `json:"name"`
	Multiplier      decimal.Decimal `json:"multiplier"`
	DailyCap        money.Amount    `json:"daily_cap"`
	PerTrendCap     money.Amount    `json:"per_trend_cap"`
	CapWindow       Window          `json:"cap_window"`
	MinTrends       int64           `json:"min_trends"`
	MinApprovalRate float64         `json:"min_approval_rate"`
	MinQualityScore float64         `json:"min_quality_score"`
}

// Apply multiplies a base rate by the tier multiplier, rounding the final amount only.
func (t Tier) Apply(base money.Amount) money.Amount {
	return base.Mul(t.Multiplier)
}

// Stats are the inputs of tier computation for one user.
type Stats struct {
	TrendsSubmitted int64   `json:"trends_submitted"`
	TrendsApproved  int64   `json:"trends_approved"`
	TrendsRejected  int64   `json:"trends_rejected"`
	ApprovalRate    float64 `json:"approval_rate"`
	QualityScore    float64 `json:"quality_score"`
	Restricted      bool    `json:"restricted"`
}

type Requirement struct {
	Name     string  `json:"name"`
	Required float64 `json:"required"`
	Actual   float64 `json:"actual"`
}

type Progress struct {
	Current Tier          `json:"current"`
	Next    *Tier         `json:"next,omitempty"`
	Missing []Requirement `json:"missing,omitempty"`
}
