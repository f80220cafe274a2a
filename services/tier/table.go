package tier

import (
	"fmt"
	"strings"

	"wavesight-core/pkg/config"
	"wavesight-core/pkg/money"

	"github.com/shopspring/decimal"
)

// Table holds the progression tiers in ascending order plus the out-of-band restricted tier.
type Table struct {
	progression []Tier
	restricted  Tier
}

func defaultTiers() []Tier {
	return []Tier{
		{Name: Restricted, Multiplier: decimal.RequireFromString("0.5"), DailyCap: money.MustParse("10.00"), PerTrendCap: money.MustParse("1.00"), CapWindow: WindowCalendar},
		{Name: Learning, Multiplier: decimal.RequireFromString("1.0"), DailyCap: money.MustParse("20.00"), PerTrendCap: money.MustParse("2.00"), CapWindow: WindowCalendar},
		{Name: Verified, Multiplier: decimal.RequireFromString("1.5"), DailyCap: money.MustParse("30.00"), PerTrendCap: money.MustParse("3.00"), CapWindow: WindowCalendar,
			MinTrends: 10, MinApprovalRate: 0.60, MinQualityScore: 0.60},
		{Name: Elite, Multiplier: decimal.RequireFromString("2.0"), DailyCap: money.MustParse("40.00"), PerTrendCap: money.MustParse("4.00"), CapWindow: WindowCalendar,
			MinTrends: 50, MinApprovalRate: 0.70, MinQualityScore: 0.70},
		{Name: Master, Multiplier: decimal.RequireFromString("3.0"), DailyCap: money.MustParse("50.00"), PerTrendCap: money.MustParse("5.00"), CapWindow: WindowCalendar,
			MinTrends: 100, MinApprovalRate: 0.80, MinQualityScore: 0.80},
	}
}

func DefaultTable() *Table {
	t, _ := build(defaultTiers())
	return t
}

// NewTable overlays configured tiers onto the defaults, matched by name.
func NewTable(overrides []config.Tier) (*Table, error) {
	tiers := defaultTiers()
	index := make(map[Name]int, len(tiers))
	for i, t := range tiers {
		index[t.Name] = i
	}

	for _, o := range overrides {
		name := Name(strings.ToLower(strings.TrimSpace(o.Name)))
		i, ok := index[name]
		if !ok {
			return nil, fmt.Errorf("unknown tier %q", o.Name)
		}
		t := tiers[i]

		if o.Multiplier != "" {
			m, err := decimal.NewFromString(o.Multiplier)
			if err != nil {
				return nil, fmt.Errorf("tier %s multiplier: %w", name, err)
			}
			t.Multiplier = m
		}
		if o.DailyCap != "" {
			v, err := money.Parse(o.DailyCap)
			if err != nil {
				return nil, fmt.Errorf("tier %s daily cap: %w", name, err)
			}
			t.DailyCap = v
		}
		if o.PerTrendCap != "" {
			v, err := money.Parse(o.PerTrendCap)
			if err != nil {
				return nil, fmt.Errorf("tier %s per-trend cap: %w", name, err)
			}
			t.PerTrendCap = v
		}
		switch Window(strings.ToLower(o.CapWindow)) {
		case "":
		case WindowCalendar, WindowRolling:
			t.CapWindow = Window(strings.ToLower(o.CapWindow))
		default:
			return nil, fmt.Errorf("tier %s: unknown cap window %q", name, o.CapWindow)
		}
		if o.MinTrends > 0 {
			t.MinTrends = o.MinTrends
		}
		if o.MinApprovalRate > 0 {
			t.MinApprovalRate = o.MinApprovalRate
		}
		if o.MinQualityScore > 0 {
			t.MinQualityScore = o.MinQualityScore
		}

		tiers[i] = t
	}

	return build(tiers)
}

func build(tiers []Tier) (*Table, error) {
	t := &Table{}
	for _, tier := range tiers {
		if tier.Multiplier.IsNegative() {
			return nil, fmt.Errorf("tier %s: negative multiplier", tier.Name)
		}
		if tier.Name == Restricted {
			t.restricted = tier
			continue
		}
		t.progression = append(t.progression, tier)
	}

	for i := 1; i < len(t.progression); i++ {
		prev, cur := t.progression[i-1], t.progression[i]
		if cur.MinTrends < prev.MinTrends || cur.MinApprovalRate < prev.MinApprovalRate || cur.MinQualityScore < prev.MinQualityScore {
			return nil, fmt.Errorf("tier %s requirements must not be lower than %s", cur.Name, prev.Name)
		}
	}

	return t, nil
}

func (t *Table) Get(name Name) (Tier, bool) {
	if name == Restricted {
		return t.restricted, true
	}
	for _, tier := range t.progression {
		if tier.Name == name {
			return tier, true
		}
	}
	return Tier{}, false
}

func (t *Table) Tiers() []Tier {
	out := make([]Tier, 0, len(t.progression)+1)
	out = append(out, t.restricted)
	return append(out, t.progression...)
}

func meets(tier Tier, trendsSubmitted int64, approvalRate, qualityScore float64) bool {
	return trendsSubmitted >= tier.MinTrends &&
		approvalRate >= tier.MinApprovalRate &&
		qualityScore >= tier.MinQualityScore
}

// Compute walks the progression from learning upward and stops at the first tier whose
// requirements are not all met, so no tier is ever skipped. Restricted is never returned.
func (t *Table) Compute(trendsSubmitted int64, approvalRate, qualityScore float64) Tier {
	current := t.progression[0]
	for _, next := range t.progression[1:] {
		if !meets(next, trendsSubmitted, approvalRate, qualityScore) {
			break
		}
		current = next
	}
	return current
}

// ForStats applies the moderation flag before the progression.
func (t *Table) ForStats(s Stats) Tier {
	if s.Restricted {
		return t.restricted
	}
	return t.Compute(s.TrendsSubmitted, s.ApprovalRate, s.QualityScore)
}

// Progress reports the current tier and the unmet requirements of the next one.
func (t *Table) Progress(s Stats) Progress {
	current := t.ForStats(s)
	p := Progress{Current: current}
	if s.Restricted {
		return p
	}

	for i, tier := range t.progression {
		if tier.Name != current.Name || i+1 >= len(t.progression) {
			continue
		}
		next := t.progression[i+1]
		p.Next = &next

		if s.TrendsSubmitted < next.MinTrends {
			p.Missing = append(p.Missing, Requirement{Name: "trends_submitted", Required: float64(next.MinTrends), Actual: float64(s.TrendsSubmitted)})
		}
		if s.ApprovalRate < next.MinApprovalRate {
			p.Missing = append(p.Missing, Requirement{Name: "approval_rate", Required: next.MinApprovalRate, Actual: s.ApprovalRate})
		}
		if s.QualityScore < next.MinQualityScore {
			p.Missing = append(p.Missing, Requirement{Name: "quality_score", Required: next.MinQualityScore, Actual: s.QualityScore})
		}
	}

	return p
}
