package trend

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"wavesight-core/pkg/celengine"
	"wavesight-core/pkg/config"

	"go.uber.org/zap"
)

const (
	StrategyHeuristic = "heuristic"
	StrategyCEL       = "cel"
)

type Scores struct {
	Quality int
	Wave    int
}

// Scorer rates a submission before it is stored. Scores are 0..100.
type Scorer interface {
	Score(category Category, description string, ev Evidence, now time.Time) Scores
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

type HeuristicScorer struct{}

func (HeuristicScorer) Score(_ Category, description string, ev Evidence, now time.Time) Scores {
	return Scores{Quality: qualityScore(description, ev), Wave: waveScore(ev, now)}
}

func qualityScore(description string, ev Evidence) int {
	score := 50
	if ev.HasMedia() {
		score += 15
	}
	if utf8.RuneCountInString(strings.TrimSpace(description)) >= 50 {
		score += 10
	}
	if len(ev.Hashtags) > 0 {
		score += 10
	}
	switch {
	case ev.Views > 100_000:
		score += 15
	case ev.HasEngagement():
		score += 5
	}
	return clamp(score)
}

func waveScore(ev Evidence, now time.Time) int {
	score := 50

	bonus := int(ev.EngagementRate())
	if bonus > 20 {
		bonus = 20
	}
	score += bonus

	switch {
	case ev.Views > 1_000_000:
		score += 20
	case ev.Views > 100_000:
		score += 15
	case ev.Views > 10_000:
		score += 10
	case ev.Views > 1_000:
		score += 5
	}

	if ev.PostedAt != nil {
		age := now.Sub(*ev.PostedAt)
		switch {
		case age < 6*time.Hour:
			score += 10
		case age < 24*time.Hour:
			score += 5
		case age > 72*time.Hour:
			score -= 10
		}
	}

	return clamp(score)
}

type rule struct {
	expression string
	points     int
}

// CELScorer adds the points of every matching rule to a base of 50. The wave score stays heuristic.
type CELScorer struct {
	engine *celengine.Engine
	rules  []rule
}

func attributes(category Category, description string, ev Evidence, now time.Time) map[string]any {
	age := -1.0
	if ev.PostedAt != nil {
		age = now.Sub(*ev.PostedAt).Hours()
	}
	hashtags := ev.Hashtags
	if hashtags == nil {
		hashtags = []string{}
	}

	return map[string]any{
		"category":           string(category),
		"description_length": int64(utf8.RuneCountInString(strings.TrimSpace(description))),
		"has_media":          ev.HasMedia(),
		"hashtags":           hashtags,
		"platform":           strings.ToLower(ev.Platform),
		"views":              ev.Views,
		"likes":              ev.Likes,
		"comments":           ev.Comments,
		"shares":             ev.Shares,
		"engagement_rate":    ev.EngagementRate(),
		"age_hours":          age,
	}
}

func NewCELScorer(rules []config.ScoringRule) (*CELScorer, error) {
	engine, err := celengine.NewEngine(attributes("", "", Evidence{}, time.Time{}))
	if err != nil {
		return nil, err
	}

	s := &CELScorer{engine: engine}
	for _, r := range rules {
		if err := engine.Validate(r.Expression); err != nil {
			return nil, fmt.Errorf("scoring rule %q: %w", r.Expression, err)
		}
		s.rules = append(s.rules, rule{expression: r.Expression, points: r.Points})
	}
	return s, nil
}

func (s *CELScorer) Score(category Category, description string, ev Evidence, now time.Time) Scores {
	attrs := attributes(category, description, ev, now)

	quality := 50
	for _, r := range s.rules {
		ok, err := s.engine.Evaluate(r.expression, attrs)
		if err != nil {
			zap.L().Warn("scoring rule failed", zap.String("expression", r.expression), zap.Error(err))
			continue
		}
		if ok {
			quality += r.points
		}
	}

	return Scores{Quality: clamp(quality), Wave: waveScore(ev, now)}
}

// NewScorer picks the configured strategy.
func NewScorer(cfg *config.Config) (Scorer, error) {
	if cfg == nil {
		return HeuristicScorer{}, nil
	}
	switch strings.ToLower(cfg.Scoring.Strategy) {
	case "", StrategyHeuristic:
		return HeuristicScorer{}, nil
	case StrategyCEL:
		return NewCELScorer(cfg.Scoring.Rules)
	default:
		return nil, fmt.Errorf("unknown scoring strategy %q", cfg.Scoring.Strategy)
	}
}
