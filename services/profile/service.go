package profile

import (
	"context"
	"fmt"
	"time"

	"wavesight-core/pkg/logger"
	"wavesight-core/pkg/repository"
	"wavesight-core/services/ledger"
	"wavesight-core/services/tier"
	"wavesight-core/services/trend"
	"wavesight-core/services/validation"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Service struct {
	db *gorm.DB
	now      func() time.Time
	table    *tier.Table
	ledger   *ledger.Service
	profiles repository.Repository[Profile]
	group    singleflight.Group
}

type ServiceParams struct {
	fx.In

	DB     *gorm.DB
	Table  *tier.Table
	Ledger *ledger.Service
	Clock  func() time.Time `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	now := p.Clock
	if now == nil {
		now = time.Now
	}
	return &Service{
		db:       p.DB,
		now:      now,
		table:    p.Table,
		ledger:   p.Ledger,
		profiles: repository.ProvideStore[Profile](p.DB),
	}
}

func (s *Service) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return s.db
}

type trendCounts struct {
	Submitted  int64
	Approved   int64
	Rejected   int64
	AvgQuality float64
}

func (s *Service) trendCounts(ctx context.Context, tx *gorm.DB, userID string) (trendCounts, error) {
	var c trendCounts
	err := s.conn(tx).WithContext(ctx).Model(&trend.Trend{}).
		Select(`COUNT(*) AS submitted,
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS approved,
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS rejected,
			COALESCE(AVG(quality_score), 0) AS avg_quality`,
			trend.StatusApproved, trend.StatusRejected).
		Where("spotter_id = ? AND status <> ?", userID, trend.StatusCancelled).
		Scan(&c).Error
	return c, err
}

func (s *Service) restricted(ctx context.Context, tx *gorm.DB, userID string) (bool, error) {
	p, err := s.profiles.WithTrx(tx).FindOne(ctx, &Profile{UserID: userID})
	if err != nil {
		return false, err
	}
	return p != nil && p.Restricted, nil
}

func (s *Service) stats(ctx context.Context, tx *gorm.DB, userID string) (tier.Stats, error) {
	c, err := s.trendCounts(ctx, tx, userID)
	if err != nil {
		return tier.Stats{}, err
	}
	restricted, err := s.restricted(ctx, tx, userID)
	if err != nil {
		return tier.Stats{}, err
	}

	st := tier.Stats{
		TrendsSubmitted: c.Submitted,
		TrendsApproved:  c.Approved,
		TrendsRejected:  c.Rejected,
		QualityScore:    c.AvgQuality / 100,
		Restricted:      restricted,
	}
	if resolved := c.Approved + c.Rejected; resolved > 0 {
		st.ApprovalRate = float64(c.Approved) / float64(resolved)
	}
	return st, nil
}

// Stats computes the tier inputs. Calls outside a transaction are collapsed per user.
func (s *Service) Stats(ctx context.Context, tx *gorm.DB, userID string) (tier.Stats, error) {
	if tx != nil {
		return s.stats(ctx, tx, userID)
	}
	v, err, _ := s.group.Do("stats:"+userID, func() (any, error) {
		return s.stats(ctx, nil, userID)
	})
	if err != nil {
		return tier.Stats{}, err
	}
	return v.(tier.Stats), nil
}

func (s *Service) TierFor(ctx context.Context, tx *gorm.DB, userID string) (tier.Tier, error) {
	st, err := s.Stats(ctx, tx, userID)
	if err != nil {
		logger.Ctx(ctx).Error("failed to compute tier stats", zap.String("user_id", userID), zap.Error(err))
		return tier.Tier{}, err
	}
	return s.table.ForStats(st), nil
}

func (s *Service) ComputeTier(ctx context.Context, userID string) (*TierReport, error) {
	st, err := s.Stats(ctx, nil, userID)
	if err != nil {
		return nil, err
	}
	p := s.table.Progress(st)
	return &TierReport{UserID: userID, Tier: p.Current, Stats: st, Next: p.Next, Missing: p.Missing}, nil
}

type accuracyRow struct {
	Total   int64
	Matched int64
}

// accuracy is the share of the user's votes on resolved trends that agreed with the outcome.
func (s *Service) accuracy(ctx context.Context, userID string) (int64, float64, error) {
	var completed int64
	if err := s.db.WithContext(ctx).Model(&validation.Vote{}).Where("validator_id = ?", userID).Count(&completed).Error; err != nil {
		return 0, 0, err
	}

	var row accuracyRow
	err := s.db.WithContext(ctx).
		Table(fmt.Sprintf("%s AS v", validation.Vote{}.TableName())).
		Joins(fmt.Sprintf("JOIN %s AS t ON t.id = v.trend_id", trend.Trend{}.TableName())).
		Select(`COUNT(*) AS total,
			COALESCE(SUM(CASE WHEN (v.vote IN ? AND t.status = ?) OR (v.vote = ? AND t.status = ?) THEN 1 ELSE 0 END), 0) AS matched`,
			[]validation.VoteValue{validation.VoteVerify, validation.VoteApprove}, trend.StatusApproved,
			validation.VoteReject, trend.StatusRejected).
		Where("v.validator_id = ? AND t.status IN ?", userID, []trend.Status{trend.StatusApproved, trend.StatusRejected}).
		Scan(&row).Error
	if err != nil {
		return 0, 0, err
	}

	if row.Total == 0 {
		return completed, 0, nil
	}
	return completed, float64(row.Matched) / float64(row.Total), nil
}

// Rebuild recomputes the cached profile from the ledger and the trend and vote tables.
func (s *Service) Rebuild(ctx context.Context, userID string) (*Profile, error) {
	balance, err := s.ledger.Balance(ctx, userID)
	if err != nil {
		return nil, err
	}
	st, err := s.Stats(ctx, nil, userID)
	if err != nil {
		return nil, err
	}
	completed, accuracy, err := s.accuracy(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC().Truncate(time.Millisecond)
	p := &Profile{
		UserID:               userID,
		PerformanceTier:      s.table.ForStats(st).Name,
		PendingEarnings:      balance.Pending,
		ApprovedEarnings:     balance.Approved,
		PaidEarnings:         balance.Paid,
		TrendsSubmitted:      st.TrendsSubmitted,
		TrendsApproved:       st.TrendsApproved,
		TrendsRejected:       st.TrendsRejected,
		ValidationsCompleted: completed,
		ApprovalRate:         st.ApprovalRate,
		QualityScore:         st.QualityScore,
		AccuracyScore:        accuracy,
		Restricted:           st.Restricted,
		RebuiltAt:            now,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"performance_tier", "pending_earnings", "approved_earnings", "paid_earnings",
			"trends_submitted", "trends_approved", "trends_rejected", "validations_completed",
			"approval_rate", "quality_score", "accuracy_score", "rebuilt_at", "updated_at",
		}),
	}).Create(p).Error
	if err != nil {
		logger.Ctx(ctx).Error("failed to store profile", zap.String("user_id", userID), zap.Error(err))
		return nil, err
	}

	return s.profiles.FindOne(ctx, &Profile{UserID: userID})
}

// Get returns the cached profile, rebuilding it when the ledger or the user's trends moved since the last rebuild.
func (s *Service) Get(ctx context.Context, userID string) (*Profile, error) {
	p, err := s.profiles.FindOne(ctx, &Profile{UserID: userID})
	if err != nil {
		return nil, err
	}

	if p != nil {
		stale, err := s.stale(ctx, userID, p.RebuiltAt)
		if err != nil {
			return nil, err
		}
		if !stale {
			return p, nil
		}
	}

	return s.Rebuild(ctx, userID)
}

// stale reports whether a ledger entry or a trend outcome landed at or after rebuiltAt. Trend updates
// matter on their own because a zero-credit rejection writes no ledger entry.
func (s *Service) stale(ctx context.Context, userID string, rebuiltAt time.Time) (bool, error) {
	latest, err := s.ledger.LatestEntryAt(ctx, userID)
	if err != nil {
		return false, err
	}
	if !latest.IsZero() && !latest.Before(rebuiltAt) {
		return true, nil
	}

	var last trend.Trend
	err = s.db.WithContext(ctx).
		Select("id", "updated_at").
		Where("spotter_id = ?", userID).
		Order("updated_at DESC").
		Limit(1).
		Find(&last).Error
	if err != nil {
		return false, err
	}
	return last.ID != "" && !last.UpdatedAt.Before(rebuiltAt), nil
}

// SetRestricted applies or lifts the moderation restriction and refreshes the cache.
func (s *Service) SetRestricted(ctx context.Context, userID string, restricted bool) (*Profile, error) {
	now := s.now().UTC().Truncate(time.Millisecond)
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"restricted", "updated_at"}),
	}).Create(&Profile{
		UserID:          userID,
		PerformanceTier: tier.Learning,
		Restricted:      restricted,
		CreatedAt:       now,
		UpdatedAt:       now,
	}).Error
	if err != nil {
		return nil, err
	}

	logger.Ctx(ctx).Info("user restriction changed", zap.String("user_id", userID), zap.Bool("restricted", restricted))
	return s.Rebuild(ctx, userID)
}
