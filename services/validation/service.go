package validation

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"wavesight-core/pkg/config"
	"wavesight-core/pkg/db/option"
	"wavesight-core/pkg/db/pagination"
	"wavesight-core/pkg/errutil"
	"wavesight-core/pkg/logger"
	"wavesight-core/pkg/metrics"
	"wavesight-core/pkg/money"
	"wavesight-core/pkg/repository"
	"wavesight-core/pkg/task"
	"wavesight-core/services/ledger"
	"wavesight-core/services/trend"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxFeedbackLength = 1000

var (
	ErrDuplicateVote  = errors.New("validator already voted on this trend")
	ErrSelfValidation = errors.New("validators cannot vote on their own trend")
	ErrInvalidVote    = errors.New("invalid vote")
)

type Service struct {
	db    *gorm.DB
	node  *snowflake.Node
	now   func() time.Time
	votes repository.Repository[Vote]

	trends   *trend.Service
	ledger   *ledger.Service
	tiers    trend.TierResolver
	enqueuer task.Enqueuer

	approvalThreshold  int64
	rejectionThreshold int64
	validationReward   money.Amount
	approvalBonus      money.Amount
}

type ServiceParams struct {
	fx.In

	DB       *gorm.DB
	Node     *snowflake.Node
	Config   *config.Config
	Trends   *trend.Service
	Ledger   *ledger.Service
	Tiers    trend.TierResolver
	Enqueuer task.Enqueuer    `optional:"true"`
	Clock    func() time.Time `optional:"true"`
}

func NewService(p ServiceParams) (*Service, error) {
	s := &Service{
		db:                 p.DB,
		node:               p.Node,
		now:                p.Clock,
		votes:              repository.ProvideStore[Vote](p.DB),
		trends:             p.Trends,
		ledger:             p.Ledger,
		tiers:              p.Tiers,
		enqueuer:           p.Enqueuer,
		approvalThreshold:  2,
		rejectionThreshold: 2,
		validationReward:   money.MustParse("0.02"),
		approvalBonus:      money.MustParse("0.50"),
	}
	if s.now == nil {
		s.now = time.Now
	}

	if cfg := p.Config; cfg != nil {
		if cfg.Consensus.ApprovalThreshold > 0 {
			s.approvalThreshold = int64(cfg.Consensus.ApprovalThreshold)
		}
		if cfg.Consensus.RejectionThreshold > 0 {
			s.rejectionThreshold = int64(cfg.Consensus.RejectionThreshold)
		}
		if cfg.Earnings.Validation != "" {
			v, err := money.Parse(cfg.Earnings.Validation)
			if err != nil {
				return nil, err
			}
			s.validationReward = v
		}
		if cfg.Earnings.ApprovalBonus != "" {
			v, err := money.Parse(cfg.Earnings.ApprovalBonus)
			if err != nil {
				return nil, err
			}
			s.approvalBonus = v
		}
	}

	return s, nil
}

func invalidVote(field, message string) error {
	return errutil.ValidationFailed("invalid vote", ErrInvalidVote,
		errutil.WithDetails(errutil.Detail{Field: field, Message: message}))
}

func refuse(reason string, err error) error {
	metrics.VotesRejected.WithLabelValues(reason).Inc()
	return err
}

// CastVote records one vote, pays the validator and runs the consensus evaluation, all in one transaction
// holding the trend row lock.
func (s *Service) CastVote(ctx context.Context, req CastRequest) (*CastResult, error) {
	value, ok := ParseVote(req.Vote)
	if !ok {
		return nil, invalidVote("vote", "must be one of verify, approve, reject")
	}
	if req.QualityScore != nil && (*req.QualityScore < 0 || *req.QualityScore > 10) {
		return nil, invalidVote("quality_score", "must be between 0 and 10")
	}
	if utf8.RuneCountInString(req.Feedback) > maxFeedbackLength {
		return nil, invalidVote("feedback", "must be at most 1000 characters")
	}
	if req.ValidatorID == "" {
		return nil, invalidVote("validator_id", "is required")
	}

	result := &CastResult{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		t, err := s.trends.Lock(ctx, tx, req.TrendID)
		if err != nil {
			return err
		}

		if t.SpotterID == req.ValidatorID {
			return refuse("self", errutil.Forbidden("cannot validate your own trend", ErrSelfValidation))
		}

		prior, err := s.votes.WithTrx(tx).FindOne(ctx, &Vote{TrendID: t.ID, ValidatorID: req.ValidatorID})
		if err != nil {
			return err
		}
		if prior != nil {
			return refuse("duplicate", errutil.Conflict("already voted on this trend", ErrDuplicateVote))
		}

		if !t.Status.Open() {
			return refuse("closed", trend.InvalidState(t))
		}

		vote := &Vote{
			ID:           s.node.Generate().String(),
			TrendID:      t.ID,
			ValidatorID:  req.ValidatorID,
			Vote:         value,
			QualityScore: req.QualityScore,
			Feedback:     req.Feedback,
			CreatedAt:    s.now().UTC().Truncate(time.Millisecond),
		}
		if err := s.votes.WithTrx(tx).Create(ctx, vote); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return refuse("duplicate", errutil.Conflict("already voted on this trend", ErrDuplicateVote))
			}
			return err
		}
		result.Vote = vote

		updated, err := s.trends.CountVote(ctx, tx, t.ID, value.Approves())
		if err != nil {
			return err
		}

		validatorTier, err := s.tiers.TierFor(ctx, tx, req.ValidatorID)
		if err != nil {
			return err
		}
		reward, err := s.ledger.Append(ctx, tx, ledger.AppendParams{
			UserID:      req.ValidatorID,
			Type:        ledger.TypeValidation,
			Status:      ledger.StatusApproved,
			Amount:      validatorTier.Apply(s.validationReward),
			ReferenceID: vote.ID,
			Description: "validation of " + updated.Code,
			Key:         ledger.CreditKey(ledger.TypeValidation, vote.ID),
		})
		if err != nil {
			return err
		}
		result.LedgerEntries = append(result.LedgerEntries, reward)

		settled, err := s.evaluate(ctx, tx, updated)
		if err != nil {
			return err
		}
		result.LedgerEntries = append(result.LedgerEntries, settled...)

		result.Trend, err = s.trends.Lock(ctx, tx, t.ID)
		return err
	})
	if err != nil {
		if errutil.StatusOf(err) == errutil.StatusInternal {
			logger.Ctx(ctx).Error("failed to cast vote", zap.String("trend_id", req.TrendID), zap.Error(err))
		}
		return nil, err
	}

	metrics.VotesCast.WithLabelValues(string(value)).Inc()
	task.RebuildProfiles(ctx, s.enqueuer, req.ValidatorID, result.Trend.SpotterID)

	logger.Ctx(ctx).Info("vote cast",
		zap.String("trend_id", result.Trend.ID),
		zap.String("validator_id", req.ValidatorID),
		zap.String("vote", string(value)),
		zap.String("status", string(result.Trend.Status)),
	)
	return result, nil
}

// evaluate resolves an open trend whose counters reached a threshold. Closed trends are left untouched.
func (s *Service) evaluate(ctx context.Context, tx *gorm.DB, t *trend.Trend) ([]*ledger.Entry, error) {
	if t.Status.Terminal() {
		return nil, nil
	}

	switch {
	case t.ApproveCount >= s.approvalThreshold:
		return s.approve(ctx, tx, t)
	case t.RejectCount >= s.rejectionThreshold:
		return s.reject(ctx, tx, t)
	}
	return nil, nil
}

func (s *Service) approve(ctx context.Context, tx *gorm.DB, t *trend.Trend) ([]*ledger.Entry, error) {
	changed, err := s.trends.Transition(ctx, tx, t.ID, trend.StatusApproved)
	if err != nil || !changed {
		return nil, err
	}

	spotterTier, err := s.tiers.TierFor(ctx, tx, t.SpotterID)
	if err != nil {
		return nil, err
	}

	bonus, err := s.ledger.Append(ctx, tx, ledger.AppendParams{
		UserID:      t.SpotterID,
		Type:        ledger.TypeApprovalBonus,
		Status:      ledger.StatusApproved,
		Amount:      money.Min(spotterTier.Apply(s.approvalBonus), spotterTier.PerTrendCap),
		ReferenceID: t.ID,
		Description: "approval bonus " + t.Code,
		Key:         ledger.CreditKey(ledger.TypeApprovalBonus, t.ID),
	})
	if err != nil {
		return nil, err
	}

	settled, err := s.ledger.Settle(ctx, tx, ledger.SettleParams{
		UserID:      t.SpotterID,
		ReferenceID: t.ID,
		Type:        ledger.TypeTrendSubmission,
		From:        ledger.StatusPending,
		To:          ledger.StatusApproved,
	})
	if err != nil {
		return nil, err
	}

	logger.Ctx(ctx).Info("trend approved", zap.String("trend_id", t.ID), zap.Int64("approve_count", t.ApproveCount))
	return append([]*ledger.Entry{bonus}, settled...), nil
}

func (s *Service) reject(ctx context.Context, tx *gorm.DB, t *trend.Trend) ([]*ledger.Entry, error) {
	changed, err := s.trends.Transition(ctx, tx, t.ID, trend.StatusRejected)
	if err != nil || !changed {
		return nil, err
	}

	reversal, err := s.ledger.Reverse(ctx, tx, ledger.ReverseParams{
		UserID:      t.SpotterID,
		ReferenceID: t.ID,
		Type:        ledger.TypeTrendSubmission,
		Reason:      "rejected by validators",
	})
	if err != nil {
		return nil, err
	}

	logger.Ctx(ctx).Info("trend rejected", zap.String("trend_id", t.ID), zap.Int64("reject_count", t.RejectCount))
	if reversal == nil {
		return nil, nil
	}
	return []*ledger.Entry{reversal}, nil
}

// Reevaluate runs the consensus check again for one trend, e.g. after a threshold change.
func (s *Service) Reevaluate(ctx context.Context, trendID string) (*trend.Trend, []*ledger.Entry, error) {
	var (
		out     *trend.Trend
		entries []*ledger.Entry
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		t, err := s.trends.Lock(ctx, tx, trendID)
		if err != nil {
			return err
		}
		if entries, err = s.evaluate(ctx, tx, t); err != nil {
			return err
		}
		out, err = s.trends.Lock(ctx, tx, trendID)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	if len(entries) > 0 {
		task.RebuildProfiles(ctx, s.enqueuer, out.SpotterID)
	}
	return out, entries, nil
}

func (s *Service) ListVotes(ctx context.Context, trendID string) ([]*Vote, error) {
	if _, err := s.trends.Get(ctx, trendID); err != nil {
		return nil, err
	}
	return s.votes.Find(ctx, &Vote{TrendID: trendID}, option.WithSortBy(option.QuerySortBy{OrderBy: "asc"}))
}

// NotVotedBy narrows a trend query to trends the user has not voted on.
func NotVotedBy(userID string) option.QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("NOT EXISTS (SELECT 1 FROM validation_votes v WHERE v.trend_id = trend_submissions.id AND v.validator_id = ?)", userID)
	}
}

// Queue lists open trends the validator can still vote on.
func (s *Service) Queue(ctx context.Context, validatorID string, page pagination.Pagination) ([]*trend.Trend, *pagination.PageInfo, error) {
	return s.trends.ListOpen(ctx, validatorID, page, NotVotedBy(validatorID))
}
