package trend

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"wavesight-core/pkg/config"
	"wavesight-core/pkg/db/option"
	"wavesight-core/pkg/db/pagination"
	"wavesight-core/pkg/errutil"
	"wavesight-core/pkg/featureflags"
	"wavesight-core/pkg/logger"
	"wavesight-core/pkg/metrics"
	"wavesight-core/pkg/money"
	"wavesight-core/pkg/repository"
	"wavesight-core/pkg/sequence"
	"wavesight-core/pkg/task"
	"wavesight-core/services/ledger"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const maxDescriptionLength = 500

var (
	ErrValidation        = errors.New("invalid trend submission")
	ErrInvalidState      = errors.New("trend is not open")
	ErrNotSpotter        = errors.New("only the spotter may change this trend")
	ErrSubmissionsPaused = errors.New("trend submissions are paused")
)

type Service struct {
	db   *gorm.DB
	node *snowflake.Node
	now    func() time.Time
	trends repository.Repository[Trend]

	ledger   *ledger.Service
	tiers    TierResolver
	codes    sequence.Generator
	enqueuer task.Enqueuer
	scorer   Scorer
	flags    featureflags.Gate

	baseRate     money.Amount
	votingWindow time.Duration
}

type ServiceParams struct {
	fx.In

	DB       *gorm.DB
	Node     *snowflake.Node
	Config   *config.Config
	Ledger   *ledger.Service
	Tiers    TierResolver
	Codes    sequence.Generator
	Scorer   Scorer
	Flags    featureflags.Gate  `optional:"true"`
	Enqueuer task.Enqueuer      `optional:"true"`
	Clock    func() time.Time  `optional:"true"`
}

func NewService(p ServiceParams) (*Service, error) {
	base := money.MustParse("0.25")
	window := 72 * time.Hour
	if p.Config != nil {
		if p.Config.Earnings.TrendSubmission != "" {
			v, err := money.Parse(p.Config.Earnings.TrendSubmission)
			if err != nil {
				return nil, err
			}
			base = v
		}
		if p.Config.Consensus.VotingWindow > 0 {
			window = p.Config.Consensus.VotingWindow
		}
	}

	scorer := p.Scorer
	if scorer == nil {
		scorer = HeuristicScorer{}
	}

	now := p.Clock
	if now == nil {
		now = time.Now
	}

	return &Service{
		db:           p.DB,
		node:         p.Node,
		now:          now,
		trends:       repository.ProvideStore[Trend](p.DB),
		ledger:       p.Ledger,
		tiers:        p.Tiers,
		codes:        p.Codes,
		enqueuer:     p.Enqueuer,
		scorer:       scorer,
		flags:        p.Flags,
		baseRate:     base,
		votingWindow: window,
	}, nil
}

func validationError(field, message string) error {
	return errutil.ValidationFailed("invalid trend submission", ErrValidation,
		errutil.WithDetails(errutil.Detail{Field: field, Message: message}))
}

func InvalidState(t *Trend) error {
	return errutil.UnprocessableEntity("trend is "+string(t.Status), ErrInvalidState)
}

func (s *Service) validate(req *SubmitRequest) (Category, error) {
	if strings.TrimSpace(req.SpotterID) == "" {
		return "", validationError("spotter_id", "is required")
	}

	category, ok := ParseCategory(req.Category)
	if !ok {
		return "", validationError("category", "unknown category "+req.Category)
	}

	req.Description = strings.TrimSpace(req.Description)
	if req.Description == "" {
		return "", validationError("description", "is required")
	}
	if utf8.RuneCountInString(req.Description) > maxDescriptionLength {
		return "", validationError("description", "must be at most 500 characters")
	}

	ev := req.Evidence
	if ev.Views < 0 || ev.Likes < 0 || ev.Comments < 0 || ev.Shares < 0 {
		return "", validationError("evidence", "engagement counts must not be negative")
	}

	return category, nil
}

func (s *Service) findByIdempotencyKey(ctx context.Context, spotterID, key string) (*Trend, error) {
	return s.trends.FindOne(ctx, &Trend{SpotterID: spotterID, IdempotencyKey: &key})
}

// Submit stores a trend with status submitted and credits the tier-adjusted pending reward in one transaction.
// A repeated idempotency key returns the stored trend without writing anything.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*Trend, error) {
	category, err := s.validate(&req)
	if err != nil {
		return nil, err
	}
	if s.flags != nil && !s.flags.Enabled(ctx, req.SpotterID, featureflags.TrendSubmissions, true) {
		return nil, errutil.New(errutil.StatusServiceUnavailable, "trend submissions are paused", errutil.WithErr(ErrSubmissionsPaused))
	}

	var key *string
	if k := strings.TrimSpace(req.IdempotencyKey); k != "" {
		key = &k
		existing, err := s.findByIdempotencyKey(ctx, req.SpotterID, k)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}
	}

	code, err := s.codes.NextTrendCode(ctx)
	if err != nil {
		logger.Ctx(ctx).Error("failed to generate trend code", zap.Error(err))
		return nil, err
	}

	now := s.now().UTC().Truncate(time.Millisecond)
	scores := s.scorer.Score(category, req.Description, req.Evidence, now)

	trend := &Trend{
		ID:             s.node.Generate().String(),
		Code:           code,
		SpotterID:      req.SpotterID,
		IdempotencyKey: key,
		Category:       category,
		Description:    req.Description,
		Evidence:       datatypes.NewJSONType(req.Evidence),
		Status:         StatusSubmitted,
		QualityScore:   scores.Quality,
		WaveScore:      scores.Wave,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.ledger.LockAccount(ctx, tx, req.SpotterID); err != nil {
			return err
		}

		t, err := s.tiers.TierFor(ctx, tx, req.SpotterID)
		if err != nil {
			return err
		}

		nominal := t.Apply(s.baseRate)
		amount := money.Min(nominal, t.PerTrendCap)

		credited, err := s.ledger.DailyCredited(ctx, tx, req.SpotterID, t.CapWindow.Start(now))
		if err != nil {
			return err
		}
		headroom := money.Max(t.DailyCap-credited, money.Zero)
		if amount > headroom {
			amount = headroom
			trend.QuotaExceeded = true
		}
		trend.PaymentAmount = amount

		if err := s.trends.WithTrx(tx).Create(ctx, trend); err != nil {
			return err
		}

		metadata, _ := json.Marshal(map[string]any{
			"code":           trend.Code,
			"tier":           t.Name,
			"nominal":        nominal.String(),
			"quota_exceeded": trend.QuotaExceeded,
		})
		_, err = s.ledger.Append(ctx, tx, ledger.AppendParams{
			UserID:      req.SpotterID,
			Type:        ledger.TypeTrendSubmission,
			Status:      ledger.StatusPending,
			Amount:      amount,
			ReferenceID: trend.ID,
			Description: "trend submission " + trend.Code,
			Metadata:    datatypes.JSON(metadata),
			Key:         ledger.CreditKey(ledger.TypeTrendSubmission, trend.ID),
		})
		return err
	})
	if err != nil {
		if key != nil && errors.Is(err, gorm.ErrDuplicatedKey) {
			// lost the race against a retry carrying the same key
			existing, ferr := s.findByIdempotencyKey(ctx, req.SpotterID, *key)
			if ferr == nil && existing != nil {
				return existing, nil
			}
		}
		logger.Ctx(ctx).Error("failed to submit trend", zap.String("spotter_id", req.SpotterID), zap.Error(err))
		return nil, err
	}

	metrics.TrendsSubmitted.WithLabelValues(string(category)).Inc()
	if trend.QuotaExceeded {
		metrics.QuotaTruncations.Inc()
	}
	task.RebuildProfiles(ctx, s.enqueuer, req.SpotterID)

	logger.Ctx(ctx).Info("trend submitted",
		zap.String("trend_id", trend.ID),
		zap.String("code", trend.Code),
		zap.String("amount", trend.PaymentAmount.String()),
		zap.Bool("quota_exceeded", trend.QuotaExceeded),
	)
	return trend, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Trend, error) {
	t, err := s.trends.FindOne(ctx, &Trend{ID: id})
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, errutil.NotFound("trend not found", gorm.ErrRecordNotFound)
	}
	return t, nil
}

// Lock reads the trend row FOR UPDATE inside tx.
func (s *Service) Lock(ctx context.Context, tx *gorm.DB, id string) (*Trend, error) {
	t, err := s.trends.WithTrx(tx).FindOne(ctx, &Trend{ID: id}, option.WithLockingUpdate())
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, errutil.NotFound("trend not found", gorm.ErrRecordNotFound)
	}
	return t, nil
}

// CountVote increments the counters of an open trend and returns the row as updated.
func (s *Service) CountVote(ctx context.Context, tx *gorm.DB, id string, approve bool) (*Trend, error) {
	updates := map[string]any{
		"validation_count": gorm.Expr("validation_count + 1"),
		"updated_at":       s.now().UTC(),
	}
	if approve {
		updates["approve_count"] = gorm.Expr("approve_count + 1")
	} else {
		updates["reject_count"] = gorm.Expr("reject_count + 1")
	}

	res := tx.WithContext(ctx).Model(&Trend{}).
		Where("id = ? AND status IN ?", id, OpenStatuses).
		Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, errutil.UnprocessableEntity("trend is not open for votes", ErrInvalidState)
	}

	return s.Lock(ctx, tx, id)
}

// Transition moves an open trend to a terminal status. It reports false when the trend was already closed.
func (s *Service) Transition(ctx context.Context, tx *gorm.DB, id string, to Status) (bool, error) {
	if !to.Terminal() {
		return false, errutil.BadRequest("not a terminal status", ErrInvalidState)
	}

	now := s.now().UTC()
	res := tx.WithContext(ctx).Model(&Trend{}).
		Where("id = ? AND status IN ?", id, OpenStatuses).
		Updates(map[string]any{"status": to, "resolved_at": now, "updated_at": now})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}

	metrics.TrendTransitions.WithLabelValues(string(to)).Inc()
	return true, nil
}

func (s *Service) cancel(ctx context.Context, tx *gorm.DB, t *Trend, reason string) (bool, error) {
	changed, err := s.Transition(ctx, tx, t.ID, StatusCancelled)
	if err != nil || !changed {
		return changed, err
	}

	_, err = s.ledger.Reverse(ctx, tx, ledger.ReverseParams{
		UserID:      t.SpotterID,
		ReferenceID: t.ID,
		Type:        ledger.TypeTrendSubmission,
		Reason:      reason,
	})
	return true, err
}

// Cancel lets the spotter withdraw a trend nobody has voted on yet.
func (s *Service) Cancel(ctx context.Context, spotterID, id string) (*Trend, error) {
	var out *Trend
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		t, err := s.Lock(ctx, tx, id)
		if err != nil {
			return err
		}
		if t.SpotterID != spotterID {
			return errutil.Forbidden("only the spotter may cancel a trend", ErrNotSpotter)
		}
		if !t.Status.Open() {
			return InvalidState(t)
		}
		if t.ValidationCount > 0 {
			return errutil.UnprocessableEntity("trend already has votes", ErrInvalidState)
		}

		if _, err := s.cancel(ctx, tx, t, "cancelled by spotter"); err != nil {
			return err
		}

		out, err = s.Lock(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	task.RebuildProfiles(ctx, s.enqueuer, spotterID)
	logger.Ctx(ctx).Info("trend cancelled", zap.String("trend_id", id))
	return out, nil
}

// ExpireStale cancels open trends older than the voting window and reverses their pending rewards.
func (s *Service) ExpireStale(ctx context.Context) (int, error) {
	cutoff := s.now().UTC().Add(-s.votingWindow)

	stale, err := s.trends.Find(ctx, &Trend{},
		option.ApplyOperator(option.Condition{Field: "status", Operator: option.IN, Value: OpenStatuses}),
		option.ApplyOperator(option.Condition{Field: "created_at", Operator: option.LT, Value: cutoff}),
		option.WithSortBy(option.QuerySortBy{OrderBy: "asc"}),
		option.WithLimit(500),
	)
	if err != nil {
		logger.Ctx(ctx).Error("failed to query stale trends", zap.Error(err))
		return 0, err
	}

	expired := 0
	for _, t := range stale {
		var changed bool
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			locked, err := s.Lock(ctx, tx, t.ID)
			if err != nil {
				return err
			}
			changed, err = s.cancel(ctx, tx, locked, "voting window elapsed")
			return err
		})
		if err != nil {
			logger.Ctx(ctx).Error("failed to expire trend", zap.String("trend_id", t.ID), zap.Error(err))
			return expired, err
		}
		if changed {
			expired++
			task.RebuildProfiles(ctx, s.enqueuer, t.SpotterID)
		}
	}

	if expired > 0 {
		logger.Ctx(ctx).Info("expired stale trends", zap.Int("count", expired), zap.Time("cutoff", cutoff))
	}
	return expired, nil
}

// ListOpen pages through open trends oldest first, skipping the caller's own. Extra scopes narrow the queue.
func (s *Service) ListOpen(ctx context.Context, callerID string, page pagination.Pagination, scopes ...option.QueryOption) ([]*Trend, *pagination.PageInfo, error) {
	if err := page.Validate(); err != nil {
		return nil, nil, errutil.BadRequest("invalid pagination cursor", err)
	}
	page = page.Normalize()

	opts := []option.QueryOption{
		option.ApplyOperator(option.Condition{Field: "status", Operator: option.IN, Value: OpenStatuses}),
		option.ApplyOperator(option.Condition{Field: "spotter_id", Operator: option.NEQ, Value: callerID}),
	}
	opts = append(opts, scopes...)
	opts = append(opts, option.ApplyPagination(page))

	trends, err := s.trends.Find(ctx, &Trend{}, opts...)
	if err != nil {
		logger.Ctx(ctx).Error("failed to list open trends", zap.Error(err))
		return nil, nil, err
	}

	trends, info := pagination.Page(trends, page.Limit, func(t *Trend) pagination.Cursor {
		return pagination.Cursor{CreatedAt: t.CreatedAt.UTC().Format(time.RFC3339Nano), ID: t.ID}
	})
	return trends, info, nil
}
