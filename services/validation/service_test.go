package validation

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"wavesight-core/pkg/config"
	"wavesight-core/pkg/db/pagination"
	"wavesight-core/pkg/errutil"
	"wavesight-core/pkg/money"
	"wavesight-core/services/ledger"
	"wavesight-core/services/testutil"
	"wavesight-core/services/tier"
	"wavesight-core/services/trend"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/gorm"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type stubTiers map[string]tier.Name

func (s stubTiers) TierFor(_ context.Context, _ *gorm.DB, userID string) (tier.Tier, error) {
	name, ok := s[userID]
	if !ok {
		name = tier.Learning
	}
	t, _ := tier.DefaultTable().Get(name)
	return t, nil
}

type stubCodes struct {
	mu sync.Mutex
	n  int
}

func (s *stubCodes) NextTrendCode(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("TRD-261016-%03d", s.n), nil
}

type fixture struct {
	svc    *Service
	trends *trend.Service
	ledger *ledger.Service
	db     *gorm.DB
	node   *snowflake.Node
	tiers  stubTiers
	now    func() time.Time
}

func newFixture(t *testing.T, cfg *config.Config) *fixture {
	t.Helper()

	var models []any
	models = append(models, trend.Models...)
	models = append(models, ledger.Models...)
	models = append(models, Models...)
	db := testutil.NewTestDB(t, models...)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	now := func() time.Time { return time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC) }
	tiers := stubTiers{}

	led, err := ledger.NewService(ledger.ServiceParams{DB: db, Node: node, Clock: now})
	require.NoError(t, err)

	trends, err := trend.NewService(trend.ServiceParams{
		DB: db, Node: node, Ledger: led, Tiers: tiers,
		Codes: &stubCodes{}, Scorer: trend.HeuristicScorer{}, Clock: now,
	})
	require.NoError(t, err)

	f := &fixture{trends: trends, ledger: led, db: db, node: node, tiers: tiers, now: now}
	f.svc = f.newService(t, cfg)
	return f
}

func (f *fixture) newService(t *testing.T, cfg *config.Config) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		DB: f.db, Node: f.node, Config: cfg,
		Trends: f.trends, Ledger: f.ledger, Tiers: f.tiers, Clock: f.now,
	})
	require.NoError(t, err)
	return svc
}

func (f *fixture) submit(t *testing.T, spotter string) *trend.Trend {
	t.Helper()
	tr, err := f.trends.Submit(context.Background(), trend.SubmitRequest{
		SpotterID: spotter, Category: "meme_format", Description: "cats explaining taxes",
	})
	require.NoError(t, err)
	return tr
}

func (f *fixture) vote(t *testing.T, trendID, validator string, v VoteValue) *CastResult {
	t.Helper()
	res, err := f.svc.CastVote(context.Background(), CastRequest{TrendID: trendID, ValidatorID: validator, Vote: string(v)})
	require.NoError(t, err)
	return res
}

func (f *fixture) balance(t *testing.T, userID string) *ledger.Balance {
	t.Helper()
	b, err := f.ledger.Balance(context.Background(), userID)
	require.NoError(t, err)
	return b
}

func TestApprovalByConsensus(t *testing.T) {
	f := newFixture(t, nil)
	tr := f.submit(t, "alice")
	require.Equal(t, money.MustParse("0.25"), f.balance(t, "alice").Pending)

	first := f.vote(t, tr.ID, "bob", VoteVerify)
	require.Equal(t, int64(1), first.Trend.ApproveCount)
	require.Equal(t, int64(1), first.Trend.ValidationCount)
	require.Equal(t, trend.StatusSubmitted, first.Trend.Status)
	require.Len(t, first.LedgerEntries, 1)
	require.Equal(t, ledger.TypeValidation, first.LedgerEntries[0].Type)
	require.Equal(t, ledger.StatusApproved, first.LedgerEntries[0].Status)
	require.Equal(t, money.MustParse("0.02"), first.LedgerEntries[0].Amount)

	second := f.vote(t, tr.ID, "carol", VoteVerify)
	require.Equal(t, trend.StatusApproved, second.Trend.Status)
	require.Equal(t, int64(2), second.Trend.ApproveCount)
	require.NotNil(t, second.Trend.ResolvedAt)

	var types []ledger.EntryType
	for _, e := range second.LedgerEntries {
		types = append(types, e.Type)
	}
	require.Contains(t, types, ledger.TypeApprovalBonus)

	alice := f.balance(t, "alice")
	require.Equal(t, money.Zero, alice.Pending)
	require.Equal(t, money.MustParse("0.75"), alice.Approved)
	require.Equal(t, money.MustParse("0.02"), f.balance(t, "bob").Approved)
	require.Equal(t, money.MustParse("0.02"), f.balance(t, "carol").Approved)
}

func TestApprovalBonusUsesSpotterTier(t *testing.T) {
	f := newFixture(t, nil)
	f.tiers["alice"] = tier.Master
	f.tiers["bob"] = tier.Elite

	tr := f.submit(t, "alice")
	require.Equal(t, money.MustParse("0.75"), tr.PaymentAmount)

	res := f.vote(t, tr.ID, "bob", VoteApprove)
	require.Equal(t, money.MustParse("0.04"), res.LedgerEntries[0].Amount)
	f.vote(t, tr.ID, "carol", VoteApprove)

	// 0.75 settled plus 0.50 x 3
	require.Equal(t, money.MustParse("2.25"), f.balance(t, "alice").Approved)
}

func TestRejectionByConsensus(t *testing.T) {
	f := newFixture(t, nil)
	tr := f.submit(t, "alice")

	f.vote(t, tr.ID, "bob", VoteReject)
	res := f.vote(t, tr.ID, "carol", VoteReject)
	require.Equal(t, trend.StatusRejected, res.Trend.Status)
	require.Equal(t, int64(2), res.Trend.RejectCount)
	require.Equal(t, int64(0), res.Trend.ApproveCount)

	alice := f.balance(t, "alice")
	require.Equal(t, money.Zero, alice.Pending)
	require.Equal(t, money.Zero, alice.Approved)

	entries, err := f.ledger.ListByReference(context.Background(), tr.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, ledger.TypeReversal, entries[1].Type)
	require.Equal(t, -entries[0].Amount, entries[1].Amount)
}

func TestDuplicateVote(t *testing.T) {
	f := newFixture(t, nil)
	tr := f.submit(t, "alice")
	f.vote(t, tr.ID, "dave", VoteVerify)

	_, err := f.svc.CastVote(context.Background(), CastRequest{TrendID: tr.ID, ValidatorID: "dave", Vote: "reject"})
	require.ErrorIs(t, err, ErrDuplicateVote)
	require.Equal(t, errutil.StatusConflict, errutil.StatusOf(err))
	require.Equal(t, codes.AlreadyExists, status.Code(errutil.ToGRPCError(err)))

	got, err := f.trends.Get(context.Background(), tr.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), got.ValidationCount)
	require.Equal(t, int64(1), got.ApproveCount)
	require.Equal(t, int64(0), got.RejectCount)

	var votes int64
	require.NoError(t, f.db.Model(&Vote{}).Where("trend_id = ?", tr.ID).Count(&votes).Error)
	require.Equal(t, int64(1), votes)
}

func TestDuplicateVoteIsEnforcedByStorage(t *testing.T) {
	f := newFixture(t, nil)
	tr := f.submit(t, "alice")
	f.vote(t, tr.ID, "dave", VoteVerify)

	err := f.db.Create(&Vote{ID: "manual", TrendID: tr.ID, ValidatorID: "dave", Vote: VoteReject}).Error
	require.ErrorIs(t, err, gorm.ErrDuplicatedKey)
}

func TestSelfValidation(t *testing.T) {
	f := newFixture(t, nil)
	tr := f.submit(t, "alice")

	_, err := f.svc.CastVote(context.Background(), CastRequest{TrendID: tr.ID, ValidatorID: "alice", Vote: "verify"})
	require.ErrorIs(t, err, ErrSelfValidation)
	require.Equal(t, errutil.StatusForbidden, errutil.StatusOf(err))
	require.Equal(t, codes.PermissionDenied, status.Code(errutil.ToGRPCError(err)))

	votes, err := f.svc.ListVotes(context.Background(), tr.ID)
	require.NoError(t, err)
	require.Empty(t, votes)
}

func TestVoteOnResolvedTrendKeepsItStable(t *testing.T) {
	f := newFixture(t, nil)
	tr := f.submit(t, "alice")
	f.vote(t, tr.ID, "bob", VoteApprove)
	f.vote(t, tr.ID, "carol", VoteApprove)

	_, err := f.svc.CastVote(context.Background(), CastRequest{TrendID: tr.ID, ValidatorID: "erin", Vote: "reject"})
	require.ErrorIs(t, err, trend.ErrInvalidState)
	require.Equal(t, errutil.StatusUnprocessableEntity, errutil.StatusOf(err))

	got, err := f.trends.Get(context.Background(), tr.ID)
	require.NoError(t, err)
	require.Equal(t, trend.StatusApproved, got.Status)
	require.Equal(t, int64(2), got.ValidationCount)
	require.Equal(t, int64(0), got.RejectCount)

	again, entries, err := f.svc.Reevaluate(context.Background(), tr.ID)
	require.NoError(t, err)
	require.Empty(t, entries)
	require.Equal(t, trend.StatusApproved, again.Status)
}

func TestVoteOnCancelledTrend(t *testing.T) {
	f := newFixture(t, nil)
	tr := f.submit(t, "alice")
	_, err := f.trends.Cancel(context.Background(), "alice", tr.ID)
	require.NoError(t, err)

	_, err = f.svc.CastVote(context.Background(), CastRequest{TrendID: tr.ID, ValidatorID: "bob", Vote: "verify"})
	require.ErrorIs(t, err, trend.ErrInvalidState)

	_, err = f.svc.CastVote(context.Background(), CastRequest{TrendID: "missing", ValidatorID: "bob", Vote: "verify"})
	require.Equal(t, errutil.StatusNotFound, errutil.StatusOf(err))
}

func TestInvalidVotePayload(t *testing.T) {
	f := newFixture(t, nil)
	tr := f.submit(t, "alice")
	eleven := 11

	cases := map[string]CastRequest{
		"unknown vote":  {TrendID: tr.ID, ValidatorID: "bob", Vote: "maybe"},
		"quality range": {TrendID: tr.ID, ValidatorID: "bob", Vote: "verify", QualityScore: &eleven},
		"no validator":  {TrendID: tr.ID, Vote: "verify"},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.CastVote(context.Background(), req)
			require.ErrorIs(t, err, ErrInvalidVote)
		})
	}
}

func TestVoteStoresQualityAndFeedback(t *testing.T) {
	f := newFixture(t, nil)
	tr := f.submit(t, "alice")
	seven := 7

	_, err := f.svc.CastVote(context.Background(), CastRequest{
		TrendID: tr.ID, ValidatorID: "bob", Vote: "Approve", QualityScore: &seven, Feedback: "seen it everywhere",
	})
	require.NoError(t, err)

	votes, err := f.svc.ListVotes(context.Background(), tr.ID)
	require.NoError(t, err)
	require.Len(t, votes, 1)
	require.Equal(t, VoteApprove, votes[0].Vote)
	require.Equal(t, 7, *votes[0].QualityScore)
	require.Equal(t, "seen it everywhere", votes[0].Feedback)
}

func TestConfiguredThresholdsAndReevaluate(t *testing.T) {
	cfg := &config.Config{}
	cfg.Consensus.ApprovalThreshold = 3
	cfg.Consensus.RejectionThreshold = 3
	f := newFixture(t, cfg)

	tr := f.submit(t, "alice")
	f.vote(t, tr.ID, "bob", VoteApprove)
	res := f.vote(t, tr.ID, "carol", VoteApprove)
	require.Equal(t, trend.StatusSubmitted, res.Trend.Status)

	lowered := f.newService(t, nil)
	got, entries, err := lowered.Reevaluate(context.Background(), tr.ID)
	require.NoError(t, err)
	require.Equal(t, trend.StatusApproved, got.Status)
	require.NotEmpty(t, entries)
}

func TestConcurrentVotesResolveOnce(t *testing.T) {
	f := newFixture(t, nil)
	tr := f.submit(t, "alice")

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
		closed  int
	)
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.svc.CastVote(context.Background(), CastRequest{
				TrendID: tr.ID, ValidatorID: fmt.Sprintf("validator-%d", i), Vote: "verify",
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				success++
			case errutil.StatusOf(err) == errutil.StatusUnprocessableEntity:
				closed++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	require.Equal(t, 2, success)
	require.Equal(t, 4, closed)

	got, err := f.trends.Get(context.Background(), tr.ID)
	require.NoError(t, err)
	require.Equal(t, trend.StatusApproved, got.Status)
	require.Equal(t, int64(2), got.ApproveCount)

	var bonuses int64
	require.NoError(t, f.db.Model(&ledger.Entry{}).
		Where("reference_id = ? AND type = ?", tr.ID, ledger.TypeApprovalBonus).
		Count(&bonuses).Error)
	require.Equal(t, int64(1), bonuses)
}

func TestQueueSkipsOwnAndVoted(t *testing.T) {
	f := newFixture(t, nil)
	mine := f.submit(t, "bob")
	voted := f.submit(t, "alice")
	open := f.submit(t, "carol")
	f.vote(t, voted.ID, "bob", VoteVerify)

	trends, _, err := f.svc.Queue(context.Background(), "bob", pagination.Pagination{Limit: 10})
	require.NoError(t, err)

	var ids []string
	for _, tr := range trends {
		ids = append(ids, tr.ID)
	}
	require.Equal(t, []string{open.ID}, ids)
	require.NotContains(t, ids, mine.ID)
}
