package profile

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"wavesight-core/pkg/authz"
	"wavesight-core/pkg/config"
	"wavesight-core/pkg/httpapi"
	"wavesight-core/pkg/middleware"
	"wavesight-core/pkg/money"
	"wavesight-core/pkg/taskname"
	"wavesight-core/services/ledger"
	"wavesight-core/services/testutil"
	"wavesight-core/services/tier"
	"wavesight-core/services/trend"
	"wavesight-core/services/validation"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
	gin.SetMode(gin.TestMode)
}

type stubCodes struct{ n int }

func (s *stubCodes) NextTrendCode(context.Context) (string, error) {
	s.n++
	return fmt.Sprintf("TRD-261016-%03d", s.n), nil
}

type clock struct{ t time.Time }

func (c *clock) Now() time.Time { return c.t }

type fixture struct {
	svc        *Service
	ledger     *ledger.Service
	trends     *trend.Service
	validation *validation.Service
	db         *gorm.DB
	clock      *clock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	var models []any
	models = append(models, ledger.Models...)
	models = append(models, trend.Models...)
	models = append(models, validation.Models...)
	models = append(models, Models...)
	db := testutil.NewTestDB(t, models...)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	c := &clock{t: time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)}

	led, err := ledger.NewService(ledger.ServiceParams{DB: db, Node: node, Clock: c.Now})
	require.NoError(t, err)

	svc := NewService(ServiceParams{DB: db, Table: tier.DefaultTable(), Ledger: led, Clock: c.Now})

	trends, err := trend.NewService(trend.ServiceParams{
		DB: db, Node: node, Ledger: led, Tiers: svc,
		Codes: &stubCodes{}, Scorer: trend.HeuristicScorer{}, Clock: c.Now,
	})
	require.NoError(t, err)

	votes, err := validation.NewService(validation.ServiceParams{
		DB: db, Node: node, Trends: trends, Ledger: led, Tiers: svc, Clock: c.Now,
	})
	require.NoError(t, err)

	return &fixture{svc: svc, ledger: led, trends: trends, validation: votes, db: db, clock: c}
}

// seedResolved inserts n trends for the user directly, bypassing the ledger.
func (f *fixture) seedResolved(t *testing.T, userID string, n int, status trend.Status, quality int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, f.db.Create(&trend.Trend{
			ID:           fmt.Sprintf("%s-%s-%d", userID, status, i),
			Code:         fmt.Sprintf("SEED-%s-%s-%d", userID, status, i),
			SpotterID:    userID,
			Category:     trend.CategoryOther,
			Description:  "seeded",
			Status:       status,
			QualityScore: quality,
			CreatedAt:    f.clock.t.Add(-48 * time.Hour),
			UpdatedAt:    f.clock.t.Add(-48 * time.Hour),
		}).Error)
	}
}

func (f *fixture) submit(t *testing.T, spotter string) *trend.Trend {
	t.Helper()
	tr, err := f.trends.Submit(context.Background(), trend.SubmitRequest{
		SpotterID: spotter, Category: "Meme Format", Description: "cats explaining taxes",
	})
	require.NoError(t, err)
	return tr
}

func (f *fixture) vote(t *testing.T, trendID, validator string, v validation.VoteValue) {
	t.Helper()
	_, err := f.validation.CastVote(context.Background(), validation.CastRequest{
		TrendID: trendID, ValidatorID: validator, Vote: string(v),
	})
	require.NoError(t, err)
}

func TestTierForNewUserIsLearning(t *testing.T) {
	f := newFixture(t)

	tr, err := f.svc.TierFor(context.Background(), nil, "nobody")
	require.NoError(t, err)
	require.Equal(t, tier.Learning, tr.Name)
}

func TestTierProgression(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.seedResolved(t, "alice", 7, trend.StatusApproved, 70)
	f.seedResolved(t, "alice", 3, trend.StatusRejected, 70)

	st, err := f.svc.Stats(ctx, nil, "alice")
	require.NoError(t, err)
	require.Equal(t, int64(10), st.TrendsSubmitted)
	require.InDelta(t, 0.7, st.ApprovalRate, 1e-9)
	require.InDelta(t, 0.7, st.QualityScore, 1e-9)

	tr, err := f.svc.TierFor(ctx, nil, "alice")
	require.NoError(t, err)
	require.Equal(t, tier.Verified, tr.Name)

	report, err := f.svc.ComputeTier(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, tier.Verified, report.Tier.Name)
	require.NotNil(t, report.Next)
	require.Equal(t, tier.Elite, report.Next.Name)
	require.Len(t, report.Missing, 1)
	require.Equal(t, "trends_submitted", report.Missing[0].Name)

	// a verified spotter earns 0.25 x 1.5
	sub := f.submit(t, "alice")
	require.Equal(t, money.MustParse("0.38"), sub.PaymentAmount)
}

func TestCancelledTrendsDoNotCount(t *testing.T) {
	f := newFixture(t)
	f.seedResolved(t, "alice", 4, trend.StatusCancelled, 100)
	f.seedResolved(t, "alice", 1, trend.StatusSubmitted, 50)

	st, err := f.svc.Stats(context.Background(), nil, "alice")
	require.NoError(t, err)
	require.Equal(t, int64(1), st.TrendsSubmitted)
	require.Zero(t, st.ApprovalRate)
	require.InDelta(t, 0.5, st.QualityScore, 1e-9)
}

func TestRestrictionOverridesProgression(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedResolved(t, "alice", 10, trend.StatusApproved, 90)

	p, err := f.svc.SetRestricted(ctx, "alice", true)
	require.NoError(t, err)
	require.True(t, p.Restricted)
	require.Equal(t, tier.Restricted, p.PerformanceTier)

	sub := f.submit(t, "alice")
	// 0.25 x 0.5 = 0.125, rounded half up
	require.Equal(t, money.MustParse("0.13"), sub.PaymentAmount)

	// a rebuild keeps the moderation flag
	p, err = f.svc.Rebuild(ctx, "alice")
	require.NoError(t, err)
	require.True(t, p.Restricted)

	p, err = f.svc.SetRestricted(ctx, "alice", false)
	require.NoError(t, err)
	require.False(t, p.Restricted)
	require.Equal(t, tier.Verified, p.PerformanceTier)
}

func TestRebuildMatchesLedger(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	approved := f.submit(t, "alice")
	f.vote(t, approved.ID, "bob", validation.VoteApprove)
	f.vote(t, approved.ID, "dave", validation.VoteReject)
	f.vote(t, approved.ID, "carol", validation.VoteVerify)
	f.submit(t, "alice")

	p, err := f.svc.Rebuild(ctx, "alice")
	require.NoError(t, err)

	balance, err := f.ledger.Balance(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, balance.Pending, p.PendingEarnings)
	require.Equal(t, balance.Approved, p.ApprovedEarnings)
	require.Equal(t, balance.Paid, p.PaidEarnings)
	require.Equal(t, money.MustParse("0.25"), p.PendingEarnings)
	require.Equal(t, money.MustParse("0.75"), p.ApprovedEarnings)
	require.Equal(t, int64(2), p.TrendsSubmitted)
	require.Equal(t, int64(1), p.TrendsApproved)
	require.InDelta(t, 1.0, p.ApprovalRate, 1e-9)

	bob, err := f.svc.Rebuild(ctx, "bob")
	require.NoError(t, err)
	require.Equal(t, int64(1), bob.ValidationsCompleted)
	require.InDelta(t, 1.0, bob.AccuracyScore, 1e-9)
	require.Equal(t, money.MustParse("0.02"), bob.ApprovedEarnings)

	dave, err := f.svc.Rebuild(ctx, "dave")
	require.NoError(t, err)
	require.Equal(t, int64(1), dave.ValidationsCompleted)
	require.Zero(t, dave.AccuracyScore)
}

func TestGetRebuildsWhenLedgerMoved(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.submit(t, "alice")
	p, err := f.svc.Get(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, money.MustParse("0.25"), p.PendingEarnings)

	f.clock.t = f.clock.t.Add(time.Minute)
	f.submit(t, "alice")

	p, err = f.svc.Get(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, money.MustParse("0.50"), p.PendingEarnings)
	require.Equal(t, int64(2), p.TrendsSubmitted)
}

func TestGetRebuildsWithinSameInstant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.submit(t, "alice")
	_, err := f.svc.Get(ctx, "alice")
	require.NoError(t, err)

	f.submit(t, "alice")

	p, err := f.svc.Get(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, money.MustParse("0.50"), p.PendingEarnings)
	require.Equal(t, int64(2), p.TrendsSubmitted)
}

func TestGetRebuildsAfterZeroCreditRejection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.seedResolved(t, "erin", 1, trend.StatusSubmitted, 0)
	p, err := f.svc.Get(ctx, "erin")
	require.NoError(t, err)
	require.Zero(t, p.TrendsRejected)

	f.clock.t = f.clock.t.Add(time.Minute)
	require.NoError(t, f.db.Model(&trend.Trend{}).
		Where("spotter_id = ?", "erin").
		Updates(map[string]any{"status": trend.StatusRejected, "updated_at": f.clock.t}).Error)

	p, err = f.svc.Get(ctx, "erin")
	require.NoError(t, err)
	require.Equal(t, int64(1), p.TrendsRejected)
	require.Zero(t, p.PendingEarnings)
}

func TestHandleRebuildTask(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.submit(t, "alice")

	err := f.svc.HandleRebuildTask(ctx, asynq.NewTask(taskname.ProfileRebuild, []byte(`{"user_id":"alice"}`)))
	require.NoError(t, err)

	var p Profile
	require.NoError(t, f.db.First(&p, "user_id = ?", "alice").Error)
	require.Equal(t, money.MustParse("0.25"), p.PendingEarnings)

	err = f.svc.HandleRebuildTask(ctx, asynq.NewTask(taskname.ProfileRebuild, []byte(`not json`)))
	require.ErrorIs(t, err, asynq.SkipRetry)

	err = f.svc.HandleRebuildTask(ctx, asynq.NewTask(taskname.ProfileRebuild, []byte(`{}`)))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestRestrictionRoute(t *testing.T) {
	f := newFixture(t)

	enforcer, err := authz.NewEnforcer(&config.Config{})
	require.NoError(t, err)

	r := gin.New()
	r.Use(middleware.Error())
	v1 := httpapi.V1{RouterGroup: r.Group("/v1", middleware.Authenticate())}
	registerRoutes(v1, NewHandler(f.svc), enforcer)

	do := func(method, path, role, user, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(middleware.HeaderUserID, user)
		req.Header.Set(middleware.HeaderUserRole, role)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	w := do(http.MethodPut, "/v1/users/alice/restriction", authz.RoleUser, "alice", `{"restricted":true}`)
	require.Equal(t, http.StatusForbidden, w.Code)

	w = do(http.MethodPut, "/v1/users/alice/restriction", authz.RoleModerator, "mod", `{}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = do(http.MethodPut, "/v1/users/alice/restriction", authz.RoleAdmin, "root", `{"restricted":true}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"performance_tier":"restricted"`)

	w = do(http.MethodGet, "/v1/users/alice/tier", authz.RoleUser, "bob", "")
	require.Equal(t, http.StatusForbidden, w.Code)

	w = do(http.MethodGet, "/v1/users/alice/tier", authz.RoleUser, "alice", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"name":"restricted"`)
}
