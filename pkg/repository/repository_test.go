package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"wavesight-core/pkg/db/option"
	"wavesight-core/pkg/repository"
	"wavesight-core/services/testutil"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type item struct {
	ID        string    `gorm:"primaryKey"`
	Owner     string    `gorm:"index"`
	Status    string
	Score     int
	CreatedAt time.Time
}

func seed(t *testing.T) (*gorm.DB, repository.Repository[item]) {
	t.Helper()
	db := testutil.NewTestDB(t, &item{})
	repo := repository.ProvideStore[item](db)

	base := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	items := []*item{
		{ID: "a", Owner: "u1", Status: "open", Score: 10, CreatedAt: base},
		{ID: "b", Owner: "u1", Status: "closed", Score: 20, CreatedAt: base.Add(time.Minute)},
		{ID: "c", Owner: "u2", Status: "open", Score: 30, CreatedAt: base.Add(2 * time.Minute)},
	}
	require.NoError(t, repo.BatchCreate(context.Background(), items))
	return db, repo
}

func ids(items []*item) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.ID)
	}
	return out
}

func TestFindOne(t *testing.T) {
	_, repo := seed(t)
	ctx := context.Background()

	got, err := repo.FindOne(ctx, &item{ID: "b"})
	require.NoError(t, err)
	require.Equal(t, "u1", got.Owner)

	missing, err := repo.FindOne(ctx, &item{ID: "zzz"})
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestFindWithOptions(t *testing.T) {
	_, repo := seed(t)
	ctx := context.Background()

	got, err := repo.Find(ctx, &item{Owner: "u1"}, option.WithSortBy(option.QuerySortBy{OrderBy: "desc"}))
	require.NoError(t, err)
	require.Equal(t, []string{"b", "a"}, ids(got))

	got, err = repo.Find(ctx, nil, option.ApplyOperator(
		option.Condition{Field: "status", Operator: option.IN, Value: []string{"open"}},
		option.Condition{Field: "score", Operator: option.GT, Value: 15},
	))
	require.NoError(t, err)
	require.Equal(t, []string{"c"}, ids(got))

	got, err = repo.Find(ctx, nil,
		option.ApplyOperator(option.Condition{Field: "owner", Operator: option.NEQ, Value: "u2"}),
		option.WithSortBy(option.QuerySortBy{SortBy: "score", OrderBy: "desc", Allow: map[string]bool{"score": true}}),
		option.WithLimit(1),
	)
	require.NoError(t, err)
	require.Equal(t, []string{"b"}, ids(got))

	// unknown sort fields fall back to created_at
	got, err = repo.Find(ctx, nil, option.WithSortBy(option.QuerySortBy{SortBy: "owner; DROP", Allow: map[string]bool{"score": true}}))
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c"}, ids(got))
}

func TestUpdateAndCount(t *testing.T) {
	_, repo := seed(t)
	ctx := context.Background()

	require.NoError(t, repo.Update(ctx, "a", map[string]any{"status": "closed"}))
	n, err := repo.Count(ctx, &item{Status: "closed"})
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	err = repo.Update(ctx, "zzz", map[string]any{"status": "closed"})
	require.True(t, errors.Is(err, gorm.ErrRecordNotFound))
}

func TestWithTrxRollsBack(t *testing.T) {
	db, repo := seed(t)
	ctx := context.Background()

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := repo.WithTrx(tx).Create(ctx, &item{ID: "d", Owner: "u3", CreatedAt: time.Now()}); err != nil {
			return err
		}
		got, err := repo.WithTrx(tx).FindOne(ctx, &item{ID: "d"}, option.WithLockingUpdate())
		require.NoError(t, err)
		require.NotNil(t, got)
		return errors.New("abort")
	})
	require.Error(t, err)

	got, err := repo.FindOne(ctx, &item{ID: "d"})
	require.NoError(t, err)
	require.Nil(t, got)
}
