package ledger

import (
	"context"
	"errors"
	"time"

	"wavesight-core/pkg/config"
	"wavesight-core/pkg/db/option"
	"wavesight-core/pkg/db/pagination"
	"wavesight-core/pkg/errutil"
	"wavesight-core/pkg/logger"
	"wavesight-core/pkg/metrics"
	"wavesight-core/pkg/money"
	"wavesight-core/pkg/repository"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrBelowMinimumCashout = errors.New("approved balance below minimum cashout")
	ErrInvalidEntry        = errors.New("invalid ledger entry")
)

type Service struct {
	db   *gorm.DB
	node *snowflake.Node
	now  func() time.Time

	minimumCashout money.Amount

	entries  repository.Repository[Entry]
	accounts repository.Repository[Account]
}

type ServiceParams struct {
	fx.In
	DB     *gorm.DB
	Node   *snowflake.Node
	Config *config.Config
	Clock  func() time.Time `optional:"true"`
}

func NewService(p ServiceParams) (*Service, error) {
	minimum := money.MustParse("10.00")
	if p.Config != nil && p.Config.Earnings.MinimumCashout != "" {
		v, err := money.Parse(p.Config.Earnings.MinimumCashout)
		if err != nil {
			return nil, err
		}
		minimum = v
	}

	now := p.Clock
	if now == nil {
		now = time.Now
	}

	return &Service{
		db:             p.DB,
		node:           p.Node,
		now:            now,
		minimumCashout: minimum,
		entries:        repository.ProvideStore[Entry](p.DB),
		accounts:       repository.ProvideStore[Account](p.DB),
	}, nil
}

func (s *Service) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return s.db
}

// LockAccount creates the user's account row if needed and locks it until tx ends.
func (s *Service) LockAccount(ctx context.Context, tx *gorm.DB, userID string) error {
	now := s.now()
	if err := tx.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(&Account{UserID: userID, CreatedAt: now, UpdatedAt: now}).Error; err != nil {
		return err
	}

	account, err := s.accounts.WithTrx(tx).FindOne(ctx, &Account{UserID: userID}, option.WithLockingUpdate())
	if err != nil {
		return err
	}
	if account == nil {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Append inserts one immutable entry. Appending an existing key is a no-op that returns the stored entry.
func (s *Service) Append(ctx context.Context, tx *gorm.DB, p AppendParams) (*Entry, error) {
	if p.UserID == "" || p.Key == "" || !p.Status.Valid() {
		return nil, errutil.BadRequest("user, key and a valid status are required", ErrInvalidEntry)
	}

	transactionID := p.TransactionID
	if transactionID == "" {
		id, err := GenerateTransactionID()
		if err != nil {
			return nil, err
		}
		transactionID = id
	}

	entry := &Entry{
		ID:            s.node.Generate().String(),
		EntryKey:      p.Key,
		UserID:        p.UserID,
		Type:          p.Type,
		Status:        p.Status,
		Amount:        p.Amount,
		ReferenceID:   p.ReferenceID,
		TransactionID: transactionID,
		Description:   p.Description,
		Metadata:      p.Metadata,
		CreatedAt:     s.now().UTC().Truncate(time.Millisecond),
	}
	entry.Hash = entry.GenerateHash()

	conn := s.conn(tx)
	res := conn.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "entry_key"}}, DoNothing: true}).
		Create(entry)
	if res.Error != nil {
		logger.Ctx(ctx).Error("failed to append ledger entry", zap.String("entry_key", p.Key), zap.Error(res.Error))
		return nil, res.Error
	}

	if res.RowsAffected == 0 {
		existing, err := s.entries.WithTrx(conn).FindOne(ctx, &Entry{EntryKey: p.Key})
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, gorm.ErrRecordNotFound
		}
		return existing, nil
	}

	metrics.LedgerEntries.WithLabelValues(string(entry.Type), string(entry.Status)).Inc()
	return entry, nil
}

func (s *Service) sum(ctx context.Context, tx *gorm.DB, scope func(*gorm.DB) *gorm.DB) (money.Amount, error) {
	var total decimal.NullDecimal
	q := s.conn(tx).WithContext(ctx).Model(&Entry{}).Select("COALESCE(SUM(amount), 0)")
	if err := scope(q).Scan(&total).Error; err != nil {
		return 0, err
	}
	if !total.Valid {
		return 0, nil
	}
	return money.Amount(total.Decimal.IntPart()), nil
}

// Balance sums every entry of the user per status.
func (s *Service) Balance(ctx context.Context, userID string) (*Balance, error) {
	type row struct {
		Status EntryStatus
		Total  decimal.NullDecimal
	}

	var rows []row
	if err := s.db.WithContext(ctx).Model(&Entry{}).
		Select("status, COALESCE(SUM(amount), 0) AS total").
		Where("user_id = ?", userID).
		Group("status").
		Scan(&rows).Error; err != nil {
		logger.Ctx(ctx).Error("failed to query balance", zap.String("user_id", userID), zap.Error(err))
		return nil, err
	}

	b := &Balance{UserID: userID}
	for _, r := range rows {
		amount := money.Amount(r.Total.Decimal.IntPart())
		switch r.Status {
		case StatusPending:
			b.Pending = amount
		case StatusApproved:
			b.Approved = amount
		case StatusPaid:
			b.Paid = amount
		}
	}
	return b, nil
}

func (s *Service) BalanceOf(ctx context.Context, tx *gorm.DB, userID string, status EntryStatus) (money.Amount, error) {
	return s.sum(ctx, tx, func(db *gorm.DB) *gorm.DB {
		return db.Where("user_id = ? AND status = ?", userID, status)
	})
}

// DailyCredited sums the positive pending submission credits created since the window start.
func (s *Service) DailyCredited(ctx context.Context, tx *gorm.DB, userID string, since time.Time) (money.Amount, error) {
	return s.sum(ctx, tx, func(db *gorm.DB) *gorm.DB {
		return db.Where("user_id = ? AND type = ? AND status = ? AND amount > 0 AND created_at >= ?",
			userID, TypeTrendSubmission, StatusPending, since.UTC())
	})
}

func (s *Service) netFor(ctx context.Context, tx *gorm.DB, userID, referenceID string, status EntryStatus) (money.Amount, error) {
	return s.sum(ctx, tx, func(db *gorm.DB) *gorm.DB {
		return db.Where("user_id = ? AND reference_id = ? AND status = ?", userID, referenceID, status)
	})
}

// Settle moves the net amount of a reference from one status to another with an offsetting pair.
// Nothing is written when the net amount at the source status is zero.
func (s *Service) Settle(ctx context.Context, tx *gorm.DB, p SettleParams) ([]*Entry, error) {
	if p.From == p.To || !p.From.Valid() || !p.To.Valid() {
		return nil, errutil.BadRequest("invalid settlement statuses", ErrInvalidEntry)
	}

	net, err := s.netFor(ctx, tx, p.UserID, p.ReferenceID, p.From)
	if err != nil {
		return nil, err
	}
	if net == 0 {
		return nil, nil
	}

	transactionID, err := GenerateTransactionID()
	if err != nil {
		return nil, err
	}

	out, err := s.Append(ctx, tx, AppendParams{
		UserID: p.UserID, Type: p.Type, Status: p.From, Amount: -net,
		ReferenceID: p.ReferenceID, TransactionID: transactionID,
		Description: "settled to " + string(p.To), Key: settleKey(p, "out"),
	})
	if err != nil {
		return nil, err
	}

	in, err := s.Append(ctx, tx, AppendParams{
		UserID: p.UserID, Type: p.Type, Status: p.To, Amount: net,
		ReferenceID: p.ReferenceID, TransactionID: transactionID,
		Description: "settled from " + string(p.From), Key: settleKey(p, "in"),
	})
	if err != nil {
		return nil, err
	}

	return []*Entry{out, in}, nil
}

// Reverse zeroes the pending net amount of a reference with a single reversal entry.
func (s *Service) Reverse(ctx context.Context, tx *gorm.DB, p ReverseParams) (*Entry, error) {
	net, err := s.netFor(ctx, tx, p.UserID, p.ReferenceID, StatusPending)
	if err != nil {
		return nil, err
	}
	if net == 0 {
		return nil, nil
	}

	return s.Append(ctx, tx, AppendParams{
		UserID: p.UserID, Type: TypeReversal, Status: StatusPending, Amount: -net,
		ReferenceID: p.ReferenceID, Description: p.Reason, Key: reversalKey(p),
	})
}

// Payout moves the whole approved balance to paid.
func (s *Service) Payout(ctx context.Context, userID string) (*Payout, error) {
	payout := &Payout{ID: s.node.Generate().String(), UserID: userID}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.LockAccount(ctx, tx, userID); err != nil {
			return err
		}

		approved, err := s.BalanceOf(ctx, tx, userID, StatusApproved)
		if err != nil {
			return err
		}
		if approved < s.minimumCashout {
			return errutil.UnprocessableEntity("approved balance below minimum cashout", ErrBelowMinimumCashout,
				errutil.WithDetails(
					errutil.Detail{Field: "approved", Message: approved.String()},
					errutil.Detail{Field: "minimum", Message: s.minimumCashout.String()},
				))
		}

		transactionID, err := GenerateTransactionID()
		if err != nil {
			return err
		}
		payout.Amount = approved
		payout.TransactionID = transactionID

		out, err := s.Append(ctx, tx, AppendParams{
			UserID: userID, Type: TypePayout, Status: StatusApproved, Amount: -approved,
			ReferenceID: payout.ID, TransactionID: transactionID, Key: payoutKey(payout.ID, "out"),
		})
		if err != nil {
			return err
		}

		in, err := s.Append(ctx, tx, AppendParams{
			UserID: userID, Type: TypePayout, Status: StatusPaid, Amount: approved,
			ReferenceID: payout.ID, TransactionID: transactionID, Key: payoutKey(payout.ID, "in"),
		})
		if err != nil {
			return err
		}

		payout.Entries = []*Entry{out, in}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Ctx(ctx).Info("payout completed", zap.String("user_id", userID), zap.String("amount", payout.Amount.String()))
	return payout, nil
}

func (s *Service) List(ctx context.Context, userID string, page pagination.Pagination) ([]*Entry, *pagination.PageInfo, error) {
	if err := page.Validate(); err != nil {
		return nil, nil, errutil.BadRequest("invalid pagination cursor", err)
	}
	page = page.Normalize()

	entries, err := s.entries.Find(ctx, &Entry{UserID: userID}, option.ApplyPagination(page))
	if err != nil {
		logger.Ctx(ctx).Error("failed to list ledger entries", zap.String("user_id", userID), zap.Error(err))
		return nil, nil, err
	}

	entries, info := pagination.Page(entries, page.Limit, func(e *Entry) pagination.Cursor {
		return pagination.Cursor{CreatedAt: e.CreatedAt.UTC().Format(time.RFC3339Nano), ID: e.ID}
	})
	return entries, info, nil
}

func (s *Service) ListByReference(ctx context.Context, referenceID string) ([]*Entry, error) {
	return s.entries.Find(ctx, &Entry{ReferenceID: referenceID}, option.WithSortBy(option.QuerySortBy{OrderBy: "asc"}))
}

// VerifyEntries recomputes the content hash of every entry of the user.
func (s *Service) VerifyEntries(ctx context.Context, userID string) (*VerifyResult, error) {
	entries, err := s.entries.Find(ctx, &Entry{UserID: userID}, option.WithSortBy(option.QuerySortBy{OrderBy: "asc"}))
	if err != nil {
		logger.Ctx(ctx).Error("failed to query Find entries", zap.Error(err))
		return nil, err
	}

	res := &VerifyResult{Valid: true, Checked: len(entries)}
	for _, entry := range entries {
		if entry.Hash != entry.GenerateHash() {
			res.Valid = false
			res.Invalid = append(res.Invalid, entry.ID)
		}
	}

	return res, nil
}

// LatestEntryAt returns the creation time of the user's newest entry, zero when there is none.
func (s *Service) LatestEntryAt(ctx context.Context, userID string) (time.Time, error) {
	latest, err := s.entries.FindOne(ctx, &Entry{UserID: userID}, option.WithSortBy(option.QuerySortBy{OrderBy: "desc"}))
	if err != nil {
		return time.Time{}, err
	}
	if latest == nil {
		return time.Time{}, nil
	}
	return latest.CreatedAt, nil
}
