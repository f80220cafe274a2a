package ledger

import (
	"fmt"
	"time"

	"wavesight-core/pkg/money"

	"gorm.io/datatypes"
)

type EntryType string

const (
	TypeTrendSubmission EntryType = "trend_submission"
	TypeValidation      EntryType = "validation"
	TypeApprovalBonus   EntryType = "approval_bonus"
	TypeReversal        EntryType = "reversal"
	TypePayout          EntryType = "payout"
)

type EntryStatus string

const (
	StatusPending  EntryStatus = "pending"
	StatusApproved EntryStatus = "approved"
	StatusPaid     EntryStatus = "paid"
)

func (s EntryStatus) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusPaid:
		return true
	}
	return false
}

// Account serialises per-user ledger decisions (daily cap, payouts) through a row lock.
// It carries no balance; balances are always summed from entries.
type Account struct {
	UserID    string    `gorm:"column:user_id;primaryKey"`
	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (Account) TableName() string { return "ledger_accounts" }

type Entry struct {
	ID            string         `gorm:"column:id;primaryKey" json:"id"`
	EntryKey      string         `gorm:"column:entry_key;uniqueIndex;not null" json:"-"`
	UserID        string         `gorm:"column:user_id;index:idx_ledger_user_status;index:idx_ledger_user_type;not null" json:"user_id"`
	Type          EntryType      `gorm:"column:type;index:idx_ledger_user_type" json:"type"`
	Status        EntryStatus    `gorm:"column:status;index:idx_ledger_user_status" json:"status"`
	Amount        money.Amount   `gorm:"column:amount" json:"amount"`
	ReferenceID   string         `gorm:"column:reference_id;index" json:"reference_id"`
	TransactionID string         `gorm:"column:transaction_id" json:"transaction_id"`
	Description   string         `gorm:"column:description" json:"description,omitempty"`
	Metadata      datatypes.JSON `gorm:"column:metadata" json:"metadata,omitempty"`
	Hash          string         `gorm:"column:hash" json:"hash"`
	CreatedAt     time.Time      `gorm:"column:created_at;index" json:"created_at"`
}

func (Entry) TableName() string { return "earnings_ledger" }

type AppendParams struct {
	UserID        string
	Type          EntryType
	Status        EntryStatus
	Amount        money.Amount
	ReferenceID   string
	TransactionID string
	Description   string
	Metadata      datatypes.JSON
	// Key makes the append idempotent; a second append with the same key returns the first entry.
	Key string
}

type Balance struct {
	UserID   string       `json:"user_id"`
	Pending  money.Amount `json:"pending"`
	Approved money.Amount `json:"approved"`
	Paid     money.Amount `json:"paid"`
}

func (b Balance) Of(status EntryStatus) money.Amount {
	switch status {
	case StatusPending:
		return b.Pending
	case StatusApproved:
		return b.Approved
	case StatusPaid:
		return b.Paid
	}
	return money.Zero
}

type SettleParams struct {
	UserID      string
	ReferenceID string
	Type        EntryType
	From        EntryStatus
	To          EntryStatus
}

type ReverseParams struct {
	UserID      string
	ReferenceID string
	Type        EntryType
	Reason      string
}

type VerifyResult struct {
	Valid   bool     `json:"valid"`
	Checked int      `json:"checked"`
	Invalid []string `json:"invalid,omitempty"`
}

type Payout struct {
	ID            string       `json:"id"`
	UserID        string       `json:"user_id"`
	Amount        money.Amount `json:"amount"`
	TransactionID string       `json:"transaction_id"`
	Entries       []*Entry     `json:"entries"`
}

func CreditKey(t EntryType, referenceID string) string {
	return fmt.Sprintf("%s:%s:credit", t, referenceID)
}

func settleKey(p SettleParams, leg string) string {
	return fmt.Sprintf("%s:%s:settle:%s:%s", p.Type, p.ReferenceID, p.To, leg)
}

func reversalKey(p ReverseParams) string {
	return fmt.Sprintf("%s:%s:%s", TypeReversal, p.ReferenceID, p.Type)
}

func payoutKey(payoutID, leg string) string {
	return fmt.Sprintf("%s:%s:%s", TypePayout, payoutID, leg)
}
