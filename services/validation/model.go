package validation

import (
	"strings"
	"time"

	"wavesight-core/services/ledger"
	"wavesight-core/services/trend"
)

type VoteValue string

const (
	VoteVerify  VoteValue = "verify"
	VoteApprove VoteValue = "approve"
	VoteReject  VoteValue = "reject"
)

func ParseVote(s string) (VoteValue, bool) {
	switch v := VoteValue(strings.ToLower(strings.TrimSpace(s))); v {
	case VoteVerify, VoteApprove, VoteReject:
		return v, true
	}
	return "", false
}

// Approves treats verify and approve as the same direction.
func (v VoteValue) Approves() bool {
	return v == VoteVerify || v == VoteApprove
}

// Vote is immutable once stored; one per (trend, validator).
type Vote struct {
	ID           string    `gorm:"column:id;primaryKey" json:"id"`
	TrendID      string    `gorm:"column:trend_id;not null;uniqueIndex:idx_vote_trend_validator" json:"trend_id"`
	ValidatorID  string    `gorm:"column:validator_id;not null;uniqueIndex:idx_vote_trend_validator;index" json:"validator_id"`
	Vote         VoteValue `gorm:"column:vote" json:"vote"`
	QualityScore *int      `gorm:"column:quality_score" json:"quality_score,omitempty"`
	Feedback     string    `gorm:"column:feedback" json:"feedback,omitempty"`
	CreatedAt    time.Time `gorm:"column:created_at;index" json:"created_at"`
}

func (Vote) TableName() string { return "validation_votes" }

type CastRequest struct {
	TrendID      string `json:"-"`
	ValidatorID  string `json:"-"`
	Vote         string `json:"vote"`
	QualityScore *int   `json:"quality_score,omitempty"`
	Feedback     string `json:"feedback,omitempty"`
}

type CastResult struct {
	Trend         *trend.Trend    `json:"trend"`
	Vote          *Vote           `json:"vote"`
	LedgerEntries []*ledger.Entry `json:"ledger_entries"`
}
