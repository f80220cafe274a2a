package profile

import (
	"time"

	"wavesight-core/pkg/money"
	"wavesight-core/services/tier"
)

// Profile is a cache rebuilt from the ledger and the trend and vote tables.
// Restricted is the only column written directly, by moderation.
type Profile struct {
	UserID               string       `gorm:"column:user_id;primaryKey" json:"user_id"`
	PerformanceTier      tier.Name    `gorm:"column:performance_tier" json:"performance_tier"`
	PendingEarnings      money.Amount `gorm:"column:pending_earnings" json:"pending_earnings"`
	ApprovedEarnings     money.Amount `gorm:"column:approved_earnings" json:"approved_earnings"`
	PaidEarnings         money.Amount `gorm:"column:paid_earnings" json:"paid_earnings"`
	TrendsSubmitted      int64        `gorm:"column:trends_submitted" json:"trends_submitted"`
	TrendsApproved       int64        `gorm:"column:trends_approved" json:"trends_approved"`
	TrendsRejected       int64        `gorm:"column:trends_rejected" json:"trends_rejected"`
	ValidationsCompleted int64        `gorm:"column:validations_completed" json:"validations_completed"`
	ApprovalRate         float64      `gorm:"column:approval_rate" json:"approval_rate"`
	QualityScore         float64      `gorm:"column:quality_score" json:"quality_score"`
	AccuracyScore        float64      `gorm:"column:accuracy_score" json:"accuracy_score"`
	Restricted           bool         `gorm:"column:restricted" json:"restricted"`
	RebuiltAt            time.Time    `gorm:"column:rebuilt_at" json:"rebuilt_at"`
	CreatedAt            time.Time    `gorm:"column:created_at" json:"created_at"`
	UpdatedAt            time.Time    `gorm:"column:updated_at" json:"updated_at"`
}

func (Profile) TableName() string { return "user_profiles" }

type TierReport struct {
	UserID  string             `json:"user_id"`
	Tier    tier.Tier          `json:"tier"`
	Stats   tier.Stats         `json:"stats"`
	Next    *tier.Tier         `json:"next,omitempty"`
	Missing []tier.Requirement `json:"missing,omitempty"`
}

type RestrictionRequest struct {
	Restricted *bool `json:"restricted" binding:"required"`
}
