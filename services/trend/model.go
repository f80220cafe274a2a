package trend

import (
	"context"
	"time"

	"wavesight-core/pkg/money"
	"wavesight-core/services/tier"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusSubmitted  Status = "submitted"
	StatusValidating Status = "validating"
	StatusApproved   Status = "approved"
	StatusRejected   Status = "rejected"
	StatusCancelled  Status = "cancelled"
)

// OpenStatuses accept votes.
var OpenStatuses = []Status{StatusSubmitted, StatusValidating}

func (s Status) Open() bool {
	return s == StatusSubmitted || s == StatusValidating
}

func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected || s == StatusCancelled
}

type Evidence struct {
	URL           string     `json:"url,omitempty"`
	CreatorHandle string     `json:"creator_handle,omitempty"`
	Platform      string     `json:"platform,omitempty"`
	ScreenshotURL string     `json:"screenshot_url,omitempty"`
	ThumbnailURL  string     `json:"thumbnail_url,omitempty"`
	Hashtags      []string   `json:"hashtags,omitempty"`
	Views         int64      `json:"views,omitempty"`
	Likes         int64      `json:"likes,omitempty"`
	Comments      int64      `json:"comments,omitempty"`
	Shares        int64      `json:"shares,omitempty"`
	PostedAt      *time.Time `json:"posted_at,omitempty"`
}

func (e Evidence) HasMedia() bool {
	return e.ScreenshotURL != "" || e.ThumbnailURL != ""
}

func (e Evidence) HasEngagement() bool {
	return e.Views > 0 || e.Likes > 0 || e.Comments > 0 || e.Shares > 0
}

// EngagementRate is interactions per hundred views, capped at 100.
func (e Evidence) EngagementRate() float64 {
	if e.Views <= 0 {
		return 0
	}
	rate := float64(e.Likes+e.Comments+e.Shares) / float64(e.Views) * 100
	if rate > 100 {
		return 100
	}
	return rate
}

type Trend struct {
	ID              string                       `gorm:"column:id;primaryKey" json:"id"`
	Code            string                       `gorm:"column:code;uniqueIndex" json:"code"`
	SpotterID       string                       `gorm:"column:spotter_id;not null;index;uniqueIndex:idx_trend_idempotency" json:"spotter_id"`
	IdempotencyKey  *string                      `gorm:"column:idempotency_key;uniqueIndex:idx_trend_idempotency" json:"-"`
	Category        Category                     `gorm:"column:category" json:"category"`
	Description     string                       `gorm:"column:description" json:"description"`
	Evidence        datatypes.JSONType[Evidence] `gorm:"column:evidence" json:"evidence"`
	Status          Status                       `gorm:"column:status;index:idx_trend_status_created" json:"status"`
	ValidationCount int64                        `gorm:"column:validation_count" json:"validation_count"`
	ApproveCount    int64                        `gorm:"column:approve_count" json:"approve_count"`
	RejectCount     int64                        `gorm:"column:reject_count" json:"reject_count"`
	QualityScore    int                          `gorm:"column:quality_score" json:"quality_score"`
	WaveScore       int                          `gorm:"column:wave_score" json:"wave_score"`
	PaymentAmount   money.Amount                 `gorm:"column:payment_amount" json:"payment_amount"`
	QuotaExceeded   bool                         `gorm:"column:quota_exceeded" json:"quota_exceeded"`
	CreatedAt       time.Time                    `gorm:"column:created_at;index:idx_trend_status_created" json:"created_at"`
	UpdatedAt       time.Time                    `gorm:"column:updated_at" json:"updated_at"`
	ResolvedAt      *time.Time                   `gorm:"column:resolved_at" json:"resolved_at,omitempty"`
}

func (Trend) TableName() string { return "trend_submissions" }

type SubmitRequest struct {
	SpotterID      string   `json:"-"`
	IdempotencyKey string   `json:"-"`
	Category       string   `json:"category"`
	Description    string   `json:"description"`
	Evidence       Evidence `json:"evidence"`
}

// TierResolver returns the tier currently in force for a user, reading through tx when set.
type TierResolver interface {
	TierFor(ctx context.Context, tx *gorm.DB, userID string) (tier.Tier, error)
}
