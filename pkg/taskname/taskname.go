package taskname

const (
	// Profile tasks
	ProfileRebuild = "profile:rebuild"

	// Trend tasks
	TrendExpireStale = "trend:expire_stale"
)

type ProfileRebuildPayload struct {
	UserID string `json:"user_id"`
}
