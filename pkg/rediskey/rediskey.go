package rediskey

import "fmt"

const (
	SequencePrefix  = "seq"
	UserStatsPrefix = "user:stats"
)

func NamespaceKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s", namespace, key)
}

// BuildSequenceKey returns "seq:{prefix}:{day}"
func BuildSequenceKey(prefix, day string) string {
	return NamespaceKey(SequencePrefix, fmt.Sprintf("%s:%s", prefix, day))
}

// BuildUserStatsKey returns "user:stats:{userID}"
func BuildUserStatsKey(userID string) string {
	return NamespaceKey(UserStatsPrefix, userID)
}
