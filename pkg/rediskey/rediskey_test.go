package rediskey

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKeys(t *testing.T) {
	require.Equal(t, "seq:TRD:261016", BuildSequenceKey("TRD", "261016"))
	require.Equal(t, "user:stats:42", BuildUserStatsKey("42"))
}
