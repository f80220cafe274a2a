package sequence

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFormatCode(t *testing.T) {
	require.Equal(t, "TRD-261016-001AB", FormatCode("TRD", "261016", 1, "AB"))
	require.Equal(t, "TRD-261016-00ZXY", FormatCode("TRD", "261016", 35, "XY"))
	require.Equal(t, "TRD-261016-R0SKK", FormatCode("TRD", "261016", 36*36*27+28, "KK"))
}

func TestRandomAlphaNumeric(t *testing.T) {
	s, err := randomAlphaNumeric(8)
	require.NoError(t, err)
	require.Regexp(t, regexp.MustCompile(`^[A-HJ-NP-Z2-9]{8}$`), s)
}
