package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEntityID(t *testing.T) {
	tests := []struct {
		in      string
		want    EntityID
		wantErr bool
	}{
		{"0.0.1001", EntityID{0, 0, 1001}, false},
		{" 1.2.3 ", EntityID{1, 2, 3}, false},
		{"0.0", EntityID{}, true},
		{"0.0.x", EntityID{}, true},
		{"", EntityID{}, true},
		{"0.0.-1", EntityID{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseEntityID(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTokenIDNative(t *testing.T) {
	assert.True(t, Native.IsNative())
	assert.NoError(t, Native.Validate())
	assert.Equal(t, "native", Native.Label())
	assert.Error(t, TokenID("abc").Validate())
}

func TestOutcomeOf(t *testing.T) {
	assert.Equal(t, OutcomeSuccess, OutcomeOf(StatusSuccess))
	assert.Equal(t, OutcomePending, OutcomeOf(StatusUnknown))
	assert.Equal(t, OutcomeFailure, OutcomeOf(StatusTokenPaused))

	var r *Receipt
	assert.Equal(t, OutcomePending, r.Outcome())
}

func TestFormatAndParseAmount(t *testing.T) {
	assert.Equal(t, "25.25", FormatAmount(2525, 2))
	assert.Equal(t, "300.00", FormatAmount(30000, 2))
	assert.Equal(t, "-1.5", FormatAmount(-15, 1))

	v, err := ParseAmount("25.25", 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2525), v)

	_, err = ParseAmount("1.234", 2)
	assert.Error(t, err)

	_, err = ParseAmount("abc", 2)
	assert.Error(t, err)
}
