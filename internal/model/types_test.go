package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsBreach(t *testing.T) {
	assert.False(t, Normal.IsBreach())
	assert.True(t, Warning.IsBreach())
	assert.True(t, Emergency.IsBreach())
	assert.False(t, RiskLevel("unknown").IsBreach())
}

func TestRiskRankMonotonic(t *testing.T) {
	assert.Less(t, RiskRank[Normal], RiskRank[Warning])
	assert.Less(t, RiskRank[Warning], RiskRank[Emergency])
}

func TestFormatBPM(t *testing.T) {
	assert.Equal(t, "72.0 BPM", FormatBPM(72))
	assert.Equal(t, "119.5 BPM", FormatBPM(119.5))
}
