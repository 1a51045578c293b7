package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseResolution_Refund(t *testing.T) {
	r, err := ParseResolution(ResolutionRefund, nil)
	assert.NoError(t, err)
	assert.Equal(t, 100, r.RefundPercentage())
	assert.True(t, r.RequiresRefund())
	assert.Equal(t, DisputeStatusResolved, r.FinalStatus())
}

func TestParseResolution_RefundRejectsOtherPercent(t *testing.T) {
	pct := 50
	_, err := ParseResolution(ResolutionRefund, &pct)
	assert.ErrorIs(t, err, ErrUnexpectedRefundPercent)

	full := 100
	r, err := ParseResolution(ResolutionRefund, &full)
	assert.NoError(t, err)
	assert.Equal(t, 100, r.RefundPercentage())
}

func TestParseResolution_PartialBounds(t *testing.T) {
	for _, pct := range []int{0, 100, -5, 150} {
		p := pct
		_, err := ParseResolution(ResolutionPartialRefund, &p)
		assert.ErrorIs(t, err, ErrInvalidRefundPercent)
	}

	pct := 30
	r, err := ParseResolution(ResolutionPartialRefund, &pct)
	assert.NoError(t, err)
	assert.Equal(t, 30, r.RefundPercentage())
	assert.True(t, r.RequiresRefund())
}

func TestParseResolution_PartialRequiresPercent(t *testing.T) {
	_, err := ParseResolution(ResolutionPartialRefund, nil)
	assert.ErrorIs(t, err, ErrInvalidRefundPercent)
}

func TestParseResolution_NoRefund(t *testing.T) {
	r, err := ParseResolution(ResolutionNoRefund, nil)
	assert.NoError(t, err)
	assert.False(t, r.RequiresRefund())
	assert.Equal(t, DisputeStatusResolved, r.FinalStatus())

	pct := 10
	_, err = ParseResolution(ResolutionNoRefund, &pct)
	assert.ErrorIs(t, err, ErrUnexpectedRefundPercent)
}

func TestParseResolution_Closed(t *testing.T) {
	r, err := ParseResolution(ResolutionClosed, nil)
	assert.NoError(t, err)
	assert.False(t, r.RequiresRefund())
	assert.Equal(t, DisputeStatusClosed, r.FinalStatus())
}

func TestParseResolution_Unknown(t *testing.T) {
	_, err := ParseResolution("RESOLVED_SOMETHING", nil)
	assert.ErrorIs(t, err, ErrUnknownResolution)
}

func TestDispute_Terminal(t *testing.T) {
	assert.False(t, (&Dispute{Status: DisputeStatusOpen}).Terminal())
	assert.False(t, (&Dispute{Status: DisputeStatusUnderReview}).Terminal())
	assert.True(t, (&Dispute{Status: DisputeStatusResolved}).Terminal())
	assert.True(t, (&Dispute{Status: DisputeStatusClosed}).Terminal())
}
