package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestFeeApplies(t *testing.T) {
	assert.True(t, FeeApplies(ExperienceTypePaid))
	assert.True(t, FeeApplies(ExperienceTypeMixed))
	assert.False(t, FeeApplies(ExperienceTypeExchange))
}

func TestMatch_IsParticipant(t *testing.T) {
	hostID, requesterID := uuid.New(), uuid.New()
	m := &Match{HostID: hostID, RequesterID: requesterID}

	assert.True(t, m.IsParticipant(hostID))
	assert.True(t, m.IsParticipant(requesterID))
	assert.False(t, m.IsParticipant(uuid.New()))
}

func TestUser_Banned(t *testing.T) {
	now := time.Now()
	assert.False(t, (&User{}).Banned())
	assert.True(t, (&User{BannedAt: &now}).Banned())
}
