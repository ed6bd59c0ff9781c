package cmd

import (
	"testing"

	"roomlink/internal/core/domain"

	"github.com/stretchr/testify/assert"
)

func TestRenderPeerTable(t *testing.T) {
	out := renderPeerTable("standup", []domain.RemotePeerInfo{
		{
			ID:      "peer-a",
			Role:    domain.RoleInitiator,
			State:   domain.StateConnected,
			Quality: domain.QualitySample{RoundTripTime: 0.25, PacketsLost: 3},
		},
		{ID: "peer-b", Role: domain.RoleResponder, State: domain.StateNegotiating},
	})

	assert.Contains(t, out, "standup")
	assert.Contains(t, out, "peer-a")
	assert.Contains(t, out, "250ms")
	assert.Contains(t, out, "peer-b")
	assert.Contains(t, out, "negotiating")
}

func TestRenderPeerTable_Empty(t *testing.T) {
	assert.Contains(t, renderPeerTable("standup", nil), "no other members yet")
}
