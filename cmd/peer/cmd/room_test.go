package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveRoomID(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		want    string
		wantErr bool
	}{
		{name: "bare id", value: "standup", want: "standup"},
		{name: "trimmed", value: "  standup ", want: "standup"},
		{name: "invite link", value: "https://meet.example.com/?room=abc-123", want: "abc-123"},
		{name: "invite without room", value: "https://meet.example.com/", wantErr: true},
		{name: "invalid characters", value: "a room", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, created, err := resolveRoomID(tt.value)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.False(t, created)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestResolveRoomID_GeneratesWhenEmpty(t *testing.T) {
	a, created, err := resolveRoomID("")
	require.NoError(t, err)
	assert.True(t, created)

	b, _, err := resolveRoomID("")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestInviteLink(t *testing.T) {
	assert.Equal(t, "http://localhost:8081/?room=r1", inviteLink("ws://localhost:8081/ws", "r1"))
	assert.Equal(t, "https://relay.example.com/?room=r1", inviteLink("wss://relay.example.com/ws", "r1"))
}
