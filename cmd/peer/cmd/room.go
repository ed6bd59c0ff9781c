package cmd

import (
	"fmt"
	"net/url"
	"strings"

	"roomlink/internal/core/domain"
	"roomlink/pkg/validation"

	"github.com/google/uuid"
)

// resolveRoomID accepts a bare room id or an invite link carrying ?room=.
// An empty value starts a new room.
func resolveRoomID(value string) (domain.RoomID, bool, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return domain.RoomID(uuid.NewString()), true, nil
	}

	if strings.Contains(value, "://") {
		u, err := url.Parse(value)
		if err != nil {
			return "", false, fmt.Errorf("invalid invite link: %w", err)
		}
		value = u.Query().Get("room")
		if value == "" {
			return "", false, fmt.Errorf("invite link has no room parameter")
		}
	}

	if err := validation.ValidateRoomID(value); err != nil {
		return "", false, err
	}
	return domain.RoomID(value), false, nil
}

// inviteLink derives the shareable link for roomID from the relay URL.
func inviteLink(relayURL string, roomID domain.RoomID) string {
	u, err := url.Parse(relayURL)
	if err != nil {
		return string(roomID)
	}
	switch u.Scheme {
	case "wss":
		u.Scheme = "https"
	default:
		u.Scheme = "http"
	}
	u.Path = "/"
	u.RawQuery = url.Values{"room": {string(roomID)}}.Encode()
	return u.String()
}
