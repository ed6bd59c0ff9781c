package validation

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	maxIDLength         = 100
	maxTranscriptLines  = 10000
	maxTranscriptLength = 4096
)

var (
	// IDRegex matches room, peer and session identifiers
	IDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

func validateID(id, field string) error {
	if id == "" {
		return fmt.Errorf("%s is required", field)
	}
	if len(id) > maxIDLength {
		return fmt.Errorf("%s is too long (max %d characters)", field, maxIDLength)
	}
	if !IDRegex.MatchString(id) {
		return fmt.Errorf("invalid %s format", field)
	}
	return nil
}

// ValidateRoomID validates room ID
func ValidateRoomID(roomID string) error {
	return validateID(roomID, "room ID")
}

// ValidatePeerID validates peer ID
func ValidatePeerID(peerID string) error {
	return validateID(peerID, "peer ID")
}

// ValidateSessionID validates a transcript session ID
func ValidateSessionID(sessionID string) error {
	return validateID(sessionID, "session ID")
}

// ValidateTranscript validates the lines of a submitted transcript
func ValidateTranscript(lines []string) error {
	if lines == nil {
		return fmt.Errorf("transcript is required")
	}
	if len(lines) > maxTranscriptLines {
		return fmt.Errorf("transcript is too long (max %d lines)", maxTranscriptLines)
	}
	for i, line := range lines {
		if !utf8.ValidString(line) {
			return fmt.Errorf("transcript line %d contains invalid characters", i)
		}
		if len(line) > maxTranscriptLength {
			return fmt.Errorf("transcript line %d is too long (max %d bytes)", i, maxTranscriptLength)
		}
	}
	return nil
}

// ValidateRelayURL validates the address of a signaling relay
func ValidateRelayURL(urlStr string) error {
	if urlStr == "" {
		return fmt.Errorf("URL is required")
	}
	u, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" && u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("invalid URL scheme (must be http, https, ws, or wss)")
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}

// ValidateICEServerURL checks a stun:, stuns:, turn: or turns: URL
func ValidateICEServerURL(s string) error {
	for _, scheme := range []string{"stun:", "stuns:", "turn:", "turns:"} {
		if strings.HasPrefix(s, scheme) && len(s) > len(scheme) {
			return nil
		}
	}
	return fmt.Errorf("invalid ICE server URL %q", s)
}

// ValidateNonEmptyString validates that string is not empty after trimming
func ValidateNonEmptyString(s, fieldName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%s is required", fieldName)
	}
	return nil
}
