package domain

import "time"

type Transcript struct {
	SessionID SessionID `json:"sessionId"`
	Lines     []string  `json:"transcript"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Minutes holds the action items extracted from a transcript.
type Minutes struct {
	SessionID   SessionID `json:"sessionId"`
	ActionItems []string  `json:"actionItems"`
}
