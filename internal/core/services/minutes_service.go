package services

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"roomlink/internal/core/domain"
	"roomlink/internal/core/ports"
	"roomlink/pkg/utils"
	"roomlink/pkg/validation"

	"go.uber.org/zap"
)

// actionCue matches the phrases that mark a transcript line as an action item.
var actionCue = regexp.MustCompile(`(?i)\b(action items?|todo|to-do|will|need to|needs to|follow[ -]up|assign(ed|s)?)\b`)

type minutesService struct {
	repo   ports.TranscriptRepository
	logger *zap.SugaredLogger
}

func NewMinutesService(repo ports.TranscriptRepository, logger *zap.SugaredLogger) ports.MinutesService {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &minutesService{repo: repo, logger: logger}
}

// SubmitTranscript stores the lines for sessionID, replacing any earlier submission.
func (s *minutesService) SubmitTranscript(ctx context.Context, sessionID domain.SessionID, lines []string) error {
	if err := validation.ValidateSessionID(string(sessionID)); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidTranscript, err)
	}
	if err := validation.ValidateTranscript(lines); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidTranscript, err)
	}

	clean := make([]string, 0, len(lines))
	for _, line := range lines {
		if line = utils.CollapseSpaces(utils.SanitizeString(line)); line != "" {
			clean = append(clean, line)
		}
	}

	transcript := &domain.Transcript{
		SessionID: sessionID,
		Lines:     clean,
		UpdatedAt: time.Now(),
	}
	if err := s.repo.Save(ctx, transcript); err != nil {
		return fmt.Errorf("failed to save transcript %s: %w", sessionID, err)
	}

	s.logger.Infow("transcript stored", "session_id", sessionID, "lines", len(clean))
	return nil
}

// GetMinutes extracts the action items from the stored transcript.
func (s *minutesService) GetMinutes(ctx context.Context, sessionID domain.SessionID) (*domain.Minutes, error) {
	transcript, err := s.repo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	return &domain.Minutes{
		SessionID:   sessionID,
		ActionItems: ExtractActionItems(transcript.Lines),
	}, nil
}

// ExtractActionItems returns the lines containing an action cue, trimmed and
// de-duplicated, in transcript order.
func ExtractActionItems(lines []string) []string {
	items := []string{}
	seen := make(map[string]struct{})
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || !actionCue.MatchString(line) {
			continue
		}
		key := strings.ToLower(line)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		items = append(items, line)
	}
	return items
}
