package runtime

import (
	"context"
	"fmt"
	"log/slog"
)

// LogCommitter records finished journeys in the log only. It is the
// committer used when no persistent plugin is configured.
type LogCommitter struct {
	l *slog.Logger
}

func NewLogCommitter(l *slog.Logger) *LogCommitter {
	return &LogCommitter{l: l}
}

func (c *LogCommitter) Commit(ctx context.Context, s *Session) error {
	c.l.InfoContext(ctx, fmt.Sprintf("Committed journey: %s", s.JourneyType),
		"session_id", s.ID,
		"answers", len(s.Answers),
		"items", len(s.Items))
	return nil
}
