package patterns

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Scheduler runs recognition passes on a cron schedule in addition to the
// batch trigger. The recognizer's single-flight guard keeps a scheduled pass
// from overlapping a triggered one.
type Scheduler struct {
	recognizer *Recognizer
	cron       *cron.Cron
	logger     *slog.Logger
}

// NewScheduler wires a recognizer onto a cron schedule, e.g. "@every 10m".
func NewScheduler(recognizer *Recognizer, schedule string, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		recognizer: recognizer,
		cron:       cron.New(),
		logger:     logger,
	}
	_, err := s.cron.AddFunc(schedule, s.run)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern schedule %q: %w", schedule, err)
	}
	return s, nil
}

func (s *Scheduler) run() {
	ctx := context.Background()
	patterns, err := s.recognizer.Recognize(ctx)
	if err != nil {
		if errors.Is(err, ErrRunInProgress) {
			return
		}
		s.logger.ErrorContext(ctx, "scheduled pattern recognition failed", "error", err)
		return
	}
	s.logger.InfoContext(ctx, "scheduled pattern recognition finished", "patterns", len(patterns))
}

// Start begins scheduled execution.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling and waits for a running pass to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
