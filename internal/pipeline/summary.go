package pipeline

import (
	"time"

	"go.uber.org/zap"
)

// Failure records one deal that could not be fully processed.
type Failure struct {
	DealID   string
	Folder   string
	Document string
	Message  string
}

// Summary accumulates the outcome of a run across deal folders.
type Summary struct {
	Processed int
	Updated   int
	Skipped   int
	Failed    int
	Failures  []Failure
	Started   time.Time
	Finished  time.Time
}

// NewSummary starts a summary clock.
func NewSummary() *Summary {
	return &Summary{Started: time.Now()}
}

// AddFailure records a failed deal.
func (s *Summary) AddFailure(dealID, folder, document, message string) {
	s.Failed++
	s.Failures = append(s.Failures, Failure{
		DealID:   dealID,
		Folder:   folder,
		Document: document,
		Message:  message,
	})
}

// OK reports whether the run had no failures.
func (s *Summary) OK() bool {
	return s.Failed == 0
}

// Log emits the run summary with structured fields, one line per failure.
func (s *Summary) Log() {
	if s.Finished.IsZero() {
		s.Finished = time.Now()
	}
	zap.L().Info("run summary",
		zap.Int("processed", s.Processed),
		zap.Int("updated", s.Updated),
		zap.Int("skipped", s.Skipped),
		zap.Int("failed", s.Failed),
		zap.Duration("elapsed", s.Finished.Sub(s.Started)),
	)
	for _, f := range s.Failures {
		zap.L().Error("deal failed",
			zap.String("deal_id", f.DealID),
			zap.String("folder", f.Folder),
			zap.String("document", f.Document),
			zap.String("reason", f.Message),
		)
	}
}
