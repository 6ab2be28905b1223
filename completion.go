package breathe

import (
	"errors"
	"math"
)

// DefaultCompletionThreshold is the percentage at which a session counts as
// completed for streak and daily-task credit.
const DefaultCompletionThreshold = 100

var (
	ErrInvalidTransition = errors.New("invalid session transition")
	ErrInvalidDuration   = errors.New("target duration is not a supported preset")
	ErrTechniqueRequired = errors.New("technique selection is required")
	ErrSessionActive     = errors.New("a breathing session is already active")
	ErrNoActiveSession   = errors.New("no active breathing session")
	ErrSessionFinishing  = errors.New("session reached its target and must be completed")
)

// CompletedPercentage returns min(100, round(actual/target*100)), never below 0.
// Both arguments are whole seconds, the unit reported to the backend.
func CompletedPercentage(actualSeconds, targetSeconds int) int {
	if targetSeconds <= 0 || actualSeconds <= 0 {
		return 0
	}
	pct := int(math.Round(float64(actualSeconds) / float64(targetSeconds) * 100))
	return min(100, max(0, pct))
}

// IsCompleted applies the completion threshold. A non-positive threshold falls
// back to DefaultCompletionThreshold.
func IsCompleted(percentage, threshold int) bool {
	if threshold <= 0 || threshold > 100 {
		threshold = DefaultCompletionThreshold
	}
	return percentage >= threshold
}
