package submission

import (
	"time"

	"github.com/kurihiro0119/classroom-sync/internal/domain"
)

// Classify compares the commit instant with deadline. A nil deadline means
// every submission is on time; a commit exactly at the deadline is on time.
func Classify(commitTime time.Time, deadline *time.Time) domain.Status {
	if deadline == nil {
		return domain.StatusOnTime
	}
	if commitTime.After(*deadline) {
		return domain.StatusLate
	}
	return domain.StatusOnTime
}
