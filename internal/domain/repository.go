package domain

import "time"

// WorkingCopy describes a synchronized local checkout
type WorkingCopy struct {
	Name       string
	Path       string
	CommitTime time.Time
	Cloned     bool // false when an existing working copy was reused
}
