package domain

import "time"

// SubmitTimeLayout renders the last-commit time in reports.
const SubmitTimeLayout = "15:04 02 Jan 2006"

// Status represents the timeliness of a submission
type Status string

const (
	StatusOnTime Status = "ON_TIME"
	StatusLate   Status = "LATE"
)

// Reason tags why a repository did not produce a SubmissionRecord
type Reason string

const (
	ReasonCloneFailed           Reason = "CLONE_FAILED"
	ReasonMissingMetadata       Reason = "MISSING_METADATA"
	ReasonFieldValidationFailed Reason = "FIELD_VALIDATION_FAILED"
)

// Identity holds the four validated metadata fields
type Identity struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Username string `json:"username"`
}

// SubmissionRecord represents one successfully validated repository
type SubmissionRecord struct {
	Identity
	Repo       string    `json:"repo"`
	RepoPath   string    `json:"repo_path"`
	SubmitTime string    `json:"submit_time"`
	Status     Status    `json:"status"`
	CommitTime time.Time `json:"-"`
}

// NewSubmissionRecord builds a record from an already validated identity.
func NewSubmissionRecord(identity Identity, repo, repoPath string, commitTime time.Time, status Status) SubmissionRecord {
	return SubmissionRecord{
		Identity:   identity,
		Repo:       repo,
		RepoPath:   repoPath,
		SubmitTime: commitTime.Local().Format(SubmitTimeLayout),
		Status:     status,
		CommitTime: commitTime,
	}
}

// InvalidSubmission represents a repository that could not be recorded
type InvalidSubmission struct {
	Repo   string   `json:"repo"`
	Reason Reason   `json:"reason"`
	Fields []string `json:"fields,omitempty"`
	Detail string   `json:"detail,omitempty"`
}

// BatchResult is the outcome of one run. Records and Invalid follow
// discovery order.
type BatchResult struct {
	Records    []SubmissionRecord  `json:"records"`
	Discovered int                 `json:"discovered"`
	Late       int                 `json:"late"`
	Invalid    []InvalidSubmission `json:"invalid"`
}

// InvalidNames returns the names of invalid repositories in order.
func (b *BatchResult) InvalidNames() []string {
	names := make([]string, 0, len(b.Invalid))
	for _, inv := range b.Invalid {
		names = append(names, inv.Repo)
	}
	return names
}

// CountByReason counts invalid submissions per reason.
func (b *BatchResult) CountByReason() map[Reason]int {
	counts := make(map[Reason]int)
	for _, inv := range b.Invalid {
		counts[inv.Reason]++
	}
	return counts
}
