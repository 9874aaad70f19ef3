package domain

// RunStats are the totals of a run
type RunStats struct {
	RunID      string         `json:"run_id"`
	Discovered int            `json:"discovered"`
	OnTime     int            `json:"on_time"`
	Late       int            `json:"late"`
	Invalid    int            `json:"invalid"`
	ByReason   map[Reason]int `json:"by_reason"`
}

// RunDiff lists repositories whose outcome changed between two runs
type RunDiff struct {
	BaseRunID string   `json:"base_run_id"`
	HeadRunID string   `json:"head_run_id"`
	Promoted  []string `json:"promoted"`  // invalid in base, recorded in head
	Regressed []string `json:"regressed"` // recorded in base, invalid in head
	Added     []string `json:"added"`     // only discovered in head
	Removed   []string `json:"removed"`   // only discovered in base
}
