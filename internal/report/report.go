package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kurihiro0119/classroom-sync/internal/domain"
)

// Output file names under the report directory
const (
	StudentsFile = "students.json"
	InvalidsFile = "invalids"
	SummaryFile  = "summary.json"
)

// Summary is the machine-readable account of a run
type Summary struct {
	RunID      string                     `json:"run_id"`
	Org        string                     `json:"org"`
	Prefix     string                     `json:"prefix"`
	Deadline   *time.Time                 `json:"deadline,omitempty"`
	StartedAt  time.Time                  `json:"started_at"`
	FinishedAt time.Time                  `json:"finished_at"`
	Discovered int                        `json:"discovered"`
	Recorded   int                        `json:"recorded"`
	Late       int                        `json:"late"`
	Invalid    []domain.InvalidSubmission `json:"invalid"`
}

// NewSummary builds the summary of a completed run
func NewSummary(run *domain.Run) Summary {
	res := run.Result
	return Summary{
		RunID:      run.ID,
		Org:        run.Org,
		Prefix:     run.Prefix,
		Deadline:   run.Deadline,
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
		Discovered: res.Discovered,
		Recorded:   len(res.Records),
		Late:       res.Late,
		Invalid:    res.Invalid,
	}
}

// Write persists the roster of run into dir. students.json holds the ordered
// records, invalids one repository name per line, summary.json the totals.
// An existing invalids file is removed when the run has no invalid
// submissions so it never describes an older run.
func Write(dir string, run *domain.Run) error {
	if run == nil || run.Result == nil {
		return fmt.Errorf("run has no result")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}

	if err := writeJSON(filepath.Join(dir, StudentsFile), run.Result.Records); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(dir, SummaryFile), NewSummary(run)); err != nil {
		return err
	}

	invalidsPath := filepath.Join(dir, InvalidsFile)
	names := run.Result.InvalidNames()
	if len(names) == 0 {
		if err := os.Remove(invalidsPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove %s: %w", invalidsPath, err)
		}
		return nil
	}
	return writeFileAtomic(invalidsPath, []byte(strings.Join(names, "\n")+"\n"))
}

// ReadRecords loads students.json from dir
func ReadRecords(dir string) ([]domain.SubmissionRecord, error) {
	data, err := os.ReadFile(filepath.Join(dir, StudentsFile))
	if err != nil {
		return nil, err
	}
	var records []domain.SubmissionRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", StudentsFile, err)
	}
	return records, nil
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
	}
	return writeFileAtomic(path, append(data, '\n'))
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
