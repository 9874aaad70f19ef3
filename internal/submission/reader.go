package submission

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	apperrors "github.com/kurihiro0119/classroom-sync/internal/errors"
)

// metadataLines is the number of lines read from the metadata file, in the
// order id, email, name, username. Later lines are ignored.
const metadataLines = 4

// RawFields are the trimmed, uninterpreted metadata lines
type RawFields struct {
	ID       string
	Email    string
	Name     string
	Username string
}

// Reader reads the metadata file of a working copy
type Reader struct {
	fileName string
	timeout  time.Duration
}

// NewReader creates a Reader for fileName. A zero timeout disables the
// per-read bound.
func NewReader(fileName string, timeout time.Duration) *Reader {
	return &Reader{fileName: fileName, timeout: timeout}
}

// Read returns the first four lines of the metadata file in localPath.
// A missing, unreadable or timed out file yields a MISSING_METADATA error.
// Short files are padded with empty strings.
func (r *Reader) Read(ctx context.Context, localPath string) (RawFields, error) {
	path := filepath.Join(localPath, r.fileName)

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	type result struct {
		lines []string
		err   error
	}
	done := make(chan result, 1)
	go func() {
		lines, err := readLines(path, metadataLines)
		done <- result{lines: lines, err: err}
	}()

	select {
	case <-ctx.Done():
		return RawFields{}, apperrors.NewMissingMetadataError(path, ctx.Err())
	case res := <-done:
		if res.err != nil {
			return RawFields{}, apperrors.NewMissingMetadataError(path, res.err)
		}
		return RawFields{
			ID:       res.lines[0],
			Email:    res.lines[1],
			Name:     res.lines[2],
			Username: res.lines[3],
		}, nil
	}
}

func readLines(path string, n int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}

	lines := make([]string, n)
	scanner := bufio.NewScanner(f)
	for i := 0; i < n && scanner.Scan(); i++ {
		lines[i] = strings.TrimSpace(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}
