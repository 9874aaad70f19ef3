package submission

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	apperrors "github.com/kurihiro0119/classroom-sync/internal/errors"
)

func writeMetadata(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "submit-01"), []byte(content), 0o644); err != nil {
		t.Fatalf("write metadata: %v", err)
	}
	return dir
}

func TestReaderRead(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		content string
		want    RawFields
	}{
		{
			name:    "four lines",
			content: "123456789\nbob@inst.edu\nBob Smith\nbsmith\n",
			want:    RawFields{ID: "123456789", Email: "bob@inst.edu", Name: "Bob Smith", Username: "bsmith"},
		},
		{
			name:    "whitespace and crlf are stripped",
			content: "  123456789 \r\n\tbob@inst.edu\r\nBob Smith  \r\nbsmith\r\n",
			want:    RawFields{ID: "123456789", Email: "bob@inst.edu", Name: "Bob Smith", Username: "bsmith"},
		},
		{
			name:    "trailing lines ignored",
			content: "123456789\nbob@inst.edu\nBob Smith\nbsmith\nextra\nmore\n",
			want:    RawFields{ID: "123456789", Email: "bob@inst.edu", Name: "Bob Smith", Username: "bsmith"},
		},
		{
			name:    "short file padded with empty strings",
			content: "123456789\nbob@inst.edu",
			want:    RawFields{ID: "123456789", Email: "bob@inst.edu"},
		},
		{
			name:    "empty file",
			content: "",
			want:    RawFields{},
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			dir := writeMetadata(t, tc.content)
			got, err := NewReader("submit-01", 0).Read(context.Background(), dir)
			if err != nil {
				t.Fatalf("Read() error = %v", err)
			}
			if got != tc.want {
				t.Fatalf("Read() = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestReaderRead_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := NewReader("submit-01", 0).Read(context.Background(), t.TempDir())
	if !apperrors.IsMissingMetadata(err) {
		t.Fatalf("Read() error = %v, want MISSING_METADATA", err)
	}
}

func TestReaderRead_Directory(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "submit-01"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	_, err := NewReader("submit-01", 0).Read(context.Background(), dir)
	if !apperrors.IsMissingMetadata(err) {
		t.Fatalf("Read() error = %v, want MISSING_METADATA", err)
	}
}

func TestReaderRead_CanceledContext(t *testing.T) {
	t.Parallel()

	dir := writeMetadata(t, "123456789\n")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// either branch of the race is acceptable, but a canceled read must
	// never succeed silently with partial data
	_, err := NewReader("submit-01", 0).Read(ctx, dir)
	if err != nil && !apperrors.IsMissingMetadata(err) {
		t.Fatalf("Read() error = %v, want nil or MISSING_METADATA", err)
	}
}
