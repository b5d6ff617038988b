package errors

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"testing"

	"github.com/julianstephens/habitual/internal/habits"
	"github.com/julianstephens/habitual/internal/keyring"
	"github.com/julianstephens/habitual/internal/storage"
)

func TestFormat(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{name: "nil error", err: nil, expected: ""},
		{name: "simple error", err: errors.New("unable to save"), expected: "Error: unable to save"},
		{
			name:     "wrapped habit not found",
			err:      fmt.Errorf("toggle: %w", habits.ErrHabitNotFound),
			expected: "Error: toggle: habit not found\nHint: run 'habitual habit list --all' to see habit ids and names",
		},
		{
			name:     "storage timeout",
			err:      &habits.StoreError{Op: "load", Err: storage.ErrStorageTimeout},
			expected: "Error: load: " + storage.ErrStorageTimeout.Error() + "\nHint: local storage stopped responding; check the data directory, then run 'habitual doctor'",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := Format(tt.err); result != tt.expected {
				t.Errorf("Format(%v) = %q, want %q", tt.err, result, tt.expected)
			}
		})
	}
}

func TestHint(t *testing.T) {
	if got := Hint(errors.New("boom")); got != "" {
		t.Errorf("Hint(unknown) = %q, want empty", got)
	}
	got := Hint(fmt.Errorf("open keyring: %w", keyring.ErrKeyringUnavailable))
	if !strings.Contains(got, "HABITUAL_SYNC_CONNECTION") {
		t.Errorf("Hint(keyring unavailable) = %q, want the connection env var", got)
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "nil", err: nil, want: 0},
		{name: "invalid input", err: fmt.Errorf("%w: name is required", habits.ErrInvalidInput), want: ExitUsage},
		{name: "other", err: habits.ErrCategoryNotFound, want: ExitFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

// TestFatal runs Fatal in a helper process since it exits
func TestFatal(t *testing.T) {
	if os.Getenv("GO_TEST_FATAL") == "1" {
		Fatal(errors.New("test error"))
		return
	}

	cmd := exec.Command(os.Args[0], "-test.run=TestFatal$")
	cmd.Env = append(os.Environ(), "GO_TEST_FATAL=1")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	if e, ok := err.(*exec.ExitError); ok && !e.Success() {
		if e.ExitCode() != 1 {
			t.Errorf("Fatal() exit code = %d, want 1", e.ExitCode())
		}
		if !strings.Contains(stderr.String(), "Error: test error") {
			t.Errorf("Fatal() stderr = %q, want to contain %q", stderr.String(), "Error: test error")
		}
	} else {
		t.Errorf("Fatal() did not exit with error: %v", err)
	}
}

func TestFatal_NilError(t *testing.T) {
	if os.Getenv("GO_TEST_FATAL_NIL") == "1" {
		Fatal(nil)
		os.Exit(0)
	}

	cmd := exec.Command(os.Args[0], "-test.run=TestFatal_NilError")
	cmd.Env = append(os.Environ(), "GO_TEST_FATAL_NIL=1")
	if err := cmd.Run(); err != nil {
		t.Errorf("Fatal(nil) should not exit, but got error: %v", err)
	}
}
