package errors

import (
	"errors"
	"fmt"
	"os"

	"github.com/julianstephens/habitual/internal/constants"
	"github.com/julianstephens/habitual/internal/habits"
	"github.com/julianstephens/habitual/internal/keyring"
	"github.com/julianstephens/habitual/internal/logger"
	"github.com/julianstephens/habitual/internal/storage"
	"github.com/julianstephens/habitual/internal/sync/postgres"
)

// Exit codes
const (
	ExitFailure = 1
	ExitUsage   = 2
)

type hint struct {
	target error
	text   string
}

var hints = []hint{
	{habits.ErrHabitNotFound, "run 'habitual habit list --all' to see habit ids and names"},
	{habits.ErrCategoryNotFound, "run 'habitual category list' to see category ids"},
	{storage.ErrStorageTimeout, "local storage stopped responding; check the data directory, then run 'habitual doctor'"},
	{keyring.ErrKeyringUnavailable, fmt.Sprintf("set %s instead of using the OS keyring", constants.DefaultSyncConnectionEnv)},
	{postgres.ErrEmbeddedCredentials, "keep the password in ~/.pgpass or PGPASSWORD"},
}

// Hint returns a suggested next step for err, or "".
func Hint(err error) string {
	for _, h := range hints {
		if errors.Is(err, h.target) {
			return h.text
		}
	}
	return ""
}

// Format renders err for the terminal: an "Error: " line plus a hint line
// when one is known.
func Format(err error) string {
	if err == nil {
		return ""
	}
	msg := fmt.Sprintf("Error: %v", err)
	if h := Hint(err); h != "" {
		msg += "\nHint: " + h
	}
	return msg
}

// ExitCode maps err to the process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, habits.ErrInvalidInput):
		return ExitUsage
	default:
		return ExitFailure
	}
}

// Fatal logs err, prints it and exits. A nil err is a no-op.
func Fatal(err error) {
	if err == nil {
		return
	}
	logger.Error("Command execution failed", "error", err)
	fmt.Fprintln(os.Stderr, Format(err))
	os.Exit(ExitCode(err))
}
