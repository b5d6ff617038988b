package notify

import (
	"context"
	"errors"

	"github.com/julianstephens/habitual/internal/logger"
	"github.com/julianstephens/habitual/internal/models"
)

// Notifier is told about completion changes after they are persisted.
// Delivery failures never affect the change itself.
type Notifier interface {
	EntryToggled(ctx context.Context, habit models.HabitWithCategory, entry models.HabitEntry) error
}

// LogNotifier records toggles in the application log.
type LogNotifier struct{}

func (LogNotifier) EntryToggled(_ context.Context, habit models.HabitWithCategory, entry models.HabitEntry) error {
	logger.Info("Habit entry toggled",
		"habit", habit.Name,
		"date", entry.EntryDate,
		"completed", entry.IsCompleted,
	)
	return nil
}

// Multi fans a toggle out to several notifiers and joins their errors.
type Multi []Notifier

func (m Multi) EntryToggled(ctx context.Context, habit models.HabitWithCategory, entry models.HabitEntry) error {
	var errs []error
	for _, n := range m {
		if err := n.EntryToggled(ctx, habit, entry); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
