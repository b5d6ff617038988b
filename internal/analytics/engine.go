package analytics

import (
	"time"

	"github.com/julianstephens/habitual/internal/constants"
	"github.com/julianstephens/habitual/internal/logger"
	"github.com/julianstephens/habitual/internal/models"
	"github.com/julianstephens/habitual/internal/utils"
)

// Options configures an Engine. Zero values fall back to the defaults.
type Options struct {
	StreakTTL time.Duration
	StatsTTL  time.Duration
	Location  *time.Location
	Now       func() time.Time
}

// Engine memoizes streak and stats computations per (habit, user).
type Engine struct {
	loc *time.Location
	now func() time.Time

	streaks *Cache[models.HabitStreak]
	stats   *Cache[models.HabitStats]
}

func NewEngine(opts Options) *Engine {
	if opts.StreakTTL <= 0 {
		opts.StreakTTL = constants.DefaultStreakTTL
	}
	if opts.StatsTTL <= 0 {
		opts.StatsTTL = constants.DefaultStatsTTL
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{
		loc:     opts.Location,
		now:     opts.Now,
		streaks: NewCache[models.HabitStreak](opts.StreakTTL, opts.Now),
		stats:   NewCache[models.HabitStats](opts.StatsTTL, opts.Now),
	}
}

// Today returns the current local date.
func (e *Engine) Today() string {
	return utils.Today(e.now(), e.loc)
}

// Streak returns the cached streak for the habit or computes it from
// entries. On failure it logs, drops the cache entry and returns zeros.
func (e *Engine) Streak(habitID, userID string, entries []models.HabitEntry) models.HabitStreak {
	key := Key{HabitID: habitID, UserID: userID}
	if s, ok := e.streaks.Get(key); ok {
		return s
	}

	s, err := CalculateStreak(entries, e.Today())
	if err != nil {
		logger.Error("Failed to calculate streak", "habit", habitID, "error", err)
		e.streaks.Delete(key)
		return models.HabitStreak{}
	}
	e.streaks.Set(key, s)
	return s
}

// Stats is the Streak counterpart for HabitStats.
func (e *Engine) Stats(habitID, userID string, entries []models.HabitEntry) models.HabitStats {
	key := Key{HabitID: habitID, UserID: userID}
	if s, ok := e.stats.Get(key); ok {
		return s
	}

	s, err := CalculateStats(entries, e.Today())
	if err != nil {
		logger.Error("Failed to calculate stats", "habit", habitID, "error", err)
		e.stats.Delete(key)
		return models.HabitStats{}
	}
	e.stats.Set(key, s)
	return s
}

// Invalidate drops both cached results for a habit.
func (e *Engine) Invalidate(habitID, userID string) {
	key := Key{HabitID: habitID, UserID: userID}
	e.streaks.Delete(key)
	e.stats.Delete(key)
}

func (e *Engine) InvalidateAll() {
	e.streaks.Clear()
	e.stats.Clear()
}
