package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidalworks/harmgrid/internal/partition"
)

// fakeClock advances on every Sleep and can run a hook between poll rounds.
type fakeClock struct {
	now     time.Time
	sleeps  int
	onSleep func(round int)
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(_ context.Context, d time.Duration) error {
	c.now = c.now.Add(d)
	c.sleeps++
	if c.onSleep != nil {
		c.onSleep(c.sleeps)
	}
	return nil
}

func writeLog(t *testing.T, dir string, taskIndex int, content string) {
	t.Helper()
	name := filepath.Join(dir, "scrn.out_00"+string(rune('0'+taskIndex)))
	require.NoError(t, os.WriteFile(name, []byte(content), 0644))
}

func threeTaskPlan(t *testing.T) *partition.Plan {
	t.Helper()
	plan, err := partition.Split([]int{1, 2, 3, 4, 5, 6}, 3)
	require.NoError(t, err)
	return plan
}

func TestWaitAll_AllDoneImmediately(t *testing.T) {
	dir := t.TempDir()
	for i := 1; i <= 3; i++ {
		writeLog(t, dir, i, "...\nRun completed successfully\n")
	}

	clock := &fakeClock{now: time.Unix(0, 0)}
	w := &Watcher{Dir: dir, Marker: "Run completed successfully", Interval: 10 * time.Second, Clock: clock}

	var events []Event
	w.Notify = func(e Event) { events = append(events, e) }

	require.NoError(t, w.WaitAll(context.Background(), threeTaskPlan(t)))
	assert.Zero(t, clock.sleeps)
	require.Len(t, events, 3)
	for _, e := range events {
		assert.Equal(t, Done, e.State)
	}
}

// The barrier must hold while any single task's marker is missing.
func TestWaitAll_BlocksOnOneMissingMarker(t *testing.T) {
	dir := t.TempDir()
	writeLog(t, dir, 1, "Run completed successfully\n")
	writeLog(t, dir, 3, "Run completed successfully\n")
	writeLog(t, dir, 2, "still running\n") // marker withheld

	clock := &fakeClock{now: time.Unix(0, 0)}
	// Release task 2 only after three poll rounds.
	clock.onSleep = func(round int) {
		if round == 3 {
			writeLog(t, dir, 2, "still running\nRun completed successfully\n")
		}
	}

	w := &Watcher{Dir: dir, Marker: "Run completed successfully", Interval: 10 * time.Second, Clock: clock}
	require.NoError(t, w.WaitAll(context.Background(), threeTaskPlan(t)))
	assert.Equal(t, 3, clock.sleeps)
}

func TestWaitAll_MarkerAbsentLogAbsent(t *testing.T) {
	// No logs at all: each round sleeps, deadline eventually fires.
	clock := &fakeClock{now: time.Unix(0, 0)}
	w := &Watcher{
		Dir:      t.TempDir(),
		Marker:   "Run completed successfully",
		Interval: 10 * time.Second,
		Deadline: 35 * time.Second,
		Clock:    clock,
	}

	err := w.WaitAll(context.Background(), threeTaskPlan(t))
	require.Error(t, err)

	var ite *IncompleteTaskError
	require.ErrorAs(t, err, &ite)
	assert.Equal(t, 1, ite.TaskIndex)
	assert.Contains(t, ite.LogPath, "scrn.out_001")
	assert.GreaterOrEqual(t, ite.Waited, 35*time.Second)
}

func TestWaitAll_TimeoutNamesPendingTask(t *testing.T) {
	dir := t.TempDir()
	writeLog(t, dir, 1, "Run completed successfully\n")
	writeLog(t, dir, 3, "Run completed successfully\n")

	clock := &fakeClock{now: time.Unix(0, 0)}
	var events []Event
	w := &Watcher{
		Dir:      dir,
		Marker:   "Run completed successfully",
		Interval: 10 * time.Second,
		Deadline: time.Minute,
		Clock:    clock,
		Notify:   func(e Event) { events = append(events, e) },
	}

	err := w.WaitAll(context.Background(), threeTaskPlan(t))
	var ite *IncompleteTaskError
	require.ErrorAs(t, err, &ite)
	assert.Equal(t, 2, ite.TaskIndex)

	last := events[len(events)-1]
	assert.Equal(t, Event{TaskIndex: 2, State: TimedOut}, last)
}

func TestWaitAll_ContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	clock := &fakeClock{now: time.Unix(0, 0)}
	clock.onSleep = func(int) { cancel() }

	w := &Watcher{Dir: t.TempDir(), Marker: "x", Interval: time.Second, Clock: clock}
	// fakeClock.Sleep ignores ctx, so probe via the real follow-up round: the
	// watcher checks Sleep's return; emulate by wrapping.
	w.Clock = cancellingClock{clock, ctx}

	err := w.WaitAll(ctx, threeTaskPlan(t))
	require.ErrorIs(t, err, context.Canceled)
}

// cancellingClock cancels during Sleep and surfaces the context error the way
// the real clock does.
type cancellingClock struct {
	inner *fakeClock
	ctx   context.Context
}

func (c cancellingClock) Now() time.Time { return c.inner.Now() }

func (c cancellingClock) Sleep(ctx context.Context, d time.Duration) error {
	_ = c.inner.Sleep(ctx, d)
	return c.ctx.Err()
}
