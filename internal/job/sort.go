package job

import (
	"time"

	"github.com/lunarchive/lunarchive/internal/domain"
)

// SortKey returns the display ordering tuple: the status priority and a
// reference time. ok is false when no reference time applies.
func (j *Job) SortKey() (priority int, ref time.Time, ok bool) {
	j.mu.Lock()
	defer j.mu.Unlock()

	priority = j.snap.Status.SortPriority()
	switch {
	case j.snap.Status == domain.StatusFinished && j.snap.FinishedAt != nil:
		return priority, *j.snap.FinishedAt, true
	case j.snap.Status == domain.StatusWaiting && j.snap.ScheduledStart != nil:
		return priority, *j.snap.ScheduledStart, true
	case len(j.snap.MessageLog) > 0:
		return priority, j.snap.MessageLog[len(j.snap.MessageLog)-1].EventTime, true
	default:
		return priority, time.Time{}, false
	}
}

// Less orders jobs for display: higher status priority first, then
// later reference time first. Among Waiting jobs this puts the
// furthest-out scheduled start on top; that ordering is intentional
// and load-bearing for the task list. Jobs sharing priority 0, or
// missing a reference time, keep their insertion order.
func Less(a, b *Job) bool {
	pa, ta, oka := a.SortKey()
	pb, tb, okb := b.SortKey()
	if pa != pb {
		return pa > pb
	}
	if pa == 0 || !oka || !okb {
		return false
	}
	return ta.After(tb)
}
