package queue

import (
	"fmt"
	"sort"
	"time"

	"barberq/internal/models"
	"barberq/internal/store"
)

// DurationFunc resolves a service id to its expected duration in minutes.
type DurationFunc func(serviceID string) (int, bool)

// SortChain orders a barber's active tickets the way the engine walks them:
// the in-progress ticket first (the chair is occupied until it ends, whatever
// its prior slot was), then estimated start ascending, ties broken by creation
// time (FIFO). Tickets without an estimate yet sort by creation time. The
// input is not modified.
func SortChain(chain []models.Ticket) []models.Ticket {
	sorted := make([]models.Ticket, len(chain))
	copy(sorted, chain)
	sort.SliceStable(sorted, func(i, j int) bool {
		ip, jp := sorted[i].Status == models.StatusInProgress, sorted[j].Status == models.StatusInProgress
		if ip != jp {
			return ip
		}
		a, b := chainKey(sorted[i]), chainKey(sorted[j])
		if !a.Equal(b) {
			return a.Before(b)
		}
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})
	return sorted
}

func chainKey(t models.Ticket) time.Time {
	if t.EstimatedStart != nil {
		return *t.EstimatedStart
	}
	return t.CreatedAt
}

// PlanJoin returns the tentative start for a ticket appended at the end of
// the barber's line: the later of now and the last active ticket's estimated
// end, or now for an empty chain. The recalculation pass that follows the
// insert corrects for any clock drift.
func PlanJoin(chain []models.Ticket, now time.Time) time.Time {
	sorted := SortChain(chain)
	for i := len(sorted) - 1; i >= 0; i-- {
		if end := sorted[i].EstimatedEnd; end != nil {
			if end.After(now) {
				return *end
			}
			return now
		}
	}
	return now
}

// Recalculate rewrites the estimates of one barber's active chain after a
// mutation. The in-progress ticket, if any, anchors the timeline at
// actualStart + duration; its estimated start stays pinned to actualStart.
// Every waiting or called ticket is then laid out back to back. Returns the
// recalculated chain in order plus the subset whose estimates changed.
//
// The pass is idempotent: with no mutation and a frozen clock, re-running it
// yields identical timestamps, because the anchor is driven by actualStart
// rather than now.
func Recalculate(chain []models.Ticket, durations DurationFunc, now time.Time) ([]models.Ticket, []models.Ticket, error) {
	sorted := SortChain(chain)
	var changed []models.Ticket

	timeline := now
	for i := range sorted {
		t := &sorted[i]
		minutes, ok := durations(t.ServiceID)
		if !ok {
			return nil, nil, fmt.Errorf("ticket %s: %w", t.TicketID, store.ErrServiceNotFound)
		}
		duration := time.Duration(minutes) * time.Minute

		var start time.Time
		if t.Status == models.StatusInProgress {
			if t.ActualStart == nil {
				return nil, nil, fmt.Errorf("ticket %s: in progress without actual start", t.TicketID)
			}
			start = *t.ActualStart
		} else {
			start = timeline
		}
		end := start.Add(duration)

		if setEstimate(t, start, end) {
			changed = append(changed, *t)
		}
		timeline = end
	}
	return sorted, changed, nil
}

func setEstimate(t *models.Ticket, start, end time.Time) bool {
	dirty := false
	if t.EstimatedStart == nil || !t.EstimatedStart.Equal(start) {
		s := start
		t.EstimatedStart = &s
		dirty = true
	}
	if t.EstimatedEnd == nil || !t.EstimatedEnd.Equal(end) {
		e := end
		t.EstimatedEnd = &e
		dirty = true
	}
	return dirty
}
