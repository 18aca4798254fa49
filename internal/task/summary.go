package task

import (
	"slices"
	"time"
)

const (
	SummarySampleSize = 10
	UpcomingDays      = 6
)

type Summary struct {
	Overdue       int    `json:"overdue"`
	OverdueItems  []Task `json:"overdueItems"`
	Today         int    `json:"today"`
	TodayItems    []Task `json:"todayItems"`
	Upcoming      int    `json:"upcoming"`
	UpcomingItems []Task `json:"upcomingItems"`
	TotalOpen     int    `json:"totalOpen"`
}

// Summarize buckets the open, active tasks by due date relative to the
// calendar day of now in now's location.
func Summarize(tasks []Task, now time.Time) Summary {
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	tomorrow := midnight.AddDate(0, 0, 1)
	horizon := tomorrow.AddDate(0, 0, UpcomingDays)

	var overdue, today, upcoming []Task
	s := Summary{}
	for _, t := range tasks {
		if t.IsArchived() || t.IsDone() {
			continue
		}
		s.TotalOpen++
		if t.DueAt == nil {
			continue
		}
		due := *t.DueAt
		switch {
		case due.Before(midnight):
			overdue = append(overdue, t)
		case due.Before(tomorrow):
			today = append(today, t)
		case due.Before(horizon):
			upcoming = append(upcoming, t)
		}
	}
	s.Overdue, s.OverdueItems = len(overdue), sample(overdue)
	s.Today, s.TodayItems = len(today), sample(today)
	s.Upcoming, s.UpcomingItems = len(upcoming), sample(upcoming)
	return s
}

func sample(tasks []Task) []Task {
	out := slices.Clone(tasks)
	if out == nil {
		out = []Task{}
	}
	slices.SortStableFunc(out, func(a, b Task) int {
		return a.DueAt.Compare(*b.DueAt)
	})
	if len(out) > SummarySampleSize {
		out = out[:SummarySampleSize]
	}
	return out
}
