package main

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/kazz187/taskdesk/internal/config"
	"github.com/kazz187/taskdesk/internal/task"
)

const dateLayout = "2006-01-02"

var (
	faint  = color.New(color.Faint).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	green  = color.New(color.FgGreen).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
)

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatPriority(p task.Priority) string {
	switch p {
	case task.PriorityHigh:
		return red("high")
	case task.PriorityMedium:
		return yellow("med")
	case task.PriorityLow:
		return faint("low")
	default:
		return faint("-")
	}
}

func formatDue(t task.Task, now time.Time) string {
	if t.DueAt == nil {
		return ""
	}
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	s := t.DueAt.In(now.Location()).Format(dateLayout)
	if !t.IsDone() && t.DueAt.Before(today) {
		return red("due " + s)
	}
	return "due " + s
}

func formatTask(t task.Task, owners config.Directory, now time.Time) string {
	box := "[ ]"
	if t.IsDone() {
		box = green("[x]")
	}
	parts := []string{box, faint(shortID(t.ID)), formatPriority(t.Priority), bold(t.Title)}
	if due := formatDue(t, now); due != "" {
		parts = append(parts, due)
	}
	if t.ClientName != "" {
		parts = append(parts, cyan(t.ClientName))
	}
	if t.OwnerID != "" {
		parts = append(parts, "@"+owners.Name(t.OwnerID))
	}
	return strings.Join(parts, " ")
}

// printTasks writes one line per task. With tree, subtasks are indented
// under their parent.
func printTasks(w io.Writer, tasks []task.Task, owners config.Directory, now time.Time, tree bool) {
	if len(tasks) == 0 {
		fmt.Fprintln(w, faint("no tasks"))
		return
	}
	if !tree {
		for _, t := range tasks {
			fmt.Fprintln(w, formatTask(t, owners, now))
		}
		return
	}
	roots, children := task.SplitSubtasks(tasks)
	for _, t := range roots {
		fmt.Fprintln(w, formatTask(t, owners, now))
		for _, c := range children[t.ID] {
			fmt.Fprintln(w, "    "+formatTask(c, owners, now))
		}
	}
}

func printGroups(w io.Writer, groups map[string][]task.Task, owners config.Directory, now time.Time) {
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	// Unassigned goes last.
	slices.SortFunc(keys, func(a, b string) int {
		switch {
		case a == task.UnassignedGroup:
			return 1
		case b == task.UnassignedGroup:
			return -1
		}
		return strings.Compare(owners.Name(a), owners.Name(b))
	})
	for _, k := range keys {
		name := k
		if k != task.UnassignedGroup {
			name = owners.Name(k)
		}
		fmt.Fprintf(w, "%s (%d)\n", bold(name), len(groups[k]))
		for _, t := range groups[k] {
			fmt.Fprintln(w, "  "+formatTask(t, owners, now))
		}
	}
}

func printSummary(w io.Writer, s task.Summary, owners config.Directory, now time.Time) {
	section := func(label string, n int, items []task.Task, paint func(...any) string) {
		fmt.Fprintf(w, "%s %d\n", paint(label), n)
		for _, t := range items {
			fmt.Fprintln(w, "  "+formatTask(t, owners, now))
		}
	}
	section("overdue", s.Overdue, s.OverdueItems, red)
	section("today", s.Today, s.TodayItems, yellow)
	section("upcoming", s.Upcoming, s.UpcomingItems, cyan)
	fmt.Fprintf(w, "%s %d\n", bold("open"), s.TotalOpen)
}

func printComments(w io.Writer, comments []task.Comment) {
	for _, c := range comments {
		printComment(w, c, "")
		for _, r := range c.Replies {
			printComment(w, r, "    ")
		}
	}
}

func printComment(w io.Writer, c task.Comment, indent string) {
	line := fmt.Sprintf("%s%s %s: %s", indent, faint(shortID(c.ID)), bold(c.Author), c.Text)
	if c.Likes > 0 {
		line += fmt.Sprintf(" +%d", c.Likes)
	}
	if c.Resolved {
		line += " " + green("resolved")
	}
	fmt.Fprintln(w, line)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// parseDue accepts a calendar date in local time or an RFC 3339 timestamp.
func parseDue(s string) (time.Time, error) {
	if t, err := time.ParseInLocation(dateLayout, s, time.Local); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid due date %q: want YYYY-MM-DD or RFC 3339", s)
	}
	return t, nil
}
