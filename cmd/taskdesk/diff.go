package main

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/kazz187/taskdesk/internal/task"
)

// taskLines renders tasks one per line in id order, without color, so two
// task sets can be compared line by line.
func taskLines(tasks []task.Task) []string {
	sorted := slices.Clone(tasks)
	slices.SortFunc(sorted, func(a, b task.Task) int { return strings.Compare(a.ID, b.ID) })

	lines := make([]string, 0, len(sorted))
	for _, t := range sorted {
		due := "-"
		if t.DueAt != nil {
			due = t.DueAt.UTC().Format(time.RFC3339)
		}
		lines = append(lines, fmt.Sprintf("%s\t%s\t%s\t%s\tdue=%s\tclient=%s\towner=%s\tupdated=%s\n",
			t.ID, t.Status, t.Priority, t.Title, due, t.ClientName, t.OwnerID,
			t.UpdatedAt.UTC().Format(time.RFC3339)))
	}
	return lines
}

// diffTasks returns a unified diff from the local to the remote task set.
// An empty string means both agree.
func diffTasks(local, remote []task.Task) (string, error) {
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        taskLines(local),
		B:        taskLines(remote),
		FromFile: "local",
		ToFile:   "remote",
		Context:  1,
	})
}

func colorDiff(diff string) string {
	var b strings.Builder
	for _, line := range strings.SplitAfter(diff, "\n") {
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
			b.WriteString(bold(line))
		case strings.HasPrefix(line, "+"):
			b.WriteString(green(line))
		case strings.HasPrefix(line, "-"):
			b.WriteString(red(line))
		case strings.HasPrefix(line, "@@"):
			b.WriteString(cyan(line))
		default:
			b.WriteString(line)
		}
	}
	return b.String()
}
