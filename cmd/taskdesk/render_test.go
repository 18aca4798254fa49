package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/taskdesk/internal/config"
	"github.com/kazz187/taskdesk/internal/task"
)

var now = time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)

func init() {
	color.NoColor = true
}

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 9, 0, 0, 0, time.UTC)
	return &t
}

func TestFormatTask(t *testing.T) {
	owners := config.Directory{Owners: []task.Owner{{ID: "o1", Name: "Dana"}}}
	tk := task.Task{
		ID:         "0123456789abcdef",
		Title:      "File brief",
		Status:     task.StatusNew,
		Priority:   task.PriorityHigh,
		DueAt:      date(2025, 1, 3),
		ClientName: "Acme",
		OwnerID:    "o1",
	}
	assert.Equal(t, "[ ] 01234567 high File brief due 2025-01-03 Acme @Dana", formatTask(tk, owners, now))

	tk.Status, tk.Priority, tk.OwnerID, tk.DueAt = task.StatusDone, "", "o9", nil
	assert.Equal(t, "[x] 01234567 - File brief Acme @o9", formatTask(tk, owners, now))
}

func TestPrintTasks_Tree(t *testing.T) {
	tasks := []task.Task{
		{ID: "p", Title: "Parent", Status: task.StatusNew},
		{ID: "c", Title: "Child", Status: task.StatusNew, ParentID: "p"},
		{ID: "o", Title: "Orphan", Status: task.StatusNew, ParentID: "gone"},
	}
	var buf bytes.Buffer
	printTasks(&buf, tasks, config.Directory{}, now, true)
	assert.Equal(t, "[ ] p - Parent\n    [ ] c - Child\n[ ] o - Orphan\n", buf.String())

	buf.Reset()
	printTasks(&buf, nil, config.Directory{}, now, false)
	assert.Equal(t, "no tasks\n", buf.String())
}

func TestPrintGroups_UnassignedLast(t *testing.T) {
	owners := config.Directory{Owners: []task.Owner{{ID: "o1", Name: "Zed"}, {ID: "o2", Name: "Amy"}}}
	groups := task.GroupByOwner([]task.Task{
		{ID: "a", Title: "A", Status: task.StatusNew},
		{ID: "b", Title: "B", Status: task.StatusNew, OwnerID: "o1"},
		{ID: "c", Title: "C", Status: task.StatusNew, OwnerID: "o2"},
	})
	var buf bytes.Buffer
	printGroups(&buf, groups, owners, now)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 6)
	assert.Equal(t, "Amy (1)", lines[0])
	assert.Equal(t, "Zed (1)", lines[2])
	assert.Equal(t, "unassigned (1)", lines[4])
}

func TestParseDue(t *testing.T) {
	got, err := parseDue("2025-02-01")
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2025, 2, 1, 0, 0, 0, 0, time.Local)))

	got, err = parseDue("2025-02-01T10:00:00Z")
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC)))

	_, err = parseDue("next week")
	assert.Error(t, err)
}

func TestDiffTasks(t *testing.T) {
	a := task.Task{ID: "a", Title: "Same", Status: task.StatusNew, UpdatedAt: now}
	b := task.Task{ID: "b", Title: "Local title", Status: task.StatusNew, UpdatedAt: now}
	bRemote := b
	bRemote.Title = "Remote title"

	diff, err := diffTasks([]task.Task{b, a}, []task.Task{a, b})
	require.NoError(t, err)
	assert.Empty(t, diff)

	diff, err = diffTasks([]task.Task{a, b}, []task.Task{a, bRemote})
	require.NoError(t, err)
	assert.Contains(t, diff, "--- local")
	assert.Contains(t, diff, "+++ remote")
	assert.Contains(t, diff, "-b\tnew\t\tLocal title")
	assert.Contains(t, diff, "+b\tnew\t\tRemote title")
}
