package task

import (
	"slices"
	"strings"
	"time"
)

const (
	OwnerMe         = "me"
	OwnerAll        = "all"
	OwnerDelegated  = "delegated"
	UnassignedGroup = "unassigned"
)

type ListOptions struct {
	Client         string
	Owner          string
	DelegatedOnly  bool
	TimeWindowDays int
	MeEmail        string
	Owners         []Owner
	Now            time.Time
}

// ListTasks filters tasks down to the active ones matching every option.
// An Owner of "me" that cannot be resolved through Owners matches nothing.
func ListTasks(tasks []Task, opts ListOptions) []Task {
	meID := ResolveOwnerIDByEmail(opts.MeEmail, opts.Owners)
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	var since time.Time
	if opts.TimeWindowDays > 0 {
		since = now.Add(-time.Duration(opts.TimeWindowDays) * 24 * time.Hour)
	}

	out := make([]Task, 0, len(tasks))
	for _, t := range tasks {
		if t.IsArchived() {
			continue
		}
		if opts.Client != "" && !strings.EqualFold(strings.TrimSpace(t.ClientName), strings.TrimSpace(opts.Client)) {
			continue
		}
		switch opts.Owner {
		case "", OwnerAll, OwnerDelegated:
		case OwnerMe:
			if meID == "" || t.OwnerID != meID {
				continue
			}
		default:
			if t.OwnerID != opts.Owner {
				continue
			}
		}
		if opts.DelegatedOnly && (t.OwnerID == "" || t.OwnerID == meID) {
			continue
		}
		if !since.IsZero() && t.UpdatedAt.Before(since) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// TopN orders by due date ascending with undated tasks last, most recently
// updated first on ties, and keeps the first n.
func TopN(tasks []Task, n int) []Task {
	sorted := slices.Clone(tasks)
	slices.SortStableFunc(sorted, func(a, b Task) int {
		switch {
		case a.DueAt == nil && b.DueAt != nil:
			return 1
		case a.DueAt != nil && b.DueAt == nil:
			return -1
		case a.DueAt != nil && b.DueAt != nil && !a.DueAt.Equal(*b.DueAt):
			return a.DueAt.Compare(*b.DueAt)
		}
		return b.UpdatedAt.Compare(a.UpdatedAt)
	})
	if n < 0 {
		n = 0
	}
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

func GroupByOwner(tasks []Task) map[string][]Task {
	groups := make(map[string][]Task)
	for _, t := range tasks {
		key := t.OwnerID
		if key == "" {
			key = UnassignedGroup
		}
		groups[key] = append(groups[key], t)
	}
	return groups
}

func ResolveOwnerIDByEmail(email string, owners []Owner) string {
	email = strings.TrimSpace(email)
	if email == "" {
		return ""
	}
	for _, o := range owners {
		if strings.EqualFold(strings.TrimSpace(o.Email), email) {
			return o.ID
		}
	}
	return ""
}

// SplitSubtasks returns the root level tasks and, keyed by parent id, the
// subtasks rendered under them. Only one level is rendered: a task whose
// parent is missing or is itself a subtask is returned as a root.
func SplitSubtasks(tasks []Task) ([]Task, map[string][]Task) {
	rootIDs := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		if t.ParentID == "" {
			rootIDs[t.ID] = true
		}
	}
	roots := make([]Task, 0, len(tasks))
	children := make(map[string][]Task)
	for _, t := range tasks {
		if t.ParentID != "" && rootIDs[t.ParentID] {
			children[t.ParentID] = append(children[t.ParentID], t)
			continue
		}
		roots = append(roots, t)
	}
	return roots, children
}
