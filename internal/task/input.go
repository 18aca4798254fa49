package task

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultTitle  = "New Task"
	DefaultSource = "manual"
)

// Input holds the caller supplied fields of a task about to be created.
type Input struct {
	Title            string
	Desc             string
	Status           Status
	DueAt            *time.Time
	Priority         Priority
	ClientName       string
	ClientFolderPath string
	OwnerID          string
	ParentID         string
	TemplateRef      json.RawMessage
	Source           string
	Comments         []Comment
	Attachments      []Attachment
}

// New builds a task from in with a fresh UUID v4 id.
func New(in Input, now time.Time) Task {
	t := Task{
		ID:               uuid.NewString(),
		Title:            in.Title,
		Desc:             in.Desc,
		Status:           in.Status,
		DueAt:            cloneTime(in.DueAt),
		Priority:         in.Priority,
		ClientName:       in.ClientName,
		ClientFolderPath: in.ClientFolderPath,
		OwnerID:          in.OwnerID,
		ParentID:         in.ParentID,
		TemplateRef:      in.TemplateRef,
		Source:           in.Source,
		Comments:         in.Comments,
		Attachments:      in.Attachments,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if t.Source == "" {
		t.Source = DefaultSource
	}
	if t.Comments == nil {
		t.Comments = []Comment{}
	}
	if t.Attachments == nil {
		t.Attachments = []Attachment{}
	}
	return Normalize(t).Clone()
}

// Normalize applies the defaults and the status/doneAt lockstep to t.
// Records read back from storage or the remote service pass through here.
func Normalize(t Task) Task {
	if strings.TrimSpace(t.Title) == "" {
		t.Title = DefaultTitle
	}
	t.Priority = ParsePriority(string(t.Priority))
	switch t.Status {
	case StatusDone:
		if t.DoneAt == nil {
			at := t.UpdatedAt
			t.DoneAt = &at
		}
	default:
		t.Status = StatusNew
		t.DoneAt = nil
	}
	return t
}

// ParsePriority lowercases p and returns "" for anything outside the enum.
func ParsePriority(p string) Priority {
	switch Priority(strings.ToLower(strings.TrimSpace(p))) {
	case PriorityHigh:
		return PriorityHigh
	case PriorityMedium:
		return PriorityMedium
	case PriorityLow:
		return PriorityLow
	default:
		return ""
	}
}

func ParseStatus(s string) (Status, bool) {
	switch Status(strings.ToLower(strings.TrimSpace(s))) {
	case StatusNew:
		return StatusNew, true
	case StatusDone:
		return StatusDone, true
	default:
		return "", false
	}
}
