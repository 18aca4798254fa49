package task

import (
	"encoding/json"
	"time"
)

type Status string

const (
	StatusNew  Status = "new"
	StatusDone Status = "done"
)

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Task is the unit of work tracked by the console. Tasks with a ParentID are
// subtasks; those with DeletedAt set live in the archive.
type Task struct {
	ID               string          `json:"id" yaml:"id"`
	Title            string          `json:"title" yaml:"title"`
	Desc             string          `json:"desc" yaml:"desc"`
	Status           Status          `json:"status" yaml:"status"`
	DueAt            *time.Time      `json:"dueAt" yaml:"due_at"`
	Priority         Priority        `json:"priority" yaml:"priority"`
	ClientName       string          `json:"clientName" yaml:"client_name"`
	ClientFolderPath string          `json:"clientFolderPath" yaml:"client_folder_path"`
	OwnerID          string          `json:"ownerId" yaml:"owner_id"`
	ParentID         string          `json:"parentId" yaml:"parent_id"`
	Comments         []Comment       `json:"comments" yaml:"comments"`
	Attachments      []Attachment    `json:"attachments" yaml:"attachments"`
	TemplateRef      json.RawMessage `json:"templateRef" yaml:"-"`
	Source           string          `json:"source" yaml:"source"`
	CreatedAt        time.Time       `json:"createdAt" yaml:"created_at"`
	UpdatedAt        time.Time       `json:"updatedAt" yaml:"updated_at"`
	DoneAt           *time.Time      `json:"doneAt" yaml:"done_at"`
	DeletedAt        *time.Time      `json:"deletedAt" yaml:"deleted_at"`
}

type Comment struct {
	ID       string    `json:"id" yaml:"id"`
	Author   string    `json:"author" yaml:"author"`
	Avatar   string    `json:"avatar" yaml:"avatar"`
	Text     string    `json:"text" yaml:"text"`
	Likes    int       `json:"likes" yaml:"likes"`
	Liked    bool      `json:"liked" yaml:"liked"`
	Resolved bool      `json:"resolved" yaml:"resolved"`
	Replies  []Comment `json:"replies" yaml:"replies"`
}

type Attachment struct {
	Type      string `json:"type" yaml:"type"`
	Label     string `json:"label" yaml:"label"`
	URL       string `json:"url,omitempty" yaml:"url,omitempty"`
	Path      string `json:"path,omitempty" yaml:"path,omitempty"`
	MessageID string `json:"messageId,omitempty" yaml:"message_id,omitempty"`
}

type Owner struct {
	ID     string `json:"id" yaml:"id"`
	Name   string `json:"name" yaml:"name"`
	Email  string `json:"email" yaml:"email"`
	Active bool   `json:"active" yaml:"active"`
}

func (t Task) IsDone() bool {
	return t.Status == StatusDone
}

func (t Task) IsArchived() bool {
	return t.DeletedAt != nil
}

func (t Task) IsSubtask() bool {
	return t.ParentID != ""
}

// Clone returns a copy that shares no slices or pointers with t.
func (t Task) Clone() Task {
	c := t
	c.DueAt = cloneTime(t.DueAt)
	c.DoneAt = cloneTime(t.DoneAt)
	c.DeletedAt = cloneTime(t.DeletedAt)
	if t.Comments != nil {
		c.Comments = make([]Comment, len(t.Comments))
		for i, cm := range t.Comments {
			c.Comments[i] = cm.clone()
		}
	}
	if t.Attachments != nil {
		c.Attachments = append([]Attachment(nil), t.Attachments...)
	}
	if t.TemplateRef != nil {
		c.TemplateRef = append(json.RawMessage(nil), t.TemplateRef...)
	}
	return c
}

func (c Comment) clone() Comment {
	if c.Replies != nil {
		c.Replies = append([]Comment(nil), c.Replies...)
	}
	return c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func CloneAll(tasks []Task) []Task {
	if tasks == nil {
		return nil
	}
	out := make([]Task, len(tasks))
	for i, t := range tasks {
		out[i] = t.Clone()
	}
	return out
}
