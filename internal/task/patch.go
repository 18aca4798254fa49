package task

import (
	"encoding/json"
	"strings"
	"time"
)

// Patch is a partial update. Nil fields are left untouched.
type Patch struct {
	Title            *string
	Desc             *string
	Status           *Status
	DueAt            *time.Time
	ClearDueAt       bool
	Priority         *Priority
	ClientName       *string
	ClientFolderPath *string
	OwnerID          *string
	ParentID         *string
	TemplateRef      *json.RawMessage
	Source           *string
	Comments         *[]Comment
	Attachments      *[]Attachment
	DeletedAt        *time.Time
	ClearDeletedAt   bool
}

func (p Patch) IsEmpty() bool {
	return p.Title == nil && p.Desc == nil && p.Status == nil && p.DueAt == nil && !p.ClearDueAt &&
		p.Priority == nil && p.ClientName == nil && p.ClientFolderPath == nil && p.OwnerID == nil &&
		p.ParentID == nil && p.TemplateRef == nil && p.Source == nil && p.Comments == nil &&
		p.Attachments == nil && p.DeletedAt == nil && !p.ClearDeletedAt
}

// Apply merges p into t and refreshes UpdatedAt. A status change moves
// DoneAt with it.
func (p Patch) Apply(t Task, now time.Time) Task {
	if p.Title != nil {
		t.Title = *p.Title
		if strings.TrimSpace(t.Title) == "" {
			t.Title = DefaultTitle
		}
	}
	if p.Desc != nil {
		t.Desc = *p.Desc
	}
	if p.ClearDueAt {
		t.DueAt = nil
	} else if p.DueAt != nil {
		t.DueAt = cloneTime(p.DueAt)
	}
	if p.Priority != nil {
		t.Priority = ParsePriority(string(*p.Priority))
	}
	if p.ClientName != nil {
		t.ClientName = *p.ClientName
	}
	if p.ClientFolderPath != nil {
		t.ClientFolderPath = *p.ClientFolderPath
	}
	if p.OwnerID != nil {
		t.OwnerID = *p.OwnerID
	}
	if p.ParentID != nil {
		t.ParentID = *p.ParentID
	}
	if p.TemplateRef != nil {
		t.TemplateRef = append(json.RawMessage(nil), (*p.TemplateRef)...)
	}
	if p.Source != nil {
		t.Source = *p.Source
	}
	if p.Comments != nil {
		t.Comments = append([]Comment{}, (*p.Comments)...)
	}
	if p.Attachments != nil {
		t.Attachments = append([]Attachment{}, (*p.Attachments)...)
	}
	if p.ClearDeletedAt {
		t.DeletedAt = nil
	} else if p.DeletedAt != nil {
		t.DeletedAt = cloneTime(p.DeletedAt)
	}
	if p.Status != nil && *p.Status != t.Status {
		switch *p.Status {
		case StatusDone:
			t.Status = StatusDone
			at := now
			t.DoneAt = &at
		default:
			t.Status = StatusNew
			t.DoneAt = nil
		}
	}
	t.UpdatedAt = now
	return Normalize(t)
}

// Fields is the PATCH body describing p after it was applied, producing t.
// Only the touched keys are present, with updatedAt always included and
// doneAt whenever the status was touched.
func (p Patch) Fields(t Task) map[string]any {
	f := map[string]any{"updatedAt": t.UpdatedAt}
	if p.Title != nil {
		f["title"] = t.Title
	}
	if p.Desc != nil {
		f["desc"] = t.Desc
	}
	if p.Status != nil {
		f["status"] = t.Status
		f["doneAt"] = t.DoneAt
	}
	if p.DueAt != nil || p.ClearDueAt {
		f["dueAt"] = t.DueAt
	}
	if p.Priority != nil {
		f["priority"] = nullable(string(t.Priority))
	}
	if p.ClientName != nil {
		f["clientName"] = nullable(t.ClientName)
	}
	if p.ClientFolderPath != nil {
		f["clientFolderPath"] = nullable(t.ClientFolderPath)
	}
	if p.OwnerID != nil {
		f["ownerId"] = nullable(t.OwnerID)
	}
	if p.ParentID != nil {
		f["parentId"] = nullable(t.ParentID)
	}
	if p.TemplateRef != nil {
		if len(t.TemplateRef) == 0 {
			f["templateRef"] = nil
		} else {
			f["templateRef"] = t.TemplateRef
		}
	}
	if p.Source != nil {
		f["source"] = t.Source
	}
	if p.Comments != nil {
		f["comments"] = t.Comments
	}
	if p.Attachments != nil {
		f["attachments"] = t.Attachments
	}
	if p.DeletedAt != nil || p.ClearDeletedAt {
		f["deletedAt"] = t.DeletedAt
	}
	return f
}

// DecodePatch parses a JSON PATCH body. Keys set to null clear the field.
// Unknown keys are ignored; updatedAt and doneAt are derived, not applied.
func DecodePatch(data []byte) (Patch, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return Patch{}, err
	}
	var p Patch
	for key, value := range raw {
		isNull := string(value) == "null"
		var err error
		switch key {
		case "title":
			p.Title, err = decodeString(value, isNull)
		case "desc":
			p.Desc, err = decodeString(value, isNull)
		case "status":
			var s *string
			if s, err = decodeString(value, isNull); err == nil {
				status, _ := ParseStatus(*s)
				if status == "" {
					status = StatusNew
				}
				p.Status = &status
			}
		case "dueAt":
			if isNull {
				p.ClearDueAt = true
			} else {
				var at time.Time
				err = json.Unmarshal(value, &at)
				p.DueAt = &at
			}
		case "priority":
			var s *string
			if s, err = decodeString(value, isNull); err == nil {
				pr := Priority(*s)
				p.Priority = &pr
			}
		case "clientName":
			p.ClientName, err = decodeString(value, isNull)
		case "clientFolderPath":
			p.ClientFolderPath, err = decodeString(value, isNull)
		case "ownerId":
			p.OwnerID, err = decodeString(value, isNull)
		case "parentId":
			p.ParentID, err = decodeString(value, isNull)
		case "templateRef":
			ref := json.RawMessage(nil)
			if !isNull {
				ref = append(ref, value...)
			}
			p.TemplateRef = &ref
		case "source":
			p.Source, err = decodeString(value, isNull)
		case "comments":
			comments := []Comment{}
			if !isNull {
				err = json.Unmarshal(value, &comments)
			}
			p.Comments = &comments
		case "attachments":
			attachments := []Attachment{}
			if !isNull {
				err = json.Unmarshal(value, &attachments)
			}
			p.Attachments = &attachments
		case "deletedAt":
			if isNull {
				p.ClearDeletedAt = true
			} else {
				var at time.Time
				err = json.Unmarshal(value, &at)
				p.DeletedAt = &at
			}
		}
		if err != nil {
			return Patch{}, err
		}
	}
	return p, nil
}

func decodeString(value json.RawMessage, isNull bool) (*string, error) {
	var s string
	if isNull {
		return &s, nil
	}
	if err := json.Unmarshal(value, &s); err != nil {
		return nil, err
	}
	return &s, nil
}
