package task

import (
	"bytes"
	"encoding/json"
)

// Optional strings travel as JSON null when empty and accept either null or
// "" on the way in.

type taskAlias Task

type taskJSON struct {
	taskAlias
	Priority         *string         `json:"priority"`
	ClientName       *string         `json:"clientName"`
	ClientFolderPath *string         `json:"clientFolderPath"`
	OwnerID          *string         `json:"ownerId"`
	ParentID         *string         `json:"parentId"`
	TemplateRef      json.RawMessage `json:"templateRef"`
}

func (t Task) MarshalJSON() ([]byte, error) {
	ref := t.TemplateRef
	if len(ref) == 0 {
		ref = json.RawMessage("null")
	}
	return json.Marshal(taskJSON{
		taskAlias:        taskAlias(t),
		Priority:         nullable(string(t.Priority)),
		ClientName:       nullable(t.ClientName),
		ClientFolderPath: nullable(t.ClientFolderPath),
		OwnerID:          nullable(t.OwnerID),
		ParentID:         nullable(t.ParentID),
		TemplateRef:      ref,
	})
}

func (t *Task) UnmarshalJSON(data []byte) error {
	var v taskJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*t = Task(v.taskAlias)
	t.Priority = Priority(deref(v.Priority))
	t.ClientName = deref(v.ClientName)
	t.ClientFolderPath = deref(v.ClientFolderPath)
	t.OwnerID = deref(v.OwnerID)
	t.ParentID = deref(v.ParentID)
	t.TemplateRef = nil
	if trimmed := bytes.TrimSpace(v.TemplateRef); len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
		t.TemplateRef = append(json.RawMessage(nil), trimmed...)
	}
	return nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
