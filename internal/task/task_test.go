package task

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 1, 10, 9, 30, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

func TestNew_Defaults(t *testing.T) {
	tk := New(Input{Title: "   ", Priority: "HIGH"}, testNow)

	_, err := uuid.Parse(tk.ID)
	require.NoError(t, err)
	assert.Equal(t, DefaultTitle, tk.Title)
	assert.Equal(t, StatusNew, tk.Status)
	assert.Equal(t, DefaultSource, tk.Source)
	assert.Equal(t, PriorityHigh, tk.Priority)
	assert.Equal(t, testNow, tk.CreatedAt)
	assert.Equal(t, testNow, tk.UpdatedAt)
	assert.Nil(t, tk.DoneAt)
	assert.NotNil(t, tk.Comments)
	assert.NotNil(t, tk.Attachments)

	other := New(Input{Title: "x"}, testNow)
	assert.NotEqual(t, tk.ID, other.ID)
}

func TestNew_DoneInputStampsDoneAt(t *testing.T) {
	tk := New(Input{Title: "x", Status: StatusDone}, testNow)
	require.NotNil(t, tk.DoneAt)
	assert.Equal(t, testNow, *tk.DoneAt)
}

func TestNormalize_Lockstep(t *testing.T) {
	done := testNow.Add(-time.Hour)

	tk := Normalize(Task{Title: "x", Status: StatusNew, DoneAt: &done})
	assert.Nil(t, tk.DoneAt)

	tk = Normalize(Task{Title: "x", Status: StatusDone, UpdatedAt: testNow})
	require.NotNil(t, tk.DoneAt)
	assert.Equal(t, testNow, *tk.DoneAt)

	tk = Normalize(Task{Title: "x", Status: "in_progress"})
	assert.Equal(t, StatusNew, tk.Status)
}

func TestPatch_Apply(t *testing.T) {
	tk := New(Input{Title: "A"}, testNow)
	later := testNow.Add(time.Minute)

	updated := Patch{Title: ptr("B")}.Apply(tk, later)
	assert.Equal(t, "B", updated.Title)
	assert.Equal(t, tk.ID, updated.ID)
	assert.Equal(t, tk.CreatedAt, updated.CreatedAt)
	assert.False(t, updated.UpdatedAt.Before(updated.CreatedAt))

	done := Patch{Status: ptr(StatusDone)}.Apply(updated, later)
	require.NotNil(t, done.DoneAt)
	assert.Equal(t, later, *done.DoneAt)

	again := Patch{Status: ptr(StatusDone)}.Apply(done, later.Add(time.Hour))
	assert.Equal(t, later, *again.DoneAt, "re-marking done keeps the original completion time")

	reopened := Patch{Status: ptr(StatusNew)}.Apply(again, later)
	assert.Equal(t, StatusNew, reopened.Status)
	assert.Nil(t, reopened.DoneAt)
}

func TestPatch_ApplyClearsAndDoesNotAlias(t *testing.T) {
	due := testNow.Add(24 * time.Hour)
	tk := New(Input{Title: "A", DueAt: &due, OwnerID: "o1"}, testNow)

	atts := []Attachment{{Type: "link", Label: "Docs", URL: "https://example.com"}}
	updated := Patch{ClearDueAt: true, OwnerID: ptr(""), Attachments: &atts}.Apply(tk, testNow)
	assert.Nil(t, updated.DueAt)
	assert.Empty(t, updated.OwnerID)

	atts[0].Label = "changed"
	assert.Equal(t, "Docs", updated.Attachments[0].Label)
}

func TestPatch_Fields(t *testing.T) {
	tk := New(Input{Title: "A"}, testNow)
	p := Patch{Title: ptr("B"), Status: ptr(StatusDone), OwnerID: ptr("")}
	updated := p.Apply(tk, testNow)

	body, err := json.Marshal(p.Fields(updated))
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, "B", got["title"])
	assert.Equal(t, "done", got["status"])
	assert.NotNil(t, got["doneAt"])
	assert.Contains(t, got, "ownerId")
	assert.Nil(t, got["ownerId"])
	assert.Contains(t, got, "updatedAt")
	assert.NotContains(t, got, "desc")
}

func TestDecodePatch(t *testing.T) {
	p, err := DecodePatch([]byte(`{"title":"B","dueAt":null,"ownerId":null,"status":"done","priority":"Low","unknown":1}`))
	require.NoError(t, err)

	require.NotNil(t, p.Title)
	assert.Equal(t, "B", *p.Title)
	assert.True(t, p.ClearDueAt)
	require.NotNil(t, p.OwnerID)
	assert.Empty(t, *p.OwnerID)
	require.NotNil(t, p.Status)
	assert.Equal(t, StatusDone, *p.Status)

	updated := p.Apply(New(Input{Title: "A"}, testNow), testNow)
	assert.Equal(t, PriorityLow, updated.Priority)

	_, err = DecodePatch([]byte(`{"title":1}`))
	assert.Error(t, err)
}

func TestTaskJSON_NullableStrings(t *testing.T) {
	tk := New(Input{Title: "A", ClientName: "Acme"}, testNow)
	data, err := json.Marshal(tk)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "Acme", raw["clientName"])
	assert.Contains(t, raw, "ownerId")
	assert.Nil(t, raw["ownerId"])
	assert.Nil(t, raw["priority"])
	assert.Nil(t, raw["templateRef"])

	var decoded Task
	require.NoError(t, json.Unmarshal([]byte(`{"id":"t1","title":"x","status":"new","ownerId":"","parentId":null,"clientName":"Acme","templateRef":{"k":1}}`), &decoded))
	assert.Empty(t, decoded.OwnerID)
	assert.Empty(t, decoded.ParentID)
	assert.Equal(t, "Acme", decoded.ClientName)
	assert.JSONEq(t, `{"k":1}`, string(decoded.TemplateRef))
}

func TestClone_DoesNotShare(t *testing.T) {
	due := testNow
	tk := New(Input{Title: "A", DueAt: &due, Comments: []Comment{NewComment("Ann Lee", "hi")}}, testNow)
	c := tk.Clone()
	c.Comments[0].Text = "changed"
	*c.DueAt = testNow.Add(time.Hour)

	assert.Equal(t, "hi", tk.Comments[0].Text)
	assert.Equal(t, testNow, *tk.DueAt)
}
