package engine

import (
	"context"

	"github.com/kazz187/taskdesk/internal/task"
)

// AddComment appends a top level comment to task id.
func (e *Engine) AddComment(ctx context.Context, id, author, text string) (task.Comment, bool) {
	c := task.NewComment(author, text)
	_, ok := e.mutate(ctx, id, func(t task.Task) (task.Patch, bool) {
		comments := append(append([]task.Comment{}, t.Comments...), c)
		return task.Patch{Comments: &comments}, true
	})
	if !ok {
		return task.Comment{}, false
	}
	return c, true
}

// ReplyToComment answers the top level comment commentID. Replies to replies
// are rejected.
func (e *Engine) ReplyToComment(ctx context.Context, id, commentID, author, text string) (task.Comment, bool) {
	reply := task.NewComment(author, text)
	_, ok := e.mutate(ctx, id, func(t task.Task) (task.Patch, bool) {
		comments, found := task.AddReply(t.Comments, commentID, reply)
		if !found {
			return task.Patch{}, false
		}
		return task.Patch{Comments: &comments}, true
	})
	if !ok {
		return task.Comment{}, false
	}
	return reply, true
}

func (e *Engine) ToggleLike(ctx context.Context, id, commentID string) (task.Task, bool) {
	return e.mutate(ctx, id, func(t task.Task) (task.Patch, bool) {
		comments, found := task.ToggleLike(t.Comments, commentID)
		if !found {
			return task.Patch{}, false
		}
		return task.Patch{Comments: &comments}, true
	})
}

func (e *Engine) ResolveComment(ctx context.Context, id, commentID string, resolved bool) (task.Task, bool) {
	return e.mutate(ctx, id, func(t task.Task) (task.Patch, bool) {
		comments, found := task.SetResolved(t.Comments, commentID, resolved)
		if !found {
			return task.Patch{}, false
		}
		return task.Patch{Comments: &comments}, true
	})
}
