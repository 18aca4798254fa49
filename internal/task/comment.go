package task

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
)

func NewComment(author, text string) Comment {
	return Comment{
		ID:      uuid.NewString(),
		Author:  author,
		Avatar:  Initials(author),
		Text:    text,
		Replies: []Comment{},
	}
}

// Initials returns the uppercase initials of the first and last word of name.
func Initials(name string) string {
	words := strings.Fields(name)
	if len(words) == 0 {
		return ""
	}
	if len(words) > 2 {
		words = []string{words[0], words[len(words)-1]}
	}
	initials := make([]rune, 0, 2)
	for _, word := range words {
		r, _ := utf8.DecodeRuneInString(word)
		initials = append(initials, unicode.ToUpper(r))
	}
	return string(initials)
}

// AddReply appends reply under the top level comment parentID. Replies
// cannot be nested further.
func AddReply(comments []Comment, parentID string, reply Comment) ([]Comment, bool) {
	reply.Replies = []Comment{}
	out := cloneComments(comments)
	for i := range out {
		if out[i].ID == parentID {
			out[i].Replies = append(out[i].Replies, reply)
			return out, true
		}
	}
	return comments, false
}

// ToggleLike flips the liked flag of the comment or reply id and adjusts its
// like count, never below zero.
func ToggleLike(comments []Comment, id string) ([]Comment, bool) {
	return updateComment(comments, id, func(c *Comment) {
		c.Liked = !c.Liked
		if c.Liked {
			c.Likes++
		} else if c.Likes > 0 {
			c.Likes--
		}
	})
}

func SetResolved(comments []Comment, id string, resolved bool) ([]Comment, bool) {
	return updateComment(comments, id, func(c *Comment) {
		c.Resolved = resolved
	})
}

func updateComment(comments []Comment, id string, fn func(*Comment)) ([]Comment, bool) {
	out := cloneComments(comments)
	for i := range out {
		if out[i].ID == id {
			fn(&out[i])
			return out, true
		}
		for j := range out[i].Replies {
			if out[i].Replies[j].ID == id {
				fn(&out[i].Replies[j])
				return out, true
			}
		}
	}
	return comments, false
}

func cloneComments(comments []Comment) []Comment {
	out := make([]Comment, len(comments))
	for i, c := range comments {
		out[i] = c.clone()
	}
	return out
}
