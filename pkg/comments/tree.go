package comments

import (
	"context"

	"hearth/pkg/models"
	"hearth/pkg/store"
)

// Tree loads a post's comments and assembles them into a forest of nested
// nodes. The store scan is path-ordered, so siblings arrive in creation
// order and parents always precede their children.
func (e *Engine) Tree(ctx context.Context, postID string) ([]*models.CommentNode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	flat, err := store.ListCommentsByPost(postID)
	if err != nil {
		return nil, err
	}

	nodes := make(map[string]*models.CommentNode, len(flat))
	roots := make([]*models.CommentNode, 0, len(flat))
	for _, c := range flat {
		n := &models.CommentNode{Comment: c}
		nodes[c.ID] = n
		if c.ParentID == "" {
			roots = append(roots, n)
			continue
		}
		parent, ok := nodes[c.ParentID]
		if !ok {
			// Orphan from a partial scan; surface it at the top rather
			// than dropping it.
			roots = append(roots, n)
			continue
		}
		parent.Replies = append(parent.Replies, n)
	}
	return roots, nil
}
