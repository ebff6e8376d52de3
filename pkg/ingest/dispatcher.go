package ingest

import (
	"context"
	"encoding/json"
	"fmt"

	"hearth/pkg/comments"
	"hearth/pkg/ingest/queue"
	"hearth/pkg/models"
	"hearth/pkg/reactions"
)

// RemoveReactionInput is the payload for a queued reaction removal.
type RemoveReactionInput struct {
	UserID string                `json:"user_id"`
	Target models.ReactionTarget `json:"target"`
}

// EditCommentInput is the payload for a queued comment edit.
type EditCommentInput struct {
	CommentID string `json:"comment_id"`
	EditorID  string `json:"editor_id"`
	Content   string `json:"content"`
}

// DeleteCommentInput is the payload for a queued comment delete.
type DeleteCommentInput struct {
	CommentID   string `json:"comment_id"`
	RequesterID string `json:"requester_id"`
}

// RegisterDefaultHandlers binds the engines to the processor. The API
// layer sets Op.Handler when enqueueing, so dispatch is a direct lookup.
func RegisterDefaultHandlers(p *Processor, re *reactions.Engine, ce *comments.Engine) {
	p.RegisterHandler(queue.HandlerReactionAdd, func(ctx context.Context, op *queue.Op) error {
		var in reactions.AddInput
		if err := json.Unmarshal(op.Payload, &in); err != nil {
			return fmt.Errorf("reaction add payload: %w", err)
		}
		if in.UserID == "" {
			in.UserID = op.Extras["identity"]
		}
		if !in.Target.Valid() {
			in.Target = targetFromExtras(op.Extras)
		}
		if in.ID == "" {
			in.ID = op.ID
		}
		_, _, err := re.AddReaction(ctx, in)
		return err
	})

	p.RegisterHandler(queue.HandlerReactionRemove, func(ctx context.Context, op *queue.Op) error {
		var in RemoveReactionInput
		if len(op.Payload) > 0 {
			if err := json.Unmarshal(op.Payload, &in); err != nil {
				return fmt.Errorf("reaction remove payload: %w", err)
			}
		}
		if in.UserID == "" {
			in.UserID = op.Extras["identity"]
		}
		if !in.Target.Valid() {
			in.Target = targetFromExtras(op.Extras)
		}
		_, err := re.RemoveReaction(ctx, in.UserID, in.Target)
		return err
	})

	p.RegisterHandler(queue.HandlerCommentCreate, func(ctx context.Context, op *queue.Op) error {
		var in comments.AddInput
		if err := json.Unmarshal(op.Payload, &in); err != nil {
			return fmt.Errorf("comment create payload: %w", err)
		}
		if in.AuthorID == "" {
			in.AuthorID = op.Extras["identity"]
		}
		if in.PostID == "" {
			in.PostID = op.Extras["post"]
		}
		if in.ID == "" {
			in.ID = op.ID
		}
		_, err := ce.AddComment(ctx, in)
		return err
	})

	p.RegisterHandler(queue.HandlerCommentEdit, func(ctx context.Context, op *queue.Op) error {
		var in EditCommentInput
		if err := json.Unmarshal(op.Payload, &in); err != nil {
			return fmt.Errorf("comment edit payload: %w", err)
		}
		if in.EditorID == "" {
			in.EditorID = op.Extras["identity"]
		}
		if in.CommentID == "" {
			in.CommentID = op.ID
		}
		_, err := ce.EditComment(ctx, in.CommentID, in.EditorID, in.Content)
		return err
	})

	p.RegisterHandler(queue.HandlerCommentDelete, func(ctx context.Context, op *queue.Op) error {
		var in DeleteCommentInput
		if len(op.Payload) > 0 {
			if err := json.Unmarshal(op.Payload, &in); err != nil {
				return fmt.Errorf("comment delete payload: %w", err)
			}
		}
		if in.RequesterID == "" {
			in.RequesterID = op.Extras["identity"]
		}
		if in.CommentID == "" {
			in.CommentID = op.ID
		}
		_, err := ce.DeleteComment(ctx, in.CommentID, in.RequesterID)
		return err
	})
}

// targetFromExtras rebuilds a reaction target from the routing metadata the
// fast path records, so hot handlers never have to parse request bodies.
func targetFromExtras(extras map[string]string) models.ReactionTarget {
	return models.ReactionTarget{PostID: extras["post"], CommentID: extras["comment"]}
}
