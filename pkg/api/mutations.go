package api

import (
	"encoding/json"
	"time"

	"hearth/pkg/ingest/queue"
	"hearth/pkg/utils"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
)

// Mutative fast-path handlers live in this file. They are thin: extract
// routing from the path, copy the raw payload, enqueue, return 202 with the
// pre-assigned id. Heavy work (validation, access checks, DB writes,
// fanout) happens inside the ingest pipeline.

// FastMutations returns the fasthttp handler serving the enqueue-only
// mutation surface under /fast/v1.
func FastMutations(q *queue.Queue) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		ctx.Response.Header.Set("Content-Type", "application/json")
		parts := splitPath(string(ctx.Path()))
		// expect: fast v1 <resource> ...
		if len(parts) < 3 || parts[0] != "fast" || parts[1] != "v1" {
			utils.JSONErrorFast(ctx, fasthttp.StatusNotFound, "unknown fast route")
			return
		}
		method := string(ctx.Method())
		switch {
		case parts[2] == "posts" && len(parts) == 5 && parts[4] == "reactions":
			postReaction(ctx, q, method, parts[3])
		case parts[2] == "comments" && len(parts) == 5 && parts[4] == "reactions":
			commentReaction(ctx, q, method, parts[3])
		case parts[2] == "posts" && len(parts) == 5 && parts[4] == "comments" && method == fasthttp.MethodPost:
			createComment(ctx, q, parts[3])
		case parts[2] == "comments" && len(parts) == 4:
			mutateComment(ctx, q, method, parts[3])
		default:
			utils.JSONErrorFast(ctx, fasthttp.StatusNotFound, "unknown fast route")
		}
	}
}

func postReaction(ctx *fasthttp.RequestCtx, q *queue.Queue, method, postID string) {
	switch method {
	case fasthttp.MethodPost:
		extras := extrasFrom(ctx)
		extras["post"] = postID
		id := uuid.NewString()
		payload := append([]byte(nil), ctx.PostBody()...)
		enqueue(ctx, q, queue.HandlerReactionAdd, postID, id, payload, extras, map[string]string{"id": id})
	case fasthttp.MethodDelete:
		extras := extrasFrom(ctx)
		extras["post"] = postID
		enqueue(ctx, q, queue.HandlerReactionRemove, postID, "", nil, extras, nil)
	default:
		utils.JSONErrorFast(ctx, fasthttp.StatusMethodNotAllowed, "method not allowed")
	}
}

func commentReaction(ctx *fasthttp.RequestCtx, q *queue.Queue, method, commentID string) {
	switch method {
	case fasthttp.MethodPost:
		extras := extrasFrom(ctx)
		extras["comment"] = commentID
		id := uuid.NewString()
		payload := append([]byte(nil), ctx.PostBody()...)
		enqueue(ctx, q, queue.HandlerReactionAdd, commentID, id, payload, extras, map[string]string{"id": id})
	case fasthttp.MethodDelete:
		extras := extrasFrom(ctx)
		extras["comment"] = commentID
		enqueue(ctx, q, queue.HandlerReactionRemove, commentID, "", nil, extras, nil)
	default:
		utils.JSONErrorFast(ctx, fasthttp.StatusMethodNotAllowed, "method not allowed")
	}
}

func createComment(ctx *fasthttp.RequestCtx, q *queue.Queue, postID string) {
	extras := extrasFrom(ctx)
	extras["post"] = postID
	id := uuid.NewString()
	payload := append([]byte(nil), ctx.PostBody()...)
	enqueue(ctx, q, queue.HandlerCommentCreate, postID, id, payload, extras, map[string]string{"id": id})
}

func mutateComment(ctx *fasthttp.RequestCtx, q *queue.Queue, method, commentID string) {
	switch method {
	case fasthttp.MethodPut:
		payload := append([]byte(nil), ctx.PostBody()...)
		enqueue(ctx, q, queue.HandlerCommentEdit, commentID, commentID, payload, extrasFrom(ctx), nil)
	case fasthttp.MethodDelete:
		enqueue(ctx, q, queue.HandlerCommentDelete, commentID, commentID, nil, extrasFrom(ctx), nil)
	default:
		utils.JSONErrorFast(ctx, fasthttp.StatusMethodNotAllowed, "method not allowed")
	}
}

func enqueue(ctx *fasthttp.RequestCtx, q *queue.Queue, h queue.HandlerID, target, id string, payload []byte, extras map[string]string, body map[string]string) {
	err := q.EnqueueOp(h, target, id, payload, time.Now().UTC().UnixNano(), extras)
	if err != nil {
		switch err {
		case queue.ErrQueueFull:
			utils.JSONErrorFast(ctx, fasthttp.StatusTooManyRequests, "server busy; try again")
		case queue.ErrQueueClosed:
			utils.JSONErrorFast(ctx, fasthttp.StatusServiceUnavailable, "server shutting down")
		default:
			utils.JSONErrorFast(ctx, fasthttp.StatusInternalServerError, "enqueue failed")
		}
		return
	}
	ctx.SetStatusCode(fasthttp.StatusAccepted)
	if body != nil {
		_ = json.NewEncoder(ctx).Encode(body)
	}
}

func extrasFrom(ctx *fasthttp.RequestCtx) map[string]string {
	return map[string]string{
		"role":     string(ctx.Request.Header.Peek("X-Role-Name")),
		"identity": string(ctx.Request.Header.Peek("X-Identity")),
		"reqid":    string(ctx.Request.Header.Peek("X-Request-Id")),
		"remote":   ctx.RemoteAddr().String(),
	}
}

// splitPath splits "/a/b/c" into components, trimming empty parts.
func splitPath(p string) []string {
	out := make([]string, 0, 6)
	cur := ""
	for i := 0; i < len(p); i++ {
		if p[i] == '/' {
			if cur != "" {
				out = append(out, cur)
				cur = ""
			}
			continue
		}
		cur += string(p[i])
	}
	if cur != "" {
		out = append(out, cur)
	}
	return out
}
