package api

import (
	"encoding/json"
	"testing"

	"hearth/pkg/ingest/queue"

	"github.com/valyala/fasthttp"
)

func callFast(h fasthttp.RequestHandler, method, uri string, body []byte) *fasthttp.RequestCtx {
	var req fasthttp.Request
	req.SetRequestURI(uri)
	req.Header.SetMethod(method)
	if body != nil {
		req.SetBody(body)
	}
	ctx := &fasthttp.RequestCtx{}
	ctx.Init(&req, nil, nil)
	h(ctx)
	return ctx
}

func TestFastAddReactionAccepted(t *testing.T) {
	q := queue.NewQueue(8)
	h := FastMutations(q)

	body := []byte(`{"kind":"love","intensity":2,"user_id":"grandma"}`)
	ctx := callFast(h, fasthttp.MethodPost, "/fast/v1/posts/p1/reactions", body)
	if ctx.Response.StatusCode() != fasthttp.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", ctx.Response.StatusCode(), ctx.Response.Body())
	}
	var out map[string]string
	if err := json.Unmarshal(ctx.Response.Body(), &out); err != nil {
		t.Fatalf("decode accept body: %v", err)
	}
	if out["id"] == "" {
		t.Fatalf("accepted response must carry the pre-assigned id")
	}

	it := <-q.Out()
	defer it.Done()
	if it.Op.Handler != queue.HandlerReactionAdd || it.Op.Target != "p1" {
		t.Fatalf("unexpected op: %+v", it.Op)
	}
	if it.Op.ID != out["id"] {
		t.Fatalf("queued id %q differs from accepted id %q", it.Op.ID, out["id"])
	}
	if string(it.Op.Payload) != string(body) {
		t.Fatalf("payload lost: %q", it.Op.Payload)
	}
	if it.Op.Extras["post"] != "p1" {
		t.Fatalf("extras: %+v", it.Op.Extras)
	}
}

func TestFastCommentRoutes(t *testing.T) {
	q := queue.NewQueue(8)
	h := FastMutations(q)

	cases := []struct {
		method, uri string
		handler     queue.HandlerID
		target      string
	}{
		{fasthttp.MethodPost, "/fast/v1/posts/p1/comments", queue.HandlerCommentCreate, "p1"},
		{fasthttp.MethodPut, "/fast/v1/comments/c1", queue.HandlerCommentEdit, "c1"},
		{fasthttp.MethodDelete, "/fast/v1/comments/c1", queue.HandlerCommentDelete, "c1"},
		{fasthttp.MethodDelete, "/fast/v1/posts/p1/reactions", queue.HandlerReactionRemove, "p1"},
		{fasthttp.MethodPost, "/fast/v1/comments/c1/reactions", queue.HandlerReactionAdd, "c1"},
	}
	for _, tc := range cases {
		ctx := callFast(h, tc.method, tc.uri, []byte(`{}`))
		if ctx.Response.StatusCode() != fasthttp.StatusAccepted {
			t.Fatalf("%s %s: expected 202, got %d", tc.method, tc.uri, ctx.Response.StatusCode())
		}
		it := <-q.Out()
		if it.Op.Handler != tc.handler || it.Op.Target != tc.target {
			t.Fatalf("%s %s: unexpected op %+v", tc.method, tc.uri, it.Op)
		}
		it.Done()
	}
}

func TestFastUnknownRouteAndMethod(t *testing.T) {
	q := queue.NewQueue(8)
	h := FastMutations(q)

	ctx := callFast(h, fasthttp.MethodGet, "/fast/v1/nope", nil)
	if ctx.Response.StatusCode() != fasthttp.StatusNotFound {
		t.Fatalf("unknown route: expected 404, got %d", ctx.Response.StatusCode())
	}
	ctx = callFast(h, fasthttp.MethodGet, "/v1/reactions", nil)
	if ctx.Response.StatusCode() != fasthttp.StatusNotFound {
		t.Fatalf("non-fast prefix: expected 404, got %d", ctx.Response.StatusCode())
	}
	ctx = callFast(h, fasthttp.MethodPatch, "/fast/v1/posts/p1/reactions", nil)
	if ctx.Response.StatusCode() != fasthttp.StatusMethodNotAllowed {
		t.Fatalf("bad method: expected 405, got %d", ctx.Response.StatusCode())
	}
}

func TestFastQueueFull(t *testing.T) {
	q := queue.NewQueue(1)
	h := FastMutations(q)

	if ctx := callFast(h, fasthttp.MethodDelete, "/fast/v1/comments/c1", nil); ctx.Response.StatusCode() != fasthttp.StatusAccepted {
		t.Fatalf("fill: expected 202, got %d", ctx.Response.StatusCode())
	}
	ctx := callFast(h, fasthttp.MethodDelete, "/fast/v1/comments/c1", nil)
	if ctx.Response.StatusCode() != fasthttp.StatusTooManyRequests {
		t.Fatalf("full queue: expected 429, got %d", ctx.Response.StatusCode())
	}

	q.CloseAndDrain()
	ctx = callFast(h, fasthttp.MethodDelete, "/fast/v1/comments/c1", nil)
	if ctx.Response.StatusCode() != fasthttp.StatusServiceUnavailable {
		t.Fatalf("closed queue: expected 503, got %d", ctx.Response.StatusCode())
	}
}
