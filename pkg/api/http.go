// Package api exposes the engagement engine over HTTP. The gorilla/mux
// handler in this file serves the synchronous read and mutation paths; the
// fasthttp handlers in mutations.go serve the enqueue-only fast path.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"hearth/pkg/comments"
	"hearth/pkg/logger"
	"hearth/pkg/models"
	"hearth/pkg/reactions"
	"hearth/pkg/realtime"
	"hearth/pkg/store"
	"hearth/pkg/utils"
	"hearth/pkg/warmth"

	"github.com/gorilla/mux"
)

// Deps bundles the engines the HTTP layer drives.
type Deps struct {
	Reactions *reactions.Engine
	Comments  *comments.Engine
	Agg       *warmth.Aggregator
	Hub       *realtime.Hub
}

const maxBodyBytes = 100 << 10 // 100 KiB

// Handler builds the /v1 REST router.
func Handler(d Deps) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/v1/reactions", d.addReaction).Methods(http.MethodPost)
	r.HandleFunc("/v1/reactions", d.removeReaction).Methods(http.MethodDelete)
	r.HandleFunc("/v1/reactions/summary", d.reactionSummary).Methods(http.MethodGet)

	r.HandleFunc("/v1/posts/{postID}/comments", d.addComment).Methods(http.MethodPost)
	r.HandleFunc("/v1/posts/{postID}/comments", d.commentTree).Methods(http.MethodGet)
	r.HandleFunc("/v1/comments/{id}", d.editComment).Methods(http.MethodPut)
	r.HandleFunc("/v1/comments/{id}", d.deleteComment).Methods(http.MethodDelete)

	r.HandleFunc("/v1/posts/{postID}/typing", d.setTyping).Methods(http.MethodPost)

	r.HandleFunc("/v1/posts/{postID}/warmth", d.postWarmth).Methods(http.MethodGet)
	r.HandleFunc("/v1/family/{scopeID}/warmth", d.familyWarmth).Methods(http.MethodGet)
	r.HandleFunc("/v1/posts/{postID}/warmth/recompute", d.recomputePostWarmth).Methods(http.MethodPost)
	r.HandleFunc("/v1/family/{scopeID}/warmth/recompute", d.recomputeFamilyWarmth).Methods(http.MethodPost)

	return r
}

// identityFrom resolves the acting user from the gateway identity header,
// falling back to the user query param for local tooling.
func identityFrom(r *http.Request) string {
	if id := r.Header.Get("X-Identity"); id != "" {
		return id
	}
	return r.URL.Query().Get("user")
}

func targetFromQuery(r *http.Request) models.ReactionTarget {
	return models.ReactionTarget{
		PostID:    r.URL.Query().Get("post"),
		CommentID: r.URL.Query().Get("comment"),
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json payload")
		return false
	}
	return true
}

func (d Deps) addReaction(w http.ResponseWriter, r *http.Request) {
	var in reactions.AddInput
	if !decodeBody(w, r, &in) {
		return
	}
	if in.UserID == "" {
		in.UserID = identityFrom(r)
	}
	in.ID = "" // ids are server-assigned on the sync path
	reaction, score, err := d.Reactions.AddReaction(r.Context(), in)
	if err != nil {
		utils.JSONError(w, statusFor(err), err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, struct {
		Reaction models.Reaction `json:"reaction"`
		Warmth   float64         `json:"warmth"`
	}{Reaction: reaction, Warmth: score})
}

func (d Deps) removeReaction(w http.ResponseWriter, r *http.Request) {
	target := targetFromQuery(r)
	removed, err := d.Reactions.RemoveReaction(r.Context(), identityFrom(r), target)
	if err != nil {
		utils.JSONError(w, statusFor(err), err.Error())
		return
	}
	if !removed {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]bool{"removed": true})
}

func (d Deps) reactionSummary(w http.ResponseWriter, r *http.Request) {
	target := targetFromQuery(r)
	sum, err := d.Reactions.Summary(r.Context(), target, identityFrom(r))
	if err != nil {
		utils.JSONError(w, statusFor(err), err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, sum)
}

func (d Deps) addComment(w http.ResponseWriter, r *http.Request) {
	var in comments.AddInput
	if !decodeBody(w, r, &in) {
		return
	}
	in.PostID = mux.Vars(r)["postID"]
	if in.AuthorID == "" {
		in.AuthorID = identityFrom(r)
	}
	in.ID = ""
	c, err := d.Comments.AddComment(r.Context(), in)
	if err != nil {
		utils.JSONError(w, statusFor(err), err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusCreated, c)
}

func (d Deps) commentTree(w http.ResponseWriter, r *http.Request) {
	postID := mux.Vars(r)["postID"]
	nodes, err := d.Comments.Tree(r.Context(), postID)
	if err != nil {
		utils.JSONError(w, statusFor(err), err.Error())
		return
	}
	meta, err := store.GetPostMeta(postID)
	if err != nil && !store.IsNotFound(err) {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	logger.Debug("comment_tree_served", "post", postID, "roots", len(nodes))
	_ = utils.JSONWrite(w, http.StatusOK, struct {
		PostID   string                `json:"post_id"`
		Count    int                   `json:"count"`
		Comments []*models.CommentNode `json:"comments"`
	}{PostID: postID, Count: meta.CommentCount, Comments: nodes})
}

func (d Deps) editComment(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Content string `json:"content"`
	}
	if !decodeBody(w, r, &in) {
		return
	}
	c, err := d.Comments.EditComment(r.Context(), mux.Vars(r)["id"], identityFrom(r), in.Content)
	if err != nil {
		utils.JSONError(w, statusFor(err), err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, c)
}

func (d Deps) deleteComment(w http.ResponseWriter, r *http.Request) {
	deleted, err := d.Comments.DeleteComment(r.Context(), mux.Vars(r)["id"], identityFrom(r))
	if err != nil {
		utils.JSONError(w, statusFor(err), err.Error())
		return
	}
	if !deleted {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (d Deps) setTyping(w http.ResponseWriter, r *http.Request) {
	var in struct {
		ParentID string `json:"parent_id,omitempty"`
		Typing   bool   `json:"typing"`
	}
	if !decodeBody(w, r, &in) {
		return
	}
	err := d.Comments.SetTyping(r.Context(), identityFrom(r), mux.Vars(r)["postID"], in.ParentID, in.Typing)
	if err != nil {
		utils.JSONError(w, statusFor(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (d Deps) postWarmth(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["postID"]
	ws, err := store.GetWarmth(models.ScopePost, id)
	if err != nil {
		if store.IsNotFound(err) {
			ws = models.WarmthScore{Scope: models.ScopePost, ID: id}
		} else {
			utils.JSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	_ = utils.JSONWrite(w, http.StatusOK, ws)
}

func (d Deps) familyWarmth(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["scopeID"]
	ws, err := store.GetWarmth(models.ScopeFamily, id)
	if err != nil {
		if store.IsNotFound(err) {
			ws = models.WarmthScore{Scope: models.ScopeFamily, ID: id}
		} else {
			utils.JSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	_ = utils.JSONWrite(w, http.StatusOK, ws)
}

func (d Deps) recomputePostWarmth(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["postID"]
	score, err := d.Agg.Recompute(models.ScopePost, id)
	if err != nil {
		utils.JSONError(w, statusFor(err), err.Error())
		return
	}
	logger.Info("warmth_recomputed", "scope", "post", "id", id, "score", strconv.FormatFloat(score, 'f', 4, 64))
	_ = utils.JSONWrite(w, http.StatusOK, map[string]float64{"score": score})
}

func (d Deps) recomputeFamilyWarmth(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["scopeID"]
	score, err := d.Agg.RecomputeFamily(id, time.Now().UTC())
	if err != nil {
		utils.JSONError(w, statusFor(err), err.Error())
		return
	}
	logger.Info("warmth_recomputed", "scope", "family", "id", id, "score", strconv.FormatFloat(score, 'f', 4, 64))
	_ = utils.JSONWrite(w, http.StatusOK, map[string]float64{"score": score})
}
