// Package webhook implements the GitHub push-event endpoint of spec.md §6:
// verify the delivery's HMAC-SHA256 signature (when a secret is
// configured), parse the push event, and enqueue a regeneration job.
package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/google/go-github/v66/github"

	"github.com/isocrates/isocrates/internal/logging"
	"github.com/isocrates/isocrates/internal/types"
	"go.uber.org/zap"
)

// Enqueuer is the subset of internal/jobqueue.Queue the webhook handler
// needs, kept narrow the same way internal/writer.Store is.
type Enqueuer interface {
	Enqueue(ctx context.Context, repoURL, commitSHA string) (*types.GenerationJob, bool, error)
}

// Handler is an http.Handler for POST /api/webhooks/github. Only "push"
// events are acted on; everything else is acknowledged with 204 and
// ignored, matching GitHub's own recommendation to 2xx deliveries you
// don't care about rather than erroring.
type Handler struct {
	secret []byte // empty disables signature verification
	queue  Enqueuer
	log    *zap.Logger
}

// NewHandler constructs a Handler. An empty secret disables signature
// verification entirely (spec.md §6: "only when a secret is configured").
func NewHandler(secret string, queue Enqueuer) *Handler {
	return &Handler{secret: []byte(secret), queue: queue, log: logging.Get(logging.CategoryWebhook)}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var payload []byte
	var err error
	if len(h.secret) > 0 {
		payload, err = github.ValidatePayload(r, h.secret)
		if err != nil {
			h.log.Sugar().Warnw("webhook signature rejected", "err", err)
			http.Error(w, "invalid signature", http.StatusUnauthorized)
			return
		}
	} else {
		payload, err = io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "reading body", http.StatusBadRequest)
			return
		}
	}

	if github.WebHookType(r) != "push" {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	var event github.PushEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		h.log.Sugar().Warnw("malformed push event", "err", err)
		http.Error(w, "malformed payload", http.StatusBadRequest)
		return
	}

	repoURL := event.GetRepo().GetCloneURL()
	commitSHA := event.GetHeadCommit().GetID()
	if repoURL == "" || commitSHA == "" {
		http.Error(w, "push event missing repository.clone_url or head_commit.id", http.StatusBadRequest)
		return
	}

	job, created, err := h.queue.Enqueue(r.Context(), repoURL, commitSHA)
	if err != nil {
		h.log.Sugar().Errorw("enqueue failed", "repo_url", repoURL, "commit_sha", commitSHA, "err", err)
		http.Error(w, "enqueue failed", http.StatusInternalServerError)
		return
	}

	h.log.Sugar().Infow("webhook enqueued job", "job_id", job.ID, "repo_url", repoURL, "commit_sha", commitSHA, "created", created)
	w.Header().Set("Content-Type", "application/json")
	if created {
		w.WriteHeader(http.StatusAccepted)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"job_id": job.ID,
		"status": job.Status,
		"new":    created,
	})
}
