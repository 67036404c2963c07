// Package httpapi implements the content store's REST surface (spec.md
// §6): document CRUD, version/dependency introspection, batch operations,
// and the authoritative ID-generation endpoint. The GitHub webhook
// endpoint is a separate http.Handler (internal/webhook) mounted alongside
// these routes rather than reimplemented here.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/isocrates/isocrates/internal/errs"
	"github.com/isocrates/isocrates/internal/logging"
	"github.com/isocrates/isocrates/internal/store"
	"github.com/isocrates/isocrates/internal/types"
	"go.uber.org/zap"
)

// Server wires a *store.Store and (optionally) a GitHub webhook handler
// into a chi router. Grounded on releaseparty's api.Server: a thin struct
// holding its dependencies, with a Router() method building the chi tree.
type Server struct {
	store   *store.Store
	webhook http.Handler // may be nil: webhook route is then not mounted
	log     *zap.Logger
}

// New constructs a Server. webhook may be nil if the GitHub webhook route
// should not be mounted (e.g. in tests exercising only the document API).
func New(st *store.Store, webhook http.Handler) *Server {
	return &Server{store: st, webhook: webhook, log: logging.Get(logging.CategoryStore)}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/docs", s.handleUpsert)
		r.Get("/docs", s.handleList)
		r.Get("/docs/{id}", s.handleGet)
		r.Put("/docs/{id}", s.handleUpdate)
		r.Delete("/docs/{id}", s.handleDelete)
		r.Get("/docs/{id}/versions", s.handleVersions)
		r.Get("/docs/{id}/dependencies", s.handleDependencies)
		r.Post("/docs/batch", s.handleBatch)
		r.Post("/docs/generate-id", s.handleGenerateID)
		if s.webhook != nil {
			r.Post("/webhooks/github", s.webhook.ServeHTTP)
		}
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusForError maps a store error to an HTTP status, per spec.md §6's
// NotFound/Conflict distinction.
func statusForError(err error) int {
	var notFound *errs.NotFoundError
	if errors.As(err, &notFound) {
		return http.StatusNotFound
	}
	var conflict *errs.ConflictError
	if errors.As(err, &conflict) {
		return http.StatusConflict
	}
	var safety *errs.SafetyRefusal
	if errors.As(err, &safety) {
		return http.StatusConflict
	}
	var validation *errs.ValidationError
	if errors.As(err, &validation) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

type docCreateRequest struct {
	RepoURL     string            `json:"repo_url"`
	RepoName    string            `json:"repo_name"`
	DocType     string            `json:"doc_type"`
	Path        string            `json:"path"`
	Title       string            `json:"title"`
	Content     string            `json:"content"`
	Description string            `json:"description"`
	Keywords    []string          `json:"keywords"`
	AuthorType  string            `json:"author_type"`
	AuthorMeta  wireAuthorMeta    `json:"author_meta"`
}

type wireAuthorMeta struct {
	Model        string            `json:"model,omitempty"`
	CommitSHA    string            `json:"commit_sha,omitempty"`
	SourceHashes map[string]string `json:"source_hashes,omitempty"`
	Trigger      string            `json:"trigger,omitempty"`
	Reason       string            `json:"reason,omitempty"`
	MovedDoc     string            `json:"moved_doc,omitempty"`
}

func (w wireAuthorMeta) toTypes() types.AuthorMeta {
	return types.AuthorMeta{
		Model:        w.Model,
		CommitSHA:    w.CommitSHA,
		SourceHashes: w.SourceHashes,
		Trigger:      w.Trigger,
		Reason:       w.Reason,
		MovedDoc:     w.MovedDoc,
	}
}

type docResponse struct {
	ID          string    `json:"id"`
	RepoURL     string    `json:"repo_url"`
	RepoName    string    `json:"repo_name"`
	DocType     string    `json:"doc_type"`
	Path        string    `json:"path"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	Preview     string    `json:"preview"`
	Description string    `json:"description"`
	Keywords    []string  `json:"keywords"`
	Version     int       `json:"version"`
	CreatedAt   string    `json:"created_at"`
	UpdatedAt   string    `json:"updated_at"`
	DeletedAt   *string   `json:"deleted_at,omitempty"`
}

func toDocResponse(d *types.Document) docResponse {
	resp := docResponse{
		ID: d.ID, RepoURL: d.RepoURL, RepoName: d.RepoName, DocType: d.DocType,
		Path: d.Path, Title: d.Title, Content: d.Content, Preview: d.Preview,
		Description: d.Description, Keywords: d.Keywords, Version: d.Version,
		CreatedAt: d.CreatedAt.Format(httpTimeLayout), UpdatedAt: d.UpdatedAt.Format(httpTimeLayout),
	}
	if d.DeletedAt != nil {
		s := d.DeletedAt.Format(httpTimeLayout)
		resp.DeletedAt = &s
	}
	return resp
}

const httpTimeLayout = "2006-01-02T15:04:05.999999999Z07:00"

func (s *Server) handleUpsert(w http.ResponseWriter, r *http.Request) {
	var req docCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	create := types.DocumentCreate{
		RepoURL: req.RepoURL, RepoName: req.RepoName, DocType: req.DocType,
		Path: req.Path, Title: req.Title, Content: req.Content, Description: req.Description,
		Keywords: req.Keywords, AuthorType: types.AuthorType(req.AuthorType), AuthorMeta: req.AuthorMeta.toTypes(),
	}
	if create.Title == "" || create.Content == "" {
		writeError(w, http.StatusBadRequest, "title and content are required")
		return
	}
	if create.AuthorType == "" {
		create.AuthorType = types.AuthorAI
	}

	doc, isNew, err := s.store.Upsert(r.Context(), create)
	if err != nil {
		s.log.Sugar().Errorw("upsert failed", "err", err)
		writeError(w, statusForError(err), err.Error())
		return
	}
	status := http.StatusOK
	if isNew {
		status = http.StatusCreated
	}
	writeJSON(w, status, toDocResponse(doc))
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := store.ListOptions{
		PathPrefix: q.Get("path_prefix"),
		RepoURL:    q.Get("repo_url"),
	}
	if v := q.Get("skip"); v != "" {
		opts.Skip, _ = strconv.Atoi(v)
	}
	if v := q.Get("limit"); v != "" {
		opts.Limit, _ = strconv.Atoi(v)
	}

	docs, err := s.store.ListDocuments(r.Context(), opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]docResponse, 0, len(docs))
	for _, d := range docs {
		out = append(out, toDocResponse(d))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	doc, err := s.store.GetDocument(r.Context(), id)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toDocResponse(doc))
}

type docUpdateRequest struct {
	Content     *string          `json:"content"`
	Description *string          `json:"description"`
	Version     *int             `json:"version"`
	AuthorType  types.AuthorType `json:"author_type"`
	AuthorMeta  types.AuthorMeta `json:"author_metadata"`
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req docUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	doc, err := s.store.Update(r.Context(), id, req.Content, req.Description, req.Version, req.AuthorType, req.AuthorMeta)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toDocResponse(doc))
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.store.Delete(r.Context(), id); err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleVersions(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	versions, err := s.store.Versions(r.Context(), id)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, versions)
}

func (s *Server) handleDependencies(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	outgoing, incoming, err := s.store.Dependencies(r.Context(), id)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"outgoing": outgoing, "incoming": incoming})
}

func (s *Server) handleGenerateID(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RepoURL string `json:"repo_url"`
		Path    string `json:"path"`
		Title   string `json:"title"`
		DocType string `json:"doc_type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	id := store.GenerateDocID(req.RepoURL, req.Path, req.Title, req.DocType)
	writeJSON(w, http.StatusOK, map[string]string{"id": id})
}
