package todo

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/jds-integration/integration/pkg/contextkeys"
	"github.com/jds-integration/integration/pkg/httputil"
	"github.com/jds-integration/integration/pkg/observability"
)

// BasePath is where the to-do routes are mounted
const BasePath = "/api/todolist"

// Handlers serves the to-do API for the authenticated caller
type Handlers struct {
	store Store
}

// NewHandlers creates to-do handlers over a store
func NewHandlers(store Store) *Handlers {
	return &Handlers{store: store}
}

// RegisterRoutes mounts the routes. read guards GET routes and write guards the rest.
func (h *Handlers) RegisterRoutes(router *mux.Router, read, write func(http.Handler) http.Handler) {
	router.Handle(BasePath, read(http.HandlerFunc(h.list))).Methods(http.MethodGet)
	router.Handle(BasePath+"/{id:[0-9]+}", read(http.HandlerFunc(h.get))).Methods(http.MethodGet)
	router.Handle(BasePath, write(http.HandlerFunc(h.create))).Methods(http.MethodPost)
	router.Handle(BasePath+"/{id:[0-9]+}", write(http.HandlerFunc(h.update))).Methods(http.MethodPatch)
	router.Handle(BasePath+"/{id:[0-9]+}", write(http.HandlerFunc(h.delete))).Methods(http.MethodDelete)
}

// caller returns the authenticated identity and seeds sample data for the first caller
func (h *Handlers) caller(w http.ResponseWriter, r *http.Request) (string, bool) {
	owner := contextkeys.GetIdentity(r.Context())
	if owner == "" {
		httputil.WriteUnauthenticated(w, "authentication required")
		return "", false
	}
	if err := h.store.Seed(r.Context(), owner); err != nil {
		h.storeError(w, r, err)
		return "", false
	}
	return owner, true
}

func (h *Handlers) list(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.caller(w, r)
	if !ok {
		return
	}

	todos, err := h.store.List(r.Context(), owner)
	if err != nil {
		h.storeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, todos)
}

func (h *Handlers) get(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.caller(w, r); !ok {
		return
	}
	id, ok := httputil.ParsePathIntOrError(w, r, "id")
	if !ok {
		return
	}

	t, err := h.store.Get(r.Context(), id)
	if err != nil {
		h.storeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, t)
}

func (h *Handlers) create(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.caller(w, r)
	if !ok {
		return
	}

	var req Todo
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	created, err := h.store.Create(r.Context(), Todo{Title: req.Title, Owner: owner})
	if err != nil {
		h.storeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, created)
}

func (h *Handlers) update(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.caller(w, r); !ok {
		return
	}
	id, ok := httputil.ParsePathIntOrError(w, r, "id")
	if !ok {
		return
	}

	var req Todo
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.ID != id {
		httputil.WriteNotFound(w)
		return
	}

	existing, err := h.store.Get(r.Context(), id)
	if err != nil {
		h.storeError(w, r, err)
		return
	}

	// ownership does not move on edit
	updated, err := h.store.Update(r.Context(), Todo{ID: id, Title: req.Title, Owner: existing.Owner})
	if err != nil {
		h.storeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, updated)
}

func (h *Handlers) delete(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.caller(w, r); !ok {
		return
	}
	id, ok := httputil.ParsePathIntOrError(w, r, "id")
	if !ok {
		return
	}

	if err := h.store.Delete(r.Context(), id); err != nil {
		h.storeError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (h *Handlers) storeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, ErrNotFound) {
		httputil.WriteNotFound(w)
		return
	}
	observability.FromContext(r.Context()).WithError(err).Error("todo store failed")
	httputil.WriteInternalError(w, "internal server error")
}
