package audit

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hangarhq/hangar/pkg/apperror"
	"github.com/hangarhq/hangar/pkg/identity"
)

// NewRouter serves the audit trail to administrators.
func NewRouter(store *Store, ids *identity.Service) http.Handler {
	r := chi.NewRouter()
	r.Use(ids.RequireUser)
	r.Use(identity.RequireAdmin)

	r.Get("/", listEventsHandler(store))
	r.Get("/{eventID}", getEventHandler(store))
	return r
}

func listEventsHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		filter := ListFilter{
			Actor:        q.Get("actor"),
			Action:       q.Get("action"),
			ResourceType: q.Get("resource_type"),
			Outcome:      q.Get("outcome"),
		}
		page, _ := strconv.Atoi(q.Get("page"))
		pageSize, _ := strconv.Atoi(q.Get("page_size"))

		list, err := store.List(filter, page, pageSize)
		if err != nil {
			apperror.WriteError(w, apperror.Storage(err, "list audit events"))
			return
		}
		apperror.WriteJSON(w, http.StatusOK, list)
	}
}

func getEventHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "eventID")
		event, err := store.GetByID(id)
		if err != nil {
			apperror.WriteError(w, apperror.Storage(err, "get audit event"))
			return
		}
		if event == nil {
			apperror.WriteError(w, apperror.NotFound("audit event %q not found", id))
			return
		}
		apperror.WriteJSON(w, http.StatusOK, event)
	}
}
