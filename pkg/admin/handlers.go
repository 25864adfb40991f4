package admin

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hangarhq/hangar/pkg/apperror"
	"github.com/hangarhq/hangar/pkg/identity"
)

// NewRouter builds the /api/admin subrouter. Every route requires an
// authenticated admin.
func NewRouter(svc *Service, ids *identity.Service) http.Handler {
	r := chi.NewRouter()
	r.Use(ids.RequireUser)
	r.Use(identity.RequireAdmin)

	r.Get("/stats", statsHandler(svc))
	r.Get("/users", listUsersHandler(svc))
	r.Patch("/users/{userID}", setUserFlagsHandler(svc))
	r.Get("/apps", listAppsHandler(svc))
	r.Patch("/apps/{appID}/toggle-public", toggleAppPublicHandler(svc))
	r.Delete("/apps/{appID}", deleteAppHandler(svc))

	return r
}

func statsHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := svc.Stats()
		if err != nil {
			apperror.WriteError(w, err)
			return
		}
		apperror.WriteJSON(w, http.StatusOK, stats)
	}
}

func listUsersHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		page, _ := strconv.Atoi(q.Get("page"))
		pageSize, _ := strconv.Atoi(q.Get("page_size"))
		list, err := svc.ListUsers(q.Get("search"), page, pageSize)
		if err != nil {
			apperror.WriteError(w, err)
			return
		}
		apperror.WriteJSON(w, http.StatusOK, list)
	}
}

// setUserFlagsInput carries the patchable account flags.
type setUserFlagsInput struct {
	IsActive *bool `json:"is_active"`
	IsAdmin  *bool `json:"is_admin"`
}

func setUserFlagsHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "userID")
		if !ok {
			return
		}
		var in setUserFlagsInput
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			apperror.WriteError(w, apperror.Validation("invalid request body: %v", err))
			return
		}
		user, err := svc.SetUserFlags(id, in.IsActive, in.IsAdmin)
		if err != nil {
			apperror.WriteError(w, err)
			return
		}
		apperror.WriteJSON(w, http.StatusOK, user)
	}
}

func listAppsHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		page, _ := strconv.Atoi(q.Get("page"))
		pageSize, _ := strconv.Atoi(q.Get("page_size"))
		list, err := svc.ListApps(strings.ToLower(q.Get("platform")), q.Get("search"), page, pageSize)
		if err != nil {
			apperror.WriteError(w, err)
			return
		}
		apperror.WriteJSON(w, http.StatusOK, list)
	}
}

func toggleAppPublicHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "appID")
		if !ok {
			return
		}
		isPublic, err := svc.ToggleAppPublic(id)
		if err != nil {
			apperror.WriteError(w, err)
			return
		}
		apperror.WriteJSON(w, http.StatusOK, map[string]bool{"is_public": isPublic})
	}
}

func deleteAppHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := identity.PrincipalFromContext(r.Context())
		if !ok {
			apperror.WriteError(w, apperror.Unauthorized("authentication required"))
			return
		}
		id, ok := pathID(w, r, "appID")
		if !ok {
			return
		}
		if err := svc.DeleteApp(p, id); err != nil {
			apperror.WriteError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func pathID(w http.ResponseWriter, r *http.Request, param string) (uint, bool) {
	raw := chi.URLParam(r, param)
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		apperror.WriteError(w, apperror.Validation("invalid id %q", raw))
		return 0, false
	}
	return uint(id), true
}
