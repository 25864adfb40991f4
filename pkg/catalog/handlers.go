package catalog

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hangarhq/hangar/pkg/apperror"
	"github.com/hangarhq/hangar/pkg/identity"
)

// uploadWindow is how long a single multipart upload may take before
// the read deadline fires. Generous because packages can be hundreds
// of megabytes on slow links.
const uploadWindow = 15 * time.Minute

// NewAppsRouter builds the /api/apps subrouter. All routes require an
// authenticated principal.
func NewAppsRouter(svc *Service, ids *identity.Service) http.Handler {
	r := chi.NewRouter()
	r.Use(ids.RequireUser)

	r.Post("/", createAppHandler(svc))
	r.Post("/find-or-create", findOrCreateAppHandler(svc))
	r.Get("/", listAppsHandler(svc))
	r.Get("/{appID}", getAppHandler(svc))
	r.Patch("/{appID}", updateAppHandler(svc))
	r.Put("/{appID}", updateAppHandler(svc))
	r.Delete("/{appID}", deleteAppHandler(svc))
	r.Get("/{appID}/versions", listVersionsHandler(svc))
	r.Post("/{appID}/versions", uploadVersionHandler(svc))

	return r
}

// NewVersionsRouter builds the /api/versions subrouter for operations
// addressed by version id.
func NewVersionsRouter(svc *Service, ids *identity.Service) http.Handler {
	r := chi.NewRouter()
	r.Use(ids.RequireUser)

	r.Patch("/{versionID}", updateVersionHandler(svc))
	r.Put("/{versionID}", updateVersionHandler(svc))
	r.Patch("/{versionID}/publish", togglePublishHandler(svc))
	r.Delete("/{versionID}", deleteVersionHandler(svc))

	return r
}

func createAppHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := identity.PrincipalFromContext(r.Context())
		if !ok {
			apperror.WriteError(w, apperror.Unauthorized("authentication required"))
			return
		}
		var in CreateAppInput
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			apperror.WriteError(w, apperror.Validation("invalid request body: %v", err))
			return
		}
		app, err := svc.CreateApp(p, in)
		if err != nil {
			apperror.WriteError(w, err)
			return
		}
		apperror.WriteJSON(w, http.StatusCreated, app)
	}
}

func findOrCreateAppHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := identity.PrincipalFromContext(r.Context())
		if !ok {
			apperror.WriteError(w, apperror.Unauthorized("authentication required"))
			return
		}
		var in CreateAppInput
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			apperror.WriteError(w, apperror.Validation("invalid request body: %v", err))
			return
		}
		app, created, err := svc.FindOrCreateApp(p, in)
		if err != nil {
			apperror.WriteError(w, err)
			return
		}
		status := http.StatusOK
		if created {
			status = http.StatusCreated
		}
		apperror.WriteJSON(w, status, app)
	}
}

func listAppsHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := identity.PrincipalFromContext(r.Context())
		if !ok {
			apperror.WriteError(w, apperror.Unauthorized("authentication required"))
			return
		}
		q := r.URL.Query()
		page, _ := strconv.Atoi(q.Get("page"))
		pageSize, _ := strconv.Atoi(q.Get("page_size"))
		list, err := svc.ListApps(p, strings.ToLower(q.Get("platform")), page, pageSize)
		if err != nil {
			apperror.WriteError(w, err)
			return
		}
		apperror.WriteJSON(w, http.StatusOK, list)
	}
}

func getAppHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, id, ok := principalAndID(w, r, "appID")
		if !ok {
			return
		}
		app, err := svc.GetApp(p, id)
		if err != nil {
			apperror.WriteError(w, err)
			return
		}
		apperror.WriteJSON(w, http.StatusOK, app)
	}
}

func updateAppHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, id, ok := principalAndID(w, r, "appID")
		if !ok {
			return
		}
		var in UpdateAppInput
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			apperror.WriteError(w, apperror.Validation("invalid request body: %v", err))
			return
		}
		app, err := svc.UpdateApp(p, id, in)
		if err != nil {
			apperror.WriteError(w, err)
			return
		}
		apperror.WriteJSON(w, http.StatusOK, app)
	}
}

func deleteAppHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, id, ok := principalAndID(w, r, "appID")
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

func listVersionsHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, id, ok := principalAndID(w, r, "appID")
		if !ok {
			return
		}
		list, err := svc.ListVersions(p, id)
		if err != nil {
			apperror.WriteError(w, err)
			return
		}
		apperror.WriteJSON(w, http.StatusOK, list)
	}
}

// uploadResponse wraps a created version with an optional warning, so
// degraded uploads (failed inspection, bundle id mismatch) still
// succeed while telling the caller what went sideways.
type uploadResponse struct {
	Version *Version `json:"version"`
	Warning *string  `json:"warning"`
}

func uploadVersionHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, id, ok := principalAndID(w, r, "appID")
		if !ok {
			return
		}

		// Large uploads on slow links need more than the server-wide
		// read timeout.
		rc := http.NewResponseController(w)
		if err := rc.SetReadDeadline(time.Now().Add(uploadWindow)); err == nil {
			defer rc.SetReadDeadline(time.Time{})
		}

		// Cap the whole request body; the form itself spools file
		// parts to disk past 32 MiB.
		r.Body = http.MaxBytesReader(w, r.Body, svc.MaxUploadBytes()+(1<<20))
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			var tooBig *http.MaxBytesError
			if errors.As(err, &tooBig) {
				apperror.WriteError(w, apperror.PayloadTooLarge("package exceeds the %d byte upload ceiling", svc.MaxUploadBytes()))
				return
			}
			apperror.WriteError(w, apperror.Validation("invalid multipart request: %v", err))
			return
		}
		defer r.MultipartForm.RemoveAll()

		file, header, err := r.FormFile("file")
		if err != nil {
			apperror.WriteError(w, apperror.Validation("multipart field %q is required", "file"))
			return
		}
		defer file.Close()

		in := UploadInput{
			Filename:     header.Filename,
			Size:         header.Size,
			Content:      file,
			VersionCode:  r.FormValue("version_code"),
			VersionName:  r.FormValue("version_name"),
			Channel:      r.FormValue("channel"),
			ReleaseNotes: r.FormValue("release_notes"),
			ForceUpdate:  parseBool(r.FormValue("force_update")),
		}

		version, warning, err := svc.CreateVersion(r.Context(), p, id, in)
		if err != nil {
			apperror.WriteError(w, err)
			return
		}
		apperror.WriteJSON(w, http.StatusCreated, uploadResponse{
			Version: version,
			Warning: optional(warning),
		})
	}
}

func updateVersionHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, id, ok := principalAndID(w, r, "versionID")
		if !ok {
			return
		}
		var in UpdateVersionInput
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			apperror.WriteError(w, apperror.Validation("invalid request body: %v", err))
			return
		}
		version, err := svc.UpdateVersion(p, id, in)
		if err != nil {
			apperror.WriteError(w, err)
			return
		}
		apperror.WriteJSON(w, http.StatusOK, version)
	}
}

func togglePublishHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, id, ok := principalAndID(w, r, "versionID")
		if !ok {
			return
		}
		published, err := svc.TogglePublish(p, id)
		if err != nil {
			apperror.WriteError(w, err)
			return
		}
		apperror.WriteJSON(w, http.StatusOK, map[string]bool{"is_published": published})
	}
}

func deleteVersionHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, id, ok := principalAndID(w, r, "versionID")
		if !ok {
			return
		}
		if err := svc.DeleteVersion(p, id); err != nil {
			apperror.WriteError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// principalAndID extracts the caller and a numeric URL parameter,
// writing the error response itself on failure.
func principalAndID(w http.ResponseWriter, r *http.Request, param string) (*identity.Principal, uint, bool) {
	p, ok := identity.PrincipalFromContext(r.Context())
	if !ok {
		apperror.WriteError(w, apperror.Unauthorized("authentication required"))
		return nil, 0, false
	}
	raw := chi.URLParam(r, param)
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		apperror.WriteError(w, apperror.Validation("invalid id %q", raw))
		return nil, 0, false
	}
	return p, uint(id), true
}

func parseBool(s string) bool {
	b, _ := strconv.ParseBool(s)
	return b
}
