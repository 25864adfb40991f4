package download

import (
	"fmt"
	"mime"
	"net/http"
	"path"

	"github.com/go-chi/chi/v5"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/hangarhq/hangar/pkg/apperror"
	"github.com/hangarhq/hangar/pkg/catalog"
)

const qrSize = 512 // pixels, comfortable for phone cameras

// NewRouter builds the unauthenticated /api/download subrouter.
func NewRouter(svc *Service) http.Handler {
	r := chi.NewRouter()
	r.Get("/{token}", pageHandler(svc))
	r.Get("/{token}/file", fileHandler(svc))
	r.Get("/{token}/manifest.plist", manifestHandler(svc))
	r.Get("/{token}/qr", qrHandler(svc))
	return r
}

func pageHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		info, err := svc.Page(chi.URLParam(r, "token"))
		if err != nil {
			apperror.WriteError(w, err)
			return
		}
		apperror.WriteJSON(w, http.StatusOK, info)
	}
}

func fileHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rc, version, app, err := svc.FileStream(chi.URLParam(r, "token"))
		if err != nil {
			apperror.WriteError(w, err)
			return
		}
		defer rc.Close()

		filename := downloadFilename(app, version)
		w.Header().Set("Content-Type", packageContentType(app.Platform))
		w.Header().Set("Content-Disposition",
			mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
		// ServeContent handles ranges and conditional requests; iOS
		// installd issues range reads against the package.
		http.ServeContent(w, r, filename, version.CreatedAt, rc)
	}
}

func manifestHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := svc.Manifest(chi.URLParam(r, "token"))
		if err != nil {
			apperror.WriteError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/xml; charset=utf-8")
		w.Write(data)
	}
}

func qrHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		installURL, err := svc.InstallURL(chi.URLParam(r, "token"))
		if err != nil {
			apperror.WriteError(w, err)
			return
		}
		png, err := qrcode.Encode(installURL, qrcode.Medium, qrSize)
		if err != nil {
			apperror.WriteError(w, apperror.Internal(err, "render qr code"))
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write(png)
	}
}

// downloadFilename builds "<name>-<version>.<ext>" preserving the
// extension of the stored artifact.
func downloadFilename(app *catalog.AppRecord, version *catalog.VersionRecord) string {
	ext := path.Ext(version.FilePath)
	if ext == "" {
		if app.Platform == catalog.PlatformIOS {
			ext = ".ipa"
		} else {
			ext = ".apk"
		}
	}
	return fmt.Sprintf("%s-%s%s", app.Name, version.VersionName, ext)
}

func packageContentType(platform string) string {
	if platform == catalog.PlatformIOS {
		return "application/octet-stream"
	}
	return "application/vnd.android.package-archive"
}
