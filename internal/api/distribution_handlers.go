package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/eHtmlu/peak-publisher/internal/distribution"
)

// handleUpdateCheck accepts either a JSON body or the form field
// "plugins" holding the same JSON document.
func (s *Server) handleUpdateCheck(w http.ResponseWriter, r *http.Request) {
	var req distribution.UpdateCheckRequest
	var err error
	if ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); ct == "application/json" {
		err = json.NewDecoder(r.Body).Decode(&req)
	} else {
		err = json.Unmarshal([]byte(r.FormValue("plugins")), &req)
	}
	if err != nil || req.Plugins == nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid parameters")
		return
	}

	resp, err := s.resolver.UpdateCheck(s.baseURL(r), req)
	if err != nil {
		s.logger.Error("update check failed", zap.Error(err))
		RespondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	RespondWithJSON(w, http.StatusOK, resp)
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	if action := r.FormValue("action"); action != "plugin_information" {
		RespondWithError(w, http.StatusBadRequest, "Action not implemented")
		return
	}
	slug := r.FormValue("request[slug]")
	if slug == "" {
		slug = r.FormValue("slug")
	}
	if slug == "" {
		RespondWithError(w, http.StatusBadRequest, "Invalid input")
		return
	}

	info, err := s.resolver.Info(s.baseURL(r), slug)
	if errors.Is(err, distribution.ErrNotFound) {
		RespondWithError(w, http.StatusNotFound, "Plugin not found")
		return
	}
	if err != nil {
		s.logger.Error("plugin info failed", zap.String("slug", slug), zap.Error(err))
		RespondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	RespondWithJSON(w, http.StatusOK, info)
}

// handleDownload streams a published release. Without a version the
// latest release is served.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	ver := chi.URLParam(r, "version")

	_, path, err := s.resolver.Archive(slug, ver)
	if errors.Is(err, distribution.ErrNotFound) {
		RespondWithError(w, http.StatusNotFound, "Plugin not found")
		return
	}
	if err != nil {
		s.logger.Error("download failed", zap.String("slug", slug), zap.String("version", ver), zap.Error(err))
		RespondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	serveArchive(w, r, path, filepath.Base(path))
}

func serveArchive(w http.ResponseWriter, r *http.Request, path, name string) {
	f, err := os.Open(path)
	if err != nil {
		RespondWithError(w, http.StatusNotFound, "File not found")
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil || info.IsDir() {
		RespondWithError(w, http.StatusNotFound, "File not found")
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Cache-Control", "no-cache, must-revalidate, max-age=0")
	http.ServeContent(w, r, name, info.ModTime(), f)
}
