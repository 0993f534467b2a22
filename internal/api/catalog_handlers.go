package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/eHtmlu/peak-publisher/internal/catalog"
	"github.com/eHtmlu/peak-publisher/internal/models"
)

func idParam(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return id, err == nil && id > 0
}

// respondCatalogError maps service errors to status codes.
func (s *Server) respondCatalogError(w http.ResponseWriter, err error, notFound string) {
	switch {
	case errors.Is(err, sql.ErrNoRows), errors.Is(err, fs.ErrNotExist):
		RespondWithError(w, http.StatusNotFound, notFound)
	case errors.Is(err, catalog.ErrInvalidStatus):
		RespondWithError(w, http.StatusBadRequest, "Invalid status")
	default:
		s.logger.Error("catalog operation failed", zap.Error(err))
		RespondWithError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func (s *Server) handleListPlugins(w http.ResponseWriter, r *http.Request) {
	plugins, err := s.catalog.Summaries()
	if err != nil {
		s.respondCatalogError(w, err, "")
		return
	}
	RespondWithJSON(w, http.StatusOK, plugins)
}

func (s *Server) handleGetPlugin(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "pluginID")
	if !ok {
		RespondWithError(w, http.StatusBadRequest, "Invalid plugin ID")
		return
	}
	details, err := s.catalog.Details(id)
	if err != nil {
		s.respondCatalogError(w, err, "Plugin not found")
		return
	}
	RespondWithJSON(w, http.StatusOK, details)
}

type statusPayload struct {
	Status models.Status `json:"status"`
}

func (s *Server) handleUpdatePluginStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "pluginID")
	if !ok {
		RespondWithError(w, http.StatusBadRequest, "Invalid plugin ID")
		return
	}
	var payload statusPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if err := s.catalog.SetPluginStatus(id, payload.Status); err != nil {
		s.respondCatalogError(w, err, "Plugin not found")
		return
	}
	RespondWithJSON(w, http.StatusOK, map[string]string{"status": string(payload.Status)})
}

func (s *Server) handleDeletePlugin(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "pluginID")
	if !ok {
		RespondWithError(w, http.StatusBadRequest, "Invalid plugin ID")
		return
	}
	if err := s.catalog.DeletePlugin(id); err != nil {
		s.respondCatalogError(w, err, "Plugin not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUpdateReleaseStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "releaseID")
	if !ok {
		RespondWithError(w, http.StatusBadRequest, "Invalid release ID")
		return
	}
	var payload statusPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if err := s.catalog.SetReleaseStatus(id, payload.Status); err != nil {
		s.respondCatalogError(w, err, "Release not found")
		return
	}
	RespondWithJSON(w, http.StatusOK, map[string]string{"status": string(payload.Status)})
}

func (s *Server) handleDeleteRelease(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "releaseID")
	if !ok {
		RespondWithError(w, http.StatusBadRequest, "Invalid release ID")
		return
	}
	if err := s.catalog.DeleteRelease(id); err != nil {
		s.respondCatalogError(w, err, "Release not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleDownloadRelease serves any release archive, drafts included.
func (s *Server) handleDownloadRelease(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "releaseID")
	if !ok {
		RespondWithError(w, http.StatusBadRequest, "Invalid release ID")
		return
	}
	_, path, err := s.catalog.ReleaseArchive(id)
	if err != nil {
		s.respondCatalogError(w, err, "Release not found")
		return
	}
	serveArchive(w, r, path, filepath.Base(path))
}
