package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/eHtmlu/peak-publisher/internal/upload"
)

// handleUploadPhase runs one ingestion phase. Phase failures are part of
// the response body; only transport problems change the status code.
func (s *Server) handleUploadPhase(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			RespondWithError(w, http.StatusRequestEntityTooLarge, "Upload exceeds the size limit")
			return
		}
		RespondWithError(w, http.StatusBadRequest, "Invalid form data")
		return
	}

	req := upload.PhaseRequest{
		UploadID:       r.FormValue("upload_id"),
		Phase:          r.FormValue("phase"),
		BuiltInBrowser: isBuiltInBrowser(r.FormValue("built_in_browser")),
	}
	file, header, err := r.FormFile("file")
	if err == nil {
		defer file.Close()
		req.File = file
		req.FileName = header.Filename
		req.FileSize = header.Size
		req.MimeType = header.Header.Get("Content-Type")
	}

	RespondWithJSON(w, http.StatusOK, s.pipeline.Run(r.Context(), req))
}

// isBuiltInBrowser reads the flag a client sends when it zipped the
// plugin folder itself.
func isBuiltInBrowser(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "jszip", "true", "1":
		return true
	}
	return false
}

type finalizeResponse struct {
	Status string `json:"status"`
	*upload.FinalizeResult
	Errors []upload.ErrorItem `json:"errors,omitempty"`
}

func (s *Server) handleFinalizeUpload(w http.ResponseWriter, r *http.Request) {
	var req upload.FinalizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	res, err := s.finalizer.Finalize(r.Context(), req)
	if err != nil {
		e := upload.AsError(err, upload.CodeCreateReleaseFailed)
		RespondWithJSON(w, http.StatusOK, finalizeResponse{Status: upload.StatusError, Errors: []upload.ErrorItem{e.Item()}})
		return
	}
	RespondWithJSON(w, http.StatusOK, finalizeResponse{Status: upload.StatusOK, FinalizeResult: res})
}

func (s *Server) handleDiscardUpload(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		UploadID string `json:"upload_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	if err := s.finalizer.Discard(r.Context(), payload.UploadID); err != nil {
		e := upload.AsError(err, upload.CodeUploadNotFound)
		RespondWithJSON(w, http.StatusOK, finalizeResponse{Status: upload.StatusError, Errors: []upload.ErrorItem{e.Item()}})
		return
	}
	RespondWithJSON(w, http.StatusOK, map[string]string{"status": upload.StatusOK})
}
