package upload

import (
	"errors"
	"fmt"
)

// Machine-readable error codes returned to clients.
const (
	CodeNoFile          = "no_file"
	CodeUploadFailed    = "upload_failed"
	CodeMissingUploadID = "missing_upload_id"
	CodeUploadNotFound  = "upload_not_found"
	CodeInvalidPhase    = "invalid_phase"
	CodeZipMissing      = "zip_missing"
	CodeUnzipFailed     = "unzip_failed"
	CodeEmptyArchive    = "empty_archive"
	CodeAnalyzeFailed   = "analyze_failed"
	CodeRebuildFailed   = "rebuild_failed"

	CodePluginOrVersionInvalid = "plugin_or_version_invalid"
	CodePluginSlugMismatch     = "plugin_slug_mismatch"
	CodeReleaseSlugMismatch    = "release_slug_mismatch"
	CodePluginSlugConflict     = "plugin_slug_conflict"
	CodeReleaseSlugConflict    = "release_slug_conflict"
	CodeReleaseExists          = "release_exists"
	CodeOlderVersion           = "older_version"
	CodeUnexpectedVersion      = "unexpected_version"
	CodeBasenameChanged        = "basename_changed"
	CodeMoveZipFailed          = "move_zip_failed"
	CodeCreatePluginFailed     = "create_plugin_failed"
	CodeCreateReleaseFailed    = "create_release_failed"
	CodeRebuildPending         = "rebuild_pending"
)

// ErrSessionNotFound is returned for unknown, malformed and expired
// upload ids.
var ErrSessionNotFound = errors.New("upload session not found")

// Error is a recoverable failure reported to the caller with a code.
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Item is the wire form of an Error.
func (e *Error) Item() ErrorItem {
	return ErrorItem{Code: e.Code, Message: e.Message}
}

// ErrorItem is one entry of the errors list in a response.
type ErrorItem struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func newError(code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// AsError converts any error into an *Error. Errors without a code are
// reported with fallback.
func AsError(err error, fallback string) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	if errors.Is(err, ErrSessionNotFound) {
		return newError(CodeUploadNotFound, "Upload not found.", err)
	}
	return newError(fallback, err.Error(), err)
}
