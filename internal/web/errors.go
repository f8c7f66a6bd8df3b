package web

// errors.go provides unified error response handling for the web layer.
//
// It ensures all errors are:
//   - Logged with full technical details for debugging (server-side)
//   - Returned to clients as user-friendly messages with action suggestions
//
// The error flow:
//  1. Handler encounters an error
//  2. Calls respondError(w, r, err)
//  3. The error's classification decides the HTTP status and user message
//  4. Technical error + context is logged with request ID for correlation

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/kieranpgray/coinbag-sub006/internal/core"
)

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// respondError logs the technical error server-side and returns the
// classified, user-friendly rendering to the client.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, userMsg := describeError(err)

	slog.Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", userMsg.Code,
		"request_id", middleware.GetReqID(r.Context()),
	)

	writeJSON(w, status, ErrorResponse{
		Error:   userMsg.Message,
		Message: userMsg.Message,
		Action:  userMsg.Action,
		Code:    userMsg.Code,
	})
}

// describeError maps a pipeline or store error to an HTTP status and the
// user-facing message.
func describeError(err error) (int, core.UserMessage) {
	switch {
	case errors.Is(err, core.ErrBatchNotFound):
		return http.StatusNotFound, core.UserMessage{
			Message: "The batch no longer exists.",
			Action:  "It may have expired. Start a new import.",
			Code:    "BATCH_NOT_FOUND",
		}
	case errors.Is(err, core.ErrImportNotFound):
		return http.StatusNotFound, core.UserMessage{
			Message: "The import does not exist.",
			Code:    "IMPORT_NOT_FOUND",
		}
	case errors.Is(err, core.ErrEmptyBatch):
		return http.StatusBadRequest, core.UserMessage{
			Message: "No files were provided.",
			Action:  "Attach at least one statement file.",
			Code:    "EMPTY_BATCH",
		}
	}

	var ierr *core.ImportError
	if errors.As(err, &ierr) {
		msg := core.DescribeClass(ierr.Class)
		if ierr.Message != "" {
			msg.Message = ierr.Message
		}
		switch ierr.Class {
		case core.ClassValidation:
			return http.StatusBadRequest, msg
		case core.ClassDuplicateFile:
			return http.StatusConflict, msg
		}
		return http.StatusInternalServerError, msg
	}

	return http.StatusInternalServerError, core.UserMessage{
		Message: "Something went wrong.",
		Action:  "Try again. If it keeps failing, contact support.",
		Code:    "INTERNAL",
	}
}
