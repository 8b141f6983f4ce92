package web

// errors.go turns handler errors into JSON responses.
//
// Every error is logged server-side with the request ID and mapped through
// core.MapError so the client receives a coded message with a suggested
// action instead of the technical text.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/worksplit/internal/core"
)

// errBadRequest marks malformed request input. It maps to 400 with the
// client-visible message taken from the wrapped text.
var errBadRequest = errors.New("bad request")

// ErrorResponse represents the JSON structure for API error responses.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// respondError logs err and writes the mapped JSON response. A zero status
// uses core.HTTPStatus.
func respondError(w http.ResponseWriter, r *http.Request, err error, status int) {
	msg := core.MapError(err)
	if status == 0 {
		status = core.HTTPStatus(err)
	}
	if errors.Is(err, errBadRequest) {
		status = http.StatusBadRequest
		msg = core.UserMessage{
			Message: err.Error(),
			Action:  "Check the request and try again",
			Code:    "REQ001",
		}
	}

	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	slog.Log(r.Context(), level, "request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", msg.Code,
		"request_id", middleware.GetReqID(r.Context()),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	})
}

// logRequestError logs a failure that can no longer change the response.
func logRequestError(r *http.Request, msg string, err error) {
	slog.Error(msg,
		"path", r.URL.Path,
		"error", err,
		"request_id", middleware.GetReqID(r.Context()),
	)
}
