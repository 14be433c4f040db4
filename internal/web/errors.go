package web

// errors.go provides unified error response handling for the web layer.
//
// The error flow:
//  1. Handler encounters an error
//  2. Calls respondError(w, r, err)
//  3. Error is mapped via core.MapError to a user-friendly message and code
//  4. The code picks the HTTP status
//  5. Technical error is logged with the request ID, the user message is
//     returned as JSON

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/JonMunkholm/golab-ledger/internal/core"
	"github.com/JonMunkholm/golab-ledger/internal/logging"
)

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// badRequest marks a client input error that core.MapError does not know.
type badRequest struct {
	msg string
}

func (e badRequest) Error() string { return e.msg }

// respondError logs err and writes the mapped user message.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	userMsg := core.MapError(err)
	status := statusFor(err, userMsg.Code)

	if br, ok := err.(badRequest); ok {
		userMsg = core.UserMessage{Message: br.msg, Action: "Check the request parameters", Code: "REQ000"}
	}

	logger := logging.FromContext(r.Context())
	logAttrs := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", userMsg.Code,
	}
	if status >= http.StatusInternalServerError {
		logger.Error("request error", logAttrs...)
	} else {
		logger.Warn("request error", logAttrs...)
	}

	respondErrorJSON(w, userMsg, status)
}

// statusFor maps an error code to an HTTP status.
func statusFor(err error, code string) int {
	if _, ok := err.(badRequest); ok {
		return http.StatusBadRequest
	}
	switch code {
	case "LAY001", "ITM001":
		return http.StatusNotFound
	case "IMP001", "IMP002":
		return http.StatusUnprocessableEntity
	case "IMP003", "IMP004", "IMP006", "IMP007", "DB001":
		return http.StatusConflict
	case "IMP005":
		return http.StatusBadRequest
	case "FILE001":
		return http.StatusRequestEntityTooLarge
	case "REQ001":
		return 499
	case "REQ002", "DB006":
		return http.StatusGatewayTimeout
	}
	if strings.HasPrefix(code, "FILE") {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// respondErrorJSON writes a JSON error response.
func respondErrorJSON(w http.ResponseWriter, msg core.UserMessage, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	})
}
