package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/Ngumi22/zami-web-sub001/internal/platform/requestctx"
)

const (
	maxCodeLength    = 80
	maxMessageLength = 512
	maxIDLength      = 80
)

// Error is a transport-level failure raised before a request reaches the order services, such as
// authentication, routing, or replay conflicts. Domain outcomes use the result envelope instead.
type Error struct {
	Code    string
	Message string
	Status  int
}

type errorBody struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Status    int    `json:"status"`
	RequestID string `json:"request_id,omitempty"`
	TraceID   string `json:"trace_id,omitempty"`
}

// NewError builds an Error. A zero status means 500.
func NewError(code, message string, status int) Error {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return Error{
		Code:    singleLine(code, maxCodeLength),
		Message: singleLine(message, maxMessageLength),
		Status:  status,
	}
}

// WriteError renders err as JSON, tagging it with the chi request id and the trace id found on ctx.
func WriteError(ctx context.Context, w http.ResponseWriter, err Error) {
	status := err.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}
	body := errorBody{
		Error:     err.Code,
		Message:   err.Message,
		Status:    status,
		RequestID: singleLine(middleware.GetReqID(ctx), maxIDLength),
		TraceID:   singleLine(requestctx.TraceID(ctx), maxIDLength),
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func singleLine(value string, limit int) string {
	value = strings.TrimSpace(strings.NewReplacer("\r", " ", "\n", " ").Replace(value))
	if len(value) > limit {
		value = value[:limit]
	}
	return value
}
