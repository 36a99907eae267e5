package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/Ngumi22/zami-web-sub001/internal/platform/auth"
	"github.com/Ngumi22/zami-web-sub001/internal/platform/requestctx"
	"github.com/Ngumi22/zami-web-sub001/internal/services"
)

const maxRequestBody = 64 * 1024

var errRequestBody = errors.New("invalid request body")

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// decodeJSON reads a single JSON document into dst, rejecting unknown fields and oversized bodies.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	if r.Body == nil {
		return fmt.Errorf("%w: body is required", errRequestBody)
	}
	limited := http.MaxBytesReader(w, r.Body, maxRequestBody)
	defer limited.Close()

	decoder := json.NewDecoder(limited)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return fmt.Errorf("%w: body exceeds %d bytes", errRequestBody, maxErr.Limit)
		case errors.Is(err, io.EOF):
			return fmt.Errorf("%w: body is required", errRequestBody)
		default:
			return fmt.Errorf("%w: %v", errRequestBody, err)
		}
	}
	if decoder.More() {
		return fmt.Errorf("%w: unexpected trailing data", errRequestBody)
	}
	return nil
}

// writeBadRequest answers a malformed body with the result envelope.
func writeBadRequest(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, services.ActionResult[struct{}]{
		Message: "The request body could not be read.",
		Errors:  services.ValidationErrors{"body": {err.Error()}},
	})
}

// writeResult renders the outcome of a service call as an ActionResult envelope. Unexpected errors
// are logged in full and answered with the generic message.
func writeResult[T any](w http.ResponseWriter, r *http.Request, successStatus int, message string, data T, err error) {
	ctx := r.Context()
	result := services.ToActionResult(message, data, err)
	if err == nil {
		writeJSON(w, successStatus, result)
		return
	}

	kind := services.ClassifyError(err)
	logger := requestctx.Logger(ctx).With(zap.String("error_kind", string(kind)))
	if actor := auth.ActorID(ctx); actor != "" {
		logger = logger.With(zap.String("actor", actor))
	}
	switch kind {
	case services.ErrorKindUnexpected:
		logger.Error("request failed", zap.Error(err))
	case services.ErrorKindRateLimited, services.ErrorKindBlocked:
		logger.Debug("request throttled", zap.Error(err))
	default:
		logger.Info("request rejected", zap.Error(err))
	}

	var limited *services.RateLimitError
	if errors.As(err, &limited) && limited.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(limited.RetryAfter.Seconds()))))
	}
	writeJSON(w, statusForKind(kind), result)
}

func statusForKind(kind services.ErrorKind) int {
	switch kind {
	case services.ErrorKindValidation:
		return http.StatusBadRequest
	case services.ErrorKindNotFound:
		return http.StatusNotFound
	case services.ErrorKindInvalidTransition, services.ErrorKindDuplicate, services.ErrorKindConflict:
		return http.StatusConflict
	case services.ErrorKindBusinessRule:
		return http.StatusUnprocessableEntity
	case services.ErrorKindRateLimited:
		return http.StatusTooManyRequests
	case services.ErrorKindBlocked:
		return http.StatusForbidden
	case services.ErrorKindUnauthenticated:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func actorFromContext(ctx context.Context) services.Actor {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok {
		return services.Actor{}
	}
	return services.Actor{ID: identity.UID, Staff: identity.IsStaff()}
}
