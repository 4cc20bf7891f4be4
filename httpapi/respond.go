package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/goliatone/go-credentials/activity"
	"github.com/goliatone/go-credentials/command"
	"github.com/goliatone/go-credentials/pkg/types"
	goerrors "github.com/goliatone/go-errors"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: message}})
}

// respondError maps service errors onto HTTP statuses. Credential failures
// are always a bare 401.
func (h *handlers) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case types.IsUnauthorized(err):
		writeError(w, http.StatusUnauthorized, types.TextCodeUnauthorized, "unauthorized")
		return
	case isValidation(err):
		writeError(w, http.StatusBadRequest, "VALIDATION", err.Error())
		return
	}

	if status, ok := statusFor(err); ok {
		code := "ERROR"
		var rich *goerrors.Error
		if goerrors.As(err, &rich) && rich.TextCode != "" {
			code = rich.TextCode
		}
		writeError(w, status, code, err.Error())
		return
	}

	h.logger.Error("httpapi: request failed", err, "path", r.URL.Path)
	writeError(w, http.StatusInternalServerError, "INTERNAL", "internal error")
}

func statusFor(err error) (int, bool) {
	switch {
	case errors.Is(err, types.ErrDuplicateAccount):
		return http.StatusNotAcceptable, true
	case errors.Is(err, types.ErrSignupDisabled):
		return http.StatusForbidden, true
	default:
		return 0, false
	}
}

func isValidation(err error) bool {
	for _, target := range []error{
		command.ErrIdentifierRequired,
		command.ErrPasswordRequired,
		command.ErrEmailRequired,
		command.ErrCredentialRequired,
		command.ErrRefreshTokenRequired,
		activity.ErrInvalidCursor,
		errBadRequestBody,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
