package httpapi

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/zj591227045/wxauto-mgt/internal/errs"
)

// ErrorResponse is the uniform JSON error body.
type ErrorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), ErrorResponse{Error: err.Error()})
}

func readJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// statusFor maps the error taxonomy of internal/errs to an HTTP status,
// per spec §7's error-model-to-HTTP-status mapping.
func statusFor(err error) int {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return http.StatusNotFound
	case errors.Is(err, errs.ErrInstanceNotFound),
		errors.Is(err, errs.ErrListenerNotFound),
		errors.Is(err, errs.ErrRuleNotFound),
		errors.Is(err, errs.ErrPlatformNotFound),
		errors.Is(err, errs.ErrMessageNotFound):
		return http.StatusNotFound
	case errors.Is(err, errs.ErrInstanceExists):
		return http.StatusConflict
	case errors.Is(err, errs.ErrInstanceDisabled), errors.Is(err, errs.ErrPlatformDisabled):
		return http.StatusConflict
	case errors.Is(err, errs.ErrAtCapacity):
		return http.StatusServiceUnavailable
	}

	var classified *errs.Classified
	if errors.As(err, &classified) {
		switch classified.Kind {
		case errs.KindInvalidRequest, errs.KindConfigError:
			return http.StatusBadRequest
		case errs.KindNotInitialized:
			return http.StatusUnauthorized
		case errs.KindUnavailable, errs.KindAgentFailure, errs.KindPlatformError:
			return http.StatusServiceUnavailable
		case errs.KindStoreError:
			return http.StatusInternalServerError
		case errs.KindCancelled:
			return http.StatusRequestTimeout
		}
	}
	return http.StatusInternalServerError
}
