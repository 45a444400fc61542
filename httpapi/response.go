package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/vapvarun/fymodules"
)

// Reasons produced by the HTTP layer itself, alongside the fymodules kinds.
const (
	ReasonInvalidRequest  fymodules.Kind = "invalid_request"
	ReasonUnauthenticated fymodules.Kind = "unauthenticated"
)

// Response is the body of every module endpoint.
type Response struct {
	Success bool `json:"success"`

	// Failure fields.
	Reason   fymodules.Kind `json:"reason,omitempty"`
	Detail   string         `json:"detail,omitempty"`
	Blocking []string       `json:"blocking,omitempty"`

	// Warning is set when the operation succeeded but the module's own hook
	// failed.
	Warning *fymodules.ActivationError `json:"warning,omitempty"`

	Module   *fymodules.ModuleStatus  `json:"module,omitempty"`
	Modules  []fymodules.ModuleStatus `json:"modules,omitempty"`
	Settings *fymodules.Settings      `json:"settings,omitempty"`
	Nonce    string                   `json:"nonce,omitempty"`
}

// StatusFor maps a failure reason to its HTTP status code.
func StatusFor(reason fymodules.Kind) int {
	switch reason {
	case fymodules.KindNotFound:
		return http.StatusNotFound
	case fymodules.KindForbidden:
		return http.StatusForbidden
	case fymodules.KindDependency:
		return http.StatusConflict
	case fymodules.KindInvalidSettings:
		return http.StatusUnprocessableEntity
	case ReasonInvalidRequest:
		return http.StatusBadRequest
	case ReasonUnauthenticated:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeSuccess(w http.ResponseWriter, body Response) {
	body.Success = true
	writeJSON(w, http.StatusOK, body)
}

func writeFailure(w http.ResponseWriter, reason fymodules.Kind, detail string) {
	writeJSON(w, StatusFor(reason), Response{Reason: reason, Detail: detail})
}

// writeError translates an error returned by the Manager. Internal errors
// are logged and their detail is not exposed.
func writeError(w http.ResponseWriter, logger fymodules.Logger, err error) {
	kind := fymodules.KindOf(err)
	body := Response{Reason: kind, Detail: err.Error()}

	var depErr *fymodules.DependencyError
	if errors.As(err, &depErr) {
		body.Blocking = depErr.Blocking()
	}
	if kind == fymodules.KindInternal {
		logger.Error("Module request failed", "error", err)
		body.Detail = "internal error"
	}
	writeJSON(w, StatusFor(kind), body)
}
