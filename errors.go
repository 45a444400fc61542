package fymodules

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Registry and lifecycle errors
var (
	// Lookup and permission errors
	ErrNotFound  = errors.New("module not found")
	ErrForbidden = errors.New("actor is not permitted to manage module")

	// Dependency errors
	ErrDependency            = errors.New("module dependency constraint violated")
	ErrDependencyUnsatisfied = errors.New("module dependencies are not enabled")
	ErrCircularDependency    = errors.New("circular dependency detected")

	// Hook errors
	ErrActivation = errors.New("module activation failed")
	ErrHookPanic  = errors.New("module hook panicked")

	// Settings errors
	ErrInvalidSettings = errors.New("invalid module settings")

	// Collaborator errors
	ErrStore         = errors.New("settings store failure")
	ErrAuthorization = errors.New("authorization check failed")
)

// Kind classifies an error for the external response contract.
type Kind string

const (
	KindNotFound        Kind = "not_found"
	KindForbidden       Kind = "forbidden"
	KindDependency      Kind = "dependency"
	KindActivation      Kind = "activation"
	KindInvalidSettings Kind = "invalid_settings"
	KindInternal        Kind = "internal"
)

// KindOf maps an error returned by the Manager to its Kind.
// A nil error has no kind and returns the empty string.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrForbidden):
		return KindForbidden
	case errors.Is(err, ErrDependency):
		return KindDependency
	case errors.Is(err, ErrInvalidSettings):
		return KindInvalidSettings
	case errors.Is(err, ErrActivation):
		return KindActivation
	default:
		return KindInternal
	}
}

// Operation names the transition a DependencyError refused.
type Operation string

const (
	OpEnable  Operation = "enable"
	OpDisable Operation = "disable"
)

// DependencyError reports a refused enable or disable. For an enable, Missing
// lists the dependency ids that are not enabled (or not registered). For a
// disable, Dependents lists the enabled modules that still depend on Module.
type DependencyError struct {
	Module     string
	Op         Operation
	Missing    []string
	Dependents []string

	// DependentNames holds the display names of Dependents, in the same order.
	DependentNames []string
}

func (e *DependencyError) Error() string {
	if e.Op == OpDisable {
		return fmt.Sprintf("cannot disable %s: required by %s", e.Module, strings.Join(e.DependentNames, ", "))
	}
	return fmt.Sprintf("cannot enable %s: missing dependencies %s", e.Module, strings.Join(e.Missing, ", "))
}

// Is lets errors.Is(err, ErrDependency) match.
func (e *DependencyError) Is(target error) bool {
	return target == ErrDependency
}

// Blocking returns the ids that caused the refusal.
func (e *DependencyError) Blocking() []string {
	if e.Op == OpDisable {
		return e.Dependents
	}
	return e.Missing
}

// Hook phases recorded on an ActivationError.
const (
	PhaseActivate = "activate"
	PhaseInit     = "init"
	PhaseBoot     = "boot"
)

// ActivationError records a failure of a module's own activation or
// initialization. It is non-fatal: the module stays enabled and is flagged
// for operator attention.
type ActivationError struct {
	Module  string    `json:"module"`
	Phase   string    `json:"phase"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`

	err error
}

func newActivationError(module, phase string, err error) *ActivationError {
	return &ActivationError{
		Module:  module,
		Phase:   phase,
		Message: err.Error(),
		At:      time.Now().UTC(),
		err:     err,
	}
}

func (e *ActivationError) Error() string {
	phase := e.Phase
	if phase == "" {
		phase = "load"
	}
	return fmt.Sprintf("module %s %s failed: %s", e.Module, phase, e.Message)
}

// Unwrap returns the hook's original error when it is still known. Errors
// restored from the store only carry the message.
func (e *ActivationError) Unwrap() error {
	return e.err
}

// Is lets errors.Is(err, ErrActivation) match.
func (e *ActivationError) Is(target error) bool {
	return target == ErrActivation
}
