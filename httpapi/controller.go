// Package httpapi exposes the module lifecycle over HTTP.
//
// Every endpoint answers with the same envelope:
//
//	{"success": true, "warning": {...}, "module": {...}}
//	{"success": false, "reason": "dependency", "detail": "...", "blocking": ["dashboards"]}
//
// The actor is resolved once per request by middleware and passed to the
// Manager explicitly.
package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vapvarun/fymodules"
)

const maxBodyBytes = 1 << 20

// Controller translates requests into Manager calls.
type Controller struct {
	manager *fymodules.Manager
	nonces  NonceService
	logger  fymodules.Logger
}

// NewController creates a Controller. nonces may be nil when no nonce
// endpoint is served.
func NewController(manager *fymodules.Manager, nonces NonceService, logger fymodules.Logger) *Controller {
	if logger == nil {
		logger = fymodules.NopLogger()
	}
	return &Controller{manager: manager, nonces: nonces, logger: logger}
}

// Mount registers the module routes on r.
func (c *Controller) Mount(r chi.Router) {
	r.Get("/modules", c.list)
	r.Route("/modules/{id}", func(r chi.Router) {
		r.Get("/", c.get)
		r.Post("/toggle", c.toggle)
		r.Post("/retry", c.retry)
		r.Put("/settings", c.updateSettings)
		r.Post("/reset-settings", c.resetSettings)
	})
	if c.nonces != nil {
		r.Get("/nonce", c.nonce)
	}
}

type toggleRequest struct {
	Enabled *bool `json:"enabled"`
}

func (c *Controller) toggle(w http.ResponseWriter, r *http.Request) {
	actor, ok := c.actor(w, r)
	if !ok {
		return
	}
	var req toggleRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Enabled == nil {
		writeFailure(w, ReasonInvalidRequest, `field "enabled" is required`)
		return
	}

	id := chi.URLParam(r, "id")
	var (
		res fymodules.Result
		err error
	)
	if *req.Enabled {
		res, err = c.manager.EnableModule(r.Context(), id, actor)
	} else {
		res, err = c.manager.DisableModule(r.Context(), id, actor)
	}
	if err != nil {
		writeError(w, c.logger, err)
		return
	}
	c.writeResult(w, r, res, actor)
}

func (c *Controller) retry(w http.ResponseWriter, r *http.Request) {
	actor, ok := c.actor(w, r)
	if !ok {
		return
	}
	res, err := c.manager.RetryModule(r.Context(), chi.URLParam(r, "id"), actor)
	if err != nil {
		writeError(w, c.logger, err)
		return
	}
	c.writeResult(w, r, res, actor)
}

func (c *Controller) list(w http.ResponseWriter, r *http.Request) {
	actor, ok := c.actor(w, r)
	if !ok {
		return
	}
	modules, err := c.manager.ListModules(r.Context(), actor)
	if err != nil {
		writeError(w, c.logger, err)
		return
	}
	if modules == nil {
		modules = []fymodules.ModuleStatus{}
	}
	writeSuccess(w, Response{Modules: modules})
}

func (c *Controller) get(w http.ResponseWriter, r *http.Request) {
	actor, ok := c.actor(w, r)
	if !ok {
		return
	}
	st, err := c.manager.ModuleStatus(r.Context(), chi.URLParam(r, "id"), actor)
	if err != nil {
		writeError(w, c.logger, err)
		return
	}
	writeSuccess(w, Response{Module: &st})
}

func (c *Controller) updateSettings(w http.ResponseWriter, r *http.Request) {
	actor, ok := c.actor(w, r)
	if !ok {
		return
	}
	var values map[string]any
	if !decodeBody(w, r, &values) {
		return
	}
	settings, err := c.manager.UpdateSettings(r.Context(), chi.URLParam(r, "id"), actor, values)
	if err != nil {
		writeError(w, c.logger, err)
		return
	}
	writeSuccess(w, Response{Settings: &settings})
}

func (c *Controller) resetSettings(w http.ResponseWriter, r *http.Request) {
	actor, ok := c.actor(w, r)
	if !ok {
		return
	}
	settings, err := c.manager.ResetSettings(r.Context(), chi.URLParam(r, "id"), actor)
	if err != nil {
		writeError(w, c.logger, err)
		return
	}
	writeSuccess(w, Response{Settings: &settings})
}

func (c *Controller) nonce(w http.ResponseWriter, r *http.Request) {
	actor, ok := c.actor(w, r)
	if !ok {
		return
	}
	nonce, _, err := c.nonces.IssueNonce(actor.ID)
	if err != nil {
		writeError(w, c.logger, err)
		return
	}
	writeSuccess(w, Response{Nonce: nonce})
}

// writeResult answers a lifecycle call with the module's fresh status.
func (c *Controller) writeResult(w http.ResponseWriter, r *http.Request, res fymodules.Result, actor fymodules.Actor) {
	body := Response{Warning: res.Warning}
	st, err := c.manager.ModuleStatus(r.Context(), res.Module, actor)
	if err != nil {
		c.logger.Warn("Failed to load module status after change", "module", res.Module, "error", err)
	} else {
		body.Module = &st
	}
	writeSuccess(w, body)
}

func (c *Controller) actor(w http.ResponseWriter, r *http.Request) (fymodules.Actor, bool) {
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		writeFailure(w, ReasonUnauthenticated, "no actor resolved for request")
	}
	return actor, ok
}

func decodeBody(w http.ResponseWriter, r *http.Request, target any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(target); err != nil {
		writeFailure(w, ReasonInvalidRequest, fmt.Sprintf("invalid JSON body: %v", err))
		return false
	}
	return true
}
