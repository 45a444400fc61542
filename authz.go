package fymodules

import (
	"context"
	"slices"
)

// Capabilities checked by CapabilityAuthorizer.
const (
	CapabilityManageModules  = "manage_modules"
	CapabilityManageSecurity = "manage_security_modules"
)

// Actor is the identity a request acts as. It is resolved once at the request
// boundary and passed explicitly to every Manager call.
type Actor struct {
	ID           string   `json:"id"`
	Name         string   `json:"name,omitempty"`
	Roles        []string `json:"roles,omitempty"`
	Capabilities []string `json:"capabilities,omitempty"`
}

// HasCapability reports whether the actor was granted capability directly.
func (a Actor) HasCapability(capability string) bool {
	return slices.Contains(a.Capabilities, capability)
}

// HasRole reports whether the actor holds role.
func (a Actor) HasRole(role string) bool {
	return slices.Contains(a.Roles, role)
}

// Authorizer decides whether an actor may manage a module.
type Authorizer interface {
	CanManage(ctx context.Context, actor Actor, moduleID string) (bool, error)
}

// AuthorizerFunc adapts a function to Authorizer.
type AuthorizerFunc func(ctx context.Context, actor Actor, moduleID string) (bool, error)

func (f AuthorizerFunc) CanManage(ctx context.Context, actor Actor, moduleID string) (bool, error) {
	return f(ctx, actor, moduleID)
}

// AllowAll permits every actor. Use it for trusted local tooling only.
var AllowAll Authorizer = AuthorizerFunc(func(context.Context, Actor, string) (bool, error) {
	return true, nil
})

// CapabilityAuthorizer grants management based on capabilities, either held
// directly by the actor or granted through its roles.
type CapabilityAuthorizer struct {
	// Default is the capability required for modules without an override.
	// Empty means CapabilityManageModules.
	Default string

	// Required overrides the capability per module id.
	Required map[string]string

	// RoleCapabilities maps role names to the capabilities they grant.
	RoleCapabilities map[string][]string
}

// NewCapabilityAuthorizer builds an authorizer that additionally requires
// CapabilityManageSecurity for every security-sensitive descriptor.
func NewCapabilityAuthorizer(descriptors []Descriptor, roles map[string][]string) *CapabilityAuthorizer {
	a := &CapabilityAuthorizer{
		Default:          CapabilityManageModules,
		Required:         make(map[string]string),
		RoleCapabilities: roles,
	}
	for _, d := range descriptors {
		if d.SecuritySensitive {
			a.Required[d.ID] = CapabilityManageSecurity
		}
	}
	return a
}

func (a *CapabilityAuthorizer) CanManage(_ context.Context, actor Actor, moduleID string) (bool, error) {
	required := a.Default
	if required == "" {
		required = CapabilityManageModules
	}
	if c, ok := a.Required[moduleID]; ok && c != "" {
		required = c
	}

	if actor.HasCapability(required) {
		return true, nil
	}
	for _, role := range actor.Roles {
		if slices.Contains(a.RoleCapabilities[role], required) {
			return true, nil
		}
	}
	return false, nil
}
