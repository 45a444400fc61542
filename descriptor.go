package fymodules

import "slices"

// Category groups modules for presentation. It plays no part in dependency
// resolution.
type Category string

const (
	CategoryCore          Category = "core"
	CategoryDashboards    Category = "dashboards"
	CategoryTracking      Category = "tracking"
	CategoryIntegrations  Category = "integrations"
	CategorySecurity      Category = "security"
	CategoryAccessibility Category = "accessibility"
)

// Descriptor is the static declaration of a module.
type Descriptor struct {
	ID          string   `json:"id" yaml:"id"`
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Version     string   `json:"version,omitempty" yaml:"version,omitempty"`
	Category    Category `json:"category,omitempty" yaml:"category,omitempty"`

	// Dependencies lists module ids that must be enabled before this module
	// can be enabled.
	Dependencies []string `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`

	// DefaultSettings is the ordered set of settings with their defaults.
	DefaultSettings []Setting `json:"defaultSettings,omitempty" yaml:"defaultSettings,omitempty"`

	// Operator-facing flags; not enforced by the registry.
	SecuritySensitive      bool `json:"securitySensitive" yaml:"securitySensitive"`
	RequiresExternalPlugin bool `json:"requiresExternalPlugin" yaml:"requiresExternalPlugin"`
	HasAdminPage           bool `json:"hasAdminPage" yaml:"hasAdminPage"`
}

// DependsOn reports whether id is one of the descriptor's dependencies.
func (d Descriptor) DependsOn(id string) bool {
	return slices.Contains(d.Dependencies, id)
}

// DisplayName returns Name, falling back to ID.
func (d Descriptor) DisplayName() string {
	if d.Name == "" {
		return d.ID
	}
	return d.Name
}

// normalized returns a copy with duplicate and self dependencies removed.
func (d Descriptor) normalized() Descriptor {
	deps := make([]string, 0, len(d.Dependencies))
	for _, dep := range d.Dependencies {
		if dep == "" || dep == d.ID || slices.Contains(deps, dep) {
			continue
		}
		deps = append(deps, dep)
	}
	d.Dependencies = deps
	d.DefaultSettings = slices.Clone(d.DefaultSettings)
	return d
}
