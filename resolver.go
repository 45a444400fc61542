package fymodules

import (
	"fmt"
	"slices"
)

// Graph is the read-only view of the registry the Resolver works on.
// *Registry implements it.
type Graph interface {
	All() []Descriptor
	Get(id string) (Descriptor, error)
	IsEnabled(id string) bool
}

// Verdict is the outcome of a transition check.
type Verdict struct {
	Allowed bool

	// Missing lists dependencies that block an enable.
	Missing []string

	// Dependents lists enabled modules that block a disable, with their
	// display names in DependentNames.
	Dependents     []string
	DependentNames []string
}

// Err converts a blocked verdict into a *DependencyError. It returns nil for
// an allowed verdict.
func (v Verdict) Err(id string, op Operation) error {
	if v.Allowed {
		return nil
	}
	return &DependencyError{
		Module:         id,
		Op:             op,
		Missing:        v.Missing,
		Dependents:     v.Dependents,
		DependentNames: v.DependentNames,
	}
}

// Resolver answers whether an enable or disable is legal, without side
// effects. Results are a pure function of the graph's current snapshot.
type Resolver struct {
	graph Graph
}

// NewResolver creates a resolver over g.
func NewResolver(g Graph) *Resolver {
	return &Resolver{graph: g}
}

// CanEnable allows id only when every dependency is registered and enabled.
// Unknown dependencies are reported as missing rather than failing.
func (r *Resolver) CanEnable(id string) (Verdict, error) {
	d, err := r.graph.Get(id)
	if err != nil {
		return Verdict{}, err
	}

	var missing []string
	for _, dep := range d.Dependencies {
		if !r.graph.IsEnabled(dep) {
			missing = append(missing, dep)
		}
	}
	return Verdict{Allowed: len(missing) == 0, Missing: missing}, nil
}

// DependentsOf returns the registered modules that list id as a direct
// dependency, in registration order.
func (r *Resolver) DependentsOf(id string) []string {
	var out []string
	for _, d := range r.graph.All() {
		if d.DependsOn(id) {
			out = append(out, d.ID)
		}
	}
	return out
}

// CanDisable allows id only when none of its direct dependents is enabled.
//
// Only direct dependents are checked. As long as every enabled module had
// its dependencies enabled when it was enabled, an enabled module that
// reaches id through an intermediate module keeps that intermediate module
// enabled, and the intermediate module is itself a direct dependent of id.
func (r *Resolver) CanDisable(id string) (Verdict, error) {
	if _, err := r.graph.Get(id); err != nil {
		return Verdict{}, err
	}

	v := Verdict{Allowed: true}
	for _, dep := range r.DependentsOf(id) {
		if !r.graph.IsEnabled(dep) {
			continue
		}
		d, err := r.graph.Get(dep)
		if err != nil {
			return Verdict{}, err
		}
		v.Allowed = false
		v.Dependents = append(v.Dependents, dep)
		v.DependentNames = append(v.DependentNames, d.DisplayName())
	}
	return v, nil
}

// TransitiveDependents returns every module that reaches id through a
// dependency chain, nearest first.
func (r *Resolver) TransitiveDependents(id string) []string {
	seen := map[string]bool{id: true}
	var out []string
	queue := []string{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, dep := range r.DependentsOf(cur) {
			if seen[dep] {
				continue
			}
			seen[dep] = true
			out = append(out, dep)
			queue = append(queue, dep)
		}
	}
	return out
}

// ActivationOrder sorts ids so that every module comes after the modules it
// depends on. Dependencies outside ids are ignored for ordering. Ties keep
// registration order.
func (r *Resolver) ActivationOrder(ids []string) ([]string, error) {
	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}

	graph := make(map[string][]string, len(ids))
	var nodes []string
	for _, d := range r.graph.All() {
		if !wanted[d.ID] {
			continue
		}
		nodes = append(nodes, d.ID)
		for _, dep := range d.Dependencies {
			if wanted[dep] {
				graph[d.ID] = append(graph[d.ID], dep)
			}
		}
	}

	var result []string
	visited := make(map[string]bool)
	temp := make(map[string]bool)

	var visit func(node string, path []string) error
	visit = func(node string, path []string) error {
		if temp[node] {
			cycle := append(slices.Clone(path[slices.Index(path, node):]), node)
			return fmt.Errorf("%w: %v", ErrCircularDependency, cycle)
		}
		if visited[node] {
			return nil
		}
		temp[node] = true
		path = append(path, node)

		for _, dep := range graph[node] {
			if err := visit(dep, path); err != nil {
				return err
			}
		}

		visited[node] = true
		temp[node] = false
		result = append(result, node)
		return nil
	}

	for _, node := range nodes {
		if !visited[node] {
			if err := visit(node, nil); err != nil {
				return nil, err
			}
		}
	}
	return result, nil
}
