package operations

import (
	"fmt"
	"sync"
)

// Registry holds the pipeline steps
type Registry struct {
	mu    sync.RWMutex
	steps map[string]Step
	order []string // registration order, used to break ties
}

// NewRegistry creates an empty step registry
func NewRegistry() *Registry {
	return &Registry{
		steps: make(map[string]Step),
		order: make([]string, 0),
	}
}

// Register adds a step to the registry
func (r *Registry) Register(step Step) error {
	if step == nil {
		return fmt.Errorf("cannot register nil step")
	}

	id := step.ID()
	if id == "" {
		return fmt.Errorf("step ID cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.steps[id]; exists {
		return fmt.Errorf("step with ID %s already registered", id)
	}

	r.steps[id] = step
	r.order = append(r.order, id)
	return nil
}

// Get retrieves a step by ID
func (r *Registry) Get(id string) (Step, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	step, exists := r.steps[id]
	if !exists {
		return nil, newNotFoundError(id)
	}
	return step, nil
}

// Has checks if a step is registered
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.steps[id]
	return exists
}

// List returns all registered steps in registration order
func (r *Registry) List() []Step {
	r.mu.RLock()
	defer r.mu.RUnlock()

	steps := make([]Step, 0, len(r.order))
	for _, id := range r.order {
		steps = append(steps, r.steps[id])
	}
	return steps
}

// ListIDs returns all registered step IDs in registration order
func (r *Registry) ListIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, len(r.order))
	copy(ids, r.order)
	return ids
}

// Count returns the number of registered steps
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.steps)
}

// GetDependencyOrder returns every step ordered by dependencies
func (r *Registry) GetDependencyOrder() ([]Step, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.orderLocked(r.order)
}

// Plan returns the steps named by ids in dependency order. Dependencies
// that are not named are not added; the caller runs exactly what it asked
// for. An empty ids selects every step.
func (r *Registry) Plan(ids []string) ([]Step, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(ids) == 0 {
		return r.orderLocked(r.order)
	}
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		if _, ok := r.steps[id]; !ok {
			return nil, newNotFoundError(id)
		}
		want[id] = true
	}
	ordered, err := r.orderLocked(r.order)
	if err != nil {
		return nil, err
	}
	plan := make([]Step, 0, len(want))
	for _, s := range ordered {
		if want[s.ID()] {
			plan = append(plan, s)
		}
	}
	return plan, nil
}

// orderLocked sorts steps topologically, always taking the ready step
// registered first.
func (r *Registry) orderLocked(order []string) ([]Step, error) {
	dependents := make(map[string][]string)
	inDegree := make(map[string]int)
	rank := make(map[string]int, len(order))
	for i, id := range order {
		inDegree[id] = 0
		rank[id] = i
	}

	for _, id := range order {
		for _, dep := range r.steps[id].GetDependencies() {
			if _, exists := r.steps[dep]; !exists {
				return nil, fmt.Errorf("step %s depends on non-existent step %s", id, dep)
			}
			dependents[dep] = append(dependents[dep], id)
			inDegree[id]++
		}
	}

	ready := make([]string, 0)
	for _, id := range order {
		if inDegree[id] == 0 {
			ready = append(ready, id)
		}
	}

	ordered := make([]Step, 0, len(order))
	for len(ready) > 0 {
		next := 0
		for i := range ready {
			if rank[ready[i]] < rank[ready[next]] {
				next = i
			}
		}
		current := ready[next]
		ready = append(ready[:next], ready[next+1:]...)
		ordered = append(ordered, r.steps[current])

		for _, dependent := range dependents[current] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				ready = append(ready, dependent)
			}
		}
	}

	if len(ordered) != len(order) {
		return nil, fmt.Errorf("dependency cycle detected")
	}
	return ordered, nil
}

// ValidateDependencies checks that every dependency exists and that the
// graph has no cycle
func (r *Registry) ValidateDependencies() error {
	_, err := r.GetDependencyOrder()
	return err
}

// GetDependents returns the steps that depend directly on stepID
func (r *Registry) GetDependents(stepID string) []Step {
	r.mu.RLock()
	defer r.mu.RUnlock()

	dependents := make([]Step, 0)
	for _, id := range r.order {
		for _, dep := range r.steps[id].GetDependencies() {
			if dep == stepID {
				dependents = append(dependents, r.steps[id])
				break
			}
		}
	}
	return dependents
}
