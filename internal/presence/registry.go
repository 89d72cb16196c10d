// Package presence tracks which users currently hold a live connection per domain.
package presence

import (
	"slices"
	"sync"
)

// Registry is a concurrency-safe set of connected users per domain.
// It is process-local: each instance only knows its own connections.
type Registry struct {
	mu      sync.Mutex
	domains map[string]map[string]struct{}
	total   int

	onChange func(total int)
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{domains: make(map[string]map[string]struct{})}
}

// OnChange registers fn to be called with the new total after every change.
// fn runs with the registry lock held and must not call back into it.
func (r *Registry) OnChange(fn func(total int)) {
	r.mu.Lock()
	r.onChange = fn
	r.mu.Unlock()
}

// Connect marks userID as connected to domain. Connecting twice is a no-op.
func (r *Registry) Connect(domain, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	users, ok := r.domains[domain]
	if !ok {
		users = make(map[string]struct{})
		r.domains[domain] = users
	}
	if _, ok := users[userID]; ok {
		return
	}
	users[userID] = struct{}{}
	r.total++
	r.notify()
}

// Disconnect removes userID from domain and drops the domain once empty.
// Unknown pairs are ignored.
func (r *Registry) Disconnect(domain, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	users, ok := r.domains[domain]
	if !ok {
		return
	}
	if _, ok := users[userID]; !ok {
		return
	}
	delete(users, userID)
	if len(users) == 0 {
		delete(r.domains, domain)
	}
	r.total--
	r.notify()
}

// ActiveCount returns the number of connected users for domain.
func (r *Registry) ActiveCount(domain string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.domains[domain])
}

// IsActive reports whether userID is connected to domain.
func (r *Registry) IsActive(domain, userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.domains[domain][userID]
	return ok
}

// Users returns the connected users of domain, sorted.
func (r *Registry) Users(domain string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.domains[domain]))
	for u := range r.domains[domain] {
		out = append(out, u)
	}
	slices.Sort(out)
	return out
}

// Domains returns every domain with at least one connection, sorted.
func (r *Registry) Domains() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.domains))
	for d := range r.domains {
		out = append(out, d)
	}
	slices.Sort(out)
	return out
}

// Total returns the number of (domain, user) pairs across all domains.
func (r *Registry) Total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.total
}

func (r *Registry) notify() {
	if r.onChange != nil {
		r.onChange(r.total)
	}
}
