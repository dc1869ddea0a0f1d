// Package routing compiles declared routes into an exact table and an
// ordered pattern table, and resolves requests against them.
package routing

import (
	"regexp"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/toyz/loom/internal/errors"
)

// Kind tells exact entries from pattern entries
type Kind int

const (
	ExactRoute Kind = iota
	PatternRoute
)

// String returns the kind name
func (k Kind) String() string {
	if k == PatternRoute {
		return "pattern"
	}
	return "exact"
}

// Spec is the input to Register
type Spec struct {
	Verb     string
	Template string // full path template, controller prefix included
	Handler  string // human readable handler reference, e.g. *blog.PostController.Get
	Target   any    // opaque invocation target handed back on match
}

// Entry is a compiled route
type Entry struct {
	Kind     Kind
	Verb     string
	Key      string // verb + template
	Handler  string
	Target   any
	Template Template
	matcher  *regexp.Regexp
}

// Match is the outcome of a successful lookup
type Match struct {
	Entry  *Entry
	Values []string // path variable values, left to right
}

// Registry holds the exact and pattern tables
type Registry struct {
	mu       sync.RWMutex
	exact    map[string]*Entry
	order    []*Entry // exact entries in registration order, for listing
	patterns []*Entry
	frozen   bool
	lookups  *cache.Cache
}

// NewRegistry creates an empty route registry
func NewRegistry() *Registry {
	return &Registry{
		exact: make(map[string]*Entry),
	}
}

// EnableLookupCache memoizes pattern-scan outcomes per request key.
// A ttl of zero or less leaves the cache disabled.
func (r *Registry) EnableLookupCache(ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lookups = cache.New(ttl, 2*ttl)
}

// Register compiles spec into the exact or pattern table
func (r *Registry) Register(spec Spec) (*Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return nil, errors.NewRegistrationClosedError("route", spec.Verb+" "+spec.Template)
	}

	template, err := ParseTemplate(spec.Template)
	if err != nil {
		return nil, errors.Wrapf(errors.RegistrationErrorCode, err, "cannot register route for %s", spec.Handler)
	}

	entry := &Entry{
		Verb:     spec.Verb,
		Key:      spec.Verb + spec.Template,
		Handler:  spec.Handler,
		Target:   spec.Target,
		Template: template,
	}

	if !template.IsPattern() {
		if existing, ok := r.exact[entry.Key]; ok {
			return nil, errors.NewAmbiguousMappingError(entry.Key, spec.Handler, existing.Handler)
		}
		entry.Kind = ExactRoute
		r.exact[entry.Key] = entry
		r.order = append(r.order, entry)
		return entry, nil
	}

	matcher, err := template.Compile(spec.Verb)
	if err != nil {
		return nil, errors.Wrapf(errors.RegistrationErrorCode, err, "cannot compile route %s for %s", entry.Key, spec.Handler)
	}
	entry.Kind = PatternRoute
	entry.matcher = matcher
	r.patterns = append(r.patterns, entry)
	return entry, nil
}

// Freeze closes the registry; the tables are read-only afterwards
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Frozen reports whether Freeze was called
func (r *Registry) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}

// noMatch is cached for keys no pattern accepts
var noMatch = &Entry{}

// Lookup resolves a request: exact table first, then the first pattern
// in registration order whose matcher accepts the request key
func (r *Registry) Lookup(verb, path, rawQuery string) (*Match, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	bare := verb + path
	full := bare
	if rawQuery != "" {
		full = bare + "?" + rawQuery
		if entry, ok := r.exact[full]; ok {
			return &Match{Entry: entry}, true
		}
	}
	if entry, ok := r.exact[bare]; ok {
		return &Match{Entry: entry}, true
	}

	entry := r.scan(bare, full)
	if entry == nil {
		return nil, false
	}
	return &Match{Entry: entry, Values: entry.Template.Extract(path, rawQuery)}, true
}

func (r *Registry) scan(bare, full string) *Entry {
	if r.lookups != nil {
		if cached, ok := r.lookups.Get(full); ok {
			entry := cached.(*Entry)
			if entry == noMatch {
				return nil
			}
			return entry
		}
	}

	var found *Entry
	for _, entry := range r.patterns {
		key := bare
		if entry.Template.Legacy {
			key = full
		}
		if entry.matcher.MatchString(key) {
			found = entry
			break
		}
	}

	if r.lookups != nil {
		if found == nil {
			r.lookups.SetDefault(full, noMatch)
		} else {
			r.lookups.SetDefault(full, found)
		}
	}
	return found
}

// Entries lists exact entries then pattern entries, each in registration order
func (r *Registry) Entries() []*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Entry, 0, len(r.order)+len(r.patterns))
	out = append(out, r.order...)
	out = append(out, r.patterns...)
	return out
}

// Len returns the number of registered entries
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order) + len(r.patterns)
}
