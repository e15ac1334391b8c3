// Package family provides the household profile registry for Foyer.
//
// Every request in the system is attributed to exactly one member of a
// closed, configured set of users. The registry answers who exists, who is
// an admin, which model a user's requests prefer, and what vocabulary the
// transcript corrector should know about. The set is fixed at startup; there
// is no runtime user management.
package family

import (
	"fmt"
	"slices"
	"strings"

	"github.com/antzucaro/matchr"
)

// sharedID is reserved for the household-wide memory collection. It is never
// a valid profile ID.
const sharedID = "shared"

// Role describes a profile's authority level.
type Role string

const (
	// RoleAdmin may review corrections and delete other users' memories.
	RoleAdmin Role = "admin"

	// RoleUser is a regular household member.
	RoleUser Role = "user"
)

// IsValid reports whether r is a recognised role.
func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleUser:
		return true
	}
	return false
}

// ModelPreference pins a profile's requests to one model tier regardless of
// message content.
type ModelPreference string

const (
	// PreferNone lets the classifier decide per message.
	PreferNone ModelPreference = "none"

	// PreferFast forces the small low-latency model.
	PreferFast ModelPreference = "fast"

	// PreferFull forces the large model.
	PreferFull ModelPreference = "full"
)

// IsValid reports whether p is a recognised model preference.
func (p ModelPreference) IsValid() bool {
	switch p {
	case PreferNone, PreferFast, PreferFull:
		return true
	}
	return false
}

// Profile describes one household member.
type Profile struct {
	// ID is the stable identifier used across all services (dad, mom, ...).
	ID string

	// Role is the profile's authority level.
	Role Role

	// DisplayName is the spoken/displayed name. Optional.
	DisplayName string

	// Aliases are alternative spoken names (nicknames) used by the
	// transcript corrector. Optional.
	Aliases []string

	// ModelPreference pins this user's chat requests to a model tier.
	ModelPreference ModelPreference

	// SystemPrompt overrides the default system prompt for this user's
	// chats. Optional.
	SystemPrompt string
}

// Registry is the immutable set of household profiles. It is safe for
// concurrent use after construction.
type Registry struct {
	order     []string
	profiles  map[string]Profile
	hierarchy []string
}

// New builds a Registry from profiles and the ambiguity fallback hierarchy.
//
// Validation rules: at least one profile, IDs unique, non-empty and never
// the reserved shared ID, roles and preferences recognised, at least one
// admin, and every hierarchy entry a known profile ID. The hierarchy is
// ordered most- to least-restricted; when speaker identification is torn
// between several candidates it picks the earliest hierarchy entry among
// them.
func New(profiles []Profile, hierarchy []string) (*Registry, error) {
	if len(profiles) == 0 {
		return nil, fmt.Errorf("family: at least one profile is required")
	}

	r := &Registry{
		order:    make([]string, 0, len(profiles)),
		profiles: make(map[string]Profile, len(profiles)),
	}

	admins := 0
	for _, p := range profiles {
		if p.ID == "" {
			return nil, fmt.Errorf("family: profile with empty id")
		}
		if p.ID == sharedID {
			return nil, fmt.Errorf("family: profile id %q is reserved for the shared memory collection", sharedID)
		}
		if _, dup := r.profiles[p.ID]; dup {
			return nil, fmt.Errorf("family: duplicate profile id %q", p.ID)
		}
		if p.Role == "" {
			p.Role = RoleUser
		}
		if !p.Role.IsValid() {
			return nil, fmt.Errorf("family: profile %q has invalid role %q", p.ID, p.Role)
		}
		if p.ModelPreference == "" {
			p.ModelPreference = PreferNone
		}
		if !p.ModelPreference.IsValid() {
			return nil, fmt.Errorf("family: profile %q has invalid model preference %q", p.ID, p.ModelPreference)
		}
		if p.Role == RoleAdmin {
			admins++
		}
		r.order = append(r.order, p.ID)
		r.profiles[p.ID] = p
	}
	if admins == 0 {
		return nil, fmt.Errorf("family: at least one admin profile is required")
	}

	if len(hierarchy) == 0 {
		hierarchy = defaultHierarchy(r.order)
	}
	for _, id := range hierarchy {
		if _, ok := r.profiles[id]; !ok {
			return nil, fmt.Errorf("family: fallback hierarchy references unknown profile %q", id)
		}
	}
	r.hierarchy = slices.Clone(hierarchy)

	return r, nil
}

// Default returns the reference four-member household: dad and mom as
// admins, teen and child as users, hierarchy child, teen, mom, dad.
func Default() *Registry {
	r, err := New([]Profile{
		{ID: "dad", Role: RoleAdmin},
		{ID: "mom", Role: RoleAdmin},
		{ID: "teen", Role: RoleUser},
		{ID: "child", Role: RoleUser},
	}, []string{"child", "teen", "mom", "dad"})
	if err != nil {
		panic(err) // static input, cannot fail
	}
	return r
}

// Get returns the profile for id and whether it exists.
func (r *Registry) Get(id string) (Profile, bool) {
	p, ok := r.profiles[id]
	return p, ok
}

// IsAdmin reports whether id names an admin profile. Unknown IDs are never
// admins.
func (r *Registry) IsAdmin(id string) bool {
	p, ok := r.profiles[id]
	return ok && p.Role == RoleAdmin
}

// UserIDs returns the profile IDs in configuration order.
func (r *Registry) UserIDs() []string {
	return slices.Clone(r.order)
}

// Profiles returns all profiles in configuration order.
func (r *Registry) Profiles() []Profile {
	ps := make([]Profile, 0, len(r.order))
	for _, id := range r.order {
		ps = append(ps, r.profiles[id])
	}
	return ps
}

// FallbackHierarchy returns the ambiguity hierarchy, most restricted first.
func (r *Registry) FallbackHierarchy() []string {
	return slices.Clone(r.hierarchy)
}

// Vocabulary returns the distinct display names and aliases of all profiles
// plus any extra terms, for the transcript corrector. Empty strings are
// skipped; order is deterministic.
func (r *Registry) Vocabulary(extra ...string) []string {
	seen := make(map[string]struct{})
	var vocab []string
	add := func(term string) {
		term = strings.TrimSpace(term)
		if term == "" {
			return
		}
		key := strings.ToLower(term)
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		vocab = append(vocab, term)
	}

	for _, id := range r.order {
		p := r.profiles[id]
		add(p.DisplayName)
		for _, a := range p.Aliases {
			add(a)
		}
	}
	for _, term := range extra {
		add(term)
	}
	return vocab
}

// Closest returns the known profile ID most similar to id by Jaro-Winkler
// similarity, and whether the similarity is high enough (at least 0.80) to
// be a plausible typo. Useful for CLI error messages.
func (r *Registry) Closest(id string) (string, bool) {
	best := ""
	bestScore := 0.0
	for _, known := range r.order {
		if s := matchr.JaroWinkler(strings.ToLower(id), known, false); s > bestScore {
			best, bestScore = known, s
		}
	}
	return best, bestScore >= 0.80
}

// defaultHierarchy orders IDs for ambiguity resolution when no hierarchy is
// configured: configuration order reversed, so later (typically younger)
// profiles win.
func defaultHierarchy(order []string) []string {
	h := slices.Clone(order)
	slices.Reverse(h)
	return h
}
