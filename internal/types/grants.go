package types

import (
	"encoding/json"
	"fmt"
	"sort"
)

// AppGrants is the `applications` field of a user registry record. The wire
// format is polymorphic and all three historical shapes must keep working:
//
//	"*"                          -- every application
//	["Billing", "CRM"]           -- listed applications, permission from role
//	{"Billing":"rw","CRM":"ro"}  -- listed applications with explicit permission
type AppGrants struct {
	// All is true for the "*" form.
	All bool
	// Perms maps application name to its explicit permission. The list form
	// yields PermNone values, meaning "listed, permission decided by role".
	Perms map[string]Permission
}

// UnmarshalJSON accepts the three wire shapes.
func (g *AppGrants) UnmarshalJSON(data []byte) error {
	g.All = false
	g.Perms = nil

	var star string
	if err := json.Unmarshal(data, &star); err == nil {
		if star != "*" {
			return fmt.Errorf("applications: unexpected string %q (only \"*\" is allowed)", star)
		}
		g.All = true
		return nil
	}

	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		g.Perms = make(map[string]Permission, len(list))
		for _, name := range list {
			g.Perms[name] = PermNone
		}
		return nil
	}

	var object map[string]Permission
	if err := json.Unmarshal(data, &object); err != nil {
		return fmt.Errorf("applications: expected \"*\", a list, or an object: %w", err)
	}
	for name, p := range object {
		if p != PermReadOnly && p != PermReadWrite {
			return fmt.Errorf("applications[%s]: invalid permission %q", name, p)
		}
	}
	g.Perms = object
	return nil
}

// MarshalJSON renders the most specific shape that round-trips the grants.
func (g AppGrants) MarshalJSON() ([]byte, error) {
	if g.All {
		return json.Marshal("*")
	}
	for _, p := range g.Perms {
		if p != PermNone {
			return json.Marshal(g.Perms)
		}
	}
	return json.Marshal(g.Names())
}

// Lists reports whether the application is named by these grants, either
// through the wildcard or explicitly.
func (g AppGrants) Lists(app string) bool {
	if g.All {
		return true
	}
	_, ok := g.Perms[app]
	return ok
}

// Explicit returns the explicit permission for the application, or PermNone
// when the grants use the wildcard or list form.
func (g AppGrants) Explicit(app string) Permission {
	if g.All {
		return PermNone
	}
	return g.Perms[app]
}

// Names returns the explicitly listed application names, sorted.
func (g AppGrants) Names() []string {
	names := make([]string, 0, len(g.Perms))
	for name := range g.Perms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
