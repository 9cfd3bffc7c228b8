package privileges

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"
)

// ValidationError reports an internally inconsistent grant set. Fatal.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// ACL is a set of grants keyed by structural identity. Adding an equal
// grant twice is a no-op.
type ACL map[string]Grant

// Add validates and inserts a grant.
func (a ACL) Add(g Grant) error {
	if err := g.validate(); err != nil {
		return err
	}
	a[g.Key()] = g
	return nil
}

// sortedKeys keeps every ACL traversal deterministic.
func (a ACL) sortedKeys() []string {
	return slices.Sorted(maps.Keys(a))
}

// ExpandGrants resolves privilege aliases and database/schema selectors
// into fully concrete grants, using the inspected topology (database name
// to schema names). The AllDatabases selector covers every database of the
// topology; enumerating an uninspected database is an error.
func (a ACL) ExpandGrants(aliases map[string][]string, privileges map[string]Privilege, databases map[string][]string) ([]Grant, error) {
	allDatabases := slices.Sorted(maps.Keys(databases))

	var out []Grant
	for _, key := range a.sortedKeys() {
		grant := a[key]
		for _, name := range resolveAlias(aliases, grant.Privilege) {
			privilege, ok := privileges[name]
			if !ok {
				slog.Debug("Ignoring grant of unmanaged privilege.", "privilege", name, "role", grant.Role)
				continue
			}

			targets := allDatabases
			if !grant.AllDatabases {
				targets = grant.Databases
			}
			for _, database := range targets {
				schemas, ok := databases[database]
				if !ok {
					return nil, &ValidationError{
						Message: fmt.Sprintf("grant of %s on unknown database %s", name, database),
					}
				}
				out = append(out, expandOne(privilege, grant, database, schemas)...)
			}
		}
	}
	return out, nil
}

func expandOne(privilege Privilege, grant Grant, database string, schemas []string) []Grant {
	if privilege.Scope == DatabaseScope {
		return []Grant{{
			Privilege: privilege.Name,
			Databases: []string{database},
			Role:      grant.Role,
		}}
	}

	wanted := grant.Schemas
	if wanted == nil {
		wanted = schemas
	}
	out := make([]Grant, 0, len(wanted))
	for _, schema := range wanted {
		out = append(out, Grant{
			Privilege: privilege.Name,
			Databases: []string{database},
			Schemas:   []string{schema},
			Role:      grant.Role,
		})
	}
	return out
}

// resolveAlias maps an alias to its concrete privileges, recursively.
// Unknown names pass through as themselves; an alias is expanded at most
// once so alias cycles terminate.
func resolveAlias(aliases map[string][]string, name string) []string {
	var resolve func(name string, seen map[string]bool) []string
	resolve = func(name string, seen map[string]bool) []string {
		expansion, ok := aliases[name]
		if !ok || seen[name] {
			return []string{name}
		}
		seen[name] = true
		var out []string
		for _, alias := range expansion {
			out = append(out, resolve(alias, seen)...)
		}
		return out
	}
	return resolve(name, map[string]bool{})
}

// ActionKind is the corrective grant operation decided by a diff.
type ActionKind int

const (
	DoGrant ActionKind = iota
	DoRevoke
)

func (k ActionKind) String() string {
	if k == DoRevoke {
		return "revoke"
	}
	return "grant"
}

// Action is one corrective grant operation.
type Action struct {
	Kind  ActionKind
	Grant Grant
}

// Diff compares this (actual) ACL against the desired one, scoped to the
// managed privileges: revokes of spurious grants first, then missing
// grants. Grants of unmanaged privileges are never touched.
func (a ACL) Diff(desired ACL, privileges map[string]bool) []Action {
	var actions []Action

	for _, key := range a.sortedKeys() {
		grant := a[key]
		if !privileges[grant.Privilege] {
			continue
		}
		if _, ok := desired[key]; !ok {
			actions = append(actions, Action{Kind: DoRevoke, Grant: grant})
		}
	}

	for _, key := range desired.sortedKeys() {
		grant := desired[key]
		if !privileges[grant.Privilege] {
			continue
		}
		if _, ok := a[key]; !ok {
			actions = append(actions, Action{Kind: DoGrant, Grant: grant})
		}
	}

	return actions
}
