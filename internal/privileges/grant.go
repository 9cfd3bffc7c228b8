// Package privileges models wanted and actual privilege grants: the grant
// declaration, the ACL set, selector expansion against the inspected
// cluster topology and the grant diff.
package privileges

import (
	"fmt"
	"slices"
	"strings"
)

// Scope decides what a privilege class attaches to, and therefore whether
// its grants carry a schema.
type Scope int

const (
	DatabaseScope Scope = iota
	SchemaScope
)

// Privilege describes one managed privilege class, by name. The SQL behind
// a class lives with the statement renderer, not here.
type Privilege struct {
	Name  string
	Scope Scope
}

// Grant declares one privilege for a role. Before expansion, Databases may
// enumerate names or AllDatabases may select every database of the cluster;
// the two are distinct even when they resolve to the same set. A nil
// Schemas defers schema selection to expansion against the topology. After
// expansion a grant is concrete: exactly one database, at most one schema.
type Grant struct {
	Privilege    string
	AllDatabases bool
	Databases    []string
	Schemas      []string
	Role         string
}

// Key is the structural identity of the grant inside an ACL.
func (g Grant) Key() string {
	databases := "__all__"
	if !g.AllDatabases {
		sorted := slices.Clone(g.Databases)
		slices.Sort(sorted)
		databases = strings.Join(sorted, ",")
	}
	schemas := "__any__"
	if g.Schemas != nil {
		sorted := slices.Clone(g.Schemas)
		slices.Sort(sorted)
		schemas = strings.Join(sorted, ",")
	}
	return strings.Join([]string{g.Privilege, databases, schemas, g.Role}, "/")
}

func (g Grant) String() string {
	var b strings.Builder
	b.WriteString(g.Privilege)
	if g.AllDatabases {
		b.WriteString(" ON __all__")
	} else {
		b.WriteString(" ON " + strings.Join(g.Databases, ","))
	}
	if g.Schemas != nil {
		b.WriteString("." + strings.Join(g.Schemas, ","))
	}
	b.WriteString(" TO " + g.Role)
	return b.String()
}

// Database returns the single database of a concrete grant.
func (g Grant) Database() string {
	if len(g.Databases) == 1 {
		return g.Databases[0]
	}
	return ""
}

// Schema returns the single schema of a concrete schema-scoped grant.
func (g Grant) Schema() string {
	if len(g.Schemas) == 1 {
		return g.Schemas[0]
	}
	return ""
}

func (g Grant) validate() error {
	if g.Privilege == "" {
		return &ValidationError{Message: fmt.Sprintf("grant to %s without privilege", g.Role)}
	}
	if g.Role == "" {
		return &ValidationError{Message: fmt.Sprintf("grant of %s without role", g.Privilege)}
	}
	if !g.AllDatabases && len(g.Databases) == 0 {
		return &ValidationError{Message: fmt.Sprintf("grant of %s to %s without database", g.Privilege, g.Role)}
	}
	return nil
}
