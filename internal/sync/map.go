// Package sync evaluates the synchronisation map: rule evaluation against
// directory entries, aggregation into wanted roles and grants, and the
// manager driving a full run against the cluster.
package sync

import (
	"github.com/lokenorlinjohannessen/ldap2pg/internal/directory"
	"github.com/lokenorlinjohannessen/ldap2pg/internal/role"
)

// Map is the ordered list of mappings binding directory searches to role
// and grant rules.
type Map []Mapping

// Mapping binds an optional directory search to the rules evaluated
// against its entries. Without a search, rules are static and evaluated
// once.
type Mapping struct {
	Query  *directory.Query `mapstructure:"ldap"`
	Roles  []RoleRule       `mapstructure:"roles"`
	Grants []GrantRule      `mapstructure:"grant"`
}

// RoleRule declares roles from an entry. Name, member, parent and comment
// templates expand against entry attributes; names lowercase on
// evaluation. OnUnexpectedDN decides what a DN missing a referenced RDN
// does to the run: fail (default), warn or ignore.
type RoleRule struct {
	Names          []string     `mapstructure:"names"`
	Members        []string     `mapstructure:"members"`
	Parents        []string     `mapstructure:"parents"`
	Comment        string       `mapstructure:"comment"`
	Options        role.Options `mapstructure:"options"`
	OnUnexpectedDN string       `mapstructure:"on_unexpected_dn"`
}

// GrantRule declares grants from an entry. Role templates expand against
// entry attributes; RoleMatch restricts grants to roles matching a
// shell-style pattern. Databases and Schemas keep their raw selectors,
// normalized at evaluation time.
type GrantRule struct {
	Privilege string   `mapstructure:"privilege"`
	Databases []string `mapstructure:"databases"`
	Schemas   []string `mapstructure:"schemas"`
	Roles     []string `mapstructure:"roles"`
	RoleMatch string   `mapstructure:"role_match"`
}

// EntrySource feeds rule evaluation with either directory entries or one
// synthetic pass for static mappings.
type EntrySource struct {
	entries   []directory.Entry
	synthetic bool
}

// DirectoryEntries wraps fetched entries as a rule evaluation source.
func DirectoryEntries(entries []directory.Entry) EntrySource {
	return EntrySource{entries: entries}
}

// Synthetic is the source of a mapping without a directory search. Rules
// evaluate once, against no entry.
func Synthetic() EntrySource {
	return EntrySource{synthetic: true}
}

// visit calls fn once per entry, or once with a nil entry for a synthetic
// source.
func (s EntrySource) visit(fn func(entry *directory.Entry) error) error {
	if s.synthetic {
		return fn(nil)
	}
	for i := range s.entries {
		if err := fn(&s.entries[i]); err != nil {
			return err
		}
	}
	return nil
}
