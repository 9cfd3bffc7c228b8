package sync

import (
	"fmt"
	"log/slog"

	"github.com/lokenorlinjohannessen/ldap2pg/internal/directory"
	"github.com/lokenorlinjohannessen/ldap2pg/internal/privileges"
	"github.com/lokenorlinjohannessen/ldap2pg/internal/role"
)

// InspectDirectory evaluates the whole map: each mapping's entries are
// fetched and joined, its rules applied, the results folded into one
// wanted role set and one wanted ACL. Declarations of the same role merge;
// disagreeing option sets are fatal. Option defaults apply only after
// folding, so partial declarations merge before comparison against full
// defaults. columns scope the defaults to what the session may manage.
func InspectDirectory(s directory.Searcher, syncmap Map, columns []string) (role.Set, privileges.ACL, error) {
	folded := map[string]role.Role{}
	acl := privileges.ACL{}
	for _, mapping := range syncmap {
		source := Synthetic()
		if mapping.Query != nil {
			slog.Info("Querying LDAP.", "base", mapping.Query.Base, "filter", mapping.Query.Filter)
			entries, err := directory.Fetch(s, *mapping.Query)
			if err != nil {
				return nil, nil, err
			}
			directory.ResolveJoins(s, entries, mapping.Query.Joins)
			source = DirectoryEntries(entries)
		}

		generated, err := ApplyRoleRules(mapping.Roles, source)
		if err != nil {
			return nil, nil, err
		}
		for _, r := range generated {
			existing, ok := folded[r.Name]
			if !ok {
				folded[r.Name] = r
				continue
			}
			if err := existing.Merge(r); err != nil {
				return nil, nil, &UserError{
					Message: fmt.Sprintf("Role %s redefined with different options.", r.Name),
					Cause:   err,
				}
			}
			folded[r.Name] = existing
		}

		grants, err := ApplyGrantRules(mapping.Grants, source)
		if err != nil {
			return nil, nil, err
		}
		for _, g := range grants {
			slog.Debug("Found grant.", "grant", g.String())
			if err := acl.Add(g); err != nil {
				return nil, nil, &UserError{Message: err.Error(), Cause: err}
			}
		}
	}

	wanted := role.Set{}
	for _, r := range folded {
		// Declared options outside the allowed columns are dropped, so a
		// non-superuser session never tries to alter super-only options.
		r.Options = r.Options.Restrict(columns)
		r.Options.FillWithDefaults(columns)
		wanted.Add(r)
	}
	return wanted, acl, nil
}
