package sync

import (
	"errors"
	"fmt"
	"log/slog"
	"path"
	"slices"
	"strings"

	"github.com/lokenorlinjohannessen/ldap2pg/internal/directory"
	"github.com/lokenorlinjohannessen/ldap2pg/internal/privileges"
	"github.com/lokenorlinjohannessen/ldap2pg/internal/role"
)

// ApplyRoleRules evaluates role rules against a source of entries. Each
// rule's on_unexpected_dn policy gates RDN extraction failures; every
// other evaluation error aborts, naming the entry.
func ApplyRoleRules(rules []RoleRule, source EntrySource) ([]role.Role, error) {
	var out []role.Role
	for _, rule := range rules {
		policy := rule.OnUnexpectedDN
		if policy == "" {
			policy = "fail"
		}
		err := source.visit(func(entry *directory.Entry) error {
			roles, err := rule.generate(entry)
			if err != nil {
				var rdnErr *directory.RDNError
				if errors.As(err, &rdnErr) {
					switch policy {
					case "ignore":
						return nil
					case "warn":
						slog.Warn("Unexpected DN.", "dn", rdnErr.DN, "rdn", rdnErr.RDN)
						return nil
					default:
						return &UserError{Message: fmt.Sprintf("unexpected DN: %s", rdnErr.DN), Cause: err}
					}
				}
				return &MappingError{DN: entryDN(entry), Cause: err}
			}
			out = append(out, roles...)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// generate renders one rule against one entry, one role per expanded name.
func (r RoleRule) generate(entry *directory.Entry) ([]role.Role, error) {
	members, err := expandLower(entry, r.Members)
	if err != nil {
		return nil, err
	}
	parents, err := expandLower(entry, r.Parents)
	if err != nil {
		return nil, err
	}
	comment := ""
	if r.Comment != "" {
		comments, err := directory.Expand(entry, []string{r.Comment})
		if err != nil {
			return nil, err
		}
		if len(comments) > 0 {
			comment = comments[0]
		}
	}

	names, err := directory.Expand(entry, r.Names)
	if err != nil {
		return nil, err
	}
	roles := make([]role.Role, 0, len(names))
	for _, name := range names {
		source := entryDN(entry)
		if slices.Contains(r.Names, name) {
			source = "YAML"
		}
		name = strings.ToLower(name)
		slog.Debug("Found role.", "role", name, "source", source)
		roles = append(roles, role.Role{
			Name:    name,
			Members: slices.Clone(members),
			Parents: slices.Clone(parents),
			Options: r.Options.Clone(),
			Comment: comment,
		})
	}
	return roles, nil
}

// ApplyGrantRules evaluates grant rules against a source of entries,
// yielding unexpanded grants carrying their database and schema selectors.
func ApplyGrantRules(rules []GrantRule, source EntrySource) ([]privileges.Grant, error) {
	var out []privileges.Grant
	for _, rule := range rules {
		allDatabases, databases := normalizeDatabases(rule.Databases)
		schemas := normalizeSchemas(rule.Schemas)
		err := source.visit(func(entry *directory.Entry) error {
			roles, err := directory.Expand(entry, rule.Roles)
			if err != nil {
				return &MappingError{DN: entryDN(entry), Cause: err}
			}
			for _, grantee := range roles {
				grantee = strings.ToLower(grantee)
				if rule.RoleMatch != "" {
					matched, err := path.Match(rule.RoleMatch, grantee)
					if err != nil || !matched {
						slog.Debug("Not granting to role not matching pattern.",
							"privilege", rule.Privilege, "role", grantee, "pattern", rule.RoleMatch)
						continue
					}
				}
				out = append(out, privileges.Grant{
					Privilege:    rule.Privilege,
					AllDatabases: allDatabases,
					Databases:    databases,
					Schemas:      schemas,
					Role:         grantee,
				})
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// normalizeDatabases maps the databases selector: unset or __all__ selects
// every database of the cluster.
func normalizeDatabases(databases []string) (bool, []string) {
	if len(databases) == 0 || slices.Contains(databases, "__all__") {
		return true, nil
	}
	return false, databases
}

// normalizeSchemas maps the schemas selector: unset, __all__ and __any__
// defer schema selection to grant expansion.
func normalizeSchemas(schemas []string) []string {
	if len(schemas) == 0 || slices.Contains(schemas, "__all__") || slices.Contains(schemas, "__any__") {
		return nil
	}
	return schemas
}

func expandLower(entry *directory.Entry, formats []string) ([]string, error) {
	values, err := directory.Expand(entry, formats)
	if err != nil {
		return nil, err
	}
	for i, value := range values {
		values[i] = strings.ToLower(value)
	}
	return values, nil
}

func entryDN(entry *directory.Entry) string {
	if entry == nil {
		return ""
	}
	return entry.DN
}
