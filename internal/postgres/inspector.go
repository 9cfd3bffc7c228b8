package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"path"
	"slices"

	"github.com/lokenorlinjohannessen/ldap2pg/internal/privileges"
	"github.com/lokenorlinjohannessen/ldap2pg/internal/role"
)

// Inspector reads the actual cluster state feeding both diffs.
type Inspector interface {
	// FetchMe returns the session role name and whether it is superuser.
	FetchMe(ctx context.Context) (me string, super bool, err error)
	// FetchRoles returns the connectable databases, the full role catalog
	// and the managed subset.
	FetchRoles(ctx context.Context) (databases []string, all, managed role.Set, err error)
	// FetchSchemas maps each database to its managed schemas.
	FetchSchemas(ctx context.Context, databases []string) (map[string][]string, error)
	// FetchGrants inspects current grants of the registered privileges,
	// held by managed roles, across the topology.
	FetchGrants(ctx context.Context, topology map[string][]string, registry map[string]Privilege, managed role.Set) (privileges.ACL, error)
}

// MatchPattern returns the first blacklist pattern matching the name, or
// the empty string. Patterns use shell-style globbing.
func MatchPattern(name string, patterns []string) string {
	for _, pattern := range patterns {
		if matched, err := path.Match(pattern, name); err == nil && matched {
			return pattern
		}
	}
	return ""
}

// FilterRoles drops blacklisted roles from the catalog and the managed
// subset, and blacklisted members from the kept roles.
func FilterRoles(all, managed role.Set, blacklist []string) (role.Set, role.Set) {
	filteredAll, filteredManaged := role.Set{}, role.Set{}
	for _, name := range all.Names() {
		if pattern := MatchPattern(name, blacklist); pattern != "" {
			slog.Debug("Ignoring blacklisted role.", "role", name, "pattern", pattern)
			continue
		}
		r := all[name]
		r.Members = filterNames(r.Members, blacklist)
		filteredAll.Add(r)
		if _, ok := managed[name]; ok {
			filteredManaged.Add(r)
		}
	}
	return filteredAll, filteredManaged
}

func filterNames(names, blacklist []string) []string {
	var kept []string
	for _, name := range names {
		if MatchPattern(name, blacklist) == "" {
			kept = append(kept, name)
		}
	}
	return kept
}

const (
	meQuery = `SELECT current_user, rolsuper FROM pg_catalog.pg_roles WHERE rolname = current_user;`

	databasesQuery = `SELECT datname FROM pg_catalog.pg_database WHERE datallowconn ORDER BY 1;`

	rolesQuery = `
SELECT r.rolname, r.rolsuper, r.rolcreatedb, r.rolcreaterole, r.rolinherit,
       r.rolcanlogin, r.rolreplication, r.rolbypassrls, r.rolconnlimit,
       COALESCE(pg_catalog.shobj_description(r.oid, 'pg_authid'), ''),
       ARRAY(SELECT m.rolname
             FROM pg_catalog.pg_auth_members am
             JOIN pg_catalog.pg_roles m ON m.oid = am.member
             WHERE am.roleid = r.oid
             ORDER BY 1)
FROM pg_catalog.pg_roles r
ORDER BY 1;
`

	defaultSchemasQuery = `
SELECT nspname FROM pg_catalog.pg_namespace
WHERE nspname NOT LIKE 'pg\_%' AND nspname <> 'information_schema'
ORDER BY 1;
`
)

// ClusterInspector inspects a live cluster, one connection per database.
// Empty ManagedRolesQuery manages every role of the catalog, empty
// SchemasQuery falls back to all non-system schemas.
type ClusterInspector struct {
	Conns             *Conns
	ManagedRolesQuery string
	SchemasQuery      string
}

func (i *ClusterInspector) FetchMe(ctx context.Context) (string, bool, error) {
	conn, err := i.Conns.Get(ctx, "")
	if err != nil {
		return "", false, err
	}
	var me string
	var super bool
	if err := conn.QueryRow(ctx, meQuery).Scan(&me, &super); err != nil {
		return "", false, fmt.Errorf("failed to inspect session role: %w", err)
	}
	return me, super, nil
}

func (i *ClusterInspector) FetchRoles(ctx context.Context) ([]string, role.Set, role.Set, error) {
	conn, err := i.Conns.Get(ctx, "")
	if err != nil {
		return nil, nil, nil, err
	}

	var databases []string
	rows, err := conn.Query(ctx, databasesQuery)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to inspect databases: %w", err)
	}
	for rows.Next() {
		var database string
		if err := rows.Scan(&database); err != nil {
			return nil, nil, nil, fmt.Errorf("failed to inspect databases: %w", err)
		}
		databases = append(databases, database)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to inspect databases: %w", err)
	}

	all := role.Set{}
	rows, err = conn.Query(ctx, rolesQuery)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to inspect roles: %w", err)
	}
	for rows.Next() {
		var r role.Role
		var super, createDB, createRole, inherit, login, replication, bypassRLS bool
		var connLimit int
		err := rows.Scan(
			&r.Name, &super, &createDB, &createRole, &inherit,
			&login, &replication, &bypassRLS, &connLimit,
			&r.Comment, &r.Members,
		)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to inspect roles: %w", err)
		}
		r.Options = role.Options{
			"SUPERUSER":        super,
			"CREATEDB":         createDB,
			"CREATEROLE":       createRole,
			"INHERIT":          inherit,
			"LOGIN":            login,
			"REPLICATION":      replication,
			"BYPASSRLS":        bypassRLS,
			"CONNECTION LIMIT": connLimit,
		}
		all.Add(r)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to inspect roles: %w", err)
	}
	slog.Debug("Inspected roles.", "count", len(all))

	managed := role.Set{}
	if i.ManagedRolesQuery == "" {
		maps.Copy(managed, all)
		return databases, all, managed, nil
	}
	rows, err = conn.Query(ctx, i.ManagedRolesQuery)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to inspect managed roles: %w", err)
	}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, nil, nil, fmt.Errorf("failed to inspect managed roles: %w", err)
		}
		if r, ok := all[name]; ok {
			managed.Add(r)
		} else {
			managed.Add(role.Role{Name: name})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to inspect managed roles: %w", err)
	}
	return databases, all, managed, nil
}

func (i *ClusterInspector) FetchSchemas(ctx context.Context, databases []string) (map[string][]string, error) {
	query := i.SchemasQuery
	if query == "" {
		query = defaultSchemasQuery
	}
	topology := make(map[string][]string, len(databases))
	for _, database := range databases {
		conn, err := i.Conns.Get(ctx, database)
		if err != nil {
			return nil, err
		}
		rows, err := conn.Query(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("failed to inspect schemas in %s: %w", database, err)
		}
		var schemas []string
		for rows.Next() {
			var schema string
			if err := rows.Scan(&schema); err != nil {
				return nil, fmt.Errorf("failed to inspect schemas in %s: %w", database, err)
			}
			schemas = append(schemas, schema)
		}
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("failed to inspect schemas in %s: %w", database, err)
		}
		slog.Debug("Inspected schemas.", "database", database, "count", len(schemas))
		topology[database] = schemas
	}
	return topology, nil
}

func (i *ClusterInspector) FetchGrants(ctx context.Context, topology map[string][]string, registry map[string]Privilege, managed role.Set) (privileges.ACL, error) {
	acl := privileges.ACL{}
	for _, database := range slices.Sorted(maps.Keys(topology)) {
		conn, err := i.Conns.Get(ctx, database)
		if err != nil {
			return nil, err
		}
		for _, name := range slices.Sorted(maps.Keys(registry)) {
			privilege := registry[name]
			rows, err := conn.Query(ctx, privilege.Inspect)
			if err != nil {
				return nil, fmt.Errorf("failed to inspect %s grants in %s: %w", name, database, err)
			}
			for rows.Next() {
				grant := privileges.Grant{Privilege: name, Databases: []string{database}}
				if privilege.Scope == privileges.SchemaScope {
					var schema string
					if err := rows.Scan(&grant.Role, &schema); err != nil {
						return nil, fmt.Errorf("failed to inspect %s grants in %s: %w", name, database, err)
					}
					grant.Schemas = []string{schema}
				} else if err := rows.Scan(&grant.Role); err != nil {
					return nil, fmt.Errorf("failed to inspect %s grants in %s: %w", name, database, err)
				}
				if _, ok := managed[grant.Role]; !ok {
					continue
				}
				if err := acl.Add(grant); err != nil {
					return nil, err
				}
			}
			if err := rows.Err(); err != nil {
				return nil, fmt.Errorf("failed to inspect %s grants in %s: %w", name, database, err)
			}
		}
	}
	return acl, nil
}
