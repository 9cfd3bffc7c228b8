package postgres

import (
	"fmt"

	"github.com/lokenorlinjohannessen/ldap2pg/internal/privileges"
)

// Privilege binds a managed privilege class to its SQL: the inspect query
// listing current grantees and the grant and revoke statements. Statements
// carry {database}, {schema} and {role} placeholders, replaced with quoted
// identifiers at render time.
type Privilege struct {
	Scope   privileges.Scope
	Inspect string
	Grant   string
	Revoke  string
}

// Names returns the managed privilege names of a registry, as the grant
// diff scope.
func Names(registry map[string]Privilege) map[string]bool {
	names := make(map[string]bool, len(registry))
	for name := range registry {
		names[name] = true
	}
	return names
}

const schemaACLInspect = `
SELECT grantee.rolname, n.nspname
FROM pg_catalog.pg_namespace n
CROSS JOIN LATERAL aclexplode(n.nspacl) acl
JOIN pg_catalog.pg_roles grantee ON grantee.oid = acl.grantee
WHERE acl.privilege_type = '%s'
  AND n.nspname NOT LIKE 'pg\_%%'
  AND n.nspname <> 'information_schema'
ORDER BY 1, 2;
`

const databaseACLInspect = `
SELECT grantee.rolname
FROM pg_catalog.pg_database d
CROSS JOIN LATERAL aclexplode(d.datacl) acl
JOIN pg_catalog.pg_roles grantee ON grantee.oid = acl.grantee
WHERE d.datname = current_database()
  AND acl.privilege_type = '%s'
ORDER BY 1;
`

const tableGrantsInspect = `
SELECT DISTINCT grantee, table_schema
FROM information_schema.role_table_grants
WHERE privilege_type = '%s'
  AND table_schema NOT LIKE 'pg\_%%'
  AND table_schema <> 'information_schema'
ORDER BY 1, 2;
`

// BuiltinPrivileges maps the privilege names usable in grant rules to
// their SQL. Database-scoped inspect queries return one grantee column,
// schema-scoped ones grantee and schema.
var BuiltinPrivileges = map[string]Privilege{
	"CONNECT": {
		Scope:   privileges.DatabaseScope,
		Inspect: fmt.Sprintf(databaseACLInspect, "CONNECT"),
		Grant:   "GRANT CONNECT ON DATABASE {database} TO {role};",
		Revoke:  "REVOKE CONNECT ON DATABASE {database} FROM {role};",
	},
	"TEMP": {
		Scope:   privileges.DatabaseScope,
		Inspect: fmt.Sprintf(databaseACLInspect, "TEMPORARY"),
		Grant:   "GRANT TEMP ON DATABASE {database} TO {role};",
		Revoke:  "REVOKE TEMP ON DATABASE {database} FROM {role};",
	},
	"USAGE": {
		Scope:   privileges.SchemaScope,
		Inspect: fmt.Sprintf(schemaACLInspect, "USAGE"),
		Grant:   "GRANT USAGE ON SCHEMA {schema} TO {role};",
		Revoke:  "REVOKE USAGE ON SCHEMA {schema} FROM {role};",
	},
	"CREATE": {
		Scope:   privileges.SchemaScope,
		Inspect: fmt.Sprintf(schemaACLInspect, "CREATE"),
		Grant:   "GRANT CREATE ON SCHEMA {schema} TO {role};",
		Revoke:  "REVOKE CREATE ON SCHEMA {schema} FROM {role};",
	},
	"SELECT": {
		Scope:   privileges.SchemaScope,
		Inspect: fmt.Sprintf(tableGrantsInspect, "SELECT"),
		Grant:   "GRANT SELECT ON ALL TABLES IN SCHEMA {schema} TO {role};",
		Revoke:  "REVOKE SELECT ON ALL TABLES IN SCHEMA {schema} FROM {role};",
	},
	"INSERT": {
		Scope:   privileges.SchemaScope,
		Inspect: fmt.Sprintf(tableGrantsInspect, "INSERT"),
		Grant:   "GRANT INSERT ON ALL TABLES IN SCHEMA {schema} TO {role};",
		Revoke:  "REVOKE INSERT ON ALL TABLES IN SCHEMA {schema} FROM {role};",
	},
	"UPDATE": {
		Scope:   privileges.SchemaScope,
		Inspect: fmt.Sprintf(tableGrantsInspect, "UPDATE"),
		Grant:   "GRANT UPDATE ON ALL TABLES IN SCHEMA {schema} TO {role};",
		Revoke:  "REVOKE UPDATE ON ALL TABLES IN SCHEMA {schema} FROM {role};",
	},
	"DELETE": {
		Scope:   privileges.SchemaScope,
		Inspect: fmt.Sprintf(tableGrantsInspect, "DELETE"),
		Grant:   "GRANT DELETE ON ALL TABLES IN SCHEMA {schema} TO {role};",
		Revoke:  "REVOKE DELETE ON ALL TABLES IN SCHEMA {schema} FROM {role};",
	},
}

// Scopes extracts the name to scope view of a registry, as needed by grant
// expansion.
func Scopes(registry map[string]Privilege) map[string]privileges.Privilege {
	scopes := make(map[string]privileges.Privilege, len(registry))
	for name, privilege := range registry {
		scopes[name] = privileges.Privilege{Name: name, Scope: privilege.Scope}
	}
	return scopes
}
