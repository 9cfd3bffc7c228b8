package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lokenorlinjohannessen/ldap2pg/internal/privileges"
	"github.com/lokenorlinjohannessen/ldap2pg/internal/role"
)

func TestRenderCreateRole(t *testing.T) {
	queries := RenderRoleActions([]role.Action{{
		Kind: role.CreateRole,
		Wanted: role.Role{
			Name:    "readers",
			Members: []string{"alice"},
			Options: role.Options{"LOGIN": false, "INHERIT": true, "CONNECTION LIMIT": -1},
			Comment: "managed",
		},
	}}, "postgres")

	require.Len(t, queries, 3)
	assert.Equal(t, `CREATE ROLE "readers" WITH INHERIT NOLOGIN CONNECTION LIMIT -1;`, queries[0].Query)
	assert.Equal(t, `GRANT "readers" TO "alice";`, queries[1].Query)
	assert.Equal(t, `COMMENT ON ROLE "readers" IS 'managed';`, queries[2].Query)
}

func TestRenderCreateRoleWithoutOptions(t *testing.T) {
	queries := RenderRoleActions([]role.Action{{
		Kind:   role.CreateRole,
		Wanted: role.Role{Name: "readers"},
	}}, "postgres")

	require.Len(t, queries, 1)
	assert.Equal(t, `CREATE ROLE "readers";`, queries[0].Query)
}

func TestRenderAlterMembers(t *testing.T) {
	queries := RenderRoleActions([]role.Action{{
		Kind:    role.AlterRole,
		Current: role.Role{Name: "readers", Members: []string{"alice", "stale"}},
		Wanted:  role.Role{Name: "readers", Members: []string{"alice", "bob"}},
	}}, "postgres")

	require.Len(t, queries, 2)
	assert.Equal(t, `GRANT "readers" TO "bob";`, queries[0].Query)
	assert.Equal(t, `REVOKE "readers" FROM "stale";`, queries[1].Query)
}

func TestRenderAlterOptions(t *testing.T) {
	queries := RenderRoleActions([]role.Action{{
		Kind:    role.AlterRole,
		Current: role.Role{Name: "alice", Options: role.Options{"LOGIN": false}},
		Wanted:  role.Role{Name: "alice", Options: role.Options{"LOGIN": true}},
	}}, "postgres")

	require.Len(t, queries, 1)
	assert.Equal(t, `ALTER ROLE "alice" WITH LOGIN;`, queries[0].Query)
}

func TestRenderDrop(t *testing.T) {
	queries := RenderRoleActions([]role.Action{{
		Kind:    role.DropRole,
		Current: role.Role{Name: "stale"},
	}}, "postgres")

	require.Len(t, queries, 2)
	assert.Equal(t, AllDatabases, queries[0].Database)
	assert.Equal(t, `REASSIGN OWNED BY "stale" TO "postgres"; DROP OWNED BY "stale";`, queries[0].Query)
	assert.Equal(t, "", queries[1].Database)
	assert.Equal(t, `DROP ROLE "stale";`, queries[1].Query)
}

func TestRenderCommentEscapesQuotes(t *testing.T) {
	queries := RenderRoleActions([]role.Action{{
		Kind:   role.CreateRole,
		Wanted: role.Role{Name: "o'brien", Comment: "it's managed"},
	}}, "postgres")

	require.Len(t, queries, 2)
	assert.Equal(t, `COMMENT ON ROLE "o'brien" IS 'it''s managed';`, queries[1].Query)
}

func TestRenderGrantActions(t *testing.T) {
	queries := RenderGrantActions([]privileges.Action{
		{Kind: privileges.DoRevoke, Grant: privileges.Grant{
			Privilege: "CONNECT", Databases: []string{"appdb"}, Role: "stale",
		}},
		{Kind: privileges.DoGrant, Grant: privileges.Grant{
			Privilege: "USAGE", Databases: []string{"appdb"}, Schemas: []string{"sales"}, Role: "readers",
		}},
	}, BuiltinPrivileges)

	require.Len(t, queries, 2)
	assert.Equal(t, `REVOKE CONNECT ON DATABASE "appdb" FROM "stale";`, queries[0].Query)
	assert.Equal(t, "appdb", queries[0].Database)
	assert.Equal(t, `GRANT USAGE ON SCHEMA "sales" TO "readers";`, queries[1].Query)
}

func TestRenderGrantSkipsUnknownPrivilege(t *testing.T) {
	queries := RenderGrantActions([]privileges.Action{
		{Kind: privileges.DoGrant, Grant: privileges.Grant{
			Privilege: "TRIGGER", Databases: []string{"appdb"}, Role: "alice",
		}},
	}, BuiltinPrivileges)

	assert.Empty(t, queries)
}

func TestExpandQueries(t *testing.T) {
	queries := ExpandQueries([]SyncQuery{
		{Description: "Reassign objects and purge ACL.", Database: AllDatabases},
		{Description: "Drop role."},
	}, []string{"appdb", "otherdb"})

	require.Len(t, queries, 3)
	assert.Equal(t, "appdb", queries[0].Database)
	assert.Equal(t, "otherdb", queries[1].Database)
	assert.Equal(t, "", queries[2].Database)
}

func TestFilterRoles(t *testing.T) {
	all := role.Set{}
	all.Add(role.Role{Name: "postgres"})
	all.Add(role.Role{Name: "pg_signal_backend"})
	all.Add(role.Role{Name: "readers", Members: []string{"alice", "pg_monitor"}})
	managed := role.Set{}
	managed.Add(all["readers"])
	managed.Add(all["postgres"])

	filteredAll, filteredManaged := FilterRoles(all, managed, []string{"pg_*", "postgres"})

	assert.ElementsMatch(t, []string{"readers"}, filteredAll.Names())
	assert.ElementsMatch(t, []string{"readers"}, filteredManaged.Names())
	assert.Equal(t, []string{"alice"}, filteredAll["readers"].Members)
}

func TestMatchPattern(t *testing.T) {
	blacklist := []string{"pg_*", "postgres"}

	assert.Equal(t, "pg_*", MatchPattern("pg_monitor", blacklist))
	assert.Equal(t, "postgres", MatchPattern("postgres", blacklist))
	assert.Equal(t, "", MatchPattern("alice", blacklist))
}

func TestRegistryViews(t *testing.T) {
	names := Names(BuiltinPrivileges)
	assert.True(t, names["CONNECT"])
	assert.False(t, names["TRIGGER"])

	scopes := Scopes(BuiltinPrivileges)
	assert.Equal(t, privileges.DatabaseScope, scopes["CONNECT"].Scope)
	assert.Equal(t, privileges.SchemaScope, scopes["SELECT"].Scope)
}
