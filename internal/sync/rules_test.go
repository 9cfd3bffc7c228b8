package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lokenorlinjohannessen/ldap2pg/internal/directory"
	"github.com/lokenorlinjohannessen/ldap2pg/internal/role"
)

func groupEntry() directory.Entry {
	return directory.Entry{
		DN: "cn=readers,ou=groups,dc=example,dc=net",
		Attributes: map[string][]directory.Value{
			"dn": {{Raw: "cn=readers,ou=groups,dc=example,dc=net"}},
			"cn": {{Raw: "readers"}},
			"member": {
				{Raw: "cn=Alice,ou=people,dc=example,dc=net"},
				{Raw: "cn=Bob,ou=people,dc=example,dc=net"},
			},
		},
	}
}

func TestApplyRoleRulesStatic(t *testing.T) {
	roles, err := ApplyRoleRules([]RoleRule{
		{Names: []string{"app"}, Options: role.Options{"LOGIN": true}},
	}, Synthetic())

	require.NoError(t, err)
	require.Len(t, roles, 1)
	assert.Equal(t, "app", roles[0].Name)
	assert.Equal(t, role.Options{"LOGIN": true}, roles[0].Options)
}

func TestApplyRoleRulesFromEntries(t *testing.T) {
	roles, err := ApplyRoleRules([]RoleRule{
		{Names: []string{"{cn}_ro"}, Members: []string{"{member.cn}"}},
	}, DirectoryEntries([]directory.Entry{groupEntry()}))

	require.NoError(t, err)
	require.Len(t, roles, 1)
	assert.Equal(t, "readers_ro", roles[0].Name)
	assert.Equal(t, []string{"alice", "bob"}, roles[0].Members)
}

func TestApplyRoleRulesUnexpectedDN(t *testing.T) {
	source := DirectoryEntries([]directory.Entry{groupEntry()})
	rule := RoleRule{Names: []string{"{member.st}"}}

	_, err := ApplyRoleRules([]RoleRule{rule}, source)
	var userErr *UserError
	require.ErrorAs(t, err, &userErr)

	rule.OnUnexpectedDN = "warn"
	roles, err := ApplyRoleRules([]RoleRule{rule}, source)
	require.NoError(t, err)
	assert.Empty(t, roles)

	rule.OnUnexpectedDN = "ignore"
	roles, err = ApplyRoleRules([]RoleRule{rule}, source)
	require.NoError(t, err)
	assert.Empty(t, roles)
}

func TestApplyRoleRulesNamesEvaluationError(t *testing.T) {
	_, err := ApplyRoleRules([]RoleRule{
		{Names: []string{"{ghost}"}},
	}, DirectoryEntries([]directory.Entry{groupEntry()}))

	var mappingErr *MappingError
	require.ErrorAs(t, err, &mappingErr)
	assert.Equal(t, "cn=readers,ou=groups,dc=example,dc=net", mappingErr.DN)
}

func TestApplyGrantRulesRoleMatch(t *testing.T) {
	grants, err := ApplyGrantRules([]GrantRule{
		{Privilege: "ro", Roles: []string{"{member.cn}", "app_service"}, RoleMatch: "a*"},
	}, DirectoryEntries([]directory.Entry{groupEntry()}))

	require.NoError(t, err)
	var roles []string
	for _, g := range grants {
		roles = append(roles, g.Role)
	}
	assert.Equal(t, []string{"alice", "app_service"}, roles)
}

func TestApplyGrantRulesSelectors(t *testing.T) {
	grants, err := ApplyGrantRules([]GrantRule{
		{Privilege: "ro", Roles: []string{"alice"}},
		{Privilege: "ro", Roles: []string{"bob"}, Databases: []string{"appdb"}, Schemas: []string{"__any__"}},
		{Privilege: "ro", Roles: []string{"carol"}, Databases: []string{"__all__"}, Schemas: []string{"sales"}},
	}, Synthetic())

	require.NoError(t, err)
	require.Len(t, grants, 3)

	assert.True(t, grants[0].AllDatabases)
	assert.Nil(t, grants[0].Schemas)

	assert.False(t, grants[1].AllDatabases)
	assert.Equal(t, []string{"appdb"}, grants[1].Databases)
	assert.Nil(t, grants[1].Schemas)

	assert.True(t, grants[2].AllDatabases)
	assert.Equal(t, []string{"sales"}, grants[2].Schemas)
}

func TestInspectDirectoryMergesRoles(t *testing.T) {
	syncmap := Map{
		{Roles: []RoleRule{{Names: []string{"readers"}, Members: []string{"alice"}}}},
		{Roles: []RoleRule{{Names: []string{"readers"}, Members: []string{"bob"}}}},
	}

	wanted, acl, err := InspectDirectory(nil, syncmap, role.Columns)
	require.NoError(t, err)
	assert.Empty(t, acl)

	readers := wanted["readers"]
	assert.Equal(t, []string{"alice", "bob"}, readers.Members)
	// Defaults apply after folding.
	assert.Equal(t, false, readers.Options["LOGIN"])
	assert.Equal(t, -1, readers.Options["CONNECTION LIMIT"])
}

func TestInspectDirectoryRestrictsOptions(t *testing.T) {
	syncmap := Map{
		{Roles: []RoleRule{{Names: []string{"app"}, Options: role.Options{"LOGIN": true, "SUPERUSER": true}}}},
	}

	columns := role.AllowedColumns(false)
	wanted, _, err := InspectDirectory(nil, syncmap, columns)
	require.NoError(t, err)

	app := wanted["app"]
	assert.NotContains(t, app.Options, "SUPERUSER")
	assert.Equal(t, true, app.Options["LOGIN"])
	assert.Len(t, app.Options, len(columns))
}

func TestInspectDirectoryOptionConflict(t *testing.T) {
	syncmap := Map{
		{Roles: []RoleRule{{Names: []string{"app"}, Options: role.Options{"LOGIN": true}}}},
		{Roles: []RoleRule{{Names: []string{"app"}, Options: role.Options{"LOGIN": false}}}},
	}

	_, _, err := InspectDirectory(nil, syncmap, role.Columns)
	var userErr *UserError
	require.ErrorAs(t, err, &userErr)
	assert.Contains(t, userErr.Message, "redefined with different options")
}
