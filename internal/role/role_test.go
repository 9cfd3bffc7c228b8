package role

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeUnionsMembers(t *testing.T) {
	a := Role{Name: "readers", Members: []string{"alice"}, Options: Options{"LOGIN": false}}
	b := Role{Name: "readers", Members: []string{"bob"}, Parents: []string{"backend"}, Options: Options{"LOGIN": false}}

	require.NoError(t, a.Merge(b))

	assert.Equal(t, []string{"alice", "bob"}, a.Members)
	assert.Equal(t, []string{"backend"}, a.Parents)
}

func TestMergeCommutative(t *testing.T) {
	build := func() (Role, Role) {
		a := Role{Name: "readers", Members: []string{"alice"}, Options: Options{"LOGIN": false}, Comment: "from ldap"}
		b := Role{Name: "readers", Members: []string{"bob", "alice"}, Options: Options{"LOGIN": false}}
		return a, b
	}

	ab, b := build()
	require.NoError(t, ab.Merge(b))
	a, ba := build()
	require.NoError(t, ba.Merge(a))

	assert.Equal(t, ab, ba)
}

func TestMergeIdempotent(t *testing.T) {
	a := Role{Name: "readers", Members: []string{"alice"}, Options: Options{"LOGIN": false}}
	before := Role{Name: "readers", Members: []string{"alice"}, Options: Options{"LOGIN": false}}

	require.NoError(t, a.Merge(before))
	assert.Equal(t, before.Members, a.Members)
}

func TestMergeConflict(t *testing.T) {
	a := Role{Name: "readers", Options: Options{"LOGIN": true}}
	b := Role{Name: "readers", Options: Options{"LOGIN": false}}

	var conflict *ConflictError
	require.ErrorAs(t, a.Merge(b), &conflict)
	assert.Equal(t, "readers", conflict.Role)

	// Conflict regardless of merge order.
	c := Role{Name: "readers", Options: Options{"LOGIN": false}}
	d := Role{Name: "readers", Options: Options{"LOGIN": true}}
	require.ErrorAs(t, c.Merge(d), &conflict)
}

func TestMergePartialOptionsConflict(t *testing.T) {
	a := Role{Name: "readers", Options: Options{"LOGIN": true}}
	b := Role{Name: "readers", Options: Options{"LOGIN": true, "CREATEDB": true}}

	require.Error(t, a.Merge(b))
}

func TestOptionsFillWithDefaults(t *testing.T) {
	o := Options{"LOGIN": true}
	o.FillWithDefaults(Columns)

	assert.Equal(t, true, o["LOGIN"])
	assert.Equal(t, false, o["SUPERUSER"])
	assert.Equal(t, true, o["INHERIT"])
	assert.Equal(t, -1, o["CONNECTION LIMIT"])
}

func TestOptionsRestrict(t *testing.T) {
	o := Options{"SUPERUSER": true, "LOGIN": true, "REPLICATION": false}
	restricted := o.Restrict(AllowedColumns(false))

	assert.Equal(t, Options{"LOGIN": true}, restricted)
}

func TestAllowedColumns(t *testing.T) {
	assert.Equal(t, Columns, AllowedColumns(true))
	assert.NotContains(t, AllowedColumns(false), "SUPERUSER")
	assert.NotContains(t, AllowedColumns(false), "BYPASSRLS")
	assert.Contains(t, AllowedColumns(false), "LOGIN")
}
