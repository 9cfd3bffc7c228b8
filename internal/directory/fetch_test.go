package directory

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lokenorlinjohannessen/ldap2pg/internal/ldap"
)

// mockSearcher serves canned entries keyed by search base and counts
// searches per base.
type mockSearcher struct {
	entries  map[string][]ldap.RawEntry
	failures map[string]error
	searches map[string]int
}

func newMockSearcher() *mockSearcher {
	return &mockSearcher{
		entries:  make(map[string][]ldap.RawEntry),
		failures: make(map[string]error),
		searches: make(map[string]int),
	}
}

func (m *mockSearcher) Search(base string, scope ldap.Scope, filter string, attributes []string) ([]ldap.RawEntry, error) {
	m.searches[base]++
	if err, ok := m.failures[base]; ok {
		return nil, err
	}
	return m.entries[base], nil
}

func TestFetchNormalizesEntries(t *testing.T) {
	s := newMockSearcher()
	s.entries["ou=groups"] = []ldap.RawEntry{
		{DN: "", Attributes: map[string][]string{"ref": {"ldap://other"}}},
		{DN: "cn=readers,ou=groups", Attributes: map[string][]string{
			"CN":     {"readers"},
			"Member": {"cn=alice,ou=people"},
		}},
	}

	entries, err := Fetch(s, Query{Base: "ou=groups", Filter: "(objectClass=group)"})
	require.NoError(t, err)
	require.Len(t, entries, 1, "referral must be discarded")

	entry := entries[0]
	assert.Equal(t, "cn=readers,ou=groups", entry.DN)
	assert.Equal(t, []Value{{Raw: "readers"}}, entry.Attributes["cn"])
	assert.Equal(t, []Value{{Raw: "cn=alice,ou=people"}}, entry.Attributes["member"])
	assert.Equal(t, []Value{{Raw: "cn=readers,ou=groups"}}, entry.Attributes["dn"])
}

func TestFetchTransportError(t *testing.T) {
	s := newMockSearcher()
	s.failures["ou=groups"] = fmt.Errorf("connection reset")

	_, err := Fetch(s, Query{Base: "ou=groups"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to query LDAP")
}

func TestFetchDecodeError(t *testing.T) {
	s := newMockSearcher()
	s.entries["ou=groups"] = []ldap.RawEntry{
		{DN: "cn=readers,ou=groups", Attributes: map[string][]string{
			"description": {"caf\xe9"}, // latin-1, not UTF-8
		}},
	}

	_, err := Fetch(s, Query{Base: "ou=groups"})
	var decodeErr *DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.Equal(t, "cn=readers,ou=groups", decodeErr.DN)
}

func TestResolveJoins(t *testing.T) {
	s := newMockSearcher()
	s.entries["cn=alice,ou=people"] = []ldap.RawEntry{
		{DN: "cn=alice,ou=people", Attributes: map[string][]string{"sAMAccountName": {"alice"}}},
	}

	entries := []Entry{
		{DN: "cn=readers,ou=groups", Attributes: map[string][]Value{
			"member": {{Raw: "cn=alice,ou=people"}},
		}},
		{DN: "cn=writers,ou=groups", Attributes: map[string][]Value{
			"member": {{Raw: "cn=alice,ou=people"}},
		}},
	}
	joins := map[string]Query{
		"member": {Filter: "(objectClass=user)", Attributes: []string{"sAMAccountName"}},
	}

	ResolveJoins(s, entries, joins)

	for _, entry := range entries {
		require.Len(t, entry.Attributes["member"], 1)
		sub := entry.Attributes["member"][0].Sub
		assert.Equal(t, []string{"alice"}, sub["samaccountname"])
		assert.Equal(t, []string{"cn=alice,ou=people"}, sub["dn"])
	}

	// Shared value resolved through the cache: one nested search only.
	assert.Equal(t, 1, s.searches["cn=alice,ou=people"])
}

func TestResolveJoinsCacheCopies(t *testing.T) {
	s := newMockSearcher()
	s.entries["cn=alice,ou=people"] = []ldap.RawEntry{
		{DN: "cn=alice,ou=people", Attributes: map[string][]string{"uid": {"alice"}}},
	}

	entries := []Entry{
		{DN: "cn=readers,ou=groups", Attributes: map[string][]Value{"member": {{Raw: "cn=alice,ou=people"}}}},
		{DN: "cn=writers,ou=groups", Attributes: map[string][]Value{"member": {{Raw: "cn=alice,ou=people"}}}},
	}
	ResolveJoins(s, entries, map[string]Query{"member": {Attributes: []string{"uid"}}})

	first := entries[0].Attributes["member"][0].Sub
	second := entries[1].Attributes["member"][0].Sub
	first["uid"] = []string{"mutated"}
	assert.Equal(t, []string{"alice"}, second["uid"], "cache hits must hand out copies")
}

func TestResolveJoinsFailureDropsValue(t *testing.T) {
	s := newMockSearcher()
	s.entries["cn=alice,ou=people"] = []ldap.RawEntry{
		{DN: "cn=alice,ou=people", Attributes: map[string][]string{"uid": {"alice"}}},
	}
	s.failures["cn=ghost,ou=people"] = fmt.Errorf("no such object")

	entries := []Entry{
		{DN: "cn=readers,ou=groups", Attributes: map[string][]Value{
			"member": {{Raw: "cn=ghost,ou=people"}, {Raw: "cn=alice,ou=people"}},
		}},
	}
	ResolveJoins(s, entries, map[string]Query{"member": {Attributes: []string{"uid"}}})

	// The unresolvable value is dropped, not fatal.
	values := entries[0].Attributes["member"]
	require.Len(t, values, 1)
	assert.Equal(t, "cn=alice,ou=people", values[0].Raw)
}

func TestResolveJoinsWithoutAttributes(t *testing.T) {
	s := newMockSearcher()
	entries := []Entry{
		{DN: "cn=readers,ou=groups", Attributes: map[string][]Value{
			"member": {{Raw: "cn=alice,ou=people"}},
		}},
	}
	ResolveJoins(s, entries, map[string]Query{"member": {}})

	// No attributes configured: no nested search at all.
	assert.Empty(t, s.searches)
	assert.Equal(t, []string{"cn=alice,ou=people"}, entries[0].Attributes["member"][0].Sub["dn"])
}
