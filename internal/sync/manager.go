package sync

import (
	"context"
	"log/slog"
	"maps"
	"slices"

	"github.com/lokenorlinjohannessen/ldap2pg/internal/directory"
	"github.com/lokenorlinjohannessen/ldap2pg/internal/postgres"
	"github.com/lokenorlinjohannessen/ldap2pg/internal/privileges"
	"github.com/lokenorlinjohannessen/ldap2pg/internal/role"
)

// Manager drives one synchronisation run: inspect the cluster, inspect the
// directory, diff, render and run the corrective queries. Roles first,
// then privileges, so grants always target existing roles.
type Manager struct {
	Searcher         directory.Searcher
	Inspector        postgres.Inspector
	Runner           postgres.Runner
	Privileges       map[string]postgres.Privilege
	PrivilegeAliases map[string][]string
	RolesBlacklist   []string
	FallbackOwner    string
}

// Sync runs the full synchronisation and returns the number of queries
// generated, zero meaning the cluster was already converged.
func (m *Manager) Sync(ctx context.Context, syncmap Map) (int, error) {
	slog.Info("Inspecting roles in Postgres cluster...")
	me, super, err := m.Inspector.FetchMe(ctx)
	if err != nil {
		return 0, err
	}
	// The session role must never drop itself.
	blacklist := slices.Clone(m.RolesBlacklist)
	if postgres.MatchPattern(me, blacklist) == "" {
		blacklist = append(blacklist, me)
	}
	if !super {
		slog.Warn("Running as non superuser.")
	}
	columns := role.AllowedColumns(super)

	databases, all, managed, err := m.Inspector.FetchRoles(ctx)
	if err != nil {
		return 0, err
	}
	all, managed = postgres.FilterRoles(all, managed, blacklist)
	restrictOptions(all, columns)
	restrictOptions(managed, columns)
	slog.Debug("Postgres roles inspection done.")

	wanted, wantedACL, err := InspectDirectory(m.Searcher, syncmap, columns)
	if err != nil {
		return 0, err
	}
	slog.Debug("LDAP inspection completed. Post processing.")
	if err := wanted.ResolveMembership(); err != nil {
		return 0, &UserError{Message: err.Error(), Cause: err}
	}

	owner := m.FallbackOwner
	if owner == "" {
		owner = me
	}
	count := 0
	queries := postgres.RenderRoleActions(role.Diff(all, managed, wanted), owner)
	n, err := m.Runner.RunQueries(ctx, postgres.ExpandQueries(queries, databases))
	count += n
	if err != nil {
		return count, err
	}

	if len(m.Privileges) == 0 {
		slog.Debug("No privileges defined. Skipping GRANT and REVOKE.")
		return m.report(count), nil
	}

	slog.Info("Inspecting GRANTs in Postgres cluster...")
	// Wanted roles count as managed here, to avoid requerying roles.
	managed.Update(wanted)
	if m.Runner.Dry() && count > 0 {
		slog.Warn("In dry mode, some owners are not created, their default privileges cannot be determined.")
	}
	topology, err := m.Inspector.FetchSchemas(ctx, databases)
	if err != nil {
		return count, err
	}
	actual, err := m.Inspector.FetchGrants(ctx, topology, m.Privileges, managed)
	if err != nil {
		return count, err
	}
	expanded, err := wantedACL.ExpandGrants(m.PrivilegeAliases, postgres.Scopes(m.Privileges), topology)
	if err != nil {
		return count, &UserError{Message: err.Error(), Cause: err}
	}
	desired := privileges.ACL{}
	for _, g := range expanded {
		if err := desired.Add(g); err != nil {
			return count, &UserError{Message: err.Error(), Cause: err}
		}
	}

	queries = postgres.RenderGrantActions(actual.Diff(desired, postgres.Names(m.Privileges)), m.Privileges)
	n, err = m.Runner.RunQueries(ctx, postgres.ExpandQueries(queries, slices.Sorted(maps.Keys(topology))))
	count += n
	if err != nil {
		return count, err
	}
	return m.report(count), nil
}

func (m *Manager) report(count int) int {
	switch {
	case count == 0:
		slog.Info("Nothing to do.")
	case count < 20:
		slog.Debug("Generated queries.", "count", count)
	default:
		slog.Info("Generated queries.", "count", count)
	}
	return count
}

func restrictOptions(s role.Set, columns []string) {
	for name, r := range s {
		r.Options = r.Options.Restrict(columns)
		s[name] = r
	}
}
