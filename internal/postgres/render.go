package postgres

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/lokenorlinjohannessen/ldap2pg/internal/privileges"
	"github.com/lokenorlinjohannessen/ldap2pg/internal/role"
)

func identifier(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func literal(value string) string {
	return "'" + strings.ReplaceAll(value, "'", "''") + "'"
}

// renderOptions renders an option set as CREATE ROLE keywords, in
// canonical column order.
func renderOptions(options role.Options) string {
	var b strings.Builder
	for _, column := range role.Columns {
		value, ok := options[column]
		if !ok {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		switch v := value.(type) {
		case bool:
			if !v {
				b.WriteString("NO")
			}
			b.WriteString(column)
		case int:
			fmt.Fprintf(&b, "%s %d", column, v)
		}
	}
	return b.String()
}

// RenderRoleActions turns role diff actions into SQL. Queries land on the
// default database, except object cleanup before a drop which targets
// every database. fallbackOwner receives the objects of dropped roles.
func RenderRoleActions(actions []role.Action, fallbackOwner string) []SyncQuery {
	var queries []SyncQuery
	for _, action := range actions {
		switch action.Kind {
		case role.CreateRole:
			queries = append(queries, renderCreate(action.Wanted)...)
		case role.AlterRole:
			queries = append(queries, renderAlter(action.Current, action.Wanted)...)
		case role.DropRole:
			queries = append(queries, renderDrop(action.Current, fallbackOwner)...)
		}
	}
	return queries
}

func renderCreate(wanted role.Role) []SyncQuery {
	create := fmt.Sprintf("CREATE ROLE %s", identifier(wanted.Name))
	if options := renderOptions(wanted.Options); options != "" {
		create += " WITH " + options
	}
	queries := []SyncQuery{{
		Description: "Create role.",
		Query:       create + ";",
		LogArgs:     []any{"role", wanted.Name},
	}}
	for _, member := range wanted.Members {
		queries = append(queries, SyncQuery{
			Description: "Add missing member.",
			Query:       fmt.Sprintf("GRANT %s TO %s;", identifier(wanted.Name), identifier(member)),
			LogArgs:     []any{"role", wanted.Name, "member", member},
		})
	}
	if wanted.Comment != "" {
		queries = append(queries, renderComment(wanted))
	}
	return queries
}

func renderAlter(current, wanted role.Role) []SyncQuery {
	var queries []SyncQuery
	if !current.Options.Equal(wanted.Options) {
		queries = append(queries, SyncQuery{
			Description: "Alter role options.",
			Query:       fmt.Sprintf("ALTER ROLE %s WITH %s;", identifier(wanted.Name), renderOptions(wanted.Options)),
			LogArgs:     []any{"role", wanted.Name},
		})
	}
	for _, member := range wanted.Members {
		if slices.Contains(current.Members, member) {
			continue
		}
		queries = append(queries, SyncQuery{
			Description: "Add missing member.",
			Query:       fmt.Sprintf("GRANT %s TO %s;", identifier(wanted.Name), identifier(member)),
			LogArgs:     []any{"role", wanted.Name, "member", member},
		})
	}
	for _, member := range current.Members {
		if slices.Contains(wanted.Members, member) {
			continue
		}
		queries = append(queries, SyncQuery{
			Description: "Delete spurious member.",
			Query:       fmt.Sprintf("REVOKE %s FROM %s;", identifier(wanted.Name), identifier(member)),
			LogArgs:     []any{"role", wanted.Name, "member", member},
		})
	}
	if current.Comment != wanted.Comment {
		queries = append(queries, renderComment(wanted))
	}
	return queries
}

func renderComment(wanted role.Role) SyncQuery {
	return SyncQuery{
		Description: "Set role comment.",
		Query:       fmt.Sprintf("COMMENT ON ROLE %s IS %s;", identifier(wanted.Name), literal(wanted.Comment)),
		LogArgs:     []any{"role", wanted.Name},
	}
}

func renderDrop(current role.Role, fallbackOwner string) []SyncQuery {
	return []SyncQuery{
		{
			Description: "Reassign objects and purge ACL.",
			Database:    AllDatabases,
			Query: fmt.Sprintf(
				"REASSIGN OWNED BY %s TO %s; DROP OWNED BY %s;",
				identifier(current.Name), identifier(fallbackOwner), identifier(current.Name),
			),
			LogArgs: []any{"role", current.Name, "owner", fallbackOwner},
		},
		{
			Description: "Drop role.",
			Query:       fmt.Sprintf("DROP ROLE %s;", identifier(current.Name)),
			LogArgs:     []any{"role", current.Name},
		},
	}
}

// RenderGrantActions turns grant diff actions into SQL, each query bound
// to the database of its concrete grant.
func RenderGrantActions(actions []privileges.Action, registry map[string]Privilege) []SyncQuery {
	var queries []SyncQuery
	for _, action := range actions {
		privilege, ok := registry[action.Grant.Privilege]
		if !ok {
			slog.Debug("Skipping grant of unknown privilege.", "privilege", action.Grant.Privilege)
			continue
		}
		statement := privilege.Grant
		description := "Grant privilege."
		if action.Kind == privileges.DoRevoke {
			statement = privilege.Revoke
			description = "Revoke privilege."
		}
		replacer := strings.NewReplacer(
			"{database}", identifier(action.Grant.Database()),
			"{schema}", identifier(action.Grant.Schema()),
			"{role}", identifier(action.Grant.Role),
		)
		queries = append(queries, SyncQuery{
			Description: description,
			Database:    action.Grant.Database(),
			Query:       replacer.Replace(statement),
			LogArgs:     []any{"grant", action.Grant.String()},
		})
	}
	return queries
}
