// Package postgres holds the cluster side of the synchronisation: the SQL
// renderer turning diff actions into queries, the catalog inspector and the
// query runner.
package postgres

// AllDatabases targets a query at every database of the cluster. The
// runner never sees it, ExpandQueries instantiates the query per database
// first.
const AllDatabases = "__all__"

// SyncQuery is one rendered SQL statement bound to a database. LogArgs
// feed the structured log line describing the query.
type SyncQuery struct {
	Description string
	Database    string
	Query       string
	LogArgs     []any
}

// ExpandQueries instantiates queries targeting AllDatabases once per
// database, preserving order otherwise.
func ExpandQueries(queries []SyncQuery, databases []string) []SyncQuery {
	out := make([]SyncQuery, 0, len(queries))
	for _, query := range queries {
		if query.Database != AllDatabases {
			out = append(out, query)
			continue
		}
		for _, database := range databases {
			expanded := query
			expanded.Database = database
			out = append(out, expanded)
		}
	}
	return out
}
