// Package role models wanted and actual PostgreSQL roles: declarations,
// merge semantics, membership closure and the role diff.
package role

import (
	"maps"
	"slices"

	"github.com/creasty/defaults"
)

// Columns lists the managed role option columns, named after CREATE ROLE
// keywords. SuperColumns can only be inspected and altered by a superuser
// session; a non-superuser run drops them from comparison scope.
var (
	Columns = []string{
		"SUPERUSER", "CREATEDB", "CREATEROLE", "INHERIT",
		"LOGIN", "REPLICATION", "BYPASSRLS", "CONNECTION LIMIT",
	}
	SuperColumns = []string{"SUPERUSER", "REPLICATION", "BYPASSRLS"}
)

// AllowedColumns returns the option columns a session may manage.
func AllowedColumns(super bool) []string {
	if super {
		return Columns
	}
	columns := make([]string, 0, len(Columns))
	for _, column := range Columns {
		if !slices.Contains(SuperColumns, column) {
			columns = append(columns, column)
		}
	}
	return columns
}

// Options holds explicitly declared role options, keyed by column name.
// Unset options stay absent until FillWithDefaults.
type Options map[string]any

type optionDefaults struct {
	Superuser       bool `default:"false"`
	CreateDB        bool `default:"false"`
	CreateRole      bool `default:"false"`
	Inherit         bool `default:"true"`
	Login           bool `default:"false"`
	Replication     bool `default:"false"`
	BypassRLS       bool `default:"false"`
	ConnectionLimit int  `default:"-1"`
}

var defaultOptions = buildDefaultOptions()

func buildDefaultOptions() Options {
	var d optionDefaults
	if err := defaults.Set(&d); err != nil {
		panic(err)
	}
	return Options{
		"SUPERUSER":        d.Superuser,
		"CREATEDB":         d.CreateDB,
		"CREATEROLE":       d.CreateRole,
		"INHERIT":          d.Inherit,
		"LOGIN":            d.Login,
		"REPLICATION":      d.Replication,
		"BYPASSRLS":        d.BypassRLS,
		"CONNECTION LIMIT": d.ConnectionLimit,
	}
}

// Equal reports structural equality of the declared option sets. Two
// declarations of one role must agree exactly; partial overlaps are
// conflicts, not merges.
func (o Options) Equal(other Options) bool {
	if len(o) != len(other) {
		return false
	}
	for column, value := range o {
		otherValue, ok := other[column]
		if !ok || otherValue != value {
			return false
		}
	}
	return true
}

func (o Options) Clone() Options {
	if o == nil {
		return Options{}
	}
	return maps.Clone(o)
}

// FillWithDefaults completes the declaration with default values for every
// allowed column left unset, so diffing always compares full option sets.
func (o Options) FillWithDefaults(columns []string) {
	for _, column := range columns {
		if _, ok := o[column]; !ok {
			o[column] = defaultOptions[column]
		}
	}
}

// Restrict drops options outside the allowed columns, aligning actual
// state with what a non-superuser session may manage.
func (o Options) Restrict(columns []string) Options {
	restricted := make(Options, len(columns))
	for _, column := range columns {
		if value, ok := o[column]; ok {
			restricted[column] = value
		}
	}
	return restricted
}
