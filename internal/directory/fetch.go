package directory

import (
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/lokenorlinjohannessen/ldap2pg/internal/ldap"
)

// Searcher executes one scoped search against the directory transport.
type Searcher interface {
	Search(base string, scope ldap.Scope, filter string, attributes []string) ([]ldap.RawEntry, error)
}

// Query describes one scoped directory search, plus recursive joins keyed
// by attribute name. A join's Base is ignored: it is replaced by each value
// of the joined attribute.
type Query struct {
	Base       string
	Filter     string
	Attributes []string
	Scope      ldap.Scope
	Joins      map[string]Query
}

// Fetch executes the query and normalizes results: referral entries (empty
// DN) are discarded, attribute names are lowercased and values are checked
// for valid text.
func Fetch(s Searcher, q Query) ([]Entry, error) {
	raw, err := s.Search(q.Base, q.Scope, q.Filter, q.Attributes)
	if err != nil {
		return nil, fmt.Errorf("failed to query LDAP: %w", err)
	}
	slog.Debug("Got entries from LDAP.", "base", q.Base, "count", len(raw))

	entries := make([]Entry, 0, len(raw))
	for _, r := range raw {
		if r.DN == "" {
			slog.Debug("Discarding referral.", "entry", fmt.Sprintf("%.40v", r.Attributes))
			continue
		}
		entry := Entry{DN: r.DN, Attributes: make(map[string][]Value, len(r.Attributes)+1)}
		entry.Attributes["dn"] = []Value{{Raw: r.DN}}
		for name, values := range r.Attributes {
			name = strings.ToLower(name)
			for _, value := range values {
				if !utf8.ValidString(value) {
					return nil, &DecodeError{DN: r.DN, Attribute: name}
				}
				entry.Attributes[name] = append(entry.Attributes[name], Value{Raw: value})
			}
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
