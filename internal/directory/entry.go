// Package directory retrieves entries from the LDAP source and expands
// them: normalization, recursive attribute joins and rule-template
// expansion against entry attributes.
package directory

// Entry is one record from the directory, keyed by distinguished name.
// Attribute names are lowercased at fetch time; the DN itself is also
// exposed as the "dn" attribute.
type Entry struct {
	DN         string
	Attributes map[string][]Value
}

// Value is a single attribute value, optionally carrying sub-attributes
// resolved by a join on that attribute.
type Value struct {
	Raw string
	Sub map[string][]string
}

func (e *Entry) values(attribute string) ([]Value, bool) {
	values, ok := e.Attributes[attribute]
	return values, ok
}
