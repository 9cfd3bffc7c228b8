package ldap

import (
	"fmt"

	"github.com/go-ldap/ldap/v3"
)

// Scope identifies an LDAP search scope, as spelled in configuration or in
// ldapsearch -s. The zero value is subtree, the usual default.
type Scope int

const (
	ScopeSubtree Scope = iota
	ScopeBase
	ScopeOneLevel
)

// wire translates to the protocol scope value.
func (s Scope) wire() int {
	switch s {
	case ScopeBase:
		return ldap.ScopeBaseObject
	case ScopeOneLevel:
		return ldap.ScopeSingleLevel
	}
	return ldap.ScopeWholeSubtree
}

var scopes = map[string]Scope{
	"base": ScopeBase,
	"one":  ScopeOneLevel,
	"sub":  ScopeSubtree,
}

// ParseScope translates a configuration scope name. Subtree is the usual
// default and what ldapsearch uses when -s is omitted.
func ParseScope(raw string) (Scope, error) {
	scope, ok := scopes[raw]
	if !ok {
		return ScopeSubtree, fmt.Errorf("unknown scope %q", raw)
	}
	return scope, nil
}

func (s Scope) String() string {
	for name, scope := range scopes {
		if scope == s {
			return name
		}
	}
	return "unknown"
}
