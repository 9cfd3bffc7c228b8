package ldap

import (
	"fmt"

	"github.com/go-ldap/ldap/v3"
)

// QueryError reports a failed directory operation. Directory unavailability
// aborts a sync run; there is no retry.
type QueryError struct {
	Operation string // "connect", "bind" or "search"
	Base      string // search base, when relevant
	Filter    string // search filter, when relevant
	Cause     error
}

func (e *QueryError) Error() string {
	if e.Base != "" {
		return fmt.Sprintf("failed to query LDAP base %q: %s", e.Base, e.Cause)
	}
	return fmt.Sprintf("LDAP %s failed: %s", e.Operation, e.Cause)
}

func (e *QueryError) Unwrap() error {
	return e.Cause
}

// ResultCode extracts the LDAP result code from the underlying error, or
// zero when the failure happened below the protocol.
func (e *QueryError) ResultCode() uint16 {
	if ldapErr, ok := e.Cause.(*ldap.Error); ok {
		return ldapErr.ResultCode
	}
	return 0
}
