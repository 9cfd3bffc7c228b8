package directory

import "fmt"

// DecodeError reports malformed text in a directory response. Fatal: a
// directory serving undecodable attribute values cannot be mapped reliably.
type DecodeError struct {
	DN        string
	Attribute string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode data from %q: attribute %s is not valid UTF-8", e.DN, e.Attribute)
}

// RDNError reports a reference to an RDN absent from a DN-valued attribute.
// Rules decide whether this is fatal through their on_unexpected_dn policy.
type RDNError struct {
	RDN string
	DN  string
}

func (e *RDNError) Error() string {
	return fmt.Sprintf("unknown RDN %s in %q", e.RDN, e.DN)
}
