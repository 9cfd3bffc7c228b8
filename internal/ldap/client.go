package ldap

import (
	"log/slog"
	"net/url"
	"strings"

	"github.com/go-ldap/ldap/v3"
)

// RawEntry is one search result before any normalization.
type RawEntry struct {
	DN         string
	Attributes map[string][]string
}

// Client wraps a single bound connection. The sync pipeline is sequential,
// so one connection is enough for a whole run.
type Client struct {
	conn        *ldap.Conn
	options     Options
	connectOpts string // ldapsearch-style options echoed in debug logs
}

// Connect dials the configured URI and binds. SASL_MECH selects the bind
// flavor: simple bind by default, DIGEST-MD5 when a USER is set, GSSAPI via
// Kerberos.
func Connect(options Options) (*Client, error) {
	slog.Debug("Connecting to LDAP directory.", "uri", options.URI)
	conn, err := ldap.DialURL(options.URI)
	if err != nil {
		return nil, &QueryError{Operation: "connect", Cause: err}
	}
	conn.SetTimeout(options.Timeout)

	c := &Client{conn: conn, options: options}
	if err := c.bind(); err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}

func (c *Client) bind() error {
	var err error
	switch c.options.SASLMech {
	case "":
		c.connectOpts = " -x"
		if c.options.BindDN != "" {
			c.connectOpts += " -D " + c.options.BindDN
		}
		if c.options.Password != "" {
			c.connectOpts += " -W"
		}
		slog.Debug("Trying simple bind.")
		if c.options.BindDN == "" && c.options.Password == "" {
			err = c.conn.UnauthenticatedBind("")
		} else {
			err = c.conn.Bind(c.options.BindDN, c.options.Password)
		}
	case "DIGEST-MD5":
		c.connectOpts = " -Y DIGEST-MD5 -U " + c.options.User
		slog.Debug("Trying SASL DIGEST-MD5 auth.")
		host := c.host()
		err = c.conn.MD5Bind(host, c.options.User, c.options.Password)
	case "GSSAPI":
		c.connectOpts = " -Y GSSAPI"
		slog.Debug("Trying SASL GSSAPI auth.")
		err = gssapiBind(c.conn, c.options, c.host())
	default:
		return &QueryError{Operation: "bind", Cause: errUnmanagedMech(c.options.SASLMech)}
	}
	if err != nil {
		return &QueryError{Operation: "bind", Cause: err}
	}
	slog.Debug("Doing: ldapwhoami" + c.connectOpts)
	return nil
}

// host extracts the hostname from the effective URI, for SASL handshakes
// wanting a server name rather than a URI.
func (c *Client) host() string {
	parsed, err := url.Parse(c.options.URI)
	if err != nil || parsed.Hostname() == "" {
		return c.options.Host
	}
	return parsed.Hostname()
}

// Close terminates the connection. Safe to call on a nil client.
func (c *Client) Close() {
	if c == nil || c.conn == nil {
		return
	}
	c.conn.Close()
}

// Search runs one scoped search and flattens results. Transport or protocol
// failures come back as a QueryError.
func (c *Client) Search(base string, scope Scope, filter string, attributes []string) ([]RawEntry, error) {
	slog.Debug(
		"Doing: ldapsearch" + c.connectOpts +
			" -b " + base + " -s " + scope.String() +
			" '" + strings.ReplaceAll(filter, "\n", "") + "' " + strings.Join(attributes, " "))

	req := ldap.NewSearchRequest(
		base, scope.wire(), ldap.NeverDerefAliases,
		0, int(c.options.Timeout.Seconds()), false,
		filter, attributes, nil,
	)
	res, err := c.conn.Search(req)
	if err != nil {
		return nil, &QueryError{Operation: "search", Base: base, Filter: filter, Cause: err}
	}

	entries := make([]RawEntry, 0, len(res.Entries))
	for _, entry := range res.Entries {
		raw := RawEntry{DN: entry.DN, Attributes: make(map[string][]string, len(entry.Attributes))}
		for _, attribute := range entry.Attributes {
			raw.Attributes[attribute.Name] = append(raw.Attributes[attribute.Name], attribute.Values...)
		}
		entries = append(entries, raw)
	}
	return entries, nil
}

type errUnmanagedMech string

func (e errUnmanagedMech) Error() string {
	return "unmanaged SASL mech " + string(e)
}
