package ldap

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-ldap/ldap/v3"
	"github.com/go-ldap/ldap/v3/gssapi"
	krb5client "github.com/jcmturner/gokrb5/v8/client"
)

// gssapiBind performs a SASL GSSAPI bind using whatever Kerberos
// credentials are reachable: credential cache first, then keytab, then the
// configured password.
func gssapiBind(conn *ldap.Conn, options Options, host string) error {
	client, err := newGSSAPIClient(options)
	if err != nil {
		return fmt.Errorf("kerberos: %w", err)
	}
	defer func() {
		_ = client.DeleteSecContext()
	}()

	if host == "" {
		return fmt.Errorf("kerberos: no hostname to build the service principal from")
	}
	spn := "ldap/" + host

	return conn.GSSAPIBind(client, spn, "")
}

func newGSSAPIClient(options Options) (ldap.GSSAPIClient, error) {
	krb5conf := os.Getenv("KRB5_CONFIG")
	if krb5conf == "" {
		krb5conf = "/etc/krb5.conf"
	}

	if ccache := defaultCCachePath(); fileExists(ccache) {
		return gssapi.NewClientFromCCache(ccache, krb5conf, krb5client.DisablePAFXFAST(true))
	}

	principal, realm := splitPrincipal(options.User)
	if principal == "" {
		return nil, fmt.Errorf("no credential cache and no USER to authenticate as")
	}
	if realm == "" {
		return nil, fmt.Errorf("USER %q does not carry a realm", options.User)
	}

	if keytab := defaultKeytabPath(); fileExists(keytab) {
		return gssapi.NewClientWithKeytab(principal, realm, keytab, krb5conf, krb5client.DisablePAFXFAST(true))
	}

	if options.Password != "" {
		return gssapi.NewClientWithPassword(principal, realm, options.Password, krb5conf, krb5client.DisablePAFXFAST(true))
	}

	return nil, fmt.Errorf("no credential cache, keytab or password available")
}

func splitPrincipal(user string) (principal, realm string) {
	principal, realm, _ = strings.Cut(user, "@")
	return principal, realm
}

func defaultCCachePath() string {
	if ccache := os.Getenv("KRB5CCNAME"); ccache != "" {
		return strings.TrimPrefix(ccache, "FILE:")
	}
	return fmt.Sprintf("/tmp/krb5cc_%d", os.Getuid())
}

func defaultKeytabPath() string {
	if keytab := os.Getenv("KRB5_KTNAME"); keytab != "" {
		return strings.TrimPrefix(keytab, "FILE:")
	}
	return "/etc/krb5.keytab"
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	fo, err := os.Open(path)
	if err != nil {
		return false
	}
	fo.Close()
	return true
}
