// Package config loads the YAML configuration file: the ldap and postgres
// sections, privilege alias groups and the synchronisation map.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"reflect"
	"slices"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-viper/mapstructure/v2"
	"gopkg.in/yaml.v3"

	"github.com/lokenorlinjohannessen/ldap2pg/internal/ldap"
	"github.com/lokenorlinjohannessen/ldap2pg/internal/postgres"
	"github.com/lokenorlinjohannessen/ldap2pg/internal/role"
	"github.com/lokenorlinjohannessen/ldap2pg/internal/sync"
)

// CurrentVersion is the accepted configuration file format version.
const CurrentVersion = 5

// Config is the loaded and validated configuration file.
type Config struct {
	Version    int                 `mapstructure:"version"`
	LDAP       LDAPSection         `mapstructure:"ldap"`
	Postgres   PostgresSection     `mapstructure:"postgres"`
	Privileges map[string][]string `mapstructure:"privileges"`
	SyncMap    sync.Map            `mapstructure:"sync_map"`
}

// LDAPSection carries connection option overrides. They win over ldaprc
// files and LDAP* environment variables.
type LDAPSection struct {
	URI      string `mapstructure:"uri"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	BindDN   string `mapstructure:"binddn"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SASLMech string `mapstructure:"sasl_mech"`
	Timeout  string `mapstructure:"timeout"`
}

// Overrides maps the section onto option names accepted by
// ldap.GatherOptions. Empty values are skipped there.
func (s LDAPSection) Overrides() map[string]string {
	return map[string]string{
		"URI":       s.URI,
		"HOST":      s.Host,
		"PORT":      s.Port,
		"BINDDN":    s.BindDN,
		"USER":      s.User,
		"PASSWORD":  s.Password,
		"SASL_MECH": s.SASLMech,
		"TIMEOUT":   s.Timeout,
	}
}

// PostgresSection configures cluster access and inspection.
type PostgresSection struct {
	DSN               string   `mapstructure:"dsn"`
	FallbackOwner     string   `mapstructure:"fallback_owner"`
	ManagedRolesQuery string   `mapstructure:"managed_roles_query"`
	SchemasQuery      string   `mapstructure:"schemas_query"`
	RolesBlacklist    []string `mapstructure:"roles_blacklist" default:"[\"postgres\", \"pg_*\"]"`
}

// Load reads, decodes and validates the configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration: %w", err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("bad configuration %s: %w", path, err)
	}
	return c, nil
}

// Parse decodes a configuration document. The YAML goes through a loose
// map first, then mapstructure normalizes it: scalars where lists are
// expected wrap, scope strings parse, role options accept string, list and
// map forms. Unknown keys only warn.
func Parse(data []byte) (*Config, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("bad YAML: %w", err)
	}
	if raw == nil {
		raw = map[string]any{}
	}

	c := &Config{}
	if err := defaults.Set(c); err != nil {
		return nil, err
	}

	var metadata mapstructure.Metadata
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           c,
		Metadata:         &metadata,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			scopeHook, roleOptionsHook,
		),
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, err
	}
	for _, key := range metadata.Unused {
		slog.Warn("Unknown configuration key.", "key", key)
	}

	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) validate() error {
	if c.Version == 0 {
		c.Version = CurrentVersion
	}
	if c.Version != CurrentVersion {
		return fmt.Errorf("unsupported configuration version %d", c.Version)
	}
	for i, mapping := range c.SyncMap {
		if len(mapping.Roles) == 0 && len(mapping.Grants) == 0 {
			return fmt.Errorf("sync_map item %d has neither roles nor grant", i)
		}
		for _, rule := range mapping.Roles {
			if len(rule.Names) == 0 {
				return fmt.Errorf("sync_map item %d: role rule without names", i)
			}
			switch rule.OnUnexpectedDN {
			case "", "fail", "warn", "ignore":
			default:
				return fmt.Errorf("sync_map item %d: bad on_unexpected_dn %q", i, rule.OnUnexpectedDN)
			}
		}
		for _, rule := range mapping.Grants {
			if rule.Privilege == "" {
				return fmt.Errorf("sync_map item %d: grant rule without privilege", i)
			}
			if len(rule.Roles) == 0 {
				return fmt.Errorf("sync_map item %d: grant rule without roles", i)
			}
		}
	}
	return nil
}

// ManagedPrivileges resolves the configured alias groups against the
// builtin registry: every builtin privilege reachable from a group becomes
// managed. Unknown names are fatal.
func (c *Config) ManagedPrivileges() (map[string]postgres.Privilege, error) {
	managed := map[string]postgres.Privilege{}
	seen := map[string]bool{}
	var frontier []string
	for group := range c.Privileges {
		frontier = append(frontier, group)
	}
	for len(frontier) > 0 {
		name := frontier[0]
		frontier = frontier[1:]
		if seen[name] {
			continue
		}
		seen[name] = true
		if members, ok := c.Privileges[name]; ok {
			frontier = append(frontier, members...)
			continue
		}
		privilege, ok := postgres.BuiltinPrivileges[name]
		if !ok {
			return nil, fmt.Errorf("unknown privilege %s", name)
		}
		managed[name] = privilege
	}
	return managed, nil
}

func scopeHook(from, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to != reflect.TypeOf(ldap.Scope(0)) {
		return data, nil
	}
	return ldap.ParseScope(data.(string))
}

// roleOptionsHook accepts the three YAML forms of role options: a map of
// column to value, a keyword string like "LOGIN NOSUPERUSER" and a list of
// such keywords.
func roleOptionsHook(from, to reflect.Type, data any) (any, error) {
	if to != reflect.TypeOf(role.Options(nil)) {
		return data, nil
	}
	switch v := data.(type) {
	case string:
		return parseOptionWords(strings.Fields(v))
	case []any:
		var words []string
		for _, item := range v {
			word, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("bad role option %v", item)
			}
			words = append(words, strings.Fields(word)...)
		}
		return parseOptionWords(words)
	case map[string]any:
		options := role.Options{}
		for column, value := range v {
			options[strings.ToUpper(column)] = value
		}
		return options, nil
	}
	return data, nil
}

func parseOptionWords(words []string) (role.Options, error) {
	options := role.Options{}
	for _, word := range words {
		word = strings.ToUpper(word)
		column, value := word, true
		if negated := strings.TrimPrefix(word, "NO"); negated != word {
			column, value = negated, false
		}
		if !slices.Contains(role.Columns, column) {
			return nil, fmt.Errorf("unknown role option %s", word)
		}
		options[column] = value
	}
	return options, nil
}
