package ldap

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
)

// Options holds the effective connection options, resolved in ldap.conf(3)
// order: system ldap.conf, ldaprc files, LDAP* environment variables, then
// explicit overrides from configuration.
type Options struct {
	URI      string
	Host     string
	Port     int `default:"389"`
	BindDN   string
	User     string
	Password string
	SASLMech string
	Timeout  time.Duration `default:"30s"`
}

// knownOptions lists the option names accepted from rc files, environment
// and configuration. Anything else is silently ignored, like libldap does.
var knownOptions = []string{
	"URI", "HOST", "PORT", "BINDDN", "USER", "PASSWORD", "SASL_MECH", "TIMEOUT",
}

func (o *Options) set(option, raw string) error {
	option = strings.ToUpper(option)
	if !slices.Contains(knownOptions, option) {
		return nil
	}
	switch option {
	case "URI":
		o.URI = raw
	case "HOST":
		o.Host = raw
	case "PORT":
		port, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("bad PORT value %q: %w", raw, err)
		}
		o.Port = port
	case "BINDDN":
		o.BindDN = raw
	case "USER":
		o.User = raw
	case "PASSWORD":
		o.Password = raw
	case "SASL_MECH":
		o.SASLMech = raw
	case "TIMEOUT":
		seconds, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("bad TIMEOUT value %q: %w", raw, err)
		}
		o.Timeout = time.Duration(seconds) * time.Second
	}
	return nil
}

// GatherOptions resolves connection options. environ holds the LDAP*
// variables (extra LDAPPASSWORD is supported); overrides come from the
// configuration file and win over everything else.
func GatherOptions(environ map[string]string, overrides map[string]string) (Options, error) {
	var options Options
	if err := defaults.Set(&options); err != nil {
		return options, err
	}

	if _, noinit := environ["LDAPNOINIT"]; noinit {
		slog.Debug("LDAPNOINIT defined. Disabled ldap.conf loading.")
	} else {
		for _, entry := range readRCFiles("/etc/ldap/ldap.conf", "ldaprc") {
			slog.Debug("Read LDAP option from file.", "option", entry.option, "path", entry.filename)
			if err := options.set(entry.option, entry.value); err != nil {
				return options, err
			}
		}
		for name, value := range environ {
			if !strings.HasPrefix(name, "LDAP") || strings.HasPrefix(name, "LDAP_") {
				continue
			}
			option := strings.TrimPrefix(name, "LDAP")
			slog.Debug("Read LDAP option from env.", "option", option)
			if err := options.set(option, value); err != nil {
				return options, err
			}
		}
	}

	for option, value := range overrides {
		if value == "" {
			continue
		}
		slog.Debug("Read LDAP option from YAML.", "option", strings.ToUpper(option))
		if err := options.set(option, value); err != nil {
			return options, err
		}
	}

	if options.URI == "" {
		options.URI = fmt.Sprintf("ldap://%s:%d", options.Host, options.Port)
	}
	if options.User != "" && options.SASLMech == "" {
		options.SASLMech = "DIGEST-MD5"
	}

	return options, nil
}

type rcEntry struct {
	filename string
	lineno   int
	option   string
	value    string
}

// readRCFiles reads ldap.conf-style files in libldap order: the system
// file, then ~/ldaprc, ~/.ldaprc and ./ldaprc. Unreadable files are
// skipped.
func readRCFiles(conf, rc string) []rcEntry {
	var candidates []string
	if conf != "" {
		candidates = append(candidates, conf)
	}
	if rc != "" {
		home, err := os.UserHomeDir()
		if err == nil {
			candidates = append(candidates, filepath.Join(home, rc), filepath.Join(home, "."+rc))
		}
		candidates = append(candidates, rc)
	}

	var entries []rcEntry
	seen := make(map[string]bool)
	for _, candidate := range candidates {
		path, err := filepath.Abs(candidate)
		if err != nil || seen[path] {
			continue
		}
		seen[path] = true
		fo, err := os.Open(path)
		if err != nil {
			slog.Debug("Ignoring rcfile.", "path", path, "err", err)
			continue
		}
		slog.Debug("Found rcfile.", "path", path)
		entries = append(entries, parseRC(fo, path)...)
		fo.Close()
	}
	return entries
}

func parseRC(fo io.Reader, filename string) []rcEntry {
	var entries []rcEntry
	scanner := bufio.NewScanner(fo)
	lineno := 0
	for scanner.Scan() {
		lineno++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		option, value, found := strings.Cut(line, " ")
		if !found {
			option, value, _ = strings.Cut(line, "\t")
		}
		entries = append(entries, rcEntry{
			filename: filename,
			lineno:   lineno,
			option:   option,
			value:    strings.TrimSpace(value),
		})
	}
	return entries
}
