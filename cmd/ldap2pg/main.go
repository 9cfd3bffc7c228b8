// Package main is the entry point for the ldap2pg binary.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lokenorlinjohannessen/ldap2pg/internal/config"
	"github.com/lokenorlinjohannessen/ldap2pg/internal/directory"
	"github.com/lokenorlinjohannessen/ldap2pg/internal/ldap"
	"github.com/lokenorlinjohannessen/ldap2pg/internal/postgres"
	"github.com/lokenorlinjohannessen/ldap2pg/internal/sync"
)

func main() {
	os.Exit(execute())
}

func execute() int {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		var pending pendingChangesError
		if errors.As(err, &pending) {
			slog.Warn("Changes pending.", "count", int(pending))
			return 1
		}
		slog.Error("Fatal error.", "err", err)
		return 1
	}
	return 0
}

// pendingChangesError signals --check failure: the run generated queries.
type pendingChangesError int

func (e pendingChangesError) Error() string {
	return fmt.Sprintf("%d queries pending", int(e))
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		dryRun     bool
		real       bool
		check      bool
		verbose    bool
		quiet      bool
	)

	cmd := &cobra.Command{
		Use:           "ldap2pg",
		Short:         "Synchronize PostgreSQL roles and privileges from LDAP",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			setupLogging(verbose, quiet)
			if real {
				dryRun = false
			}
			return run(cmd.Context(), configPath, dryRun, check)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "ldap2pg.yml", "path to the configuration file")
	cmd.Flags().BoolVar(&dryRun, "dry-run", true, "do not execute queries, only log them")
	cmd.Flags().BoolVar(&real, "real", false, "execute queries for real")
	cmd.Flags().BoolVar(&check, "check", false, "exit 1 when changes are pending")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "only log warnings and errors")
	return cmd
}

func setupLogging(verbose, quiet bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	} else if quiet {
		level = slog.LevelWarn
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

func run(ctx context.Context, configPath string, dryRun, check bool) error {
	c, err := config.Load(configPath)
	if err != nil {
		return err
	}

	var searcher directory.Searcher
	if needsDirectory(c.SyncMap) {
		options, err := ldap.GatherOptions(environMap(), c.LDAP.Overrides())
		if err != nil {
			return err
		}
		client, err := ldap.Connect(options)
		if err != nil {
			return err
		}
		defer client.Close()
		searcher = client
	}

	conns := postgres.NewConns(c.Postgres.DSN)
	defer conns.Close(ctx)

	privilegeRegistry, err := c.ManagedPrivileges()
	if err != nil {
		return err
	}
	manager := sync.Manager{
		Searcher: searcher,
		Inspector: &postgres.ClusterInspector{
			Conns:             conns,
			ManagedRolesQuery: c.Postgres.ManagedRolesQuery,
			SchemasQuery:      c.Postgres.SchemasQuery,
		},
		Runner:           &postgres.PGRunner{Conns: conns, DryRun: dryRun},
		Privileges:       privilegeRegistry,
		PrivilegeAliases: c.Privileges,
		RolesBlacklist:   c.Postgres.RolesBlacklist,
		FallbackOwner:    c.Postgres.FallbackOwner,
	}

	if dryRun {
		slog.Info("Dry run. Postgres instance will be untouched.")
	} else {
		slog.Info("Real mode. Postgres instance will be modified.")
	}
	count, err := manager.Sync(ctx, c.SyncMap)
	if err != nil {
		return err
	}
	if check && count > 0 {
		return pendingChangesError(count)
	}
	return nil
}

// needsDirectory reports whether any mapping actually queries LDAP. A
// purely static map runs without a directory connection.
func needsDirectory(syncmap sync.Map) bool {
	for _, mapping := range syncmap {
		if mapping.Query != nil {
			return true
		}
	}
	return false
}

func environMap() map[string]string {
	environ := map[string]string{}
	for _, kv := range os.Environ() {
		name, value, _ := strings.Cut(kv, "=")
		environ[name] = value
	}
	return environ
}
