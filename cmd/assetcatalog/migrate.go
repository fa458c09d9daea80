package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/zeebo/errs"

	"github.com/nainya/assetcatalog/internal/backend"
	"github.com/nainya/assetcatalog/internal/config"
	"github.com/nainya/assetcatalog/pkg/sqlstore"
)

var (
	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "manage the SQL schema",
	}
	migrateUpCmd = &cobra.Command{
		Use:   "up",
		Short: "apply every pending schema step",
		Args:  cobra.NoArgs,
		RunE:  migrateUp,
	}
	migrateDownCmd = &cobra.Command{
		Use:   "down [VERSION]",
		Short: "revert the schema to VERSION, or remove it entirely",
		Args:  cobra.MaximumNArgs(1),
		RunE:  migrateDown,
	}
	migrateVersionCmd = &cobra.Command{
		Use:   "version",
		Short: "print the applied and latest schema versions",
		Args:  cobra.NoArgs,
		RunE:  migrateVersion,
	}
)

func init() {
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateVersionCmd)
	rootCmd.AddCommand(migrateCmd)
}

func withSQLStore(cmd *cobra.Command, fn func(s *sqlstore.Store) error) (err error) {
	if cfg.Backend != config.BackendSQL {
		return Error.New("migrations apply to the %q backend only", config.BackendSQL)
	}
	s, err := backend.OpenSQL(cmd.Context(), cfg, log, true)
	if err != nil {
		return err
	}
	defer func() { err = errs.Combine(err, s.Close()) }()
	return fn(s)
}

func migrateUp(cmd *cobra.Command, args []string) error {
	return withSQLStore(cmd, func(s *sqlstore.Store) error {
		return s.MigrateToLatest(cmd.Context())
	})
}

func migrateDown(cmd *cobra.Command, args []string) error {
	target := -1
	if len(args) == 1 {
		v, err := strconv.Atoi(args[0])
		if err != nil || v < -1 {
			return Error.New("invalid version %q", args[0])
		}
		target = v
	}
	return withSQLStore(cmd, func(s *sqlstore.Store) error {
		current, err := s.SchemaVersion(cmd.Context())
		if err != nil {
			return err
		}
		if target > current {
			return Error.New("version %d is above the applied version %d", target, current)
		}
		return s.MigrateTo(cmd.Context(), target)
	})
}

func migrateVersion(cmd *cobra.Command, args []string) error {
	return withSQLStore(cmd, func(s *sqlstore.Store) error {
		current, err := s.SchemaVersion(cmd.Context())
		if err != nil {
			return err
		}
		latest := s.LatestSchemaVersion()
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "applied %d\nlatest %d\n", current, latest)
		return err
	})
}
