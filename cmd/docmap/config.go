package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/conduit-lang/docmap/internal/config"
)

func newConfigCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show the effective configuration",
		Long:  "Print the configuration after applying defaults, the config file and DOCMAP_ environment variables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			header := color.New(color.FgCyan, color.Bold)

			header.Fprintln(out, "mapping")
			fmt.Fprintf(out, "  store_nulls:       %t\n", cfg.Mapping.StoreNulls)
			fmt.Fprintf(out, "  store_empties:     %t\n", cfg.Mapping.StoreEmpties)
			fmt.Fprintf(out, "  ignore_finals:     %t\n", cfg.Mapping.IgnoreFinals)
			fmt.Fprintf(out, "  map_unmarked:      %t\n", cfg.Mapping.MapUnmarked)
			fmt.Fprintf(out, "  discriminator_key: %s\n", cfg.Mapping.DiscriminatorKey)

			header.Fprintln(out, "store")
			fmt.Fprintf(out, "  driver: %s\n", cfg.Store.Driver)
			switch cfg.Store.Driver {
			case config.DriverRedis:
				fmt.Fprintf(out, "  addr:   %s\n", cfg.Store.Redis.Addr)
				fmt.Fprintf(out, "  prefix: %s\n", cfg.Store.Redis.Prefix)
			case config.DriverPostgres, config.DriverSQLite:
				fmt.Fprintf(out, "  sql driver: %s\n", cfg.SQLDriverName())
				fmt.Fprintf(out, "  table:      %s\n", cfg.Store.SQL.Table)
			}

			header.Fprintln(out, "log")
			fmt.Fprintf(out, "  level: %s\n", cfg.Log.Level)
			return nil
		},
	}
}
