package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version information - will be set at build time
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
	GoVersion = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// options are the persistent flags shared by every command
type options struct {
	configPath string
	idType     string
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "docmap",
		Short: "Inspect documents stored by the docmap object-document mapper",
		Long: `docmap maps Go structs to BSON documents and back.
This tool reads and removes stored documents in the configured store.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to the configuration file (default ./docmap.yaml)")
	rootCmd.PersistentFlags().StringVar(&opts.idType, "id-type", idTypeString, "identity type: string, objectid, int or uuid")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(newConfigCmd(opts))
	rootCmd.AddCommand(newGetCmd(opts))
	rootCmd.AddCommand(newDeleteCmd(opts))

	return rootCmd
}
