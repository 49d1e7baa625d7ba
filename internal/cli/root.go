package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

const version = "0.1.0"

// rootFlags are the global flags shared by every command
type rootFlags struct {
	cfgFile     string
	logLevel    string
	metricsAddr string
}

// NewRootCmd builds the command tree. Each call returns fresh flag state.
func NewRootCmd() *cobra.Command {
	flags := &rootFlags{}

	rootCmd := &cobra.Command{
		Use:   "recap",
		Short: "Recap - agentic conversation compaction",
		Long: `Recap replaces the older part of a long agent conversation with a
structured summary. A model explores the conversation through read-only
shell commands over a virtual file snapshot and writes the summary when it
has seen enough.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&flags.cfgFile, "config", "", "config file (default is $HOME/.recap/recap.json)")
	rootCmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level (debug, info, warn, error); overrides the config")
	rootCmd.PersistentFlags().StringVar(&flags.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")

	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s" .Version}}
`)

	rootCmd.AddCommand(
		newCompactCmd(flags),
		newAnalyzeCmd(flags),
		newModelsCmd(flags),
		newSessionsCmd(flags),
		newDiagnosticsCmd(flags),
		newConfigCmd(flags),
		newVersionCmd(),
	)

	return rootCmd
}

// Execute runs the command tree. This is called by main.main().
func Execute() error {
	return NewRootCmd().Execute()
}

// GetVersion returns the current version
func GetVersion() string {
	return version
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "recap version %s\n", version)
		},
	}
}
