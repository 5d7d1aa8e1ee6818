// Package cli implements the folivora command-line interface.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rocketDuck/folivora/internal/app"
	"github.com/rocketDuck/folivora/internal/config"
)

var (
	// cfgFile holds the path to the configuration file.
	cfgFile string

	// rootCmd represents the root command for the folivora CLI.
	rootCmd = &cobra.Command{
		Use:   "folivora",
		Short: "Dependency update tracker",
		Long:  `Tracks pinned project dependencies against a package index and notifies when updates become available.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
)

// Execute runs the root command.
func Execute() error {
	return rootCmd.ExecuteContext(context.Background())
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile,
		"config",
		"",
		"config file (default is ./config.yml, or $CONFIG_PATH)",
	)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("folivora version %s\n", Version)
		},
	})

	rootCmd.AddCommand(serveCommand())
	rootCmd.AddCommand(syncCommand())
	rootCmd.AddCommand(resyncCommand())
	rootCmd.AddCommand(bootstrapCommand())
}

// Version is overridden at build time via -ldflags.
var Version = "dev"

// loadApp loads configuration and wires the application.
func loadApp(opts app.Options) (*app.App, error) {
	path := cfgFile
	if path == "" {
		path = config.Path()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return app.New(cfg, opts)
}
