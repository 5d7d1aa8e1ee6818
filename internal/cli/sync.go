package cli

import (
	"github.com/spf13/cobra"

	"github.com/rocketDuck/folivora/internal/app"
)

// syncCommand runs a single changelog sync pass and exits. Useful for
// cron-less deployments and for debugging.
func syncCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run one changelog sync pass",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(app.Options{})
			if err != nil {
				return err
			}
			defer a.Close()
			return a.RunSync(cmd.Context())
		},
	}
}
