package cli

import (
	"github.com/spf13/cobra"

	"github.com/rocketDuck/folivora/internal/app"
)

// bootstrapCommand seeds a fresh installation: the changelog checkpoint
// is set to now and the full package name list is imported without
// version history.
func bootstrapCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "bootstrap",
		Short: "Import the full package list and reset the sync checkpoint",
		Long: `Resets the changelog checkpoint to the current time and imports the
full package name list from the index. Version history is not fetched
up front; it is backfilled lazily when a package is first pinned.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(app.Options{})
			if err != nil {
				return err
			}
			defer a.Close()
			return a.RunBootstrap(cmd.Context())
		},
	}
}
