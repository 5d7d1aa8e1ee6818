package cli

import (
	"github.com/spf13/cobra"

	"github.com/rocketDuck/folivora/internal/app"
)

// resyncCommand forces a full re-evaluation of one project's
// dependencies, including version history backfill.
func resyncCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "resync <project-slug>",
		Short: "Resync a single project against the index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(app.Options{})
			if err != nil {
				return err
			}
			defer a.Close()
			return a.RunResync(cmd.Context(), args[0])
		},
	}
}
