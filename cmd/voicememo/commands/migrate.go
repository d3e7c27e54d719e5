package commands

import (
	"github.com/spf13/cobra"

	"github.com/satriahrh/voicememo/internal/app"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the voice table",
	Long: `Create the vector extension and the voice table when missing.

Only storage settings are required; provider keys are not read.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		storage, err := app.OpenStorage(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer storage.Close()

		return storage.Migrate(ctx)
	},
}
