package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/satriahrh/voicememo/internal/app"
)

var prune bool

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Compare stored records with archived audio",
	Long: `List voice records whose audio is missing from the archive and archived
files no record refers to. The report is printed as JSON.

With --prune, unreferenced files older than ORPHAN_GRACE are deleted.
Records are never deleted.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		storage, err := app.OpenStorage(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer storage.Close()

		report, err := storage.Reconciler.Reconcile(ctx, prune)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
		if !report.Consistent() && !prune {
			fmt.Fprintln(os.Stderr, "Archive and store disagree; rerun with --prune to delete orphan files")
		}
		return nil
	},
}

func init() {
	reconcileCmd.Flags().BoolVar(&prune, "prune", false, "delete orphan archive files past the grace period")
}
