package commands

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/satriahrh/voicememo/internal/config"
)

var (
	envFiles []string
	cfg      config.Config
	logger   *zap.Logger
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "voicememo",
	Short: "Voice memo storage and semantic search",
	Long: `voicememo stores spoken recordings as transcripts with embeddings and
finds them again from a spoken query.

Configuration comes from environment variables. Files given with --env-file
(default .env) are loaded first and never override variables already set.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(envFiles...)
		if err != nil {
			return err
		}
		logger, err = newLogger(cfg)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "env files to load (default .env)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(reconcileCmd)
	rootCmd.AddCommand(tokenCmd)
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	if cfg.IsDevelopment() {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
