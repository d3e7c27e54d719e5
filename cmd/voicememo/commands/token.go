package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/satriahrh/voicememo/internal/auth"
)

var (
	clientID string
	tokenTTL = auth.DefaultTokenTTL
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a client bearer token",
	Long: `Sign a client token with API_JWT_SECRET. Requests to /api must carry it
as "Authorization: Bearer <token>" when the secret is configured.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.APIJWTSecret == "" {
			return errors.New("API_JWT_SECRET is not set")
		}
		authenticator, err := auth.NewAuthenticator(cfg.APIJWTSecret)
		if err != nil {
			return err
		}
		token, err := authenticator.GenerateClientToken(clientID, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&clientID, "client-id", "", "client identifier embedded in the token")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", auth.DefaultTokenTTL, "token lifetime")
	_ = tokenCmd.MarkFlagRequired("client-id")
}
