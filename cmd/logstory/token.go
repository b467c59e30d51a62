package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/logstory/logstory-go/internal/config"
	"github.com/logstory/logstory-go/internal/server"
)

var (
	tokenConfig  string
	tokenSubject string
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a bearer token for the analysis API",
	Long: `Issue a signed bearer token for one subject using the auth settings of
the server configuration. Uploads are private to their subject.

Examples:
  logstory token --config logstory.yaml --subject alice
  LOGSTORY_AUTH_SECRET=... logstory token --subject ci`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runToken(cmd.Context(), tokenConfig, tokenSubject, cmd.OutOrStdout())
	},
}

func init() {
	tokenCmd.Flags().StringVarP(&tokenConfig, "config", "c", "", "Config file (YAML)")
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "", "Token subject (upload owner)")
	_ = tokenCmd.MarkFlagRequired("subject")
	rootCmd.AddCommand(tokenCmd)
}

func runToken(ctx context.Context, configPath, subject string, out io.Writer) error {
	cfg, err := config.Load(ctx, configPath)
	if err != nil {
		return err
	}
	if !cfg.AuthEnabled() {
		return errors.New("authentication is disabled: set auth.secret or LOGSTORY_AUTH_SECRET")
	}
	auth, err := server.NewAuthenticator(cfg.Auth.Secret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	if err != nil {
		return err
	}
	tok, err := auth.Issue(subject)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, tok)
	return err
}
