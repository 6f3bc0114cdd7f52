package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/cloudflare/cloudflare-go"
	"github.com/go-logr/logr"
	"github.com/hashicorp/go-cleanhttp"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Travis-Britz/cfddns"
)

func newSetupCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Verify a Cloudflare API token and store it in the key file",
		Long: `setup prompts for a Cloudflare API token, checks that the token is active,
and writes it to the key file (--token-file) with 0600 permissions.
An existing key file is never overwritten.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := a.resolve(cmd.Flags())
			if err != nil {
				return err
			}
			if !stdinIsTerminal() {
				return errors.New("setup must be run from a terminal")
			}
			return runSetup(cmd.Context(), a.stdout, cfg, logger)
		},
	}
}

// newAPI returns a cloudflare-go client for the token, honouring the configured API URL and timeout.
func newAPI(token string, cfg config) (*cloudflare.API, error) {
	httpClient := cleanhttp.DefaultPooledClient()
	httpClient.Timeout = cfg.Timeout
	opts := []cloudflare.Option{cloudflare.HTTPClient(httpClient)}
	if cfg.APIURL != "" && cfg.APIURL != ddns.DefaultCloudflareAPI {
		opts = append(opts, cloudflare.BaseURL(cfg.APIURL))
	}
	api, err := cloudflare.NewWithAPIToken(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("error creating api client: %w", err)
	}
	return api, nil
}

func runSetup(ctx context.Context, out io.Writer, cfg config, logger logr.Logger) error {
	logger.Info("running setup")
	fmt.Fprintf(out, "Enter Cloudflare API Token: \n")
	bytekey, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return fmt.Errorf("runSetup: error reading from stdin: %w", err)
	}
	key := strings.TrimSpace(string(bytekey))
	if key == "" {
		return &ddns.MissingConfigError{Field: "api token"}
	}

	api, err := newAPI(key, cfg)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	logger.Info("verifying token")
	result, err := api.VerifyAPIToken(ctx)
	if err != nil {
		return fmt.Errorf("unable to verify api token: %w", err)
	}
	if result.Status != "active" {
		return fmt.Errorf("expected api token status to be \"active\"; got \"%s\"", result.Status)
	}
	logger.Info("token verified successfully")

	logger.Info("creating key file", "path", cfg.KeyFile)
	f, err := os.OpenFile(cfg.KeyFile, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("unable to create \"%s\": %w", cfg.KeyFile, err)
	}
	defer f.Close()
	if _, err := fmt.Fprintln(f, key); err != nil {
		return fmt.Errorf("writing \"%s\": %w", cfg.KeyFile, err)
	}
	logger.Info("token written", "path", cfg.KeyFile)
	return nil
}
