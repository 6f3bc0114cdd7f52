package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-logr/logr"
	"github.com/hashicorp/go-cleanhttp"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/Travis-Britz/cfddns"
)

// stdinIsTerminal reports whether setup can prompt for a token.
var stdinIsTerminal = func() bool { return term.IsTerminal(int(os.Stdin.Fd())) }

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

// app carries the state shared by the root command and its subcommands.
type app struct {
	flagged    config
	configFile string
	verbose    bool

	stdout io.Writer
	stderr io.Writer
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	a := &app{flagged: defaultConfig(), stdout: stdout, stderr: stderr}

	cmd := &cobra.Command{
		Use:   "ddnscf",
		Short: "Point Cloudflare A and AAAA records at this host's public address",
		Long: `ddnscf reads each configured DNS record from Cloudflare, detects the public
address of this host for the record's family, and updates the record when the
two differ. A family with no connectivity is skipped; any other failure stops
the pass with a non-zero exit status.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return loadDotEnv()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runDDNS(cmd.Context(), cmd.Flags())
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	pf := cmd.PersistentFlags()
	pf.StringVar(&a.configFile, "config", "", "YAML config file (env DDNSCF_CONFIG)")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "Enable verbose logging (same as --log-level=debug)")
	bindFlags(pf, &a.flagged)

	cmd.AddCommand(newSetupCommand(a), newRecordsCommand(a))
	return cmd
}

// loadDotEnv loads a .env file from the working directory if there is one.
// Variables already present in the environment are left alone.
func loadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}
	return nil
}

// resolve builds the effective config and a logger for it.
func (a *app) resolve(flags *pflag.FlagSet) (config, logr.Logger, error) {
	configFile := a.configFile
	if configFile == "" {
		configFile = os.Getenv("DDNSCF_CONFIG")
	}
	cfg, err := resolveConfig(flags, a.flagged, configFile)
	if err != nil {
		return config{}, logr.Discard(), err
	}
	if a.verbose {
		cfg.LogLevel = "debug"
	}
	logger, err := newLogger(a.stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return config{}, logr.Discard(), err
	}
	return cfg, logger, nil
}

// token returns the API token from the config, falling back to the key file.
// A missing key file runs interactive setup when stdin is a terminal.
func (a *app) token(ctx context.Context, cfg config, logger logr.Logger) (string, error) {
	if cfg.Token != "" {
		logger.V(1).Info("using api token from the environment")
		return cfg.Token, nil
	}

	_, err := os.Stat(cfg.KeyFile)
	if errors.Is(err, fs.ErrNotExist) {
		if !stdinIsTerminal() {
			return "", fmt.Errorf("key file %q does not exist: run \"ddnscf setup\" or set CLOUDFLARE_TOKEN", cfg.KeyFile)
		}
		logger.Info("key file does not exist", "path", cfg.KeyFile)
		if err := runSetup(ctx, a.stdout, cfg, logger); err != nil {
			return "", fmt.Errorf("setup: %w", err)
		}
	}
	if err := verifyPermissions(cfg.KeyFile); err != nil {
		return "", err
	}
	key, err := readKey(cfg.KeyFile)
	if err != nil {
		return "", err
	}
	if key == "" {
		return "", &ddns.MissingConfigError{Field: fmt.Sprintf("api token (key file %q is empty)", cfg.KeyFile)}
	}
	logger.V(1).Info("successfully read key from key file", "path", cfg.KeyFile)
	return key, nil
}

func (a *app) runDDNS(ctx context.Context, flags *pflag.FlagSet) error {
	cfg, logger, err := a.resolve(flags)
	if err != nil {
		return err
	}
	if err := cfg.validate(); err != nil {
		return err
	}
	logger.V(1).Info("config is valid",
		"zone", cfg.ZoneID,
		"records", cfg.RecordIDs,
		"detector", cfg.Detector,
		"dryRun", cfg.DryRun,
	)

	token, err := a.token(ctx, cfg, logger)
	if err != nil {
		return err
	}

	provider, err := ddns.NewCloudflare(token)
	if err != nil {
		return fmt.Errorf("error creating cloudflare provider: %w", err)
	}
	if cfg.APIURL != "" {
		provider.SetBaseURL(cfg.APIURL)
	}

	httpClient := cleanhttp.DefaultPooledClient()
	httpClient.Timeout = cfg.Timeout

	var resolver ddns.Resolver
	switch cfg.Detector {
	case "dns":
		resolver = ddns.DNSResolver(cfg.IPv4Nameserver, cfg.IPv6Nameserver)
	default:
		resolver, err = ddns.WebResolver(cfg.IPv4URL, cfg.IPv6URL)
		if err != nil {
			return fmt.Errorf("error creating resolver: %w", err)
		}
	}

	var metrics *ddns.Metrics
	if cfg.MetricsFile != "" {
		metrics = ddns.NewMetrics()
	}

	client, err := ddns.New(cfg.ZoneID, cfg.RecordIDs,
		ddns.UsingProvider(provider),
		ddns.UsingHTTPClient(httpClient),
		ddns.UsingResolver(resolver),
		ddns.WithLogger(logger),
		ddns.WithDryRun(cfg.DryRun),
		ddns.WithMetrics(metrics),
	)
	if err != nil {
		return fmt.Errorf("error creating ddns client: %w", err)
	}

	report, runErr := client.RunDDNS(ctx)
	if metrics != nil {
		if err := metrics.WriteTextfile(cfg.MetricsFile); err != nil {
			logger.Error(err, "error writing metrics", "path", cfg.MetricsFile)
		}
	}
	if runErr != nil {
		return runErr
	}
	logger.Info("pass complete",
		"run", report.RunID,
		"updated", report.Count(ddns.StatusUpdated),
		"unchanged", report.Count(ddns.StatusUnchanged),
		"skipped", report.Count(ddns.StatusSkipped),
		"wouldUpdate", report.Count(ddns.StatusWouldUpdate),
	)
	return nil
}
