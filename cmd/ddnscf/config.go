package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"go.yaml.in/yaml/v3"

	"github.com/Travis-Britz/cfddns"
)

// config holds everything the CLI needs for one pass.
//
// Values are layered: defaults, then the YAML config file,
// then environment variables, then flags given on the command line.
type config struct {
	ZoneID         string        `yaml:"zone_id"`
	RecordIDs      []string      `yaml:"record_ids"`
	Token          string        `yaml:"token"`
	KeyFile        string        `yaml:"key_file"`
	Detector       string        `yaml:"detector"`
	IPv4URL        string        `yaml:"ipv4_url"`
	IPv6URL        string        `yaml:"ipv6_url"`
	IPv4Nameserver string        `yaml:"ipv4_nameserver"`
	IPv6Nameserver string        `yaml:"ipv6_nameserver"`
	APIURL         string        `yaml:"api_url"`
	Timeout        time.Duration `yaml:"timeout"`
	DryRun         bool          `yaml:"dry_run"`
	MetricsFile    string        `yaml:"metrics_file"`
	LogLevel       string        `yaml:"log_level"`
	LogFormat      string        `yaml:"log_format"`
}

func defaultConfig() config {
	return config{
		KeyFile:   filepath.Join(os.Getenv("HOME"), ".cloudflare"),
		Detector:  "web",
		IPv4URL:   ddns.DefaultIPv4URL,
		IPv6URL:   ddns.DefaultIPv6URL,
		APIURL:    ddns.DefaultCloudflareAPI,
		Timeout:   30 * time.Second,
		LogLevel:  "info",
		LogFormat: "text",
	}
}

// bindFlags registers the flags for cfg on flags.
// Defaults shown in help come from defaultConfig.
func bindFlags(flags *pflag.FlagSet, cfg *config) {
	flags.StringVar(&cfg.ZoneID, "zone", cfg.ZoneID, "Cloudflare zone ID (env ZONE_ID)")
	flags.StringSliceVar(&cfg.RecordIDs, "records", cfg.RecordIDs, "Comma-separated DNS record IDs to keep up to date (env RECORD_IDS)")
	flags.StringVarP(&cfg.KeyFile, "token-file", "k", cfg.KeyFile, "Path to the file holding the Cloudflare API token (env DDNSCF_TOKEN_FILE); CLOUDFLARE_TOKEN takes precedence")
	flags.StringVar(&cfg.Detector, "detector", cfg.Detector, `How to detect the public IP: "web" or "dns" (env DDNSCF_DETECTOR)`)
	flags.StringVar(&cfg.IPv4URL, "ipv4-url", cfg.IPv4URL, "Web service returning the IPv4 address of the caller")
	flags.StringVar(&cfg.IPv6URL, "ipv6-url", cfg.IPv6URL, "Web service returning the IPv6 address of the caller")
	flags.StringVar(&cfg.IPv4Nameserver, "ipv4-nameserver", cfg.IPv4Nameserver, "Nameserver for the dns detector over IPv4 (default "+ddns.DefaultIPv4Nameserver+")")
	flags.StringVar(&cfg.IPv6Nameserver, "ipv6-nameserver", cfg.IPv6Nameserver, "Nameserver for the dns detector over IPv6 (default "+ddns.DefaultIPv6Nameserver+")")
	flags.StringVar(&cfg.APIURL, "api-url", cfg.APIURL, "Cloudflare API base URL")
	flags.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "Timeout for each Cloudflare API call")
	flags.BoolVar(&cfg.DryRun, "dry-run", cfg.DryRun, "Report records that would change without updating them (env DDNSCF_DRY_RUN)")
	flags.StringVar(&cfg.MetricsFile, "metrics-file", cfg.MetricsFile, "Write Prometheus metrics to this file after the pass (env DDNSCF_METRICS_FILE)")
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn, error (env DDNSCF_LOG_LEVEL)")
	flags.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format: text or json (env DDNSCF_LOG_FORMAT)")
}

// loadConfigFile reads a YAML config file over cfg.
// ${VAR} references in string values are expanded from the environment.
func loadConfigFile(path string, cfg *config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}
	for _, s := range []*string{&cfg.ZoneID, &cfg.Token, &cfg.KeyFile, &cfg.MetricsFile, &cfg.APIURL} {
		*s = os.ExpandEnv(*s)
	}
	for i, id := range cfg.RecordIDs {
		cfg.RecordIDs[i] = os.ExpandEnv(id)
	}
	return nil
}

// applyEnv overrides cfg with any of the recognised environment variables that are set.
func applyEnv(cfg *config) {
	if v := os.Getenv("ZONE_ID"); v != "" {
		cfg.ZoneID = v
	}
	if v := os.Getenv("RECORD_IDS"); v != "" {
		cfg.RecordIDs = splitList(v)
	}
	if v := os.Getenv("CLOUDFLARE_TOKEN"); v != "" {
		cfg.Token = v
	}
	if v := os.Getenv("DDNSCF_TOKEN_FILE"); v != "" {
		cfg.KeyFile = v
	}
	if v := os.Getenv("DDNSCF_DETECTOR"); v != "" {
		cfg.Detector = v
	}
	if v := os.Getenv("DDNSCF_DRY_RUN"); v != "" {
		cfg.DryRun = v == "1" || strings.EqualFold(v, "true")
	}
	if v := os.Getenv("DDNSCF_METRICS_FILE"); v != "" {
		cfg.MetricsFile = v
	}
	if v := os.Getenv("DDNSCF_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("DDNSCF_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
}

// applyFlags copies the flags that were set on the command line from flagged into cfg.
func applyFlags(flags *pflag.FlagSet, flagged config, cfg *config) {
	flags.Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "zone":
			cfg.ZoneID = flagged.ZoneID
		case "records":
			cfg.RecordIDs = flagged.RecordIDs
		case "token-file":
			cfg.KeyFile = flagged.KeyFile
		case "detector":
			cfg.Detector = flagged.Detector
		case "ipv4-url":
			cfg.IPv4URL = flagged.IPv4URL
		case "ipv6-url":
			cfg.IPv6URL = flagged.IPv6URL
		case "ipv4-nameserver":
			cfg.IPv4Nameserver = flagged.IPv4Nameserver
		case "ipv6-nameserver":
			cfg.IPv6Nameserver = flagged.IPv6Nameserver
		case "api-url":
			cfg.APIURL = flagged.APIURL
		case "timeout":
			cfg.Timeout = flagged.Timeout
		case "dry-run":
			cfg.DryRun = flagged.DryRun
		case "metrics-file":
			cfg.MetricsFile = flagged.MetricsFile
		case "log-level":
			cfg.LogLevel = flagged.LogLevel
		case "log-format":
			cfg.LogFormat = flagged.LogFormat
		}
	})
}

// resolveConfig layers the config file, the environment and the command line flags.
func resolveConfig(flags *pflag.FlagSet, flagged config, configFile string) (config, error) {
	cfg := defaultConfig()
	if configFile != "" {
		if err := loadConfigFile(configFile, &cfg); err != nil {
			return config{}, err
		}
	}
	applyEnv(&cfg)
	applyFlags(flags, flagged, &cfg)
	cfg.RecordIDs = splitList(strings.Join(cfg.RecordIDs, ","))
	return cfg, nil
}

// validate checks the inputs a reconciliation pass cannot do without.
func (cfg config) validate() error {
	var errs []error
	if strings.TrimSpace(cfg.ZoneID) == "" {
		errs = append(errs, &ddns.MissingConfigError{Field: "zone id (--zone or ZONE_ID)"})
	}
	if len(cfg.RecordIDs) == 0 {
		errs = append(errs, &ddns.MissingConfigError{Field: "record ids (--records or RECORD_IDS)"})
	}
	switch cfg.Detector {
	case "web", "dns":
	default:
		errs = append(errs, fmt.Errorf("unknown detector %q: must be \"web\" or \"dns\"", cfg.Detector))
	}
	return errors.Join(errs...)
}

// splitList splits a comma-separated list, dropping blank entries.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func readKey(path string) (key string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("error reading key: %w", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	keyb, _, err := r.ReadLine()
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("error reading line: %w", err)
	}
	return strings.TrimSpace(string(keyb)), nil
}

func verifyPermissions(path string) error {

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("error checking keyfile permissions: %w", err)
	}

	perms := info.Mode().Perm()
	// Error messages will state that we want 0600,
	// but we'll also accept 0400 which is even more restricted.
	// The file might be provided by some secrets managing software as readonly.
	if perms != 0600 && perms != 0400 {
		return fmt.Errorf("invalid permissions for \"%s\": %w", path, permissionError(perms))
	}

	return nil
}

type permissionError fs.FileMode

func (pe permissionError) Error() string {
	return fmt.Sprintf("expected file permissions \"-rw-------\"; found \"%s\"", fs.FileMode(pe))
}
