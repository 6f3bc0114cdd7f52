package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Travis-Britz/cfddns"
)

// clearEnv blanks every variable the CLI reads so the host environment can't leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, v := range []string{
		"ZONE_ID", "RECORD_IDS", "CLOUDFLARE_TOKEN", "DDNSCF_TOKEN_FILE", "DDNSCF_DETECTOR",
		"DDNSCF_DRY_RUN", "DDNSCF_METRICS_FILE", "DDNSCF_LOG_LEVEL", "DDNSCF_LOG_FORMAT", "DDNSCF_CONFIG",
	} {
		t.Setenv(v, "")
	}
}

func parseFlags(t *testing.T, args ...string) (*pflag.FlagSet, config) {
	t.Helper()
	flagged := defaultConfig()
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	bindFlags(flags, &flagged)
	require.NoError(t, flags.Parse(args))
	return flags, flagged
}

func writeFile(t *testing.T, name, content string, perm os.FileMode) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), perm))
	require.NoError(t, os.Chmod(path, perm))
	return path
}

func TestResolveConfigDefaults(t *testing.T) {
	clearEnv(t)
	flags, flagged := parseFlags(t)

	cfg, err := resolveConfig(flags, flagged, "")
	require.NoError(t, err)
	assert.Equal(t, "web", cfg.Detector)
	assert.Equal(t, ddns.DefaultIPv4URL, cfg.IPv4URL)
	assert.Equal(t, ddns.DefaultCloudflareAPI, cfg.APIURL)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Empty(t, cfg.RecordIDs)
	assert.False(t, cfg.DryRun)
}

func TestResolveConfigPrecedence(t *testing.T) {
	clearEnv(t)
	file := writeFile(t, "ddnscf.yaml", `
zone_id: file-zone
record_ids: [file-r1, file-r2]
detector: dns
log_level: warn
timeout: 10s
`, 0644)

	t.Run("file", func(t *testing.T) {
		flags, flagged := parseFlags(t)
		cfg, err := resolveConfig(flags, flagged, file)
		require.NoError(t, err)
		assert.Equal(t, "file-zone", cfg.ZoneID)
		assert.Equal(t, []string{"file-r1", "file-r2"}, cfg.RecordIDs)
		assert.Equal(t, "dns", cfg.Detector)
		assert.Equal(t, "warn", cfg.LogLevel)
		assert.Equal(t, 10*time.Second, cfg.Timeout)
	})

	t.Run("env over file", func(t *testing.T) {
		t.Setenv("ZONE_ID", "env-zone")
		t.Setenv("RECORD_IDS", "env-r1, ,env-r2,")
		flags, flagged := parseFlags(t)
		cfg, err := resolveConfig(flags, flagged, file)
		require.NoError(t, err)
		assert.Equal(t, "env-zone", cfg.ZoneID)
		assert.Equal(t, []string{"env-r1", "env-r2"}, cfg.RecordIDs)
		assert.Equal(t, "dns", cfg.Detector)
	})

	t.Run("flags over env", func(t *testing.T) {
		t.Setenv("ZONE_ID", "env-zone")
		t.Setenv("DDNSCF_DETECTOR", "dns")
		flags, flagged := parseFlags(t, "--zone", "flag-zone", "--records", "a,b", "--detector", "web", "--dry-run")
		cfg, err := resolveConfig(flags, flagged, file)
		require.NoError(t, err)
		assert.Equal(t, "flag-zone", cfg.ZoneID)
		assert.Equal(t, []string{"a", "b"}, cfg.RecordIDs)
		assert.Equal(t, "web", cfg.Detector)
		assert.True(t, cfg.DryRun)
		assert.Equal(t, "warn", cfg.LogLevel)
	})
}

func TestConfigFileExpandsEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("MY_ZONE", "expanded-zone")
	t.Setenv("MY_TOKEN", "expanded-token")
	file := writeFile(t, "ddnscf.yaml", `
zone_id: ${MY_ZONE}
token: $MY_TOKEN
record_ids: ["${MY_ZONE}-r1"]
`, 0644)

	flags, flagged := parseFlags(t)
	cfg, err := resolveConfig(flags, flagged, file)
	require.NoError(t, err)
	assert.Equal(t, "expanded-zone", cfg.ZoneID)
	assert.Equal(t, "expanded-token", cfg.Token)
	assert.Equal(t, []string{"expanded-zone-r1"}, cfg.RecordIDs)
}

func TestConfigFileErrors(t *testing.T) {
	clearEnv(t)
	flags, flagged := parseFlags(t)

	_, err := resolveConfig(flags, flagged, filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	bad := writeFile(t, "bad.yaml", "zone_id: [unterminated", 0644)
	_, err = resolveConfig(flags, flagged, bad)
	assert.ErrorContains(t, err, "parsing config file")
}

func TestEnvDryRun(t *testing.T) {
	for value, want := range map[string]bool{"1": true, "true": true, "TRUE": true, "0": false, "no": false} {
		t.Run(value, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("DDNSCF_DRY_RUN", value)
			flags, flagged := parseFlags(t)
			cfg, err := resolveConfig(flags, flagged, "")
			require.NoError(t, err)
			assert.Equal(t, want, cfg.DryRun)
		})
	}
}

func TestValidate(t *testing.T) {
	cfg := defaultConfig()
	cfg.ZoneID = "Z"
	cfg.RecordIDs = []string{"R1"}
	assert.NoError(t, cfg.validate())

	empty := defaultConfig()
	empty.Detector = "carrier-pigeon"
	err := empty.validate()
	var missing *ddns.MissingConfigError
	assert.ErrorAs(t, err, &missing)
	assert.ErrorContains(t, err, "zone id")
	assert.ErrorContains(t, err, "record ids")
	assert.ErrorContains(t, err, `unknown detector "carrier-pigeon"`)
}

func TestSplitList(t *testing.T) {
	assert.Nil(t, splitList(""))
	assert.Nil(t, splitList(" , ,"))
	assert.Equal(t, []string{"a", "b", "c"}, splitList("a, b ,,c"))
}

func TestReadKey(t *testing.T) {
	path := writeFile(t, "key", "  secret-token \nsecond line\n", 0600)
	key, err := readKey(path)
	require.NoError(t, err)
	assert.Equal(t, "secret-token", key)

	key, err = readKey(writeFile(t, "empty", "", 0600))
	require.NoError(t, err)
	assert.Empty(t, key)

	key, err = readKey(writeFile(t, "no-newline", "secret-token", 0600))
	require.NoError(t, err)
	assert.Equal(t, "secret-token", key)

	_, err = readKey(filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestVerifyPermissions(t *testing.T) {
	tests := []struct {
		perm    os.FileMode
		wantErr bool
	}{
		{0600, false},
		{0400, false},
		{0644, true},
		{0660, true},
		{0700, true},
	}
	for _, tt := range tests {
		t.Run(tt.perm.String(), func(t *testing.T) {
			path := writeFile(t, "key", "token\n", tt.perm)
			err := verifyPermissions(path)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			var pe permissionError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.perm, os.FileMode(pe))
			assert.ErrorContains(t, err, `expected file permissions "-rw-------"`)
		})
	}
}
