package config

import (
	"net/netip"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
collector:
  inside_prefixes: ["140.125.0.0/16", "10.0.0.0/8"]
  supernet: "140.125.0.0/16"
  num_shards: 8
  chunk_size: 50
  processing_interval: "30s"
source:
  type: nfdump
  spool_dir: /var/spool/nfcapd
  archive_dir: /var/spool/nfcapd/done
database:
  host: db.internal
  name: netflow
  user: collector
  password: secret
`

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, []netip.Prefix{
		netip.MustParsePrefix("140.125.0.0/16"),
		netip.MustParsePrefix("10.0.0.0/8"),
	}, cfg.Collector.Inside)
	assert.Equal(t, netip.MustParsePrefix("140.125.0.0/16"), cfg.Collector.SupernetPrefix)
	assert.Equal(t, 8, cfg.Collector.NumShards)
	assert.Equal(t, 50, cfg.Collector.ChunkSize)
	assert.Equal(t, 30*time.Second, cfg.Collector.Interval)
	// Defaults survive a partial file.
	assert.Equal(t, "0 23 * * 0", cfg.Collector.MaintenanceCron)
	assert.Equal(t, 5*time.Minute, cfg.Collector.Timeout)
	assert.Equal(t, 30*time.Second, cfg.Database.StmtTimeout)
	assert.Equal(t, "/var/spool/nfcapd/done", cfg.Source.ArchiveDir)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no inside prefix", func(c *Config) { c.Collector.InsidePrefixes = nil }},
		{"bad prefix", func(c *Config) { c.Collector.InsidePrefixes = []string{"140.125.0.0/33"} }},
		{"ipv6 prefix", func(c *Config) { c.Collector.InsidePrefixes = []string{"2001:db8::/32"} }},
		{"zero shards", func(c *Config) { c.Collector.NumShards = 0 }},
		{"zero chunk", func(c *Config) { c.Collector.ChunkSize = 0 }},
		{"chunk over parameter ceiling", func(c *Config) { c.Collector.ChunkSize = MaxChunkRows + 1 }},
		{"bad interval", func(c *Config) { c.Collector.ProcessingInterval = "soon" }},
		{"negative timeout", func(c *Config) { c.Collector.CycleTimeout = "-1s" }},
		{"unknown source", func(c *Config) { c.Source.Type = "sflow" }},
		{"inside outside supernet", func(c *Config) { c.Collector.Supernet = "140.125.0.0/16"; c.Collector.InsidePrefixes = []string{"10.0.0.0/8"} }},
		{"inside wider than supernet", func(c *Config) { c.Collector.Supernet = "140.125.0.0/16"; c.Collector.InsidePrefixes = []string{"140.0.0.0/8"} }},
		{"nats without subject", func(c *Config) { c.NATS.Enabled = true; c.NATS.Subject = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			cfg.Collector.InsidePrefixes = []string{"140.125.0.0/16"}
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	cfg := Default()
	cfg.Collector.InsidePrefixes = []string{"140.125.7.9/16"}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, netip.MustParsePrefix("140.125.0.0/16"), cfg.Collector.Inside[0])

	cfg = Default()
	cfg.Collector.Supernet = "140.125.0.0/16"
	cfg.Collector.InsidePrefixes = []string{"140.125.0.0/16", "140.125.8.0/24"}
	require.NoError(t, cfg.Validate())
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"DB_HOST":   "pg.example",
		"DB_PORT":   "6543",
		"DB_USER":   "nf",
		"DB_PASSWD": "pw",
		"DB_NAME":   "flows",
	}
	cfg := Default()
	cfg.applyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})

	dsn, err := cfg.Database.DSN()
	require.NoError(t, err)
	assert.Equal(t, "postgres://nf:pw@pg.example:6543/flows?sslmode=disable", dsn)

	env["NF_DATABASE_URL"] = "postgres://override/db"
	cfg.applyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
	dsn, err = cfg.Database.DSN()
	require.NoError(t, err)
	assert.Equal(t, "postgres://override/db", dsn)
}

func TestDSN_Incomplete(t *testing.T) {
	_, err := Default().Database.DSN()
	assert.Error(t, err)
}
