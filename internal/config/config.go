package config

import (
	"fmt"
	"net/netip"
	"net/url"
	"os"
	"strconv"
	"time"

	"golang.org/x/xerrors"
	"gopkg.in/yaml.v3"
)

// MaxChunkRows is the largest chunk a single multi-row upsert can carry: Postgres
// accepts at most 65535 bind parameters and every row binds seven.
const MaxChunkRows = 65535 / 7

// CollectorConfig holds the settings of the processing and maintenance cycles.
type CollectorConfig struct {
	InsidePrefixes     []string `yaml:"inside_prefixes"`
	Supernet           string   `yaml:"supernet"`
	NumShards          int      `yaml:"num_shards"`
	ChunkSize          int      `yaml:"chunk_size"`
	ProcessingInterval string   `yaml:"processing_interval"`
	MaintenanceCron    string   `yaml:"maintenance_cron"`
	CycleTimeout       string   `yaml:"cycle_timeout"`

	Inside         []netip.Prefix `yaml:"-"`
	SupernetPrefix netip.Prefix   `yaml:"-"`
	Interval       time.Duration  `yaml:"-"`
	Timeout        time.Duration  `yaml:"-"`
}

// SourceConfig selects and configures the record source.
type SourceConfig struct {
	Type        string `yaml:"type"`
	SpoolDir    string `yaml:"spool_dir"`
	FilePattern string `yaml:"file_pattern"`
	NfdumpPath  string `yaml:"nfdump_path"`
	ArchiveDir  string `yaml:"archive_dir"`
}

// DatabaseConfig holds the PostgreSQL connection settings.
type DatabaseConfig struct {
	URL              string `yaml:"url"`
	Host             string `yaml:"host"`
	Port             int    `yaml:"port"`
	User             string `yaml:"user"`
	Password         string `yaml:"password"`
	Name             string `yaml:"name"`
	SSLMode          string `yaml:"sslmode"`
	MaxOpenConns     int    `yaml:"max_open_conns"`
	MaxIdleConns     int    `yaml:"max_idle_conns"`
	ConnMaxLifetime  string `yaml:"conn_max_lifetime"`
	StatementTimeout string `yaml:"statement_timeout"`

	Lifetime    time.Duration `yaml:"-"`
	StmtTimeout time.Duration `yaml:"-"`
}

// ClickHouseConfig holds the settings of the optional ClickHouse mirror.
type ClickHouseConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Table    string `yaml:"table"`
}

// NATSConfig holds the settings of the cycle report publisher.
type NATSConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// APIConfig holds the ops HTTP server settings.
type APIConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// LogConfig holds the logger settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is the top-level configuration struct for the entire application.
type Config struct {
	Collector  CollectorConfig  `yaml:"collector"`
	Source     SourceConfig     `yaml:"source"`
	Database   DatabaseConfig   `yaml:"database"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
	NATS       NATSConfig       `yaml:"nats"`
	API        APIConfig        `yaml:"api"`
	Log        LogConfig        `yaml:"log"`
}

// Default returns a configuration with every optional field filled in.
func Default() *Config {
	return &Config{
		Collector: CollectorConfig{
			NumShards:          4,
			ChunkSize:          100,
			ProcessingInterval: "10s",
			MaintenanceCron:    "0 23 * * 0",
			CycleTimeout:       "5m",
		},
		Source: SourceConfig{
			Type:        "nfdump",
			SpoolDir:    "/data/netflow",
			FilePattern: `nfcapd\.\d{12}`,
			NfdumpPath:  "nfdump",
		},
		Database: DatabaseConfig{
			Port:             5432,
			SSLMode:          "disable",
			MaxOpenConns:     10,
			MaxIdleConns:     5,
			ConnMaxLifetime:  "5m",
			StatementTimeout: "30s",
		},
		ClickHouse: ClickHouseConfig{
			Port:     9000,
			Database: "default",
			Table:    "nf_hourly",
		},
		NATS: NATSConfig{
			URL:     "nats://127.0.0.1:4222",
			Subject: "nfhourly.cycles",
		},
		API: APIConfig{ListenAddr: ":9108"},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// LoadConfig reads the configuration from a YAML file, applies environment
// overrides and validates the result.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, xerrors.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML on top of Default, then applies environment overrides.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, xerrors.Errorf("failed to unmarshal config YAML: %w", err)
	}
	cfg.applyEnv(os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides database credentials from the process environment.
func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup("NF_DATABASE_URL"); ok && v != "" {
		c.Database.URL = v
	}
	if v, ok := lookup("DB_HOST"); ok && v != "" {
		c.Database.Host = v
	}
	if v, ok := lookup("DB_PORT"); ok && v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Database.Port = port
		}
	}
	if v, ok := lookup("DB_USER"); ok && v != "" {
		c.Database.User = v
	}
	if v, ok := lookup("DB_PASSWD"); ok {
		c.Database.Password = v
	}
	if v, ok := lookup("DB_NAME"); ok && v != "" {
		c.Database.Name = v
	}
}

// Validate checks the configuration and fills in the parsed fields.
func (c *Config) Validate() error {
	col := &c.Collector
	if len(col.InsidePrefixes) == 0 {
		return xerrors.New("collector.inside_prefixes must list at least one prefix")
	}
	col.Inside = col.Inside[:0]
	for _, s := range col.InsidePrefixes {
		p, err := netip.ParsePrefix(s)
		if err != nil {
			return xerrors.Errorf("invalid inside prefix %q: %w", s, err)
		}
		if !p.Addr().Is4() {
			return xerrors.Errorf("inside prefix %q is not IPv4", s)
		}
		col.Inside = append(col.Inside, p.Masked())
	}
	if col.Supernet != "" {
		p, err := netip.ParsePrefix(col.Supernet)
		if err != nil {
			return xerrors.Errorf("invalid supernet %q: %w", col.Supernet, err)
		}
		col.SupernetPrefix = p.Masked()
		for _, inner := range col.Inside {
			if !col.SupernetPrefix.Contains(inner.Addr()) || inner.Bits() < col.SupernetPrefix.Bits() {
				return xerrors.Errorf("inside prefix %s is not within supernet %s", inner, col.SupernetPrefix)
			}
		}
	}
	if col.NumShards < 1 {
		return xerrors.Errorf("collector.num_shards must be >= 1, got %d", col.NumShards)
	}
	if col.ChunkSize < 1 || col.ChunkSize > MaxChunkRows {
		return xerrors.Errorf("collector.chunk_size must be within [1, %d], got %d", MaxChunkRows, col.ChunkSize)
	}

	var err error
	if col.Interval, err = parsePositive("collector.processing_interval", col.ProcessingInterval); err != nil {
		return err
	}
	if col.Timeout, err = parsePositive("collector.cycle_timeout", col.CycleTimeout); err != nil {
		return err
	}
	if c.Database.Lifetime, err = parsePositive("database.conn_max_lifetime", c.Database.ConnMaxLifetime); err != nil {
		return err
	}
	if c.Database.StmtTimeout, err = parsePositive("database.statement_timeout", c.Database.StatementTimeout); err != nil {
		return err
	}

	switch c.Source.Type {
	case "nfdump", "pcap":
	default:
		return xerrors.Errorf("unknown source type %q", c.Source.Type)
	}
	if c.Source.SpoolDir == "" {
		return xerrors.New("source.spool_dir is required")
	}
	if c.NATS.Enabled && c.NATS.Subject == "" {
		return xerrors.New("nats.subject is required when nats is enabled")
	}
	return nil
}

// DSN returns the PostgreSQL connection URL, built from the discrete fields
// when no URL is configured.
func (d DatabaseConfig) DSN() (string, error) {
	if d.URL != "" {
		return d.URL, nil
	}
	if d.Host == "" || d.Name == "" {
		return "", xerrors.New("database url or host and name are required")
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   "/" + d.Name,
	}
	if d.User != "" {
		u.User = url.UserPassword(d.User, d.Password)
	}
	q := u.Query()
	if d.SSLMode != "" {
		q.Set("sslmode", d.SSLMode)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func parsePositive(field, s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, xerrors.Errorf("invalid %s %q: %w", field, s, err)
	}
	if d <= 0 {
		return 0, xerrors.Errorf("%s must be a positive duration", field)
	}
	return d, nil
}
