package clickhouse

import (
	"NetFlowRollup/internal/config"
	"NetFlowRollup/internal/model"
	"context"
	"fmt"
	"net"
	"regexp"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	log "github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// createTableStatement uses SummingMergeTree so rows sharing a key are merge-added
// by ClickHouse itself, mirroring the ON CONFLICT behaviour of the primary store.
const createTableStatement = `
CREATE TABLE IF NOT EXISTS %s (
    address      IPv4,
    date         Date,
    hour         UInt8,
    internal_in  Int64,
    internal_out Int64,
    external_in  Int64,
    external_out Int64
) ENGINE = SummingMergeTree((internal_in, internal_out, external_in, external_out))
PARTITION BY toYYYYMM(date)
ORDER BY (address, date, hour);
`

// Mirror copies every flushed batch row into ClickHouse.
// It implements the model.Writer interface.
type Mirror struct {
	conn  driver.Conn
	table string
}

// NewMirror connects to ClickHouse and ensures the mirror table exists.
func NewMirror(cfg config.ClickHouseConfig) (*Mirror, error) {
	if !identPattern.MatchString(cfg.Table) {
		return nil, xerrors.Errorf("invalid clickhouse table name %q", cfg.Table)
	}
	conn, err := connect(cfg)
	if err != nil {
		return nil, xerrors.Errorf("failed to connect to clickhouse: %w", err)
	}

	if err := conn.Exec(context.Background(), fmt.Sprintf(createTableStatement, cfg.Table)); err != nil {
		_ = conn.Close()
		return nil, xerrors.Errorf("failed to create table: %w", err)
	}
	log.Println("Successfully connected to ClickHouse and ensured table exists.")

	return &Mirror{conn: conn, table: cfg.Table}, nil
}

// connect is replaced in tests.
var connect = dial

func dial(cfg config.ClickHouseConfig) (driver.Conn, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, err
	}

	if err := conn.Ping(context.Background()); err != nil {
		_ = conn.Close()
		return nil, xerrors.Errorf("failed to ping clickhouse: %w", err)
	}
	return conn, nil
}

// Write appends rows as one batch.
func (m *Mirror) Write(ctx context.Context, rows []model.BatchRow) error {
	if len(rows) == 0 {
		return nil
	}

	batch, err := m.conn.PrepareBatch(ctx, "INSERT INTO "+m.table)
	if err != nil {
		return xerrors.Errorf("failed to prepare batch: %w", err)
	}
	for _, row := range rows {
		values := mirrorValues(row)
		if err := batch.Append(values...); err != nil {
			_ = batch.Abort()
			return xerrors.Errorf("failed to append row %s to batch: %w", row.Key, err)
		}
	}
	if err := batch.Send(); err != nil {
		return xerrors.Errorf("failed to send batch: %w", err)
	}

	log.Printf("Mirrored %d rows to ClickHouse table '%s'", len(rows), m.table)
	return nil
}

// Close closes the ClickHouse connection.
func (m *Mirror) Close() error {
	return m.conn.Close()
}

// mirrorValues returns the column values of row in table order.
func mirrorValues(row model.BatchRow) []any {
	return []any{
		net.IP(row.Key.Addr.AsSlice()),
		row.Key.Date.Time(),
		row.Key.Hour,
		row.Count.InternalIn,
		row.Count.InternalOut,
		row.Count.ExternalIn,
		row.Count.ExternalOut,
	}
}
