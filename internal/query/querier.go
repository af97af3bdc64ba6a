package query

import (
	"NetFlowRollup/internal/engine/router"
	"NetFlowRollup/internal/model"
	"context"
	"net"
	"net/netip"

	"github.com/sqlc-dev/pqtype"
	"golang.org/x/xerrors"
	"gorm.io/gorm"
)

// ErrNoPartition is returned when the month of the requested date has no table.
var ErrNoPartition = xerrors.New("no partition table for the requested month")

// HourlyUsage is the stored counters of one hour of one address.
type HourlyUsage struct {
	Hour        uint8 `json:"hour"`
	InternalIn  int64 `json:"internal_in"`
	InternalOut int64 `json:"internal_out"`
	ExternalIn  int64 `json:"external_in"`
	ExternalOut int64 `json:"external_out"`
}

// Querier defines the interface for reading merged hourly rows.
type Querier interface {
	HostHourly(ctx context.Context, addr netip.Addr, date model.Date) ([]HourlyUsage, error)
}

// postgresQuerier implements the Querier interface for the partition tables.
type postgresQuerier struct {
	db *gorm.DB
}

// NewPostgresQuerier creates a new querier over the database handle.
func NewPostgresQuerier(db *gorm.DB) Querier {
	return &postgresQuerier{db: db}
}

// HostHourly returns the hours of date recorded for addr, in hour order.
func (q *postgresQuerier) HostHourly(ctx context.Context, addr netip.Addr, date model.Date) ([]HourlyUsage, error) {
	if !addr.Is4() {
		return nil, xerrors.Errorf("%s is not an IPv4 address", addr)
	}
	table := router.Table(date)
	if err := router.Validate(table); err != nil {
		return nil, err
	}

	db := q.db.WithContext(ctx)
	if !db.Migrator().HasTable(table) {
		return nil, ErrNoPartition
	}

	ip := addr.As4()
	inet := pqtype.Inet{
		IPNet: net.IPNet{IP: net.IP(ip[:]), Mask: net.CIDRMask(32, 32)},
		Valid: true,
	}

	var rows []HourlyUsage
	err := db.Raw(
		"SELECT hour, internal_in, internal_out, external_in, external_out FROM "+table+
			" WHERE address = ? AND date = ? ORDER BY hour",
		inet, date.Time(),
	).Scan(&rows).Error
	if err != nil {
		return nil, xerrors.Errorf("query %s: %w", table, err)
	}
	return rows, nil
}
