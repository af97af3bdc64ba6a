package maintainer

import (
	"NetFlowRollup/internal/engine/router"
	"NetFlowRollup/internal/storage"
	"context"
	"fmt"
	"net/netip"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

// Maintainer keeps the partition tables of the current and next month in place.
type Maintainer struct {
	store    storage.Store
	supernet netip.Prefix
}

// New creates a maintainer. When supernet is valid, created tables carry a check
// constraint restricting addresses to it.
func New(store storage.Store, supernet netip.Prefix) *Maintainer {
	return &Maintainer{store: store, supernet: supernet}
}

// EnsurePartitions creates the partition tables of the month containing ref and of
// the following month if they are missing. It is safe to call repeatedly and
// returns the names of the tables it created.
func (m *Maintainer) EnsurePartitions(ctx context.Context, ref time.Time) ([]string, error) {
	current, next := router.Months(ref)

	var created []string
	for _, name := range []string{current, next} {
		exists, err := m.store.TableExists(ctx, name)
		if err != nil {
			return created, xerrors.Errorf("check table %s: %w", name, err)
		}
		log.Printf("Table Exist: %s => %t", name, exists)
		if exists {
			continue
		}

		ddl, err := CreateTableDDL(name, m.supernet)
		if err != nil {
			return created, err
		}
		if err := m.store.Exec(ctx, ddl); err != nil {
			return created, xerrors.Errorf("create table %s: %w", name, err)
		}
		log.Printf("Created partition table %s", name)
		created = append(created, name)
	}
	return created, nil
}

// CreateTableDDL returns the CREATE TABLE statement of a monthly partition.
func CreateTableDDL(name string, supernet netip.Prefix) (string, error) {
	if err := router.Validate(name); err != nil {
		return "", err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "CREATE TABLE IF NOT EXISTS %s (\n", name)
	sb.WriteString("    address inet NOT NULL,\n")
	sb.WriteString("    date date NOT NULL,\n")
	sb.WriteString("    hour smallint NOT NULL,\n")
	sb.WriteString("    internal_in bigint DEFAULT 0,\n")
	sb.WriteString("    internal_out bigint DEFAULT 0,\n")
	sb.WriteString("    external_in bigint DEFAULT 0,\n")
	sb.WriteString("    external_out bigint DEFAULT 0,\n")
	fmt.Fprintf(&sb, "    CONSTRAINT %s_valid_hours CHECK ((hour >= 0) AND (hour <= 23)),\n", name)
	if supernet.IsValid() {
		// netip formatting only ever yields digits, dots, colons and a slash.
		fmt.Fprintf(&sb, "    CONSTRAINT %s_valid_address CHECK (address << '%s'::inet),\n", name, supernet.Masked())
	}
	sb.WriteString("    PRIMARY KEY (address, date, hour)\n")
	sb.WriteString(")")
	return sb.String(), nil
}
