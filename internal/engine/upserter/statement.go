package upserter

import (
	"NetFlowRollup/internal/engine/router"
	"NetFlowRollup/internal/model"
	"fmt"
	"net"
	"strings"

	"github.com/sqlc-dev/pqtype"
)

// ParamsPerRow is the number of bind parameters each upserted row consumes.
const ParamsPerRow = 7

// columns lists the upsert columns in bind order.
var columns = []string{"address", "date", "hour", "internal_in", "internal_out", "external_in", "external_out"}

// counters are the merge-add columns.
var counters = columns[3:]

// BuildUpsert returns a merge-add upsert of n rows into table. Placeholders are
// written as '?' and rebound by the driver.
func BuildUpsert(table string, n int) (string, error) {
	if err := router.Validate(table); err != nil {
		return "", err
	}
	if n < 1 {
		return "", ErrEmptyChunk
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "INSERT INTO %s (%s) VALUES ", table, strings.Join(columns, ", "))
	tuple := "(" + strings.TrimSuffix(strings.Repeat("?, ", ParamsPerRow), ", ") + ")"
	for i := 0; i < n; i++ {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(tuple)
	}
	sb.WriteString(" ON CONFLICT (address, date, hour) DO UPDATE SET ")
	for i, c := range counters {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%s = %s.%s + EXCLUDED.%s", c, table, c, c)
	}
	return sb.String(), nil
}

// rowArgs returns the bind arguments of row in column order.
func rowArgs(row model.BatchRow) []any {
	return []any{
		inet(row.Key),
		row.Key.Date.Time(),
		int16(row.Key.Hour),
		row.Count.InternalIn,
		row.Count.InternalOut,
		row.Count.ExternalIn,
		row.Count.ExternalOut,
	}
}

func inet(k model.AggregationKey) pqtype.Inet {
	ip := k.Addr.As4()
	return pqtype.Inet{
		IPNet: net.IPNet{IP: net.IP(ip[:]), Mask: net.CIDRMask(32, 32)},
		Valid: true,
	}
}

// chunkArgs flattens the arguments of every row of a chunk.
func chunkArgs(rows []model.BatchRow) []any {
	args := make([]any, 0, len(rows)*ParamsPerRow)
	for _, row := range rows {
		args = append(args, rowArgs(row)...)
	}
	return args
}
