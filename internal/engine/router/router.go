package router

import (
	"NetFlowRollup/internal/model"
	"fmt"
	"regexp"
	"time"

	"golang.org/x/xerrors"
)

// TablePrefix is the common prefix of every monthly partition table.
const TablePrefix = "nf_"

var tablePattern = regexp.MustCompile(`^nf_\d{4}_(0[1-9]|1[0-2])$`)

// ErrInvalidTable is returned for identifiers that are not partition table names.
var ErrInvalidTable = xerrors.New("invalid partition table name")

// Table returns the partition table holding rows of the given date.
func Table(d model.Date) string {
	return fmt.Sprintf("%s%04d_%02d", TablePrefix, d.Year, int(d.Month))
}

// TableFor returns the partition table for the month containing t.
func TableFor(t time.Time) string {
	return Table(model.DateOf(t))
}

// Validate checks that name is a well-formed partition table name, so it can be
// interpolated into SQL as an identifier.
func Validate(name string) error {
	if !tablePattern.MatchString(name) {
		return xerrors.Errorf("%q: %w", name, ErrInvalidTable)
	}
	return nil
}

// Months returns the partition tables of the month containing ref and of the
// month after it.
func Months(ref time.Time) (current, next string) {
	y, m, _ := ref.Date()
	current = Table(model.Date{Year: y, Month: m, Day: 1})
	// Day 1 avoids time.Date normalising e.g. Jan 31 + 1 month into March.
	n := time.Date(y, m+1, 1, 0, 0, 0, 0, time.UTC)
	next = Table(model.DateOf(n))
	return current, next
}
