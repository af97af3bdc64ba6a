package model

import (
	"fmt"
	"net/netip"
	"time"
)

// FlowRecord is one decoded flow observation. Only IPv4 records reach the engine.
type FlowRecord struct {
	First   time.Time
	Last    time.Time
	Packets uint64
	Bytes   uint64
	Src     netip.Addr
	Dst     netip.Addr
}

// Direction describes how a flow crosses the monitored boundary.
type Direction uint8

const (
	Unclassified Direction = iota
	ExternalInbound
	ExternalOutbound
	InternalBoth
)

func (d Direction) String() string {
	switch d {
	case ExternalInbound:
		return "external_inbound"
	case ExternalOutbound:
		return "external_outbound"
	case InternalBoth:
		return "internal_both"
	default:
		return "unclassified"
	}
}

// Date is a calendar date without a time zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf returns the wall-clock calendar date of t in its own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// Time returns midnight UTC of the date.
func (d Date) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// Before reports whether d is earlier than o.
func (d Date) Before(o Date) bool {
	if d.Year != o.Year {
		return d.Year < o.Year
	}
	if d.Month != o.Month {
		return d.Month < o.Month
	}
	return d.Day < o.Day
}

// AggregationKey identifies one hourly bucket of one address.
type AggregationKey struct {
	Addr netip.Addr
	Date Date
	Hour uint8
}

// KeyOf builds the key for addr from the first-seen timestamp of a record.
func KeyOf(addr netip.Addr, first time.Time) AggregationKey {
	return AggregationKey{
		Addr: addr,
		Date: DateOf(first),
		Hour: uint8(first.Hour()),
	}
}

func (k AggregationKey) String() string {
	return fmt.Sprintf("%s@%s/%02d", k.Addr, k.Date, k.Hour)
}

// FlowCount holds the four byte counters of one bucket. Counters only grow.
type FlowCount struct {
	ExternalIn  int64
	ExternalOut int64
	InternalIn  int64
	InternalOut int64
}

// Add merges o into c.
func (c *FlowCount) Add(o FlowCount) {
	c.ExternalIn += o.ExternalIn
	c.ExternalOut += o.ExternalOut
	c.InternalIn += o.InternalIn
	c.InternalOut += o.InternalOut
}

// Total is the sum of all four counters.
func (c FlowCount) Total() int64 {
	return c.ExternalIn + c.ExternalOut + c.InternalIn + c.InternalOut
}

// BatchRow is a cache entry flattened for storage, labeled with its partition table.
type BatchRow struct {
	Table string
	Key   AggregationKey
	Count FlowCount
}
