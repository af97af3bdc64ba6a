package classifier

import (
	"NetFlowRollup/internal/model"
	"net/netip"
)

// Predicate reports whether an address belongs to the monitored network.
type Predicate func(addr netip.Addr) bool

// PrefixSet is an inside predicate backed by one or more prefixes.
type PrefixSet []netip.Prefix

// Contains reports whether addr falls inside any prefix of the set.
func (s PrefixSet) Contains(addr netip.Addr) bool {
	for _, p := range s {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// Classify determines the direction of rec relative to the inside predicate.
// The same predicate is evaluated for both endpoints.
func Classify(rec *model.FlowRecord, inside Predicate) model.Direction {
	srcInside := inside(rec.Src)
	dstInside := inside(rec.Dst)

	switch {
	case !srcInside && dstInside:
		return model.ExternalInbound
	case srcInside && !dstInside:
		return model.ExternalOutbound
	case srcInside && dstInside:
		return model.InternalBoth
	default:
		return model.Unclassified
	}
}
