package nfdump

import (
	"NetFlowRollup/internal/model"
	"net/netip"
	"strconv"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/xerrors"
)

// timeLayouts are the timestamp formats nfdump has used for "first" and "last".
// Fractional seconds are accepted by time.Parse without being in the layout.
var timeLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// DecodeStats counts the outcome of decoding one nfdump JSON document.
type DecodeStats struct {
	Decoded int
	IPv6    int
	Skipped int
}

// Decode parses the JSON array written by `nfdump -o json`. Records that cannot
// be decoded are reported through onSkip and left out; IPv6 records are filtered.
func Decode(data []byte, onSkip func(index int, err error)) ([]model.FlowRecord, DecodeStats, error) {
	var stats DecodeStats
	if !gjson.ValidBytes(data) {
		return nil, stats, xerrors.New("nfdump output is not valid JSON")
	}
	doc := gjson.ParseBytes(data)
	if !doc.IsArray() {
		return nil, stats, xerrors.New("nfdump output is not a JSON array")
	}

	var records []model.FlowRecord
	index := 0
	doc.ForEach(func(_, v gjson.Result) bool {
		defer func() { index++ }()

		if isIPv6(v) {
			stats.IPv6++
			return true
		}
		rec, err := decodeRecord(v)
		if err != nil {
			stats.Skipped++
			if onSkip != nil {
				onSkip(index, err)
			}
			return true
		}
		records = append(records, rec)
		stats.Decoded++
		return true
	})
	return records, stats, nil
}

func isIPv6(v gjson.Result) bool {
	for _, field := range []string{"src6_addr", "dst6_addr"} {
		if f := v.Get(field); f.Exists() && f.Type != gjson.Null {
			return true
		}
	}
	return false
}

func decodeRecord(v gjson.Result) (model.FlowRecord, error) {
	first, err := parseTime(v.Get("first"))
	if err != nil {
		return model.FlowRecord{}, xerrors.Errorf("first: %w", err)
	}
	last, err := parseTime(v.Get("last"))
	if err != nil {
		return model.FlowRecord{}, xerrors.Errorf("last: %w", err)
	}
	packets, err := parseCounter(v.Get("in_packets"))
	if err != nil {
		return model.FlowRecord{}, xerrors.Errorf("in_packets: %w", err)
	}
	bytes, err := parseCounter(v.Get("in_bytes"))
	if err != nil {
		return model.FlowRecord{}, xerrors.Errorf("in_bytes: %w", err)
	}
	src, err := parseAddr(v.Get("src4_addr"))
	if err != nil {
		return model.FlowRecord{}, xerrors.Errorf("src4_addr: %w", err)
	}
	dst, err := parseAddr(v.Get("dst4_addr"))
	if err != nil {
		return model.FlowRecord{}, xerrors.Errorf("dst4_addr: %w", err)
	}
	return model.FlowRecord{
		First:   first,
		Last:    last,
		Packets: packets,
		Bytes:   bytes,
		Src:     src,
		Dst:     dst,
	}, nil
}

// parseTime keeps the wall clock exactly as written by nfdump.
func parseTime(v gjson.Result) (time.Time, error) {
	if v.Type != gjson.String {
		return time.Time{}, xerrors.Errorf("expected string, got %s", v.Type)
	}
	var lastErr error
	for _, layout := range timeLayouts {
		t, err := time.ParseInLocation(layout, v.Str, time.UTC)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

func parseCounter(v gjson.Result) (uint64, error) {
	if v.Type != gjson.Number {
		return 0, xerrors.Errorf("expected number, got %s", v.Type)
	}
	// Counters are plain unsigned integers; fractions, exponents, signs and
	// values beyond uint64 are malformed.
	n, err := strconv.ParseUint(v.Raw, 10, 64)
	if err != nil {
		return 0, xerrors.Errorf("invalid counter %s: %w", v.Raw, err)
	}
	return n, nil
}

func parseAddr(v gjson.Result) (netip.Addr, error) {
	if v.Type != gjson.String {
		return netip.Addr{}, xerrors.Errorf("expected string, got %s", v.Type)
	}
	addr, err := netip.ParseAddr(v.Str)
	if err != nil {
		return netip.Addr{}, err
	}
	addr = addr.Unmap()
	if !addr.Is4() {
		return netip.Addr{}, xerrors.Errorf("%s is not IPv4", addr)
	}
	return addr, nil
}
