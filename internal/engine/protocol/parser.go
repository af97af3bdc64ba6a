package protocol

import (
	"NetFlowRollup/internal/model"
	"net/netip"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"golang.org/x/xerrors"
)

var (
	// ErrNotIPv4 is returned for packets without an IPv4 layer.
	ErrNotIPv4 = xerrors.New("not an IPv4 packet")
	// ErrNoTimestamp is returned for packets without capture metadata.
	ErrNoTimestamp = xerrors.New("packet has no capture timestamp")
)

// ParsePacket turns one captured packet into a single-packet flow record. The
// byte count is the original wire length, not the possibly truncated capture.
func ParsePacket(packet gopacket.Packet) (model.FlowRecord, error) {
	l := packet.Layer(layers.LayerTypeIPv4)
	if l == nil {
		return model.FlowRecord{}, ErrNotIPv4
	}
	ip := l.(*layers.IPv4)

	src, ok := netip.AddrFromSlice(ip.SrcIP)
	if !ok {
		return model.FlowRecord{}, xerrors.Errorf("bad source address %v", ip.SrcIP)
	}
	dst, ok := netip.AddrFromSlice(ip.DstIP)
	if !ok {
		return model.FlowRecord{}, xerrors.Errorf("bad destination address %v", ip.DstIP)
	}

	meta := packet.Metadata()
	if meta == nil || meta.Timestamp.IsZero() {
		return model.FlowRecord{}, ErrNoTimestamp
	}
	length := meta.Length
	if length == 0 {
		length = len(packet.Data())
	}
	ts := meta.Timestamp.UTC()

	return model.FlowRecord{
		First:   ts,
		Last:    ts,
		Packets: 1,
		Bytes:   uint64(length),
		Src:     src.Unmap(),
		Dst:     dst.Unmap(),
	}, nil
}
