package pcap

import (
	"NetFlowRollup/internal/engine/protocol"
	"NetFlowRollup/internal/model"
	"context"
	"io"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcapgo"
	"golang.org/x/xerrors"
)

// Reader reads packets from a classic pcap stream.
type Reader struct {
	source *gopacket.PacketSource
}

// NewReader creates a new pcap reader over r.
func NewReader(r io.Reader) (*Reader, error) {
	pr, err := pcapgo.NewReader(r)
	if err != nil {
		return nil, xerrors.Errorf("failed to read pcap header: %w", err)
	}
	src := gopacket.NewPacketSource(pr, pr.LinkType())
	src.DecodeOptions = gopacket.DecodeOptions{Lazy: true}
	return &Reader{source: src}, nil
}

// ReadRecords reads every packet and converts the IPv4 ones into flow records.
// Packets the parser rejects are reported through onSkip. A truncated stream
// returns the records read so far together with the error.
func (r *Reader) ReadRecords(ctx context.Context, onSkip func(err error)) ([]model.FlowRecord, error) {
	var records []model.FlowRecord
	for n := 0; ; n++ {
		if n%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		packet, err := r.source.NextPacket()
		if err == io.EOF {
			return records, nil
		}
		if err != nil {
			return records, xerrors.Errorf("packet %d: %w", n, err)
		}
		rec, err := protocol.ParsePacket(packet)
		if err != nil {
			if onSkip != nil {
				onSkip(err)
			}
			continue
		}
		records = append(records, rec)
	}
}
