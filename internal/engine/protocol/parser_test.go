package protocol

import (
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serialize(t *testing.T, ls ...gopacket.SerializableLayer) []byte {
	t.Helper()
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, ls...))
	return buf.Bytes()
}

func udpPacket(t *testing.T, src, dst string) []byte {
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0, 1, 2, 3, 4, 5},
		DstMAC:       net.HardwareAddr{6, 7, 8, 9, 10, 11},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.ParseIP(src).To4(),
		DstIP:    net.ParseIP(dst).To4(),
	}
	udp := &layers.UDP{SrcPort: 5353, DstPort: 53}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))
	return serialize(t, eth, ip, udp, gopacket.Payload([]byte("hello")))
}

func TestParsePacket(t *testing.T) {
	data := udpPacket(t, "8.8.8.8", "140.125.1.1")
	packet := gopacket.NewPacket(data, layers.LayerTypeEthernet, gopacket.Default)
	ts := time.Date(2024, time.May, 1, 10, 15, 0, 0, time.FixedZone("CST", 8*3600))
	md := packet.Metadata()
	md.Timestamp = ts
	md.CaptureLength = len(data)
	md.Length = 1514

	rec, err := ParsePacket(packet)
	require.NoError(t, err)
	assert.Equal(t, netip.MustParseAddr("8.8.8.8"), rec.Src)
	assert.Equal(t, netip.MustParseAddr("140.125.1.1"), rec.Dst)
	assert.Equal(t, uint64(1514), rec.Bytes)
	assert.Equal(t, uint64(1), rec.Packets)
	assert.Equal(t, time.UTC, rec.First.Location())
	assert.Equal(t, 2, rec.First.Hour())
	assert.Equal(t, rec.First, rec.Last)
}

func TestParsePacket_Rejects(t *testing.T) {
	arp := serialize(t,
		&layers.Ethernet{
			SrcMAC:       net.HardwareAddr{0, 1, 2, 3, 4, 5},
			DstMAC:       net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff},
			EthernetType: layers.EthernetTypeARP,
		},
		&layers.ARP{
			AddrType:          layers.LinkTypeEthernet,
			Protocol:          layers.EthernetTypeIPv4,
			HwAddressSize:     6,
			ProtAddressSize:   4,
			Operation:         layers.ARPRequest,
			SourceHwAddress:   []byte{0, 1, 2, 3, 4, 5},
			SourceProtAddress: []byte{10, 0, 0, 1},
			DstHwAddress:      []byte{0, 0, 0, 0, 0, 0},
			DstProtAddress:    []byte{10, 0, 0, 2},
		})
	_, err := ParsePacket(gopacket.NewPacket(arp, layers.LayerTypeEthernet, gopacket.Default))
	assert.ErrorIs(t, err, ErrNotIPv4)

	// Without capture metadata there is no hour to bucket the packet into.
	data := udpPacket(t, "8.8.8.8", "140.125.1.1")
	_, err = ParsePacket(gopacket.NewPacket(data, layers.LayerTypeEthernet, gopacket.Default))
	assert.ErrorIs(t, err, ErrNoTimestamp)
}
