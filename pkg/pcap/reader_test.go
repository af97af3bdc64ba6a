package pcap

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCapture(t *testing.T, ts time.Time, frames ...[]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := pcapgo.NewWriter(&buf)
	require.NoError(t, w.WriteFileHeader(65536, layers.LinkTypeEthernet))
	for i, f := range frames {
		ci := gopacket.CaptureInfo{
			Timestamp:     ts.Add(time.Duration(i) * time.Second),
			CaptureLength: len(f),
			Length:        len(f),
		}
		require.NoError(t, w.WritePacket(ci, f))
	}
	return buf.Bytes()
}

func frame(t *testing.T, src, dst string, ethType layers.EthernetType) []byte {
	t.Helper()
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0, 1, 2, 3, 4, 5},
		DstMAC:       net.HardwareAddr{6, 7, 8, 9, 10, 11},
		EthernetType: ethType,
	}
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true}
	if ethType != layers.EthernetTypeIPv4 {
		require.NoError(t, gopacket.SerializeLayers(buf, opts, eth, gopacket.Payload(make([]byte, 46))))
		return buf.Bytes()
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolTCP,
		SrcIP:    net.ParseIP(src).To4(),
		DstIP:    net.ParseIP(dst).To4(),
	}
	tcp := &layers.TCP{SrcPort: 44321, DstPort: 443, SYN: true, Window: 1024}
	require.NoError(t, tcp.SetNetworkLayerForChecksum(ip))
	require.NoError(t, gopacket.SerializeLayers(buf, opts, eth, ip, tcp))
	return buf.Bytes()
}

func TestReader_ReadRecords(t *testing.T) {
	ts := time.Date(2024, time.May, 1, 10, 59, 59, 0, time.UTC)
	data := writeCapture(t, ts,
		frame(t, "8.8.8.8", "140.125.1.1", layers.EthernetTypeIPv4),
		frame(t, "", "", layers.EthernetTypeARP),
		frame(t, "140.125.1.1", "8.8.8.8", layers.EthernetTypeIPv4),
	)

	reader, err := NewReader(bytes.NewReader(data))
	require.NoError(t, err)

	skipped := 0
	recs, err := reader.ReadRecords(context.Background(), func(error) { skipped++ })
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, 1, skipped)

	assert.Equal(t, "8.8.8.8", recs[0].Src.String())
	assert.Equal(t, 10, recs[0].First.Hour())
	assert.Equal(t, 11, recs[1].First.Hour(), "the third frame is captured two seconds later")
	assert.Equal(t, uint64(len(frame(t, "8.8.8.8", "140.125.1.1", layers.EthernetTypeIPv4))), recs[0].Bytes)
}

func TestReader_Truncated(t *testing.T) {
	ts := time.Date(2024, time.May, 1, 10, 0, 0, 0, time.UTC)
	data := writeCapture(t, ts,
		frame(t, "8.8.8.8", "140.125.1.1", layers.EthernetTypeIPv4),
		frame(t, "8.8.8.8", "140.125.1.2", layers.EthernetTypeIPv4),
	)
	reader, err := NewReader(bytes.NewReader(data[:len(data)-10]))
	require.NoError(t, err)

	recs, err := reader.ReadRecords(context.Background(), nil)
	assert.Error(t, err)
	assert.Len(t, recs, 1)
}

func TestNewReader_BadHeader(t *testing.T) {
	_, err := NewReader(bytes.NewReader([]byte("definitely not a capture")))
	assert.Error(t, err)
}
