package main

import (
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCapture(t *testing.T, path string, pairs ...[2]net.IP) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := pcapgo.NewWriter(f)
	require.NoError(t, w.WriteFileHeader(65536, layers.LinkTypeEthernet))
	ts := time.Date(2024, time.May, 1, 10, 30, 0, 0, time.UTC)
	for _, p := range pairs {
		buf := gopacket.NewSerializeBuffer()
		require.NoError(t, gopacket.SerializeLayers(buf, gopacket.SerializeOptions{FixLengths: true},
			&layers.Ethernet{SrcMAC: net.HardwareAddr{0, 1, 2, 3, 4, 5}, DstMAC: net.HardwareAddr{6, 7, 8, 9, 10, 11}, EthernetType: layers.EthernetTypeIPv4},
			&layers.IPv4{Version: 4, TTL: 64, Protocol: layers.IPProtocolUDP, SrcIP: p[0].To4(), DstIP: p[1].To4()},
			&layers.UDP{SrcPort: 1000, DstPort: 2000},
			gopacket.Payload(make([]byte, 958)),
		))
		data := buf.Bytes()
		require.NoError(t, w.WritePacket(gopacket.CaptureInfo{Timestamp: ts, CaptureLength: len(data), Length: len(data)}, data))
	}
}

func TestAnalyze(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.pcap")
	in, ext := net.IPv4(140, 125, 1, 1), net.IPv4(8, 8, 8, 8)
	writeCapture(t, path, [2]net.IP{ext, in}, [2]net.IP{ext, in}, [2]net.IP{in, ext}, [2]net.IP{ext, ext})

	inside, err := parsePrefixes([]string{"140.125.0.0/16"})
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, analyze(context.Background(), path, inside, 3, &out))

	text := out.String()
	// 14 + 20 + 8 + 958 = 1000 bytes per packet; two inbound packets land in one row.
	assert.Contains(t, text, "nf_2024_05")
	assert.Contains(t, text, "140.125.1.1")
	assert.Contains(t, text, "2.0 kB")
	assert.Contains(t, text, "4 packets, 3 accepted, 1 unclassified, 3.0 kB total")
	assert.Equal(t, 1, bytes.Count(out.Bytes(), []byte("140.125.1.1")), "shard rows are merged per key")
}

func TestParsePrefixes(t *testing.T) {
	set, err := parsePrefixes([]string{"10.1.2.3/8"})
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.0/8", set[0].String())

	_, err = parsePrefixes([]string{"10.0.0.0/40"})
	assert.Error(t, err)
}

func TestAnalyze_MissingFile(t *testing.T) {
	err := analyze(context.Background(), filepath.Join(t.TempDir(), "absent.pcap"), nil, 1, &bytes.Buffer{})
	assert.Error(t, err)
}
