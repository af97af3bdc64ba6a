package main

import (
	"fmt"
	"log"
	"math/rand"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/spf13/pflag"
)

// Generates rotated capture files for the pcap source. Addresses are drawn
// from an inside /16 and a small outside pool so every direction occurs.
func main() {
	outDir := pflag.StringP("out", "o", "captures", "Output spool directory")
	packetCount := pflag.IntP("count", "c", 1000, "Packets per file")
	files := pflag.IntP("files", "n", 1, "Number of files, one per hour starting at --start")
	start := pflag.String("start", time.Now().UTC().Truncate(time.Hour).Format(time.RFC3339), "Capture time of the first packet")
	inside := pflag.String("inside", "140.125.0.0/16", "Inside prefix (must be a /16)")
	seed := pflag.Int64("seed", 1, "Random seed")
	pflag.Parse()

	first, err := time.Parse(time.RFC3339, *start)
	if err != nil {
		log.Fatalf("Invalid --start: %v", err)
	}
	_, insideNet, err := net.ParseCIDR(*inside)
	if err != nil {
		log.Fatalf("Invalid --inside: %v", err)
	}
	if ones, _ := insideNet.Mask.Size(); ones != 16 {
		log.Fatalf("--inside must be a /16, got /%d", ones)
	}
	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		log.Fatalf("Failed to create output directory: %v", err)
	}

	rng := rand.New(rand.NewSource(*seed))
	for i := 0; i < *files; i++ {
		hour := first.Add(time.Duration(i) * time.Hour)
		name := filepath.Join(*outDir, fmt.Sprintf("trace-%s.pcap", hour.Format("200601021504")))
		if err := writeFile(name, hour, *packetCount, insideNet.IP.To4(), rng); err != nil {
			log.Fatalf("Failed to write %s: %v", name, err)
		}
		log.Printf("Generated %d packets into %s", *packetCount, name)
	}
}

func writeFile(path string, hour time.Time, count int, inside net.IP, rng *rand.Rand) error {
	// Write under a temporary name so the collector never sees a partial file.
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}

	w := pcapgo.NewWriter(f)
	if err := w.WriteFileHeader(65536, layers.LinkTypeEthernet); err != nil {
		f.Close()
		return err
	}

	pick := func() net.IP {
		if rng.Intn(2) == 0 {
			return net.IP{inside[0], inside[1], byte(rng.Intn(4)), byte(1 + rng.Intn(254))}
		}
		return net.IP{8, 8, byte(rng.Intn(4)), 8}
	}

	for i := 0; i < count; i++ {
		ipLayer := &layers.IPv4{
			SrcIP:    pick(),
			DstIP:    pick(),
			Version:  4,
			TTL:      64,
			Protocol: layers.IPProtocolTCP,
		}
		tcpLayer := &layers.TCP{
			SrcPort: layers.TCPPort(rng.Intn(65535-1024) + 1024),
			DstPort: 443,
			Seq:     rng.Uint32(),
			ACK:     true,
			Window:  14600,
		}
		if err := tcpLayer.SetNetworkLayerForChecksum(ipLayer); err != nil {
			f.Close()
			return err
		}
		payload := make([]byte, rng.Intn(1400)+50)
		rng.Read(payload)

		buf := gopacket.NewSerializeBuffer()
		opts := gopacket.SerializeOptions{ComputeChecksums: true, FixLengths: true}
		err := gopacket.SerializeLayers(buf, opts,
			&layers.Ethernet{
				SrcMAC:       net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
				DstMAC:       net.HardwareAddr{0x00, 0x66, 0x77, 0x88, 0x99, 0xAA},
				EthernetType: layers.EthernetTypeIPv4,
			},
			ipLayer, tcpLayer, gopacket.Payload(payload))
		if err != nil {
			f.Close()
			return err
		}

		data := buf.Bytes()
		ci := gopacket.CaptureInfo{
			Timestamp:     hour.Add(time.Duration(rng.Int63n(int64(time.Hour)))),
			CaptureLength: len(data),
			Length:        len(data),
		}
		if err := w.WritePacket(ci, data); err != nil {
			f.Close()
			return err
		}
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
