// Package capture reads flow records from pcap files dropped into a spool directory.
package capture

import (
	"NetFlowRollup/internal/config"
	"NetFlowRollup/internal/model"
	"NetFlowRollup/internal/source/spool"
	"NetFlowRollup/pkg/pcap"
	"context"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// DefaultPattern matches rotated capture files such as trace-202405011000.pcap.
const DefaultPattern = `.+\.pcap`

// Source implements model.RecordSource over a directory of pcap files.
type Source struct {
	spool *spool.Spool
}

var _ model.RecordSource = (*Source)(nil)

// New creates a Source. The nfcapd file pattern of the default configuration is
// replaced by DefaultPattern.
func New(cfg config.SourceConfig, fs afero.Fs) (*Source, error) {
	pattern := cfg.FilePattern
	if pattern == "" || pattern == config.Default().Source.FilePattern {
		pattern = DefaultPattern
	}
	sp, err := spool.New(fs, cfg.SpoolDir, pattern, cfg.ArchiveDir)
	if err != nil {
		return nil, err
	}
	return &Source{spool: sp}, nil
}

// Name implements model.RecordSource.
func (s *Source) Name() string { return "pcap:" + s.spool.Dir() }

// Records reads every ready capture file. A file with a bad header is retired
// without records; a truncated file contributes the packets before the damage.
func (s *Source) Records(ctx context.Context) ([]model.FlowRecord, error) {
	paths, err := s.spool.Ready()
	if err != nil {
		return nil, err
	}
	var records []model.FlowRecord
	for _, path := range paths {
		recs, err := s.readFile(ctx, path)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Warnf("Reading %s stopped early: %v", filepath.Base(path), err)
		}
		records = append(records, recs...)
		s.spool.Consumed(path)
	}
	return records, nil
}

func (s *Source) readFile(ctx context.Context, path string) ([]model.FlowRecord, error) {
	f, err := s.spool.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader, err := pcap.NewReader(f)
	if err != nil {
		return nil, err
	}
	skipped := 0
	recs, err := reader.ReadRecords(ctx, func(error) { skipped++ })
	if skipped > 0 {
		log.Debugf("Skipped %d non-IPv4 packets in %s", skipped, filepath.Base(path))
	}
	return recs, err
}

// Commit retires the files read by the last Records call.
func (s *Source) Commit(ctx context.Context) error {
	return s.spool.Commit()
}
