// Package nfdump reads flow records from nfcapd spool files by running nfdump.
package nfdump

import (
	"NetFlowRollup/internal/config"
	"NetFlowRollup/internal/model"
	"NetFlowRollup/internal/source/spool"
	"bytes"
	"context"
	"os/exec"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"golang.org/x/xerrors"
)

// Runner executes an external command and returns its standard output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs the command with os/exec.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, xerrors.Errorf("%s: %w: %s", name, err, bytes.TrimSpace(stderr.Bytes()))
	}
	return stdout.Bytes(), nil
}

// Source implements model.RecordSource over an nfcapd spool directory.
type Source struct {
	spool  *spool.Spool
	nfdump string
	run    Runner
}

var _ model.RecordSource = (*Source)(nil)

// New creates a Source from the source configuration.
func New(cfg config.SourceConfig, fs afero.Fs, run Runner) (*Source, error) {
	sp, err := spool.New(fs, cfg.SpoolDir, cfg.FilePattern, cfg.ArchiveDir)
	if err != nil {
		return nil, err
	}
	if run == nil {
		run = ExecRunner
	}
	bin := cfg.NfdumpPath
	if bin == "" {
		bin = "nfdump"
	}
	return &Source{spool: sp, nfdump: bin, run: run}, nil
}

// Name implements model.RecordSource.
func (s *Source) Name() string { return "nfdump:" + s.spool.Dir() }

// Records decodes every ready spool file. A file nfdump fails to run on is left
// in place for the next cycle; a file whose output is not a JSON array is still
// retired because reading it again cannot succeed.
func (s *Source) Records(ctx context.Context) ([]model.FlowRecord, error) {
	paths, err := s.spool.Ready()
	if err != nil {
		return nil, err
	}

	var records []model.FlowRecord
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out, err := s.run(ctx, s.nfdump, "-r", path, "-o", "json")
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Warnf("nfdump failed on %s, will retry next cycle: %v", path, err)
			continue
		}
		name := filepath.Base(path)
		recs, stats, err := Decode(out, func(index int, err error) {
			log.Warnf("Skipping record %d of %s: %v", index, name, err)
		})
		if err != nil {
			log.Errorf("Discarding %s: %v", name, err)
		}
		log.Debugf("Decoded %s: %d records, %d ipv6 filtered, %d skipped", name, stats.Decoded, stats.IPv6, stats.Skipped)
		records = append(records, recs...)
		s.spool.Consumed(path)
	}
	return records, nil
}

// Commit retires the files read by the last Records call.
func (s *Source) Commit(ctx context.Context) error {
	return s.spool.Commit()
}
