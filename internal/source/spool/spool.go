// Package spool tracks the capture files a collector drops into a directory and
// retires them once their contents are safely stored.
package spool

import (
	"path/filepath"
	"regexp"
	"sort"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"golang.org/x/xerrors"
)

// Spool lists finished capture files in Dir and archives or deletes them once
// committed. It is not safe for concurrent use.
type Spool struct {
	fs         afero.Fs
	dir        string
	archiveDir string
	pattern    *regexp.Regexp

	read     []string // consumed since the last Ready call
	stranded []string // committed but not yet retired
}

// New creates a Spool. Only file names fully matching pattern are listed, so
// files still being written under a temporary name are ignored. An empty
// archiveDir makes Retire delete files instead of moving them.
func New(fs afero.Fs, dir, pattern, archiveDir string) (*Spool, error) {
	re, err := regexp.Compile("^(?:" + pattern + ")$")
	if err != nil {
		return nil, xerrors.Errorf("invalid spool file pattern %q: %w", pattern, err)
	}
	if dir == "" {
		return nil, xerrors.New("spool directory is required")
	}
	return &Spool{fs: fs, dir: dir, archiveDir: archiveDir, pattern: re}, nil
}

// Dir returns the spool directory.
func (s *Spool) Dir() string { return s.dir }

// List returns the paths of all ready files, oldest name first.
func (s *Spool) List() ([]string, error) {
	infos, err := afero.ReadDir(s.fs, s.dir)
	if err != nil {
		return nil, xerrors.Errorf("failed to read spool directory %s: %w", s.dir, err)
	}
	var paths []string
	for _, fi := range infos {
		if fi.IsDir() || !s.pattern.MatchString(fi.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(s.dir, fi.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

// Ready lists the files a new cycle should read. Files that were committed but
// failed to retire are left out so their contents are never counted twice.
func (s *Spool) Ready() ([]string, error) {
	paths, err := s.List()
	if err != nil {
		return nil, err
	}
	s.read = s.read[:0]
	if len(s.stranded) == 0 {
		return paths, nil
	}
	skip := make(map[string]bool, len(s.stranded))
	for _, p := range s.stranded {
		skip[p] = true
	}
	ready := paths[:0]
	for _, p := range paths {
		if !skip[p] {
			ready = append(ready, p)
		}
	}
	return ready, nil
}

// Consumed records that path was read in the current cycle.
func (s *Spool) Consumed(path string) {
	s.read = append(s.read, path)
}

// Commit retires every file consumed since the last Ready call, plus any file
// a previous Commit failed to retire.
func (s *Spool) Commit() error {
	s.stranded = append(s.stranded, s.read...)
	s.read = s.read[:0]
	n, err := s.Retire(s.stranded)
	s.stranded = append(s.stranded[:0], s.stranded[n:]...)
	return err
}

// Open opens a spool file for reading.
func (s *Spool) Open(path string) (afero.File, error) {
	return s.fs.Open(path)
}

// Retire archives or deletes paths in order and returns how many were retired.
// It stops at the first failure.
func (s *Spool) Retire(paths []string) (int, error) {
	if len(paths) == 0 {
		return 0, nil
	}
	if s.archiveDir != "" {
		if err := s.fs.MkdirAll(s.archiveDir, 0o755); err != nil {
			return 0, xerrors.Errorf("failed to create archive directory %s: %w", s.archiveDir, err)
		}
	}
	for i, p := range paths {
		if s.archiveDir == "" {
			if err := s.fs.Remove(p); err != nil {
				return i, xerrors.Errorf("failed to remove %s: %w", p, err)
			}
			continue
		}
		dst := filepath.Join(s.archiveDir, filepath.Base(p))
		if err := s.fs.Rename(p, dst); err != nil {
			return i, xerrors.Errorf("failed to archive %s: %w", p, err)
		}
	}
	log.Debugf("Retired %d spool files from %s", len(paths), s.dir)
	return len(paths), nil
}
