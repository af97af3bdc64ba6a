package spool

import (
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(t *testing.T, fs afero.Fs, names ...string) {
	t.Helper()
	for _, n := range names {
		require.NoError(t, afero.WriteFile(fs, filepath.Join("/spool", n), []byte("x"), 0o644))
	}
}

func TestSpool_ListFiltersAndSorts(t *testing.T) {
	fs := afero.NewMemMapFs()
	seed(t, fs, "nfcapd.202405011010", "nfcapd.current.1234", "nfcapd.202405011000", "notes.txt", "nfcapd.2024050110001")
	require.NoError(t, fs.MkdirAll("/spool/nfcapd.202405011020", 0o755))

	s, err := New(fs, "/spool", `nfcapd\.\d{12}`, "")
	require.NoError(t, err)

	paths, err := s.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"/spool/nfcapd.202405011000", "/spool/nfcapd.202405011010"}, paths)
}

func TestSpool_RetireDeletes(t *testing.T) {
	fs := afero.NewMemMapFs()
	seed(t, fs, "nfcapd.202405011000", "nfcapd.202405011005")
	s, err := New(fs, "/spool", `nfcapd\.\d{12}`, "")
	require.NoError(t, err)

	n, err := s.Retire([]string{"/spool/nfcapd.202405011000"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	paths, err := s.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"/spool/nfcapd.202405011005"}, paths)
}

func TestSpool_RetireArchives(t *testing.T) {
	fs := afero.NewMemMapFs()
	seed(t, fs, "nfcapd.202405011000")
	s, err := New(fs, "/spool", `nfcapd\.\d{12}`, "/archive")
	require.NoError(t, err)

	_, err = s.Retire([]string{"/spool/nfcapd.202405011000"})
	require.NoError(t, err)
	paths, err := s.List()
	require.NoError(t, err)
	assert.Empty(t, paths)

	ok, err := afero.Exists(fs, "/archive/nfcapd.202405011000")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSpool_Errors(t *testing.T) {
	fs := afero.NewMemMapFs()
	_, err := New(fs, "/spool", `nfcapd\.(`, "")
	assert.Error(t, err)
	_, err = New(fs, "", `x`, "")
	assert.Error(t, err)

	s, err := New(fs, "/missing", `x`, "")
	require.NoError(t, err)
	_, err = s.List()
	assert.Error(t, err)
	n, err := s.Retire([]string{"/missing/x"})
	assert.Error(t, err)
	assert.Zero(t, n)
}

func TestSpool_CommitLifecycle(t *testing.T) {
	base := afero.NewMemMapFs()
	seed(t, base, "nfcapd.202405011000", "nfcapd.202405011005")
	s, err := New(base, "/spool", `nfcapd\.\d{12}`, "")
	require.NoError(t, err)

	ready, err := s.Ready()
	require.NoError(t, err)
	require.Len(t, ready, 2)
	s.Consumed(ready[0])

	// Only consumed files are retired.
	require.NoError(t, s.Commit())
	ready, err = s.Ready()
	require.NoError(t, err)
	assert.Equal(t, []string{"/spool/nfcapd.202405011005"}, ready)

	// A file that fails to retire is hidden from Ready until a later Commit succeeds.
	s.fs = afero.NewReadOnlyFs(base)
	s.Consumed(ready[0])
	require.Error(t, s.Commit())
	ready, err = s.Ready()
	require.NoError(t, err)
	assert.Empty(t, ready)

	s.fs = base
	require.NoError(t, s.Commit())
	paths, err := s.List()
	require.NoError(t, err)
	assert.Empty(t, paths)
}
