package factory

import (
	"NetFlowRollup/internal/config"
	"NetFlowRollup/internal/model"
	"context"
	"errors"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSource struct{}

func (stubSource) Records(context.Context) ([]model.FlowRecord, error) { return nil, nil }
func (stubSource) Commit(context.Context) error                        { return nil }
func (stubSource) Name() string                                        { return "stub" }

func TestCreate_BuiltinTypes(t *testing.T) {
	fs := afero.NewMemMapFs()
	for _, typ := range []string{"nfdump", "pcap"} {
		cfg := config.Default().Source
		cfg.Type = typ
		cfg.SpoolDir = "/spool"
		src, err := Create(cfg, fs)
		require.NoError(t, err, typ)
		assert.Contains(t, src.Name(), typ+":")
	}
}

func TestCreate_Errors(t *testing.T) {
	cfg := config.Default().Source
	cfg.Type = "sflow"
	_, err := Create(cfg, afero.NewMemMapFs())
	assert.ErrorContains(t, err, "unknown source type")

	cfg.Type = "nfdump"
	cfg.SpoolDir = ""
	_, err = Create(cfg, afero.NewMemMapFs())
	assert.Error(t, err)
}

func TestRegisterSource(t *testing.T) {
	RegisterSource("stub", func(config.SourceConfig, afero.Fs) (model.RecordSource, error) {
		return stubSource{}, nil
	})
	t.Cleanup(func() { delete(registry, "stub") })

	assert.Equal(t, []string{"nfdump", "pcap", "stub"}, Types())
	assert.Panics(t, func() {
		RegisterSource("stub", nil)
	})
}

func TestCreate_WrapsFactoryError(t *testing.T) {
	errBroken := errors.New("spool missing")
	RegisterSource("broken", func(config.SourceConfig, afero.Fs) (model.RecordSource, error) {
		return nil, errBroken
	})
	t.Cleanup(func() { delete(registry, "broken") })

	cfg := config.Default().Source
	cfg.Type = "broken"
	_, err := Create(cfg, afero.NewMemMapFs())
	require.ErrorIs(t, err, errBroken)
	assert.Contains(t, err.Error(), "error creating source type 'broken'")
}
