package factory

import (
	"NetFlowRollup/internal/config"
	"NetFlowRollup/internal/model"
	"NetFlowRollup/internal/source/capture"
	"NetFlowRollup/internal/source/nfdump"
	"fmt"
	"sort"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"golang.org/x/xerrors"
)

// SourceFactory creates a record source from the source configuration.
type SourceFactory func(cfg config.SourceConfig, fs afero.Fs) (model.RecordSource, error)

// registry holds the mapping of source types to their factory functions.
var registry = make(map[string]SourceFactory)

func init() {
	RegisterSource("nfdump", func(cfg config.SourceConfig, fs afero.Fs) (model.RecordSource, error) {
		return nfdump.New(cfg, fs, nil)
	})
	RegisterSource("pcap", func(cfg config.SourceConfig, fs afero.Fs) (model.RecordSource, error) {
		return capture.New(cfg, fs)
	})
}

// RegisterSource registers a new source type with its factory function.
func RegisterSource(name string, factory SourceFactory) {
	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("source type '%s' already registered", name))
	}
	registry[name] = factory
}

// Types returns the registered source types in sorted order.
func Types() []string {
	types := make([]string, 0, len(registry))
	for name := range registry {
		types = append(types, name)
	}
	sort.Strings(types)
	return types
}

// Create builds the record source named by cfg.Type.
func Create(cfg config.SourceConfig, fs afero.Fs) (model.RecordSource, error) {
	log.Printf("Creating record source of type: '%s'", cfg.Type)

	factory, ok := registry[cfg.Type]
	if !ok {
		return nil, xerrors.Errorf("unknown source type: '%s'", cfg.Type)
	}
	src, err := factory(cfg, fs)
	if err != nil {
		return nil, xerrors.Errorf("error creating source type '%s': %w", cfg.Type, err)
	}
	return src, nil
}
