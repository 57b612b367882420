package datasource

import (
	"fmt"
	"log/slog"
)

// Config is the datasource.* block of the worker's YAML configuration.
type Config struct {
	Type string `yaml:"type"`

	// file / test variants
	Path      string `yaml:"path"`
	AuctionID string `yaml:"auction_id"`

	// external_api variant
	ExternalAPI ExternalAPIConfig `yaml:"-"`
}

// Factory builds a Datasource for cfg.Type, grounded on
// datasource.py's DATASOURCE_MAPPING + prepare_datasource. Additional
// variants can be registered with Register before calling Build.
type Factory struct {
	builders map[string]func(Config, *slog.Logger) (Datasource, error)
}

// NewFactory returns a Factory pre-registered with the three built-in
// variants named in spec.md §9: external_api, file, test.
func NewFactory() *Factory {
	f := &Factory{builders: map[string]func(Config, *slog.Logger) (Datasource, error){}}
	f.Register("file", func(cfg Config, _ *slog.Logger) (Datasource, error) {
		return NewFileDataSource(cfg.Path, cfg.AuctionID), nil
	})
	f.Register("test", func(cfg Config, _ *slog.Logger) (Datasource, error) {
		return NewTestDataSource(cfg.Path), nil
	})
	f.Register("external_api", func(cfg Config, logger *slog.Logger) (Datasource, error) {
		return NewHTTPDataSource(cfg.ExternalAPI, logger), nil
	})
	return f
}

// Register installs or replaces the builder for a datasource type name.
func (f *Factory) Register(name string, builder func(Config, *slog.Logger) (Datasource, error)) {
	f.builders[name] = builder
}

// Build constructs the Datasource named by cfg.Type.
func (f *Factory) Build(cfg Config, logger *slog.Logger) (Datasource, error) {
	builder, ok := f.builders[cfg.Type]
	if !ok {
		return nil, fmt.Errorf("datasource: no builder registered for type %q", cfg.Type)
	}
	return builder(cfg, logger)
}
