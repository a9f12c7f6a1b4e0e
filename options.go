package spanqc

import (
	"github.com/utiliqc/spanqc/pkg/config"
	"github.com/utiliqc/spanqc/pkg/errors"
	"github.com/utiliqc/spanqc/pkg/shapeindex"
)

// Option configures an Engine during New.
type Option func(*Engine) error

// WithWorkbook sets the survey workbook path. Required.
func WithWorkbook(path string) Option {
	return func(e *Engine) error {
		if path == "" {
			return errors.NewValidationError("workbook", path, "path must not be empty")
		}
		e.workbookPath = path
		return nil
	}
}

// WithDesignDir sets the directory of per-pole PPLX design files.
func WithDesignDir(path string) Option {
	return func(e *Engine) error {
		e.designDir = path
		return nil
	}
}

// WithShapeDir sets the directory holding the line layer shapefiles.
func WithShapeDir(path string) Option {
	return func(e *Engine) error {
		e.shapeDir = path
		return nil
	}
}

// WithMidspanHeights sets the optional height-measurement workbook used to
// bound comm attachment counts.
func WithMidspanHeights(path string) Option {
	return func(e *Engine) error {
		e.heightsPath = path
		return nil
	}
}

// WithConfig replaces the job configuration wholesale.
func WithConfig(cfg config.Config) Option {
	return func(e *Engine) error {
		e.cfg = cfg
		return nil
	}
}

// WithConfigFile loads the job configuration from a YAML file during New.
func WithConfigFile(path string) Option {
	return func(e *Engine) error {
		e.cfgPath = path
		return nil
	}
}

// WithWorkers bounds the design-file preload pool.
func WithWorkers(n int) Option {
	return func(e *Engine) error {
		if n < 1 {
			return errors.NewValidationError("workers", n, "must be at least 1")
		}
		e.workers = n
		return nil
	}
}

// WithLayerCache shares a layer cache between engines.
func WithLayerCache(c *shapeindex.Cache) Option {
	return func(e *Engine) error {
		e.layers = c
		return nil
	}
}

// WithStore replaces the on-disk layer cache store; useful for tests and
// for disabling disk caching with a nil-backed store.
func WithStore(s shapeindex.Store) Option {
	return func(e *Engine) error {
		e.store = s
		return nil
	}
}
