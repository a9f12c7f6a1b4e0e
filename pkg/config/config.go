// Package config holds the job configuration: the survey label mapping,
// matching tolerances, and layer file names. Values come from an optional
// YAML file layered over defaults; a missing file just means defaults.
package config

import (
	"os"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/utiliqc/spanqc/pkg/errors"
)

// LayerNames are the shapefile base names looked up inside the shape
// directory (without the .shp extension).
type LayerNames struct {
	Primary   string `yaml:"primary"`
	Secondary string `yaml:"secondary"`
}

// Config is one job's configuration.
type Config struct {
	// SpanTypeMapping maps lowercase survey attachment labels to canonical
	// span type keys. An empty value drops the label; labels absent from
	// the mapping pass through as their own lowercase form.
	SpanTypeMapping map[string]string `yaml:"span_type_mapping"`

	// LengthToleranceIn is the absolute span length tolerance, inches.
	LengthToleranceIn float64 `yaml:"length_tolerance_in"`

	// BearingToleranceDeg is the bearing match tolerance, degrees.
	BearingToleranceDeg float64 `yaml:"bearing_tolerance_deg"`

	// SearchMargin is the spatial query bbox expansion, layer units.
	SearchMargin float64 `yaml:"search_margin"`

	// WireSpecTolerance is the relative tolerance used when matching a
	// connection's span distance against design span lengths.
	WireSpecTolerance float64 `yaml:"wire_spec_tolerance"`

	// PowerLabel is the power company name in midspan-heights sheets;
	// rows attributed to it never count toward comm bounds.
	PowerLabel string `yaml:"power_label"`

	Layers LayerNames `yaml:"layers"`
}

// Defaults returns the stock configuration.
func Defaults() Config {
	return Config{
		SpanTypeMapping: map[string]string{
			"primary":           "primary",
			"neutral":           "neutral",
			"secondary":         "secondary",
			"open secondary":    "secondary",
			"catv com":          "catv",
			"fiber optic com":   "fiber",
			"telco com":         "telco",
			"com drop":          "",
			"power guy":         "",
			"street light feed": "",
		},
		LengthToleranceIn:   36,
		BearingToleranceDeg: 10,
		SearchMargin:        500,
		WireSpecTolerance:   0.15,
		PowerLabel:          "OPPD",
		Layers: LayerNames{
			Primary:   "ElectricLine selection",
			Secondary: "S_ElectricLine selection",
		},
	}
}

// LoadFile reads a YAML config file over the defaults. An empty path or a
// missing file returns the defaults unchanged.
func LoadFile(path string) (Config, error) {
	cfg := Defaults()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, errors.WrapIO("read", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Defaults(), errors.NewConfigError("job", "bad YAML in "+path, err)
	}
	cfg.normalize()
	return cfg, nil
}

// normalize lowercases the mapping and backfills zeroed tolerances.
func (c *Config) normalize() {
	d := Defaults()
	if c.LengthToleranceIn <= 0 {
		c.LengthToleranceIn = d.LengthToleranceIn
	}
	if c.BearingToleranceDeg <= 0 {
		c.BearingToleranceDeg = d.BearingToleranceDeg
	}
	if c.SearchMargin <= 0 {
		c.SearchMargin = d.SearchMargin
	}
	if c.WireSpecTolerance <= 0 {
		c.WireSpecTolerance = d.WireSpecTolerance
	}
	if c.PowerLabel == "" {
		c.PowerLabel = d.PowerLabel
	}
	if c.Layers.Primary == "" {
		c.Layers.Primary = d.Layers.Primary
	}
	if c.Layers.Secondary == "" {
		c.Layers.Secondary = d.Layers.Secondary
	}
	if c.SpanTypeMapping == nil {
		c.SpanTypeMapping = d.SpanTypeMapping
		return
	}
	m := make(map[string]string, len(c.SpanTypeMapping))
	for k, v := range c.SpanTypeMapping {
		m[strings.ToLower(strings.TrimSpace(k))] = strings.ToLower(strings.TrimSpace(v))
	}
	c.SpanTypeMapping = m
}
