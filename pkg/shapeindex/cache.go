package shapeindex

import (
	"encoding/gob"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/utiliqc/spanqc/pkg/errors"
	"github.com/utiliqc/spanqc/pkg/logging"
)

// LayerData is the serializable form of a loaded layer. It carries only
// what Load derives from the shapefile; the R-tree is rebuilt on restore.
type LayerData struct {
	Points [][]r2.Vec
	BBoxes [][4]float64
	Attrs  []Attrs
}

// Store persists loaded layers so repeated runs skip the shapefile read.
type Store interface {
	// Load returns the cached layer data for a shapefile, or false when no
	// fresh entry exists.
	Load(shpPath string) (*LayerData, bool)
	// Save writes the layer data for a shapefile.
	Save(shpPath string, data *LayerData) error
}

// DirStore is a Store that keeps one gob file per shapefile in a .cache
// directory next to the source. An entry older than its shapefile is stale.
type DirStore struct{}

// NewDirStore returns the default on-disk Store.
func NewDirStore() DirStore {
	return DirStore{}
}

func (DirStore) cachePath(shpPath string) string {
	dir := filepath.Dir(shpPath)
	stem := strings.TrimSuffix(filepath.Base(shpPath), filepath.Ext(shpPath))
	return filepath.Join(dir, ".cache", stem+".gob")
}

// Load implements Store.
func (s DirStore) Load(shpPath string) (*LayerData, bool) {
	src, err := os.Stat(shpPath)
	if err != nil {
		return nil, false
	}
	cp := s.cachePath(shpPath)
	ci, err := os.Stat(cp)
	if err != nil || ci.ModTime().Before(src.ModTime()) {
		return nil, false
	}
	f, err := os.Open(cp)
	if err != nil {
		return nil, false
	}
	defer func() { _ = f.Close() }()

	var data LayerData
	if err := gob.NewDecoder(f).Decode(&data); err != nil {
		logging.Default().Debug().Str("cache", cp).Err(err).Msg("discarding unreadable layer cache")
		return nil, false
	}
	if len(data.Points) != len(data.Attrs) || len(data.Points) != len(data.BBoxes) {
		return nil, false
	}
	return &data, true
}

// Save implements Store.
func (s DirStore) Save(shpPath string, data *LayerData) error {
	cp := s.cachePath(shpPath)
	if err := os.MkdirAll(filepath.Dir(cp), 0o755); err != nil {
		return errors.WrapIO("mkdir", filepath.Dir(cp), err)
	}
	tmp := cp + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return errors.WrapIO("create", tmp, err)
	}
	if err := gob.NewEncoder(f).Encode(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return errors.WrapIO("encode", tmp, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return errors.WrapIO("close", tmp, err)
	}
	if err := os.Rename(tmp, cp); err != nil {
		_ = os.Remove(tmp)
		return errors.WrapIO("rename", cp, err)
	}
	return nil
}

// data returns the serializable form of the layer.
func (l *Layer) data() *LayerData {
	d := &LayerData{
		Points: make([][]r2.Vec, len(l.features)),
		BBoxes: make([][4]float64, len(l.features)),
		Attrs:  make([]Attrs, len(l.features)),
	}
	for i := range l.features {
		d.Points[i] = l.features[i].points
		d.BBoxes[i] = l.features[i].bbox
		d.Attrs[i] = l.features[i].attrs
	}
	return d
}

// fromData rebuilds a Layer from its serialized form.
func fromData(d *LayerData, opts ...Option) *Layer {
	o := newOptions(opts...)
	l := &Layer{margin: o.margin, features: make([]feature, len(d.Points))}
	for i := range d.Points {
		l.features[i] = feature{points: d.Points[i], bbox: d.BBoxes[i], attrs: d.Attrs[i]}
	}
	l.buildIndex()
	return l
}

// Cache memoizes loaded layers by absolute shapefile path, consulting an
// optional Store before reading the shapefile itself. Safe for concurrent use.
type Cache struct {
	mu     sync.Mutex
	layers map[string]*Layer
	store  Store
}

// NewCache returns a Cache backed by the given Store; store may be nil to
// cache in memory only.
func NewCache(store Store) *Cache {
	return &Cache{layers: make(map[string]*Layer), store: store}
}

// Get returns the layer for a shapefile, loading it at most once per path.
// A cache write failure is logged and otherwise ignored; the loaded layer
// is still returned.
func (c *Cache) Get(path string, opts ...Option) (*Layer, error) {
	key := path
	if abs, err := filepath.Abs(path); err == nil {
		key = abs
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if l, ok := c.layers[key]; ok {
		return l, nil
	}

	if c.store != nil {
		if data, ok := c.store.Load(key); ok {
			l := fromData(data, opts...)
			c.layers[key] = l
			logging.Default().Debug().Str("layer", key).Int("features", l.Len()).
				Msg("layer restored from cache")
			return l, nil
		}
	}

	l, err := Load(key, opts...)
	if err != nil {
		return nil, err
	}
	c.layers[key] = l
	if c.store != nil {
		if err := c.store.Save(key, l.data()); err != nil {
			logging.Default().Warn().Str("layer", key).Err(err).
				Msg("layer cache write failed")
		}
	}
	return l, nil
}
