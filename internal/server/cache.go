package server

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/starfield-go/starfield/internal/fits"
	"github.com/starfield-go/starfield/internal/grid"
	"github.com/starfield-go/starfield/internal/segment"
	"github.com/starfield-go/starfield/internal/wcs"
)

// Field is one loaded image plus the analysis state accumulated by tool
// calls against it: the coordinate frame from its header (if any), the
// latest segmentation map, and the latest measured catalog.
type Field struct {
	mu sync.Mutex

	Data  *grid.Grid
	Frame *wcs.Frame // nil when the file carries no usable WCS

	Map     *segment.Map
	Catalog *segment.Catalog

	// Detection parameters of the current Map, recorded for provenance
	// when the catalog is archived.
	Threshold float64
	MinPixels int
}

// FieldCache provides thread-safe caching of loaded fields so repeated
// tool calls against the same path avoid redundant disk reads and keep
// their detection state.
//
// Fields are keyed by the exact path string, so relative and absolute
// paths to the same file occupy separate entries. Entries stay in memory
// until Evict or Clear.
type FieldCache struct {
	mu     sync.RWMutex
	fields map[string]*Field
}

// NewFieldCache creates an empty cache ready for concurrent use.
func NewFieldCache() *FieldCache {
	return &FieldCache{fields: make(map[string]*Field)}
}

// Load retrieves a field from the cache or reads it from disk. Files with
// a .fits/.fit/.fts extension decode as FITS, anything else as a regular
// raster image converted to luminance.
func (c *FieldCache) Load(path string) (*Field, error) {
	c.mu.RLock()
	if f, ok := c.fields[path]; ok {
		c.mu.RUnlock()
		return f, nil
	}
	c.mu.RUnlock()

	field, err := loadField(path)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	// Another goroutine may have loaded the same path meanwhile; keep the
	// first entry so accumulated state is not thrown away.
	if existing, ok := c.fields[path]; ok {
		c.mu.Unlock()
		return existing, nil
	}
	c.fields[path] = field
	c.mu.Unlock()
	return field, nil
}

// Evict removes one path from the cache.
func (c *FieldCache) Evict(path string) {
	c.mu.Lock()
	delete(c.fields, path)
	c.mu.Unlock()
}

// Clear removes all cached fields.
func (c *FieldCache) Clear() {
	c.mu.Lock()
	c.fields = make(map[string]*Field)
	c.mu.Unlock()
}

func loadField(path string) (*Field, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".fits", ".fit", ".fts":
		img, err := fits.Open(path)
		if err != nil {
			return nil, err
		}
		field := &Field{Data: img.Data}
		// A frame is optional: plain camera FITS files have no WCS and
		// every pixel-space tool still works.
		if frame, err := img.Frame(); err == nil {
			field.Frame = frame
		}
		return field, nil
	default:
		g, err := grid.LoadImage(path, grid.LoadOptions{})
		if err != nil {
			return nil, fmt.Errorf("failed to load image: %w", err)
		}
		return &Field{Data: g}, nil
	}
}
