package catalog

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/starfield-go/starfield/internal/segment"
)

// Store archives catalogs in a SQLite database, one row per source,
// grouped into runs so repeated reductions of the same field can be
// compared.
type Store struct {
	db *sql.DB
}

// OpenStore opens (creating if needed) a catalog database at path.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			run_id INTEGER PRIMARY KEY AUTOINCREMENT,
			image TEXT NOT NULL,
			threshold DOUBLE NOT NULL,
			min_pixels INTEGER NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
		CREATE TABLE IF NOT EXISTS sources (
			run_id INTEGER NOT NULL,
			label INTEGER NOT NULL,
			pixel_count INTEGER NOT NULL,
			centroid_x DOUBLE NOT NULL,
			centroid_y DOUBLE NOT NULL,
			flux DOUBLE NOT NULL,
			flux_err DOUBLE,
			peak DOUBLE NOT NULL,
			peak_x INTEGER NOT NULL,
			peak_y INTEGER NOT NULL,
			bbox_min_x INTEGER NOT NULL,
			bbox_min_y INTEGER NOT NULL,
			bbox_max_x INTEGER NOT NULL,
			bbox_max_y INTEGER NOT NULL,
			ra DOUBLE,
			dec DOUBLE,
			PRIMARY KEY (run_id, label),
			FOREIGN KEY (run_id) REFERENCES runs(run_id)
		);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize catalog schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// Run describes one archived reduction.
type Run struct {
	ID        int64
	Image     string
	Threshold float64
	MinPixels int
	CreatedAt time.Time
	NSources  int
}

// SaveRun archives a catalog under a new run and returns its id. The run
// row and all source rows commit atomically.
func (s *Store) SaveRun(image string, threshold float64, minPixels int, cat *segment.Catalog) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		"INSERT INTO runs (image, threshold, min_pixels) VALUES (?, ?, ?)",
		image, threshold, minPixels,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert run: %w", err)
	}
	runID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read run id: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO sources (
			run_id, label, pixel_count, centroid_x, centroid_y,
			flux, flux_err, peak, peak_x, peak_y,
			bbox_min_x, bbox_min_y, bbox_max_x, bbox_max_y, ra, dec
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare source insert: %w", err)
	}
	defer stmt.Close()

	for _, src := range cat.Sources {
		var fluxErr, ra, dec interface{}
		if src.FluxErrValid {
			fluxErr = src.FluxErr
		}
		if src.SkyValid {
			ra, dec = src.Sky.RA, src.Sky.Dec
		}
		_, err := stmt.Exec(
			runID, src.Label, src.PixelCount, src.CentroidX, src.CentroidY,
			src.Flux, fluxErr, src.Peak, src.PeakX, src.PeakY,
			src.BBox.MinX, src.BBox.MinY, src.BBox.MaxX, src.BBox.MaxY, ra, dec,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to insert source %d: %w", src.Label, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit run: %w", err)
	}
	return runID, nil
}

// Runs lists archived runs, newest first.
func (s *Store) Runs() ([]Run, error) {
	rows, err := s.db.Query(`
		SELECT r.run_id, r.image, r.threshold, r.min_pixels, r.created_at,
		       COUNT(s.label)
		FROM runs r
		LEFT JOIN sources s ON s.run_id = r.run_id
		GROUP BY r.run_id
		ORDER BY r.run_id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Image, &r.Threshold, &r.MinPixels, &r.CreatedAt, &r.NSources); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Sources loads the catalog rows of one run in label order.
func (s *Store) Sources(runID int64) ([]*segment.SourceProperties, error) {
	rows, err := s.db.Query(`
		SELECT label, pixel_count, centroid_x, centroid_y,
		       flux, flux_err, peak, peak_x, peak_y,
		       bbox_min_x, bbox_min_y, bbox_max_x, bbox_max_y, ra, dec
		FROM sources WHERE run_id = ? ORDER BY label
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query sources: %w", err)
	}
	defer rows.Close()

	var sources []*segment.SourceProperties
	for rows.Next() {
		var src segment.SourceProperties
		var fluxErr, ra, dec sql.NullFloat64
		err := rows.Scan(
			&src.Label, &src.PixelCount, &src.CentroidX, &src.CentroidY,
			&src.Flux, &fluxErr, &src.Peak, &src.PeakX, &src.PeakY,
			&src.BBox.MinX, &src.BBox.MinY, &src.BBox.MaxX, &src.BBox.MaxY,
			&ra, &dec,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan source: %w", err)
		}
		if fluxErr.Valid {
			src.FluxErr = fluxErr.Float64
			src.FluxErrValid = true
		}
		if ra.Valid && dec.Valid {
			src.Sky.RA = ra.Float64
			src.Sky.Dec = dec.Float64
			src.SkyValid = true
		}
		sources = append(sources, &src)
	}
	return sources, rows.Err()
}
