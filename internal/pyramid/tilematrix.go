// Package pyramid binds tile matrices, levels and storage into the
// serving model: resolve a tile coordinate to a slab, fetch windows of
// tiles, resample or reproject them to a requested raster.
package pyramid

import (
	"fmt"
	"math"
	"sort"
)

// TileMatrix is the immutable geometry of one pyramid level: ground
// resolution (identical on both axes), origin of the top-left pixel in
// terrain coordinates, tile pixel dimensions, matrix dimensions in tiles.
type TileMatrix struct {
	ID     string
	Res    float64
	X0     float64
	Y0     float64
	TileW  int
	TileH  int
	MatrixW int
	MatrixH int
}

// Validate checks the level geometry.
func (tm *TileMatrix) Validate() error {
	if tm.ID == "" {
		return fmt.Errorf("tile matrix without identifier")
	}
	if tm.Res <= 0 {
		return fmt.Errorf("tile matrix %s: resolution %g must be positive", tm.ID, tm.Res)
	}
	if tm.TileW <= 0 || tm.TileH <= 0 {
		return fmt.Errorf("tile matrix %s: tile dimensions %dx%d must be positive", tm.ID, tm.TileW, tm.TileH)
	}
	if tm.MatrixW <= 0 || tm.MatrixH <= 0 {
		return fmt.Errorf("tile matrix %s: matrix dimensions %dx%d must be positive", tm.ID, tm.MatrixW, tm.MatrixH)
	}
	return nil
}

// PhaseX is the fractional alignment of the origin to the resolution.
func (tm *TileMatrix) PhaseX() float64 {
	_, frac := math.Modf(tm.X0 / tm.Res)
	if frac < 0 {
		frac += 1
	}
	return frac
}

// PhaseY is the Y counterpart of PhaseX.
func (tm *TileMatrix) PhaseY() float64 {
	_, frac := math.Modf(tm.Y0 / tm.Res)
	if frac < 0 {
		frac += 1
	}
	return frac
}

// TileMatrixSet is an ordered collection of tile matrices sharing a CRS.
type TileMatrixSet struct {
	ID  string
	CRS string

	byID  map[string]*TileMatrix
	order []*TileMatrix
}

// NewTileMatrixSet validates the matrices and orders them from coarse to
// fine resolution.
func NewTileMatrixSet(id, crs string, matrices []*TileMatrix) (*TileMatrixSet, error) {
	if len(matrices) == 0 {
		return nil, fmt.Errorf("tile matrix set %s has no matrices", id)
	}

	s := &TileMatrixSet{ID: id, CRS: crs, byID: make(map[string]*TileMatrix, len(matrices))}
	for _, tm := range matrices {
		if err := tm.Validate(); err != nil {
			return nil, fmt.Errorf("tile matrix set %s: %w", id, err)
		}
		if _, dup := s.byID[tm.ID]; dup {
			return nil, fmt.Errorf("tile matrix set %s: duplicate matrix %s", id, tm.ID)
		}
		s.byID[tm.ID] = tm
		s.order = append(s.order, tm)
	}
	sort.SliceStable(s.order, func(i, j int) bool { return s.order[i].Res > s.order[j].Res })
	return s, nil
}

// Get returns the matrix of an identifier, or nil.
func (s *TileMatrixSet) Get(id string) *TileMatrix {
	return s.byID[id]
}

// Ordered returns the matrices from coarse to fine.
func (s *TileMatrixSet) Ordered() []*TileMatrix {
	return s.order
}
