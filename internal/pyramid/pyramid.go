package pyramid

import (
	"fmt"
	"math"

	"github.com/rok4/pyramid/internal/slab"
)

// Pyramid is an ordered sequence of levels within one tile matrix set.
// All levels share the pixel format and nodata cardinality; that is
// checked at construction and relied on everywhere after.
type Pyramid struct {
	TMS *TileMatrixSet

	levels map[string]*Level
	order  []*Level
}

// NewPyramid binds levels to their tile matrix set. Levels are ordered
// coarse to fine following the set.
func NewPyramid(tms *TileMatrixSet, levels []*Level) (*Pyramid, error) {
	if tms == nil {
		return nil, fmt.Errorf("pyramid without tile matrix set")
	}
	if len(levels) == 0 {
		return nil, fmt.Errorf("pyramid without levels")
	}

	ref := levels[0].Format
	refNodata := len(levels[0].Nodata)

	p := &Pyramid{TMS: tms, levels: make(map[string]*Level, len(levels))}
	for _, l := range levels {
		if tms.Get(l.TM.ID) == nil {
			return nil, fmt.Errorf("level %s is not part of tile matrix set %s", l.TM.ID, tms.ID)
		}
		if _, dup := p.levels[l.TM.ID]; dup {
			return nil, fmt.Errorf("duplicate level %s", l.TM.ID)
		}
		if l.Format.SampleFormat != ref.SampleFormat || l.Format.BitsPerSample != ref.BitsPerSample ||
			l.Format.Channels != ref.Channels {
			return nil, fmt.Errorf("level %s pixel format %s differs from the pyramid's %s", l.TM.ID, l.Format, ref)
		}
		if len(l.Nodata) != refNodata {
			return nil, fmt.Errorf("level %s has %d nodata values, pyramid has %d", l.TM.ID, len(l.Nodata), refNodata)
		}
		p.levels[l.TM.ID] = l
	}

	for _, tm := range tms.Ordered() {
		if l, ok := p.levels[tm.ID]; ok {
			p.order = append(p.order, l)
		}
	}
	return p, nil
}

// Format returns the shared pixel format.
func (p *Pyramid) Format() slab.Format { return p.order[0].Format }

// Nodata returns the shared nodata pixel.
func (p *Pyramid) Nodata() []float64 { return p.order[0].Nodata }

// Level returns the level of a tile matrix identifier, or nil.
func (p *Pyramid) Level(id string) *Level { return p.levels[id] }

// Levels returns the levels ordered coarse to fine.
func (p *Pyramid) Levels() []*Level { return p.order }

// BestLevel selects the level whose resolution is the closest relative
// match for a target resolution.
func (p *Pyramid) BestLevel(res float64) *Level {
	best := p.order[0]
	bestScore := math.Inf(1)
	for _, l := range p.order {
		score := math.Abs(l.TM.Res/res - 1)
		if score < bestScore {
			bestScore = score
			best = l
		}
	}
	return best
}

// LowestLevel returns the finest-resolution level.
func (p *Pyramid) LowestLevel() *Level { return p.order[len(p.order)-1] }

// HighestLevel returns the coarsest-resolution level.
func (p *Pyramid) HighestLevel() *Level { return p.order[0] }
