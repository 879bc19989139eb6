/*
Copyright © 2024 the EcoTree authors.
This file is part of EcoTree.

EcoTree is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

EcoTree is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with EcoTree.  If not, see <http://www.gnu.org/licenses/>.
*/

package ecotree

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/index/rtree"
	"gonum.org/v1/gonum/floats"
)

// DefaultGridSize is the default grid cell edge length [m].
const DefaultGridSize = 100.

// BoundaryPolicy determines which cells a tree lying exactly on a cell
// edge belongs to.
type BoundaryPolicy int

const (
	// Inclusive cells are closed on all edges, so a tree on a shared
	// edge is counted in every cell that touches it.
	Inclusive BoundaryPolicy = iota

	// HalfOpen cells contain their lower edges but not their upper
	// edges, except along the upper edge of the grid.
	HalfOpen
)

// ParseBoundaryPolicy parses "inclusive" or "halfopen".
func ParseBoundaryPolicy(s string) (BoundaryPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "inclusive", "":
		return Inclusive, nil
	case "halfopen", "half-open":
		return HalfOpen, nil
	}
	return Inclusive, fmt.Errorf("ecotree: invalid boundary policy %q; valid options are 'inclusive' and 'halfopen'", s)
}

func (b BoundaryPolicy) String() string {
	if b == HalfOpen {
		return "halfopen"
	}
	return "inclusive"
}

// DefaultMaxCells is the largest grid BuildGrid creates when no other
// limit is given.
const DefaultMaxCells = 10000000

// ErrGridTooLarge is returned when the trees span more cells than
// the grid cell limit allows.
var ErrGridTooLarge = errors.New("ecotree: grid too large")

// CellCount returns the number of cells of edge length size needed
// to cover coords. It is never less than one. The count is returned
// as a float so that it cannot overflow for widely spread coordinates.
// coords must not be empty.
func CellCount(coords []float64, size float64) float64 {
	n := math.Ceil((floats.Max(coords) - floats.Min(coords)) / size)
	if !(n >= 1) {
		return 1
	}
	return n
}

// Extent returns the number of grid rows and columns needed to cover
// the grid-local positions of trees. It returns ErrGridTooLarge if the
// grid would have more than maxCells cells. If maxCells <= 0,
// DefaultMaxCells is used.
func Extent(trees []*Tree, size float64, maxCells int) (rows, cols int, err error) {
	if len(trees) == 0 {
		return 0, 0, ErrNoTrees
	}
	if !(size > 0) {
		return 0, 0, fmt.Errorf("ecotree: grid size=%g but should be >0", size)
	}
	if maxCells <= 0 {
		maxCells = DefaultMaxCells
	}
	x := make([]float64, len(trees))
	y := make([]float64, len(trees))
	for i, t := range trees {
		x[i], y[i] = t.GridX, t.GridY
	}
	r, c := CellCount(y, size), CellCount(x, size)
	if math.IsInf(r*c, 0) || r*c > float64(maxCells) {
		return 0, 0, fmt.Errorf("%w: trees span %.0f rows × %.0f columns of %g m, more than the limit of %d cells; "+
			"check the tree coordinates or increase the grid size", ErrGridTooLarge, r, c, size, maxCells)
	}
	return int(r), int(c), nil
}

// GridCell is a single square grid cell. Its geometry is in grid-local
// coordinates.
type GridCell struct {
	geom.Polygon
	Row, Col int
}

// GridDef describes a regular grid of square cells with its lower-left
// corner at the local origin.
type GridDef struct {
	Rows, Cols int

	// Size is the cell edge length [m].
	Size float64

	// X0 and Y0 are the coordinates of the local origin in the
	// source coordinate system.
	X0, Y0 float64

	Policy BoundaryPolicy

	// Cells are stored in row-major order.
	Cells []*GridCell

	index *rtree.Rtree
}

// NewGridDef creates a grid with the given number of rows and columns.
func NewGridDef(rows, cols int, size, x0, y0 float64, policy BoundaryPolicy) (*GridDef, error) {
	if rows < 1 || cols < 1 {
		return nil, fmt.Errorf("ecotree: grid must have at least one row and column; got %d×%d", rows, cols)
	}
	if !(size > 0) {
		return nil, fmt.Errorf("ecotree: grid size=%g but should be >0", size)
	}
	g := &GridDef{
		Rows:   rows,
		Cols:   cols,
		Size:   size,
		X0:     x0,
		Y0:     y0,
		Policy: policy,
		Cells:  make([]*GridCell, 0, rows*cols),
		index:  rtree.NewTree(25, 50),
	}
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			l, r, b, t := g.edges(i, j)
			c := &GridCell{
				Polygon: geom.Polygon{{
					{X: l, Y: b}, {X: r, Y: b}, {X: r, Y: t}, {X: l, Y: t}, {X: l, Y: b},
				}},
				Row: i,
				Col: j,
			}
			g.Cells = append(g.Cells, c)
			g.index.Insert(c)
		}
	}
	return g, nil
}

// edges returns the local-coordinate edges of cell (row, col).
func (g *GridDef) edges(row, col int) (x0, x1, y0, y1 float64) {
	return float64(col) * g.Size, float64(col+1) * g.Size,
		float64(row) * g.Size, float64(row+1) * g.Size
}

// Index returns the row-major index of cell (row, col).
func (g *GridDef) Index(row, col int) int { return row*g.Cols + col }

// Contains reports whether grid-local point (x, y) is in cell (row, col)
// under the grid's boundary policy.
func (g *GridDef) Contains(row, col int, x, y float64) bool {
	x0, x1, y0, y1 := g.edges(row, col)
	if x < x0 || y < y0 || x > x1 || y > y1 {
		return false
	}
	if g.Policy == Inclusive {
		return true
	}
	if x == x1 && col != g.Cols-1 {
		return false
	}
	if y == y1 && row != g.Rows-1 {
		return false
	}
	return true
}

// CellsFor returns the row-major indices of all cells containing the
// grid-local point (x, y), in ascending order. Under the Inclusive
// policy a point on a shared edge is in two cells, and a point on a
// shared corner is in four.
func (g *GridDef) CellsFor(x, y float64) []int {
	var out []int
	for _, ci := range g.index.SearchIntersect(geom.Point{X: x, Y: y}.Bounds()) {
		c := ci.(*GridCell)
		if g.Contains(c.Row, c.Col, x, y) {
			out = append(out, g.Index(c.Row, c.Col))
		}
	}
	sort.Ints(out)
	return out
}

// CellArea returns the area of one grid cell [m²].
func (g *GridDef) CellArea() float64 { return g.Size * g.Size }

// SourcePolygon returns the geometry of cell c in the source coordinate
// system.
func (g *GridDef) SourcePolygon(c *GridCell) geom.Polygon {
	out := make(geom.Polygon, len(c.Polygon))
	for i, r := range c.Polygon {
		out[i] = make([]geom.Point, len(r))
		for j, p := range r {
			out[i][j] = geom.Point{X: p.X + g.X0, Y: p.Y + g.Y0}
		}
	}
	return out
}

// BuildGrid returns a function that sets up the domain grid from the
// normalized tree positions. The grid may have at most maxCells cells;
// see Extent.
func BuildGrid(size float64, policy BoundaryPolicy, maxCells int) DomainManipulator {
	return func(d *Domain) error {
		rows, cols, err := Extent(d.Trees, size, maxCells)
		if err != nil {
			return err
		}
		d.Grid, err = NewGridDef(rows, cols, size, d.X0, d.Y0, policy)
		return err
	}
}
