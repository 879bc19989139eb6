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
	"fmt"
	"os"
	"path/filepath"

	"github.com/ctessum/sparse"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// gridXYZ adapts a result grid to plotter.GridXYZ, with cell centers
// in the source coordinate system.
type gridXYZ struct {
	g    *GridDef
	data *sparse.DenseArray
}

func (x gridXYZ) Dims() (c, r int)   { return x.g.Cols, x.g.Rows }
func (x gridXYZ) Z(c, r int) float64 { return x.data.Get(r, c) }
func (x gridXYZ) X(c int) float64    { return x.g.X0 + (float64(c)+0.5)*x.g.Size }
func (x gridXYZ) Y(r int) float64    { return x.g.Y0 + (float64(r)+0.5)*x.g.Size }

// Map returns a heat map of metric m.
func (d *Domain) Map(m Metric) (*plot.Plot, error) {
	if d.Results == nil {
		return nil, fmt.Errorf("ecotree: mapping %s: no results", m)
	}
	cm := moreland.ExtendedBlackBody()
	cm.SetMin(0)
	cm.SetMax(1)
	data := gridXYZ{g: d.Grid, data: d.Results.Grid(m)}
	h := plotter.NewHeatMap(data, cm.Palette(255))
	if h.Min == h.Max {
		h.Max = h.Min + 1
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s [%s]", m.Description(), m.Units())
	p.X.Label.Text = "x [m]"
	p.Y.Label.Text = "y [m]"
	p.Add(h)
	return p, nil
}

// WriteMaps returns a function that saves a PNG heat map of each
// metric to dir.
func WriteMaps(dir string) DomainManipulator {
	return func(d *Domain) error {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("ecotree: creating map directory: %v", err)
		}
		for _, m := range Metrics() {
			p, err := d.Map(m)
			if err != nil {
				return err
			}
			f := filepath.Join(dir, m.String()+".png")
			if err := p.Save(6*vg.Inch, 6*vg.Inch, f); err != nil {
				return fmt.Errorf("ecotree: saving %s map: %v", m, err)
			}
		}
		return nil
	}
}
