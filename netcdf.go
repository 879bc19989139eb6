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

	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"
)

// WriteNetCDF returns a function that writes the gridded results to
// netCDF file w. Variables have dimensions (y, x); the x0, y0, dx and
// dy global attributes place the grid in the source coordinate system.
func WriteNetCDF(w cdf.ReaderWriterAt) DomainManipulator {
	return func(d *Domain) error {
		if d.Results == nil {
			return fmt.Errorf("ecotree: writing netcdf: no results")
		}
		g := d.Grid
		h := cdf.NewHeader([]string{"y", "x"}, []int{g.Rows, g.Cols})
		h.AddAttribute("", "comment", "EcoTree gridded urban tree ecosystem services")
		h.AddAttribute("", "x0", []float64{g.X0})
		h.AddAttribute("", "y0", []float64{g.Y0})
		h.AddAttribute("", "dx", []float64{g.Size})
		h.AddAttribute("", "dy", []float64{g.Size})
		h.AddAttribute("", "nx", []int32{int32(g.Cols)})
		h.AddAttribute("", "ny", []int32{int32(g.Rows)})
		h.AddAttribute("", "boundary_policy", g.Policy.String())
		h.AddAttribute("", "ambient_PM10", []float64{d.Ambient.PM10})
		h.AddAttribute("", "ambient_O3", []float64{d.Ambient.O3})

		type ncVar struct {
			name, description, units string
			data                     *sparse.DenseArray
		}
		vars := make([]ncVar, 0, numMetrics+1)
		for _, m := range Metrics() {
			vars = append(vars, ncVar{m.String(), m.Description(), m.Units(), d.Results.Grid(m)})
		}
		vars = append(vars, ncVar{NumTreesName, "Number of trees in cell", "trees", d.Results.NumTrees})

		for _, v := range vars {
			h.AddVariable(v.name, []string{"y", "x"}, []float32{0})
			h.AddAttribute(v.name, "description", v.description)
			h.AddAttribute(v.name, "units", v.units)
		}
		h.Define()

		f, err := cdf.Create(w, h) // writes the header to w
		if err != nil {
			return fmt.Errorf("ecotree: creating netcdf file: %v", err)
		}
		for _, v := range vars {
			if err = writeNCF(f, v.name, v.data); err != nil {
				return fmt.Errorf("ecotree: writing variable %s to netcdf file: %v", v.name, err)
			}
		}
		return nil
	}
}

func writeNCF(f *cdf.File, Var string, data *sparse.DenseArray) error {
	// Check that data matches dimensions.
	n := 1
	for _, v := range data.Shape {
		n *= v
	}
	if len(data.Elements) != n {
		return fmt.Errorf("dims are %d but array length is %d", n, len(data.Elements))
	}

	data32 := make([]float32, len(data.Elements))
	for i, e := range data.Elements {
		data32[i] = float32(e)
	}
	end := f.Header.Lengths(Var)
	start := make([]int, len(end))
	w := f.Writer(Var, start, end)
	_, err := w.Write(data32)
	return err
}
