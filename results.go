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
	"strings"

	"github.com/ctessum/sparse"
	"gonum.org/v1/gonum/floats"
)

// Metric is a gridded model output.
type Metric int

// Gridded outputs.
const (
	OFP       Metric = iota // ozone-forming potential
	PM10                    // PM10 deposition
	O3Removed               // removed ozone mass
	NetO3                   // net ozone uptake
	numMetrics
)

type metricInfo struct {
	name, description string

	// scale converts the per-tree value to kg/y.
	scale float64
	value func(*Derived) float64
}

var metrics = [numMetrics]metricInfo{
	OFP: {
		name:        "OFP",
		description: "Ozone-forming potential of biogenic VOC emissions",
		scale:       1.e-9, // μg -> kg
		value:       func(d *Derived) float64 { return d.OFPYearly },
	},
	PM10: {
		name:        "PM10Dep",
		description: "PM10 dry deposition",
		scale:       1,
		value:       func(d *Derived) float64 { return d.PM10Yearly },
	},
	O3Removed: {
		name:        "O3Removed",
		description: "Ozone removed by stomatal uptake",
		scale:       1.e-3, // g -> kg
		value:       func(d *Derived) float64 { return d.O3RemovedMassYearly },
	},
	NetO3: {
		name:        "NetO3",
		description: "Net ozone uptake",
		scale:       1.e-3, // g -> kg
		value:       func(d *Derived) float64 { return d.O3NetUptakeYearly },
	},
}

// Metrics returns all gridded outputs in a fixed order.
func Metrics() []Metric { return []Metric{OFP, PM10, O3Removed, NetO3} }

// ParseMetric returns the metric with the given name.
func ParseMetric(name string) (Metric, error) {
	for _, m := range Metrics() {
		if strings.EqualFold(m.String(), name) {
			return m, nil
		}
	}
	return 0, fmt.Errorf("ecotree: unknown metric %q", name)
}

func (m Metric) String() string { return metrics[m].name }

// Description returns a human-readable description of m.
func (m Metric) Description() string { return metrics[m].description }

// Units returns the units of the gridded values of m.
func (Metric) Units() string { return "kg/y" }

// Scale returns the factor converting the per-tree value of m to the
// units of the grid.
func (m Metric) Scale() float64 { return metrics[m].scale }

// Value returns the per-tree value of m, before scaling.
func (m Metric) Value(d *Derived) float64 { return metrics[m].value(d) }

// NumTreesName is the name of the tree-count output.
const NumTreesName = "NumTrees"

// Results holds the gridded model outputs. All grids have shape
// [rows, cols] and are stored in row-major order.
type Results struct {
	grids [numMetrics]*sparse.DenseArray

	// NumTrees is the number of trees counted in each cell. Under the
	// Inclusive boundary policy a tree on a cell edge is counted in
	// each cell that touches it.
	NumTrees *sparse.DenseArray
}

// NewResults allocates empty results for a grid of the given size.
func NewResults(rows, cols int) *Results {
	r := &Results{NumTrees: sparse.ZerosDense(rows, cols)}
	for i := range r.grids {
		r.grids[i] = sparse.ZerosDense(rows, cols)
	}
	return r
}

// Grid returns the grid of metric m [kg/y].
func (r *Results) Grid(m Metric) *sparse.DenseArray { return r.grids[m] }

// Totals returns the sum over all cells of each metric [kg/y].
func (r *Results) Totals() map[Metric]float64 {
	o := make(map[Metric]float64, numMetrics)
	for _, m := range Metrics() {
		o[m] = floats.Sum(r.grids[m].Elements)
	}
	return o
}

// Variables returns the per-cell values of all outputs by name, in
// row-major order.
func (r *Results) Variables() map[string][]float64 {
	o := make(map[string][]float64, numMetrics+1)
	for _, m := range Metrics() {
		o[m.String()] = r.grids[m].Elements
	}
	o[NumTreesName] = r.NumTrees.Elements
	return o
}

// scale converts the accumulated per-tree sums to output units.
func (r *Results) scale() {
	for _, m := range Metrics() {
		floats.Scale(m.Scale(), r.grids[m].Elements)
	}
}
