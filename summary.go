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
	"io"
	"text/tabwriter"

	"github.com/ctessum/unit"
	"gonum.org/v1/gonum/floats"
)

// Total returns the total of metric m over the grid as a dimensioned
// quantity [kg] per year.
func (r *Results) Total(m Metric) *unit.Unit {
	return unit.New(floats.Sum(r.grids[m].Elements), unit.Kilogram)
}

// WriteSummary returns a function that writes a plain-text summary of
// the run inputs and gridded totals to w.
func WriteSummary(w io.Writer) DomainManipulator {
	return func(d *Domain) error {
		if d.Results == nil {
			return fmt.Errorf("ecotree: writing summary: no results")
		}
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintf(tw, "PM10 concentration:\t%g μg/m³\n", d.Ambient.PM10)
		fmt.Fprintf(tw, "O3 concentration:\t%g μg/m³\n", d.Ambient.O3)
		fmt.Fprintf(tw, "Number of trees:\t%d\n", len(d.Trees))
		var evergreen int
		for _, t := range d.Trees {
			if t.Habit == Evergreen {
				evergreen++
			}
		}
		fmt.Fprintf(tw, "  evergreen:\t%d\n", evergreen)
		fmt.Fprintf(tw, "  deciduous:\t%d\n", len(d.Trees)-evergreen)
		fmt.Fprintf(tw, "Grid size:\t%g m\n", d.Grid.Size)
		fmt.Fprintf(tw, "Grid extent:\t%d rows × %d columns\n", d.Grid.Rows, d.Grid.Cols)
		fmt.Fprintf(tw, "Grid origin:\t(%g, %g)\n", d.Grid.X0, d.Grid.Y0)
		fmt.Fprintf(tw, "Boundary policy:\t%s\n", d.Grid.Policy)
		fmt.Fprintf(tw, "Trees counted in cells:\t%g\n", floats.Sum(d.Results.NumTrees.Elements))
		for _, m := range Metrics() {
			fmt.Fprintf(tw, "Total %s:\t%.6g/year\n", m.Description(), d.Results.Total(m))
		}
		return tw.Flush()
	}
}
