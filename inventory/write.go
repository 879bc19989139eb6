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

package inventory

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/spatialmodel/ecotree"
)

var cleanedHeader = []string{
	"species", "habit", "crown_height", "crown_diameter", "shading",
	"x", "y", "conversion_factor", "leaf_days", "conductance",
	"EF_isoprene", "EF_monoterpenes", "EF_sesquiterpenes",
}

// WriteCleaned writes trees as a semicolon-delimited table, one row
// per tree, with all model inputs after ingestion.
func WriteCleaned(w io.Writer, trees []*ecotree.Tree) error {
	cw := csv.NewWriter(w)
	cw.Comma = ';'
	if err := cw.Write(cleanedHeader); err != nil {
		return err
	}
	f := func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
	for _, t := range trees {
		row := []string{
			t.Species, t.Habit.String(), f(t.CrownHeight), f(t.CrownDiameter), f(t.Shading),
			f(t.X), f(t.Y), f(t.ConversionFactor), f(t.LeafDays), f(t.Conductance),
			f(t.EF[ecotree.Isoprene]), f(t.EF[ecotree.Monoterpenes]), f(t.EF[ecotree.Sesquiterpenes]),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
