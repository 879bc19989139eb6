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
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spatialmodel/ecotree"
)

// Table holds per-genus coefficients. Each genus maps to the mean of the
// values of every row whose name starts with that genus.
type Table map[string][]float64

// ReadTable reads a coefficient table of "name;value[;value...]"
// lines. Every row must have width values; "None" and empty values are
// zero. If the first non-blank line has a value that is not a number,
// it is a header and is skipped.
func ReadTable(r io.Reader, width int) (Table, error) {
	sums := make(map[string][]float64)
	counts := make(map[string]int)
	s := bufio.NewScanner(r)
	line := 0
	first := true
	for s.Scan() {
		line++
		text := strings.TrimSpace(s.Text())
		if text == "" {
			continue
		}
		fields := strings.Split(text, ";")
		if first {
			first = false
			if isHeader(fields) {
				continue
			}
		}
		g := genus(fields[0])
		if g == "" {
			return nil, fmt.Errorf("inventory: table line %d: missing name", line)
		}
		if len(fields)-1 != width {
			return nil, fmt.Errorf("inventory: table line %d: got %d values, want %d", line, len(fields)-1, width)
		}
		vals := make([]float64, width)
		for i, f := range fields[1:] {
			f = strings.TrimSpace(f)
			if strings.EqualFold(f, "None") {
				continue
			}
			v, err := parseFloat(f)
			if err != nil {
				return nil, fmt.Errorf("inventory: table line %d: %v", line, err)
			}
			vals[i] = v
		}
		if _, ok := sums[g]; !ok {
			sums[g] = make([]float64, width)
		}
		for i, v := range vals {
			sums[g][i] += v
		}
		counts[g]++
	}
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("inventory: reading table: %v", err)
	}
	t := make(Table, len(sums))
	for g, sum := range sums {
		for i := range sum {
			sum[i] /= float64(counts[g])
		}
		t[g] = sum
	}
	return t, nil
}

// isHeader reports whether a table row holds column names rather than
// values.
func isHeader(fields []string) bool {
	if len(fields) < 2 {
		return true
	}
	for _, f := range fields[1:] {
		f = strings.TrimSpace(f)
		if strings.EqualFold(f, "None") {
			continue
		}
		if _, err := parseFloat(f); err != nil {
			return true
		}
	}
	return false
}

func readTableFile(fileName string, width int) (Table, error) {
	f, err := os.Open(fileName)
	if err != nil {
		return nil, fmt.Errorf("inventory: %v", err)
	}
	defer f.Close()
	t, err := ReadTable(f, width)
	if err != nil {
		return nil, fmt.Errorf("%v (%s)", err, fileName)
	}
	return t, nil
}

// TableFiles holds the paths of the species coefficient tables.
type TableFiles struct {
	ConversionFactor string `mapstructure:"ConversionFactor" validate:"required"`
	EmissionFactors  string `mapstructure:"EmissionFactors" validate:"required"`
	Shading          string `mapstructure:"Shading" validate:"required"`
	MIR              string `mapstructure:"MIR" validate:"required"`
}

// Tables holds the coefficient tables needed to build trees.
type Tables struct {
	// ConversionFactor [g/m²], EmissionFactors [μg/g/h, three values
	// in ecotree.VOCClass order] and Shading [-] are keyed by genus.
	ConversionFactor, EmissionFactors, Shading Table

	// MIR [g O3 / g VOC] is indexed by ecotree.VOCClass.
	MIR [3]float64
}

// ReadTables reads the four coefficient tables.
func ReadTables(files TableFiles) (*Tables, error) {
	t := new(Tables)
	var err error
	if t.ConversionFactor, err = readTableFile(files.ConversionFactor, 1); err != nil {
		return nil, err
	}
	if t.EmissionFactors, err = readTableFile(files.EmissionFactors, 3); err != nil {
		return nil, err
	}
	if t.Shading, err = readTableFile(files.Shading, 1); err != nil {
		return nil, err
	}
	mir, err := readTableFile(files.MIR, 1)
	if err != nil {
		return nil, err
	}
	if err = t.SetMIR(mir); err != nil {
		return nil, fmt.Errorf("%v (%s)", err, files.MIR)
	}
	return t, nil
}

// SetMIR sets the reactivities from a table keyed by VOC class name.
func (t *Tables) SetMIR(mir Table) error {
	for i, name := range ecotree.VOCNames {
		v, ok := mir[name]
		if !ok {
			return fmt.Errorf("inventory: MIR table has no entry for %s", name)
		}
		t.MIR[i] = v[0]
	}
	return nil
}

// Apply builds trees from records. A record is kept only if its genus
// is in the conversion factor, emission factor and shading tables;
// dropped records are counted in rep.
func (t *Tables) Apply(recs []*Record, rep *Report) ([]*ecotree.Tree, error) {
	if rep.MissingCoefficients == nil {
		rep.MissingCoefficients = make(map[string]int)
	}
	trees := make([]*ecotree.Tree, 0, len(recs))
	for _, r := range recs {
		g := r.Genus()
		cf, ok1 := t.ConversionFactor[g]
		ef, ok2 := t.EmissionFactors[g]
		sh, ok3 := t.Shading[g]
		if !(ok1 && ok2 && ok3) {
			rep.MissingCoefficients[g]++
			continue
		}
		tr, err := r.Tree()
		if err != nil {
			return nil, err
		}
		tr.Shading = sh[0]
		tr.ConversionFactor = cf[0]
		copy(tr.EF[:], ef)
		tr.MIR = t.MIR
		trees = append(trees, tr)
	}
	rep.Kept = len(trees)
	return trees, nil
}
