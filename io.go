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
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/Knetic/govaluate"
	"github.com/ctessum/geom/encoding/shp"
	goshp "github.com/jonas-p/go-shp"
	"gonum.org/v1/gonum/floats"
)

// CellAreaName is the name of the cell-area variable available to
// output expressions [m²].
const CellAreaName = "CellArea"

// DefaultOutputVariables returns output expressions that write every
// gridded output unchanged.
func DefaultOutputVariables() map[string]string {
	o := map[string]string{NumTreesName: NumTreesName}
	for _, m := range Metrics() {
		o[m.String()] = m.String()
	}
	return o
}

// Outputter writes gridded results to a shapefile.
//
// Output variables map the names of the shapefile fields to expressions
// that define how each value is calculated from the model outputs
// (OFP, PM10Dep, O3Removed, NetO3, NumTrees and CellArea) and
// functions. Expressions are evaluated separately for each cell, except
// that sum(x) is the total of x over all cells.
type Outputter struct {
	fileName    string
	wkt         string
	variables   map[string]string
	expressions map[string]*govaluate.EvaluableExpression
	sums        map[string]string // parameter name -> summed variable
}

var sumRegexp = regexp.MustCompile(`sum\(\s*([A-Za-z]\w*)\s*\)`)

// NewOutputter creates an Outputter writing to fileName. If wkt is not
// empty it is written to a .prj file alongside the shapefile.
// In addition to any functions in outputFunctions, 'exp(x)' and
// 'log(x)' are available.
func NewOutputter(fileName, wkt string, outputVariables map[string]string, outputFunctions map[string]govaluate.ExpressionFunction) (*Outputter, error) {
	funcs := map[string]govaluate.ExpressionFunction{
		"exp": func(arg ...interface{}) (interface{}, error) {
			if len(arg) != 1 {
				return nil, fmt.Errorf("ecotree: got %d arguments for function 'exp', but needs 1", len(arg))
			}
			return math.Exp(arg[0].(float64)), nil
		},
		"log": func(arg ...interface{}) (interface{}, error) {
			if len(arg) != 1 {
				return nil, fmt.Errorf("ecotree: got %d arguments for function 'log', but needs 1", len(arg))
			}
			return math.Log(arg[0].(float64)), nil
		},
	}
	for k, f := range outputFunctions {
		funcs[k] = f
	}
	if len(outputVariables) == 0 {
		outputVariables = DefaultOutputVariables()
	}
	if err := checkOutputNames(outputVariables); err != nil {
		return nil, err
	}

	o := &Outputter{
		fileName:    fileName,
		wkt:         wkt,
		variables:   outputVariables,
		expressions: make(map[string]*govaluate.EvaluableExpression),
		sums:        make(map[string]string),
	}
	valid := validOutputInputs()
	for name, expr := range outputVariables {
		expr = sumRegexp.ReplaceAllStringFunc(expr, func(m string) string {
			v := sumRegexp.FindStringSubmatch(m)[1]
			p := "sumOf_" + v
			o.sums[p] = v
			return p
		})
		e, err := govaluate.NewEvaluableExpressionWithFunctions(expr, funcs)
		if err != nil {
			return nil, fmt.Errorf("ecotree: output variable %s: %v", name, err)
		}
		for _, v := range e.Vars() {
			if s, ok := o.sums[v]; ok {
				v = s
			}
			if !valid[v] {
				return nil, fmt.Errorf("ecotree: output variable %s: undefined variable name '%s'", name, v)
			}
		}
		o.expressions[name] = e
	}
	return o, nil
}

func validOutputInputs() map[string]bool {
	o := map[string]bool{NumTreesName: true, CellAreaName: true}
	for _, m := range Metrics() {
		o[m.String()] = true
	}
	return o
}

// checkOutputNames checks (1) if any output variable names exceed 10 characters
// and (2) if any output variable names include characters that are unsupported
// in shapefile field names.
func checkOutputNames(o map[string]string) error {
	valid := regexp.MustCompile(`^[A-Za-z]\w*$`)
	for key := range o {
		long := len(key) > 10
		ok := valid.MatchString(key)
		if long && !ok {
			return fmt.Errorf("ecotree: output variable name '%s' exceeds 10 characters and includes unsupported character(s)", key)
		} else if long {
			return fmt.Errorf("ecotree: output variable name '%s' exceeds 10 characters", key)
		} else if !ok {
			return fmt.Errorf("ecotree: output variable name '%s' includes unsupported characters", key)
		}
	}
	return nil
}

// Names returns the sorted output variable names.
func (o *Outputter) Names() []string {
	names := make([]string, 0, len(o.variables))
	for k := range o.variables {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Values evaluates the output variables for every cell of the domain.
// Values are in row-major cell order.
func (o *Outputter) Values(d *Domain) (map[string][]float64, error) {
	if d.Results == nil || d.Grid == nil {
		return nil, fmt.Errorf("ecotree: no results to output")
	}
	inputs := d.Results.Variables()
	params := make(map[string]interface{}, len(inputs)+len(o.sums)+1)
	params[CellAreaName] = d.Grid.CellArea()
	for p, v := range o.sums {
		if v == CellAreaName {
			params[p] = d.Grid.CellArea() * float64(len(d.Grid.Cells))
			continue
		}
		params[p] = floats.Sum(inputs[v])
	}

	out := make(map[string][]float64, len(o.expressions))
	for name := range o.expressions {
		out[name] = make([]float64, len(d.Grid.Cells))
	}
	for i := range d.Grid.Cells {
		for k, v := range inputs {
			params[k] = v[i]
		}
		for name, e := range o.expressions {
			r, err := e.Evaluate(params)
			if err != nil {
				return nil, fmt.Errorf("ecotree: evaluating output variable %s: %v", name, err)
			}
			f, ok := r.(float64)
			if !ok {
				return nil, fmt.Errorf("ecotree: output variable %s evaluated to %T, not a number", name, r)
			}
			out[name][i] = f
		}
	}
	return out, nil
}

// Output returns a function that writes the output variables for each
// grid cell to a shapefile, with cell geometry in the source coordinate
// system.
func (o *Outputter) Output() DomainManipulator {
	return func(d *Domain) error {
		results, err := o.Values(d)
		if err != nil {
			return err
		}
		vars := o.Names()
		fields := make([]goshp.Field, len(vars))
		for i, v := range vars {
			fields[i] = goshp.FloatField(v, 14, 8)
		}

		// remove extension and replace it with .shp
		fileBase := strings.TrimSuffix(o.fileName, filepath.Ext(o.fileName))
		shape, err := shp.NewEncoderFromFields(fileBase+".shp", goshp.POLYGON, fields...)
		if err != nil {
			return fmt.Errorf("ecotree: creating output shapefile: %v", err)
		}
		for i, c := range d.Grid.Cells {
			outFields := make([]interface{}, len(vars))
			for j, v := range vars {
				outFields[j] = results[v][i]
			}
			if err = shape.EncodeFields(d.Grid.SourcePolygon(c), outFields...); err != nil {
				shape.Close()
				return fmt.Errorf("ecotree: writing output shapefile: %v", err)
			}
		}
		shape.Close()

		if o.wkt == "" {
			return nil
		}
		return os.WriteFile(fileBase+".prj", []byte(o.wkt), 0644)
	}
}
