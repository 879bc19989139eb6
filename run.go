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
	"runtime"
	"strings"
	"sync"
)

// Strategy selects how trees are assigned to grid cells during
// aggregation. Both strategies give identical results.
type Strategy int

const (
	// Scan tests every tree against every cell, evaluating the model
	// for each tree once per cell it falls in.
	Scan Strategy = iota

	// Bucket evaluates the model once per tree and adds the result to
	// each cell containing the tree.
	Bucket
)

// ParseStrategy parses "scan" or "bucket".
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "scan":
		return Scan, nil
	case "bucket", "":
		return Bucket, nil
	}
	return Bucket, fmt.Errorf("ecotree: invalid aggregation strategy %q; valid options are 'scan' and 'bucket'", s)
}

func (s Strategy) String() string {
	if s == Scan {
		return "scan"
	}
	return "bucket"
}

// Aggregate runs the model for every tree and sums the results into
// the cells of g. Trees must already be normalized.
func Aggregate(trees []*Tree, g *GridDef, c *Constants, a Ambient, s Strategy) (*Results, error) {
	if len(trees) == 0 {
		return nil, ErrNoTrees
	}
	if g == nil {
		return nil, fmt.Errorf("ecotree: aggregating trees: grid has not been set up")
	}
	var r *Results
	switch s {
	case Scan:
		r = aggregateScan(trees, g, c, a)
	case Bucket:
		r = aggregateBucket(trees, g, c, a)
	default:
		return nil, fmt.Errorf("ecotree: invalid aggregation strategy %d", s)
	}
	r.scale()
	return r, nil
}

// AggregateTrees returns a function that aggregates the domain's trees
// onto its grid.
func AggregateTrees(s Strategy) DomainManipulator {
	return func(d *Domain) error {
		var err error
		d.Results, err = Aggregate(d.Trees, d.Grid, d.Constants, d.Ambient, s)
		return err
	}
}

// CountTrees returns a function that sets the domain results to the
// number of trees in each cell without running the model. The metric
// grids are left at zero.
func CountTrees() DomainManipulator {
	return func(d *Domain) error {
		if d.Grid == nil {
			return fmt.Errorf("ecotree: counting trees: grid has not been set up")
		}
		r := NewResults(d.Grid.Rows, d.Grid.Cols)
		for _, t := range d.Trees {
			for _, ii := range d.Grid.CellsFor(t.GridX, t.GridY) {
				r.NumTrees.Elements[ii]++
			}
		}
		d.Results = r
		return nil
	}
}

// parallel runs f(i) for i in [0, n) on all available processors.
// Each worker takes every nprocs-th index.
func parallel(n int, f func(i int)) {
	nprocs := runtime.GOMAXPROCS(0)
	var wg sync.WaitGroup
	wg.Add(nprocs)
	for pp := 0; pp < nprocs; pp++ {
		go func(pp int) {
			for ii := pp; ii < n; ii += nprocs {
				f(ii)
			}
			wg.Done()
		}(pp)
	}
	wg.Wait()
}

// aggregateScan calculates each cell independently. Every cell is
// written by exactly one worker.
func aggregateScan(trees []*Tree, g *GridDef, c *Constants, a Ambient) *Results {
	r := NewResults(g.Rows, g.Cols)
	parallel(len(g.Cells), func(ii int) {
		cell := g.Cells[ii]
		var sums [numMetrics]float64
		var n float64
		for _, t := range trees {
			if !g.Contains(cell.Row, cell.Col, t.GridX, t.GridY) {
				continue
			}
			d := Compute(t, c, a)
			for _, m := range Metrics() {
				sums[m] += m.Value(&d)
			}
			n++
		}
		for m, v := range sums {
			r.grids[m].Elements[ii] = v
		}
		r.NumTrees.Elements[ii] = n
	})
	return r
}

// aggregateBucket calculates all trees concurrently, then adds them
// to their cells in input order so that each cell is summed in the same
// order as in aggregateScan.
func aggregateBucket(trees []*Tree, g *GridDef, c *Constants, a Ambient) *Results {
	derived := make([]Derived, len(trees))
	parallel(len(trees), func(i int) {
		derived[i] = Compute(trees[i], c, a)
	})

	r := NewResults(g.Rows, g.Cols)
	for i, t := range trees {
		for _, ii := range g.CellsFor(t.GridX, t.GridY) {
			for _, m := range Metrics() {
				r.grids[m].Elements[ii] += m.Value(&derived[i])
			}
			r.NumTrees.Elements[ii]++
		}
	}
	return r
}
