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

// Package ecotree estimates the ecosystem services provided by urban
// trees (ozone-forming potential of biogenic emissions, stomatal ozone
// removal, net ozone uptake and PM10 deposition) and aggregates them
// onto a regular grid.
package ecotree

import (
	"errors"
	"fmt"
	"io"
)

// Version gives the version number.
const Version = "0.3.0"

// ErrNoTrees is returned when an operation requires at least one tree.
var ErrNoTrees = errors.New("ecotree: no trees in domain")

// Domain holds the trees, the model inputs and the results of a single
// model run.
type Domain struct {
	Trees []*Tree

	Constants *Constants
	Ambient   Ambient

	// X0 and Y0 are the minimum raw tree coordinates, set by
	// NormalizeCoordinates.
	X0, Y0 float64

	Grid    *GridDef
	Results *Results

	// InitFuncs are functions to be called in the given order
	// at the beginning of the run.
	InitFuncs []DomainManipulator

	// RunFuncs are functions to be called in the given order after
	// initialization.
	RunFuncs []DomainManipulator

	// CleanupFuncs are functions to be called in the given order
	// at the end of the run.
	CleanupFuncs []DomainManipulator
}

// DomainManipulator is a function that operates on the model domain.
type DomainManipulator func(d *Domain) error

// Init runs the domain's InitFuncs.
func (d *Domain) Init() error {
	if d.Constants == nil {
		d.Constants = DefaultConstants()
	}
	for i, f := range d.InitFuncs {
		if err := f(d); err != nil {
			return fmt.Errorf("ecotree: running initialization step %d: %w", i, err)
		}
	}
	return nil
}

// Run runs the domain's RunFuncs and then its CleanupFuncs.
func (d *Domain) Run() error {
	for i, f := range d.RunFuncs {
		if err := f(d); err != nil {
			return fmt.Errorf("ecotree: running step %d: %w", i, err)
		}
	}
	for i, f := range d.CleanupFuncs {
		if err := f(d); err != nil {
			return fmt.Errorf("ecotree: running cleanup step %d: %w", i, err)
		}
	}
	return nil
}

// ValidateTrees returns a function that checks every tree in the domain.
func ValidateTrees() DomainManipulator {
	return func(d *Domain) error {
		if len(d.Trees) == 0 {
			return ErrNoTrees
		}
		for i, t := range d.Trees {
			if err := t.Validate(); err != nil {
				return fmt.Errorf("tree %d: %w", i, err)
			}
		}
		return d.Constants.Check()
	}
}

// Log returns a function that writes a one-line description of the
// state of the domain to w.
func Log(w io.Writer) DomainManipulator {
	return func(d *Domain) error {
		switch {
		case d.Results != nil:
			t := d.Results.Totals()
			_, err := fmt.Fprintf(w, "%d trees on %d×%d grid; OFP %.4g, PM10 %.4g, O3 removed %.4g, net O3 %.4g kg/y\n",
				len(d.Trees), d.Grid.Rows, d.Grid.Cols, t[OFP], t[PM10], t[O3Removed], t[NetO3])
			return err
		case d.Grid != nil:
			_, err := fmt.Fprintf(w, "%d trees on %d×%d grid of %g m cells\n",
				len(d.Trees), d.Grid.Rows, d.Grid.Cols, d.Grid.Size)
			return err
		default:
			_, err := fmt.Fprintf(w, "%d trees\n", len(d.Trees))
			return err
		}
	}
}
