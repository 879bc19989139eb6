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
	"strings"
)

// LeafHabit is the leaf-retention category of a tree species.
// Only Evergreen and Deciduous are valid; the zero value is Unknown.
type LeafHabit int

// Leaf habits.
const (
	Unknown LeafHabit = iota
	Evergreen
	Deciduous
)

// ErrUnknownLeafHabit is returned when a leaf habit is neither
// evergreen nor deciduous.
var ErrUnknownLeafHabit = errors.New("ecotree: unknown leaf habit")

// ParseLeafHabit returns the habit named by s ("evergreen" or "deciduous",
// case-insensitive).
func ParseLeafHabit(s string) (LeafHabit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "evergreen":
		return Evergreen, nil
	case "deciduous":
		return Deciduous, nil
	}
	return Unknown, fmt.Errorf("%w: %q", ErrUnknownLeafHabit, s)
}

func (h LeafHabit) String() string {
	switch h {
	case Evergreen:
		return "evergreen"
	case Deciduous:
		return "deciduous"
	}
	return "unknown"
}

// HabitTraits are the species-class coefficients that depend only on
// leaf habit.
type HabitTraits struct {
	// LeafDays is the number of days per year the tree carries leaves.
	LeafDays float64

	// Conductance is the stomatal conductance to water vapor [mmol/m²/s].
	Conductance float64
}

// Traits returns the default leaf-retention period and stomatal
// conductance for h. It returns an error for Unknown.
func (h LeafHabit) Traits() (HabitTraits, error) {
	switch h {
	case Evergreen:
		return HabitTraits{LeafDays: 365, Conductance: 16.896}, nil
	case Deciduous:
		return HabitTraits{LeafDays: 183, Conductance: 72.637}, nil
	}
	return HabitTraits{}, ErrUnknownLeafHabit
}

// VOCClass indexes the volatile organic compound classes in a
// tree's emission profile.
type VOCClass int

// Volatile organic compound classes.
const (
	Isoprene VOCClass = iota
	Monoterpenes
	Sesquiterpenes
	numVOC
)

// VOCNames are the names of the VOC classes, in VOCClass order.
var VOCNames = [numVOC]string{"isoprene", "monoterpenes", "sesquiterpenes"}

// Tree is a single inventory tree. Positions are planar coordinates in
// meters. GridX and GridY are set by NormalizeCoordinates; all other
// fields are inputs and are not changed by the model.
type Tree struct {
	Species string

	CrownHeight   float64 // m
	CrownDiameter float64 // m
	Shading       float64 // shading coefficient, dimensionless

	X, Y         float64 // raw position, m
	GridX, GridY float64 // position relative to the domain origin, m

	Habit            LeafHabit
	ConversionFactor float64 // leaf dry weight per leaf area, g/m²
	LeafDays         float64 // days/year
	Conductance      float64 // mmol/m²/s

	// EF holds the mass emission factors [μg VOC / g dry weight / h]
	// and MIR the maximum incremental reactivities [g O3 / g VOC],
	// both indexed by VOCClass.
	EF, MIR [numVOC]float64
}

// NewTree returns a tree of the given species and habit with LeafDays
// and Conductance set from the habit defaults.
func NewTree(species string, habit LeafHabit) (*Tree, error) {
	tr, err := habit.Traits()
	if err != nil {
		return nil, fmt.Errorf("ecotree: species %q: %w", species, err)
	}
	return &Tree{
		Species:     species,
		Habit:       habit,
		LeafDays:    tr.LeafDays,
		Conductance: tr.Conductance,
	}, nil
}

// Validate checks that t can be run through the model.
func (t *Tree) Validate() error {
	if t.Habit != Evergreen && t.Habit != Deciduous {
		return fmt.Errorf("ecotree: tree %q: %w", t.Species, ErrUnknownLeafHabit)
	}
	vals := []struct {
		name string
		v    float64
	}{
		{"crown height", t.CrownHeight},
		{"crown diameter", t.CrownDiameter},
		{"shading", t.Shading},
		{"conversion factor", t.ConversionFactor},
		{"conductance", t.Conductance},
	}
	for _, v := range vals {
		if math.IsNaN(v.v) || math.IsInf(v.v, 0) || v.v < 0 {
			return fmt.Errorf("ecotree: tree %q: %s=%g but should be a finite value >= 0", t.Species, v.name, v.v)
		}
	}
	if !(t.LeafDays > 0 && t.LeafDays <= 366) {
		return fmt.Errorf("ecotree: tree %q: leaf days=%g but should be in (0, 366]", t.Species, t.LeafDays)
	}
	if math.IsNaN(t.X) || math.IsNaN(t.Y) || math.IsInf(t.X, 0) || math.IsInf(t.Y, 0) {
		return fmt.Errorf("ecotree: tree %q: position (%g, %g) is not finite", t.Species, t.X, t.Y)
	}
	for i := range t.EF {
		if math.IsNaN(t.EF[i]) || math.IsNaN(t.MIR[i]) {
			return fmt.Errorf("ecotree: tree %q: %s emission profile is NaN", t.Species, VOCNames[i])
		}
	}
	return nil
}

// Derived holds the values the model computes for a single tree.
type Derived struct {
	LeafArea      float64 // m²
	LeafDryWeight float64 // g

	OFPHourly float64 // μg O3 / h
	OFPYearly float64 // μg O3 / y

	PM10Yearly float64 // kg / y

	O3Instantaneous     float64 // nmol/m²/s
	O3Yearly            float64 // mol/m²/y
	O3RemovalYearly     float64 // mol/m²/y
	O3RemovedMassYearly float64 // g / y
	O3NetUptakeYearly   float64 // g / y
}
