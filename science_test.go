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
	"math"
	"testing"
)

const testTolerance = 1.e-10

func different(a, b, tolerance float64) bool {
	if 2*math.Abs(a-b)/math.Abs(a+b) > tolerance || math.IsNaN(a) || math.IsNaN(b) {
		return true
	}
	return false
}

// testTree returns one of two reference trees: an evergreen with
// mostly monoterpene emissions, or a deciduous isoprene emitter.
func testTree(t *testing.T, habit LeafHabit, x, y float64) *Tree {
	tr, err := NewTree("Testus arbor", habit)
	if err != nil {
		t.Fatal(err)
	}
	tr.X, tr.Y = x, y
	tr.MIR = [3]float64{9.1, 3.2, 4.1}
	switch habit {
	case Evergreen:
		tr.Species = "Pinus sylvestris"
		tr.CrownHeight, tr.CrownDiameter, tr.Shading = 6, 4, 0.5
		tr.ConversionFactor = 100
		tr.EF = [3]float64{0.1, 1.5, 0.05}
	case Deciduous:
		tr.Species = "Quercus robur"
		tr.CrownHeight, tr.CrownDiameter, tr.Shading = 8, 5, 0.6
		tr.ConversionFactor = 70
		tr.EF = [3]float64{12, 0.4, 0}
	}
	return tr
}

var testAmbient = Ambient{PM10: 20, O3: 60}

func TestCompute(t *testing.T) {
	c := DefaultConstants()
	tests := []struct {
		habit LeafHabit
		want  Derived
	}{
		{
			habit: Evergreen,
			want: Derived{
				LeafArea:            12.957586792221274,
				LeafDryWeight:       1295.7586792221275,
				OFPHourly:           7664.412587598886,
				OFPYearly:           67140254.26736625,
				PM10Yearly:          0.02615234925308737,
				O3Instantaneous:     0.31656317719857496,
				O3Yearly:            0.0049915681780671305,
				O3RemovalYearly:     0.016638560593557103,
				O3RemovedMassYearly: 10.34794167667618,
				O3NetUptakeYearly:   -56.79231259069007,
			},
		},
		{
			habit: Deciduous,
			want: Derived{
				LeafArea:            57.45387130035628,
				LeafDryWeight:       4021.77099102494,
				OFPHourly:           444325.2590884353,
				OFPYearly:           1951476537.9164078,
				PM10Yearly:          0.05813853759386837,
				O3Instantaneous:     1.3609256334145885,
				O3Yearly:            0.010758933687522372,
				O3RemovalYearly:     0.035863112291741245,
				O3RemovedMassYearly: 98.89660120200237,
				O3NetUptakeYearly:   -1852.5799367144054,
			},
		},
	}
	for _, test := range tests {
		t.Run(test.habit.String(), func(t *testing.T) {
			got := Compute(testTree(t, test.habit, 0, 0), c, testAmbient)
			fields := []struct {
				name      string
				got, want float64
			}{
				{"LeafArea", got.LeafArea, test.want.LeafArea},
				{"LeafDryWeight", got.LeafDryWeight, test.want.LeafDryWeight},
				{"OFPHourly", got.OFPHourly, test.want.OFPHourly},
				{"OFPYearly", got.OFPYearly, test.want.OFPYearly},
				{"PM10Yearly", got.PM10Yearly, test.want.PM10Yearly},
				{"O3Instantaneous", got.O3Instantaneous, test.want.O3Instantaneous},
				{"O3Yearly", got.O3Yearly, test.want.O3Yearly},
				{"O3RemovalYearly", got.O3RemovalYearly, test.want.O3RemovalYearly},
				{"O3RemovedMassYearly", got.O3RemovedMassYearly, test.want.O3RemovedMassYearly},
				{"O3NetUptakeYearly", got.O3NetUptakeYearly, test.want.O3NetUptakeYearly},
			}
			for _, f := range fields {
				if different(f.got, f.want, testTolerance) {
					t.Errorf("%s: have %g, want %g", f.name, f.got, f.want)
				}
			}
		})
	}
}

func TestComputeDeterministic(t *testing.T) {
	c := DefaultConstants()
	a := testTree(t, Deciduous, 10, 20)
	b := testTree(t, Deciduous, 5000, -300) // position does not matter
	want := Compute(a, c, testAmbient)
	for i := 0; i < 10; i++ {
		if got := Compute(b, c, testAmbient); got != want {
			t.Fatalf("iteration %d: have %+v, want %+v", i, got, want)
		}
	}
}

func TestComputeConstants(t *testing.T) {
	tr := testTree(t, Evergreen, 0, 0)
	c := DefaultConstants()
	base := Compute(tr, c, testAmbient)

	c2 := DefaultConstants()
	c2.StomatalFraction = 0.6
	half := Compute(tr, c2, testAmbient)
	if different(half.O3RemovalYearly, base.O3RemovalYearly/2, testTolerance) {
		t.Errorf("doubling the stomatal fraction should halve removal: %g vs %g",
			half.O3RemovalYearly, base.O3RemovalYearly)
	}
	if half.OFPYearly != base.OFPYearly {
		t.Errorf("stomatal fraction should not change OFP")
	}

	noPM := Compute(tr, c, Ambient{PM10: 0, O3: 60})
	if noPM.PM10Yearly != 0 {
		t.Errorf("PM10 deposition with no PM10 should be 0, got %g", noPM.PM10Yearly)
	}
}

func TestLeafHabit(t *testing.T) {
	for s, want := range map[string]LeafHabit{"evergreen": Evergreen, "Deciduous": Deciduous, " EVERGREEN ": Evergreen} {
		h, err := ParseLeafHabit(s)
		if err != nil {
			t.Fatal(err)
		}
		if h != want {
			t.Errorf("%q: have %v, want %v", s, h, want)
		}
	}
	if _, err := ParseLeafHabit("semi-evergreen"); !errors.Is(err, ErrUnknownLeafHabit) {
		t.Errorf("want ErrUnknownLeafHabit, got %v", err)
	}
	if _, err := NewTree("x", Unknown); !errors.Is(err, ErrUnknownLeafHabit) {
		t.Errorf("want ErrUnknownLeafHabit, got %v", err)
	}
	tr, err := Deciduous.Traits()
	if err != nil {
		t.Fatal(err)
	}
	if tr.LeafDays != 183 || tr.Conductance != 72.637 {
		t.Errorf("deciduous traits: %+v", tr)
	}
}

func TestValidate(t *testing.T) {
	tr := testTree(t, Evergreen, 0, 0)
	if err := tr.Validate(); err != nil {
		t.Fatal(err)
	}
	bad := *tr
	bad.Habit = Unknown
	if err := bad.Validate(); !errors.Is(err, ErrUnknownLeafHabit) {
		t.Errorf("unknown habit: want ErrUnknownLeafHabit, got %v", err)
	}
	bad = *tr
	bad.CrownHeight = math.NaN()
	if err := bad.Validate(); err == nil {
		t.Error("NaN crown height should fail validation")
	}
	bad = *tr
	bad.LeafDays = 0
	if err := bad.Validate(); err == nil {
		t.Error("zero leaf days should fail validation")
	}
}
