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
)

const (
	hoursPerDay   = 24.
	secondsPerDay = 24. * 3600.
	secondsPerHr  = 3600.
)

// LeafAreaRegression holds the coefficients of the log-linear crown
// leaf-area regression:
//
//	ln(LA) = Intercept + Height·H + Diameter·D + Shading·S + Crown·C
//
// where C = π·D·(H+D)/2.
type LeafAreaRegression struct {
	Intercept float64 `toml:"Intercept"`
	Height    float64 `toml:"Height"`
	Diameter  float64 `toml:"Diameter"`
	Shading   float64 `toml:"Shading"`
	Crown     float64 `toml:"Crown"`
}

// Constants are the fixed physical and empirical coefficients used by
// Compute.
type Constants struct {
	LeafArea LeafAreaRegression `toml:"LeafArea"`

	// MolarMassO3 is the molar mass of ozone [g/mol].
	MolarMassO3 float64 `toml:"MolarMassO3" validate:"gt=0"`

	// MolarVolume is the molar volume of air [m³/mol].
	MolarVolume float64 `toml:"MolarVolume" validate:"gt=0"`

	// Photoperiod is the number of daylight hours per day during which
	// stomata are open.
	Photoperiod float64 `toml:"Photoperiod" validate:"gt=0,lte=24"`

	// PM10DepositionVelocity is the PM10 dry deposition velocity [m/s].
	PM10DepositionVelocity float64 `toml:"PM10DepositionVelocity" validate:"gte=0"`

	// DiffusivityRatio is the ratio of the diffusivity of ozone to that
	// of water vapor.
	DiffusivityRatio float64 `toml:"DiffusivityRatio" validate:"gt=0"`

	// ResuspensionRate is the fraction of deposited particles that
	// stay on the leaf.
	ResuspensionRate float64 `toml:"ResuspensionRate" validate:"gte=0,lte=1"`

	// StomatalFraction is the fraction of total potential ozone removal
	// that occurs through stomata.
	StomatalFraction float64 `toml:"StomatalFraction" validate:"gt=0,lte=1"`
}

// DefaultConstants returns the coefficients of the reference model.
func DefaultConstants() *Constants {
	return &Constants{
		LeafArea: LeafAreaRegression{
			Intercept: -4.33,
			Height:    0.29,
			Diameter:  0.73,
			Shading:   5.72,
			Crown:     -0.01,
		},
		MolarMassO3:            47.997,
		MolarVolume:            0.02445,
		Photoperiod:            12,
		PM10DepositionVelocity: 0.0064,
		DiffusivityRatio:       0.613,
		ResuspensionRate:       0.5,
		StomatalFraction:       0.3,
	}
}

// Check returns an error if any constant would make the model undefined.
func (c *Constants) Check() error {
	for name, v := range map[string]float64{
		"MolarMassO3":      c.MolarMassO3,
		"MolarVolume":      c.MolarVolume,
		"Photoperiod":      c.Photoperiod,
		"DiffusivityRatio": c.DiffusivityRatio,
		"StomatalFraction": c.StomatalFraction,
	} {
		if !(v > 0) {
			return fmt.Errorf("ecotree: constant %s=%g but should be >0", name, v)
		}
	}
	return nil
}

// Ambient holds the city-wide pollutant concentrations [μg/m³].
type Ambient struct {
	// PM10 is the yearly mean PM10 concentration.
	PM10 float64 `validate:"gte=0"`

	// O3 is the ozone concentration.
	O3 float64 `validate:"gte=0"`
}

// Compute runs the biophysical model for a single tree. The steps run
// in dependency order and each uses only the tree, the constants, the
// ambient concentrations and the results of earlier steps, so the
// result depends only on the arguments.
func Compute(t *Tree, c *Constants, a Ambient) Derived {
	var d Derived
	d.LeafArea = leafArea(t, &c.LeafArea)
	d.LeafDryWeight = d.LeafArea * t.ConversionFactor

	var ofpPerGram float64
	for i := range t.EF {
		ofpPerGram += t.EF[i] * t.MIR[i]
	}
	d.OFPHourly = d.LeafDryWeight * ofpPerGram
	d.OFPYearly = d.OFPHourly * t.LeafDays * hoursPerDay

	d.PM10Yearly = c.PM10DepositionVelocity * a.PM10 * d.LeafArea *
		t.LeafDays * secondsPerDay * c.ResuspensionRate * 1.e-9

	d.O3Instantaneous = stomatalO3Flux(t.Conductance, a.O3, c)
	d.O3Yearly = d.O3Instantaneous * c.Photoperiod * t.LeafDays * secondsPerHr * 1.e-9
	d.O3RemovalYearly = d.O3Yearly / c.StomatalFraction
	d.O3RemovedMassYearly = d.O3RemovalYearly * d.LeafArea * c.MolarMassO3

	// OFP is in μg; removed mass is in g.
	d.O3NetUptakeYearly = d.O3RemovedMassYearly - d.OFPYearly*1.e-6
	return d
}

// leafArea returns the leaf area [m²] of a tree crown.
func leafArea(t *Tree, r *LeafAreaRegression) float64 {
	h, dia := t.CrownHeight, t.CrownDiameter
	crown := math.Pi * dia * (h + dia) / 2
	return math.Exp(r.Intercept + r.Height*h + r.Diameter*dia +
		r.Shading*t.Shading + r.Crown*crown)
}

// stomatalO3Flux returns the instantaneous stomatal ozone flux
// [nmol/m²/s] for stomatal conductance gs [mmol/m²/s] and ozone
// concentration o3 [μg/m³].
func stomatalO3Flux(gs, o3 float64, c *Constants) float64 {
	gPerM3 := o3 * 1.e-6
	ppb := 1.e9 * gPerM3 * c.MolarVolume / c.MolarMassO3
	return gs * 1.e-3 * ppb * c.DiffusivityRatio
}
