/*
Copyright © 2025 the SFT authors.
This file is part of SFT.

SFT is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

SFT is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with SFT.  If not, see <http://www.gnu.org/licenses/>.
*/

package sft

import (
	"fmt"
	"math"
)

// DefaultCFL is the default Courant number.
const DefaultCFL = 0.4

// meridionalOffset keeps the meridional advection limit finite where
// the flow vanishes [m/s].
const meridionalOffset = 0.001

// StepSize is the length of a model sub-step. StepsPerDay sub-steps of
// TimeStep seconds make up exactly one day.
type StepSize struct {
	TimeStep    float64 // [s]
	StepsPerDay int
}

// CFLBounds holds the stability limits [s] of each transport process,
// minimized over the grid.
type CFLBounds struct {
	DiffusionTheta float64 // (RΔθ)²/D
	DiffusionPhi   float64 // (RΔφ sinθ)²/D
	AdvectionTheta float64 // |RΔθ/(u+0.001)|
	AdvectionPhi   float64 // |RΔφ sinθ/(u+0.001)|
	RotationTheta  float64 // RΔθ/|ωR sinθ|
	RotationPhi    float64 // RΔφ sinθ/|ωR sinθ|
	RotationRate   float64 // Δφ/|ω|
}

// Min returns the smallest of the bounds.
func (b CFLBounds) Min() float64 {
	return math.Min(b.DiffusionTheta, math.Min(b.DiffusionPhi,
		math.Min(b.AdvectionTheta, math.Min(b.AdvectionPhi,
			math.Min(b.RotationTheta, math.Min(b.RotationPhi, b.RotationRate))))))
}

func (b CFLBounds) String() string {
	return fmt.Sprintf("diffusion θ=%.4gs φ=%.4gs; advection θ=%.4gs φ=%.4gs; "+
		"rotation θ=%.4gs φ=%.4gs rate=%.4gs",
		b.DiffusionTheta, b.DiffusionPhi, b.AdvectionTheta, b.AdvectionPhi,
		b.RotationTheta, b.RotationPhi, b.RotationRate)
}

// CalculateTimeStep returns the largest stable sub-step for grid g and
// diffusivity D that divides one day into a whole number of sub-steps,
// evaluated against the default transport profiles (solar rotation in the
// Carrington frame and a DefaultPeakSpeed meridional flow).
func CalculateTimeStep(g Grid, D, cfl float64) (StepSize, CFLBounds, error) {
	return TimeStepForProfiles(g, D, cfl, nil, nil)
}

// TimeStepForProfiles is like CalculateTimeStep but evaluates the
// advection limits against the given profiles. Nil profiles are replaced
// by the defaults.
//
// Cells where a limit is not finite (for example where the flow speed is
// zero) do not constrain it. An error wrapping ErrNumericDegeneracy is
// returned if cfl is not positive or if no finite, positive limit remains.
func TimeStepForProfiles(g Grid, D, cfl float64, meridional, rotation *Profile) (StepSize, CFLBounds, error) {
	if !(cfl > 0) || math.IsInf(cfl, 0) {
		return StepSize{}, CFLBounds{}, fmt.Errorf("sft: CFL number must be positive and finite, is %g: %w",
			cfl, ErrNumericDegeneracy)
	}
	if meridional == nil {
		meridional = MeridionalFlow(g, DefaultPeakSpeed)
	}
	if rotation == nil {
		var err error
		rotation, err = DifferentialRotation(g, SolarRotation, Carrington, DefaultRotationPeriod)
		if err != nil {
			return StepSize{}, CFLBounds{}, err
		}
	}
	if err := checkProfiles(g, rotation, meridional); err != nil {
		return StepSize{}, CFLBounds{}, err
	}

	inf := math.Inf(1)
	b := CFLBounds{inf, inf, inf, inf, inf, inf, inf}
	rdθ := SolarRadius * g.DTheta
	// Both profiles are constant along each row, so the minimum over the
	// grid is the minimum over rows.
	for i, θ := range g.Colatitude {
		s := math.Sin(θ)
		rdφ := SolarRadius * g.DPhi * s
		u := meridional.row(i)
		ω := rotation.row(i)
		vφ := math.Abs(ω * SolarRadius * s)

		b.DiffusionTheta = minFinite(b.DiffusionTheta, rdθ*rdθ/D)
		b.DiffusionPhi = minFinite(b.DiffusionPhi, rdφ*rdφ/D)
		b.AdvectionTheta = minFinite(b.AdvectionTheta, math.Abs(rdθ/(u+meridionalOffset)))
		b.AdvectionPhi = minFinite(b.AdvectionPhi, math.Abs(rdφ/(u+meridionalOffset)))
		b.RotationTheta = minFinite(b.RotationTheta, rdθ/vφ)
		b.RotationPhi = minFinite(b.RotationPhi, rdφ/vφ)
		b.RotationRate = minFinite(b.RotationRate, g.DPhi/math.Abs(ω))
	}

	limit := b.Min()
	if math.IsInf(limit, 0) || !(limit > 0) {
		return StepSize{}, b, fmt.Errorf("sft: no usable stability limit (%v): %w", b, ErrNumericDegeneracy)
	}
	raw := cfl * limit
	n := int(math.RoundToEven(SecondsPerDay / raw))
	if n < 1 {
		n = 1
	}
	return StepSize{TimeStep: SecondsPerDay / float64(n), StepsPerDay: n}, b, nil
}

// minFinite returns the smaller of cur and v, ignoring v if it is
// NaN or infinite.
func minFinite(cur, v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return cur
	}
	return math.Min(cur, v)
}
