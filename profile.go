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
	"strings"

	"github.com/ctessum/sparse"
)

// Physical constants.
const (
	// SolarRadius is the radius of the Sun [m].
	SolarRadius = 6.955e8

	// RotationRateFactor converts degrees per day to radians per second.
	RotationRateFactor = 2.0201e-7

	// SecondsPerDay is the length of a simulated day [s].
	SecondsPerDay = 86400.

	// CarringtonRate is the synodic Carrington rotation rate [degrees/day].
	CarringtonRate = 360. / 27.2753
)

// Transport profile defaults.
const (
	DefaultPeakSpeed          = 15.0 // m/s
	DefaultMeridionalExponent = 2.33
	DefaultRotationPeriod     = 2.0 // days
)

// Coefficients of the solar differential rotation profile [degrees/day].
const (
	rotationBase = 13.38
	rotationCos2 = 2.30
	rotationCos4 = 1.62
)

// ProfileKind distinguishes the two transport profiles.
type ProfileKind int

const (
	// Meridional profiles hold the meridional flow speed [m/s].
	Meridional ProfileKind = iota
	// Rotational profiles hold the rotation rate [rad/s].
	Rotational
)

func (k ProfileKind) String() string {
	switch k {
	case Meridional:
		return "meridional"
	case Rotational:
		return "rotational"
	default:
		return fmt.Sprintf("ProfileKind(%d)", int(k))
	}
}

// Profile is a time-invariant transport field that varies only with
// colatitude. Values has the shape of the grid it was created for.
type Profile struct {
	Kind   ProfileKind
	Values *sparse.DenseArray
}

// row returns the profile value for colatitude row i.
func (p *Profile) row(i int) float64 {
	return p.Values.Elements[i*p.Values.Shape[1]]
}

// Rotation specifies the type of rotation profile.
type Rotation string

// Frame specifies the reference frame of a solar rotation profile.
type Frame string

// Rotation types.
const (
	SolarRotation Rotation = "solar"
	RigidRotation Rotation = "rigid"
)

// Reference frames.
const (
	Carrington Frame = "carrington"
	Synodic    Frame = "synodic"
)

// ParseRotation converts s into a Rotation.
func ParseRotation(s string) (Rotation, error) {
	switch r := Rotation(strings.ToLower(strings.TrimSpace(s))); r {
	case SolarRotation, RigidRotation:
		return r, nil
	}
	return "", fmt.Errorf("sft: rotation must be 'solar' or 'rigid', not %q: %w", s, ErrInvalidConfiguration)
}

// ParseFrame converts s into a Frame.
func ParseFrame(s string) (Frame, error) {
	switch f := Frame(strings.ToLower(strings.TrimSpace(s))); f {
	case Carrington, Synodic:
		return f, nil
	}
	return "", fmt.Errorf("sft: for solar rotation, frame must be 'carrington' or 'synodic', not %q: %w",
		s, ErrInvalidConfiguration)
}

// MeridionalFlow returns the meridional circulation profile with
// the given peak speed [m/s] and the default exponent.
func MeridionalFlow(g Grid, peakSpeed float64) *Profile {
	return MeridionalFlowExponent(g, peakSpeed, DefaultMeridionalExponent)
}

// MeridionalFlowExponent returns the meridional circulation profile
//	v(l) = v0 (1+p)^((p+1)/2) / p^(p/2) sin(l) cos(l)^p
// where l = θ - π/2. The profile is computed once for each row and then
// copied to every longitude.
func MeridionalFlowExponent(g Grid, v0, p float64) *Profile {
	du := v0 * math.Pow(1+p, 0.5*(p+1)) / math.Pow(p, 0.5*p)
	v := make([]float64, len(g.Colatitude))
	for i, θ := range g.Colatitude {
		l := θ - math.Pi/2
		v[i] = du * math.Sin(l) * math.Pow(math.Cos(l), p)
	}
	return &Profile{Kind: Meridional, Values: g.tile(v)}
}

// DifferentialRotation returns the rotation rate profile [rad/s].
// Solar rotation follows
//	ω(θ) = (base - 2.30 cos²θ - 1.62 cos⁴θ)
// [degrees/day], where base is 13.38 in the synodic frame and
// 13.38 - CarringtonRate in the Carrington frame. Rigid rotation
// is uniform with the given rotation period [days]; frame is ignored.
func DifferentialRotation(g Grid, rotation Rotation, frame Frame, rotationPeriod float64) (*Profile, error) {
	ω := make([]float64, len(g.Colatitude))
	switch rotation {
	case SolarRotation:
		var base float64
		switch frame {
		case Carrington:
			base = rotationBase - CarringtonRate
		case Synodic:
			base = rotationBase
		default:
			return nil, fmt.Errorf("sft: for solar rotation, frame must be %q or %q, not %q: %w",
				Carrington, Synodic, frame, ErrInvalidConfiguration)
		}
		for i, θ := range g.Colatitude {
			c2 := math.Cos(θ) * math.Cos(θ)
			ω[i] = (base - rotationCos2*c2 - rotationCos4*c2*c2) * RotationRateFactor
		}
	case RigidRotation:
		if rotationPeriod <= 0 {
			return nil, fmt.Errorf("sft: rigid rotation period must be positive, not %g: %w",
				rotationPeriod, ErrInvalidConfiguration)
		}
		rate := 360. / rotationPeriod * RotationRateFactor
		for i := range ω {
			ω[i] = rate
		}
	default:
		return nil, fmt.Errorf("sft: rotation must be %q or %q, not %q: %w",
			SolarRotation, RigidRotation, rotation, ErrInvalidConfiguration)
	}
	return &Profile{Kind: Rotational, Values: g.tile(ω)}, nil
}
