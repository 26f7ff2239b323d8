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

	"github.com/ctessum/atmos/advect"
	"github.com/ctessum/sparse"
)

// rowKernel holds the stencil weights for one interior colatitude row.
// Because the grid spacing and the transport profiles only vary with
// colatitude, the weights are shared by every cell in the row.
type rowKernel struct {
	// Diffusion
	dθ1 float64 // first derivative weight, (D/R²) cosθ/(2Δθ sinθ)
	dθ2 float64 // second derivative weight, (D/R²)/Δθ²
	dφ2 float64 // second derivative weight, (D/R²)/(Δφ sinθ)²

	// Meridional advection
	u, uS, uN float64 // flow speed in this row and the rows to the north and south
	s, sS, sN float64 // sinθ in this row and the rows to the north and south
	rdθs      float64 // RΔθ sinθ

	// Zonal advection
	ω  float64 // rotation rate
	dφ float64 // Δφ
}

// newKernels calculates the stencil weights for each interior row of g.
// Element k of the result is for grid row k+1.
func newKernels(g Grid, D float64, meridional, rotation *Profile) []rowKernel {
	nt := len(g.Colatitude)
	if nt < 3 {
		return nil
	}
	dr2 := D / (SolarRadius * SolarRadius)
	k := make([]rowKernel, nt-2)
	for i := 1; i < nt-1; i++ {
		θ := g.Colatitude[i]
		s := math.Sin(θ)
		k[i-1] = rowKernel{
			dθ1:  dr2 * math.Cos(θ) / (2 * g.DTheta * s),
			dθ2:  dr2 / (g.DTheta * g.DTheta),
			dφ2:  dr2 / ((g.DPhi * s) * (g.DPhi * s)),
			u:    meridional.row(i),
			uS:   meridional.row(i + 1),
			uN:   meridional.row(i - 1),
			s:    s,
			sS:   math.Sin(g.Colatitude[i+1]),
			sN:   math.Sin(g.Colatitude[i-1]),
			rdθs: SolarRadius * g.DTheta * s,
			ω:    rotation.row(i),
			dφ:   g.DPhi,
		}
	}
	return k
}

// diffusion returns the diffusive rate of change at column j, where
// north, row and south are the field values in this row and its
// neighbors. j must be an interior column.
func (k *rowKernel) diffusion(north, row, south []float64, j int) float64 {
	c := row[j]
	return k.dθ1*(south[j]-north[j]) +
		k.dθ2*(south[j]+north[j]-2*c) +
		k.dφ2*(row[j+1]+row[j-1]-2*c)
}

// advection returns the advective rate of change at column j using
// first-order upwind differences in each direction.
func (k *rowKernel) advection(north, row, south []float64, j int) float64 {
	var aθ float64
	switch {
	case k.u > 0:
		aθ = (k.u*row[j]*k.s - k.uN*north[j]*k.sN) / k.rdθs
	case k.u < 0:
		aθ = (k.uS*south[j]*k.sS - k.u*row[j]*k.s) / k.rdθs
	}
	aφ := advect.UpwindFlux(k.ω, row[j], row[j+1], k.dφ) -
		advect.UpwindFlux(k.ω, row[j-1], row[j], k.dφ)
	return aθ + aφ
}

// interior applies rate to every interior cell of f and returns the
// result, which has the shape [nθ-2, nφ-2].
func interior(f *sparse.DenseArray, kernels []rowKernel,
	rate func(k *rowKernel, north, row, south []float64, j int) float64) *sparse.DenseArray {
	nt, np := f.Shape[0], f.Shape[1]
	o := sparse.ZerosDense(nt-2, np-2)
	for i := 1; i < nt-1; i++ {
		k := &kernels[i-1]
		north := f.Elements[(i-1)*np : i*np]
		row := f.Elements[i*np : (i+1)*np]
		south := f.Elements[(i+1)*np : (i+2)*np]
		out := o.Elements[(i-1)*(np-2) : i*(np-2)]
		for j := 1; j < np-1; j++ {
			out[j-1] = rate(k, north, row, south, j)
		}
	}
	return o
}

// Diffusion calculates the rate of change of field f [G/s] due to
// turbulent diffusion with diffusivity D [m²/s] on grid g:
//	∂f/∂t = (D/R²)[(cosθ/sinθ)∂f/∂θ + ∂²f/∂θ² + (1/sin²θ)∂²f/∂φ²]
// using second-order central differences. The result only covers the
// interior cells and has the shape [nθ-2, nφ-2].
func Diffusion(f *sparse.DenseArray, D float64, g Grid) (*sparse.DenseArray, error) {
	if err := checkInterior(f, g); err != nil {
		return nil, err
	}
	// The diffusion weights do not depend on the profiles.
	k := newKernels(g, D, zeroProfile(g, Meridional), zeroProfile(g, Rotational))
	return interior(f, k, (*rowKernel).diffusion), nil
}

// Advection calculates the rate at which field f [G/s] is carried away by
// the given rotation and meridional flow profiles on grid g, using
// upwind differences chosen separately for each cell:
//	(1/(R sinθ))∂(u f sinθ)/∂θ + ω ∂f/∂φ
// The result only covers the interior cells and has the shape [nθ-2, nφ-2].
func Advection(f *sparse.DenseArray, rotation, meridional *Profile, g Grid) (*sparse.DenseArray, error) {
	if err := checkInterior(f, g); err != nil {
		return nil, err
	}
	if err := checkProfiles(g, rotation, meridional); err != nil {
		return nil, err
	}
	k := newKernels(g, 0, meridional, rotation)
	return interior(f, k, (*rowKernel).advection), nil
}

func checkInterior(f *sparse.DenseArray, g Grid) error {
	if err := g.CheckShape(f); err != nil {
		return err
	}
	if nt, np := g.Shape(); nt < 3 || np < 3 {
		return fmt.Errorf("sft: grid [%d %d] has no interior cells: %w", nt, np, ErrShapeMismatch)
	}
	return nil
}

func zeroProfile(g Grid, kind ProfileKind) *Profile {
	return &Profile{Kind: kind, Values: g.NewField()}
}
