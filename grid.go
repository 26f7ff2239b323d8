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

	"github.com/ctessum/sparse"
	"gonum.org/v1/gonum/floats"
)

// PoleMargin is the number of coarse grid cells left out next to each pole
// when a grid is created with the poles excluded.
const PoleMargin = 4

// Grid holds the coordinates of a uniform colatitude-longitude grid.
// A Grid should be treated as read-only once it has been created;
// use Copy to obtain an independent version.
type Grid struct {
	Colatitude []float64 // [radians], ascending from the north pole
	Longitude  []float64 // [radians]
	DTheta     float64   // colatitude spacing [radians]
	DPhi       float64   // longitude spacing [radians]
}

// NewGrid creates a uniform grid with nTheta colatitude and nPhi longitude
// intervals.
//
// If excludePoles is true, PoleMargin cells of width π/nTheta are left out
// near each pole, the grid has nTheta+1 colatitude points and nPhi+1
// longitude points spanning [0, 2π] so that the first and last columns
// can hold periodic copies of each other. DTheta is the remaining span
// divided by nTheta.
//
// If excludePoles is false, the grid has nTheta colatitude points
// spanning [0, π] and nPhi longitude points spanning [0, 2π).
func NewGrid(nTheta, nPhi int, excludePoles bool) Grid {
	var g Grid
	if excludePoles {
		coarse := math.Pi / float64(nTheta)
		margin := PoleMargin * coarse
		g.DTheta = math.Abs(margin-(math.Pi-margin)) / float64(nTheta)
		g.DPhi = 2 * math.Pi / float64(nPhi)
		g.Colatitude = floats.Span(make([]float64, nTheta+1), margin, math.Pi-margin)
		g.Longitude = floats.Span(make([]float64, nPhi+1), 0, 2*math.Pi)
		return g
	}
	g.Colatitude = floats.Span(make([]float64, nTheta), 0, math.Pi)
	g.DTheta = math.Pi / float64(nTheta-1)
	g.DPhi = 2 * math.Pi / float64(nPhi)
	// Leave the 2π endpoint off.
	g.Longitude = floats.Span(make([]float64, nPhi+1), 0, 2*math.Pi)[:nPhi]
	return g
}

// Shape returns the number of colatitude and longitude points in g.
func (g Grid) Shape() (nTheta, nPhi int) {
	return len(g.Colatitude), len(g.Longitude)
}

// Copy returns a deep copy of g.
func (g Grid) Copy() Grid {
	o := g
	o.Colatitude = append([]float64(nil), g.Colatitude...)
	o.Longitude = append([]float64(nil), g.Longitude...)
	return o
}

// Latitude returns the latitude [radians] of colatitude row i.
func (g Grid) Latitude(i int) float64 {
	return math.Pi/2 - g.Colatitude[i]
}

// NewField returns a field of zeros with the shape of g.
func (g Grid) NewField() *sparse.DenseArray {
	nt, np := g.Shape()
	return sparse.ZerosDense(nt, np)
}

// CheckShape returns an error if f does not have the shape of g.
func (g Grid) CheckShape(f *sparse.DenseArray) error {
	nt, np := g.Shape()
	if f == nil {
		return fmt.Errorf("sft: nil field: %w", ErrShapeMismatch)
	}
	if len(f.Shape) != 2 || f.Shape[0] != nt || f.Shape[1] != np {
		return fmt.Errorf("sft: field shape %v does not match grid shape [%d %d]: %w",
			f.Shape, nt, np, ErrShapeMismatch)
	}
	return nil
}

// tile returns a field of the shape of g where every column holds v,
// which must have one value per colatitude row.
func (g Grid) tile(v []float64) *sparse.DenseArray {
	o := g.NewField()
	_, np := g.Shape()
	for i, vv := range v {
		row := o.Elements[i*np : (i+1)*np]
		for j := range row {
			row[j] = vv
		}
	}
	return o
}

// copyField returns an independent copy of f.
func copyField(f *sparse.DenseArray) *sparse.DenseArray {
	o := sparse.ZerosDense(append([]int(nil), f.Shape...)...)
	copy(o.Elements, f.Elements)
	return o
}
