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
	"sort"
	"strings"

	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"
	"gonum.org/v1/gonum/floats"
)

// dipoleExponent sets how strongly the initial dipole field is
// concentrated toward the poles.
const dipoleExponent = 7

// FieldType specifies how the initial field is created.
type FieldType string

// Initial field types.
const (
	DipoleField FieldType = "dipole"
	MapField    FieldType = "map"
)

// ParseFieldType converts s into a FieldType.
func ParseFieldType(s string) (FieldType, error) {
	switch t := FieldType(strings.ToLower(strings.TrimSpace(s))); t {
	case DipoleField, MapField:
		return t, nil
	case "read":
		return MapField, nil
	}
	return "", fmt.Errorf("sft: initial field type must be 'dipole' or 'map', not %q: %w",
		s, ErrInvalidConfiguration)
}

// Dipole returns an axisymmetric field
//	B = sign |sin λ|⁷ sin λ
// where λ is latitude, so that for sign > 0 the field is positive in
// the northern hemisphere.
func Dipole(g Grid, sign float64) *sparse.DenseArray {
	b := make([]float64, len(g.Colatitude))
	for i := range g.Colatitude {
		s := math.Sin(g.Latitude(i))
		b[i] = sign * math.Pow(math.Abs(s), dipoleExponent) * s
	}
	return g.tile(b)
}

// ReadMap reads a synoptic magnetogram from variable v of the
// NetCDF file in rw and resamples it onto grid g.
//
// The variable must have two dimensions [sine latitude, longitude].
// Rows are ordered from south to north and are evenly spaced in sine
// latitude; columns evenly span longitudes from 0 to 2π. Each grid
// point takes the value of the nearest map pixel along each axis.
// Grid points outside of the colatitude or longitude range covered by
// the map are set to zero.
func ReadMap(rw cdf.ReaderWriterAt, v string, g Grid) (*sparse.DenseArray, error) {
	f, err := cdf.Open(rw)
	if err != nil {
		return nil, fmt.Errorf("sft: opening magnetogram: %v", err)
	}
	dims := f.Header.Lengths(v)
	if len(dims) != 2 {
		return nil, fmt.Errorf("sft: magnetogram variable %q has dimensions %v; it needs to have two: %w",
			v, dims, ErrShapeMismatch)
	}
	data, err := readVar(f, v, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("sft: reading magnetogram variable %q: %v", v, err)
	}
	m := sparse.ZerosDense(dims...)
	m.Elements = data
	return ResampleMap(m, g), nil
}

// ResampleMap resamples the magnetogram m, laid out as described for
// ReadMap, onto grid g.
func ResampleMap(m *sparse.DenseArray, g Grid) *sparse.DenseArray {
	ns, npm := m.Shape[0], m.Shape[1]
	srcθ := mapColatitudes(ns)
	srcφ := floats.Span(make([]float64, npm), 0, 2*math.Pi)

	// Find the source row and column for each target row and column once.
	rows := make([]int, len(g.Colatitude))
	for i, θ := range g.Colatitude {
		k := nearest(srcθ, θ)
		if k >= 0 {
			k = ns - 1 - k // srcθ is ordered north to south.
		}
		rows[i] = k
	}
	cols := make([]int, len(g.Longitude))
	for j, φ := range g.Longitude {
		cols[j] = nearest(srcφ, φ)
	}

	o := g.NewField()
	_, np := g.Shape()
	for i, r := range rows {
		if r < 0 {
			continue
		}
		for j, c := range cols {
			if c < 0 {
				continue
			}
			o.Elements[i*np+j] = m.Elements[r*npm+c]
		}
	}
	return o
}

// mapColatitudes returns the colatitudes of the rows of a magnetogram with
// n rows evenly spaced in sine latitude, ordered from north to south.
func mapColatitudes(n int) []float64 {
	ds := 2. / float64(n)
	s := floats.Span(make([]float64, n), -1+0.05*ds, 1-0.05*ds)
	θ := make([]float64, n)
	for k, v := range s {
		θ[n-1-k] = math.Acos(v)
	}
	return θ
}

// nearest returns the index of the point in ascending x that is closest
// to v, or -1 if v is outside of the range of x. Ties go to the
// lower index.
func nearest(x []float64, v float64) int {
	if len(x) == 0 || v < x[0] || v > x[len(x)-1] || math.IsNaN(v) {
		return -1
	}
	i := sort.SearchFloat64s(x, v) // first index with x[i] >= v
	if i == 0 {
		return 0
	}
	if v-x[i-1] <= x[i]-v {
		return i - 1
	}
	return i
}

// CorrectFlux returns a copy of f scaled so that the positive and negative
// flux are equal, assuming all cells have the same area. Negative cells are
// multiplied by m/|Σneg| and positive cells by m/|Σpos|, where m is the
// mean of the two. If f has no positive or no negative cells, the copy is
// returned unchanged.
func CorrectFlux(f *sparse.DenseArray) *sparse.DenseArray {
	var pos, neg float64
	for _, v := range f.Elements {
		if v > 0 {
			pos += v
		} else if v < 0 {
			neg += v
		}
	}
	o := copyField(f)
	pos, neg = math.Abs(pos), math.Abs(neg)
	if pos == 0 || neg == 0 {
		return o
	}
	mean := 0.5 * (pos + neg)
	for i, v := range o.Elements {
		if v > 0 {
			o.Elements[i] = v * mean / pos
		} else if v < 0 {
			o.Elements[i] = v * mean / neg
		}
	}
	return o
}

// InitialField creates an initial field of the given type and corrects
// its flux balance. sign is used for dipole fields. For map fields, rw
// and variable specify the NetCDF magnetogram as described for ReadMap.
func InitialField(g Grid, t FieldType, sign float64, rw cdf.ReaderWriterAt, variable string) (*sparse.DenseArray, error) {
	var f *sparse.DenseArray
	switch t {
	case DipoleField:
		f = Dipole(g, sign)
	case MapField:
		if rw == nil {
			return nil, fmt.Errorf("sft: map initial field requires a magnetogram file: %w", ErrInvalidConfiguration)
		}
		var err error
		if f, err = ReadMap(rw, variable, g); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("sft: initial field type must be %q or %q, not %q: %w",
			DipoleField, MapField, t, ErrInvalidConfiguration)
	}
	return CorrectFlux(f), nil
}
