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
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/GaryBoone/GoStats/stats"
	"github.com/Knetic/govaluate"
	"github.com/ctessum/sparse"
	"github.com/ctessum/unit"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// DefaultPolarLatitude is the default boundary of the polar caps [degrees].
const DefaultPolarLatitude = 55.

// maxwellsPerWeber converts magnetic flux from Mx to Wb.
const maxwellsPerWeber = 1e8

// Weber is the dimension of magnetic flux [kg m² s⁻² A⁻¹].
var Weber = unit.Dimensions{
	unit.MassDim:    1,
	unit.LengthDim:  2,
	unit.TimeDim:    -2,
	unit.CurrentDim: -1,
}

// cellArea returns sinθ Δθ Δφ, the area of a cell in row i of g on the
// unit sphere.
func cellArea(g Grid, i int) float64 {
	return math.Sin(g.Colatitude[i]) * g.DTheta * g.DPhi
}

// rowSum returns the sum of the values in row i of f after applying fn.
func rowSum(f *sparse.DenseArray, i int, fn func(float64) float64) float64 {
	np := f.Shape[1]
	var s float64
	for _, v := range f.Elements[i*np : (i+1)*np] {
		s += fn(v)
	}
	return s
}

func identity(v float64) float64 { return v }

// surfaceFactor converts from area on the unit sphere to cm² on
// the solar surface.
func surfaceFactor() float64 {
	r := SolarRadius * 1e2
	return r * r
}

// UnsignedFlux returns the total unsigned magnetic flux [Mx] of f,
//	Σ|B| sinθ Δθ Δφ (100 R)²
// summed over every cell of the grid.
func UnsignedFlux(f *sparse.DenseArray, g Grid) float64 {
	var s float64
	for i := range g.Colatitude {
		s += rowSum(f, i, math.Abs) * cellArea(g, i)
	}
	return s * surfaceFactor()
}

// FluxWeber converts a magnetic flux in Mx to Wb.
func FluxWeber(mx float64) *unit.Unit {
	return unit.New(mx/maxwellsPerWeber, Weber)
}

// DipoleMoment returns the axial dipole moment [G] of f,
//	(3/4π) Σ B cosθ sinθ Δθ Δφ
func DipoleMoment(f *sparse.DenseArray, g Grid) float64 {
	var s float64
	for i, θ := range g.Colatitude {
		s += rowSum(f, i, identity) * math.Cos(θ) * cellArea(g, i)
	}
	return 3 / (4 * math.Pi) * s
}

// polarRows returns whether row i of g is in the northern or southern
// polar cap bounded by latitude latDeg [degrees].
func polarRows(g Grid, i int, latDeg float64) (north, south bool) {
	lat := g.Latitude(i) * 180 / math.Pi
	return lat >= latDeg, lat <= -latDeg
}

// PolarField returns the area-weighted mean field [G] poleward of
// latitude latDeg in each hemisphere. If a cap contains no grid rows its
// mean is NaN.
func PolarField(f *sparse.DenseArray, g Grid, latDeg float64) (north, south float64) {
	_, np := g.Shape()
	var sn, ss, wn, ws float64
	for i := range g.Colatitude {
		n, s := polarRows(g, i, latDeg)
		if !n && !s {
			continue
		}
		a := cellArea(g, i)
		b := rowSum(f, i, identity) * a
		w := a * float64(np)
		if n {
			sn += b
			wn += w
		}
		if s {
			ss += b
			ws += w
		}
	}
	return sn / wn, ss / ws
}

// PolarFlux returns the signed magnetic flux [Mx] poleward of latitude
// latDeg [degrees] in each hemisphere.
func PolarFlux(f *sparse.DenseArray, g Grid, latDeg float64) (north, south float64) {
	for i := range g.Colatitude {
		n, s := polarRows(g, i, latDeg)
		if !n && !s {
			continue
		}
		b := rowSum(f, i, identity) * cellArea(g, i)
		if n {
			north += b
		}
		if s {
			south += b
		}
	}
	return north * surfaceFactor(), south * surfaceFactor()
}

// Butterfly returns the mean of f over all longitudes for each
// colatitude row.
func Butterfly(f *sparse.DenseArray) []float64 {
	nt, np := f.Shape[0], f.Shape[1]
	o := make([]float64, nt)
	for i := range o {
		o[i] = floats.Sum(f.Elements[i*np:(i+1)*np]) / float64(np)
	}
	return o
}

// FluxDecayTime returns the e-folding time [days] of flux [Mx] from a
// least-squares fit of ln(flux) against days. An error wrapping
// ErrNumericDegeneracy is returned if there are fewer than two points,
// if any flux is not positive, or if the flux is not decaying.
func FluxDecayTime(days, flux []float64) (float64, error) {
	if len(days) != len(flux) {
		return math.NaN(), fmt.Errorf("sft: %d days but %d flux values: %w", len(days), len(flux), ErrShapeMismatch)
	}
	if len(flux) < 2 {
		return math.NaN(), fmt.Errorf("sft: need at least 2 flux values to fit decay time: %w", ErrNumericDegeneracy)
	}
	lnf := make([]float64, len(flux))
	for i, v := range flux {
		if !(v > 0) {
			return math.NaN(), fmt.Errorf("sft: flux %g on day %g is not positive: %w", v, days[i], ErrNumericDegeneracy)
		}
		lnf[i] = math.Log(v)
	}
	slope, _, _, _, _, _ := stats.LinearRegression(days, lnf)
	if !(slope < 0) {
		return math.Inf(1), fmt.Errorf("sft: flux is not decaying (slope %g): %w", slope, ErrNumericDegeneracy)
	}
	return -1 / slope, nil
}

// Diagnostics holds the scalar diagnostics of the field on one day.
type Diagnostics struct {
	Day             int
	UnsignedFlux    float64 // [Mx]
	DipoleMoment    float64 // [G]
	PolarFieldNorth float64 // [G]
	PolarFieldSouth float64 // [G]
	PolarFluxNorth  float64 // [Mx]
	PolarFluxSouth  float64 // [Mx]
}

// Diagnose calculates the diagnostics of f, where latDeg is the boundary
// of the polar caps.
func Diagnose(f *sparse.DenseArray, g Grid, day int, latDeg float64) Diagnostics {
	d := Diagnostics{
		Day:          day,
		UnsignedFlux: UnsignedFlux(f, g),
		DipoleMoment: DipoleMoment(f, g),
	}
	d.PolarFieldNorth, d.PolarFieldSouth = PolarField(f, g, latDeg)
	d.PolarFluxNorth, d.PolarFluxSouth = PolarFlux(f, g, latDeg)
	return d
}

// diagnosticNames are the names of the built-in diagnostic variables, in
// output order.
var diagnosticNames = []string{"day", "unsigned_flux", "dipole_moment",
	"polar_field_north", "polar_field_south", "polar_flux_north", "polar_flux_south"}

func (d Diagnostics) values() []float64 {
	return []float64{float64(d.Day), d.UnsignedFlux, d.DipoleMoment,
		d.PolarFieldNorth, d.PolarFieldSouth, d.PolarFluxNorth, d.PolarFluxSouth}
}

// History holds the daily evolution of a simulation.
type History struct {
	// PolarLatitude is the boundary of the polar caps used for the
	// diagnostics [degrees].
	PolarLatitude float64

	// FullField specifies whether the full field is kept for each day.
	FullField bool

	Days        []int
	Butterfly   [][]float64          // [day][colatitude]
	Fields      []*sparse.DenseArray // [day], only if FullField
	Diagnostics []Diagnostics        // [day]
}

// NewHistory returns a new History. If fullField is true, a copy of the
// whole field is kept for each recorded day.
func NewHistory(fullField bool, polarLatitude float64) *History {
	return &History{FullField: fullField, PolarLatitude: polarLatitude}
}

// Record returns a function that appends the current state of the
// model to h. It can be used in InitFuncs, to record the initial field,
// and in RunFuncs after Integrate.
func (h *History) Record() DomainManipulator {
	return func(d *Model) error {
		h.add(d.Day, d.Field, d.Grid)
		return nil
	}
}

func (h *History) add(day int, f *sparse.DenseArray, g Grid) {
	h.Days = append(h.Days, day)
	h.Butterfly = append(h.Butterfly, Butterfly(f))
	if h.FullField {
		h.Fields = append(h.Fields, copyField(f))
	}
	h.Diagnostics = append(h.Diagnostics, Diagnose(f, g, day, h.PolarLatitude))
}

// ButterflyMatrix returns the butterfly diagram as a matrix with one row
// for each recorded day and one column for each colatitude.
func (h *History) ButterflyMatrix() *mat.Dense {
	if len(h.Butterfly) == 0 {
		return nil
	}
	m := mat.NewDense(len(h.Butterfly), len(h.Butterfly[0]), nil)
	for i, b := range h.Butterfly {
		m.SetRow(i, b)
	}
	return m
}

// FluxDecayTime returns the e-folding time [days] of the unsigned flux
// over the recorded days.
func (h *History) FluxDecayTime() (float64, error) {
	days := make([]float64, len(h.Diagnostics))
	flux := make([]float64, len(h.Diagnostics))
	for i, d := range h.Diagnostics {
		days[i] = float64(d.Day)
		flux[i] = d.UnsignedFlux
	}
	return FluxDecayTime(days, flux)
}

// Series is a table of diagnostics with one row per day.
type Series struct {
	Names []string
	Rows  [][]float64
}

// diagnosticFunctions are the functions available to diagnostic
// expressions.
var diagnosticFunctions = map[string]govaluate.ExpressionFunction{
	"abs": unaryFunc("abs", math.Abs),
	"exp": unaryFunc("exp", math.Exp),
	"log": unaryFunc("log", math.Log),
}

func unaryFunc(name string, f func(float64) float64) govaluate.ExpressionFunction {
	return func(arg ...interface{}) (interface{}, error) {
		if len(arg) != 1 {
			return nil, fmt.Errorf("sft: got %d arguments for function '%s', but needs 1", len(arg), name)
		}
		v, ok := arg[0].(float64)
		if !ok {
			return nil, fmt.Errorf("sft: argument to function '%s' is %T, not a number", name, arg[0])
		}
		return f(v), nil
	}
}

// DiagnosticSeries returns the recorded diagnostics of h, followed by
// the columns defined in expressions. expressions maps column names to
// expressions of the built-in diagnostic variables (day, unsigned_flux,
// dipole_moment, polar_field_north, polar_field_south, polar_flux_north
// and polar_flux_south) and the functions abs, exp and log. For
// example, "asymmetry": "polar_field_north + polar_field_south".
// Derived columns are sorted by name.
func DiagnosticSeries(h *History, expressions map[string]string) (*Series, error) {
	names := make([]string, 0, len(expressions))
	for k := range expressions {
		names = append(names, k)
	}
	sort.Strings(names)

	builtin := make(map[string]struct{})
	for _, n := range diagnosticNames {
		builtin[n] = struct{}{}
	}
	exprs := make([]*govaluate.EvaluableExpression, len(names))
	for i, n := range names {
		if _, ok := builtin[n]; ok {
			return nil, fmt.Errorf("sft: diagnostic expression name '%s' is a built-in variable: %w",
				n, ErrInvalidConfiguration)
		}
		expr := strings.Replace(strings.Replace(expressions[n], "\r\n", " ", -1), "\n", " ", -1)
		e, err := govaluate.NewEvaluableExpressionWithFunctions(expr, diagnosticFunctions)
		if err != nil {
			return nil, fmt.Errorf("sft: parsing diagnostic expression '%s': %v: %w", n, err, ErrInvalidConfiguration)
		}
		for _, v := range e.Vars() {
			if _, ok := builtin[v]; !ok {
				return nil, fmt.Errorf("sft: diagnostic expression '%s' uses undefined variable '%s': %w",
					n, v, ErrInvalidConfiguration)
			}
		}
		exprs[i] = e
	}

	s := &Series{Names: append(append([]string(nil), diagnosticNames...), names...)}
	for _, d := range h.Diagnostics {
		vals := d.values()
		params := make(map[string]interface{}, len(vals))
		for i, n := range diagnosticNames {
			params[n] = vals[i]
		}
		for i, e := range exprs {
			r, err := e.Evaluate(params)
			if err != nil {
				return nil, fmt.Errorf("sft: evaluating diagnostic '%s' on day %d: %v", names[i], d.Day, err)
			}
			v, ok := r.(float64)
			if !ok {
				return nil, fmt.Errorf("sft: diagnostic '%s' on day %d evaluated to %T, not a number: %w",
					names[i], d.Day, r, ErrInvalidConfiguration)
			}
			vals = append(vals, v)
		}
		s.Rows = append(s.Rows, vals)
	}
	return s, nil
}

// Column returns the values of the named column, or nil if it does not exist.
func (s *Series) Column(name string) []float64 {
	for j, n := range s.Names {
		if n == name {
			o := make([]float64, len(s.Rows))
			for i, r := range s.Rows {
				o[i] = r[j]
			}
			return o
		}
	}
	return nil
}

// WriteCSV writes s to w in CSV format with a header row.
func (s *Series) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(s.Names); err != nil {
		return fmt.Errorf("sft: writing diagnostics: %v", err)
	}
	rec := make([]string, len(s.Names))
	for _, r := range s.Rows {
		for j, v := range r {
			rec[j] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("sft: writing diagnostics: %v", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
