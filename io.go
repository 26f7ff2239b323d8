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
	"sort"

	"github.com/ctessum/cdf"
)

// Names of the NetCDF output dimensions and variables.
const (
	dayDim        = "day"
	colatitudeDim = "colatitude"
	longitudeDim  = "longitude"
	butterflyVar  = "butterfly"
	fieldVar      = "Br"
)

var diagnosticDescriptions = map[string][2]string{
	"unsigned_flux":     {"Total unsigned magnetic flux", "Mx"},
	"dipole_moment":     {"Axial dipole moment", "G"},
	"polar_field_north": {"Mean field poleward of the polar latitude, northern hemisphere", "G"},
	"polar_field_south": {"Mean field poleward of the polar latitude, southern hemisphere", "G"},
	"polar_flux_north":  {"Signed flux poleward of the polar latitude, northern hemisphere", "Mx"},
	"polar_flux_south":  {"Signed flux poleward of the polar latitude, southern hemisphere", "Mx"},
}

// Outputter writes the daily state of a simulation to a NetCDF file.
type Outputter struct {
	f             *cdf.File
	g             Grid
	numDays       int
	fullField     bool
	polarLatitude float64
	n             int // number of records written
}

// NewOutputter creates a NetCDF file in rw with room for the initial
// field and numDays simulated days on grid g. The butterfly profile and
// the diagnostics are always written; if fullField is true the whole
// field is written for each day as well. polarLatitude [degrees] bounds
// the polar caps used for the diagnostics. step and attrs are stored as
// global attributes.
func NewOutputter(rw cdf.ReaderWriterAt, g Grid, step StepSize, numDays int, fullField bool,
	polarLatitude float64, attrs map[string]string) (*Outputter, error) {
	if numDays < 0 {
		return nil, fmt.Errorf("sft: number of output days must not be negative, is %d: %w",
			numDays, ErrInvalidConfiguration)
	}
	nt, np := g.Shape()
	h := cdf.NewHeader([]string{dayDim, colatitudeDim, longitudeDim}, []int{numDays + 1, nt, np})

	h.AddVariable(dayDim, []string{dayDim}, []int32{0})
	h.AddAttribute(dayDim, "description", "Simulation day")
	h.AddAttribute(dayDim, "units", "days")
	h.AddVariable(colatitudeDim, []string{colatitudeDim}, []float64{0})
	h.AddAttribute(colatitudeDim, "units", "radians")
	h.AddVariable(longitudeDim, []string{longitudeDim}, []float64{0})
	h.AddAttribute(longitudeDim, "units", "radians")
	h.AddVariable(butterflyVar, []string{dayDim, colatitudeDim}, []float64{0})
	h.AddAttribute(butterflyVar, "description", "Longitude-averaged radial magnetic field")
	h.AddAttribute(butterflyVar, "units", "G")
	if fullField {
		h.AddVariable(fieldVar, []string{dayDim, colatitudeDim, longitudeDim}, []float64{0})
		h.AddAttribute(fieldVar, "description", "Radial magnetic field")
		h.AddAttribute(fieldVar, "units", "G")
	}
	for _, v := range diagnosticNames[1:] {
		h.AddVariable(v, []string{dayDim}, []float64{0})
		h.AddAttribute(v, "description", diagnosticDescriptions[v][0])
		h.AddAttribute(v, "units", diagnosticDescriptions[v][1])
	}

	h.AddAttribute("", "dtheta", []float64{g.DTheta})
	h.AddAttribute("", "dphi", []float64{g.DPhi})
	h.AddAttribute("", "time_step", []float64{step.TimeStep})
	h.AddAttribute("", "steps_per_day", []int32{int32(step.StepsPerDay)})
	h.AddAttribute("", "polar_latitude", []float64{polarLatitude})
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		h.AddAttribute("", k, attrs[k])
	}
	h.Define()
	for _, err := range h.Check() {
		return nil, fmt.Errorf("sft: creating output file: %v", err)
	}

	f, err := cdf.Create(rw, h)
	if err != nil {
		return nil, fmt.Errorf("sft: creating output file: %v", err)
	}
	// Unwritten days keep the fill value so they can be told apart
	// from written ones.
	if err := f.Fill(dayDim); err != nil {
		return nil, fmt.Errorf("sft: initializing output file: %v", err)
	}
	if err := writeVar(f, colatitudeDim, []int{0}, []int{nt}, g.Colatitude); err != nil {
		return nil, err
	}
	if err := writeVar(f, longitudeDim, []int{0}, []int{np}, g.Longitude); err != nil {
		return nil, err
	}
	return &Outputter{
		f:             f,
		g:             g.Copy(),
		numDays:       numDays,
		fullField:     fullField,
		polarLatitude: polarLatitude,
	}, nil
}

// Output returns a function that writes the current state of the model
// to the next record of the output file. It can be used in InitFuncs, to
// write the initial field, and in RunFuncs after Integrate.
func (o *Outputter) Output() DomainManipulator {
	return func(d *Model) error {
		if o.n > o.numDays {
			return fmt.Errorf("sft: output file only has room for %d days: %w", o.numDays+1, ErrInvalidConfiguration)
		}
		if err := o.g.CheckShape(d.Field); err != nil {
			return fmt.Errorf("sft: writing output: %w", err)
		}
		nt, np := o.g.Shape()
		n := o.n
		w := o.f.Writer(dayDim, []int{n}, []int{n + 1})
		if _, err := w.Write([]int32{int32(d.Day)}); err != nil {
			return fmt.Errorf("sft: writing output day %d: %v", d.Day, err)
		}
		if err := writeVar(o.f, butterflyVar, []int{n, 0}, []int{n, nt}, Butterfly(d.Field)); err != nil {
			return err
		}
		if o.fullField {
			if err := writeVar(o.f, fieldVar, []int{n, 0, 0}, []int{n, nt - 1, np}, d.Field.Elements); err != nil {
				return err
			}
		}
		vals := Diagnose(d.Field, o.g, d.Day, o.polarLatitude).values()
		for i, v := range diagnosticNames[1:] {
			if err := writeVar(o.f, v, []int{n}, []int{n + 1}, vals[i+1:i+2]); err != nil {
				return err
			}
		}
		o.n++
		return nil
	}
}

// writeVar writes data to v starting at begin. The last index of end is
// one past the last element written; a writer whose range is exactly
// filled reports io.EOF.
func writeVar(f *cdf.File, v string, begin, end []int, data []float64) error {
	w := f.Writer(v, begin, end)
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("sft: writing output variable %s: %v", v, err)
	}
	return nil
}

// readVar reads a floating point variable from begin to end (inclusive).
// Nil begin and end read the whole variable.
func readVar(f *cdf.File, v string, begin, end []int) ([]float64, error) {
	r := f.Reader(v, begin, end)
	if r == nil {
		return nil, fmt.Errorf("variable %q is not in the file", v)
	}
	buf := r.Zero(-1)
	if _, err := r.Read(buf); err != nil {
		return nil, err
	}
	switch d := buf.(type) {
	case []float64:
		return d, nil
	case []float32:
		o := make([]float64, len(d))
		for i, v := range d {
			o[i] = float64(v)
		}
		return o, nil
	default:
		return nil, fmt.Errorf("variable %q has unsupported type %T", v, buf)
	}
}

// ReadOutput reads a file created by an Outputter and returns its grid
// and the recorded history. Only days that have been written are
// included.
func ReadOutput(rw cdf.ReaderWriterAt) (*History, Grid, error) {
	var g Grid
	f, err := cdf.Open(rw)
	if err != nil {
		return nil, g, fmt.Errorf("sft: opening output file: %v", err)
	}
	if g.Colatitude, err = readVar(f, colatitudeDim, nil, nil); err != nil {
		return nil, g, fmt.Errorf("sft: reading output file: %v", err)
	}
	if g.Longitude, err = readVar(f, longitudeDim, nil, nil); err != nil {
		return nil, g, fmt.Errorf("sft: reading output file: %v", err)
	}
	g.DTheta, err = float64Attribute(f, "dtheta")
	if err != nil {
		return nil, g, err
	}
	if g.DPhi, err = float64Attribute(f, "dphi"); err != nil {
		return nil, g, err
	}
	polarLatitude, err := float64Attribute(f, "polar_latitude")
	if err != nil {
		return nil, g, err
	}

	r := f.Reader(dayDim, nil, nil)
	buf := r.Zero(-1)
	if _, err = r.Read(buf); err != nil {
		return nil, g, fmt.Errorf("sft: reading output days: %v", err)
	}
	days, ok := buf.([]int32)
	if !ok {
		return nil, g, fmt.Errorf("sft: output days have type %T, not int32", buf)
	}
	fill := f.Header.FillValue(dayDim)

	fullField := f.Header.Lengths(fieldVar) != nil
	h := NewHistory(fullField, polarLatitude)
	nt, np := g.Shape()
	for n, day := range days {
		if day == fill {
			break
		}
		h.Days = append(h.Days, int(day))
		b, err := readVar(f, butterflyVar, []int{n, 0}, []int{n, nt - 1})
		if err != nil {
			return nil, g, fmt.Errorf("sft: reading output day %d: %v", day, err)
		}
		h.Butterfly = append(h.Butterfly, b)
		if fullField {
			data, err := readVar(f, fieldVar, []int{n, 0, 0}, []int{n, nt - 1, np - 1})
			if err != nil {
				return nil, g, fmt.Errorf("sft: reading output day %d: %v", day, err)
			}
			fld := g.NewField()
			copy(fld.Elements, data)
			h.Fields = append(h.Fields, fld)
		}
		vals := []float64{float64(day)}
		for _, v := range diagnosticNames[1:] {
			x, err := readVar(f, v, []int{n}, []int{n})
			if err != nil {
				return nil, g, fmt.Errorf("sft: reading output day %d: %v", day, err)
			}
			vals = append(vals, x[0])
		}
		h.Diagnostics = append(h.Diagnostics, Diagnostics{
			Day:             int(day),
			UnsignedFlux:    vals[1],
			DipoleMoment:    vals[2],
			PolarFieldNorth: vals[3],
			PolarFieldSouth: vals[4],
			PolarFluxNorth:  vals[5],
			PolarFluxSouth:  vals[6],
		})
	}
	return h, g, nil
}

func float64Attribute(f *cdf.File, name string) (float64, error) {
	switch v := f.Header.GetAttribute("", name).(type) {
	case []float64:
		if len(v) == 1 {
			return v[0], nil
		}
	case []float32:
		if len(v) == 1 {
			return float64(v[0]), nil
		}
	}
	return 0, fmt.Errorf("sft: output file is missing attribute %q", name)
}
