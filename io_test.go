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
	"errors"
	"io/ioutil"
	"math"
	"os"
	"reflect"
	"testing"

	"github.com/ctessum/cdf"
)

func sameFloat(a, b float64) bool {
	return a == b || (math.IsNaN(a) && math.IsNaN(b))
}

func TestOutputRoundTrip(t *testing.T) {
	f, err := ioutil.TempFile("", "sft_output")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(f.Name())
	defer f.Close()

	const numDays = 4
	g := NewGrid(18, 36, true)
	step, _, err := CalculateTimeStep(g, testDiffusivity, DefaultCFL)
	if err != nil {
		t.Fatal(err)
	}
	o, err := NewOutputter(f, g, step, numDays, true, 60, map[string]string{"run_id": "abc"})
	if err != nil {
		t.Fatal(err)
	}
	h := NewHistory(true, 60)
	d := &Model{
		InitFuncs: []DomainManipulator{
			UseGrid(g),
			UseDiffusivity(testDiffusivity),
			UseInitialField(testField(g)),
			h.Record(),
			o.Output(),
		},
		RunFuncs: []DomainManipulator{
			Integrate(),
			h.Record(),
			o.Output(),
			RunDays(numDays - 1), // leave the last day unwritten
		},
	}
	if err := d.Init(); err != nil {
		t.Fatal(err)
	}
	if err := d.Run(); err != nil {
		t.Fatal(err)
	}

	h2, g2, err := ReadOutput(f)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(g, g2) {
		t.Errorf("grid: have %+v, want %+v", g2, g)
	}
	if h2.PolarLatitude != 60 || !h2.FullField {
		t.Errorf("history settings %g %v", h2.PolarLatitude, h2.FullField)
	}
	if len(h2.Days) != numDays {
		t.Fatalf("read %d days, want %d", len(h2.Days), numDays)
	}
	if !reflect.DeepEqual(h.Days, h2.Days) || !reflect.DeepEqual(h.Butterfly, h2.Butterfly) {
		t.Errorf("days or butterfly differ: %v %v", h.Days, h2.Days)
	}
	for i := range h.Fields {
		if !reflect.DeepEqual(h.Fields[i].Elements, h2.Fields[i].Elements) {
			t.Errorf("day %d: fields differ", h.Days[i])
		}
	}
	for i, want := range h.Diagnostics {
		have := h2.Diagnostics[i]
		wv, hv := want.values(), have.values()
		for k := range wv {
			if !sameFloat(wv[k], hv[k]) {
				t.Errorf("day %d %s: have %g, want %g", want.Day, diagnosticNames[k], hv[k], wv[k])
			}
		}
	}

	cf, err := cdf.Open(f)
	if err != nil {
		t.Fatal(err)
	}
	if a := cf.Header.GetAttribute("", "run_id"); a != "abc" {
		t.Errorf("run_id attribute = %v", a)
	}
	if a := cf.Header.GetAttribute("", "steps_per_day"); !reflect.DeepEqual(a, []int32{int32(step.StepsPerDay)}) {
		t.Errorf("steps_per_day attribute = %v", a)
	}
}

func TestOutputterCapacity(t *testing.T) {
	f, err := ioutil.TempFile("", "sft_output")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(f.Name())
	defer f.Close()

	g := NewGrid(10, 20, true)
	o, err := NewOutputter(f, g, StepSize{TimeStep: SecondsPerDay, StepsPerDay: 1}, 0, false, DefaultPolarLatitude, nil)
	if err != nil {
		t.Fatal(err)
	}
	d := &Model{Grid: g, Field: Dipole(g, 1)}
	if err := o.Output()(d); err != nil {
		t.Fatal(err)
	}
	if err := o.Output()(d); !errors.Is(err, ErrInvalidConfiguration) {
		t.Errorf("want ErrInvalidConfiguration, have %v", err)
	}
	h, _, err := ReadOutput(f)
	if err != nil {
		t.Fatal(err)
	}
	if len(h.Days) != 1 || h.FullField || len(h.Fields) != 0 {
		t.Errorf("have %d days, full field %v", len(h.Days), h.FullField)
	}

	if _, err := NewOutputter(f, g, StepSize{}, -1, false, DefaultPolarLatitude, nil); !errors.Is(err, ErrInvalidConfiguration) {
		t.Errorf("negative days: want ErrInvalidConfiguration, have %v", err)
	}
}

func TestWriteVarFillsRange(t *testing.T) {
	f, err := ioutil.TempFile("", "sft_writevar")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(f.Name())
	defer f.Close()

	h := cdf.NewHeader([]string{"a", "b"}, []int{3, 5})
	h.AddVariable("row", []string{"b"}, []float64{0})
	h.AddVariable("table", []string{"a", "b"}, []float64{0})
	h.Define()
	cf, err := cdf.Create(f, h)
	if err != nil {
		t.Fatal(err)
	}
	row := []float64{1, 2, 3, 4, 5}
	if err := writeVar(cf, "row", []int{0}, []int{5}, row); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		vals := []float64{float64(i), 10, 20, 30, float64(i * 100)}
		if err := writeVar(cf, "table", []int{i, 0}, []int{i, 5}, vals); err != nil {
			t.Fatalf("row %d: %v", i, err)
		}
	}

	have, err := readVar(cf, "row", nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(have, row) {
		t.Errorf("row: have %v, want %v", have, row)
	}
	last, err := readVar(cf, "table", []int{2, 0}, []int{2, 4})
	if err != nil {
		t.Fatal(err)
	}
	if want := []float64{2, 10, 20, 30, 200}; !reflect.DeepEqual(last, want) {
		t.Errorf("table row 2: have %v, want %v", last, want)
	}
	first, err := readVar(cf, "table", []int{0, 0}, []int{0, 4})
	if err != nil {
		t.Fatal(err)
	}
	if first[0] != 0 || first[4] != 0 || first[1] != 10 {
		t.Errorf("table row 0 overwritten: %v", first)
	}
}
